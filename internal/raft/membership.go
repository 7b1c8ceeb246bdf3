/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package raft

import (
	"encoding/binary"

	emberrafterrors "emberraft/internal/errors"
	"emberraft/internal/wire"
)

// Membership changes travel through the log as ordinary entries tagged
// with one of these types, rather than a side channel, so they are
// ordered and replicated exactly like any other command.

func encodeMembershipPayload(nodeID uint32, host string, port uint32) []byte {
	buf := make([]byte, 4, 4+1+len(host)+4)
	binary.LittleEndian.PutUint32(buf[0:4], nodeID)
	buf = append(buf, byte(len(host)))
	buf = append(buf, host...)
	var portBuf [4]byte
	binary.LittleEndian.PutUint32(portBuf[:], port)
	return append(buf, portBuf[:]...)
}

func decodeMembershipPayload(payload []byte) (nodeID uint32, host string, port uint32, ok bool) {
	if len(payload) < 5 {
		return 0, "", 0, false
	}
	nodeID = binary.LittleEndian.Uint32(payload[0:4])
	hostLen := int(payload[4])
	if len(payload) < 5+hostLen+4 {
		return 0, "", 0, false
	}
	host = string(payload[5 : 5+hostLen])
	port = binary.LittleEndian.Uint32(payload[5+hostLen : 5+hostLen+4])
	return nodeID, host, port, true
}

func encodeRemoveNodePayload(nodeID uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, nodeID)
	return buf
}

func decodeRemoveNodePayload(payload []byte) (uint32, bool) {
	if len(payload) < 4 {
		return 0, false
	}
	return binary.LittleEndian.Uint32(payload), true
}

// ProposeAddNonvoting appends a membership entry adding nodeID as a
// non-voting member, replicated like any other entry but not yet counted
// toward quorum until it catches up.
func (g *Group) ProposeAddNonvoting(nodeID uint32, host string, port uint32) (uint64, error) {
	return g.proposeMembership(wire.EntryAddNonvoting, encodeMembershipPayload(nodeID, host, port))
}

// ProposeAddVoter appends a membership entry promoting nodeID to voting.
// Typically issued automatically once NodeHasSufficientLogs reports true
// for a non-voting member, per the catch-up promotion rule.
func (g *Group) ProposeAddVoter(nodeID uint32, host string, port uint32) (uint64, error) {
	return g.proposeMembership(wire.EntryAddVoter, encodeMembershipPayload(nodeID, host, port))
}

// ProposeRemoveNode appends a membership entry removing nodeID entirely.
func (g *Group) ProposeRemoveNode(nodeID uint32) (uint64, error) {
	return g.proposeMembership(wire.EntryRemoveNode, encodeRemoveNodePayload(nodeID))
}

func (g *Group) proposeMembership(t wire.EntryType, payload []byte) (uint64, error) {
	if g.role != RoleLeader {
		return 0, emberrafterrors.NotLeader("", 0)
	}
	index := g.lastLogIndex() + 1
	g.entryID++
	entry := wire.Entry{Index: index, Term: g.currentTerm, Type: t, ID: g.entryID, Payload: payload}
	if err := g.appendLocal(entry); err != nil {
		return 0, emberrafterrors.JournalAppendFailed(index, err)
	}
	self := g.nodes[g.SelfID]
	self.MatchIdx = index
	self.NextIdx = index + 1
	for id := range g.nodes {
		if id != g.SelfID {
			g.sendAppendEntriesTo(id)
		}
	}
	g.advanceCommitIndex()
	return index, nil
}

// applyMembershipEntry mutates the live node configuration once a
// membership entry commits. Uncommitted membership changes never affect
// quorum math — only commitTo calls this, after the entry is durable and
// committed, and Restore, when replaying already-committed entries.
func (g *Group) applyMembershipEntry(e wire.Entry) {
	switch e.Type {
	case wire.EntryAddNonvoting:
		nodeID, host, port, ok := decodeMembershipPayload(e.Payload)
		if !ok {
			return
		}
		if _, exists := g.nodes[nodeID]; !exists {
			g.nodes[nodeID] = &Node{ID: nodeID, Host: host, Port: port, Voting: NodeNonvoting, NextIdx: g.lastLogIndex() + 1}
		}
	case wire.EntryAddVoter:
		nodeID, host, port, ok := decodeMembershipPayload(e.Payload)
		if !ok {
			return
		}
		n, exists := g.nodes[nodeID]
		if !exists {
			n = &Node{ID: nodeID, Host: host, Port: port, NextIdx: g.lastLogIndex() + 1}
			g.nodes[nodeID] = n
		}
		n.Voting = NodeVoter
		n.promoting = false
	case wire.EntryRemoveNode:
		nodeID, ok := decodeRemoveNodePayload(e.Payload)
		if !ok {
			return
		}
		if n, exists := g.nodes[nodeID]; exists && g.role == RoleLeader && g.caps.OnRemoveNode != nil {
			g.caps.OnRemoveNode(nodeID, n.Host, n.Port)
		}
		delete(g.nodes, nodeID)
	}
}

// maybePromote checks whether a non-voting peer has caught up closely
// enough to the leader's log to be promoted to a voting member: it must
// stay within PromotionConfig.CatchUpLag of the leader's last index for
// PromotionConfig.CatchUpRounds consecutive replication acks, so a single
// lucky ack during a burst of appends doesn't promote a replica that is
// about to fall behind again.
func (g *Group) maybePromote(peerID uint32) {
	if g.role != RoleLeader {
		return
	}
	n, ok := g.nodes[peerID]
	if !ok || n.Voting == NodeVoter || n.promoting {
		return
	}
	caughtUp := g.lastLogIndex()-n.MatchIdx <= g.promotionCfg.CatchUpLag
	if g.caps.NodeHasSufficientLogs != nil {
		caughtUp = g.caps.NodeHasSufficientLogs(peerID)
	}
	if !caughtUp {
		n.catchUpRounds = 0
		return
	}
	n.catchUpRounds++
	if n.catchUpRounds < g.promotionCfg.CatchUpRounds {
		return
	}
	if _, err := g.ProposeAddVoter(peerID, n.Host, n.Port); err == nil {
		n.promoting = true
	}
}
