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
	"math/rand"
	"time"

	"emberraft/internal/config"
	"emberraft/internal/wire"
)

// Role is the state of a Group's local node.
type Role int32

const (
	RoleFollower Role = iota
	RoleCandidate
	RoleLeader
)

func (r Role) String() string {
	switch r {
	case RoleFollower:
		return "FOLLOWER"
	case RoleCandidate:
		return "CANDIDATE"
	case RoleLeader:
		return "LEADER"
	default:
		return "UNKNOWN"
	}
}

// NodeVoting tracks whether a configured peer counts toward quorum.
type NodeVoting int

const (
	NodeVoter NodeVoting = iota
	NodeNonvoting
)

// Node is one member of a Group's configuration.
type Node struct {
	ID       uint32
	Host     string
	Port     uint32
	Voting   NodeVoting
	NextIdx  uint64
	MatchIdx uint64

	// promoting marks a non-voting node whose AddVoter entry is in flight,
	// so successive acks don't re-propose it before the first one commits.
	promoting bool

	// catchUpRounds counts consecutive replication acks during which this
	// non-voting node stayed within PromotionConfig.CatchUpLag of the
	// leader's log; reset to zero whenever it falls behind.
	catchUpRounds int
}

// Group is one Raft consensus instance, identified by a 64-byte opaque
// identity. Every field here is touched only by the loop thread that owns
// the GroupRegistry; nothing in Group is internally synchronized.
type Group struct {
	Identity wire.Identity
	SelfID   uint32

	currentTerm uint64
	votedFor    *uint32
	votesGranted map[uint32]bool

	log         []wire.Entry // in-memory cache mirroring the journal
	commitIdx   uint64
	lastApplied uint64
	entryID     uint32 // last id assigned to a locally submitted entry

	role     Role
	leaderID *uint32

	nodes map[uint32]*Node

	electionCfg   config.ElectionConfig
	electionAt    time.Time
	heartbeatAt   time.Time
	heartbeatEvery time.Duration

	promotionCfg config.PromotionConfig

	caps Capabilities
}

// NewGroup creates a Group in the Follower role with the given initial
// node configuration. SelfID must be a key of nodes.
func NewGroup(identity wire.Identity, selfID uint32, nodes map[uint32]*Node, caps Capabilities, electionCfg config.ElectionConfig, promotionCfg config.PromotionConfig, heartbeatEvery time.Duration, now time.Time) *Group {
	g := &Group{
		Identity:       identity,
		SelfID:         selfID,
		role:           RoleFollower,
		nodes:          nodes,
		caps:           caps,
		electionCfg:    electionCfg,
		promotionCfg:   promotionCfg,
		heartbeatEvery: heartbeatEvery,
		log:            []wire.Entry{{Index: 0, Term: 0, Type: wire.EntryNormal}},
	}
	g.resetElectionDeadline(now)
	return g
}

// Restore replays durably persisted state into a freshly constructed
// Group, as a host does immediately after NewGroup on process startup.
// log must start with the index-0 sentinel entry, as NewGroup's own
// initial log does. Membership entries up to commitIdx are re-applied so
// the node configuration reflects every committed AddNonvoting/AddVoter/
// RemoveNode that happened before the crash; the external apply callback
// is not invoked again for any of them, since the host is responsible for
// its own replay if it needs one.
func (g *Group) Restore(term uint64, votedFor *uint32, log []wire.Entry, commitIdx uint64) {
	g.currentTerm = term
	g.votedFor = votedFor
	if len(log) > 0 {
		g.log = log
	}
	for idx := uint64(1); idx <= commitIdx; idx++ {
		entry, ok := g.entryAt(idx)
		if !ok {
			break
		}
		if entry.Type != wire.EntryNormal {
			g.applyMembershipEntry(entry)
		}
	}
	g.commitIdx = commitIdx
	g.lastApplied = commitIdx
}

// Role reports the group's current role.
func (g *Group) Role() Role { return g.role }

// Term reports the group's current term.
func (g *Group) Term() uint64 { return g.currentTerm }

// CommitIndex reports the highest committed log index.
func (g *Group) CommitIndex() uint64 { return g.commitIdx }

// LastApplied reports the highest log index delivered to the apply
// callback so far. Always <= CommitIndex.
func (g *Group) LastApplied() uint64 { return g.lastApplied }

// Leader reports the last known leader's node ID, if any.
func (g *Group) Leader() (uint32, bool) {
	if g.leaderID == nil {
		return 0, false
	}
	return *g.leaderID, true
}

// Node returns the configured node record for id, if known.
func (g *Group) Node(id uint32) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// LeaderAddr returns the last known leader's (host, port), if any. When
// this node is the leader it returns this node's own address.
func (g *Group) LeaderAddr() (host string, port uint32, ok bool) {
	if g.leaderID == nil {
		return "", 0, false
	}
	n, exists := g.nodes[*g.leaderID]
	if !exists {
		return "", 0, false
	}
	return n.Host, n.Port, true
}

// LastLogIndex reports the index of the last entry in the log, 0 when the
// log holds only the sentinel. The event loop reads this on the loop
// thread to pre-register a commit rendezvous slot before recv_entry runs.
func (g *Group) LastLogIndex() uint64 {
	return g.lastLogIndex()
}

func (g *Group) lastLogIndex() uint64 {
	return g.log[len(g.log)-1].Index
}

func (g *Group) lastLogTerm() uint64 {
	return g.log[len(g.log)-1].Term
}

// termAt returns the term of the entry at index, looking in the in-memory
// log and then the journal, or 0 if neither holds it.
func (g *Group) termAt(index uint64) uint64 {
	for _, e := range g.log {
		if e.Index == index {
			return e.Term
		}
	}
	if g.caps.LogPoll != nil {
		if e, ok := g.caps.LogPoll(index); ok {
			return e.Term
		}
	}
	return 0
}

func (g *Group) entryAt(index uint64) (wire.Entry, bool) {
	for _, e := range g.log {
		if e.Index == index {
			return e, true
		}
	}
	if g.caps.LogPoll != nil {
		return g.caps.LogPoll(index)
	}
	return wire.Entry{}, false
}

// votingNodes returns the IDs of every node that counts toward quorum,
// including SelfID.
func (g *Group) votingNodes() []uint32 {
	var ids []uint32
	for id, n := range g.nodes {
		if n.Voting == NodeVoter {
			ids = append(ids, id)
		}
	}
	return ids
}

func (g *Group) quorumSize() int {
	return len(g.votingNodes())/2 + 1
}

func (g *Group) resetElectionDeadline(now time.Time) {
	span := g.electionCfg.TimeoutMax - g.electionCfg.TimeoutMin
	jitter := time.Duration(0)
	if span > 0 {
		jitter = time.Duration(rand.Int63n(int64(span)))
	}
	g.electionAt = now.Add(g.electionCfg.TimeoutMin + jitter)
}

func (g *Group) persistTermAndVote(term uint64, votedFor *uint32) error {
	if err := g.caps.PersistTerm(term); err != nil {
		return err
	}
	return g.caps.PersistVote(votedFor)
}
