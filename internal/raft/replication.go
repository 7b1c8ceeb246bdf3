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
	"sort"
	"time"

	emberrafterrors "emberraft/internal/errors"
	"emberraft/internal/wire"
)

// SubmitEntry appends payload as a new log entry if this group is the
// leader, returning the index it was assigned. Callers learn of commit
// separately, via the Commit Rendezvous keyed on (identity, index).
func (g *Group) SubmitEntry(payload []byte) (uint64, error) {
	if g.role != RoleLeader {
		if g.leaderID != nil {
			if n, ok := g.nodes[*g.leaderID]; ok {
				return 0, emberrafterrors.NotLeader(n.Host, n.Port)
			}
		}
		return 0, emberrafterrors.NotLeader("", 0)
	}

	index := g.lastLogIndex() + 1
	g.entryID++
	entry := wire.Entry{Index: index, Term: g.currentTerm, Type: wire.EntryNormal, ID: g.entryID, Payload: payload}
	if err := g.appendLocal(entry); err != nil {
		return 0, emberrafterrors.JournalAppendFailed(index, err)
	}

	self := g.nodes[g.SelfID]
	self.MatchIdx = index
	self.NextIdx = index + 1

	for id := range g.nodes {
		if id == g.SelfID {
			continue
		}
		g.sendAppendEntriesTo(id)
	}
	g.advanceCommitIndex()
	return index, nil
}

func (g *Group) appendLocal(e wire.Entry) error {
	if err := g.caps.LogOffer(e.Index, e); err != nil {
		return err
	}
	g.log = append(g.log, e)
	return nil
}

// sendAppendEntriesTo ships every entry the peer is missing, or a bare
// heartbeat (nil Entries) if it is already caught up.
func (g *Group) sendAppendEntriesTo(peerID uint32) {
	n, ok := g.nodes[peerID]
	if !ok {
		return
	}
	prevIdx := n.NextIdx - 1
	prevTerm := g.termAt(prevIdx)

	var entries []wire.Entry
	for _, e := range g.log {
		if e.Index >= n.NextIdx {
			entries = append(entries, e)
		}
	}

	g.caps.SendAppendEntries(peerID, wire.AppendEntries{
		Term:         g.currentTerm,
		PrevLogIdx:   prevIdx,
		PrevLogTerm:  prevTerm,
		LeaderCommit: g.commitIdx,
		Entries:      entries,
	})
}

// HandleAppendEntries implements the follower side of replication,
// enforcing the log matching property: an append is accepted only if the
// follower's entry at PrevLogIdx exists and has term PrevLogTerm. fromID
// is the sending leader's node ID, recorded so submitters on this node
// can be redirected.
func (g *Group) HandleAppendEntries(fromID uint32, req wire.AppendEntries, now time.Time) wire.AppendEntriesResponse {
	if req.Term < g.currentTerm {
		return wire.AppendEntriesResponse{Term: g.currentTerm, Success: false}
	}
	if req.Term > g.currentTerm {
		g.stepDown(req.Term, now)
	}

	// An equal-term candidate yields to the established leader but keeps
	// its voted_for: votes reset only on a term bump.
	g.role = RoleFollower
	leader := fromID
	g.leaderID = &leader
	g.resetElectionDeadline(now)

	if req.PrevLogIdx > 0 {
		term := g.termAt(req.PrevLogIdx)
		if term == 0 && req.PrevLogIdx > g.lastLogIndex() {
			return wire.AppendEntriesResponse{Term: g.currentTerm, Success: false, FirstIdx: g.lastLogIndex() + 1}
		}
		if term != req.PrevLogTerm {
			return wire.AppendEntriesResponse{Term: g.currentTerm, Success: false, FirstIdx: firstIndexOfTerm(g.log, term)}
		}
	}

	for _, e := range req.Entries {
		existingTerm := g.termAt(e.Index)
		if existingTerm != 0 && existingTerm != e.Term {
			g.truncateFrom(e.Index)
		}
		if _, ok := g.entryAt(e.Index); !ok || existingTerm != e.Term {
			if err := g.appendLocal(e); err != nil {
				return wire.AppendEntriesResponse{Term: g.currentTerm, Success: false}
			}
		}
	}

	lastNew := req.PrevLogIdx + uint64(len(req.Entries))
	if req.LeaderCommit > g.commitIdx {
		newCommit := req.LeaderCommit
		if newCommit > lastNew {
			newCommit = lastNew
		}
		g.commitTo(newCommit)
	}

	// Acknowledge only the range this request covered; anything beyond it
	// in the local log has not been verified against the leader's.
	return wire.AppendEntriesResponse{Term: g.currentTerm, Success: true, FirstIdx: lastNew + 1}
}

func firstIndexOfTerm(log []wire.Entry, term uint64) uint64 {
	for _, e := range log {
		if e.Term == term {
			return e.Index
		}
	}
	return 1
}

func (g *Group) truncateFrom(index uint64) {
	g.caps.LogPop(index)
	kept := g.log[:0]
	for _, e := range g.log {
		if e.Index < index {
			kept = append(kept, e)
		}
	}
	g.log = kept
}

// HandleAppendEntriesResponse implements the leader side: advancing
// next_idx/match_idx on success, backing off next_idx on failure, and
// recomputing the commit index once a majority match a given index in
// the current term.
func (g *Group) HandleAppendEntriesResponse(peerID uint32, resp wire.AppendEntriesResponse, now time.Time) {
	if g.role != RoleLeader {
		return
	}
	if resp.Term > g.currentTerm {
		g.stepDown(resp.Term, now)
		return
	}
	n, ok := g.nodes[peerID]
	if !ok {
		return
	}

	if resp.Success {
		// Acks can arrive out of order; never let a stale one regress the
		// replication cursors.
		if resp.FirstIdx > 0 && resp.FirstIdx-1 > n.MatchIdx {
			n.MatchIdx = resp.FirstIdx - 1
			n.NextIdx = resp.FirstIdx
		}
		g.advanceCommitIndex()
		g.maybePromote(peerID)
		return
	}

	// The follower's FirstIdx hints where its log diverges; fall back to a
	// one-step decrement when no hint came back.
	if resp.FirstIdx > 0 && resp.FirstIdx <= n.NextIdx {
		n.NextIdx = resp.FirstIdx
	} else if n.NextIdx > 1 {
		n.NextIdx--
	}
	if n.NextIdx < 1 {
		n.NextIdx = 1
	}
	g.sendAppendEntriesTo(peerID)
}

// advanceCommitIndex recomputes commit_idx as the highest index held by a
// majority of voting nodes whose term matches the leader's current term —
// the rule that prevents committing an entry from a previous leader's term
// purely by replication count.
func (g *Group) advanceCommitIndex() {
	voters := g.votingNodes()
	if len(voters) == 0 {
		return
	}
	matches := make([]uint64, 0, len(voters))
	for _, id := range voters {
		matches = append(matches, g.nodes[id].MatchIdx)
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i] > matches[j] })

	candidate := matches[g.quorumSize()-1]
	if candidate > g.commitIdx && g.termAt(candidate) == g.currentTerm {
		g.commitTo(candidate)
	}
}

func (g *Group) commitTo(index uint64) {
	if index <= g.commitIdx {
		return
	}
	for idx := g.commitIdx + 1; idx <= index; idx++ {
		entry, ok := g.entryAt(idx)
		if !ok {
			break
		}
		if entry.Type != wire.EntryNormal {
			g.applyMembershipEntry(entry)
		}
		if g.caps.Apply != nil {
			g.caps.Apply(entry)
		}
		g.commitIdx = idx
		g.lastApplied = idx
	}
	g.caps.PersistCommitIdx(g.commitIdx)
}
