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
	"time"

	"emberraft/internal/wire"
)

// Tick drives time-based transitions: election timeout (Follower/Candidate
// becomes Candidate and starts a new election) and heartbeat emission
// (Leader sends AppendEntries to every peer). Called by the event loop
// once per LoopConfig.TickInterval.
func (g *Group) Tick(now time.Time) {
	switch g.role {
	case RoleLeader:
		if !now.Before(g.heartbeatAt) {
			g.sendHeartbeats()
			g.heartbeatAt = now.Add(g.heartbeatEvery)
		}
	default:
		if !now.Before(g.electionAt) {
			g.startElection(now)
		}
	}
}

// startElection transitions to Candidate, votes for itself, and requests
// votes from every other voting peer.
func (g *Group) startElection(now time.Time) {
	g.currentTerm++
	self := g.SelfID
	g.votedFor = &self
	g.role = RoleCandidate
	g.leaderID = nil
	g.votesGranted = map[uint32]bool{g.SelfID: true}
	g.resetElectionDeadline(now)

	if err := g.persistTermAndVote(g.currentTerm, &self); err != nil {
		return
	}

	req := wire.RequestVote{
		Term:        g.currentTerm,
		CandidateID: g.SelfID,
		LastLogIdx:  g.lastLogIndex(),
		LastLogTerm: g.lastLogTerm(),
	}
	for _, id := range g.votingNodes() {
		if id == g.SelfID {
			continue
		}
		g.caps.SendRequestVote(id, req)
	}

	// A single-voter group (the AddGroup auto-promotion case) wins
	// immediately without needing any response.
	if len(g.votingNodes()) == 1 {
		g.becomeLeader(now)
	}
}

// HandleRequestVote answers an incoming vote request.
func (g *Group) HandleRequestVote(req wire.RequestVote, now time.Time) wire.RequestVoteResponse {
	if req.Term < g.currentTerm {
		return wire.RequestVoteResponse{Term: g.currentTerm, VoteGranted: false}
	}
	if req.Term > g.currentTerm {
		g.stepDown(req.Term, now)
	}

	alreadyVoted := g.votedFor != nil && *g.votedFor != req.CandidateID
	candidateUpToDate := req.LastLogTerm > g.lastLogTerm() ||
		(req.LastLogTerm == g.lastLogTerm() && req.LastLogIdx >= g.lastLogIndex())

	if alreadyVoted || !candidateUpToDate {
		return wire.RequestVoteResponse{Term: g.currentTerm, VoteGranted: false}
	}

	candidate := req.CandidateID
	g.votedFor = &candidate
	if err := g.persistTermAndVote(g.currentTerm, &candidate); err != nil {
		return wire.RequestVoteResponse{Term: g.currentTerm, VoteGranted: false}
	}
	g.resetElectionDeadline(now)
	return wire.RequestVoteResponse{Term: g.currentTerm, VoteGranted: true}
}

// HandleRequestVoteResponse tallies a vote response from peerID. Once a
// majority of voting nodes grant their vote in the same term the
// candidate requested it, the group becomes leader.
func (g *Group) HandleRequestVoteResponse(peerID uint32, resp wire.RequestVoteResponse, now time.Time) {
	if g.role != RoleCandidate {
		return
	}
	if resp.Term > g.currentTerm {
		g.stepDown(resp.Term, now)
		return
	}
	if resp.Term != g.currentTerm || !resp.VoteGranted {
		return
	}

	g.votesGranted[peerID] = true
	if len(g.votesGranted) >= g.quorumSize() {
		g.becomeLeader(now)
	}
}

// becomeLeader transitions a Candidate to Leader: resets per-peer
// replication cursors and sends an immediate round of heartbeats.
func (g *Group) becomeLeader(now time.Time) {
	g.role = RoleLeader
	self := g.SelfID
	g.leaderID = &self
	next := g.lastLogIndex() + 1
	for id, n := range g.nodes {
		if id == g.SelfID {
			continue
		}
		n.NextIdx = next
		n.MatchIdx = 0
	}
	g.sendHeartbeats()
	g.heartbeatAt = now.Add(g.heartbeatEvery)
}

// stepDown reverts to Follower in a newer term, clearing any leadership
// or candidacy the group held.
func (g *Group) stepDown(term uint64, now time.Time) {
	g.currentTerm = term
	g.votedFor = nil
	g.role = RoleFollower
	g.leaderID = nil
	g.caps.PersistTerm(term)
	g.caps.PersistVote(nil)
	g.resetElectionDeadline(now)
}

func (g *Group) sendHeartbeats() {
	for id := range g.nodes {
		if id == g.SelfID {
			continue
		}
		g.sendAppendEntriesTo(id)
	}
}
