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

/*
Package raft implements the Raft Group: per-group leader election, log
replication, and membership changes, driven entirely by a single loop
thread per the Task Queue / event loop design.

A Group never touches the network or disk directly. Everything it needs
from the outside world is injected as a Capabilities value — the explicit
per-group capability set that replaces the original source's process-wide
callback-table singleton, so two groups hosted by the same process can
never cross-wire their send/persist calls.
*/
package raft

import "emberraft/internal/wire"

// Capabilities is the set of operations a Group needs from its host.
// internal/runtime's event loop wires these to internal/transport and
// internal/journal when a group is added. LogPoll, Apply,
// NodeHasSufficientLogs and OnRemoveNode may be nil; the Group checks them
// before use.
type Capabilities struct {
	// SendRequestVote transmits a RequestVote RPC to peerID. Fire-and-forget;
	// the response arrives later via HandleRequestVoteResponse.
	SendRequestVote func(peerID uint32, req wire.RequestVote)

	// SendAppendEntries transmits an AppendEntries RPC (or heartbeat, when
	// req.Entries is nil) to peerID.
	SendAppendEntries func(peerID uint32, req wire.AppendEntries)

	// PersistTerm durably records current_term. Must not return until durable.
	PersistTerm func(term uint64) error

	// PersistVote durably records voted_for (nil means none). Must not
	// return until durable.
	PersistVote func(votedFor *uint32) error

	// PersistCommitIdx records commit_idx, written per-apply.
	PersistCommitIdx func(idx uint64) error

	// LogOffer durably appends one entry at index. Must not return until
	// durable.
	LogOffer func(index uint64, e wire.Entry) error

	// LogOfferBatch durably appends a contiguous run of entries.
	LogOfferBatch func(startIndex uint64, entries []wire.Entry) error

	// LogPoll returns the entry at index, if the journal still has it.
	LogPoll func(index uint64) (wire.Entry, bool)

	// LogPop discards any entries at or after fromIndex, used when a
	// follower's suffix conflicts with the leader's and must be overwritten.
	LogPop func(fromIndex uint64)

	// Apply delivers one committed entry to the host's state machine.
	Apply func(e wire.Entry)

	// NodeHasSufficientLogs reports whether nodeID's match_idx is close
	// enough to the leader's log to be promoted from non-voting to voting.
	NodeHasSufficientLogs func(nodeID uint32) bool

	// OnRemoveNode fires once, at apply time, when a RemoveNode entry takes
	// effect, while the leaving node's last-known (host, port) is still
	// available — the leader uses this to route a LEAVE_RESPONSE back to
	// the node that is now gone from the configuration.
	OnRemoveNode func(nodeID uint32, host string, port uint32)
}
