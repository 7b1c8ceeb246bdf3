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
Package runtime implements the loop-thread side of emberraft: the Commit
Rendezvous, the Task Queue, and the event loop (Evts) that ties them
together with the Group Registry and Peer Connection Registry.

Rendezvous is the only structure here touched by both the loop thread and
submitter threads; it is internally synchronized by a mutex guarding a
plain map of single-use channels, per the design notes' recommendation
over the source's fd-based wait tree.
*/
package runtime

import (
	"context"
	"sync"

	emberrafterrors "emberraft/internal/errors"
)

// RendezvousKey identifies one pending submission by group identity and
// target log index.
type RendezvousKey struct {
	Identity string
	Index    uint64
}

// WakeHandle is the suspension slot returned by Register. Submitters pass
// it back into Wait; the loop thread never sees it directly, only the key.
type WakeHandle struct {
	ID string
	ch chan struct{}
}

// Rendezvous is the keyed multi-waiter structure over (group_identity,
// log_index) described in the Commit Rendezvous component.
type Rendezvous struct {
	mu      sync.Mutex
	waiters map[RendezvousKey]*WakeHandle
}

// NewRendezvous creates an empty Rendezvous.
func NewRendezvous() *Rendezvous {
	return &Rendezvous{waiters: make(map[RendezvousKey]*WakeHandle)}
}

// Register creates a suspension slot for key and returns its wake handle.
// If a slot already exists for key (e.g. a duplicate SubmitEntry retried at
// the same index), the existing handle is returned.
func (r *Rendezvous) Register(key RendezvousKey) *WakeHandle {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.waiters[key]; ok {
		return h
	}
	h := &WakeHandle{ID: GenerateWakeHandleID(), ch: make(chan struct{})}
	r.waiters[key] = h
	return h
}

// Wait blocks until Wake(key) fires or ctx is done, whichever comes first.
// A nil error means the wake fired. On timeout/cancellation the pending
// slot is reaped, but per the concurrency model a later commit still
// persists; the caller must treat the returned error as "uncertain", not
// "failed".
func (r *Rendezvous) Wait(ctx context.Context, key RendezvousKey, handle *WakeHandle) error {
	select {
	case <-handle.ch:
		return nil
	case <-ctx.Done():
		r.reap(key, handle)
		return emberrafterrors.SubmitTimeout()
	}
}

// reap removes the slot for key if it still belongs to handle (a wake may
// have raced the timeout and already replaced or removed it).
func (r *Rendezvous) reap(key RendezvousKey, handle *WakeHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.waiters[key]; ok && cur == handle {
		delete(r.waiters, key)
	}
}

// Wake fires the slot for key, if one is pending, and removes it.
// Idempotent: waking an unregistered key is a no-op. Must be called only
// after the apply callback has run for key's index, so a woken submitter
// observes committed state.
func (r *Rendezvous) Wake(key RendezvousKey) {
	r.mu.Lock()
	h, ok := r.waiters[key]
	if ok {
		delete(r.waiters, key)
	}
	r.mu.Unlock()

	if ok {
		close(h.ch)
	}
}

// WakeRange wakes every pending key for identity with index in [from, to],
// used after an AppendEntriesResponse advances commit_idx.
func (r *Rendezvous) WakeRange(identity string, from, to uint64) {
	for idx := from; idx <= to; idx++ {
		r.Wake(RendezvousKey{Identity: identity, Index: idx})
	}
}
