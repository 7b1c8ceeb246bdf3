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

package journal

import (
	"sync"

	"emberraft/internal/wire"
)

// MemEngine is a volatile Engine backend with no fsync and no disk
// footprint, for tests and single-process demos where nothing needs to
// survive a restart.
type MemEngine struct {
	mu        sync.Mutex
	state     map[string][]byte
	entries   map[uint64]wire.Entry
	lastIndex uint64
}

// NewMemEngine creates an empty in-memory engine.
func NewMemEngine() *MemEngine {
	return &MemEngine{
		state:   make(map[string][]byte),
		entries: make(map[uint64]wire.Entry),
	}
}

// Begin starts a new transaction against this engine.
func (e *MemEngine) Begin() *Txn {
	return newTxn(e)
}

func (e *MemEngine) apply(ops []op) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, o := range ops {
		switch o.kind {
		case opSetState:
			if o.value == nil {
				delete(e.state, o.key)
			} else {
				e.state[o.key] = o.value
			}
		case opAppendEntry:
			e.entries[o.index] = o.entry
			if o.index > e.lastIndex {
				e.lastIndex = o.index
			}
		case opAppendBatch:
			for i, entry := range o.entries {
				entry.Index = o.startIndex + uint64(i)
				e.entries[entry.Index] = entry
				if entry.Index > e.lastIndex {
					e.lastIndex = entry.Index
				}
			}
		case opPopHead, opPopTail:
			// Inert hooks, reserved for future compaction.
		}
	}
	return nil
}

// GetState returns the last written value for key, if any.
func (e *MemEngine) GetState(key string) ([]byte, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.state[key]
	return v, ok
}

// GetEntry returns the entry at index, if present.
func (e *MemEngine) GetEntry(index uint64) (wire.Entry, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.entries[index]
	return entry, ok
}

// Close is a no-op for MemEngine; there is nothing to release.
func (e *MemEngine) Close() error {
	return nil
}

// LastIndex returns the highest log index currently held, or 0 if none.
func (e *MemEngine) LastIndex() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastIndex
}
