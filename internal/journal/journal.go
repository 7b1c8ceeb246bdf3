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
Package journal implements the Journal Adapter: transactional persistence
of a Raft group's durable state keys ("term", "voted_for", "commit_idx")
and its log entries.

Two Engine implementations are provided: FileEngine (engine.go), a
synchronous backend that writes records straight to its files and fsyncs
them, used in production, and
MemEngine (memengine.go), a volatile backend used in tests and
single-process demos. Both satisfy the same transactional contract so a
Raft Group never depends on which one backs it.
*/
package journal

import (
	"encoding/binary"
	"fmt"

	"emberraft/internal/wire"
)

// State keys used by the Raft Group.
const (
	KeyTerm      = "term"
	KeyVotedFor  = "voted_for"
	KeyCommitIdx = "commit_idx"
)

type opKind int

const (
	opSetState opKind = iota
	opAppendEntry
	opAppendBatch
	opPopHead
	opPopTail
)

type op struct {
	kind       opKind
	key        string
	value      []byte
	index      uint64
	entry      wire.Entry
	startIndex uint64
	entries    []wire.Entry
}

// Engine is the durable backend a Txn commits its operations to. Both
// FileEngine and MemEngine implement it; apply is unexported because the
// Journal Adapter contract is closed to these two backends.
type Engine interface {
	Begin() *Txn
	apply(ops []op) error
	GetState(key string) ([]byte, bool)
	GetEntry(index uint64) (wire.Entry, bool)
	LastIndex() uint64
	Close() error
}

// Txn accumulates operations for one transaction. Nothing is visible to
// readers until Commit returns, and per the durability ordering in the
// design, Commit does not return until the write is durable.
type Txn struct {
	engine Engine
	ops    []op
	done   bool
}

func newTxn(e Engine) *Txn {
	return &Txn{engine: e}
}

// SetState stages a durable named scalar write.
func (t *Txn) SetState(key string, value []byte) {
	t.ops = append(t.ops, op{kind: opSetState, key: key, value: value})
}

// AppendEntry stages one log record keyed by index.
func (t *Txn) AppendEntry(index uint64, e wire.Entry) {
	t.ops = append(t.ops, op{kind: opAppendEntry, index: index, entry: e})
}

// AppendBatch stages a contiguous run of log records starting at startIndex.
func (t *Txn) AppendBatch(startIndex uint64, entries []wire.Entry) {
	t.ops = append(t.ops, op{kind: opAppendBatch, startIndex: startIndex, entries: entries})
}

// PopHead stages a hook for future log-compaction cleanup. Inert today.
func (t *Txn) PopHead() {
	t.ops = append(t.ops, op{kind: opPopHead})
}

// PopTail stages a hook for future leader-overwrite cleanup. Inert today.
func (t *Txn) PopTail() {
	t.ops = append(t.ops, op{kind: opPopTail})
}

// Commit durably applies every staged operation. It must not return until
// the underlying engine confirms the write is durable.
func (t *Txn) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.engine.apply(t.ops); err != nil {
		return fmt.Errorf("journal: commit failed: %w", err)
	}
	return nil
}

// Abort discards every staged operation without writing anything.
func (t *Txn) Abort() {
	t.done = true
	t.ops = nil
}

// Journal is the convenience API a Raft Group's capability set is built
// on: it wraps an Engine with the specific single-purpose durability calls
// named in the component design (persist_term, persist_vote, log_offer).
type Journal struct {
	engine Engine
}

// New wraps engine in a Journal.
func New(engine Engine) *Journal {
	return &Journal{engine: engine}
}

// Close releases the underlying engine's resources.
func (j *Journal) Close() error {
	return j.engine.Close()
}

// PersistTerm durably records current_term. Returns only after durable.
func (j *Journal) PersistTerm(term uint64) error {
	txn := j.engine.Begin()
	txn.SetState(KeyTerm, encodeUint64(term))
	return txn.Commit()
}

// PersistVote durably records voted_for. A nil votedFor records "none".
func (j *Journal) PersistVote(votedFor *uint32) error {
	txn := j.engine.Begin()
	if votedFor == nil {
		txn.SetState(KeyVotedFor, nil)
	} else {
		txn.SetState(KeyVotedFor, encodeUint32(*votedFor))
	}
	return txn.Commit()
}

// PersistCommitIdx records commit_idx. Per the durability ordering this
// may be written opportunistically (not synchronously fsynced on every
// call is acceptable), but this implementation persists per-apply,
// resolving the cadence Open Question toward simplicity.
func (j *Journal) PersistCommitIdx(idx uint64) error {
	txn := j.engine.Begin()
	txn.SetState(KeyCommitIdx, encodeUint64(idx))
	return txn.Commit()
}

// LoadTerm returns the last persisted current_term, or 0 if none.
func (j *Journal) LoadTerm() uint64 {
	v, ok := j.engine.GetState(KeyTerm)
	if !ok {
		return 0
	}
	return decodeUint64(v)
}

// LoadVote returns the last persisted voted_for, or nil if none.
func (j *Journal) LoadVote() *uint32 {
	v, ok := j.engine.GetState(KeyVotedFor)
	if !ok || len(v) == 0 {
		return nil
	}
	id := decodeUint32(v)
	return &id
}

// LoadCommitIdx returns the last persisted commit_idx, or 0 if none.
func (j *Journal) LoadCommitIdx() uint64 {
	v, ok := j.engine.GetState(KeyCommitIdx)
	if !ok {
		return 0
	}
	return decodeUint64(v)
}

// LogOffer durably appends one entry. Returns only after durable.
func (j *Journal) LogOffer(index uint64, e wire.Entry) error {
	txn := j.engine.Begin()
	txn.AppendEntry(index, e)
	return txn.Commit()
}

// LogOfferBatch durably appends a contiguous run of entries.
func (j *Journal) LogOfferBatch(startIndex uint64, entries []wire.Entry) error {
	txn := j.engine.Begin()
	txn.AppendBatch(startIndex, entries)
	return txn.Commit()
}

// GetEntry returns the entry at index, if present.
func (j *Journal) GetEntry(index uint64) (wire.Entry, bool) {
	return j.engine.GetEntry(index)
}

// LastIndex returns the highest log index durably recorded, or 0 for an
// empty log. Used at startup to replay the log into a freshly constructed
// Group.
func (j *Journal) LastIndex() uint64 {
	return j.engine.LastIndex()
}

func encodeUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

func decodeUint64(b []byte) uint64 {
	if len(b) < 8 {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func encodeUint32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func decodeUint32(b []byte) uint32 {
	if len(b) < 4 {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}
