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

package runtime

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"emberraft/internal/compression"
	"emberraft/internal/config"
	emberrafterrors "emberraft/internal/errors"
	"emberraft/internal/journal"
	"emberraft/internal/logging"
	"emberraft/internal/raft"
	"emberraft/internal/transport"
	"emberraft/internal/wire"
)

// NodeSpec describes one member of a group being added via AddGroup.
type NodeSpec struct {
	ID     uint32
	Host   string
	Port   uint32
	Voting raft.NodeVoting
}

// GroupSpec is the input to Evts.AddGroup: everything needed to host one
// Raft group in this process, including the journal engine backing its
// durable state. Passing Engine nil hosts the group on a volatile
// MemEngine, for tests and demos.
type GroupSpec struct {
	Identity string
	SelfID   uint32
	Nodes    []NodeSpec
	Engine   journal.Engine
}

// Evts is the Dispatcher / Event Loop: the single goroutine that owns every
// hosted Group, the Peer Connection Registry, and the journals backing
// them. Every other goroutine — submitters, the TCP accept loop, readLoop
// callbacks — communicates with it only through the Task Queue.
type Evts struct {
	cfg    config.LoopConfig
	logger *logging.Logger

	electionCfg   config.ElectionConfig
	promotionCfg  config.PromotionConfig
	reconnectCfg  config.ReconnectConfig
	heartbeatEvery time.Duration

	listener net.Listener

	registry *transport.Registry
	groups   *raft.GroupRegistry
	journals map[string]*journal.Journal

	tasks      *TaskQueue
	rendezvous *Rendezvous

	// applyCallback delivers one committed Normal entry's payload to the
	// embedding host's state machine. Set via OnApply before the first
	// AddGroup; nil means committed entries are acknowledged but otherwise
	// discarded, which is enough for tests that only care about commit
	// rendezvous semantics.
	applyCallback func(identity string, entry wire.Entry)

	stopCh   chan struct{}
	stopOnce sync.Once
	doneCh   chan struct{}
	freeOnce sync.Once
}

// OnApply registers the callback invoked once per committed Normal entry,
// per the embedding API's external apply-callback collaborator. Must be
// called before AddGroup; not safe to change while groups are hosted.
func (e *Evts) OnApply(fn func(identity string, entry wire.Entry)) {
	e.applyCallback = fn
}

// Make constructs an Evts bound to self_port, per the embedding API's
// make(self_port). The listener is opened immediately so peers can dial in
// before Once starts the loop, but no bytes are processed until then.
func Make(cfg config.LoopConfig, electionCfg config.ElectionConfig, promotionCfg config.PromotionConfig, reconnectCfg config.ReconnectConfig, heartbeatEvery time.Duration) (*Evts, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.SelfPort))
	if err != nil {
		return nil, fmt.Errorf("runtime: listen on port %d: %w", cfg.SelfPort, err)
	}

	e := &Evts{
		cfg:            cfg,
		logger:         logging.NewLogger("runtime"),
		electionCfg:    electionCfg,
		promotionCfg:   promotionCfg,
		reconnectCfg:   reconnectCfg,
		heartbeatEvery: heartbeatEvery,
		listener:       ln,
		groups:         raft.NewGroupRegistry(),
		journals:       make(map[string]*journal.Journal),
		tasks:          NewTaskQueue(256),
		rendezvous:     NewRendezvous(),
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
	}
	e.registry = transport.NewRegistry(reconnectCfg, e.onConnected, e.onBytes)
	return e, nil
}

// Free tears Evts down: stops the loop, closes the listener, and closes
// the Peer Connection Registry (which in turn closes every Connection).
// Per the embedding API's free(Evts). Idempotent, and safe to call after
// a LEAVE_RESPONSE already stopped the loop.
func (e *Evts) Free() error {
	var err error
	e.freeOnce.Do(func() {
		e.signalStop()
		<-e.doneCh
		e.listener.Close()
		err = e.registry.Close()
	})
	return err
}

func (e *Evts) signalStop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
}

// Once runs the event loop until Free is called, per the embedding API's
// once(Evts). It accepts inbound connections on a background goroutine
// (handing each one to the registry, which drives its read loop) while the
// loop thread itself only ever: drains the task queue, ticks every hosted
// group's timers, and scans for connections to reconnect.
func (e *Evts) Once() {
	go e.acceptLoop()

	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()
	defer close(e.doneCh)

	for {
		select {
		case <-e.stopCh:
			return
		case fn := <-e.tasks.Ready():
			// Task arrival is its own wakeup: inbound frames and embedder
			// calls run immediately, not on the next timer edge.
			fn()
			e.tasks.DrainOnce()
		case <-ticker.C:
			e.tasks.DrainOnce()
			now := time.Now()
			e.groups.Tick(now)
			for _, conn := range e.registry.Disconnected() {
				e.registry.Notify(conn)
			}
		}
	}
}

func (e *Evts) acceptLoop() {
	for {
		conn, err := e.listener.Accept()
		if err != nil {
			select {
			case <-e.stopCh:
				return
			default:
				e.logger.Warn("accept failed", "error", err.Error())
				return
			}
		}
		e.registry.Adopt(conn)
	}
}

// AddGroup registers a new Raft group, per the embedding API's
// add_group(Evts, Group). If engine durably recorded prior state (a
// restart, not a first boot), the group is restored from it rather than
// started fresh. Safe to call from any goroutine; the actual registration
// happens on the loop thread.
func (e *Evts) AddGroup(spec GroupSpec) error {
	done := make(chan error, 1)
	e.tasks.Submit(func() {
		done <- e.addGroupLocked(spec)
	})
	return <-done
}

func (e *Evts) addGroupLocked(spec GroupSpec) error {
	identity := wire.NewIdentity(spec.Identity)
	if _, exists := e.groups.Get(identity.String()); exists {
		return emberrafterrors.GroupAlreadyHosted(spec.Identity)
	}

	nodes := make(map[uint32]*raft.Node, len(spec.Nodes))
	for _, n := range spec.Nodes {
		if _, dup := nodes[n.ID]; dup {
			return emberrafterrors.DuplicateNodeID(n.ID)
		}
		nodes[n.ID] = &raft.Node{ID: n.ID, Host: n.Host, Port: n.Port, Voting: n.Voting, NextIdx: 1}
	}

	engine := spec.Engine
	if engine == nil {
		engine = journal.NewMemEngine()
	}
	jr := journal.New(engine)
	e.journals[identity.String()] = jr

	caps := e.buildCapabilities(identity, jr)
	now := time.Now()
	g := raft.NewGroup(identity, spec.SelfID, nodes, caps, e.electionCfg, e.promotionCfg, e.heartbeatEvery, now)

	if last := jr.LastIndex(); last > 0 {
		log := make([]wire.Entry, 0, last+1)
		log = append(log, wire.Entry{Index: 0, Term: 0, Type: wire.EntryNormal})
		for idx := uint64(1); idx <= last; idx++ {
			if entry, ok := jr.GetEntry(idx); ok {
				log = append(log, entry)
			}
		}
		g.Restore(jr.LoadTerm(), jr.LoadVote(), log, jr.LoadCommitIdx())
	}

	e.groups.AddGroup(g, now)
	e.dialGroupPeers(g, nodes)
	return nil
}

// dialGroupPeers eagerly opens outbound connections to every configured
// peer and sends a HANDSHAKE, rather than waiting for the first RPC to
// need one.
func (e *Evts) dialGroupPeers(g *raft.Group, nodes map[uint32]*raft.Node) {
	self, ok := nodes[g.SelfID]
	if !ok {
		return
	}
	for id, n := range nodes {
		if id == g.SelfID {
			continue
		}
		conn := e.registry.FindOrCreate(n.Host, n.Port)
		e.sendHandshake(conn, g.Identity, g.SelfID, self.Host, self.Port)
	}
}

// RemoveGroup unregisters a group, per the embedding API's
// remove_group(Evts, identity). The group's journal is closed; peer
// connections are left for the registry's own lifecycle since they may
// still be shared by other hosted groups dialed to the same host:port.
func (e *Evts) RemoveGroup(identity string) {
	done := make(chan struct{})
	e.tasks.Submit(func() {
		key := wire.NewIdentity(identity).String()
		e.groups.RemoveGroup(key)
		if jr, ok := e.journals[key]; ok {
			jr.Close()
			delete(e.journals, key)
		}
		close(done)
	})
	<-done
}

// Submit appends payload as a new entry to the named group's log and
// blocks until it commits, per the embedding API's
// submit(Evts, identity, entry) -> commit_result. Returns NotLeader
// (wrapping the current leader's address, if known) when this node does
// not host the leader for identity.
func (e *Evts) Submit(ctx context.Context, identity string, payload []byte) (uint64, error) {
	key := wire.NewIdentity(identity).String()
	type outcome struct {
		index  uint64
		handle *WakeHandle
		err    error
	}
	result := make(chan outcome, 1)

	e.tasks.Submit(func() {
		g, ok := e.groups.Get(key)
		if !ok {
			result <- outcome{err: emberrafterrors.UnknownGroup(identity)}
			return
		}
		// Register the rendezvous slot at the expected index before
		// recv_entry runs: a single-node group commits and wakes
		// synchronously inside SubmitEntry, and the wake must find the
		// slot already in place.
		rkey := RendezvousKey{Identity: key, Index: g.LastLogIndex() + 1}
		handle := e.rendezvous.Register(rkey)
		index, err := g.SubmitEntry(payload)
		if err != nil {
			e.rendezvous.reap(rkey, handle)
			result <- outcome{err: err}
			return
		}
		result <- outcome{index: index, handle: handle}
	})

	o := <-result
	if o.err != nil {
		return 0, o.err
	}
	if err := e.rendezvous.Wait(ctx, RendezvousKey{Identity: key, Index: o.index}, o.handle); err != nil {
		return o.index, err
	}
	return o.index, nil
}

// AddNode proposes nodeID as a new non-voting member of identity's group,
// dialing it immediately so replication can start catching it up before
// its AddVoter entry is ever proposed. Used by the admin console, not part
// of the core embedding API.
func (e *Evts) AddNode(identity string, nodeID uint32, host string, port uint32) error {
	done := make(chan error, 1)
	e.tasks.Submit(func() {
		key := wire.NewIdentity(identity).String()
		g, ok := e.groups.Get(key)
		if !ok {
			done <- emberrafterrors.UnknownGroup(identity)
			return
		}
		conn := e.registry.FindOrCreate(host, port)
		if self, selfOK := g.Node(g.SelfID); selfOK {
			e.sendHandshake(conn, g.Identity, g.SelfID, self.Host, self.Port)
		}
		_, err := g.ProposeAddNonvoting(nodeID, host, port)
		done <- err
	})
	return <-done
}

// RemoveNode proposes nodeID's removal from identity's group. Used by the
// admin console to force a node out of a group it can no longer reach.
func (e *Evts) RemoveNode(identity string, nodeID uint32) error {
	done := make(chan error, 1)
	e.tasks.Submit(func() {
		key := wire.NewIdentity(identity).String()
		g, ok := e.groups.Get(key)
		if !ok {
			done <- emberrafterrors.UnknownGroup(identity)
			return
		}
		_, err := g.ProposeRemoveNode(nodeID)
		done <- err
	})
	return <-done
}

// GroupStatus summarizes one hosted group's state, for admin inspection.
type GroupStatus struct {
	Identity    string
	SelfID      uint32
	Role        string
	Term        uint64
	CommitIndex uint64
	LeaderID    uint32
	HasLeader   bool
}

// Status returns a snapshot of identity's group state, or false if this
// process does not host it.
func (e *Evts) Status(identity string) (GroupStatus, bool) {
	result := make(chan GroupStatus, 1)
	found := make(chan bool, 1)
	e.tasks.Submit(func() {
		key := wire.NewIdentity(identity).String()
		g, ok := e.groups.Get(key)
		if !ok {
			found <- false
			result <- GroupStatus{}
			return
		}
		leaderID, hasLeader := g.Leader()
		found <- true
		result <- GroupStatus{
			Identity:    identity,
			SelfID:      g.SelfID,
			Role:        g.Role().String(),
			Term:        g.Term(),
			CommitIndex: g.CommitIndex(),
			LeaderID:    leaderID,
			HasLeader:   hasLeader,
		}
	})
	return <-result, <-found
}

// onConnected is called (by transport.Registry, on whatever goroutine
// completed the dial — the loop thread on the eager first dial, a
// reconnect goroutine afterward — or on the accept goroutine for an
// inbound connection) the moment a Connection reaches the Connected state. It re-introduces this node to the peer with a HANDSHAKE
// per hosted group, so a reconnected peer regains its binding and codec.
// Only enqueues; the handshakes go out on the loop thread. TrySubmit keeps
// a dial performed by the loop thread itself from blocking on a full
// queue — a dropped handshake is resent after the next reconnect.
func (e *Evts) onConnected(conn *transport.Connection) {
	e.tasks.TrySubmit(func() {
		e.groups.Each(func(g *raft.Group) {
			if self, ok := g.Node(g.SelfID); ok {
				e.sendHandshake(conn, g.Identity, g.SelfID, self.Host, self.Port)
			}
		})
	})
}

// onBytes is called (on the Connection's readLoop goroutine) for every
// fully-reassembled frame. It only enqueues a task; all decoding that
// touches Group state happens on the loop thread.
func (e *Evts) onBytes(conn *transport.Connection, payload []byte) {
	e.tasks.Submit(func() {
		e.handleFrame(conn, payload)
	})
}

func (e *Evts) handleFrame(conn *transport.Connection, payload []byte) {
	msg, err := wire.Decode(payload)
	if err != nil {
		e.logger.Warn("decode failed", "error", err.Error())
		return
	}

	switch msg.Type {
	case wire.MsgHandshake:
		e.handleHandshake(conn, msg)
	case wire.MsgHandshakeResponse:
		e.handleHandshakeResponse(conn, msg)
	case wire.MsgLeave:
		e.handleLeave(conn, msg)
	case wire.MsgLeaveResponse:
		e.handleLeaveResponse(conn, msg)
	case wire.MsgRequestVote:
		e.handleRequestVote(conn, msg)
	case wire.MsgRequestVoteResponse:
		e.handleRequestVoteResponse(msg)
	case wire.MsgAppendEntries:
		e.handleAppendEntries(conn, msg)
	case wire.MsgAppendEntriesResponse:
		e.handleAppendEntriesResponse(msg)
	default:
		e.logger.Warn("unknown message type", "type", msg.Type.String())
	}
}

func (e *Evts) sendHandshake(conn *transport.Connection, identity wire.Identity, selfID uint32, selfHost string, selfPort uint32) {
	body, err := wire.Encode(&wire.Message{
		Type:     wire.MsgHandshake,
		NodeID:   selfID,
		Identity: identity,
		Body:     &wire.Handshake{Host: selfHost, Port: selfPort, SupportedCodecs: compression.SupportedBitset()},
	})
	if err != nil {
		return
	}
	conn.Send(body)
}

// handleHandshake implements the HANDSHAKE routing rule: a non-leader
// always replies success=false with the current leader's address, if
// known, so the peer can redirect; a leader admits a sender it does not
// already know as a new non-voting member before replying success. A
// handshake naming a group this process does not host is dropped.
func (e *Evts) handleHandshake(conn *transport.Connection, msg *wire.Message) {
	hs, ok := msg.Body.(*wire.Handshake)
	if !ok {
		return
	}
	identity := msg.Identity.String()
	g, ok := e.groups.Get(identity)
	if !ok {
		return
	}

	negotiated := compression.Negotiate(compression.SupportedBitset(), hs.SupportedCodecs)
	conn.SetCodec(negotiated)
	conn.Bind(identity, msg.NodeID)

	resp := &wire.HandshakeResponse{NegotiatedCodec: negotiated}
	if g.Role() != raft.RoleLeader {
		resp.Success = false
		if host, port, hasLeader := g.LeaderAddr(); hasLeader {
			resp.LeaderHost = host
			resp.LeaderPort = port
		}
	} else {
		if _, known := g.Node(msg.NodeID); !known {
			if _, err := g.ProposeAddNonvoting(msg.NodeID, hs.Host, hs.Port); err != nil {
				e.logger.Warn("propose add nonvoting failed", "group", identity, "node", strconv.FormatUint(uint64(msg.NodeID), 10), "error", err.Error())
			}
		}
		resp.Success = true
	}

	body, err := wire.Encode(&wire.Message{
		Type:     wire.MsgHandshakeResponse,
		NodeID:   g.SelfID,
		Identity: msg.Identity,
		Body:     resp,
	})
	if err != nil {
		return
	}
	conn.Send(body)
}

func (e *Evts) handleHandshakeResponse(conn *transport.Connection, msg *wire.Message) {
	resp, ok := msg.Body.(*wire.HandshakeResponse)
	if !ok {
		return
	}
	conn.SetCodec(resp.NegotiatedCodec)
	conn.Bind(msg.Identity.String(), msg.NodeID)
}

func (e *Evts) handleLeave(conn *transport.Connection, msg *wire.Message) {
	identity := msg.Identity.String()
	g, ok := e.groups.Get(identity)
	if !ok {
		return
	}
	if _, err := g.ProposeRemoveNode(msg.NodeID); err != nil {
		e.logger.Warn("propose remove node failed", "group", identity, "error", err.Error())
	}
}

// handleLeaveResponse is the supplemented shutdown trigger: a node that
// asked to leave its group and was told by the leader that the removal
// committed tears its process down rather than idling as an orphaned
// member of no group.
func (e *Evts) handleLeaveResponse(conn *transport.Connection, msg *wire.Message) {
	e.signalStop()
}

func (e *Evts) handleRequestVote(conn *transport.Connection, msg *wire.Message) {
	req, ok := msg.Body.(*wire.RequestVote)
	if !ok {
		return
	}
	identity := msg.Identity.String()
	g, ok := e.groups.Get(identity)
	if !ok {
		return
	}
	resp := g.HandleRequestVote(*req, time.Now())
	body, err := wire.Encode(&wire.Message{
		Type:     wire.MsgRequestVoteResponse,
		NodeID:   g.SelfID,
		Identity: msg.Identity,
		Body:     &resp,
	})
	if err != nil {
		return
	}
	conn.Send(body)
}

func (e *Evts) handleRequestVoteResponse(msg *wire.Message) {
	resp, ok := msg.Body.(*wire.RequestVoteResponse)
	if !ok {
		return
	}
	g, ok := e.groups.Get(msg.Identity.String())
	if !ok {
		return
	}
	g.HandleRequestVoteResponse(msg.NodeID, *resp, time.Now())
}

func (e *Evts) handleAppendEntries(conn *transport.Connection, msg *wire.Message) {
	req, ok := msg.Body.(*wire.AppendEntries)
	if !ok {
		return
	}
	identity := msg.Identity.String()
	g, ok := e.groups.Get(identity)
	if !ok {
		return
	}

	// Refuse the whole request if any payload fails to decode: no success
	// ack goes out, so the leader retries and nothing unreadable reaches
	// the log or the apply callback.
	if err := decompressEntries(req.Entries); err != nil {
		e.logger.Error("rejecting append entries", "group", identity, "error", err.Error())
		return
	}

	before := g.CommitIndex()
	resp := g.HandleAppendEntries(msg.NodeID, *req, time.Now())
	if after := g.CommitIndex(); after > before {
		e.rendezvous.WakeRange(identity, before+1, after)
	}

	body, err := wire.Encode(&wire.Message{
		Type:     wire.MsgAppendEntriesResponse,
		NodeID:   g.SelfID,
		Identity: msg.Identity,
		Body:     &resp,
	})
	if err != nil {
		return
	}
	conn.Send(body)
}

func (e *Evts) handleAppendEntriesResponse(msg *wire.Message) {
	resp, ok := msg.Body.(*wire.AppendEntriesResponse)
	if !ok {
		return
	}
	identity := msg.Identity.String()
	g, ok := e.groups.Get(identity)
	if !ok {
		return
	}
	before := g.CommitIndex()
	g.HandleAppendEntriesResponse(msg.NodeID, *resp, time.Now())
	if after := g.CommitIndex(); after > before {
		e.rendezvous.WakeRange(identity, before+1, after)
	}
}

// buildCapabilities wires a Group's Capabilities to this Evts' registry
// and journal, the one point where Raft's injected-dependency design meets
// the concrete network and disk implementations.
func (e *Evts) buildCapabilities(identity wire.Identity, jr *journal.Journal) raft.Capabilities {
	idStr := identity.String()

	send := func(t wire.MessageType, peerID uint32, body any, host string, port uint32) {
		conn := e.registry.FindOrCreate(host, port)
		if !e.registry.Usable(conn) {
			return
		}
		encoded, err := wire.Encode(&wire.Message{Type: t, NodeID: peerID, Identity: identity, Body: body})
		if err != nil {
			return
		}
		conn.Send(encoded)
	}

	return raft.Capabilities{
		SendRequestVote: func(peerID uint32, req wire.RequestVote) {
			if g, ok := e.groups.Get(idStr); ok {
				if n, ok := g.Node(peerID); ok {
					send(wire.MsgRequestVote, g.SelfID, &req, n.Host, n.Port)
				}
			}
		},
		SendAppendEntries: func(peerID uint32, req wire.AppendEntries) {
			g, ok := e.groups.Get(idStr)
			if !ok {
				return
			}
			n, ok := g.Node(peerID)
			if !ok {
				return
			}
			conn := e.registry.FindOrCreate(n.Host, n.Port)
			req.Entries = compressEntries(req.Entries, conn.Codec())
			send(wire.MsgAppendEntries, g.SelfID, &req, n.Host, n.Port)
		},
		PersistTerm:      jr.PersistTerm,
		PersistVote:      jr.PersistVote,
		PersistCommitIdx: jr.PersistCommitIdx,
		LogOffer:         jr.LogOffer,
		LogOfferBatch:    jr.LogOfferBatch,
		LogPoll:          jr.GetEntry,
		LogPop:           func(fromIndex uint64) {}, // inert: last-write-wins re-append covers the leader-overwrite case
		Apply: func(entry wire.Entry) {
			// Membership entries already took effect in applyMembershipEntry;
			// only Normal entries go to the external state machine. Waking
			// the rendezvous after the callback runs is what lets a blocked
			// Submit observe committed state, for every entry type.
			if entry.Type == wire.EntryNormal && e.applyCallback != nil {
				e.applyCallback(idStr, entry)
			}
			e.rendezvous.Wake(RendezvousKey{Identity: idStr, Index: entry.Index})
		},
		NodeHasSufficientLogs: nil, // fall back to Group's own CatchUpLag comparison
		OnRemoveNode: func(nodeID uint32, host string, port uint32) {
			conn, ok := e.registry.FindBound(idStr, nodeID)
			if !ok {
				conn = e.registry.FindOrCreate(host, port)
			}
			if !e.registry.Usable(conn) {
				return
			}
			encoded, err := wire.Encode(&wire.Message{
				Type:     wire.MsgLeaveResponse,
				NodeID:   nodeID,
				Identity: identity,
				Body:     &wire.LeaveResponse{},
			})
			if err != nil {
				return
			}
			conn.Send(encoded)
		},
	}
}

const compressionThreshold = 256

// compressorCache holds one Compressor per algorithm, reused across calls
// instead of re-initializing a zstd encoder/decoder per message. Touched
// only from the loop thread, so it needs no locking of its own.
var compressorCache = map[compression.Algorithm]*compression.Compressor{}

func compressorFor(algo compression.Algorithm) *compression.Compressor {
	if c, ok := compressorCache[algo]; ok {
		return c
	}
	cfg := compression.DefaultConfig()
	cfg.Algorithm = algo
	cfg.MinSize = compressionThreshold
	c := compression.NewCompressor(cfg)
	compressorCache[algo] = c
	return c
}

// compressEntries returns a copy of entries with every Normal-type payload
// prefixed by a one-byte codec tag: the negotiated algorithm's bit when
// the payload was worth compressing, CodecNone otherwise. Tagging every
// Normal payload keeps the frame self-descriptive even when the two ends
// disagree about whether a handshake completed. Membership entries are
// never touched: they are small and must decode identically everywhere.
func compressEntries(entries []wire.Entry, codec uint8) []wire.Entry {
	if len(entries) == 0 {
		return entries
	}
	algo := compression.AlgorithmForBit(codec)

	out := make([]wire.Entry, len(entries))
	for i, e := range entries {
		out[i] = e
		if e.Type != wire.EntryNormal {
			continue
		}
		tag := wire.CodecNone
		payload := e.Payload
		if algo != compression.AlgorithmNone && len(payload) >= compressionThreshold {
			if compressed, err := compressorFor(algo).Compress(payload); err == nil {
				tag = compression.BitFor(algo)
				payload = compressed
			}
		}
		tagged := make([]byte, 1+len(payload))
		tagged[0] = tag
		copy(tagged[1:], payload)
		out[i].Payload = tagged
	}
	return out
}

// decompressEntries reverses compressEntries in place, stripping the
// leading codec tag byte off each Normal entry's payload and inflating
// compressed ones. A payload that cannot be decoded — an unknown tag or a
// failed decompression — is an error, never silently passed through: what
// comes out of here is appended to the replicated log and fed to apply,
// and a garbage payload on one follower is a cross-node divergence no
// retry can repair.
func decompressEntries(entries []wire.Entry) error {
	for i, e := range entries {
		if e.Type != wire.EntryNormal || len(e.Payload) == 0 {
			continue
		}
		tag := e.Payload[0]
		body := e.Payload[1:]
		if tag == wire.CodecNone {
			entries[i].Payload = body
			continue
		}
		algo := compression.AlgorithmForBit(tag)
		if algo == compression.AlgorithmNone {
			return emberrafterrors.DecodeError(fmt.Sprintf("entry %d: unknown payload codec tag %#x", e.Index, tag))
		}
		raw, err := compressorFor(algo).Decompress(body, algo)
		if err != nil {
			return emberrafterrors.DecodeError(fmt.Sprintf("entry %d: %s payload: %v", e.Index, algo, err))
		}
		entries[i].Payload = raw
	}
	return nil
}
