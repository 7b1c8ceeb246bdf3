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
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"emberraft/internal/config"
	emberrafterrors "emberraft/internal/errors"
	"emberraft/internal/journal"
	"emberraft/internal/raft"
	"emberraft/internal/wire"
)

func testElectionConfig() config.ElectionConfig {
	return config.ElectionConfig{TimeoutMin: 30 * time.Millisecond, TimeoutMax: 60 * time.Millisecond}
}

func testLoopConfig(port uint16) config.LoopConfig {
	return config.LoopConfig{TickInterval: 10 * time.Millisecond, SelfPort: port}
}

func newTestEvts(t *testing.T, port uint16) *Evts {
	t.Helper()
	e, err := Make(testLoopConfig(port), testElectionConfig(), config.DefaultPromotionConfig(), config.DefaultReconnectConfig(), 10*time.Millisecond)
	if err != nil {
		t.Fatalf("Make() error = %v", err)
	}
	t.Cleanup(func() { e.Free() })
	return e
}

func TestEvtsSingleNodeAutoLeaderCommitsSubmittedEntry(t *testing.T) {
	e := newTestEvts(t, 17001)

	applied := make(chan []byte, 1)
	e.OnApply(func(identity string, entry wire.Entry) {
		select {
		case applied <- entry.Payload:
		default:
		}
	})

	go e.Once()

	if err := e.AddGroup(GroupSpec{
		Identity: "g1",
		SelfID:   1,
		Nodes:    []NodeSpec{{ID: 1, Host: "127.0.0.1", Port: 17001, Voting: raft.NodeVoter}},
	}); err != nil {
		t.Fatalf("AddGroup() error = %v", err)
	}

	waitForLeader(t, e, "g1")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	index, err := e.Submit(ctx, "g1", []byte("hello"))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if index == 0 {
		t.Fatalf("Submit() index = 0, want > 0")
	}

	select {
	case payload := <-applied:
		if string(payload) != "hello" {
			t.Errorf("applied payload = %q, want %q", payload, "hello")
		}
	case <-time.After(time.Second):
		t.Fatal("apply callback was never invoked")
	}
}

func waitForLeader(t *testing.T, e *Evts, identity string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if status, ok := e.Status(identity); ok && status.HasLeader {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("group %q never elected a leader", identity)
}

func TestEvtsSubmitToUnhostedGroupReturnsUnknownGroup(t *testing.T) {
	e := newTestEvts(t, 17002)
	go e.Once()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := e.Submit(ctx, "missing", []byte("x")); emberrafterrors.CodeOf(err) != emberrafterrors.CodeUnknownGroup {
		t.Fatalf("Submit() error = %v, want CodeUnknownGroup", err)
	}
}

func TestEvtsAddGroupRejectsDuplicateIdentity(t *testing.T) {
	e := newTestEvts(t, 17003)
	go e.Once()

	spec := GroupSpec{Identity: "dup", SelfID: 1, Nodes: []NodeSpec{{ID: 1, Host: "127.0.0.1", Port: 17003, Voting: raft.NodeVoter}}}
	if err := e.AddGroup(spec); err != nil {
		t.Fatalf("first AddGroup() error = %v", err)
	}
	if err := e.AddGroup(spec); emberrafterrors.CodeOf(err) != emberrafterrors.CodeGroupExists {
		t.Fatalf("second AddGroup() error = %v, want CodeGroupExists", err)
	}
}

func TestEvtsRemoveGroupUnhostsGroup(t *testing.T) {
	e := newTestEvts(t, 17004)
	go e.Once()

	if err := e.AddGroup(GroupSpec{
		Identity: "temp",
		SelfID:   1,
		Nodes:    []NodeSpec{{ID: 1, Host: "127.0.0.1", Port: 17004, Voting: raft.NodeVoter}},
	}); err != nil {
		t.Fatalf("AddGroup() error = %v", err)
	}
	waitForLeader(t, e, "temp")

	e.RemoveGroup("temp")

	if _, ok := e.Status("temp"); ok {
		t.Fatalf("Status() after RemoveGroup() = ok, want not hosted")
	}
}

func TestEvtsAddGroupRestoresPriorStateFromJournal(t *testing.T) {
	dir := t.TempDir()

	first := newTestEvts(t, 17005)
	go first.Once()

	engine1, err := journal.NewFileEngine(dir)
	if err != nil {
		t.Fatalf("NewFileEngine() error = %v", err)
	}
	if err := first.AddGroup(GroupSpec{
		Identity: "durable",
		SelfID:   1,
		Nodes:    []NodeSpec{{ID: 1, Host: "127.0.0.1", Port: 17005, Voting: raft.NodeVoter}},
		Engine:   engine1,
	}); err != nil {
		t.Fatalf("AddGroup() error = %v", err)
	}
	waitForLeader(t, first, "durable")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	wantIndex, err := first.Submit(ctx, "durable", []byte("persisted"))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	first.Free()

	second := newTestEvts(t, 17006)
	go second.Once()

	engine2, err := journal.NewFileEngine(dir)
	if err != nil {
		t.Fatalf("NewFileEngine() (second open) error = %v", err)
	}
	if err := second.AddGroup(GroupSpec{
		Identity: "durable",
		SelfID:   1,
		Nodes:    []NodeSpec{{ID: 1, Host: "127.0.0.1", Port: 17006, Voting: raft.NodeVoter}},
		Engine:   engine2,
	}); err != nil {
		t.Fatalf("AddGroup() (restore) error = %v", err)
	}

	status, ok := second.Status("durable")
	if !ok {
		t.Fatalf("Status() after restore = not hosted")
	}
	if status.CommitIndex < wantIndex {
		t.Fatalf("CommitIndex after restore = %d, want >= %d", status.CommitIndex, wantIndex)
	}
}

// dialRawHandshake opens a bare TCP connection to addr, sends a HANDSHAKE
// for identity claiming nodeID, and returns the decoded HANDSHAKE_RESPONSE.
// The node also sends its own HANDSHAKEs on the accepted connection; those
// are skipped, and any other frame type fails the test.
func dialRawHandshake(t *testing.T, addr string, identity string, nodeID uint32) *wire.HandshakeResponse {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Dial(%s) error = %v", addr, err)
	}
	defer conn.Close()

	body, err := wire.Encode(&wire.Message{
		Type:     wire.MsgHandshake,
		NodeID:   nodeID,
		Identity: wire.NewIdentity(identity),
		Body:     &wire.Handshake{Host: "127.0.0.1", Port: uint32(nodeID + 20000), SupportedCodecs: wire.CodecNone},
	})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if err := wire.WriteFrame(conn, body); err != nil {
		t.Fatalf("WriteFrame() error = %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	framer := wire.NewFramer(0)
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			frames, ferr := framer.Feed(buf[:n])
			for _, f := range frames {
				msg, derr := wire.Decode(f)
				if derr != nil {
					t.Fatalf("Decode() error = %v", derr)
				}
				if _, isHandshake := msg.Body.(*wire.Handshake); isHandshake {
					continue
				}
				resp, ok := msg.Body.(*wire.HandshakeResponse)
				if !ok {
					t.Fatalf("Body type = %T, want *wire.HandshakeResponse", msg.Body)
				}
				return resp
			}
			if ferr != nil {
				t.Fatalf("Feed() error = %v", ferr)
			}
		}
		if err != nil {
			t.Fatalf("Read() error = %v before a HANDSHAKE_RESPONSE frame arrived", err)
		}
	}
}

func TestHandleHandshakeAdmitsNewPeerWhenLeader(t *testing.T) {
	e := newTestEvts(t, 17020)
	go e.Once()

	if err := e.AddGroup(GroupSpec{
		Identity: "join",
		SelfID:   1,
		Nodes:    []NodeSpec{{ID: 1, Host: "127.0.0.1", Port: 17020, Voting: raft.NodeVoter}},
	}); err != nil {
		t.Fatalf("AddGroup() error = %v", err)
	}
	waitForLeader(t, e, "join")

	resp := dialRawHandshake(t, "127.0.0.1:17020", "join", 2)
	if !resp.Success {
		t.Fatalf("HandshakeResponse.Success = false, want true (leader should admit an unknown peer)")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		done := make(chan bool, 1)
		e.tasks.Submit(func() {
			g, ok := e.groups.Get(wire.NewIdentity("join").String())
			if !ok {
				done <- false
				return
			}
			_, known := g.Node(2)
			done <- known
		})
		if <-done {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("leader never admitted node 2 as a non-voting member after HANDSHAKE")
}

func TestHandleHandshakeRedirectsWhenNotLeader(t *testing.T) {
	ports := []uint16{17021, 17022, 17023}
	nodes := make([]NodeSpec, len(ports))
	for i, p := range ports {
		nodes[i] = NodeSpec{ID: uint32(i + 1), Host: "127.0.0.1", Port: uint32(p), Voting: raft.NodeVoter}
	}

	evs := make([]*Evts, len(ports))
	for i, p := range ports {
		e := newTestEvts(t, p)
		evs[i] = e
		go e.Once()
	}
	for i, e := range evs {
		if err := e.AddGroup(GroupSpec{Identity: "cluster2", SelfID: uint32(i + 1), Nodes: nodes}); err != nil {
			t.Fatalf("AddGroup(node %d) error = %v", i+1, err)
		}
	}

	var leader, follower *Evts
	var leaderPort uint16
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && leader == nil {
		for i, e := range evs {
			if status, ok := e.Status("cluster2"); ok && status.Role == "LEADER" {
				leader = e
				leaderPort = ports[i]
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	if leader == nil {
		t.Fatalf("cluster2 never elected a leader")
	}
	for _, e := range evs {
		if e != leader {
			follower = e
			break
		}
	}

	followerAddr := ""
	for i, e := range evs {
		if e == follower {
			followerAddr = "127.0.0.1:" + strconv.Itoa(int(ports[i]))
		}
	}

	resp := dialRawHandshake(t, followerAddr, "cluster2", 9)
	if resp.Success {
		t.Fatalf("HandshakeResponse.Success = true from a non-leader, want false")
	}
	if resp.LeaderPort != uint32(leaderPort) {
		t.Errorf("HandshakeResponse.LeaderPort = %d, want %d", resp.LeaderPort, leaderPort)
	}
}

func TestEvtsThreeNodeClusterElectsLeaderAndReplicates(t *testing.T) {
	ports := []uint16{17010, 17011, 17012}
	nodes := make([]NodeSpec, len(ports))
	for i, p := range ports {
		nodes[i] = NodeSpec{ID: uint32(i + 1), Host: "127.0.0.1", Port: uint32(p), Voting: raft.NodeVoter}
	}

	var mu sync.Mutex
	applied := make(map[string]int)

	evs := make([]*Evts, len(ports))
	for i, p := range ports {
		e := newTestEvts(t, p)
		evs[i] = e
		go e.Once()
	}
	for i, e := range evs {
		e.OnApply(func(identity string, entry wire.Entry) {
			mu.Lock()
			applied[string(entry.Payload)]++
			mu.Unlock()
		})
		if err := e.AddGroup(GroupSpec{Identity: "cluster", SelfID: uint32(i + 1), Nodes: nodes}); err != nil {
			t.Fatalf("AddGroup(node %d) error = %v", i+1, err)
		}
	}

	var leader *Evts
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && leader == nil {
		for _, e := range evs {
			if status, ok := e.Status("cluster"); ok && status.Role == "LEADER" {
				leader = e
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	if leader == nil {
		t.Fatalf("cluster never elected a leader")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := leader.Submit(ctx, "cluster", []byte("replicated")); err != nil {
		t.Fatalf("Submit() on leader error = %v", err)
	}

	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		count := applied["replicated"]
		mu.Unlock()
		if count == len(ports) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("entry did not replicate to all nodes within the deadline")
}
