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
	"testing"
	"time"

	"emberraft/internal/config"
	"emberraft/internal/wire"
)

func testCapabilities() Capabilities {
	return Capabilities{
		PersistTerm:      func(uint64) error { return nil },
		PersistVote:      func(*uint32) error { return nil },
		PersistCommitIdx: func(uint64) error { return nil },
		LogOffer:         func(uint64, wire.Entry) error { return nil },
		LogPop:           func(uint64) {},
		Apply:            func(wire.Entry) {},
	}
}

func TestGroupRegistryAddGetRemove(t *testing.T) {
	now := time.Unix(0, 0)
	nodes := map[uint32]*Node{1: {ID: 1, Voting: NodeVoter}, 2: {ID: 2, Voting: NodeVoter}}
	g := NewGroup(wire.NewIdentity("alpha"), 1, nodes, testCapabilities(), config.DefaultElectionConfig(), config.DefaultPromotionConfig(), 100*time.Millisecond, now)

	r := NewGroupRegistry()
	r.AddGroup(g, now)

	if r.Len() != 1 {
		t.Fatalf("expected 1 registered group, got %d", r.Len())
	}
	got, ok := r.Get(wire.NewIdentity("alpha").String())
	if !ok || got != g {
		t.Fatalf("Get did not return the registered group")
	}

	r.RemoveGroup(wire.NewIdentity("alpha").String())
	if _, ok := r.Get(wire.NewIdentity("alpha").String()); ok {
		t.Fatal("expected group to be gone after RemoveGroup")
	}
	if r.Len() != 0 {
		t.Fatalf("expected 0 groups after removal, got %d", r.Len())
	}
}

func TestGroupRegistryTickAdvancesEveryGroup(t *testing.T) {
	now := time.Unix(0, 0)
	r := NewGroupRegistry()

	electionCfg := config.ElectionConfig{TimeoutMin: 5 * time.Millisecond, TimeoutMax: 10 * time.Millisecond}
	for _, name := range []string{"g1", "g2"} {
		nodes := map[uint32]*Node{1: {ID: 1, Voting: NodeVoter}}
		g := NewGroup(wire.NewIdentity(name), 1, nodes, testCapabilities(), electionCfg, config.DefaultPromotionConfig(), 100*time.Millisecond, now)
		r.AddGroup(g, now)
	}

	// Both single-node groups bootstrap straight to leader on AddGroup;
	// Tick must not disturb that.
	r.Tick(now.Add(time.Second))

	for _, name := range []string{"g1", "g2"} {
		g, ok := r.Get(wire.NewIdentity(name).String())
		if !ok {
			t.Fatalf("missing group %s", name)
		}
		if g.Role() != RoleLeader {
			t.Errorf("expected %s to remain Leader after Tick, got %s", name, g.Role())
		}
	}
}

func TestMultipleGroupsAreIndependent(t *testing.T) {
	now := time.Unix(0, 0)
	r := NewGroupRegistry()

	nodesA := map[uint32]*Node{1: {ID: 1, Voting: NodeVoter}}
	gA := NewGroup(wire.NewIdentity("a"), 1, nodesA, testCapabilities(), config.DefaultElectionConfig(), config.DefaultPromotionConfig(), 100*time.Millisecond, now)
	r.AddGroup(gA, now)

	nodesB := map[uint32]*Node{1: {ID: 1, Voting: NodeVoter}, 2: {ID: 2, Voting: NodeVoter}}
	gB := NewGroup(wire.NewIdentity("b"), 1, nodesB, testCapabilities(), config.DefaultElectionConfig(), config.DefaultPromotionConfig(), 100*time.Millisecond, now)
	r.AddGroup(gB, now)

	if gA.Role() != RoleLeader {
		t.Error("single-node group a should have bootstrapped to leader")
	}
	if gB.Role() != RoleFollower {
		t.Error("two-node group b should not have bootstrapped to leader")
	}
}
