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

import "time"

// GroupRegistry hosts every Raft Group running in this process, keyed by
// its opaque identity. Like Group itself, GroupRegistry is touched only
// by the single loop thread and needs no internal locking.
type GroupRegistry struct {
	groups map[string]*Group
}

// NewGroupRegistry creates an empty registry.
func NewGroupRegistry() *GroupRegistry {
	return &GroupRegistry{groups: make(map[string]*Group)}
}

// AddGroup registers g. A group configured with exactly one voting node
// becomes leader immediately rather than waiting out an election timeout,
// since no vote round can change the outcome.
func (r *GroupRegistry) AddGroup(g *Group, now time.Time) {
	r.groups[g.Identity.String()] = g
	if len(g.votingNodes()) == 1 {
		g.becomeLeader(now)
	}
}

// RemoveGroup drops a group from the registry. The caller is responsible
// for tearing down any peer connections and journal resources it owned.
func (r *GroupRegistry) RemoveGroup(identity string) {
	delete(r.groups, identity)
}

// Get returns the group for identity, if hosted here.
func (r *GroupRegistry) Get(identity string) (*Group, bool) {
	g, ok := r.groups[identity]
	return g, ok
}

// Each invokes fn for every hosted group. Loop thread only, like every
// other method here.
func (r *GroupRegistry) Each(fn func(*Group)) {
	for _, g := range r.groups {
		fn(g)
	}
}

// Tick advances every hosted group's election/heartbeat timers.
func (r *GroupRegistry) Tick(now time.Time) {
	for _, g := range r.groups {
		g.Tick(now)
	}
}

// Len reports how many groups are currently hosted.
func (r *GroupRegistry) Len() int {
	return len(r.groups)
}
