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
Package discovery lets an emberraftd process advertise itself on the LAN
via mDNS and lets operator tooling (emberraft-discover) find
running nodes without needing a seed list. This is strictly a bootstrap
aid: once a node knows a peer's host:port it dials it through the Peer
Connection Registry like any other configured member, independent of
mDNS staying reachable.
*/
package discovery

import (
	"fmt"
	"strconv"
	"time"

	"github.com/hashicorp/mdns"
)

// ServiceType is the mDNS service name emberraftd instances advertise
// themselves under.
const ServiceType = "_emberraft._tcp"

// Config controls whether and how this process advertises itself.
type Config struct {
	NodeID   uint32
	Identity string // group identity this node currently serves, if any
	Port     uint32
	Enabled  bool // advertise on the network; false means discover-only
}

// Node is one node found on the network.
type Node struct {
	NodeID   uint32
	Identity string
	Host     string
	Port     uint32
}

// Service advertises this process over mDNS while it is running. Closing
// it withdraws the advertisement; it never touches Raft state itself.
type Service struct {
	server *mdns.Server
}

// NewService starts advertising per cfg. If cfg.Enabled is false, it
// returns a Service whose Close is a no-op, so callers can treat it
// uniformly whether or not this process wants to be discoverable.
func NewService(cfg Config) (*Service, error) {
	if !cfg.Enabled {
		return &Service{}, nil
	}

	info := []string{
		fmt.Sprintf("node_id=%d", cfg.NodeID),
		fmt.Sprintf("identity=%s", cfg.Identity),
	}
	svc, err := mdns.NewMDNSService(
		fmt.Sprintf("emberraft-%d", cfg.NodeID),
		ServiceType,
		"",
		"",
		int(cfg.Port),
		nil,
		info,
	)
	if err != nil {
		return nil, fmt.Errorf("discovery: build service record: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: svc})
	if err != nil {
		return nil, fmt.Errorf("discovery: start mdns server: %w", err)
	}
	return &Service{server: server}, nil
}

// Close withdraws this process's mDNS advertisement.
func (s *Service) Close() error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown()
}

// Discover browses the LAN for emberraft nodes for up to timeout,
// returning whatever answered in that window.
func Discover(timeout time.Duration) ([]Node, error) {
	entriesCh := make(chan *mdns.ServiceEntry, 32)
	done := make(chan struct{})

	var nodes []Node
	go func() {
		defer close(done)
		for entry := range entriesCh {
			nodes = append(nodes, parseEntry(entry))
		}
	}()

	err := mdns.Query(&mdns.QueryParam{
		Service: ServiceType,
		Timeout: timeout,
		Entries: entriesCh,
	})
	close(entriesCh)
	<-done
	if err != nil {
		return nil, fmt.Errorf("discovery: query: %w", err)
	}
	return nodes, nil
}

func parseEntry(entry *mdns.ServiceEntry) Node {
	n := Node{Port: uint32(entry.Port)}
	if entry.AddrV4 != nil {
		n.Host = entry.AddrV4.String()
	} else if entry.AddrV6 != nil {
		n.Host = entry.AddrV6.String()
	} else {
		n.Host = entry.Host
	}
	for _, field := range entry.InfoFields {
		if v, ok := trimPrefix(field, "node_id="); ok {
			if id, err := strconv.ParseUint(v, 10, 32); err == nil {
				n.NodeID = uint32(id)
			}
		} else if v, ok := trimPrefix(field, "identity="); ok {
			n.Identity = v
		}
	}
	return n
}

func trimPrefix(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || s[:len(prefix)] != prefix {
		return "", false
	}
	return s[len(prefix):], true
}
