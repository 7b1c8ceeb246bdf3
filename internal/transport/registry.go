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

package transport

import (
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"emberraft/internal/config"
)

// ErrNotConnected is returned by Send when the connection is not currently
// in the Connected state.
var ErrNotConnected = errors.New("transport: connection not connected")

// Registry is the Peer Connection Registry: an idempotent map of
// Connections keyed by host:port, with a background reconnect loop driven
// by a bounded exponential backoff policy.
type Registry struct {
	mu    sync.Mutex
	conns map[string]*Connection

	cfg         config.ReconnectConfig
	onConnected OnConnectedFunc
	onBytes     OnBytesFunc

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewRegistry creates a Registry. onConnected and onBytes are invoked for
// every Connection the registry creates, inbound or outbound.
func NewRegistry(cfg config.ReconnectConfig, onConnected OnConnectedFunc, onBytes OnBytesFunc) *Registry {
	return &Registry{
		conns:       make(map[string]*Connection),
		cfg:         cfg,
		onConnected: onConnected,
		onBytes:     onBytes,
		stopCh:      make(chan struct{}),
	}
}

func key(host string, port uint32) string {
	return fmt.Sprintf("%s:%d", host, port)
}

// FindOrCreate returns the existing Connection for (host, port), or lazily
// creates and dials a new one. Dialing happens synchronously on first
// creation; if it fails the Connection is still returned in the
// Disconnected state and the registry's reconnect loop will retry it.
func (r *Registry) FindOrCreate(host string, port uint32) *Connection {
	k := key(host, port)

	r.mu.Lock()
	if c, ok := r.conns[k]; ok {
		r.mu.Unlock()
		return c
	}
	c := NewConnection(host, port, r.onConnected, r.onBytes)
	r.conns[k] = c
	r.mu.Unlock()

	if err := c.Dial(); err != nil {
		r.scheduleReconnect(c)
	}
	return c
}

// Adopt registers an inbound connection accepted by a listener.
func (r *Registry) Adopt(conn net.Conn) *Connection {
	c := adopt(conn, r.onBytes)
	if c.Host != "" {
		r.mu.Lock()
		r.conns[key(c.Host, c.Port)] = c
		r.mu.Unlock()
	}
	if r.onConnected != nil {
		r.onConnected(c)
	}
	return c
}

// Usable reports whether conn can currently carry a send.
func (r *Registry) Usable(conn *Connection) bool {
	return conn != nil && conn.State() == StateConnected
}

// Get returns the Connection for (host, port) if one has been created.
func (r *Registry) Get(host string, port uint32) (*Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[key(host, port)]
	return c, ok
}

// FindBound returns the Connection that completed a handshake binding it to
// (identity, nodeID), if any is currently known. Used to route a
// node-targeted message (e.g. LEAVE_RESPONSE) once the only thing the
// caller knows is which node to reach, not which host:port it dialed in on.
func (r *Registry) FindBound(identity string, nodeID uint32) (*Connection, bool) {
	r.mu.Lock()
	conns := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.Unlock()

	for _, c := range conns {
		if boundIdentity, boundNodeID, ok := c.Bound(); ok && boundIdentity == identity && boundNodeID == nodeID {
			return c, true
		}
	}
	return nil, false
}

// Disconnected returns every currently Disconnected connection, for the
// periodic tick's reconnect scan.
func (r *Registry) Disconnected() []*Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Connection
	for _, c := range r.conns {
		if c.State() == StateDisconnected {
			out = append(out, c)
		}
	}
	return out
}

// Notify should be called whenever a caller observes conn transition to
// Disconnected, so the registry can start its backoff-driven reconnect
// loop for it. Connection.readLoop calls markDisconnected internally but
// has no registry reference, so the event loop's periodic tick calls
// Notify for every connection that Disconnected reports.
func (r *Registry) Notify(conn *Connection) {
	if conn.State() == StateDisconnected {
		r.scheduleReconnect(conn)
	}
}

// scheduleReconnect starts a background retry loop for conn using bounded
// exponential backoff with jitter, stopping once conn reconnects or the
// registry is closed. A connection already has at most one such loop
// pending or running at a time: Notify is called once per Disconnected
// connection on every tick, and without this claim each tick would spawn
// another overlapping goroutine with its backoff reset to BaseDelay.
func (r *Registry) scheduleReconnect(conn *Connection) {
	if !conn.beginReconnect() {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer conn.endReconnect()
		delay := r.cfg.BaseDelay
		for {
			select {
			case <-r.stopCh:
				return
			case <-time.After(jitter(delay, r.cfg.Jitter)):
			}

			if conn.State() == StateConnected {
				return
			}
			if err := conn.Dial(); err == nil {
				return
			}

			delay = time.Duration(float64(delay) * r.cfg.Factor)
			if delay > r.cfg.MaxDelay {
				delay = r.cfg.MaxDelay
			}
		}
	}()
}

// jitter multiplies d by a uniform random factor in [1-spread, 1+spread].
func jitter(d time.Duration, spread float64) time.Duration {
	if spread <= 0 {
		return d
	}
	factor := 1 - spread + rand.Float64()*2*spread
	return time.Duration(float64(d) * factor)
}

// Close stops the reconnect loop and closes every known connection.
func (r *Registry) Close() error {
	close(r.stopCh)
	r.wg.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.conns {
		c.Close()
	}
	return nil
}
