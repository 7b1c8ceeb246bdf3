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
Package transport implements the Peer Connection Registry: a set of
outbound TCP connections to peer nodes, found or lazily created by
(host, port), each carrying its own inbound Framer and a reconnect policy
with bounded exponential backoff.
*/
package transport

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"emberraft/internal/config"
	"emberraft/internal/wire"
)

// ConnState is the lifecycle state of a Connection.
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateConnected
	StateDisconnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateDisconnected:
		return "DISCONNECTED"
	default:
		return "UNKNOWN"
	}
}

// OnBytesFunc handles one fully-reassembled frame payload read from a peer.
type OnBytesFunc func(conn *Connection, payload []byte)

// OnConnectedFunc is invoked once a Connection transitions to Connected.
type OnConnectedFunc func(conn *Connection)

// Connection is one outbound TCP link to a peer, identified by host:port.
// Once a handshake names a group and node, Bind records that binding for
// routing purposes and Bound reports it.
type Connection struct {
	Host string
	Port uint32

	state atomic.Int32
	conn  net.Conn

	writeMu sync.Mutex
	framer  *wire.Framer

	mu            sync.Mutex
	boundIdentity string
	boundNodeID   uint32
	bound         bool
	codec         uint8

	reconnecting atomic.Bool

	onBytes     OnBytesFunc
	onConnected OnConnectedFunc

	closeOnce sync.Once
	closed    chan struct{}
}

// NewConnection creates a Connection in the Connecting state. Dial must be
// called separately so the registry can own the retry/backoff loop.
func NewConnection(host string, port uint32, onConnected OnConnectedFunc, onBytes OnBytesFunc) *Connection {
	c := &Connection{
		Host:        host,
		Port:        port,
		framer:      wire.NewFramer(config.DefaultFramerConfig().MaxFrameSize),
		codec:       wire.CodecNone,
		onBytes:     onBytes,
		onConnected: onConnected,
		closed:      make(chan struct{}),
	}
	c.state.Store(int32(StateConnecting))
	return c
}

// State returns the connection's current lifecycle state.
func (c *Connection) State() ConnState {
	return ConnState(c.state.Load())
}

// Dial opens the TCP connection and starts the read loop. On success the
// connection moves to Connected and onConnected fires.
func (c *Connection) Dial() error {
	conn, err := net.Dial("tcp", fmt.Sprintf("%s:%d", c.Host, c.Port))
	if err != nil {
		c.state.Store(int32(StateDisconnected))
		return fmt.Errorf("transport: dial %s:%d: %w", c.Host, c.Port, err)
	}
	c.conn = conn
	c.state.Store(int32(StateConnected))
	go c.readLoop()
	if c.onConnected != nil {
		c.onConnected(c)
	}
	return nil
}

// adopt wires an already-accepted net.Conn (inbound side) into a
// Connection without dialing.
func adopt(conn net.Conn, onBytes OnBytesFunc) *Connection {
	c := &Connection{
		conn:    conn,
		framer:  wire.NewFramer(config.DefaultFramerConfig().MaxFrameSize),
		codec:   wire.CodecNone,
		onBytes: onBytes,
		closed:  make(chan struct{}),
	}
	if host, port, err := net.SplitHostPort(conn.RemoteAddr().String()); err == nil {
		c.Host = host
		fmt.Sscanf(port, "%d", &c.Port)
	}
	c.state.Store(int32(StateConnected))
	go c.readLoop()
	return c
}

// Send writes one frame to the peer. Writes are serialized so concurrent
// callers never interleave partial frames on the wire.
func (c *Connection) Send(payload []byte) error {
	if c.State() != StateConnected {
		return fmt.Errorf("transport: send to %s:%d: %w", c.Host, c.Port, ErrNotConnected)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := wire.WriteFrame(c.conn, payload); err != nil {
		c.markDisconnected()
		return fmt.Errorf("transport: write to %s:%d: %w", c.Host, c.Port, err)
	}
	return nil
}

func (c *Connection) readLoop() {
	buf := make([]byte, 32*1024)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			frames, ferr := c.framer.Feed(buf[:n])
			for _, frame := range frames {
				if c.onBytes != nil {
					c.onBytes(c, frame)
				}
			}
			if ferr != nil {
				c.framer.Reset()
				c.markDisconnected()
				return
			}
		}
		if err != nil {
			c.framer.Reset()
			c.markDisconnected()
			return
		}
	}
}

func (c *Connection) markDisconnected() {
	c.state.Store(int32(StateDisconnected))
	c.closeOnce.Do(func() {
		if c.conn != nil {
			c.conn.Close()
		}
		close(c.closed)
	})
}

// Close tears the connection down and marks it Disconnected.
func (c *Connection) Close() error {
	c.markDisconnected()
	return nil
}

// Bind records the (group identity, node id) this connection now carries,
// once the handshake completes. Safe to call once per connection.
func (c *Connection) Bind(identity string, nodeID uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.boundIdentity = identity
	c.boundNodeID = nodeID
	c.bound = true
}

// Bound reports the (identity, nodeID, ok) previously recorded by Bind.
func (c *Connection) Bound() (string, uint32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.boundIdentity, c.boundNodeID, c.bound
}

// beginReconnect atomically claims the right to run conn's reconnect loop,
// returning false if one is already pending or in flight. Pairs with
// endReconnect, which releases the claim once the loop exits (reconnected
// or registry shutdown) so a later disconnect can start a fresh one.
func (c *Connection) beginReconnect() bool {
	return c.reconnecting.CompareAndSwap(false, true)
}

// endReconnect releases the claim taken by beginReconnect.
func (c *Connection) endReconnect() {
	c.reconnecting.Store(false)
}

// SetCodec records the compression codec bit (a wire.Codec* constant)
// negotiated with this peer at handshake time.
func (c *Connection) SetCodec(codec uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.codec = codec
}

// Codec returns the negotiated compression codec bit, or wire.CodecNone
// before a handshake has completed.
func (c *Connection) Codec() uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.codec
}
