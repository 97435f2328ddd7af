// Copyright 2026 The connroute Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package connroute

import (
	"crypto/tls"
	"io"
	"net"
	"sync"
	"time"

	"github.com/dayanruben/connroute/conn"
	"github.com/dayanruben/connroute/internal"
	"github.com/dayanruben/connroute/listener"
	"github.com/dayanruben/connroute/route"
)

// Connection is a live socket-backed connection shared across every
// call currently using it. Its lifetime is that of its longest-lived
// user: the outstanding-acquisition count is connection-local state,
// mutated only under the connection's own lock, and the connection
// becomes eligible for closure exactly when the count reaches zero
// while draining.
type Connection struct {
	pool     *Pool
	route    route.Route
	raw      net.Conn
	tlsState *tls.ConnectionState
	protocol route.Protocol
	clock    internal.Clock

	mu             sync.Mutex
	state          State
	acquired       int
	noNewExchanges bool
	idleSince      time.Time
}

var _ conn.Conn = (*Connection)(nil)

func newConnection(pool *Pool, rt route.Route, raw net.Conn, tlsState *tls.ConnectionState, protocol route.Protocol, clock internal.Clock) *Connection {
	return &Connection{
		pool:      pool,
		route:     rt,
		raw:       raw,
		tlsState:  tlsState,
		protocol:  protocol,
		clock:     clock,
		state:     StateNegotiated,
		idleSince: clock.Now(),
	}
}

// Route is the concrete path this connection was established over.
func (c *Connection) Route() route.Route { return c.route }

// Protocol is the application protocol settled at negotiation.
func (c *Connection) Protocol() route.Protocol { return c.protocol }

// TLSState returns the handshake result, or nil for cleartext
// connections.
func (c *Connection) TLSState() *tls.ConnectionState { return c.tlsState }

// NetConn exposes the underlying socket for the wire codec layer.
func (c *Connection) NetConn() net.Conn { return c.raw }

// State returns the connection's lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// AcquisitionCount returns the number of outstanding acquirers.
func (c *Connection) AcquisitionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acquired
}

func (c *Connection) listener() *listener.ConnectionListener {
	return c.pool.listener
}

// multiplexed reports whether several calls may share this connection
// concurrently.
func (c *Connection) multiplexed() bool {
	return c.protocol == route.ProtocolHTTP2 || c.protocol == route.ProtocolH2PriorKnowledge
}

// acquire records one more user. It fails once the connection is
// draining or closed, or when an exclusive (HTTP/1.1) connection is
// already taken.
func (c *Connection) acquire() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.noNewExchanges || c.state.Terminal() {
		return false
	}
	if !c.multiplexed() && c.acquired > 0 {
		return false
	}
	c.acquired++
	return true
}

// release records that one user is done. The user's listeners are
// notified, and the connection closes if it was the last user of a
// draining connection.
func (c *Connection) release(user ConnectionUser) {
	c.mu.Lock()
	if c.acquired == 0 {
		// Unbalanced release; leave the count at zero rather than let
		// it go negative.
		c.mu.Unlock()
		return
	}
	c.acquired--
	c.idleSince = c.clock.Now()
	shouldClose := c.acquired == 0 && c.noNewExchanges
	c.mu.Unlock()

	user.ConnectionReleased(c)
	if shouldClose {
		c.pool.remove(c)
	}
}

// markNoNewExchanges flips the connection into draining: no further
// acquisition succeeds, in-flight users finish, and the connection
// closes when the last of them releases it.
func (c *Connection) markNoNewExchanges() {
	c.mu.Lock()
	if c.noNewExchanges {
		c.mu.Unlock()
		return
	}
	c.noNewExchanges = true
	if c.state == StatePooled {
		c.state = StateDraining
	}
	shouldClose := c.acquired == 0
	c.mu.Unlock()

	c.listener().OnNoNewExchanges(c)
	if shouldClose {
		c.pool.remove(c)
	}
}

// reusableFor reports whether the call already holding this connection
// can keep using it for the given address. The holder's own acquisition
// does not count against exclusivity.
func (c *Connection) reusableFor(addr *route.Address) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.noNewExchanges && !c.state.Terminal() && c.route.Address.Equal(addr)
}

// eligibleFor reports whether this connection can serve another call to
// the given address right now. An exclusive (HTTP/1.1) connection with
// an acquirer is not eligible; a multiplexed one is.
func (c *Connection) eligibleFor(addr *route.Address) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.noNewExchanges || c.state.Terminal() {
		return false
	}
	if !c.route.Address.Equal(addr) {
		return false
	}
	if c.acquired > 0 && !c.multiplexed() {
		return false
	}
	return true
}

// isHealthy reports whether the connection still looks usable. The
// cheap check inspects local state only; the extensive probe, permitted
// when redoing the request is safe, also peeks at the socket for an
// already-delivered EOF.
func (c *Connection) isHealthy(extensive bool) bool {
	c.mu.Lock()
	terminal := c.state.Terminal()
	c.mu.Unlock()
	if terminal {
		return false
	}
	if !extensive {
		return true
	}
	return !socketClosedByPeer(c.raw)
}

// socketClosedByPeer probes the socket with a zero-deadline read. A
// clean EOF means the peer already closed; a timeout means the socket
// is quiet and healthy. The probe consumes nothing: it runs only while
// the connection is idle, when no data is expected.
func socketClosedByPeer(socket net.Conn) bool {
	if err := socket.SetReadDeadline(time.Unix(1, 0)); err != nil {
		return true
	}
	defer func() {
		_ = socket.SetReadDeadline(time.Time{})
	}()
	var one [1]byte
	if _, err := socket.Read(one[:]); err == io.EOF {
		return true
	}
	return false
}

// closeSocket closes the underlying socket once and notifies the pool
// listener. Called by the pool with the connection unlocked.
func (c *Connection) closeSocket() {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = StateClosed
	c.mu.Unlock()

	_ = c.raw.Close()
	c.listener().OnConnectionClosed(c)
}

// idleDuration returns how long the connection has gone without an
// acquirer; zero while acquired.
func (c *Connection) idleDuration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.acquired > 0 {
		return 0
	}
	return c.clock.Since(c.idleSince)
}

func (c *Connection) markPooled() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateNegotiated {
		c.state = StatePooled
	}
}
