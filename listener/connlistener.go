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

package listener

import (
	"github.com/dayanruben/connroute/conn"
	"github.com/dayanruben/connroute/route"
)

// ConnectionListener receives pool-scoped connection events, independent
// of any call-facing [EventListener]. It exists for pool-internal
// accounting: a connection is shared, so its events are not attributable
// to a single call.
//
// Hooks may be invoked from any goroutine using the pool, and for a
// shared connection they may interleave across calls. Acquired/Released
// hooks fire once per acquirer.
type ConnectionListener struct {
	// ConnectStart and ConnectFailed mirror the per-call events for
	// pool-side bookkeeping, e.g. marking a route as currently failing.
	ConnectStart  func(r route.Route)
	ConnectFailed func(r route.Route, err error)
	// ConnectEnd fires when a new connection finished negotiation.
	ConnectEnd func(c conn.Conn)

	// ConnectionAcquired and ConnectionReleased track the connection's
	// own outstanding-acquisition count, which is connection-local state.
	ConnectionAcquired func(c conn.Conn)
	ConnectionReleased func(c conn.Conn)

	// NoNewExchanges fires when the connection flips into draining: it
	// rejects further multiplexed use while in-flight exchanges finish.
	NoNewExchanges func(c conn.Conn)
	// ConnectionClosed fires exactly once when the socket is closed.
	ConnectionClosed func(c conn.Conn)
}

// OnConnectStart invokes the ConnectStart hook if set.
func (l *ConnectionListener) OnConnectStart(r route.Route) {
	if l == nil || l.ConnectStart == nil {
		return
	}
	l.ConnectStart(r)
}

// OnConnectFailed invokes the ConnectFailed hook if set.
func (l *ConnectionListener) OnConnectFailed(r route.Route, err error) {
	if l == nil || l.ConnectFailed == nil {
		return
	}
	l.ConnectFailed(r, err)
}

// OnConnectEnd invokes the ConnectEnd hook if set.
func (l *ConnectionListener) OnConnectEnd(c conn.Conn) {
	if l == nil || l.ConnectEnd == nil {
		return
	}
	l.ConnectEnd(c)
}

// OnConnectionAcquired invokes the ConnectionAcquired hook if set.
func (l *ConnectionListener) OnConnectionAcquired(c conn.Conn) {
	if l == nil || l.ConnectionAcquired == nil {
		return
	}
	l.ConnectionAcquired(c)
}

// OnConnectionReleased invokes the ConnectionReleased hook if set.
func (l *ConnectionListener) OnConnectionReleased(c conn.Conn) {
	if l == nil || l.ConnectionReleased == nil {
		return
	}
	l.ConnectionReleased(c)
}

// OnNoNewExchanges invokes the NoNewExchanges hook if set.
func (l *ConnectionListener) OnNoNewExchanges(c conn.Conn) {
	if l == nil || l.NoNewExchanges == nil {
		return
	}
	l.NoNewExchanges(c)
}

// OnConnectionClosed invokes the ConnectionClosed hook if set.
func (l *ConnectionListener) OnConnectionClosed(c conn.Conn) {
	if l == nil || l.ConnectionClosed == nil {
		return
	}
	l.ConnectionClosed(c)
}
