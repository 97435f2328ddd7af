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

// Package listener defines the two observability surfaces of the
// connection layer: the call-facing [EventListener] and the pool-facing
// [ConnectionListener]. Both are structs of optional hooks in the style
// of net/http/httptrace. Every lifecycle point dispatches to the two
// surfaces independently, so pool accounting never depends on the
// call-facing observer and vice versa.
//
// All hooks are optional; the zero value observes nothing. Dispatch goes
// through the On* methods, which are safe on nil receivers and nil hooks.
package listener

import (
	"crypto/tls"
	"net/netip"

	"github.com/dayanruben/connroute/conn"
	"github.com/dayanruben/connroute/route"
)

// EventListener receives the lifecycle events of one call's connection
// work. Hooks are invoked from the goroutine driving the call.
//
// Ordering guarantees: ConnectStart always precedes the matching
// ConnectEnd or ConnectFailed for the same route attempt;
// SecureConnectStart always precedes SecureConnectEnd, and
// SecureConnectEnd fires even on failure or cancellation (with a nil
// state) so start/end pairs stay balanced; ConnectionAcquired and
// ConnectionReleased are paired per acquirer.
type EventListener struct {
	// DNSStart and DNSEnd bracket one hostname resolution.
	DNSStart func(host string)
	DNSEnd   func(host string, ips []netip.Addr, err error)

	// ProxySelectStart and ProxySelectEnd bracket one proxy selection
	// for the given origin.
	ProxySelectStart func(origin string)
	ProxySelectEnd   func(origin string, proxies []route.Proxy)

	// ConnectStart fires when a socket connect over the route begins.
	ConnectStart func(r route.Route)
	// ConnectEnd fires when the connect completed and the protocol is
	// settled.
	ConnectEnd func(r route.Route, protocol route.Protocol)
	// ConnectFailed fires with the underlying cause when the attempt
	// over this route fails. The caller is expected to try the next
	// candidate route.
	ConnectFailed func(r route.Route, err error)

	// SecureConnectStart and SecureConnectEnd bracket the TLS handshake.
	// On failure or cancellation the state is nil.
	SecureConnectStart func(r route.Route)
	SecureConnectEnd   func(r route.Route, state *tls.ConnectionState)

	// ConnectionAcquired and ConnectionReleased track this call's use of
	// a connection, whether freshly established or reused from the pool.
	ConnectionAcquired func(c conn.Conn)
	ConnectionReleased func(c conn.Conn)
}

// OnDNSStart invokes the DNSStart hook if set.
func (l *EventListener) OnDNSStart(host string) {
	if l == nil || l.DNSStart == nil {
		return
	}
	l.DNSStart(host)
}

// OnDNSEnd invokes the DNSEnd hook if set.
func (l *EventListener) OnDNSEnd(host string, ips []netip.Addr, err error) {
	if l == nil || l.DNSEnd == nil {
		return
	}
	l.DNSEnd(host, ips, err)
}

// OnProxySelectStart invokes the ProxySelectStart hook if set.
func (l *EventListener) OnProxySelectStart(origin string) {
	if l == nil || l.ProxySelectStart == nil {
		return
	}
	l.ProxySelectStart(origin)
}

// OnProxySelectEnd invokes the ProxySelectEnd hook if set.
func (l *EventListener) OnProxySelectEnd(origin string, proxies []route.Proxy) {
	if l == nil || l.ProxySelectEnd == nil {
		return
	}
	l.ProxySelectEnd(origin, proxies)
}

// OnConnectStart invokes the ConnectStart hook if set.
func (l *EventListener) OnConnectStart(r route.Route) {
	if l == nil || l.ConnectStart == nil {
		return
	}
	l.ConnectStart(r)
}

// OnConnectEnd invokes the ConnectEnd hook if set.
func (l *EventListener) OnConnectEnd(r route.Route, protocol route.Protocol) {
	if l == nil || l.ConnectEnd == nil {
		return
	}
	l.ConnectEnd(r, protocol)
}

// OnConnectFailed invokes the ConnectFailed hook if set.
func (l *EventListener) OnConnectFailed(r route.Route, err error) {
	if l == nil || l.ConnectFailed == nil {
		return
	}
	l.ConnectFailed(r, err)
}

// OnSecureConnectStart invokes the SecureConnectStart hook if set.
func (l *EventListener) OnSecureConnectStart(r route.Route) {
	if l == nil || l.SecureConnectStart == nil {
		return
	}
	l.SecureConnectStart(r)
}

// OnSecureConnectEnd invokes the SecureConnectEnd hook if set.
func (l *EventListener) OnSecureConnectEnd(r route.Route, state *tls.ConnectionState) {
	if l == nil || l.SecureConnectEnd == nil {
		return
	}
	l.SecureConnectEnd(r, state)
}

// OnConnectionAcquired invokes the ConnectionAcquired hook if set.
func (l *EventListener) OnConnectionAcquired(c conn.Conn) {
	if l == nil || l.ConnectionAcquired == nil {
		return
	}
	l.ConnectionAcquired(c)
}

// OnConnectionReleased invokes the ConnectionReleased hook if set.
func (l *EventListener) OnConnectionReleased(c conn.Conn) {
	if l == nil || l.ConnectionReleased == nil {
		return
	}
	l.ConnectionReleased(c)
}
