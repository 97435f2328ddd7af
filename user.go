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
	"net/netip"

	"github.com/dayanruben/connroute/route"
)

// ConnectionUser represents whoever is attempting or using a
// connection. It is the seam between "a call wants a connection" and
// the pool machinery: every connection-lifecycle event is routed
// through it to the right observers, so the pool never depends on call
// internals and the call never depends on pool internals.
//
// The concrete implementation is created per call by [Dialer.NewCall];
// the interface exists so the pool and plan logic work identically for
// any attempting party, including test doubles.
type ConnectionUser interface {
	// AddPlanToCancel registers an in-flight connection attempt so an
	// external cancellation can tear it down from another goroutine.
	// Adding may race with cancellation at any time; adding to an
	// already-canceled user tears the plan down immediately.
	AddPlanToCancel(plan *ConnectPlan)
	// RemovePlanToCancel unregisters a concluded attempt. Removing a
	// plan that was never added, or after cancellation already tore it
	// down, is a no-op.
	RemovePlanToCancel(plan *ConnectPlan)
	// IsCanceled reflects the user's cancellation flag at the instant
	// of the check. Attempts consult it at every blocking step to
	// short-circuit promptly.
	IsCanceled() bool

	// CandidateConnection exposes the connection the user already holds,
	// if any, so selection can prefer reusing it.
	CandidateConnection() *Connection
	// DoExtensiveHealthChecks reports whether a pooled connection that
	// might have gone stale may be probed before reuse. Probing is only
	// safe when redoing the request would be safe, so this is false
	// only for safe retrieval methods.
	DoExtensiveHealthChecks() bool

	// UpdateRouteDatabaseAfterSuccess records the route in the shared
	// database, exactly once per successful connect.
	UpdateRouteDatabaseAfterSuccess(r route.Route)

	// The event methods below fan out to the call-facing event listener
	// and, where the pool accounts for the event, independently to the
	// pool-facing connection listener. One observer never suppresses
	// the other.

	DNSStart(host string)
	DNSEnd(host string, ips []netip.Addr, err error)
	ProxySelectStart(origin string)
	ProxySelectEnd(origin string, proxies []route.Proxy)
	ConnectStart(r route.Route)
	ConnectFailed(r route.Route, err error)
	CallConnectEnd(r route.Route, protocol route.Protocol)
	SecureConnectStart(r route.Route)
	// SecureConnectEnd always fires after SecureConnectStart, with a nil
	// state on failure or cancellation, so observers can pair start and
	// end deterministically.
	SecureConnectEnd(r route.Route, state *tls.ConnectionState)
	ConnectionAcquired(c *Connection)
	ConnectionReleased(c *Connection)
	// NoNewExchanges flips the connection into draining.
	NoNewExchanges(c *Connection)
}

// callUser bridges a Call and its listeners to the ConnectionUser
// protocol.
type callUser struct {
	call *Call
}

var _ ConnectionUser = callUser{}

func (u callUser) AddPlanToCancel(plan *ConnectPlan) {
	u.call.addPlan(plan)
}

func (u callUser) RemovePlanToCancel(plan *ConnectPlan) {
	u.call.removePlan(plan)
}

func (u callUser) IsCanceled() bool {
	return u.call.IsCanceled()
}

func (u callUser) CandidateConnection() *Connection {
	return u.call.Connection()
}

func (u callUser) DoExtensiveHealthChecks() bool {
	return u.call.method != "GET"
}

func (u callUser) UpdateRouteDatabaseAfterSuccess(r route.Route) {
	u.call.dialer.routeDB.Connected(r)
}

func (u callUser) DNSStart(host string) {
	u.call.events.OnDNSStart(host)
}

func (u callUser) DNSEnd(host string, ips []netip.Addr, err error) {
	u.call.events.OnDNSEnd(host, ips, err)
}

func (u callUser) ProxySelectStart(origin string) {
	u.call.events.OnProxySelectStart(origin)
}

func (u callUser) ProxySelectEnd(origin string, proxies []route.Proxy) {
	u.call.events.OnProxySelectEnd(origin, proxies)
}

func (u callUser) ConnectStart(r route.Route) {
	// Two independent dispatches: the call's observer and the pool's.
	u.call.events.OnConnectStart(r)
	u.call.dialer.pool.listener.OnConnectStart(r)
}

func (u callUser) ConnectFailed(r route.Route, err error) {
	u.call.events.OnConnectFailed(r, err)
	u.call.dialer.pool.listener.OnConnectFailed(r, err)
}

func (u callUser) CallConnectEnd(r route.Route, protocol route.Protocol) {
	u.call.events.OnConnectEnd(r, protocol)
}

func (u callUser) SecureConnectStart(r route.Route) {
	u.call.events.OnSecureConnectStart(r)
}

func (u callUser) SecureConnectEnd(r route.Route, state *tls.ConnectionState) {
	u.call.events.OnSecureConnectEnd(r, state)
}

func (u callUser) ConnectionAcquired(c *Connection) {
	u.call.setConnection(c)
	u.call.events.OnConnectionAcquired(c)
	c.listener().OnConnectionAcquired(c)
}

func (u callUser) ConnectionReleased(c *Connection) {
	u.call.clearConnection(c)
	u.call.events.OnConnectionReleased(c)
	c.listener().OnConnectionReleased(c)
}

func (u callUser) NoNewExchanges(c *Connection) {
	c.markNoNewExchanges()
}
