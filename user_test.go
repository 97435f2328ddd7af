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
	"fmt"
	"net/http"
	"net/netip"
	"slices"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dayanruben/connroute/route"
)

// testUser is a ConnectionUser double that records everything it sees.
type testUser struct {
	extensive bool
	canceled  atomic.Bool

	mu       sync.Mutex
	events   []string
	acquired []*Connection
	released []*Connection
	routes   []route.Route
}

var _ ConnectionUser = (*testUser)(nil)

func (u *testUser) record(event string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.events = append(u.events, event)
}

func (u *testUser) recorded() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return slices.Clone(u.events)
}

func (u *testUser) acquiredConns() []*Connection {
	u.mu.Lock()
	defer u.mu.Unlock()
	return slices.Clone(u.acquired)
}

func (u *testUser) AddPlanToCancel(*ConnectPlan) { u.record("add-plan") }
func (u *testUser) RemovePlanToCancel(*ConnectPlan) { u.record("remove-plan") }
func (u *testUser) IsCanceled() bool { return u.canceled.Load() }
func (u *testUser) CandidateConnection() *Connection {
	return nil
}
func (u *testUser) DoExtensiveHealthChecks() bool { return u.extensive }

func (u *testUser) UpdateRouteDatabaseAfterSuccess(r route.Route) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.routes = append(u.routes, r)
}

func (u *testUser) DNSStart(host string) { u.record("dns-start:" + host) }
func (u *testUser) DNSEnd(host string, _ []netip.Addr, _ error) {
	u.record("dns-end:" + host)
}
func (u *testUser) ProxySelectStart(origin string) { u.record("proxy-select-start:" + origin) }
func (u *testUser) ProxySelectEnd(origin string, proxies []route.Proxy) {
	u.record(fmt.Sprintf("proxy-select-end:%s:%d", origin, len(proxies)))
}
func (u *testUser) ConnectStart(route.Route) { u.record("connect-start") }
func (u *testUser) ConnectFailed(route.Route, error) { u.record("connect-failed") }
func (u *testUser) CallConnectEnd(route.Route, route.Protocol) { u.record("connect-end") }
func (u *testUser) SecureConnectStart(route.Route) { u.record("secure-connect-start") }
func (u *testUser) SecureConnectEnd(route.Route, *tls.ConnectionState) {
	u.record("secure-connect-end")
}

func (u *testUser) ConnectionAcquired(c *Connection) {
	u.mu.Lock()
	u.acquired = append(u.acquired, c)
	u.mu.Unlock()
	u.record("acquired")
}

func (u *testUser) ConnectionReleased(c *Connection) {
	u.mu.Lock()
	u.released = append(u.released, c)
	u.mu.Unlock()
	u.record("released")
}

func (u *testUser) NoNewExchanges(c *Connection) {
	c.markNoNewExchanges()
}

func TestDoExtensiveHealthChecks(t *testing.T) {
	t.Parallel()
	dialer := New()
	t.Cleanup(func() { _ = dialer.Close() })

	// Probing a suspect connection may consume a request's chance to
	// run, so it is allowed only when the request is safe to redo.
	get := callUser{call: dialer.NewCall(http.MethodGet, nil)}
	assert.False(t, get.DoExtensiveHealthChecks())
	post := callUser{call: dialer.NewCall(http.MethodPost, nil)}
	assert.True(t, post.DoExtensiveHealthChecks())
}
