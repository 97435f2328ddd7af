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
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dayanruben/connroute/internal"
	"github.com/dayanruben/connroute/listener"
	"github.com/dayanruben/connroute/route"
)

// ErrCanceled is returned when a connection attempt is abandoned
// because its call was canceled.
var ErrCanceled = errors.New("call canceled")

// errExhausted is returned when every candidate route failed without a
// more specific cause to report.
var errExhausted = errors.New("exhausted all routes")

// Call is one logical request driving connection work. It owns the set
// of in-flight connection attempts that an external Cancel can tear
// down, and at most one held connection at a time.
type Call struct {
	dialer   *Dialer
	method   string
	events   *listener.EventListener
	canceled atomic.Bool

	mu    sync.Mutex
	plans internal.Set[*ConnectPlan]
	held  *Connection
}

// NewCall creates a call for the given request method. The events
// listener receives this call's lifecycle events and may be nil.
func (d *Dialer) NewCall(method string, events *listener.EventListener) *Call {
	return &Call{
		dialer: d,
		method: method,
		events: events,
		plans:  internal.NewSet[*ConnectPlan](),
	}
}

// Cancel cancels the call. Every connection attempt currently
// registered is torn down promptly by closing its socket, and so is the
// connection the call currently holds; attempts not yet registered
// observe the flag before proceeding. Canceling twice, or before any
// attempt exists, is a no-op beyond the first effect.
func (c *Call) Cancel() {
	c.canceled.Store(true)
	c.mu.Lock()
	plans := c.plans.Values()
	held := c.held
	c.mu.Unlock()
	// Tear down outside the lock: Cancel closes sockets, and plan
	// completion paths take the lock to unregister themselves.
	for _, plan := range plans {
		plan.Cancel()
	}
	if held != nil {
		held.pool.remove(held)
	}
}

// IsCanceled reports whether Cancel has been called.
func (c *Call) IsCanceled() bool {
	return c.canceled.Load()
}

// Connection returns the connection this call currently holds, or nil.
func (c *Call) Connection() *Connection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.held
}

func (c *Call) addPlan(plan *ConnectPlan) {
	c.mu.Lock()
	c.plans.Add(plan)
	canceled := c.canceled.Load()
	c.mu.Unlock()
	if canceled {
		// Lost the race against Cancel; tear down now so the attempt
		// cannot outlive the cancellation.
		plan.Cancel()
	}
}

func (c *Call) removePlan(plan *ConnectPlan) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.plans.Delete(plan)
}

func (c *Call) setConnection(cn *Connection) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.held = cn
}

func (c *Call) clearConnection(cn *Connection) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.held == cn {
		c.held = nil
	}
}

// AcquireConnection returns a live connection to the given address,
// preferring the call's current connection, then the shared pool, then
// new connects over candidate routes in route-database order. Each
// failed route is reported through the listeners and the next candidate
// is tried; the first failure is returned if every route fails.
func (c *Call) AcquireConnection(ctx context.Context, addr *route.Address) (*Connection, error) {
	user := callUser{call: c}
	if user.IsCanceled() {
		return nil, ErrCanceled
	}

	// Reuse the connection this call already holds when it still serves
	// the same destination family.
	if held := user.CandidateConnection(); held != nil {
		if held.reusableFor(addr) && held.isHealthy(user.DoExtensiveHealthChecks()) {
			return held, nil
		}
	}

	if pooled := c.dialer.pool.acquire(user, addr); pooled != nil {
		c.dialer.logger.Debug("reusing pooled connection", "route", pooled.Route().String())
		return pooled, nil
	}

	selector := newRouteSelector(c.dialer, addr, user)
	var firstErr error
	for selector.hasNext() {
		routes, err := selector.next(ctx)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		for _, candidate := range routes {
			if user.IsCanceled() {
				return nil, ErrCanceled
			}
			plan := newConnectPlan(c.dialer, candidate, user)
			connection, err := plan.Connect(ctx)
			if err != nil {
				if user.IsCanceled() {
					return nil, fmt.Errorf("connect to %s: %w", candidate, ErrCanceled)
				}
				c.dialer.logger.Debug("connect failed", "route", candidate.String(), "error", err)
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			c.dialer.pool.register(connection, user)
			return connection, nil
		}
	}
	if firstErr == nil {
		firstErr = fmt.Errorf("%s: %w", addr, errExhausted)
	}
	return nil, firstErr
}

// ReleaseConnection releases the call's hold on its current connection.
// Release pairs with the acquisition made by AcquireConnection; the
// connection itself closes once its last acquirer releases it after
// draining begins.
func (c *Call) ReleaseConnection() {
	held := c.Connection()
	if held == nil {
		return
	}
	held.release(callUser{call: c})
}
