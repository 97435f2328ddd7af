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
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dayanruben/connroute/internal"
	"github.com/dayanruben/connroute/listener"
	"github.com/dayanruben/connroute/route"
)

// Pool holds the live connections a Dialer's calls share. Acquisition
// bookkeeping lives on each connection; the pool only indexes them and
// evicts the idle ones.
//
// Lock order is pool then connection, never the reverse. Listener
// callbacks run with neither lock held.
type Pool struct {
	listener    *listener.ConnectionListener
	idleTimeout time.Duration
	logger      *slog.Logger
	clock       internal.Clock

	mu          sync.Mutex
	connections internal.Set[*Connection]
	closed      bool
	evictDone   chan struct{}
	evictStop   func()
}

func newPool(connListener *listener.ConnectionListener, idleTimeout time.Duration, logger *slog.Logger, clock internal.Clock) *Pool {
	if connListener == nil {
		connListener = &listener.ConnectionListener{}
	}
	pool := &Pool{
		listener:    connListener,
		idleTimeout: idleTimeout,
		logger:      logger,
		clock:       clock,
		connections: internal.NewSet[*Connection](),
	}
	if idleTimeout > 0 {
		stop := make(chan struct{})
		pool.evictDone = make(chan struct{})
		pool.evictStop = sync.OnceFunc(func() { close(stop) })
		go pool.evictLoop(stop)
	}
	return pool
}

// Len returns the number of live connections.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connections.Len()
}

// acquire finds a pooled connection eligible for the address and
// acquires it for the user, or returns nil when none qualifies.
func (p *Pool) acquire(user ConnectionUser, addr *route.Address) *Connection {
	p.mu.Lock()
	candidates := p.connections.Values()
	p.mu.Unlock()

	extensive := user.DoExtensiveHealthChecks()
	for _, c := range candidates {
		if !c.eligibleFor(addr) {
			continue
		}
		if !c.isHealthy(extensive) {
			p.logger.Debug("evicting unhealthy connection", "route", c.Route().String())
			p.remove(c)
			continue
		}
		if c.acquire() {
			user.ConnectionAcquired(c)
			return c
		}
	}
	return nil
}

// register adds a freshly negotiated connection to the pool and hands
// it to the user that built it. The pool-facing listener observes the
// connect end here, once the connection is actually poolable.
func (p *Pool) register(c *Connection, user ConnectionUser) {
	p.mu.Lock()
	closed := p.closed
	if !closed {
		p.connections.Add(c)
	}
	p.mu.Unlock()

	c.markPooled()
	p.listener.OnConnectEnd(c)
	// A freshly negotiated connection always accepts its first acquirer.
	c.acquire()
	user.ConnectionAcquired(c)
	if closed {
		// Shutdown raced the connect: let the user finish, then drain.
		c.markNoNewExchanges()
	}
}

// remove drops the connection from the index, if present, and closes
// its socket. Idempotent, and valid for connections a closed pool never
// indexed.
func (p *Pool) remove(c *Connection) {
	p.mu.Lock()
	p.connections.Delete(c)
	p.mu.Unlock()
	c.closeSocket()
}

// evictLoop closes connections whose idle time exceeds the configured
// timeout.
func (p *Pool) evictLoop(stop <-chan struct{}) {
	defer close(p.evictDone)
	ticker := p.clock.NewTicker(p.idleTimeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			p.evictIdle()
		}
	}
}

func (p *Pool) evictIdle() {
	p.mu.Lock()
	candidates := p.connections.Values()
	p.mu.Unlock()
	for _, c := range candidates {
		if c.idleDuration() >= p.idleTimeout {
			p.logger.Debug("evicting idle connection", "route", c.Route().String())
			p.remove(c)
		}
	}
}

// Close drains the pool: the eviction loop stops and every live
// connection is closed concurrently. Safe to call more than once.
func (p *Pool) Close() error {
	p.mu.Lock()
	p.closed = true
	candidates := p.connections.Values()
	p.mu.Unlock()

	if p.evictStop != nil {
		p.evictStop()
		<-p.evictDone
	}
	var group errgroup.Group
	for _, c := range candidates {
		group.Go(func() error {
			p.remove(c)
			return nil
		})
	}
	return group.Wait()
}
