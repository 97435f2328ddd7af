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
	"net"
	"net/netip"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dayanruben/connroute/conn"
	"github.com/dayanruben/connroute/internal"
	"github.com/dayanruben/connroute/internal/clocktest"
	"github.com/dayanruben/connroute/listener"
	"github.com/dayanruben/connroute/route"
)

func TestPoolRegisterAndAcquire(t *testing.T) {
	t.Parallel()
	pool := newPool(nil, 0, discardLogger(), internal.NewRealClock())
	t.Cleanup(func() { _ = pool.Close() })
	addr := route.NewAddress("example.com", 443, nil, nil, nil)
	c, _ := testPoolConn(t, pool, addr, route.ProtocolHTTP2)

	builder := &testUser{}
	pool.register(c, builder)
	assert.Equal(t, 1, pool.Len())
	assert.Equal(t, StatePooled, c.State())
	assert.Equal(t, []*Connection{c}, builder.acquiredConns())

	// A second user shares the multiplexed connection.
	sharer := &testUser{}
	shared := pool.acquire(sharer, addr)
	assert.Same(t, c, shared)
	assert.Equal(t, 2, c.AcquisitionCount())

	// A different destination family gets nothing.
	other := route.NewAddress("example.org", 443, nil, nil, nil)
	assert.Nil(t, pool.acquire(&testUser{}, other))
}

func TestPoolAcquireSkipsBusyExclusive(t *testing.T) {
	t.Parallel()
	pool := newPool(nil, 0, discardLogger(), internal.NewRealClock())
	t.Cleanup(func() { _ = pool.Close() })
	addr := route.NewAddress("example.com", 443, nil, nil, nil)
	c, _ := testPoolConn(t, pool, addr, route.ProtocolHTTP11)

	holder := &testUser{}
	pool.register(c, holder)
	assert.Nil(t, pool.acquire(&testUser{}, addr))

	// Released, the exclusive connection is available again.
	c.release(holder)
	assert.Same(t, c, pool.acquire(&testUser{}, addr))
}

func TestPoolAcquireEvictsDeadConnection(t *testing.T) {
	t.Parallel()
	var closes atomic.Int32
	hooks := &listener.ConnectionListener{
		ConnectionClosed: func(conn.Conn) { closes.Add(1) },
	}
	pool := newPool(hooks, 0, discardLogger(), internal.NewRealClock())
	t.Cleanup(func() { _ = pool.Close() })
	addr := route.NewAddress("example.com", 443, nil, nil, nil)
	c, server := testPoolConn(t, pool, addr, route.ProtocolHTTP11)

	builder := &testUser{}
	pool.register(c, builder)
	c.release(builder)
	require.NoError(t, server.Close())

	// Wait until the peer's close is observable, then ask the pool: the
	// extensive health check must evict the dead connection rather than
	// hand it out.
	require.Eventually(t, func() bool {
		return !c.isHealthy(true)
	}, 5*time.Second, 10*time.Millisecond)
	prober := &testUser{extensive: true}
	assert.Nil(t, pool.acquire(prober, addr))
	assert.Equal(t, 0, pool.Len())
	assert.EqualValues(t, 1, closes.Load())
}

func TestPoolRegisterAfterCloseDrainsAndCloses(t *testing.T) {
	t.Parallel()
	var closes atomic.Int32
	hooks := &listener.ConnectionListener{
		ConnectionClosed: func(conn.Conn) { closes.Add(1) },
	}
	pool := newPool(hooks, 0, discardLogger(), internal.NewRealClock())
	require.NoError(t, pool.Close())

	// A connect that finishes after shutdown still hands its connection
	// to the waiting user, but the connection immediately drains.
	addr := route.NewAddress("example.com", 443, nil, nil, nil)
	c, _ := testPoolConn(t, pool, addr, route.ProtocolHTTP11)
	user := &testUser{}
	pool.register(c, user)
	assert.Equal(t, 0, pool.Len())
	assert.Equal(t, StateDraining, c.State())
	assert.Equal(t, []*Connection{c}, user.acquiredConns())

	// The last release closes the socket even though the closed pool
	// never indexed the connection.
	c.release(user)
	assert.Equal(t, StateClosed, c.State())
	assert.EqualValues(t, 1, closes.Load())
	buf := make([]byte, 1)
	_ = c.NetConn().SetReadDeadline(time.Now().Add(time.Second))
	_, err := c.NetConn().Read(buf)
	assert.ErrorIs(t, err, net.ErrClosed)
}

func TestPoolIdleEviction(t *testing.T) {
	t.Parallel()
	clock := clocktest.NewFakeClock()
	closed := make(chan struct{}, 1)
	hooks := &listener.ConnectionListener{
		ConnectionClosed: func(conn.Conn) { closed <- struct{}{} },
	}
	pool := newPool(hooks, time.Minute, discardLogger(), clock)
	t.Cleanup(func() { _ = pool.Close() })
	addr := route.NewAddress("example.com", 443, nil, nil, nil)

	client, _ := tcpPair(t)
	rt := route.Route{
		Address:  addr,
		Proxy:    route.Direct,
		Endpoint: route.ResolvedEndpoint(netip.MustParseAddr("127.0.0.1"), 443),
	}
	c := newConnection(pool, rt, client, nil, route.ProtocolHTTP11, clock)
	user := &testUser{}
	pool.register(c, user)
	c.release(user)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Minute)

	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("idle connection was not evicted")
	}
	assert.Equal(t, 0, pool.Len())
}

func TestPoolIdleEvictionSparesAcquired(t *testing.T) {
	t.Parallel()
	clock := clocktest.NewFakeClock()
	pool := newPool(nil, time.Minute, discardLogger(), clock)
	t.Cleanup(func() { _ = pool.Close() })
	addr := route.NewAddress("example.com", 443, nil, nil, nil)

	client, _ := tcpPair(t)
	rt := route.Route{
		Address:  addr,
		Proxy:    route.Direct,
		Endpoint: route.ResolvedEndpoint(netip.MustParseAddr("127.0.0.1"), 443),
	}
	c := newConnection(pool, rt, client, nil, route.ProtocolHTTP11, clock)
	pool.register(c, &testUser{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(2 * time.Minute)

	// Still acquired: the sweep must leave it alone.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, pool.Len())
	assert.Equal(t, StatePooled, c.State())
}

func TestPoolClose(t *testing.T) {
	t.Parallel()
	var closes atomic.Int32
	hooks := &listener.ConnectionListener{
		ConnectionClosed: func(conn.Conn) { closes.Add(1) },
	}
	pool := newPool(hooks, 0, discardLogger(), internal.NewRealClock())
	addr := route.NewAddress("example.com", 443, nil, nil, nil)

	first, _ := testPoolConn(t, pool, addr, route.ProtocolHTTP11)
	second, _ := testPoolConn(t, pool, addr, route.ProtocolHTTP2)
	builder := &testUser{}
	pool.register(first, builder)
	pool.register(second, builder)
	first.release(builder)
	second.release(builder)
	require.Equal(t, 2, pool.Len())

	require.NoError(t, pool.Close())
	assert.Equal(t, 0, pool.Len())
	assert.EqualValues(t, 2, closes.Load())
	assert.Equal(t, StateClosed, first.State())
	assert.Equal(t, StateClosed, second.State())

	// Closing twice is safe.
	require.NoError(t, pool.Close())
}
