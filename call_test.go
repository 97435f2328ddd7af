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
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"net/netip"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dayanruben/connroute/conn"
	"github.com/dayanruben/connroute/listener"
	"github.com/dayanruben/connroute/route"
)

func fixedResolver(ips ...netip.Addr) Resolver {
	return ResolverFunc(func(_ context.Context, _ string) ([]netip.Addr, error) {
		return ips, nil
	})
}

func TestAcquireConnectionDirect(t *testing.T) {
	t.Parallel()
	_, ap := newLocalListener(t)

	var acquired, poolConnectEnds atomic.Int32
	events := &listener.EventListener{
		ConnectionAcquired: func(conn.Conn) { acquired.Add(1) },
	}
	poolEvents := &listener.ConnectionListener{
		ConnectEnd: func(conn.Conn) { poolConnectEnds.Add(1) },
	}
	dialer := New(
		WithResolver(fixedResolver(ap.Addr())),
		WithConnectionListener(poolEvents),
	)
	t.Cleanup(func() { _ = dialer.Close() })

	call := dialer.NewCall(http.MethodGet, events)
	addr := route.NewAddress("example.com", int(ap.Port()), nil, nil, nil)
	connection, err := call.AcquireConnection(context.Background(), addr)
	require.NoError(t, err)

	assert.Same(t, connection, call.Connection())
	assert.Equal(t, StatePooled, connection.State())
	assert.Equal(t, 1, connection.AcquisitionCount())
	assert.Equal(t, 1, dialer.Pool().Len())
	assert.True(t, dialer.RouteDatabase().WasConnected(connection.Route()))
	assert.EqualValues(t, 1, acquired.Load())
	assert.EqualValues(t, 1, poolConnectEnds.Load())

	call.ReleaseConnection()
	assert.Nil(t, call.Connection())
	assert.Equal(t, 0, connection.AcquisitionCount())
}

func TestAcquireConnectionReusesHeld(t *testing.T) {
	t.Parallel()
	_, ap := newLocalListener(t)

	var resolves atomic.Int32
	resolver := ResolverFunc(func(_ context.Context, _ string) ([]netip.Addr, error) {
		resolves.Add(1)
		return []netip.Addr{ap.Addr()}, nil
	})
	dialer := New(WithResolver(resolver))
	t.Cleanup(func() { _ = dialer.Close() })

	call := dialer.NewCall(http.MethodGet, nil)
	addr := route.NewAddress("example.com", int(ap.Port()), nil, nil, nil)
	first, err := call.AcquireConnection(context.Background(), addr)
	require.NoError(t, err)
	second, err := call.AcquireConnection(context.Background(), addr)
	require.NoError(t, err)

	// The held connection serves the same destination family, so no new
	// resolution or connect happens, even on an exclusive connection.
	assert.Same(t, first, second)
	assert.EqualValues(t, 1, resolves.Load())
	assert.Equal(t, 1, dialer.Pool().Len())
}

func TestAcquireConnectionRetriesNextRoute(t *testing.T) {
	t.Parallel()
	_, ap := newLocalListener(t)
	badIP := netip.MustParseAddr("203.0.113.1")

	dial := func(ctx context.Context, network, target string) (net.Conn, error) {
		host, _, err := net.SplitHostPort(target)
		if err == nil && host == badIP.String() {
			return nil, errors.New("host unreachable")
		}
		return defaultDialer.DialContext(ctx, network, target)
	}
	var failures atomic.Int32
	events := &listener.EventListener{
		ConnectFailed: func(route.Route, error) { failures.Add(1) },
	}
	dialer := New(
		WithResolver(fixedResolver(badIP, ap.Addr())),
		WithDialFunc(dial),
	)
	t.Cleanup(func() { _ = dialer.Close() })

	call := dialer.NewCall(http.MethodGet, events)
	addr := route.NewAddress("example.com", int(ap.Port()), nil, nil, nil)
	connection, err := call.AcquireConnection(context.Background(), addr)
	require.NoError(t, err)

	// The first candidate failed; its failure was reported and the next
	// route carried the call.
	assert.EqualValues(t, 1, failures.Load())
	assert.Equal(t, ap.Addr(), connection.Route().Endpoint.IP)
	assert.Equal(t, 1, dialer.Pool().Len())
}

func TestAcquireConnectionAllRoutesFail(t *testing.T) {
	t.Parallel()
	dialFailed := errors.New("dial failed")
	dial := func(context.Context, string, string) (net.Conn, error) {
		return nil, dialFailed
	}
	dialer := New(
		WithResolver(fixedResolver(netip.MustParseAddr("203.0.113.1"))),
		WithDialFunc(dial),
	)
	t.Cleanup(func() { _ = dialer.Close() })

	call := dialer.NewCall(http.MethodGet, nil)
	addr := route.NewAddress("example.com", 443, nil, nil, nil)
	_, err := call.AcquireConnection(context.Background(), addr)
	require.Error(t, err)
	assert.ErrorIs(t, err, dialFailed)
	assert.NotErrorIs(t, err, ErrCanceled)
	assert.Equal(t, 0, dialer.Pool().Len())
}

func TestAcquireConnectionCanceled(t *testing.T) {
	t.Parallel()
	dialer := New()
	t.Cleanup(func() { _ = dialer.Close() })

	call := dialer.NewCall(http.MethodGet, nil)
	call.Cancel()
	addr := route.NewAddress("example.com", 443, nil, nil, nil)
	_, err := call.AcquireConnection(context.Background(), addr)
	assert.ErrorIs(t, err, ErrCanceled)
}

func TestCancelClosesHeldConnection(t *testing.T) {
	t.Parallel()
	_, ap := newLocalListener(t)
	dialer := New(WithResolver(fixedResolver(ap.Addr())))
	t.Cleanup(func() { _ = dialer.Close() })

	call := dialer.NewCall(http.MethodGet, nil)
	addr := route.NewAddress("example.com", int(ap.Port()), nil, nil, nil)
	connection, err := call.AcquireConnection(context.Background(), addr)
	require.NoError(t, err)

	call.Cancel()
	assert.Equal(t, StateClosed, connection.State())
	assert.Equal(t, 0, dialer.Pool().Len())
	_, err = call.AcquireConnection(context.Background(), addr)
	assert.ErrorIs(t, err, ErrCanceled)
}

func TestAcquireConnectionSharesPooledHTTP2(t *testing.T) {
	t.Parallel()
	lis, ap := newLocalListener(t)
	serverConfig, roots := newTestCertificate(t)
	go func() {
		for {
			socket, err := lis.Accept()
			if err != nil {
				return
			}
			go func() { _ = tls.Server(socket, serverConfig).Handshake() }()
		}
	}()

	dialer := New(WithResolver(fixedResolver(ap.Addr())))
	t.Cleanup(func() { _ = dialer.Close() })
	addr := route.NewAddress(
		"example.com", int(ap.Port()), &tls.Config{RootCAs: roots},
		[]route.Protocol{route.ProtocolHTTP2}, nil,
	)

	first := dialer.NewCall(http.MethodGet, nil)
	firstConn, err := first.AcquireConnection(context.Background(), addr)
	require.NoError(t, err)
	require.Equal(t, route.ProtocolHTTP2, firstConn.Protocol())

	// A second call to the same address shares the multiplexed
	// connection instead of opening another socket.
	second := dialer.NewCall(http.MethodGet, nil)
	secondConn, err := second.AcquireConnection(context.Background(), addr)
	require.NoError(t, err)
	assert.Same(t, firstConn, secondConn)
	assert.Equal(t, 2, firstConn.AcquisitionCount())
	assert.Equal(t, 1, dialer.Pool().Len())

	first.ReleaseConnection()
	second.ReleaseConnection()
	assert.Equal(t, 0, firstConn.AcquisitionCount())
}

func TestConnectEventsFanOutToBothListeners(t *testing.T) {
	t.Parallel()
	_, ap := newLocalListener(t)

	var callStarts, poolStarts atomic.Int32
	events := &listener.EventListener{
		ConnectStart: func(route.Route) { callStarts.Add(1) },
	}
	poolEvents := &listener.ConnectionListener{
		ConnectStart: func(route.Route) { poolStarts.Add(1) },
	}
	dialer := New(
		WithResolver(fixedResolver(ap.Addr())),
		WithConnectionListener(poolEvents),
	)
	t.Cleanup(func() { _ = dialer.Close() })

	call := dialer.NewCall(http.MethodGet, events)
	addr := route.NewAddress("example.com", int(ap.Port()), nil, nil, nil)
	_, err := call.AcquireConnection(context.Background(), addr)
	require.NoError(t, err)

	// One observer never suppresses the other.
	assert.EqualValues(t, 1, callStarts.Load())
	assert.EqualValues(t, 1, poolStarts.Load())
}
