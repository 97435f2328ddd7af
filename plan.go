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
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/proxy"

	"github.com/dayanruben/connroute/route"
	"github.com/dayanruben/connroute/tlsadapter"
)

// ConnectPlan is one attempt to establish a connection over one
// concrete route. A plan runs to completion on the attempting
// goroutine; Cancel may arrive from any other goroutine at any point
// and tears the attempt down by closing whatever socket it currently
// holds. A plan is used for exactly one attempt.
type ConnectPlan struct {
	dialer *Dialer
	route  route.Route
	user   ConnectionUser

	canceled atomic.Bool

	mu    sync.Mutex
	state State
	raw   net.Conn
}

func newConnectPlan(dialer *Dialer, rt route.Route, user ConnectionUser) *ConnectPlan {
	return &ConnectPlan{
		dialer: dialer,
		route:  rt,
		user:   user,
		state:  StatePlanning,
	}
}

// Route is the concrete path this plan attempts.
func (p *ConnectPlan) Route() route.Route { return p.route }

// State returns the plan's lifecycle state.
func (p *ConnectPlan) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Cancel tears the attempt down. The in-progress blocking step observes
// the closed socket and fails; a plan canceled before it opened a
// socket observes the flag at its next check. Idempotent.
func (p *ConnectPlan) Cancel() {
	if p.canceled.Swap(true) {
		return
	}
	p.mu.Lock()
	raw := p.raw
	if !p.state.Terminal() {
		p.state = StateCanceled
	}
	p.mu.Unlock()
	if raw != nil {
		_ = raw.Close()
	}
}

// IsCanceled reports whether Cancel has run, on this plan or on the
// user driving it.
func (p *ConnectPlan) IsCanceled() bool {
	return p.canceled.Load() || p.user.IsCanceled()
}

// Connect runs the attempt: raw socket, optional CONNECT tunnel,
// optional TLS, protocol settlement. On success the route is recorded
// in the route database and a Connection carrying the negotiated state
// is returned; the caller registers it with the pool. On failure the
// socket is closed and the error names the route.
//
// Every event bracket opened is closed on all paths: a ConnectStart is
// always answered by CallConnectEnd or ConnectFailed, and a
// SecureConnectStart always by SecureConnectEnd, with a nil state on
// failure.
func (p *ConnectPlan) Connect(ctx context.Context) (*Connection, error) {
	p.user.AddPlanToCancel(p)
	defer p.user.RemovePlanToCancel(p)

	// Canceled before any work: no bracket was opened, so no events fire.
	if p.IsCanceled() {
		return nil, ErrCanceled
	}

	if p.dialer.connectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.dialer.connectTimeout)
		defer cancel()
	}

	p.user.ConnectStart(p.route)
	p.setState(StateConnecting)

	raw, err := p.dialSocket(ctx)
	if err != nil {
		return nil, p.fail(fmt.Errorf("connect to %s: %w", p.route, err))
	}
	if !p.adoptSocket(raw) {
		_ = raw.Close()
		return nil, p.fail(fmt.Errorf("connect to %s: %w", p.route, ErrCanceled))
	}
	// A context cancellation mid-handshake must unblock the socket too.
	stop := context.AfterFunc(ctx, func() { _ = raw.Close() })
	defer stop()

	if p.route.RequiresTunnel() {
		if err := p.connectTunnel(ctx, raw); err != nil {
			_ = raw.Close()
			return nil, p.fail(fmt.Errorf("connect to %s: tunnel: %w", p.route, err))
		}
	}

	var (
		tlsState *tls.ConnectionState
		protocol = route.ProtocolHTTP11
		socket   net.Conn = raw
	)
	switch {
	case p.route.Address.UsesTLS():
		tconn, negotiated, err := p.secureConnect(ctx, raw)
		if err != nil {
			_ = raw.Close()
			return nil, p.fail(fmt.Errorf("connect to %s: %w", p.route, err))
		}
		state := tconn.ConnectionState()
		tlsState = &state
		protocol = negotiated
		socket = tconn
	case p.route.Address.PinsPriorKnowledge():
		protocol = route.ProtocolH2PriorKnowledge
	}

	if p.IsCanceled() {
		_ = socket.Close()
		return nil, p.fail(fmt.Errorf("connect to %s: %w", p.route, ErrCanceled))
	}
	p.setState(StateNegotiated)
	p.user.UpdateRouteDatabaseAfterSuccess(p.route)
	p.user.CallConnectEnd(p.route, protocol)
	return newConnection(p.dialer.pool, p.route, socket, tlsState, protocol, p.dialer.clock), nil
}

// fail records the terminal state and reports the failure once.
func (p *ConnectPlan) fail(err error) error {
	p.mu.Lock()
	if !p.state.Terminal() {
		p.state = StateFailed
	}
	p.mu.Unlock()
	p.user.ConnectFailed(p.route, err)
	return err
}

func (p *ConnectPlan) setState(s State) {
	p.mu.Lock()
	if !p.state.Terminal() {
		p.state = s
	}
	p.mu.Unlock()
}

// adoptSocket stores the raw socket so Cancel can reach it. It reports
// false when cancellation already won the race, in which case the
// caller owns closing the socket.
func (p *ConnectPlan) adoptSocket(raw net.Conn) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.Terminal() {
		return false
	}
	p.raw = raw
	return !p.canceled.Load() && !p.user.IsCanceled()
}

// dialSocket opens the raw transport socket for the route. Direct and
// HTTP-proxy routes dial the resolved endpoint themselves; SOCKS routes
// hand the origin's name to the proxy, which resolves it remotely.
func (p *ConnectPlan) dialSocket(ctx context.Context) (net.Conn, error) {
	if p.route.Proxy.Type == route.ProxySOCKS {
		return p.dialSOCKS(ctx)
	}
	return p.dialer.dialFunc(ctx, "tcp", p.route.Endpoint.DialTarget())
}

func (p *ConnectPlan) dialSOCKS(ctx context.Context) (net.Conn, error) {
	forward := &funcDialer{dialFunc: p.dialer.dialFunc}
	socksDialer, err := proxy.SOCKS5("tcp", p.route.Proxy.Endpoint(), nil, forward)
	if err != nil {
		return nil, err
	}
	contextDialer, ok := socksDialer.(proxy.ContextDialer)
	if !ok {
		return socksDialer.Dial("tcp", p.route.Endpoint.DialTarget())
	}
	return contextDialer.DialContext(ctx, "tcp", p.route.Endpoint.DialTarget())
}

// funcDialer adapts the configured dial function to the forward-dialer
// shape x/net/proxy consumes.
type funcDialer struct {
	dialFunc func(ctx context.Context, network, addr string) (net.Conn, error)
}

func (d *funcDialer) Dial(network, addr string) (net.Conn, error) {
	return d.dialFunc(context.Background(), network, addr)
}

func (d *funcDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	return d.dialFunc(ctx, network, addr)
}

// connectTunnel issues a CONNECT request over the freshly opened proxy
// socket and waits for a 200 before any origin bytes flow. The exchange
// is bounded even when the context is not, so a stalled proxy fails the
// attempt instead of wedging it.
func (p *ConnectPlan) connectTunnel(ctx context.Context, raw net.Conn) error {
	origin := p.route.Address.String()
	req := &http.Request{
		Method: http.MethodConnect,
		URL:    &url.URL{Opaque: origin},
		Host:   origin,
		Header: make(http.Header),
	}
	deadline := time.Now().Add(p.dialer.tunnelTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := raw.SetDeadline(deadline); err != nil {
		return err
	}
	defer func() {
		_ = raw.SetDeadline(time.Time{})
	}()
	if err := req.Write(raw); err != nil {
		return err
	}
	resp, err := http.ReadResponse(bufio.NewReader(raw), req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("proxy refused tunnel: %s", resp.Status)
	}
	return nil
}

// secureConnect runs the TLS handshake and settles the application
// protocol from the ALPN result. The SecureConnectStart bracket is
// closed on every path.
func (p *ConnectPlan) secureConnect(ctx context.Context, raw net.Conn) (tlsadapter.TLSConn, route.Protocol, error) {
	p.setState(StateSecuring)
	p.user.SecureConnectStart(p.route)

	addr := p.route.Address
	config := addr.TLSConfig().Clone()
	if config.ServerName == "" {
		config.ServerName = addr.Host()
	}
	if len(config.NextProtos) == 0 {
		config.NextProtos = tlsadapter.ALPNProtocols(addr.Protocols())
	}

	tconn := p.dialer.tlsClientFactory(raw, config)
	p.dialer.adapters.ConfigureExtensions(tconn, config.ServerName, addr.Protocols())

	// Keep Cancel pointed at the outermost socket so closing it also
	// aborts the handshake beneath.
	p.mu.Lock()
	p.raw = tconn
	p.mu.Unlock()

	handshakeCtx := ctx
	if p.dialer.tlsHandshakeTimeout > 0 {
		var cancel context.CancelFunc
		handshakeCtx, cancel = context.WithTimeout(ctx, p.dialer.tlsHandshakeTimeout)
		defer cancel()
	}
	if err := tconn.HandshakeContext(handshakeCtx); err != nil {
		p.user.SecureConnectEnd(p.route, nil)
		if p.IsCanceled() {
			return nil, 0, ErrCanceled
		}
		return nil, 0, fmt.Errorf("tls handshake: %w", err)
	}

	state := tconn.ConnectionState()
	p.user.SecureConnectEnd(p.route, &state)

	protocol := route.ProtocolHTTP11
	if p.dialer.adapters.NegotiatedProtocol(tconn) == "h2" {
		protocol = route.ProtocolHTTP2
	}
	return tconn, protocol, nil
}
