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
	"io"
	"log/slog"
	"net"
	"net/netip"
	"time"

	"github.com/dayanruben/connroute/internal"
	"github.com/dayanruben/connroute/listener"
	"github.com/dayanruben/connroute/route"
	"github.com/dayanruben/connroute/tlsadapter"
)

//nolint:gochecknoglobals
var defaultDialer = &net.Dialer{
	Timeout:   30 * time.Second,
	KeepAlive: 30 * time.Second,
}

// Resolver is the name-resolution capability the connection layer
// consumes. Resolution internals are a collaborator's concern; the
// layer only needs a list of addresses.
type Resolver interface {
	LookupIP(ctx context.Context, host string) ([]netip.Addr, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, host string) ([]netip.Addr, error)

// LookupIP implements Resolver.
func (f ResolverFunc) LookupIP(ctx context.Context, host string) ([]netip.Addr, error) {
	return f(ctx, host)
}

// ProxySelector produces the proxy hops to try, in order, for an origin
// whose address has no configured proxy override. Selector policy is a
// collaborator's concern.
type ProxySelector interface {
	Select(host string, port int) []route.Proxy
}

// ProxySelectorFunc adapts a function to the ProxySelector interface.
type ProxySelectorFunc func(host string, port int) []route.Proxy

// Select implements ProxySelector.
func (f ProxySelectorFunc) Select(host string, port int) []route.Proxy {
	return f(host, port)
}

// TLSClientFactory builds the secure socket for a route from the raw
// socket and the prepared configuration. The default uses [tls.Client];
// alternative TLS providers substitute their own here, and the
// tlsadapter registry takes care of their extension configuration.
type TLSClientFactory func(socket net.Conn, config *tls.Config) tlsadapter.TLSConn

// Option customizes a Dialer.
type Option interface {
	apply(*options)
}

// WithDialFunc configures the function used to open raw sockets. If not
// provided, a default [net.Dialer] with a 30-second timeout and
// 30-second TCP keep-alive is used.
func WithDialFunc(dialFunc func(ctx context.Context, network, addr string) (net.Conn, error)) Option {
	return optionFunc(func(opts *options) {
		opts.dialFunc = dialFunc
	})
}

// WithConnectTimeout bounds each individual route attempt, from socket
// connect through protocol negotiation. Zero means no per-attempt bound
// beyond what the dial function and context impose.
func WithConnectTimeout(timeout time.Duration) Option {
	return optionFunc(func(opts *options) {
		opts.connectTimeout = timeout
	})
}

// WithTLSHandshakeTimeout bounds the TLS handshake step. If zero or not
// provided, a default of 10 seconds is used.
func WithTLSHandshakeTimeout(timeout time.Duration) Option {
	return optionFunc(func(opts *options) {
		opts.tlsHandshakeTimeout = timeout
	})
}

// WithResolver configures name resolution. If not provided, the system
// resolver is used.
func WithResolver(resolver Resolver) Option {
	return optionFunc(func(opts *options) {
		opts.resolver = resolver
	})
}

// WithProxySelector configures proxy selection for addresses without a
// configured proxy override. If not provided, every origin is direct.
func WithProxySelector(selector ProxySelector) Option {
	return optionFunc(func(opts *options) {
		opts.proxySelector = selector
	})
}

// WithTLSAdapters configures the secure-socket capability registry. If
// not provided, [tlsadapter.DefaultRegistry] is used.
func WithTLSAdapters(registry *tlsadapter.Registry) Option {
	return optionFunc(func(opts *options) {
		opts.adapters = registry
	})
}

// WithTLSClientFactory configures how secure sockets are built. If not
// provided, [tls.Client] is used.
func WithTLSClientFactory(factory TLSClientFactory) Option {
	return optionFunc(func(opts *options) {
		opts.tlsClientFactory = factory
	})
}

// WithConnectionListener configures the pool-facing listener that
// receives connection-scoped events for accounting.
func WithConnectionListener(connListener *listener.ConnectionListener) Option {
	return optionFunc(func(opts *options) {
		opts.connListener = connListener
	})
}

// WithIdleConnectionTimeout configures how long a pooled connection may
// sit idle before the pool closes it. Zero (the default) keeps idle
// connections open indefinitely.
func WithIdleConnectionTimeout(timeout time.Duration) Option {
	return optionFunc(func(opts *options) {
		opts.idleTimeout = timeout
	})
}

// WithRouteDatabase injects the route database to consult and update.
// If not provided, the Dialer owns a fresh one. Sharing a database
// across Dialers shares their knowledge of good routes.
func WithRouteDatabase(db *route.Database) Option {
	return optionFunc(func(opts *options) {
		opts.routeDB = db
	})
}

// WithLogger configures structured logging for connect attempts and
// pool activity. If not provided, logs are discarded.
func WithLogger(logger *slog.Logger) Option {
	return optionFunc(func(opts *options) {
		opts.logger = logger
	})
}

type optionFunc func(*options)

func (f optionFunc) apply(opts *options) {
	f(opts)
}

type options struct {
	dialFunc            func(ctx context.Context, network, addr string) (net.Conn, error)
	connectTimeout      time.Duration
	tlsHandshakeTimeout time.Duration
	resolver            Resolver
	proxySelector       ProxySelector
	adapters            *tlsadapter.Registry
	tlsClientFactory    TLSClientFactory
	connListener        *listener.ConnectionListener
	idleTimeout         time.Duration
	routeDB             *route.Database
	logger              *slog.Logger
}

func (opts *options) applyDefaults() {
	if opts.dialFunc == nil {
		opts.dialFunc = defaultDialer.DialContext
	}
	if opts.tlsHandshakeTimeout == 0 {
		opts.tlsHandshakeTimeout = 10 * time.Second
	}
	if opts.resolver == nil {
		opts.resolver = systemResolver{}
	}
	if opts.proxySelector == nil {
		opts.proxySelector = ProxySelectorFunc(func(string, int) []route.Proxy {
			return []route.Proxy{route.Direct}
		})
	}
	if opts.adapters == nil {
		opts.adapters = tlsadapter.DefaultRegistry()
	}
	if opts.tlsClientFactory == nil {
		opts.tlsClientFactory = func(socket net.Conn, config *tls.Config) tlsadapter.TLSConn {
			return tls.Client(socket, config)
		}
	}
	if opts.routeDB == nil {
		opts.routeDB = route.NewDatabase()
	}
	if opts.logger == nil {
		opts.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
}

type systemResolver struct{}

func (systemResolver) LookupIP(ctx context.Context, host string) ([]netip.Addr, error) {
	return net.DefaultResolver.LookupNetIP(ctx, "ip", host)
}

// Dialer turns a logical request for a connection to an origin into a
// live, possibly shared, possibly TLS-negotiated connection. It owns the
// shared pool and route database that the calls it creates collaborate
// through; neither is a process-wide singleton, so isolated instances
// can coexist.
type Dialer struct {
	dialFunc            func(ctx context.Context, network, addr string) (net.Conn, error)
	connectTimeout      time.Duration
	tlsHandshakeTimeout time.Duration
	tunnelTimeout       time.Duration
	resolver            Resolver
	proxySelector       ProxySelector
	adapters            *tlsadapter.Registry
	tlsClientFactory    TLSClientFactory
	routeDB             *route.Database
	pool                *Pool
	logger              *slog.Logger
	clock               internal.Clock
}

// New creates a Dialer with the given options.
func New(opts ...Option) *Dialer {
	return newDialer(internal.NewRealClock(), opts...)
}

func newDialer(clock internal.Clock, opts ...Option) *Dialer {
	var resolved options
	for _, opt := range opts {
		opt.apply(&resolved)
	}
	resolved.applyDefaults()
	return &Dialer{
		dialFunc:            resolved.dialFunc,
		connectTimeout:      resolved.connectTimeout,
		tlsHandshakeTimeout: resolved.tlsHandshakeTimeout,
		tunnelTimeout:       10 * time.Second,
		resolver:            resolved.resolver,
		proxySelector:       resolved.proxySelector,
		adapters:            resolved.adapters,
		tlsClientFactory:    resolved.tlsClientFactory,
		routeDB:             resolved.routeDB,
		pool:                newPool(resolved.connListener, resolved.idleTimeout, resolved.logger, clock),
		logger:              resolved.logger,
		clock:               clock,
	}
}

// Pool returns the shared connection pool.
func (d *Dialer) Pool() *Pool {
	return d.pool
}

// RouteDatabase returns the route database consulted when ordering
// candidate routes.
func (d *Dialer) RouteDatabase() *route.Database {
	return d.routeDB
}

// Close shuts the pool down, closing every live connection. The Dialer
// cannot be used afterwards.
func (d *Dialer) Close() error {
	return d.pool.Close()
}
