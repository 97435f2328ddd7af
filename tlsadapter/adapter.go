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

package tlsadapter

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"

	"github.com/dayanruben/connroute/route"
)

// TLSConn is the secure-socket surface the connection layer drives
// without committing to a concrete TLS implementation. *tls.Conn
// satisfies it, as do alternative providers that mimic its shape.
type TLSConn interface {
	net.Conn
	// ConnectionState returns the handshake state, in standard library
	// terms.
	ConnectionState() tls.ConnectionState
	// HandshakeContext performs the handshake, bounded by the context.
	HandshakeContext(ctx context.Context) error
}

// The capability interfaces below are the minimal operation set a
// provider can expose for extension configuration. A provider socket
// implements whichever subset it supports; the capability adapter
// invokes exactly the ones present.

// ServerNameCapable is implemented by providers that need the indicated
// hostname set explicitly rather than through their configuration.
type ServerNameCapable interface {
	SetServerName(name string)
}

// ALPNCapable is implemented by providers whose offered protocol list is
// set per socket, and that report the negotiated protocol themselves.
type ALPNCapable interface {
	SetALPNProtocols(protocols []string)
	ALPNProtocol() string
}

// SessionTicketCapable is implemented by providers where session-ticket
// reuse must be switched on per socket.
type SessionTicketCapable interface {
	SetSessionTicketsEnabled(enabled bool)
}

// Unwrapper is implemented by layered sockets that expose the secure
// socket they decorate. The layered adapter walks this chain to locate
// a recognized provider underneath.
type Unwrapper interface {
	Unwrap() net.Conn
}

// Adapter knows how to perform extension configuration for one family of
// secure-socket implementations.
//
// MatchesSocket is evaluated late, against the live socket value, when
// the socket must actually be configured. ConfigureExtensions and
// NegotiatedProtocol must only be invoked on sockets the adapter
// matched; invoking them on anything else is an internal error and
// panics, since it indicates a selection bug rather than a runtime
// condition.
type Adapter interface {
	// IsSupported reports whether this adapter applies in this process
	// at all. Unsupported adapters are skipped during selection.
	IsSupported() bool
	// MatchesSocket reports whether the socket is an instance of the
	// provider family this adapter targets.
	MatchesSocket(socket net.Conn) bool
	// ConfigureExtensions performs the provider-specific extension work
	// before the handshake: session-ticket reuse, indicated hostname,
	// and the offered protocol list.
	ConfigureExtensions(socket net.Conn, hostname string, protocols []route.Protocol)
	// NegotiatedProtocol returns the protocol agreed during the
	// handshake, or "" when none was negotiated.
	NegotiatedProtocol(socket net.Conn) string
}

// ALPNProtocols maps a protocol preference list to the identifiers
// offered during ALPN, skipping protocols that are never negotiated.
func ALPNProtocols(protocols []route.Protocol) []string {
	ids := make([]string, 0, len(protocols))
	for _, p := range protocols {
		if id := p.ALPNID(); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// internalf panics with an internal-assertion failure. These conditions
// are never expected under correct provider behavior; reaching one
// indicates a platform or library mismatch, not a transient fault.
func internalf(format string, args ...any) {
	panic(fmt.Sprintf("tlsadapter: internal error: "+format, args...))
}

// Stdlib returns the adapter for *tls.Conn. The standard library fixes
// the indicated hostname and offered protocols in its tls.Config and
// enables session tickets by default, so extension configuration is
// settled before the socket exists and ConfigureExtensions has no
// residual work.
func Stdlib() Adapter {
	return stdlibAdapter{}
}

type stdlibAdapter struct{}

func (stdlibAdapter) IsSupported() bool { return true }

func (stdlibAdapter) MatchesSocket(socket net.Conn) bool {
	_, ok := socket.(*tls.Conn)
	return ok
}

func (a stdlibAdapter) ConfigureExtensions(socket net.Conn, _ string, _ []route.Protocol) {
	if !a.MatchesSocket(socket) {
		internalf("stdlib adapter invoked on %T", socket)
	}
}

func (a stdlibAdapter) NegotiatedProtocol(socket net.Conn) string {
	tlsConn, ok := socket.(*tls.Conn)
	if !ok {
		internalf("stdlib adapter invoked on %T", socket)
	}
	state := tlsConn.ConnectionState()
	if !state.HandshakeComplete {
		// The provider reports no session, which happens when the
		// socket is observed during teardown. Degrade to "no protocol
		// negotiated" rather than failing.
		return ""
	}
	return state.NegotiatedProtocol
}

// Capability returns the adapter for providers that expose explicit
// extension setters ([ServerNameCapable], [ALPNCapable],
// [SessionTicketCapable]). It matches any socket implementing at least
// one of them and invokes each capability the socket actually has,
// exactly once.
func Capability() Adapter {
	return capabilityAdapter{}
}

type capabilityAdapter struct{}

func (capabilityAdapter) IsSupported() bool { return true }

func (capabilityAdapter) MatchesSocket(socket net.Conn) bool {
	switch socket.(type) {
	case ServerNameCapable, ALPNCapable, SessionTicketCapable:
		return true
	}
	return false
}

func (a capabilityAdapter) ConfigureExtensions(socket net.Conn, hostname string, protocols []route.Protocol) {
	if !a.MatchesSocket(socket) {
		internalf("capability adapter invoked on %T", socket)
	}
	if c, ok := socket.(SessionTicketCapable); ok {
		c.SetSessionTicketsEnabled(true)
	}
	if c, ok := socket.(ServerNameCapable); ok {
		c.SetServerName(hostname)
	}
	if c, ok := socket.(ALPNCapable); ok {
		c.SetALPNProtocols(ALPNProtocols(protocols))
	}
}

func (a capabilityAdapter) NegotiatedProtocol(socket net.Conn) string {
	if !a.MatchesSocket(socket) {
		internalf("capability adapter invoked on %T", socket)
	}
	if c, ok := socket.(ALPNCapable); ok {
		return c.ALPNProtocol()
	}
	return ""
}

// Layered returns the adapter for sockets that decorate another secure
// socket and expose it via [Unwrapper]. Operations walk the unwrap chain
// until one of the delegate adapters recognizes a layer; not finding one
// means the wrapper hides a provider the delegates were not built for,
// which is a fatal assertion rather than a degradable condition.
func Layered(delegates ...Adapter) Adapter {
	return layeredAdapter{delegates: delegates}
}

type layeredAdapter struct {
	delegates []Adapter
}

func (a layeredAdapter) IsSupported() bool { return len(a.delegates) > 0 }

func (a layeredAdapter) MatchesSocket(socket net.Conn) bool {
	_, ok := socket.(Unwrapper)
	return ok
}

func (a layeredAdapter) ConfigureExtensions(socket net.Conn, hostname string, protocols []route.Protocol) {
	delegate, inner := a.locate(socket)
	delegate.ConfigureExtensions(inner, hostname, protocols)
}

func (a layeredAdapter) NegotiatedProtocol(socket net.Conn) string {
	delegate, inner := a.locate(socket)
	return delegate.NegotiatedProtocol(inner)
}

// locate walks the unwrap chain upward until a delegate recognizes the
// socket underneath.
func (a layeredAdapter) locate(socket net.Conn) (Adapter, net.Conn) {
	if !a.MatchesSocket(socket) {
		internalf("layered adapter invoked on %T", socket)
	}
	for current := socket; current != nil; {
		for _, delegate := range a.delegates {
			if delegate.IsSupported() && delegate.MatchesSocket(current) {
				return delegate, current
			}
		}
		wrapper, ok := current.(Unwrapper)
		if !ok {
			break
		}
		current = wrapper.Unwrap()
	}
	internalf("no recognized secure socket beneath %T", socket)
	return nil, nil
}
