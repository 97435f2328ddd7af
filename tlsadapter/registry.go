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
	"net"

	"github.com/dayanruben/connroute/route"
)

// Registry selects among the known adapters. Selection is late-bound: at
// the moment a concrete socket must be configured, each supported
// adapter's MatchesSocket is evaluated in registration order and the
// first match is used.
//
// A Registry is immutable after construction and safe for concurrent
// use.
type Registry struct {
	adapters []Adapter
}

// NewRegistry creates a registry that consults the given adapters in
// order.
func NewRegistry(adapters ...Adapter) *Registry {
	return &Registry{adapters: adapters}
}

// DefaultRegistry returns the registry covering the providers this
// package knows: the standard library, capability-exposing providers,
// and layered sockets wrapping either of those.
func DefaultRegistry() *Registry {
	return NewRegistry(
		Stdlib(),
		Capability(),
		Layered(Stdlib(), Capability()),
	)
}

// Find returns the first supported adapter matching the socket.
func (r *Registry) Find(socket net.Conn) (Adapter, bool) {
	for _, adapter := range r.adapters {
		if adapter.IsSupported() && adapter.MatchesSocket(socket) {
			return adapter, true
		}
	}
	return nil, false
}

// ConfigureExtensions performs provider-specific extension work on the
// socket before its handshake. It reports whether any adapter applied;
// unmatched sockets pass through untouched.
func (r *Registry) ConfigureExtensions(socket net.Conn, hostname string, protocols []route.Protocol) bool {
	adapter, ok := r.Find(socket)
	if !ok {
		return false
	}
	adapter.ConfigureExtensions(socket, hostname, protocols)
	return true
}

// NegotiatedProtocol returns the ALPN result for the socket, or "" when
// no adapter recognizes it or nothing was negotiated.
func (r *Registry) NegotiatedProtocol(socket net.Conn) string {
	adapter, ok := r.Find(socket)
	if !ok {
		return ""
	}
	return adapter.NegotiatedProtocol(socket)
}
