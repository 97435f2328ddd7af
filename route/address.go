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

package route

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/netip"
	"slices"
	"strconv"
	"strings"
)

// Protocol identifies an application-layer protocol that may be offered
// during ALPN or pinned by configuration.
type Protocol int

const (
	// ProtocolHTTP11 is HTTP/1.1 over cleartext or TLS.
	ProtocolHTTP11 Protocol = iota
	// ProtocolHTTP2 is HTTP/2, negotiated via ALPN during the TLS handshake.
	ProtocolHTTP2
	// ProtocolH2PriorKnowledge is cleartext HTTP/2 without negotiation. It
	// must be the only protocol configured when used, since there is no
	// handshake to agree on anything else.
	ProtocolH2PriorKnowledge
)

func (p Protocol) String() string {
	switch p {
	case ProtocolHTTP11:
		return "http/1.1"
	case ProtocolHTTP2:
		return "h2"
	case ProtocolH2PriorKnowledge:
		return "h2_prior_knowledge"
	default:
		return fmt.Sprintf("Protocol(%d)", int(p))
	}
}

// ALPNID returns the identifier offered for this protocol during ALPN,
// or the empty string for protocols that are never negotiated.
func (p Protocol) ALPNID() string {
	switch p {
	case ProtocolHTTP11:
		return "http/1.1"
	case ProtocolHTTP2:
		return "h2"
	default:
		return ""
	}
}

// Address describes a target origin together with the client-wide
// configuration used to reach it. Every Route to the same origin shares
// the same Address, so Address equality defines when two routes belong to
// the same destination family. Addresses are immutable after creation.
type Address struct {
	host      string
	port      int
	tlsConfig *tls.Config
	protocols []Protocol
	proxy     *Proxy
}

// NewAddress creates an address for the given origin. A nil tlsConfig
// means connections are cleartext. If protocols is empty,
// [ProtocolHTTP11] is assumed. The proxy, if non-nil, overrides proxy
// selection for all routes to this address.
func NewAddress(host string, port int, tlsConfig *tls.Config, protocols []Protocol, proxy *Proxy) *Address {
	if len(protocols) == 0 {
		protocols = []Protocol{ProtocolHTTP11}
	}
	return &Address{
		host:      host,
		port:      port,
		tlsConfig: tlsConfig,
		protocols: slices.Clone(protocols),
		proxy:     proxy,
	}
}

// Host returns the origin hostname (or IP literal).
func (a *Address) Host() string { return a.host }

// Port returns the origin port.
func (a *Address) Port() int { return a.port }

// TLSConfig returns the TLS configuration for this address, or nil if
// connections to it are cleartext.
func (a *Address) TLSConfig() *tls.Config { return a.tlsConfig }

// UsesTLS reports whether connections to this address are secured.
func (a *Address) UsesTLS() bool { return a.tlsConfig != nil }

// Protocols returns the configured protocol preference list.
func (a *Address) Protocols() []Protocol { return slices.Clone(a.protocols) }

// Proxy returns the configured proxy override, or nil if proxy selection
// decides per attempt.
func (a *Address) Proxy() *Proxy { return a.proxy }

// PinsPriorKnowledge reports whether the address is pinned to cleartext
// HTTP/2 without negotiation.
func (a *Address) PinsPriorKnowledge() bool {
	return slices.Contains(a.protocols, ProtocolH2PriorKnowledge)
}

// Equal reports whether two addresses describe the same destination
// family: same origin, same security, same protocols, same configured
// proxy override.
func (a *Address) Equal(other *Address) bool {
	if a == nil || other == nil {
		return a == other
	}
	return a.host == other.host &&
		a.port == other.port &&
		a.UsesTLS() == other.UsesTLS() &&
		slices.Equal(a.protocols, other.protocols) &&
		a.proxy.Equal(other.proxy)
}

func (a *Address) String() string {
	return net.JoinHostPort(a.host, strconv.Itoa(a.port))
}

func (a *Address) protocolsKey() string {
	ids := make([]string, len(a.protocols))
	for i, p := range a.protocols {
		ids[i] = p.String()
	}
	return strings.Join(ids, ",")
}

// Endpoint is a resolved socket address. It may retain the hostname it
// was produced from; direct DNS results deliberately do not (no reverse
// lookup is performed), so they carry only the IP.
type Endpoint struct {
	// Host is the name carried by this endpoint, if any. Empty for
	// endpoints known only by IP.
	Host string
	// IP is the resolved address. The zero value means unresolved, which
	// is legitimate for endpoints a proxy resolves on the client's behalf.
	IP netip.Addr
	// Port is the socket port.
	Port int
}

// ResolvedEndpoint returns an endpoint for a bare resolved IP.
func ResolvedEndpoint(ip netip.Addr, port int) Endpoint {
	return Endpoint{IP: ip, Port: port}
}

// UnresolvedEndpoint returns an endpoint carrying only a name, for paths
// where resolution happens elsewhere (e.g. on a SOCKS proxy).
func UnresolvedEndpoint(host string, port int) Endpoint {
	return Endpoint{Host: host, Port: port}
}

// IsResolved reports whether the endpoint has a concrete IP.
func (e Endpoint) IsResolved() bool { return e.IP.IsValid() }

// DialTarget returns the "host:port" string to pass to a dialer. It
// prefers the concrete IP and falls back to the carried name.
func (e Endpoint) DialTarget() string {
	if e.IsResolved() {
		return net.JoinHostPort(e.IP.String(), strconv.Itoa(e.Port))
	}
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

func (e Endpoint) String() string {
	host := e.Host
	if host == "" {
		if !e.IsResolved() {
			return "<unresolved>:" + strconv.Itoa(e.Port)
		}
		host = e.IP.String()
	}
	return net.JoinHostPort(host, strconv.Itoa(e.Port))
}
