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
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ProxyType identifies how a proxy relays traffic.
type ProxyType int

const (
	// ProxyDirect means no proxy at all.
	ProxyDirect ProxyType = iota
	// ProxyHTTP is an HTTP proxy, which relays cleartext requests
	// directly and secure traffic through a CONNECT tunnel.
	ProxyHTTP
	// ProxySOCKS is a SOCKS5 proxy, which resolves and dials the origin
	// on the client's behalf.
	ProxySOCKS
)

func (t ProxyType) String() string {
	switch t {
	case ProxyDirect:
		return "direct"
	case ProxyHTTP:
		return "http"
	case ProxySOCKS:
		return "socks"
	default:
		return fmt.Sprintf("ProxyType(%d)", int(t))
	}
}

// Proxy is one hop a route may pass through. The zero value is the
// direct (no proxy) hop.
type Proxy struct {
	Type ProxyType
	Host string
	Port int
}

// Direct is the no-proxy hop.
var Direct = Proxy{Type: ProxyDirect}

// IsDirect reports whether this hop is no proxy at all.
func (p Proxy) IsDirect() bool { return p.Type == ProxyDirect }

// Endpoint returns the proxy's own "host:port".
func (p Proxy) Endpoint() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

func (p Proxy) String() string {
	if p.IsDirect() {
		return "direct"
	}
	return p.Type.String() + "://" + p.Endpoint()
}

// Equal reports whether two proxy override pointers describe the same
// hop. Two nils are equal; nil never equals a concrete proxy.
func (p *Proxy) Equal(other *Proxy) bool {
	if p == nil || other == nil {
		return p == other
	}
	return *p == *other
}

// Route is one concrete network path to an origin: the address, the
// proxy hop, and the resolved socket endpoint. Routes are immutable and
// value-equal over all three fields.
//
// The Proxy field may legitimately disagree with the address's
// configured proxy override: when the override is nil, proxy selection
// produces this concrete choice per attempt. The two are never
// conflated.
type Route struct {
	Address  *Address
	Proxy    Proxy
	Endpoint Endpoint
}

// RequiresTunnel reports whether this route must establish a CONNECT
// tunnel through its proxy before speaking the application protocol.
// That is the case only for HTTP proxies when the address either uses
// TLS or pins cleartext HTTP/2 prior knowledge. Pure and stateless.
func (r Route) RequiresTunnel() bool {
	return r.Proxy.Type == ProxyHTTP &&
		(r.Address.UsesTLS() || r.Address.PinsPriorKnowledge())
}

// Equal reports structural equality over all three fields.
func (r Route) Equal(other Route) bool {
	return r.Address.Equal(other.Address) &&
		r.Proxy == other.Proxy &&
		r.Endpoint == other.Endpoint
}

// String renders the route for diagnostics. The rendering is stable for
// equal routes and deliberately asymmetric: the common direct case is a
// plain "host" or "host:port", while proxied or renamed paths show the
// extra hop.
//
// The origin port is included only when it differs from the socket port
// or when the socket endpoint carries exactly the origin hostname. A
// " at " (direct) or " via proxy " suffix with the socket endpoint is
// appended only when the endpoint carries a name different from the
// origin hostname, or an "<unresolved>" marker in place of the host
// when a proxied endpoint carries neither name nor IP.
func (r Route) String() string {
	var sb strings.Builder
	addrHost := r.Address.Host()
	appendHost(&sb, addrHost)
	sockName := r.Endpoint.Host
	if r.Address.Port() != r.Endpoint.Port || (sockName != "" && sockName == addrHost) {
		sb.WriteByte(':')
		sb.WriteString(strconv.Itoa(r.Address.Port()))
	}
	switch {
	case sockName != "" && sockName != addrHost:
		sb.WriteString(r.connector())
		appendHost(&sb, sockName)
		sb.WriteByte(':')
		sb.WriteString(strconv.Itoa(r.Endpoint.Port))
	case sockName == "" && !r.Endpoint.IsResolved():
		sb.WriteString(r.connector())
		sb.WriteString("<unresolved>")
		sb.WriteByte(':')
		sb.WriteString(strconv.Itoa(r.Endpoint.Port))
	}
	return sb.String()
}

func (r Route) connector() string {
	if r.Proxy.IsDirect() {
		return " at "
	}
	return " via proxy "
}

// appendHost writes host, bracketing IPv6 literals.
func appendHost(sb *strings.Builder, host string) {
	if strings.Contains(host, ":") {
		sb.WriteByte('[')
		sb.WriteString(host)
		sb.WriteByte(']')
		return
	}
	sb.WriteString(host)
}

// key is the comparable projection of a route used by the Database. It
// covers the same fields as Equal, so key equality is consistent with
// route equality.
type key struct {
	origin       string
	usesTLS      bool
	protocols    string
	addressProxy Proxy
	hasAddrProxy bool
	proxy        Proxy
	endpoint     Endpoint
}

func (r Route) key() key {
	k := key{
		origin:    r.Address.String(),
		usesTLS:   r.Address.UsesTLS(),
		protocols: r.Address.protocolsKey(),
		proxy:     r.Proxy,
		endpoint:  r.Endpoint,
	}
	if override := r.Address.Proxy(); override != nil {
		k.addressProxy = *override
		k.hasAddrProxy = true
	}
	return k
}
