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
	"fmt"
	"net/netip"

	"github.com/dayanruben/connroute/route"
)

// routeSelector enumerates candidate routes to an address, one proxy
// hop at a time. Each proxy expands into one batch of routes, ordered
// by the route database so previously successful paths come first.
type routeSelector struct {
	dialer  *Dialer
	address *route.Address
	user    ConnectionUser

	proxies   []route.Proxy
	nextProxy int
}

func newRouteSelector(dialer *Dialer, addr *route.Address, user ConnectionUser) *routeSelector {
	return &routeSelector{
		dialer:  dialer,
		address: addr,
		user:    user,
		proxies: selectProxies(dialer, addr, user),
	}
}

// selectProxies determines the proxy hops to try. A configured override
// on the address wins outright and skips selection; otherwise the
// selector is consulted, bracketed by proxy-selection events, and an
// empty answer means direct.
func selectProxies(dialer *Dialer, addr *route.Address, user ConnectionUser) []route.Proxy {
	if override := addr.Proxy(); override != nil {
		return []route.Proxy{*override}
	}
	origin := addr.String()
	user.ProxySelectStart(origin)
	proxies := dialer.proxySelector.Select(addr.Host(), addr.Port())
	user.ProxySelectEnd(origin, proxies)
	if len(proxies) == 0 {
		return []route.Proxy{route.Direct}
	}
	return proxies
}

func (s *routeSelector) hasNext() bool {
	return s.nextProxy < len(s.proxies)
}

// next expands the next proxy hop into its candidate routes, known-good
// routes first.
func (s *routeSelector) next(ctx context.Context) ([]route.Route, error) {
	proxy := s.proxies[s.nextProxy]
	s.nextProxy++

	endpoints, err := s.endpointsFor(ctx, proxy)
	if err != nil {
		return nil, err
	}
	routes := make([]route.Route, len(endpoints))
	for i, endpoint := range endpoints {
		routes[i] = route.Route{Address: s.address, Proxy: proxy, Endpoint: endpoint}
	}
	return s.dialer.routeDB.Prioritize(routes), nil
}

// endpointsFor resolves the socket endpoints for one proxy hop. Direct
// routes resolve the origin; HTTP-proxy routes resolve the proxy and
// keep its name on the endpoint; SOCKS routes resolve nothing, since
// the proxy resolves the origin remotely.
func (s *routeSelector) endpointsFor(ctx context.Context, proxy route.Proxy) ([]route.Endpoint, error) {
	switch proxy.Type {
	case route.ProxyDirect:
		ips, err := s.resolve(ctx, s.address.Host())
		if err != nil {
			return nil, err
		}
		endpoints := make([]route.Endpoint, len(ips))
		for i, ip := range ips {
			endpoints[i] = route.ResolvedEndpoint(ip, s.address.Port())
		}
		return endpoints, nil
	case route.ProxyHTTP:
		ips, err := s.resolve(ctx, proxy.Host)
		if err != nil {
			return nil, err
		}
		endpoints := make([]route.Endpoint, len(ips))
		for i, ip := range ips {
			endpoints[i] = route.Endpoint{Host: proxy.Host, IP: ip, Port: proxy.Port}
		}
		return endpoints, nil
	case route.ProxySOCKS:
		return []route.Endpoint{route.UnresolvedEndpoint(s.address.Host(), s.address.Port())}, nil
	default:
		return nil, fmt.Errorf("unknown proxy type %v", proxy.Type)
	}
}

// resolve looks the host up, bracketed by DNS events. IP literals skip
// the resolver entirely.
func (s *routeSelector) resolve(ctx context.Context, host string) ([]netip.Addr, error) {
	if ip, err := netip.ParseAddr(host); err == nil {
		return []netip.Addr{ip}, nil
	}
	s.user.DNSStart(host)
	ips, err := s.dialer.resolver.LookupIP(ctx, host)
	s.user.DNSEnd(host, ips, err)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", host, err)
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("resolve %s: no addresses", host)
	}
	return ips, nil
}
