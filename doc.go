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

// Package connroute is the connection layer of an HTTP client: it turns
// a logical request for "a connection to this origin" into a live,
// possibly shared, possibly TLS-negotiated socket, connected over one
// of potentially many concrete routes.
//
// To create a dialer use the [New] function. It accepts options for
// the raw dial function, timeouts, name resolution, proxy selection,
// TLS adapters, listeners, and the idle-connection policy. Each logical
// request then becomes a [Call] via [Dialer.NewCall], and
// [Call.AcquireConnection] produces the connection: it prefers the
// call's current connection, then an eligible pooled one, then attempts
// new connects over candidate routes in route-database order.
//
// # Routes
//
// A [route.Route] is one concrete path: the target [route.Address], a
// proxy hop, and the resolved socket endpoint. The same origin
// typically has several routes (multiple DNS answers, multiple
// proxies), and a failed route is not a failed request; the next
// candidate is tried. The shared [route.Database] remembers which
// routes have worked before so they are preferred on later attempts.
//
// # Cancellation
//
// A [Call.Cancel] may arrive from any goroutine at any time. Every
// in-flight connection attempt registers itself with its call before
// doing blocking work, so cancellation tears attempts down promptly by
// closing their sockets rather than waiting for timeouts.
//
// # Pooling
//
// Successful connections register with the dialer's [Pool]. HTTP/2
// connections are shared by concurrent calls; HTTP/1.1 connections are
// exclusive to one call at a time. A connection counts its outstanding
// acquirers itself and closes exactly when the count reaches zero after
// draining begins, or when the pool evicts it for sitting idle past the
// configured timeout.
//
// The dialer has a notion of "closing", via its Close method: the pool
// stops evicting, every live connection is closed, and the dialer
// cannot be used afterwards. Dialers are isolated instances; nothing in
// this package is a process-wide singleton.
package connroute
