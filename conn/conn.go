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

// Package conn defines the read-only view of a live connection that is
// shared with observers. Listeners receive this view instead of the
// concrete pooled connection so they cannot interfere with pool
// accounting.
package conn

import (
	"crypto/tls"

	"github.com/dayanruben/connroute/route"
)

// Conn is a live, possibly shared, socket-backed connection. It may be
// multiplexed across several concurrent calls (HTTP/2) or owned by one
// call at a time (HTTP/1.1).
type Conn interface {
	// Route is the concrete path this connection was established over.
	Route() route.Route
	// Protocol is the application protocol in use, fixed at negotiation.
	Protocol() route.Protocol
	// TLSState returns the handshake result, or nil for cleartext
	// connections.
	TLSState() *tls.ConnectionState
}
