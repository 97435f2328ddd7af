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

// Package tlsadapter adapts heterogeneous secure-socket implementations
// during handshake. The connection layer cannot compile against every
// TLS provider that may be in use (the standard library, uTLS-style
// parrots, instrumented wrappers), so provider-specific extension work
// goes through an [Adapter] selected at the moment a concrete socket
// must be configured.
//
// Each adapter declares whether it applies to this process at all,
// whether a given live socket is an instance of the provider it targets,
// and the operations it can perform if so: enable session-ticket reuse,
// set the indicated hostname, offer a protocol list for ALPN, and read
// back the negotiated protocol. A [Registry] evaluates adapters in order
// and uses the first match; sockets no adapter recognizes pass through
// with no extension configuration, which is graceful degradation rather
// than an error.
package tlsadapter
