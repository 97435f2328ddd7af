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

// Package route models the concrete network paths an HTTP client may use
// to reach an origin. An [Address] describes the origin plus the
// client-wide configuration for reaching it. A [Route] is one concrete
// path: the address, a proxy (possibly direct), and a resolved socket
// [Endpoint]. A [Database] remembers which routes have connected
// successfully so future attempts can be ordered toward known-good paths.
//
// Routes are immutable values. They are cheap to construct, so callers
// build them fresh for every attempt and rely on value equality for
// deduplication.
package route
