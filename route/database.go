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

import "sync"

// Database remembers which routes have connected successfully. It is
// shared by every call the owning client runs, so all methods are safe
// for arbitrary concurrent use. Entries are never removed.
type Database struct {
	mu        sync.RWMutex
	connected map[key]struct{}
}

// NewDatabase creates an empty database.
func NewDatabase() *Database {
	return &Database{connected: map[key]struct{}{}}
}

// Connected records that the given route completed a connect
// successfully. Recording the same route twice has the same effect as
// recording it once.
func (d *Database) Connected(r Route) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected[r.key()] = struct{}{}
}

// WasConnected reports whether the given route has ever connected
// successfully.
func (d *Database) WasConnected(r Route) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.connected[r.key()]
	return ok
}

// Prioritize reorders candidate routes so that previously successful
// ones come first. The sort is stable: within each of the two groups
// the input order is preserved. The input slice is not modified.
func (d *Database) Prioritize(routes []Route) []Route {
	known := make([]Route, 0, len(routes))
	rest := make([]Route, 0, len(routes))
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, r := range routes {
		if _, ok := d.connected[r.key()]; ok {
			known = append(known, r)
		} else {
			rest = append(rest, r)
		}
	}
	return append(known, rest...)
}
