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
	"net/netip"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRoute(lastOctet int) Route {
	addr := NewAddress("example.com", 443, &tls.Config{}, nil, nil)
	ip := netip.MustParseAddr("93.184.216." + strconv.Itoa(lastOctet))
	return Route{Address: addr, Proxy: Direct, Endpoint: ResolvedEndpoint(ip, 443)}
}

func TestDatabaseConnectedIdempotent(t *testing.T) {
	t.Parallel()
	db := NewDatabase()
	rt := testRoute(34)
	assert.False(t, db.WasConnected(rt))
	db.Connected(rt)
	assert.True(t, db.WasConnected(rt))
	db.Connected(rt)
	assert.True(t, db.WasConnected(rt))

	// An equal route built independently hits the same entry.
	assert.True(t, db.WasConnected(testRoute(34)))
	assert.False(t, db.WasConnected(testRoute(35)))
}

func TestDatabasePrioritize(t *testing.T) {
	t.Parallel()
	db := NewDatabase()
	candidates := []Route{testRoute(31), testRoute(32), testRoute(33), testRoute(34)}
	db.Connected(candidates[1])
	db.Connected(candidates[3])

	ordered := db.Prioritize(candidates)
	require.Len(t, ordered, 4)
	// Known-good routes first, relative order preserved in both groups.
	assert.True(t, ordered[0].Equal(candidates[1]))
	assert.True(t, ordered[1].Equal(candidates[3]))
	assert.True(t, ordered[2].Equal(candidates[0]))
	assert.True(t, ordered[3].Equal(candidates[2]))
	// Input untouched.
	assert.True(t, candidates[0].Equal(testRoute(31)))
}

func TestDatabasePrioritizeEmpty(t *testing.T) {
	t.Parallel()
	db := NewDatabase()
	assert.Empty(t, db.Prioritize(nil))
}

func TestDatabaseConcurrentAccess(t *testing.T) {
	t.Parallel()
	db := NewDatabase()
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 100 {
				rt := testRoute((i*100 + j) % 200)
				db.Connected(rt)
				db.WasConnected(rt)
				db.Prioritize([]Route{rt})
			}
		}()
	}
	wg.Wait()
	assert.True(t, db.WasConnected(testRoute(0)))
}
