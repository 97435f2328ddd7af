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

import "fmt"

// State is a step in the connection lifecycle. A ConnectPlan moves
// through StatePlanning → StateConnecting → StateSecuring (TLS routes
// only) → StateNegotiated; a registered Connection moves through
// StatePooled → StateDraining → StateClosed. StateCanceled and
// StateFailed are terminal and reachable from any non-terminal state
// before StatePooled.
type State int

const (
	StatePlanning State = iota
	StateConnecting
	StateSecuring
	StateNegotiated
	StatePooled
	StateDraining
	StateClosed
	StateCanceled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePlanning:
		return "planning"
	case StateConnecting:
		return "connecting"
	case StateSecuring:
		return "securing"
	case StateNegotiated:
		return "negotiated"
	case StatePooled:
		return "pooled"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	case StateCanceled:
		return "canceled"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	switch s {
	case StateClosed, StateCanceled, StateFailed:
		return true
	default:
		return false
	}
}
