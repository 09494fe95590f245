// SPDX-License-Identifier: GPL-3.0-or-later

package grpc

import "fmt"

// ConnectivityState indicates the state of a [Channel].
type ConnectivityState int

const (
	// Idle indicates the channel is idle.
	Idle ConnectivityState = iota

	// Connecting indicates the channel is connecting.
	Connecting

	// Ready indicates the channel is ready for work.
	Ready

	// TransientFailure indicates the channel has seen a failure but
	// expects to recover.
	TransientFailure

	// Shutdown indicates the channel has started shutting down.
	Shutdown
)

// String returns the canonical uppercase name of the state.
func (s ConnectivityState) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Connecting:
		return "CONNECTING"
	case Ready:
		return "READY"
	case TransientFailure:
		return "TRANSIENT_FAILURE"
	case Shutdown:
		return "SHUTDOWN"
	default:
		return fmt.Sprintf("CONNECTIVITY_STATE(%d)", int(s))
	}
}
