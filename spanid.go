// SPDX-License-Identifier: GPL-3.0-or-later

package grpc

import (
	"github.com/bassosimone/runtimex"
	"github.com/google/uuid"
)

// NewSpanID returns a UUIDv7 identifying a span.
//
// A span is a sequence of operations that can fail in a single, specific
// way. For example, one connection attempt to a resolved address, or one
// DNS exchange performed while resolving a channel target. Attaching the
// same span ID to every event of a span lets log consumers correlate the
// Start/Done pairs emitted across goroutines.
//
// The span terminology is borrowed from OTel. UUIDv7 keeps span IDs
// sortable by creation time.
//
// This function panics if the system random number generator fails,
// which should only happen under extraordinary circumstances.
func NewSpanID() string {
	return runtimex.PanicOnError1(uuid.NewV7()).String()
}
