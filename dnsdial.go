// SPDX-License-Identifier: GPL-3.0-or-later

package grpc

import (
	"context"
	"net"
)

// dnsUnusedDialer is a [Dialer] that panics if DialContext is called.
//
// The DNS conns hand pre-established connections to their transports,
// so the transports must never dial on their own. The sentinel turns
// any such attempt into an immediate programmer-error panic.
type dnsUnusedDialer struct{}

var _ Dialer = dnsUnusedDialer{}

// DialContext implements [Dialer] and always panics.
func (dnsUnusedDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	panic("grpc: DNS transport must not dial; this is a programming error")
}
