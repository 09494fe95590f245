// SPDX-License-Identifier: GPL-3.0-or-later

package grpc

import (
	"context"
	"errors"
	"sync"

	"github.com/bassosimone/runtimex"
)

// ErrNoAddress indicates that subchannel construction was attempted
// without a resolved address.
var ErrNoAddress = errors.New("grpc: subchannel requires an address")

// SubchannelArgs carries the inputs for creating a [*Subchannel].
type SubchannelArgs struct {
	// ServerName is the target server name for the handshake.
	ServerName string

	// Addr is the resolved address to connect to.
	Addr Address

	// Args is the channel configuration, borrowed for the call.
	Args *Args
}

// newSubchannel creates a [*Subchannel] bound to one address.
//
// The subchannel acquires its own stake in the connector; the caller
// keeps whatever stake it already holds.
func newSubchannel(connector Connector, args *SubchannelArgs, logger SLogger) *Subchannel {
	runtimex.Assert(connector != nil)
	runtimex.Assert(args != nil)
	connector.Retain()
	return &Subchannel{
		addr:       args.Addr,
		closeOnce:  sync.Once{},
		connector:  connector,
		logger:     logger,
		serverName: args.ServerName,
	}
}

// Subchannel is one connection attempt pipeline to one resolved
// address.
//
// Each subchannel carries its own [Connector] stake but every
// connector created by the same factory shares that factory's single
// [SecurityConnector]. Call [Subchannel.Close] when done to drop the
// connector stake.
type Subchannel struct {
	// addr is the resolved address.
	addr Address

	// closeOnce makes Close idempotent.
	closeOnce sync.Once

	// connector performs connection attempts.
	connector Connector

	// logger is the structured logger to use.
	logger SLogger

	// serverName is the target server name.
	serverName string
}

// Addr returns the resolved address this subchannel connects to.
func (s *Subchannel) Addr() Address {
	return s.addr
}

// ServerName returns the target server name.
func (s *Subchannel) ServerName() string {
	return s.serverName
}

// Connect performs one connection attempt.
//
// Returns either a valid [*Transport] or an error, never both. The
// caller owns the returned transport.
func (s *Subchannel) Connect(ctx context.Context) (*Transport, error) {
	return s.connector.Connect(ctx, s.addr)
}

// Close drops the subchannel's connector stake. Idempotent.
func (s *Subchannel) Close() {
	s.closeOnce.Do(func() {
		s.connector.Release()
	})
}
