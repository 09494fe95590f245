// SPDX-License-Identifier: GPL-3.0-or-later

package grpc

import (
	"fmt"

	"github.com/bassosimone/runtimex"
)

// ChannelType selects the channel stack variant to build.
type ChannelType int

const (
	// ChannelTypeRegular is an ordinary channel connecting to backends.
	ChannelTypeRegular ChannelType = iota

	// ChannelTypeLoadBalancing is a channel created by a load balancing
	// policy to reach a balancer rather than a backend.
	ChannelTypeLoadBalancing
)

// String returns the canonical uppercase name of the channel type.
func (t ChannelType) String() string {
	switch t {
	case ChannelTypeRegular:
		return "REGULAR"
	case ChannelTypeLoadBalancing:
		return "LOAD_BALANCING"
	default:
		return fmt.Sprintf("CHANNEL_TYPE(%d)", int(t))
	}
}

// ClientChannelFactory creates channels and subchannels that share one
// security setup.
//
// Factories are shared-ownership values: the bootstrap creates a
// factory with one stake, each channel retains its own stake, and the
// factory's resources are released when the last stake drops.
type ClientChannelFactory interface {
	RefValue

	// CreateSubchannel creates a [*Subchannel] for one resolved
	// address. Continuations that become ready are enqueued on ec.
	CreateSubchannel(ec *ExecCtx, args *SubchannelArgs) (*Subchannel, error)

	// CreateChannel creates a [*Channel] for the target, building its
	// resolver and scheduling its activation on ec. Returns either a
	// valid channel or an error, never both. On error no channel
	// exists and no resources remain allocated for it.
	CreateChannel(ec *ExecCtx, target string, typ ChannelType, args *Args) (*Channel, error)
}

// newSecureChannelFactory creates the [ClientChannelFactory] used by
// [SecureChannelCreate].
//
// The factory acquires its own stake in the security connector at
// construction and drops it when the factory's last stake is released.
// The returned factory carries one stake owned by the caller.
func newSecureChannelFactory(cfg *Config, sc SecurityConnector, logger SLogger) *secureChannelFactory {
	runtimex.Assert(cfg != nil)
	runtimex.Assert(sc != nil)
	sc.Retain()
	f := &secureChannelFactory{
		cfg:       cfg,
		connector: sc,
		logger:    logger,
		refs:      nil,
	}
	f.refs = newRefCount(f.destroy)
	return f
}

// secureChannelFactory builds channels whose subchannels handshake
// through a shared [SecurityConnector].
type secureChannelFactory struct {
	// cfg contains the channel configuration.
	cfg *Config

	// connector is the shared security connector.
	connector SecurityConnector

	// logger is the structured logger to use.
	logger SLogger

	// refs counts the outstanding stakes.
	refs *refCount
}

var _ ClientChannelFactory = &secureChannelFactory{}

// destroy drops the factory's security connector stake.
func (f *secureChannelFactory) destroy() {
	f.connector.Release()
}

// Retain implements [RefValue].
func (f *secureChannelFactory) Retain() {
	f.refs.Retain()
}

// Release implements [RefValue].
func (f *secureChannelFactory) Release() {
	f.refs.Release()
}

// CreateSubchannel implements [ClientChannelFactory].
//
// The subchannel's connector borrows the factory's security connector,
// which outlives every subchannel because each channel holds a factory
// stake for as long as its subchannels exist.
func (f *secureChannelFactory) CreateSubchannel(ec *ExecCtx, args *SubchannelArgs) (*Subchannel, error) {
	runtimex.Assert(ec != nil)
	runtimex.Assert(args != nil)
	if args.Addr.Addr == "" {
		return nil, ErrNoAddress
	}
	connector := NewHTTP2Connector(f.cfg, f.connector.AddHandshakers, f.logger)
	sub := newSubchannel(connector, args, f.logger)
	connector.Release()
	return sub, nil
}

// CreateChannel implements [ClientChannelFactory].
func (f *secureChannelFactory) CreateChannel(ec *ExecCtx,
	target string, typ ChannelType, args *Args) (*Channel, error) {
	return createChannel(ec, f, f.cfg, target, typ, args, f.logger)
}

// createChannel is the channel construction sequence shared by the
// factory implementations.
//
// It builds the channel first and the resolver second. When resolver
// construction fails, the channel that was just built is torn down
// before returning, so the caller never sees a half-initialized
// channel.
func createChannel(ec *ExecCtx, factory ClientChannelFactory, cfg *Config,
	target string, typ ChannelType, args *Args, logger SLogger) (*Channel, error) {
	runtimex.Assert(ec != nil)
	ch := newChannel(cfg, target, typ, args, logger)
	resolver, parsed, err := cfg.Resolvers.Build(cfg, target, ch.args, logger)
	if err != nil {
		ch.destroy()
		return nil, err
	}
	ch.finishInitialization(ec, resolver, parsed, factory)
	return ch, nil
}
