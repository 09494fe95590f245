// SPDX-License-Identifier: GPL-3.0-or-later

package grpc

import (
	"github.com/bassosimone/runtimex"
)

// InsecureChannelCreate creates an unsecured [*Channel] to the target.
//
// Subchannels connect without any handshake on top of TCP and speak
// cleartext HTTP/2. The args table is borrowed for the call; reserved
// must be nil; a nil logger discards logs.
//
// A security connector present in args is a recoverable failure
// returning a lame channel, like in [SecureChannelCreate]: connectors
// only enter configuration through credentials. Resolver construction
// failure returns a nil channel and an error.
func InsecureChannelCreate(cfg *Config, target string,
	args *Args, reserved any, logger SLogger) (*Channel, error) {
	runtimex.Assert(reserved == nil)
	runtimex.Assert(cfg != nil)
	if logger == nil {
		logger = DefaultSLogger()
	}
	ec := NewExecCtx()
	defer ec.Flush()
	logger.Info(
		"insecureChannelCreateStart",
		"target", target,
		"channelType", ChannelTypeRegular.String(),
		"numArgs", args.Len(),
	)

	if SecurityConnectorFromArgs(args) != nil {
		const reason = "security connector exists in configuration"
		cfg.Collector.IncChannelCreated("lame")
		logger.Info("insecureChannelCreateDone", "target", target, "outcome", "lame", "reason", reason)
		return NewLameChannel(target, CodeInternal, reason), nil
	}

	factory := newInsecureChannelFactory(cfg, logger)
	ch, err := factory.CreateChannel(ec, target, ChannelTypeRegular, args)
	factory.Release()

	if err != nil {
		cfg.Collector.IncChannelCreated("none")
		logger.Info("insecureChannelCreateDone", "target", target, "outcome", "none", "err", err)
		return nil, err
	}
	cfg.Collector.IncChannelCreated("live")
	logger.Info("insecureChannelCreateDone", "target", target, "outcome", "live")
	return ch, nil
}

// newInsecureChannelFactory creates the [ClientChannelFactory] used by
// [InsecureChannelCreate]. The returned factory carries one stake
// owned by the caller.
func newInsecureChannelFactory(cfg *Config, logger SLogger) *insecureChannelFactory {
	runtimex.Assert(cfg != nil)
	return &insecureChannelFactory{
		cfg:    cfg,
		logger: logger,
		refs:   newRefCount(nil),
	}
}

// insecureChannelFactory builds channels whose subchannels skip the
// security handshake entirely.
type insecureChannelFactory struct {
	// cfg contains the channel configuration.
	cfg *Config

	// logger is the structured logger to use.
	logger SLogger

	// refs counts the outstanding stakes.
	refs *refCount
}

var _ ClientChannelFactory = &insecureChannelFactory{}

// Retain implements [RefValue].
func (f *insecureChannelFactory) Retain() {
	f.refs.Retain()
}

// Release implements [RefValue].
func (f *insecureChannelFactory) Release() {
	f.refs.Release()
}

// CreateSubchannel implements [ClientChannelFactory].
func (f *insecureChannelFactory) CreateSubchannel(ec *ExecCtx, args *SubchannelArgs) (*Subchannel, error) {
	runtimex.Assert(ec != nil)
	runtimex.Assert(args != nil)
	if args.Addr.Addr == "" {
		return nil, ErrNoAddress
	}
	connector := NewHTTP2Connector(f.cfg, nil, f.logger)
	sub := newSubchannel(connector, args, f.logger)
	connector.Release()
	return sub, nil
}

// CreateChannel implements [ClientChannelFactory].
func (f *insecureChannelFactory) CreateChannel(ec *ExecCtx,
	target string, typ ChannelType, args *Args) (*Channel, error) {
	return createChannel(ec, f, f.cfg, target, typ, args, f.logger)
}
