// SPDX-License-Identifier: GPL-3.0-or-later

package grpc

import (
	"github.com/bassosimone/runtimex"
)

// SecureChannelCreate creates a secured [*Channel] to the target.
//
// The creds mint the channel's [SecurityConnector]; args is the
// caller's configuration table, borrowed for the call and never
// destroyed by us; reserved must be nil; a nil logger discards logs.
//
// The two recoverable failures return a lame channel and a nil error:
// a security connector already present in args, and credentials that
// fail to mint a connector. Only resolver construction failure
// returns a nil channel and an error. A non-nil returned channel is
// always usable and must be closed with [Channel.Close].
func SecureChannelCreate(cfg *Config, creds ChannelCredentials, target string,
	args *Args, reserved any, logger SLogger) (*Channel, error) {
	runtimex.Assert(reserved == nil)
	runtimex.Assert(cfg != nil)
	if logger == nil {
		logger = DefaultSLogger()
	}
	ec := NewExecCtx()
	defer ec.Flush()
	logger.Info(
		"secureChannelCreateStart",
		"target", target,
		"channelType", ChannelTypeRegular.String(),
		"numArgs", args.Len(),
	)

	// 1. a connector supplied through args would bypass the credentials;
	// refuse it and hand back a lame channel.
	if SecurityConnectorFromArgs(args) != nil {
		const reason = "security connector exists in configuration"
		cfg.Collector.IncChannelCreated("lame")
		logger.Info("secureChannelCreateDone", "target", target, "outcome", "lame", "reason", reason)
		return NewLameChannel(target, CodeInternal, reason), nil
	}

	// 2. mint the security connector, along with the optional
	// replacement configuration table.
	var (
		sc          SecurityConnector
		replacement *Args
		err         error
	)
	if creds != nil {
		sc, replacement, err = creds.CreateSecurityConnector(cfg, target, args, logger)
	}
	if creds == nil || err != nil {
		const reason = "failed to create security connector"
		cfg.Collector.IncChannelCreated("lame")
		logger.Info("secureChannelCreateDone",
			"target", target, "outcome", "lame", "reason", reason, "err", err)
		return NewLameChannel(target, CodeInternal, reason), nil
	}

	// 3. merge: prefer the replacement table over the caller's, add the
	// connector entry, then drop the replacement, which we own.
	base := args
	if replacement != nil {
		base = replacement
	}
	merged := base.CopyAndAdd(RefArg(ArgSecurityConnector, sc))
	if replacement != nil {
		replacement.Destroy()
	}

	// 4. create the factory, which acquires its own connector stake.
	factory := newSecureChannelFactory(cfg, sc, logger)

	// 5. create the channel and its resolver.
	ch, err := factory.CreateChannel(ec, target, ChannelTypeRegular, merged)

	// 6. drop the bootstrap stakes regardless of the outcome: the
	// creation stake in the connector, the merged table with its
	// connector entry, and the factory stake. A live channel keeps its
	// own stakes in the factory and, through its table copy, in the
	// connector.
	sc.Release()
	merged.Destroy()
	factory.Release()

	if err != nil {
		cfg.Collector.IncChannelCreated("none")
		logger.Info("secureChannelCreateDone", "target", target, "outcome", "none", "err", err)
		return nil, err
	}
	cfg.Collector.IncChannelCreated("live")
	logger.Info("secureChannelCreateDone", "target", target, "outcome", "live")
	return ch, nil
}
