// SPDX-License-Identifier: GPL-3.0-or-later

package grpc

import (
	"crypto/tls"
	"errors"
	"net"
	"strings"

	"github.com/bassosimone/runtimex"
)

// ErrNoServerName indicates that TLS credentials could not determine
// which server name to verify during the handshake.
var ErrNoServerName = errors.New("grpc: cannot determine TLS server name")

// ChannelCredentials produces the [SecurityConnector] for one channel.
//
// Credentials are reusable value objects: each call mints a fresh
// connector bound to the given target and configuration.
type ChannelCredentials interface {
	// CreateSecurityConnector returns a new [SecurityConnector] whose
	// initial stake is owned by the caller, plus an optional replacement
	// configuration table that the caller must prefer over args and
	// destroy once merged. Returns a connector or an error, never both.
	//
	// The args table is borrowed: implementations must not destroy it.
	CreateSecurityConnector(cfg *Config, target string,
		args *Args, logger SLogger) (SecurityConnector, *Args, error)
}

// NewTLSCredentials creates [*TLSCredentials] with the given TLS
// configuration.
//
// The tlsConfig argument must not be nil. Use an empty [*tls.Config]
// to verify against the system certificate pool.
func NewTLSCredentials(tlsConfig *tls.Config) *TLSCredentials {
	runtimex.Assert(tlsConfig != nil)
	return &TLSCredentials{tlsConfig: tlsConfig}
}

// TLSCredentials secures channels with a TLS handshake.
//
// The replacement table returned by CreateSecurityConnector always
// adds an [ArgHTTP2Scheme] entry set to "https". An
// [ArgSSLTargetNameOverride] entry in the channel configuration
// overrides the server name verified during the handshake; in that
// case the replacement table also adds a matching
// [ArgDefaultAuthority] entry.
type TLSCredentials struct {
	tlsConfig *tls.Config
}

var _ ChannelCredentials = &TLSCredentials{}

// CreateSecurityConnector implements [ChannelCredentials].
func (c *TLSCredentials) CreateSecurityConnector(cfg *Config, target string,
	args *Args, logger SLogger) (SecurityConnector, *Args, error) {
	overridden := args.GetString(ArgSSLTargetNameOverride)
	serverName := overridden
	if serverName == "" {
		serverName = tlsServerName(cfg, target)
	}
	if serverName == "" && c.tlsConfig.ServerName == "" {
		return nil, nil, ErrNoServerName
	}
	sc := newTLSSecurityConnector(cfg, c.tlsConfig, serverName, logger)
	extra := []Arg{StringArg(ArgHTTP2Scheme, "https")}
	if overridden != "" {
		extra = append(extra, StringArg(ArgDefaultAuthority, overridden))
	}
	return sc, args.CopyAndAdd(extra...), nil
}

// tlsServerName extracts the host to verify from a channel target.
//
// Scheme recognition mirrors [ResolverRegistry.Build]: when the target
// parses to a registered scheme we take the host from its endpoint,
// otherwise we treat the whole target as "host:port".
func tlsServerName(cfg *Config, target string) string {
	endpoint := target
	parsed, err := ParseTarget(target)
	if err == nil && cfg.Resolvers != nil && cfg.Resolvers.lookup(parsed.Scheme) != nil {
		endpoint = strings.TrimPrefix(parsed.Endpoint, "/")
	}
	host, _, err := net.SplitHostPort(endpoint)
	if err != nil {
		host = endpoint
	}
	return host
}
