// SPDX-License-Identifier: GPL-3.0-or-later

package grpc

import (
	"net"
	"time"
)

// Config holds common configuration for channel operations.
//
// Pass this to constructor functions to pre-wire dependencies.
// All fields have sensible defaults set by [NewConfig].
type Config struct {
	// Backoff shapes the delay between channel reconnection rounds.
	//
	// Set by [NewConfig] to [DefaultBackoff].
	Backoff Backoff

	// Collector receives channel lifecycle metrics.
	//
	// Set by [NewConfig] to [NewNoopCollector].
	Collector Collector

	// Dialer is used by [*HTTP2Connector] and the DNS resolver transports.
	//
	// Set by [NewConfig] to [*net.Dialer].
	Dialer Dialer

	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewConfig] to [DefaultErrClassifier].
	ErrClassifier ErrClassifier

	// Resolvers maps target schemes to resolver builders.
	//
	// Set by [NewConfig] to [NewResolverRegistry], which pre-registers
	// the "dns", "ipv4", "ipv6", and "unix" schemes.
	Resolvers *ResolverRegistry

	// TimeNow returns the current time.
	//
	// Set by [NewConfig] to [time.Now].
	TimeNow func() time.Time
}

// NewConfig creates a [*Config] with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Backoff:       DefaultBackoff(),
		Collector:     NewNoopCollector(),
		Dialer:        &net.Dialer{},
		ErrClassifier: DefaultErrClassifier,
		Resolvers:     NewResolverRegistry(),
		TimeNow:       time.Now,
	}
}
