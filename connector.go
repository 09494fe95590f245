//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/ooni/probe-cli/blob/v3.20.1/internal/netxlite/dialer.go
// Adapted from: https://github.com/rbmk-project/rbmk/blob/v0.17.0/pkg/x/netcore/dialer.go
//

package grpc

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/bassosimone/safeconn"
)

// Dialer abstracts the [*net.Dialer] behavior.
//
// By depending on an abstract implementation we allow for unit
// testing and for using alternative dialers.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Address is one resolved endpoint a channel may connect to.
type Address struct {
	// Network is the network to dial (e.g., "tcp", "unix").
	Network string

	// Addr is the address to dial (e.g., "10.0.0.1:443").
	Addr string
}

// Connector performs one connection attempt plus handshake.
//
// A connector decouples "which bytes to exchange to secure a
// connection" (owned by the [SecurityConnector] that injects
// handshakers) from "how to open a socket and run a handshake state
// machine" (owned by the connector itself).
type Connector interface {
	RefValue

	// Connect dials addr, runs the handshake pipeline, and returns a
	// ready [*Transport] or an error, never both.
	Connect(ctx context.Context, addr Address) (*Transport, error)
}

// NewHTTP2Connector creates a [*HTTP2Connector].
//
// The cfg argument contains the common configuration for channel operations.
//
// The addHandshakers argument populates the handshake pipeline for each
// connection attempt; a nil value means no handshake stages.
//
// The logger argument is the [SLogger] to use for structured logging.
//
// The connector starts with one stake owned by the caller.
func NewHTTP2Connector(cfg *Config, addHandshakers func(*HandshakeManager), logger SLogger) *HTTP2Connector {
	c := &HTTP2Connector{
		addHandshakers: addHandshakers,
		cfg:            cfg,
		logger:         logger,
	}
	c.refCount = newRefCount(nil)
	return c
}

// HTTP2Connector implements [Connector] by dialing a raw connection,
// running the injected handshake pipeline over it, and wrapping the
// result into a [*Transport].
type HTTP2Connector struct {
	*refCount

	// addHandshakers populates the handshake pipeline.
	addHandshakers func(*HandshakeManager)

	// cfg is the common configuration.
	cfg *Config

	// logger is the structured logger to use.
	logger SLogger
}

var _ Connector = &HTTP2Connector{}

// Connect implements [Connector].
func (c *HTTP2Connector) Connect(ctx context.Context, addr Address) (*Transport, error) {
	conn, err := dialContext(ctx, c.cfg, addr.Network, addr.Addr, c.logger)
	if err != nil {
		return nil, err
	}
	mgr := NewHandshakeManager()
	if c.addHandshakers != nil {
		c.addHandshakers(mgr)
	}
	secured, err := mgr.Do(ctx, conn)
	if err != nil {
		return nil, err
	}
	return newTransport(c.cfg, secured, c.logger), nil
}

// dialContext dials using [Config.Dialer] with structured logging.
//
// The returned conn is wrapped to observe I/O operations. Returns
// either a valid [net.Conn] or an error, never both.
func dialContext(ctx context.Context, cfg *Config,
	network, address string, logger SLogger) (net.Conn, error) {
	t0 := cfg.TimeNow()
	deadline, _ := ctx.Deadline()
	logConnectStart(logger, network, address, t0, deadline)
	conn, err := cfg.Dialer.DialContext(ctx, network, address)
	logConnectDone(cfg, logger, network, address, t0, deadline, conn, err)
	if err != nil {
		return nil, err
	}
	return newObserveConn(cfg, conn, logger), nil
}

func logConnectStart(logger SLogger, network, address string, t0 time.Time, deadline time.Time) {
	logger.Info(
		"connectStart",
		slog.Time("deadline", deadline),
		slog.String("protocol", network),
		slog.String("remoteAddr", address),
		slog.Time("t", t0),
	)
}

func logConnectDone(cfg *Config, logger SLogger,
	network, address string, t0 time.Time, deadline time.Time, conn net.Conn, err error) {
	logger.Info(
		"connectDone",
		slog.Time("deadline", deadline),
		slog.Any("err", err),
		slog.String("errClass", cfg.ErrClassifier.Classify(err)),
		slog.String("localAddr", safeconn.LocalAddr(conn)),
		slog.String("protocol", network),
		slog.String("remoteAddr", address),
		slog.Time("t0", t0),
		slog.Time("t", cfg.TimeNow()),
	)
}
