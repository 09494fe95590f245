// SPDX-License-Identifier: GPL-3.0-or-later

package grpc

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/bassosimone/safeconn"
)

// Fake security exchange: the client sends a fixed hello line and the
// server answers with a fixed ack line. Authentication only: the
// resulting connection carries plaintext.
const (
	fakeSecurityHello = "fake-security-hello\n"
	fakeSecurityAck   = "fake-security-ack\n"
)

// NewFakeCredentials creates [*FakeCredentials].
func NewFakeCredentials() *FakeCredentials {
	return &FakeCredentials{}
}

// FakeCredentials implements fake transport security.
//
// The fake handshake exchanges two fixed lines in the clear and then
// hands the connection over unchanged. Use it to exercise the full
// channel machinery in tests without certificates; never use it to
// protect real traffic.
type FakeCredentials struct{}

var _ ChannelCredentials = &FakeCredentials{}

// CreateSecurityConnector implements [ChannelCredentials].
//
// This implementation never fails and never replaces the configuration.
func (c *FakeCredentials) CreateSecurityConnector(cfg *Config, target string,
	args *Args, logger SLogger) (SecurityConnector, *Args, error) {
	sc := &fakeSecurityConnector{
		cfg:    cfg,
		logger: logger,
	}
	sc.refCount = newRefCount(nil)
	return sc, nil, nil
}

// fakeSecurityConnector secures connections with the fake exchange.
type fakeSecurityConnector struct {
	*refCount

	// cfg is the common configuration.
	cfg *Config

	// logger is the structured logger to use.
	logger SLogger
}

var _ SecurityConnector = &fakeSecurityConnector{}

// Name implements [SecurityConnector].
func (sc *fakeSecurityConnector) Name() string {
	return "fake"
}

// AddHandshakers implements [SecurityConnector].
func (sc *fakeSecurityConnector) AddHandshakers(mgr *HandshakeManager) {
	mgr.Add(&fakeHandshaker{
		ErrClassifier: sc.cfg.ErrClassifier,
		Logger:        sc.logger,
		TimeNow:       sc.cfg.TimeNow,
		send:          fakeSecurityHello,
		want:          fakeSecurityAck,
	})
}

// NewFakeServerHandshaker returns the server half of the fake security
// exchange, for tests that terminate fake-secured connections.
func NewFakeServerHandshaker(cfg *Config, logger SLogger) Handshaker {
	return &fakeHandshaker{
		ErrClassifier: cfg.ErrClassifier,
		Logger:        logger,
		TimeNow:       cfg.TimeNow,
		send:          fakeSecurityAck,
		server:        true,
		want:          fakeSecurityHello,
	}
}

// fakeHandshaker runs one half of the fake security exchange.
//
// Returns either a valid [net.Conn] or an error, never both.
type fakeHandshaker struct {
	// ErrClassifier classifies errors for structured logging.
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use.
	Logger SLogger

	// TimeNow is the function to get the current time.
	TimeNow func() time.Time

	// send is the line we write.
	send string

	// server selects read-then-write ordering.
	server bool

	// want is the line we expect to read.
	want string
}

var _ Handshaker = &fakeHandshaker{}

// Handshake implements [Handshaker].
func (op *fakeHandshaker) Handshake(ctx context.Context, conn net.Conn) (net.Conn, error) {
	t0 := op.TimeNow()
	deadline, _ := ctx.Deadline()
	op.logHandshakeStart(conn, t0, deadline)
	err := op.exchange(conn)
	op.logHandshakeDone(conn, t0, deadline, err)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// exchange performs the two-line exchange in role order.
func (op *fakeHandshaker) exchange(conn net.Conn) error {
	if op.server {
		if err := op.expectLine(conn); err != nil {
			return err
		}
		return op.sendLine(conn)
	}
	if err := op.sendLine(conn); err != nil {
		return err
	}
	return op.expectLine(conn)
}

func (op *fakeHandshaker) sendLine(conn net.Conn) error {
	_, err := conn.Write([]byte(op.send))
	return err
}

func (op *fakeHandshaker) expectLine(conn net.Conn) error {
	buffer := make([]byte, len(op.want))
	if _, err := io.ReadFull(conn, buffer); err != nil {
		return err
	}
	if got := string(buffer); got != op.want {
		return fmt.Errorf("fake security: unexpected peer line: %q", got)
	}
	return nil
}

func (op *fakeHandshaker) role() string {
	if op.server {
		return "server"
	}
	return "client"
}

func (op *fakeHandshaker) logHandshakeStart(conn net.Conn, t0 time.Time, deadline time.Time) {
	op.Logger.Info(
		"fakeHandshakeStart",
		slog.Time("deadline", deadline),
		slog.String("localAddr", safeconn.LocalAddr(conn)),
		slog.String("protocol", safeconn.Network(conn)),
		slog.String("remoteAddr", safeconn.RemoteAddr(conn)),
		slog.String("role", op.role()),
		slog.Time("t", t0),
	)
}

func (op *fakeHandshaker) logHandshakeDone(conn net.Conn, t0 time.Time, deadline time.Time, err error) {
	op.Logger.Info(
		"fakeHandshakeDone",
		slog.Time("deadline", deadline),
		slog.Any("err", err),
		slog.String("errClass", op.ErrClassifier.Classify(err)),
		slog.String("localAddr", safeconn.LocalAddr(conn)),
		slog.String("protocol", safeconn.Network(conn)),
		slog.String("remoteAddr", safeconn.RemoteAddr(conn)),
		slog.String("role", op.role()),
		slog.Time("t0", t0),
		slog.Time("t", op.TimeNow()),
	)
}
