//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/rbmk-project/rbmk/blob/v0.17.0/pkg/x/netcore/tlsdialer.go
// Adapted from: https://github.com/ooni/probe-cli/blob/v3.20.1/internal/measurexlite/tls.go
//

package grpc

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/bassosimone/runtimex"
	"github.com/bassosimone/safeconn"
)

// SecurityConnector knows how to secure connections to one target.
//
// A security connector is shared across every connection attempt a
// channel makes: the factory holds a long-lived stake and each merge
// into a configuration table holds another. It is read-only after
// construction, so no locking is needed beyond the atomic count.
type SecurityConnector interface {
	RefValue

	// Name returns the connector name (e.g., "tls", "fake").
	Name() string

	// AddHandshakers appends this connector's handshake steps to the
	// given pipeline. Called once per connection attempt.
	AddHandshakers(mgr *HandshakeManager)
}

// SecurityConnectorFromArgs returns the [SecurityConnector] embedded in
// the table under [ArgSecurityConnector], or nil when there is none.
//
// The returned connector is borrowed: no stake is transferred.
func SecurityConnectorFromArgs(args *Args) SecurityConnector {
	entry, found := args.Get(ArgSecurityConnector)
	if !found || entry.Kind != ArgKindRef {
		return nil
	}
	sc, ok := entry.Ref.(SecurityConnector)
	if !ok {
		return nil
	}
	return sc
}

// TLSEngine is the engine to create a new [TLSConn].
type TLSEngine interface {
	// Client builds a new client [TLSConn].
	Client(conn net.Conn, config *tls.Config) TLSConn

	// Name returns the engine name.
	Name() string

	// Parrot returns the configured parrot or an empty string.
	Parrot() string
}

// TLSEngineStdlib implements [TLSEngine] for the standard library.
//
// The zero value is ready to use.
type TLSEngineStdlib struct{}

var _ TLSEngine = TLSEngineStdlib{}

// Client implements [TLSEngine].
//
// This function uses [tls.Client] to build a new [*tls.Conn].
func (TLSEngineStdlib) Client(conn net.Conn, config *tls.Config) TLSConn {
	return tls.Client(conn, config)
}

// Name implements [TLSEngine].
//
// This function returns "stdlib".
func (TLSEngineStdlib) Name() string {
	return "stdlib"
}

// Parrot implements [TLSEngine].
//
// This function returns "".
func (s TLSEngineStdlib) Parrot() string {
	return ""
}

// TLSConn abstracts over [*tls.Conn].
//
// By using an abstraction we allow for alternative TLS implementations.
type TLSConn interface {
	// ConnectionState returns the connection state.
	ConnectionState() tls.ConnectionState

	// HandshakeContext performs the handshake unless interrupted by the context.
	HandshakeContext(ctx context.Context) error

	// Embedding Conn means we can use this type as a [net.Conn].
	net.Conn
}

// newTLSSecurityConnector creates the [SecurityConnector] used by
// [*TLSCredentials].
//
// The serverName argument is the name to verify during the handshake,
// already accounting for any [ArgSSLTargetNameOverride] entry.
func newTLSSecurityConnector(cfg *Config, tlsConfig *tls.Config,
	serverName string, logger SLogger) *tlsSecurityConnector {
	runtimex.Assert(tlsConfig != nil)
	sc := &tlsSecurityConnector{
		cfg:        cfg,
		logger:     logger,
		serverName: serverName,
		tlsConfig:  tlsConfig,
	}
	sc.refCount = newRefCount(nil)
	return sc
}

// tlsSecurityConnector secures connections with a TLS handshake.
type tlsSecurityConnector struct {
	*refCount

	// cfg is the common configuration.
	cfg *Config

	// logger is the structured logger to use.
	logger SLogger

	// serverName is the name to verify during the handshake.
	serverName string

	// tlsConfig is the user-provided TLS configuration.
	tlsConfig *tls.Config
}

var _ SecurityConnector = &tlsSecurityConnector{}

// Name implements [SecurityConnector].
func (sc *tlsSecurityConnector) Name() string {
	return "tls"
}

// AddHandshakers implements [SecurityConnector].
func (sc *tlsSecurityConnector) AddHandshakers(mgr *HandshakeManager) {
	config := sc.tlsConfig.Clone()
	if config.ServerName == "" {
		config.ServerName = sc.serverName
	}
	if len(config.NextProtos) <= 0 {
		config.NextProtos = []string{"h2", "http/1.1"}
	}
	mgr.Add(&tlsHandshaker{
		Config:        config,
		Engine:        TLSEngineStdlib{},
		ErrClassifier: sc.cfg.ErrClassifier,
		Logger:        sc.logger,
		TimeNow:       sc.cfg.TimeNow,
	})
}

// tlsHandshaker performs a TLS handshake over an existing [net.Conn].
//
// Returns either a valid [TLSConn] or an error, never both.
//
// All fields are safe to modify after construction but before first use.
// Fields must not be mutated concurrently with calls to [Handshake].
type tlsHandshaker struct {
	// Config contains the [*tls.Config] configuration to use.
	Config *tls.Config

	// Engine is the [TLSEngine] to use to handshake.
	Engine TLSEngine

	// ErrClassifier classifies errors for structured logging.
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use.
	Logger SLogger

	// TimeNow is the function to get the current time.
	TimeNow func() time.Time
}

var _ Handshaker = &tlsHandshaker{}

// Handshake implements [Handshaker].
func (op *tlsHandshaker) Handshake(ctx context.Context, conn net.Conn) (net.Conn, error) {
	tconn, err := op.handshakeTLS(ctx, conn)
	if err != nil {
		return nil, err
	}
	return tconn, nil
}

// handshakeTLS performs the handshake and keeps the [TLSConn] type.
func (op *tlsHandshaker) handshakeTLS(ctx context.Context, conn net.Conn) (TLSConn, error) {
	config := op.tlsConfig()
	tconn := op.Engine.Client(conn, config)
	t0 := op.TimeNow()
	deadline, _ := ctx.Deadline()
	op.logHandshakeStart(op.Engine, conn, t0, deadline, config)
	err := tconn.HandshakeContext(ctx)
	state := tconn.ConnectionState()
	op.logHandshakeDone(op.Engine, conn, t0, deadline, config, err, state)
	return op.finish(tconn, err)
}

func (op *tlsHandshaker) finish(conn TLSConn, err error) (TLSConn, error) {
	if err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func (op *tlsHandshaker) tlsConfig() *tls.Config {
	runtimex.Assert(op.Config != nil)
	config := op.Config.Clone()
	config.Time = op.TimeNow
	return config
}

func (op *tlsHandshaker) logHandshakeStart(engine TLSEngine,
	conn net.Conn, t0 time.Time, deadline time.Time, config *tls.Config) {
	op.Logger.Info(
		"tlsHandshakeStart",
		slog.Time("deadline", deadline),
		slog.String("localAddr", safeconn.LocalAddr(conn)),
		slog.String("protocol", safeconn.Network(conn)),
		slog.String("remoteAddr", safeconn.RemoteAddr(conn)),
		slog.Time("t", t0),
		slog.String("tlsEngineName", engine.Name()),
		slog.String("tlsParrot", engine.Parrot()),
		slog.Any("tlsOfferedProtocols", config.NextProtos),
		slog.String("tlsServerName", config.ServerName),
		slog.Bool("tlsSkipVerify", config.InsecureSkipVerify),
	)
}

func (op *tlsHandshaker) logHandshakeDone(engine TLSEngine,
	conn net.Conn, t0 time.Time, deadline time.Time, config *tls.Config, err error, state tls.ConnectionState) {
	op.Logger.Info(
		"tlsHandshakeDone",
		slog.Time("deadline", deadline),
		slog.Any("err", err),
		slog.String("errClass", op.ErrClassifier.Classify(err)),
		slog.String("localAddr", safeconn.LocalAddr(conn)),
		slog.String("protocol", safeconn.Network(conn)),
		slog.String("remoteAddr", safeconn.RemoteAddr(conn)),
		slog.Time("t0", t0),
		slog.Time("t", op.TimeNow()),
		slog.String("tlsCipherSuite", tls.CipherSuiteName(state.CipherSuite)),
		slog.String("tlsEngineName", engine.Name()),
		slog.String("tlsParrot", engine.Parrot()),
		slog.String("tlsNegotiatedProtocol", state.NegotiatedProtocol),
		slog.Any("tlsOfferedProtocols", config.NextProtos),
		slog.Any("tlsPeerCerts", op.peerCerts(state, err)),
		slog.String("tlsServerName", config.ServerName),
		slog.Bool("tlsSkipVerify", config.InsecureSkipVerify),
		slog.String("tlsVersion", tls.VersionName(state.Version)),
	)
}

func (op *tlsHandshaker) peerCerts(state tls.ConnectionState, err error) (out [][]byte) {
	out = [][]byte{}

	// 1. Check whether the error is a known certificate error and extract
	// the certificate using `errors.As` for additional robustness.
	var x509HostnameError x509.HostnameError
	if errors.As(err, &x509HostnameError) {
		// Test case: https://wrong.host.badssl.com/
		out = append(out, x509HostnameError.Certificate.Raw)
		return
	}

	var x509UnknownAuthorityError x509.UnknownAuthorityError
	if errors.As(err, &x509UnknownAuthorityError) {
		// Test case: https://self-signed.badssl.com/
		out = append(out, x509UnknownAuthorityError.Cert.Raw)
		return
	}

	var x509CertificateInvalidError x509.CertificateInvalidError
	if errors.As(err, &x509CertificateInvalidError) {
		// Test case: https://expired.badssl.com/
		out = append(out, x509CertificateInvalidError.Cert.Raw)
		return
	}

	// 2. Otherwise extract certificates from the connection state.
	for _, cert := range state.PeerCertificates {
		out = append(out, cert.Raw)
	}
	return
}
