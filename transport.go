//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/rbmk-project/rbmk/blob/v0.17.0/pkg/common/httpslog/httpslog.go
//

package grpc

import (
	"crypto/tls"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bassosimone/safeconn"
	"github.com/bassosimone/sud"
	"golang.org/x/net/http2"
)

// newTransport wraps a secured connection into a [*Transport].
//
// Protocol selection: when the connection exposes a TLS connection
// state we follow the negotiated ALPN ("h2" or HTTP/1.1 fallback);
// otherwise we assume HTTP/2 with prior knowledge, since channels
// speak HTTP/2 even without TLS.
//
// The caller is responsible for closing the returned [*Transport],
// which also closes the underlying connection.
func newTransport(cfg *Config, conn net.Conn, logger SLogger) *Transport {
	// Obtain the protocol that was negotiated, if any
	type connectionStater interface {
		ConnectionState() tls.ConnectionState
	}
	stater, isTLS := conn.(connectionStater)
	var alpn string
	if isTLS {
		alpn = stater.ConnectionState().NegotiatedProtocol
	}

	// Create a special dialer that works just once
	dialer := sud.NewSingleUseDialer(conn)

	// Create proper transport depending on protocol
	var (
		txp           http.RoundTripper
		closeIdleFunc func()
		protocol      string
	)
	switch {
	case isTLS && alpn == "h2":
		h2txp := &http2.Transport{
			DialTLSContext:     dialer.DialTLSContext,
			DisableCompression: false,
		}
		txp = h2txp
		closeIdleFunc = h2txp.CloseIdleConnections
		protocol = "h2"

	case isTLS:
		h1txp := &http.Transport{
			DialContext:        dialer.DialContext,
			DialTLSContext:     dialer.DialContext,
			DisableKeepAlives:  true,
			DisableCompression: false,
		}
		txp = h1txp
		closeIdleFunc = h1txp.CloseIdleConnections
		protocol = "http/1.1"

	default:
		h2txp := &http2.Transport{
			AllowHTTP:          true,
			DialTLSContext:     dialer.DialTLSContext,
			DisableCompression: false,
		}
		txp = h2txp
		closeIdleFunc = h2txp.CloseIdleConnections
		protocol = "h2c"
	}

	return &Transport{
		conn:          conn,
		txp:           txp,
		closeIdleFunc: closeIdleFunc,
		protocol:      protocol,
		ErrClassifier: cfg.ErrClassifier,
		Logger:        logger,
		TimeNow:       cfg.TimeNow,
	}
}

// Transport is an established, secured connection configured to carry
// HTTP requests.
//
// The caller is responsible for calling [Transport.Close] when done.
//
// Transport performs round trips with structured logging and transparent
// body observation: httpRoundTripStart/httpRoundTripDone span events are
// emitted around each round trip, and the response body is lazily wrapped
// to emit httpBodyStreamStart/httpBodyStreamDone events.
type Transport struct {
	// conn is the underlying connection.
	conn net.Conn

	// txp is the HTTP transport.
	txp http.RoundTripper

	// closeIdleFunc closes idle connections in the transport.
	closeIdleFunc func()

	// protocol is the selected application protocol.
	protocol string

	// ErrClassifier classifies errors for structured logging.
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use (configurable for testing or custom logging).
	Logger SLogger

	// TimeNow is the function to get the current time (configurable for testing).
	TimeNow func() time.Time
}

var _ http.RoundTripper = &Transport{}

// RoundTrip implements [http.RoundTripper].
func (tx *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	// 1. Get the underlying connection for logging metadata
	conn := tx.conn

	// 2. Log before the round trip
	t0 := tx.TimeNow()
	deadline, _ := req.Context().Deadline()
	tx.logRoundTripStart(conn, req, t0, deadline)

	// 3. Perform the round trip
	resp, err := tx.txp.RoundTrip(req)

	// 4. Log after the round trip
	tx.logRoundTripDone(conn, req, t0, deadline, resp, err)

	// 5. On error, return immediately
	if err != nil {
		return nil, err
	}

	// 6. Wrap the response body with lazy structured logging
	resp.Body = httpBodyWrap(
		resp.Body,
		tx.ErrClassifier,
		safeconn.LocalAddr(conn),
		tx.Logger,
		safeconn.Network(conn),
		safeconn.RemoteAddr(conn),
		tx.TimeNow,
	)
	return resp, nil
}

// Close cleans up the transport and closes the underlying connection.
func (tx *Transport) Close() error {
	tx.closeIdleFunc()
	return tx.conn.Close()
}

// Conn returns the underlying [net.Conn] used by this [*Transport].
//
// This method exists to support logging operations that need connection
// metadata (local/remote addresses, network type).
func (tx *Transport) Conn() net.Conn {
	return tx.conn
}

// Protocol returns the selected application protocol: "h2" or
// "http/1.1" after a TLS handshake, "h2c" otherwise.
func (tx *Transport) Protocol() string {
	return tx.protocol
}

func (tx *Transport) logRoundTripStart(conn net.Conn, req *http.Request, t0 time.Time, deadline time.Time) {
	tx.Logger.Info(
		"httpRoundTripStart",
		slog.Time("deadline", deadline),
		slog.String("httpMethod", req.Method),
		slog.String("httpUrl", req.URL.String()),
		slog.Any("httpRequestHeaders", req.Header),
		slog.String("localAddr", safeconn.LocalAddr(conn)),
		slog.String("protocol", safeconn.Network(conn)),
		slog.String("remoteAddr", safeconn.RemoteAddr(conn)),
		slog.Time("t", t0),
	)
}

func (tx *Transport) logRoundTripDone(conn net.Conn, req *http.Request,
	t0 time.Time, deadline time.Time, resp *http.Response, err error) {
	var (
		statusCode int
		headers    http.Header
	)
	if resp != nil {
		statusCode = resp.StatusCode
		headers = resp.Header
	}
	tx.Logger.Info(
		"httpRoundTripDone",
		slog.Time("deadline", deadline),
		slog.Any("err", err),
		slog.String("errClass", tx.ErrClassifier.Classify(err)),
		slog.String("httpMethod", req.Method),
		slog.String("httpUrl", req.URL.String()),
		slog.Any("httpRequestHeaders", req.Header),
		slog.Any("httpResponseHeaders", headers),
		slog.Int("httpResponseStatusCode", statusCode),
		slog.String("localAddr", safeconn.LocalAddr(conn)),
		slog.String("protocol", safeconn.Network(conn)),
		slog.String("remoteAddr", safeconn.RemoteAddr(conn)),
		slog.Time("t0", t0),
		slog.Time("t", tx.TimeNow()),
	)
}

// httpBodyWrap wraps an HTTP body so that we emit structured log events
// lazily: httpBodyStreamStart on the first Read, and httpBodyStreamDone
// on Close (only if at least one Read happened).
func httpBodyWrap(
	body io.ReadCloser,
	errClass ErrClassifier,
	laddr string,
	logger SLogger,
	protocol string,
	raddr string,
	timeNow func() time.Time,
) io.ReadCloser {
	return &httpBodyWrapper{
		body:      body,
		closeOnce: sync.Once{},
		didRead:   atomic.Bool{},
		errClass:  errClass,
		laddr:     laddr,
		logger:    logger,
		protocol:  protocol,
		raddr:     raddr,
		readOnce:  sync.Once{},
		timeNow:   timeNow,
		t0:        time.Time{},
	}
}

type httpBodyWrapper struct {
	// body is the actual body.
	body io.ReadCloser

	// didRead tracks whether at least one Read happened.
	didRead atomic.Bool

	// errClass is the err classifier in use.
	errClass ErrClassifier

	// laddr is the local address.
	laddr string

	// logger is the [SLogger] in use.
	logger SLogger

	// closeOnce ensures that Close has "once" semantics.
	closeOnce sync.Once

	// protocol is the network protocol ("tcp" or "udp").
	protocol string

	// raddr is the remote address.
	raddr string

	// readOnce ensures we log httpBodyStreamStart only once.
	readOnce sync.Once

	// t0 is the time when we started reading the body.
	t0 time.Time

	// timeNow mocks [time.Now].
	timeNow func() time.Time
}

var _ io.ReadCloser = &httpBodyWrapper{}

// Close implements [io.ReadCloser].
func (b *httpBodyWrapper) Close() (err error) {
	b.closeOnce.Do(func() {
		err = b.body.Close()
		if b.didRead.Load() { // acquire: t0 is visible if this returns true
			b.logger.Info(
				"httpBodyStreamDone",
				slog.Any("err", err),
				slog.String("errClass", b.errClass.Classify(err)),
				slog.String("localAddr", b.laddr),
				slog.String("protocol", b.protocol),
				slog.String("remoteAddr", b.raddr),
				slog.Time("t0", b.t0),
				slog.Time("t", b.timeNow()),
			)
		}
	})
	return
}

// Read implements [io.ReadCloser].
func (b *httpBodyWrapper) Read(buffer []byte) (int, error) {
	b.readOnce.Do(func() {
		b.t0 = b.timeNow()    // write t0 BEFORE the atomic store (release)
		b.didRead.Store(true) // release: makes t0 visible to Close
		b.logger.Info(
			"httpBodyStreamStart",
			slog.String("localAddr", b.laddr),
			slog.String("protocol", b.protocol),
			slog.String("remoteAddr", b.raddr),
			slog.Time("t", b.t0),
		)
	})
	return b.body.Read(buffer)
}
