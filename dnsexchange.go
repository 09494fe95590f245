// SPDX-License-Identifier: GPL-3.0-or-later

package grpc

import (
	"log/slog"
	"net"
	"time"

	"github.com/bassosimone/safeconn"
)

// newDNSExchangeLogContext creates the per-exchange logging state shared
// by the DNS-over-UDP, DNS-over-TCP, DNS-over-TLS, and DNS-over-HTTPS
// conns. Connection metadata is read from conn up front so that events
// emitted after a close still carry it. The conn may be nil.
func newDNSExchangeLogContext(classifier ErrClassifier, conn net.Conn,
	logger SLogger, serverProtocol string, timeNow func() time.Time) *dnsExchangeLogContext {
	return &dnsExchangeLogContext{
		classifier:     classifier,
		localAddr:      safeconn.LocalAddr(conn),
		logger:         logger,
		protocol:       safeconn.Network(conn),
		remoteAddr:     safeconn.RemoteAddr(conn),
		serverProtocol: serverProtocol,
		timeNow:        timeNow,
	}
}

// dnsExchangeLogContext emits the wire-level events for one DNS exchange
// performed while resolving a channel target.
type dnsExchangeLogContext struct {
	// classifier classifies errors for structured logging.
	classifier ErrClassifier

	// localAddr is the local address of the connection.
	localAddr string

	// logger is the SLogger to use.
	logger SLogger

	// protocol is the network protocol (e.g., "tcp", "udp").
	protocol string

	// remoteAddr is the remote address of the connection.
	remoteAddr string

	// serverProtocol is the DNS protocol (e.g., "udp", "tcp", "dot", "doh").
	serverProtocol string

	// timeNow is the function to get the current time.
	timeNow func() time.Time
}

// logStart logs the start of a DNS exchange.
func (lc *dnsExchangeLogContext) logStart(t0 time.Time, deadline time.Time) {
	lc.logger.Info(
		"dnsExchangeStart",
		slog.Time("deadline", deadline),
		slog.String("localAddr", lc.localAddr),
		slog.String("protocol", lc.protocol),
		slog.String("remoteAddr", lc.remoteAddr),
		slog.String("serverProtocol", lc.serverProtocol),
		slog.Time("t", t0),
	)
}

// logDone logs the completion of a DNS exchange.
func (lc *dnsExchangeLogContext) logDone(t0 time.Time, deadline time.Time, err error) {
	lc.logger.Info(
		"dnsExchangeDone",
		slog.Time("deadline", deadline),
		slog.Any("err", err),
		slog.String("errClass", lc.classifier.Classify(err)),
		slog.String("localAddr", lc.localAddr),
		slog.String("protocol", lc.protocol),
		slog.String("remoteAddr", lc.remoteAddr),
		slog.String("serverProtocol", lc.serverProtocol),
		slog.Time("t0", t0),
		slog.Time("t", lc.timeNow()),
	)
}

// makeQueryObserver returns an observer function for raw DNS queries.
//
// The rqr pointer is used to capture the raw query for correlation
// with the response observer.
func (lc *dnsExchangeLogContext) makeQueryObserver(t0 time.Time, rqr *[]byte) func([]byte) {
	return func(rawQuery []byte) {
		lc.logger.Info(
			"dnsQuery",
			slog.String("serverProtocol", lc.serverProtocol),
			slog.Any("dnsRawQuery", rawQuery),
			slog.String("localAddr", lc.localAddr),
			slog.String("protocol", lc.protocol),
			slog.String("remoteAddr", lc.remoteAddr),
			slog.Time("t", t0),
		)
		*rqr = rawQuery
	}
}

// makeResponseObserver returns an observer function for raw DNS responses.
//
// The rqr pointer should be the same one passed to makeQueryObserver,
// allowing the response to be correlated with the original query.
func (lc *dnsExchangeLogContext) makeResponseObserver(t0 time.Time, rqr *[]byte) func([]byte) {
	return func(rawResp []byte) {
		lc.logger.Info(
			"dnsResponse",
			slog.String("serverProtocol", lc.serverProtocol),
			slog.Any("dnsRawQuery", *rqr),
			slog.String("localAddr", lc.localAddr),
			slog.String("protocol", lc.protocol),
			slog.String("remoteAddr", lc.remoteAddr),
			slog.Time("t0", t0),
			slog.Time("t", lc.timeNow()),
			slog.Any("dnsRawResponse", rawResp),
		)
	}
}
