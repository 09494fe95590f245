// SPDX-License-Identifier: GPL-3.0-or-later

package grpc

import (
	"context"
	"net/netip"
	"time"

	"github.com/bassosimone/dnscodec"
	"github.com/bassosimone/dnsoverstream"
)

// newDNSOverTLSConn wraps a TLS connection for DNS-over-TLS exchanges.
//
// The returned [*dnsOverTLSConn] owns conn. The caller is responsible
// for calling Close when done.
func newDNSOverTLSConn(cfg *Config, conn TLSConn, logger SLogger) *dnsOverTLSConn {
	return &dnsOverTLSConn{
		conn:          conn,
		ErrClassifier: cfg.ErrClassifier,
		Logger:        logger,
		TimeNow:       cfg.TimeNow,
	}
}

// dnsOverTLSConn wraps a TLS connection for DNS-over-TLS exchanges.
//
// All fields are safe to modify after construction but before first use of
// Exchange. Fields must not be mutated concurrently with Exchange.
type dnsOverTLSConn struct {
	// conn is the owned TLS connection.
	conn TLSConn

	// ErrClassifier classifies errors for structured logging.
	ErrClassifier ErrClassifier

	// Logger is the SLogger to use.
	Logger SLogger

	// TimeNow is the function to get the current time.
	TimeNow func() time.Time
}

// Close closes the underlying TLS connection.
func (c *dnsOverTLSConn) Close() error {
	return c.conn.Close()
}

// Exchange performs a DNS exchange over TLS.
// This method may be called multiple times on the same connection.
func (c *dnsOverTLSConn) Exchange(ctx context.Context, query *dnscodec.Query) (*dnscodec.Response, error) {
	// 1. Get the owned connection
	conn := c.conn

	// 2. Create the log context
	t0 := c.TimeNow()
	deadline, _ := ctx.Deadline()
	var rqr []byte
	lc := newDNSExchangeLogContext(c.ErrClassifier, conn, c.Logger, "dot", c.TimeNow)

	// 3. Create the transport
	//
	// Note: we're not going to dial, so let's use a dialer that panics
	// if we attempt to dial (programmer error).
	streamDialer := dnsoverstream.NewStreamOpenerDialerTCP(dnsUnusedDialer{})
	txp := dnsoverstream.NewTransport(streamDialer, netip.AddrPortFrom(netip.IPv4Unspecified(), 0))

	// 4. Set observers for raw messages
	txp.ObserveRawQuery = lc.makeQueryObserver(t0, &rqr)
	txp.ObserveRawResponse = lc.makeResponseObserver(t0, &rqr)

	// 5. Execute with logging
	lc.logStart(t0, deadline)
	so := dnsoverstream.NewTLSStreamOpener(conn) // turns on padding and DNSSEC
	resp, err := txp.ExchangeWithStreamOpener(ctx, so, query)
	lc.logDone(t0, deadline, err)

	return resp, err
}
