// SPDX-License-Identifier: GPL-3.0-or-later

package grpc

import (
	"context"
	"net"
	"net/netip"
	"time"

	"github.com/bassosimone/dnscodec"
	"github.com/bassosimone/dnsoverstream"
)

// newDNSOverTCPConn wraps a TCP connection for DNS-over-TCP exchanges.
//
// The returned [*dnsOverTCPConn] owns conn. The caller is responsible
// for calling Close when done.
func newDNSOverTCPConn(cfg *Config, conn net.Conn, logger SLogger) *dnsOverTCPConn {
	return &dnsOverTCPConn{
		conn:          conn,
		ErrClassifier: cfg.ErrClassifier,
		Logger:        logger,
		TimeNow:       cfg.TimeNow,
	}
}

// dnsOverTCPConn wraps a TCP connection for DNS-over-TCP exchanges.
//
// All fields are safe to modify after construction but before first use of
// Exchange. Fields must not be mutated concurrently with Exchange.
type dnsOverTCPConn struct {
	// conn is the owned TCP connection.
	conn net.Conn

	// ErrClassifier classifies errors for structured logging.
	ErrClassifier ErrClassifier

	// Logger is the SLogger to use.
	Logger SLogger

	// TimeNow is the function to get the current time.
	TimeNow func() time.Time
}

// Close closes the underlying TCP connection.
func (c *dnsOverTCPConn) Close() error {
	return c.conn.Close()
}

// Exchange performs a DNS exchange over TCP.
// This method may be called multiple times on the same connection.
func (c *dnsOverTCPConn) Exchange(ctx context.Context, query *dnscodec.Query) (*dnscodec.Response, error) {
	// 1. Get the owned connection
	conn := c.conn

	// 2. Create the log context
	t0 := c.TimeNow()
	deadline, _ := ctx.Deadline()
	var rqr []byte
	lc := newDNSExchangeLogContext(c.ErrClassifier, conn, c.Logger, "tcp", c.TimeNow)

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
	so := dnsoverstream.NewTCPStreamOpener(conn)
	resp, err := txp.ExchangeWithStreamOpener(ctx, so, query)
	lc.logDone(t0, deadline, err)

	return resp, err
}
