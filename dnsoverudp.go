// SPDX-License-Identifier: GPL-3.0-or-later

package grpc

import (
	"context"
	"net"
	"net/netip"
	"time"

	"github.com/bassosimone/dnscodec"
	"github.com/bassosimone/minest"
)

// newDNSOverUDPConn wraps a UDP connection for DNS-over-UDP exchanges.
//
// The returned [*dnsOverUDPConn] owns conn. The caller is responsible
// for calling Close when done.
func newDNSOverUDPConn(cfg *Config, conn net.Conn, logger SLogger) *dnsOverUDPConn {
	return &dnsOverUDPConn{
		conn:          conn,
		ErrClassifier: cfg.ErrClassifier,
		Logger:        logger,
		TimeNow:       cfg.TimeNow,
	}
}

// dnsOverUDPConn wraps a UDP connection for DNS-over-UDP exchanges.
//
// All fields are safe to modify after construction but before first use of
// Exchange. Fields must not be mutated concurrently with Exchange.
type dnsOverUDPConn struct {
	// conn is the owned UDP connection.
	conn net.Conn

	// ErrClassifier classifies errors for structured logging.
	ErrClassifier ErrClassifier

	// Logger is the SLogger to use.
	Logger SLogger

	// TimeNow is the function to get the current time.
	TimeNow func() time.Time
}

// Close closes the underlying UDP connection.
func (c *dnsOverUDPConn) Close() error {
	return c.conn.Close()
}

// Exchange performs a DNS exchange over UDP.
// This method may be called multiple times on the same connection.
func (c *dnsOverUDPConn) Exchange(ctx context.Context, query *dnscodec.Query) (*dnscodec.Response, error) {
	// 1. Get the owned connection
	conn := c.conn

	// 2. Create the log context
	t0 := c.TimeNow()
	deadline, _ := ctx.Deadline()
	var rqr []byte
	lc := newDNSExchangeLogContext(c.ErrClassifier, conn, c.Logger, "udp", c.TimeNow)

	// 3. Create the transport
	//
	// Note: we're not going to dial, so let's use a dialer that panics
	// if we attempt to dial (programmer error).
	txp := minest.NewDNSOverUDPTransport(dnsUnusedDialer{}, netip.AddrPortFrom(netip.IPv4Unspecified(), 0))

	// 4. Set observers for raw messages
	txp.ObserveRawQuery = lc.makeQueryObserver(t0, &rqr)
	txp.ObserveRawResponse = lc.makeResponseObserver(t0, &rqr)

	// 5. Execute with logging
	lc.logStart(t0, deadline)
	resp, err := txp.ExchangeWithConn(ctx, conn, query)
	lc.logDone(t0, deadline, err)

	return resp, err
}
