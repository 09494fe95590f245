// SPDX-License-Identifier: GPL-3.0-or-later

package grpc

import (
	"context"
	"time"

	"github.com/bassosimone/dnscodec"
	"github.com/bassosimone/dnsoverhttps"
)

// newDNSOverHTTPSConn wraps a [*Transport] for DNS-over-HTTPS exchanges.
//
// The url argument is the DoH endpoint URL (e.g.,
// "https://dns.google/dns-query").
//
// The returned [*dnsOverHTTPSConn] owns the transport. The caller is
// responsible for calling Close when done.
func newDNSOverHTTPSConn(cfg *Config, txp *Transport, url string, logger SLogger) *dnsOverHTTPSConn {
	return &dnsOverHTTPSConn{
		txp:           txp,
		url:           url,
		ErrClassifier: cfg.ErrClassifier,
		Logger:        logger,
		TimeNow:       cfg.TimeNow,
	}
}

// dnsOverHTTPSConn wraps a [*Transport] for DNS-over-HTTPS exchanges.
//
// All fields are safe to modify after construction but before first use of
// Exchange. Fields must not be mutated concurrently with Exchange.
type dnsOverHTTPSConn struct {
	// txp is the owned transport.
	txp *Transport

	// url is the DoH endpoint URL.
	url string

	// ErrClassifier classifies errors for structured logging.
	ErrClassifier ErrClassifier

	// Logger is the SLogger to use.
	Logger SLogger

	// TimeNow is the function to get the current time.
	TimeNow func() time.Time
}

// Close closes the underlying transport.
func (c *dnsOverHTTPSConn) Close() error {
	return c.txp.Close()
}

// Exchange performs a DNS exchange over HTTPS.
// This method may be called multiple times on the same connection.
func (c *dnsOverHTTPSConn) Exchange(ctx context.Context, query *dnscodec.Query) (*dnscodec.Response, error) {
	// 1. Get the owned transport and underlying connection for logging
	txp := c.txp
	conn := txp.Conn()

	// 2. Create the log context
	t0 := c.TimeNow()
	deadline, _ := ctx.Deadline()
	var rqr []byte
	lc := newDNSExchangeLogContext(c.ErrClassifier, conn, c.Logger, "doh", c.TimeNow)

	// 3. Create the HTTP request and the query message
	lc.logStart(t0, deadline)
	httpReq, queryMsg, err := dnsoverhttps.NewRequestWithHook(ctx, query, c.url, lc.makeQueryObserver(t0, &rqr))
	if err != nil {
		lc.logDone(t0, deadline, err)
		return nil, err
	}

	// 4. Perform the HTTP round trip
	httpResp, err := txp.RoundTrip(httpReq)
	if err != nil {
		lc.logDone(t0, deadline, err)
		return nil, err
	}

	// 5. Read the response and validate it
	resp, err := dnsoverhttps.ReadResponseWithHook(ctx, httpResp, queryMsg, lc.makeResponseObserver(t0, &rqr))
	lc.logDone(t0, deadline, err)
	return resp, err
}
