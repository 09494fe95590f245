// SPDX-License-Identifier: GPL-3.0-or-later

package grpc

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/bassosimone/netstub"
	"github.com/bassosimone/slogstub"
	"github.com/bassosimone/tlsstub"
)

// newCapturingLogger returns a logger that captures all log records into the
// returned slice. The caller can inspect the slice after exercising the code
// under test to verify which events were emitted.
func newCapturingLogger() (*slog.Logger, *[]slog.Record) {
	var records []slog.Record
	handler := &slogstub.FuncHandler{
		EnabledFunc: func(ctx context.Context, level slog.Level) bool {
			return true
		},
		HandleFunc: func(ctx context.Context, record slog.Record) error {
			records = append(records, record)
			return nil
		},
	}
	return slog.New(handler), &records
}

// newMockTLSEngine returns a [*tlsstub.FuncTLSEngine] that wraps the given
// [TLSConn]. The engine's ClientFunc returns the conn, NameFunc returns
// "mock", and ParrotFunc returns "".
func newMockTLSEngine(conn TLSConn) *tlsstub.FuncTLSEngine[TLSConn] {
	return &tlsstub.FuncTLSEngine[TLSConn]{
		ClientFunc: func(c net.Conn, config *tls.Config) TLSConn {
			return conn
		},
		NameFunc: func() string {
			return "mock"
		},
		ParrotFunc: func() string {
			return ""
		},
	}
}

// newMinimalConn returns a [*netstub.FuncConn] with only LocalAddrFunc and
// RemoteAddrFunc set. This is the minimum needed for code that calls
// [safeconn.LocalAddr], [safeconn.RemoteAddr], and [safeconn.Network]
// during construction.
func newMinimalConn() *netstub.FuncConn {
	return &netstub.FuncConn{
		LocalAddrFunc:  func() net.Addr { return &net.TCPAddr{} },
		RemoteAddrFunc: func() net.Addr { return &net.TCPAddr{} },
	}
}

// funcRoundTripper implements http.RoundTripper using a function.
type funcRoundTripper func(*http.Request) (*http.Response, error)

func (f funcRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// newCountingRef returns a [*countingRef] holding one initial stake.
func newCountingRef() *countingRef {
	return &countingRef{count: 1}
}

// countingRef implements [RefValue] while exposing the live stake count,
// so that tests can verify ownership arithmetic.
type countingRef struct {
	mu        sync.Mutex
	count     int
	destroyed bool
}

var _ RefValue = &countingRef{}

func (r *countingRef) Retain() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count < 1 {
		panic("countingRef: retain after destruction")
	}
	r.count++
}

func (r *countingRef) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.count--
	if r.count < 0 {
		panic("countingRef: negative stake count")
	}
	if r.count == 0 {
		r.destroyed = true
	}
}

// Count returns the current number of stakes.
func (r *countingRef) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Destroyed reports whether the last stake was dropped.
func (r *countingRef) Destroyed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.destroyed
}

// newTestSecurityConnector returns a [SecurityConnector] double whose
// stake count is observable and whose handshake injection is optional.
func newTestSecurityConnector(name string) *testSecurityConnector {
	return &testSecurityConnector{
		countingRef:    newCountingRef(),
		addHandshakers: nil,
		name:           name,
	}
}

// testSecurityConnector is a [SecurityConnector] double for tests.
type testSecurityConnector struct {
	*countingRef
	addHandshakers func(*HandshakeManager)
	name           string
}

var _ SecurityConnector = &testSecurityConnector{}

func (c *testSecurityConnector) Name() string {
	return c.name
}

func (c *testSecurityConnector) AddHandshakers(mgr *HandshakeManager) {
	if c.addHandshakers != nil {
		c.addHandshakers(mgr)
	}
}

// funcCredentials implements [ChannelCredentials] using a function.
type funcCredentials struct {
	createFunc func(cfg *Config, target string,
		args *Args, logger SLogger) (SecurityConnector, *Args, error)
}

var _ ChannelCredentials = &funcCredentials{}

func (c *funcCredentials) CreateSecurityConnector(cfg *Config, target string,
	args *Args, logger SLogger) (SecurityConnector, *Args, error) {
	return c.createFunc(cfg, target, args, logger)
}
