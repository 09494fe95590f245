// SPDX-License-Identifier: GPL-3.0-or-later

package grpc

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/bassosimone/netstub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// NewHTTP2Connector starts with one stake owned by the caller.
func TestNewHTTP2Connector(t *testing.T) {
	cfg := NewConfig()

	connector := NewHTTP2Connector(cfg, nil, DefaultSLogger())

	require.NotNil(t, connector)
	assert.NotPanics(t, func() { connector.Release() })
}

// dialContext dials through Config.Dialer and returns a conn or an error.
func TestDialContext(t *testing.T) {
	tests := []struct {
		// name describes what this test case verifies.
		name string

		// dialer is the mock dialer to use.
		dialer *netstub.FuncDialer

		// network is the network type.
		network string

		// address is the target address.
		address string

		// wantErr indicates whether we expect an error.
		wantErr bool
	}{
		{
			name: "successful TCP connect",
			dialer: &netstub.FuncDialer{
				DialContextFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
					conn := newMinimalConn()
					conn.CloseFunc = func() error { return nil }
					conn.LocalAddrFunc = func() net.Addr {
						return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 54321}
					}
					conn.RemoteAddrFunc = func() net.Addr {
						return &net.TCPAddr{IP: net.IPv4(93, 184, 216, 34), Port: 443}
					}
					return conn, nil
				},
			},
			network: "tcp",
			address: "93.184.216.34:443",
			wantErr: false,
		},

		{
			name: "dial error",
			dialer: &netstub.FuncDialer{
				DialContextFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
					return nil, errors.New("connection refused")
				},
			},
			network: "tcp",
			address: "93.184.216.34:443",
			wantErr: true,
		},

		{
			name: "successful unix connect",
			dialer: &netstub.FuncDialer{
				DialContextFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
					conn := newMinimalConn()
					conn.CloseFunc = func() error { return nil }
					conn.LocalAddrFunc = func() net.Addr {
						return &net.UnixAddr{Name: "@", Net: "unix"}
					}
					conn.RemoteAddrFunc = func() net.Addr {
						return &net.UnixAddr{Name: "/run/app.sock", Net: "unix"}
					}
					return conn, nil
				},
			},
			network: "unix",
			address: "/run/app.sock",
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			cfg.Dialer = tt.dialer

			conn, err := dialContext(
				context.Background(), cfg, tt.network, tt.address, DefaultSLogger())

			if tt.wantErr {
				require.Error(t, err)
				assert.Nil(t, conn)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, conn)
			conn.Close()
		})
	}
}

// dialContext wraps the dialed conn so that I/O is observed.
func TestDialContextWrapsForObservation(t *testing.T) {
	logger, records := newCapturingLogger()
	cfg := NewConfig()
	mockConn := newMinimalConn()
	mockConn.ReadFunc = func(b []byte) (int, error) { return 0, nil }
	cfg.Dialer = &netstub.FuncDialer{
		DialContextFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
			return mockConn, nil
		},
	}

	conn, err := dialContext(
		context.Background(), cfg, "tcp", "93.184.216.34:443", logger)
	require.NoError(t, err)

	// The returned conn is the observation wrapper, not the raw conn.
	assert.NotSame(t, net.Conn(mockConn), conn)

	// Reading through the wrapper emits the paired Debug events.
	_, _ = conn.Read(make([]byte, 16))
	var messages []string
	for _, record := range *records {
		messages = append(messages, record.Message)
	}
	assert.Contains(t, messages, "readStart")
	assert.Contains(t, messages, "readDone")
}

// dialContext transparently passes the caller's context to the dialer.
func TestDialContextContextTransparency(t *testing.T) {
	tests := []struct {
		// name describes the scenario.
		name string

		// dialer is the mock dialer to use.
		dialer *netstub.FuncDialer

		// makeCtx builds the context for the call.
		makeCtx func() (context.Context, context.CancelFunc)
	}{
		{
			name: "pre-expired context",
			dialer: &netstub.FuncDialer{
				DialContextFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
					if ctx.Err() != nil {
						return nil, ctx.Err()
					}
					return nil, errors.New("should not reach here")
				},
			},
			makeCtx: func() (context.Context, context.CancelFunc) {
				ctx, cancel := context.WithTimeout(context.Background(), 1*time.Nanosecond)
				time.Sleep(10 * time.Millisecond)
				return ctx, cancel
			},
		},

		{
			name: "context expires during dial",
			dialer: &netstub.FuncDialer{
				DialContextFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
					time.Sleep(10 * time.Millisecond)
					if ctx.Err() != nil {
						return nil, ctx.Err()
					}
					return nil, errors.New("should not reach here")
				},
			},
			makeCtx: func() (context.Context, context.CancelFunc) {
				return context.WithTimeout(context.Background(), 1*time.Nanosecond)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			cfg.Dialer = tt.dialer

			ctx, cancel := tt.makeCtx()
			defer cancel()

			_, err := dialContext(ctx, cfg, "tcp", "93.184.216.34:443", DefaultSLogger())
			require.Error(t, err)
		})
	}
}

// dialContext propagates the caller's context deadline to the dialer.
func TestDialContextCallerContextDeadline(t *testing.T) {
	cfg := NewConfig()
	dialCalled := false
	expectedTimeout := 5 * time.Second
	cfg.Dialer = &netstub.FuncDialer{
		DialContextFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
			dialCalled = true
			deadline, ok := ctx.Deadline()
			assert.True(t, ok, "context should have deadline from caller")
			assert.True(t, time.Until(deadline) <= expectedTimeout)
			return nil, errors.New("expected error")
		},
	}

	// Caller controls timeout via context.WithTimeout
	ctx, cancel := context.WithTimeout(context.Background(), expectedTimeout)
	defer cancel()

	_, _ = dialContext(ctx, cfg, "tcp", "93.184.216.34:443", DefaultSLogger())

	assert.True(t, dialCalled)
}

// dialContext emits connectStart/connectDone log events.
func TestDialContextLogging(t *testing.T) {
	logger, records := newCapturingLogger()

	cfg := NewConfig()
	cfg.Dialer = &netstub.FuncDialer{
		DialContextFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
			conn := newMinimalConn()
			conn.CloseFunc = func() error { return nil }
			return conn, nil
		},
	}

	conn, err := dialContext(
		context.Background(), cfg, "tcp", "93.184.216.34:443", logger)
	require.NoError(t, err)

	require.Len(t, *records, 2)
	assert.Equal(t, "connectStart", (*records)[0].Message)
	assert.Equal(t, "connectDone", (*records)[1].Message)
	conn.Close()
}

// Connect dials, runs the handshake pipeline, and returns a Transport.
func TestHTTP2ConnectorConnect(t *testing.T) {
	cfg := NewConfig()
	closeCalled := false
	cfg.Dialer = &netstub.FuncDialer{
		DialContextFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
			conn := newMinimalConn()
			conn.CloseFunc = func() error {
				closeCalled = true
				return nil
			}
			return conn, nil
		},
	}

	handshakeRan := false
	addHandshakers := func(mgr *HandshakeManager) {
		mgr.Add(HandshakerFunc(func(ctx context.Context, conn net.Conn) (net.Conn, error) {
			handshakeRan = true
			return conn, nil
		}))
	}

	connector := NewHTTP2Connector(cfg, addHandshakers, DefaultSLogger())
	defer connector.Release()

	txp, err := connector.Connect(
		context.Background(), Address{Network: "tcp", Addr: "93.184.216.34:443"})

	require.NoError(t, err)
	require.NotNil(t, txp)
	assert.True(t, handshakeRan)

	// Without TLS the transport speaks HTTP/2 with prior knowledge.
	assert.Equal(t, "h2c", txp.Protocol())

	// Closing the transport closes the dialed connection.
	require.NoError(t, txp.Close())
	assert.True(t, closeCalled)
}

// Connect reports the dial error and returns no transport.
func TestHTTP2ConnectorConnectDialError(t *testing.T) {
	cfg := NewConfig()
	wantErr := errors.New("connection refused")
	cfg.Dialer = &netstub.FuncDialer{
		DialContextFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
			return nil, wantErr
		},
	}

	connector := NewHTTP2Connector(cfg, nil, DefaultSLogger())
	defer connector.Release()

	txp, err := connector.Connect(
		context.Background(), Address{Network: "tcp", Addr: "93.184.216.34:443"})

	require.ErrorIs(t, err, wantErr)
	assert.Nil(t, txp)
}

// Connect reports the handshake error and returns no transport.
func TestHTTP2ConnectorConnectHandshakeError(t *testing.T) {
	cfg := NewConfig()
	cfg.Dialer = &netstub.FuncDialer{
		DialContextFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
			conn := newMinimalConn()
			conn.CloseFunc = func() error { return nil }
			return conn, nil
		},
	}

	wantErr := errors.New("handshake refused")
	addHandshakers := func(mgr *HandshakeManager) {
		mgr.Add(HandshakerFunc(func(ctx context.Context, conn net.Conn) (net.Conn, error) {
			conn.Close()
			return nil, wantErr
		}))
	}

	connector := NewHTTP2Connector(cfg, addHandshakers, DefaultSLogger())
	defer connector.Release()

	txp, err := connector.Connect(
		context.Background(), Address{Network: "tcp", Addr: "93.184.216.34:443"})

	require.ErrorIs(t, err, wantErr)
	assert.Nil(t, txp)
}
