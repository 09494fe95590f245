// SPDX-License-Identifier: GPL-3.0-or-later

package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/bassosimone/netstub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// String returns the canonical name of each channel type.
func TestChannelTypeString(t *testing.T) {
	// testcase is a test case for this function.
	type testcase struct {
		// name is the test case name.
		name string

		// typ is the channel type to format.
		typ ChannelType

		// want is the expected string.
		want string
	}

	cases := []testcase{
		{
			name: "for the regular type",
			typ:  ChannelTypeRegular,
			want: "REGULAR",
		},

		{
			name: "for the load balancing type",
			typ:  ChannelTypeLoadBalancing,
			want: "LOAD_BALANCING",
		},

		{
			name: "for an unknown type",
			typ:  ChannelType(42),
			want: "CHANNEL_TYPE(42)",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.typ.String())
		})
	}
}

// newSecureChannelFactory acquires a connector stake and drops it when
// the factory's last stake is released.
func TestNewSecureChannelFactoryStakes(t *testing.T) {
	cfg := NewConfig()
	sc := newTestSecurityConnector("tls")
	require.Equal(t, 1, sc.Count())

	factory := newSecureChannelFactory(cfg, sc, DefaultSLogger())

	// Should hold the creator stake plus the factory stake
	assert.Equal(t, 2, sc.Count())

	factory.Release()

	// Should drop only the factory stake
	assert.Equal(t, 1, sc.Count())
	assert.False(t, sc.Destroyed())

	sc.Release()
	assert.True(t, sc.Destroyed())
}

// newSecureChannelFactory rejects nil configuration and connector.
func TestNewSecureChannelFactoryAsserts(t *testing.T) {
	cfg := NewConfig()
	sc := newTestSecurityConnector("tls")

	assert.Panics(t, func() {
		newSecureChannelFactory(nil, sc, DefaultSLogger())
	})
	assert.Panics(t, func() {
		newSecureChannelFactory(cfg, nil, DefaultSLogger())
	})
}

// The factory keeps its connector stake until the last factory stake drops.
func TestSecureChannelFactoryRetainRelease(t *testing.T) {
	cfg := NewConfig()
	sc := newTestSecurityConnector("tls")

	factory := newSecureChannelFactory(cfg, sc, DefaultSLogger())
	require.Equal(t, 2, sc.Count())

	factory.Retain()
	factory.Release()

	// Should still hold the connector stake
	assert.Equal(t, 2, sc.Count())

	factory.Release()
	assert.Equal(t, 1, sc.Count())
}

// CreateSubchannel rejects an empty address.
func TestSecureChannelFactoryCreateSubchannelNoAddress(t *testing.T) {
	cfg := NewConfig()
	sc := newTestSecurityConnector("tls")
	factory := newSecureChannelFactory(cfg, sc, DefaultSLogger())
	defer factory.Release()

	ec := NewExecCtx()
	sub, err := factory.CreateSubchannel(ec, &SubchannelArgs{
		ServerName: "service.example.com",
		Addr:       Address{},
		Args:       nil,
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoAddress)
	assert.Nil(t, sub)
}

// Subchannels created by the factory handshake through the shared connector.
func TestSecureChannelFactoryCreateSubchannel(t *testing.T) {
	handshakeRan := false
	sc := newTestSecurityConnector("tls")
	sc.addHandshakers = func(mgr *HandshakeManager) {
		mgr.Add(HandshakerFunc(func(ctx context.Context, conn net.Conn) (net.Conn, error) {
			handshakeRan = true
			return conn, nil
		}))
	}

	cfg := NewConfig()
	cfg.Dialer = &netstub.FuncDialer{
		DialContextFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
			conn := newMinimalConn()
			conn.CloseFunc = func() error { return nil }
			return conn, nil
		},
	}

	factory := newSecureChannelFactory(cfg, sc, DefaultSLogger())
	defer factory.Release()

	ec := NewExecCtx()
	sub, err := factory.CreateSubchannel(ec, &SubchannelArgs{
		ServerName: "service.example.com",
		Addr:       Address{Network: "tcp", Addr: "10.0.0.1:443"},
		Args:       nil,
	})
	require.NoError(t, err)
	require.NotNil(t, sub)
	defer sub.Close()

	assert.Equal(t, "service.example.com", sub.ServerName())
	assert.Equal(t, Address{Network: "tcp", Addr: "10.0.0.1:443"}, sub.Addr())

	txp, err := sub.Connect(context.Background())
	require.NoError(t, err)
	defer txp.Close()

	assert.True(t, handshakeRan)
	assert.Equal(t, "h2c", txp.Protocol())
}

// createChannel tears the channel down when resolver construction fails.
func TestCreateChannelResolverFailure(t *testing.T) {
	cfg := NewConfig()
	sc := newTestSecurityConnector("tls")
	args := NewArgs(RefArg(ArgSecurityConnector, sc))
	require.Equal(t, 2, sc.Count())

	factory := newSecureChannelFactory(cfg, sc, DefaultSLogger())
	require.Equal(t, 3, sc.Count())

	ec := NewExecCtx()
	ch, err := factory.CreateChannel(ec, "dns:///bad/endpoint", ChannelTypeRegular, args)

	require.Error(t, err)
	assert.ErrorContains(t, err, "invalid dns endpoint")
	assert.Nil(t, ch)

	// Should not leak the failed channel's table copy
	assert.Equal(t, 3, sc.Count())
	assert.Equal(t, 0, ec.Pending())

	args.Destroy()
	factory.Release()
	assert.Equal(t, 1, sc.Count())
}

// CreateChannel returns an idle channel whose activation waits for the flush.
func TestCreateChannelSchedulesStart(t *testing.T) {
	cfg := NewConfig()
	cfg.Backoff = Backoff{
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   1.1,
		Jitter:       false,
	}
	cfg.Dialer = &netstub.FuncDialer{
		DialContextFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
			return nil, net.ErrClosed
		},
	}

	sc := newTestSecurityConnector("tls")
	factory := newSecureChannelFactory(cfg, sc, DefaultSLogger())
	defer factory.Release()

	ec := NewExecCtx()
	ch, err := factory.CreateChannel(ec, "ipv4:10.0.0.1:443", ChannelTypeRegular, nil)
	require.NoError(t, err)
	require.NotNil(t, ch)

	// Should stay idle until the exec ctx flushes
	assert.Equal(t, Idle, ch.State())
	assert.Equal(t, "ipv4:10.0.0.1:443", ch.Target())
	assert.Equal(t, ChannelTypeRegular, ch.Type())
	require.Equal(t, 1, ec.Pending())

	ec.Flush()

	assert.Eventually(t, func() bool {
		return ch.State() != Idle
	}, time.Second, time.Millisecond)

	require.NoError(t, ch.Close())
	assert.Equal(t, Shutdown, ch.State())
}
