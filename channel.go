// SPDX-License-Identifier: GPL-3.0-or-later

package grpc

import (
	"context"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/bassosimone/runtimex"
)

// newChannel creates a [*Channel] in the [Idle] state.
//
// The channel owns a private copy of args, which carries its own stake
// in every shared value the table references. The channel is inert
// until [Channel.finishInitialization] wires the resolver and factory
// and schedules activation.
func newChannel(cfg *Config, target string, typ ChannelType, args *Args, logger SLogger) *Channel {
	runtimex.Assert(cfg != nil)
	ctx, cancel := context.WithCancel(context.Background())
	return &Channel{
		args:         args.CopyAndAdd(),
		cancel:       cancel,
		cfg:          cfg,
		closeOnce:    sync.Once{},
		ctx:          ctx,
		factory:      nil,
		lameStatus:   nil,
		logger:       logger,
		mu:           sync.Mutex{},
		parsedTarget: nil,
		resolver:     nil,
		started:      false,
		state:        Idle,
		stateChanged: make(chan struct{}),
		target:       target,
		transport:    nil,
		typ:          typ,
		watcherDone:  make(chan struct{}),
	}
}

// Channel is a client channel to a target.
//
// Channels are created by [SecureChannelCreate], [InsecureChannelCreate],
// and [NewLameChannel]. A live channel owns its configuration table
// copy, its resolver, and one factory stake, and runs a watcher
// goroutine that resolves the target and connects. Call
// [Channel.Close] exactly once to tear everything down.
type Channel struct {
	// args is the channel's private configuration table copy.
	args *Args

	// cancel stops the watcher goroutine.
	cancel context.CancelFunc

	// cfg contains the channel configuration.
	cfg *Config

	// closeOnce makes Close idempotent.
	closeOnce sync.Once

	// ctx is the watcher goroutine lifetime.
	ctx context.Context

	// factory creates subchannels; the channel holds one stake.
	factory ClientChannelFactory

	// lameStatus, when non-nil, pins the channel to failing with
	// this status instead of connecting.
	lameStatus *Status

	// logger is the structured logger to use.
	logger SLogger

	// mu protects state, stateChanged, started, and transport.
	mu sync.Mutex

	// parsedTarget is the parsed form of target.
	parsedTarget *Target

	// resolver resolves the target; owned exclusively.
	resolver Resolver

	// started records whether the watcher goroutine was launched.
	started bool

	// state is the current connectivity state.
	state ConnectivityState

	// stateChanged is closed and replaced on every state transition.
	stateChanged chan struct{}

	// target is the original target string.
	target string

	// transport is the active transport once state is [Ready].
	transport *Transport

	// typ is the channel type.
	typ ChannelType

	// watcherDone is closed when the watcher goroutine returns.
	watcherDone chan struct{}
}

// finishInitialization wires the resolver and factory into the channel
// and schedules [Channel.start] on the given [*ExecCtx].
//
// The channel acquires its own factory stake. The resolver is handed
// over: from here on the channel owns it exclusively.
func (ch *Channel) finishInitialization(ec *ExecCtx,
	resolver Resolver, parsed *Target, factory ClientChannelFactory) {
	runtimex.Assert(resolver != nil)
	runtimex.Assert(parsed != nil)
	runtimex.Assert(factory != nil)
	factory.Retain()
	ch.factory = factory
	ch.parsedTarget = parsed
	ch.resolver = resolver
	ch.logger.Debug("channelStartScheduled", "target", ch.target)
	ec.Enqueue(ch.start)
}

// destroy tears down a channel whose initialization never finished.
//
// Only the resolver-construction failure path uses it: the channel has
// its args copy and its context but no resolver, no factory stake, and
// no watcher.
func (ch *Channel) destroy() {
	ch.cancel()
	ch.args.Destroy()
}

// start launches the watcher goroutine. It runs as an [*ExecCtx]
// continuation, so a channel closed before the flush never starts.
func (ch *Channel) start() {
	ch.mu.Lock()
	if ch.state == Shutdown || ch.started {
		ch.mu.Unlock()
		return
	}
	ch.started = true
	ch.mu.Unlock()
	ch.logger.Debug("channelStart", "target", ch.target)
	go ch.watch(ch.ctx)
}

// watch drives the channel towards [Ready]: resolve, try each address
// in order, back off on failure, repeat. It parks once the channel is
// ready and exits when the channel shuts down.
func (ch *Channel) watch(ctx context.Context) {
	defer close(ch.watcherDone)
	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			return
		}
		ch.setState(Connecting)
		txp, err := ch.connectOnce(ctx)
		if err == nil {
			ch.mu.Lock()
			shutdown := ch.state == Shutdown
			if !shutdown {
				ch.transport = txp
				ch.setStateLocked(Ready)
			}
			ch.mu.Unlock()
			if shutdown {
				txp.Close()
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		ch.setState(TransientFailure)
		delay := ch.cfg.Backoff.Delay(attempt)
		ch.logger.Debug("channelBackoff", "target", ch.target, "delay", delay)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// connectOnce resolves the target and attempts each address in the
// presented order, returning the first transport that connects.
func (ch *Channel) connectOnce(ctx context.Context) (*Transport, error) {
	ch.logger.Info("resolveStart", "target", ch.target)
	addrs, err := ch.resolver.Next(ctx)
	ch.logger.Info("resolveDone", "target", ch.target, "numAddresses", len(addrs), "err", err)
	if err != nil {
		return nil, err
	}
	if len(addrs) < 1 {
		return nil, ErrNoAddress
	}
	serverName := ch.authority()
	var lastErr error
	for _, addr := range addrs {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		ec := NewExecCtx()
		sub, err := ch.factory.CreateSubchannel(ec, &SubchannelArgs{
			ServerName: serverName,
			Addr:       addr,
			Args:       ch.args,
		})
		if err != nil {
			ec.Flush()
			lastErr = err
			continue
		}
		txp, err := sub.Connect(ctx)
		sub.Close()
		ec.Flush()
		if err != nil {
			ch.collector().IncConnectAttempt("error")
			lastErr = err
			continue
		}
		ch.collector().IncConnectAttempt("ok")
		return txp, nil
	}
	return nil, lastErr
}

// authority returns the server name to present to subchannels: the
// [ArgDefaultAuthority] entry when present, otherwise the host of the
// parsed endpoint.
func (ch *Channel) authority() string {
	if v := ch.args.GetString(ArgDefaultAuthority); v != "" {
		return v
	}
	endpoint := strings.TrimPrefix(ch.parsedTarget.Endpoint, "/")
	if host, _, err := net.SplitHostPort(endpoint); err == nil && host != "" {
		return host
	}
	return endpoint
}

// collector returns the configured [Collector], tolerating channels
// built without configuration, such as lame channels.
func (ch *Channel) collector() Collector {
	if ch.cfg == nil || ch.cfg.Collector == nil {
		return NewNoopCollector()
	}
	return ch.cfg.Collector
}

// setState transitions the connectivity state.
func (ch *Channel) setState(s ConnectivityState) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.setStateLocked(s)
}

// setStateLocked transitions the connectivity state with mu held.
//
// [Shutdown] is terminal: once reached, further transitions are
// ignored, which stops a racing watcher from resurrecting a closed
// channel. Every transition wakes the waiters by closing and
// replacing the stateChanged channel.
func (ch *Channel) setStateLocked(s ConnectivityState) {
	if ch.state == s || ch.state == Shutdown {
		return
	}
	old := ch.state
	ch.state = s
	close(ch.stateChanged)
	ch.stateChanged = make(chan struct{})
	ch.logger.Info("channelStateChange", "target", ch.target,
		"oldState", old.String(), "newState", s.String())
	ch.collector().IncStateTransition(s.String())
}

// Target returns the original target string.
func (ch *Channel) Target() string {
	return ch.target
}

// Type returns the channel type.
func (ch *Channel) Type() ChannelType {
	return ch.typ
}

// State returns the current connectivity state.
func (ch *Channel) State() ConnectivityState {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.state
}

// WaitForStateChange blocks until the connectivity state differs from
// source or the context is done.
//
// Returns the new state, or source and the context error when the
// context expires first.
func (ch *Channel) WaitForStateChange(ctx context.Context,
	source ConnectivityState) (ConnectivityState, error) {
	for {
		ch.mu.Lock()
		if ch.state != source {
			s := ch.state
			ch.mu.Unlock()
			return s, nil
		}
		wait := ch.stateChanged
		ch.mu.Unlock()
		select {
		case <-ctx.Done():
			return source, ctx.Err()
		case <-wait:
		}
	}
}

// Transport returns the active transport, blocking until the channel
// is [Ready] or the context is done.
//
// Lame channels fail immediately with their pinned status. A shut
// down channel fails with [CodeUnavailable]. The returned transport
// stays owned by the channel: do not close it.
func (ch *Channel) Transport(ctx context.Context) (*Transport, error) {
	if ch.lameStatus != nil {
		return nil, ch.lameStatus
	}
	for {
		ch.mu.Lock()
		if ch.state == Shutdown {
			ch.mu.Unlock()
			return nil, NewStatus(CodeUnavailable, "channel is shut down")
		}
		if ch.state == Ready && ch.transport != nil {
			txp := ch.transport
			ch.mu.Unlock()
			return txp, nil
		}
		wait := ch.stateChanged
		ch.mu.Unlock()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wait:
		}
	}
}

// Close tears the channel down: it stops the watcher, closes the
// active transport and the resolver, destroys the channel's
// configuration table copy, and drops the factory stake.
//
// Close is idempotent. The first call returns the resolver close
// error, if any; later calls return nil.
func (ch *Channel) Close() error {
	var err error
	ch.closeOnce.Do(func() {
		if ch.cancel != nil {
			ch.cancel()
		}
		ch.mu.Lock()
		started := ch.started
		ch.setStateLocked(Shutdown)
		ch.mu.Unlock()
		if started {
			<-ch.watcherDone
		}
		ch.mu.Lock()
		txp := ch.transport
		ch.transport = nil
		ch.mu.Unlock()
		if txp != nil {
			txp.Close()
		}
		if ch.resolver != nil {
			err = ch.resolver.Close()
		}
		ch.args.Destroy()
		if ch.factory != nil {
			ch.factory.Release()
		}
		ch.collector().IncChannelClosed()
		ch.logger.Info("channelClose", "target", ch.target, "err", err)
	})
	return err
}
