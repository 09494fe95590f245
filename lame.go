// SPDX-License-Identifier: GPL-3.0-or-later

package grpc

import "sync"

// NewLameChannel creates a [*Channel] that fails every operation with
// the given status.
//
// A lame channel is the recoverable-failure result of the bootstrap
// operations: callers get a channel they can use, wait on, and close
// like any other, except that [Channel.Transport] always fails with
// the pinned status. Its connectivity state is [TransientFailure]
// until closed.
func NewLameChannel(target string, code Code, reason string) *Channel {
	return &Channel{
		args:         nil,
		cancel:       nil,
		cfg:          nil,
		closeOnce:    sync.Once{},
		ctx:          nil,
		factory:      nil,
		lameStatus:   NewStatus(code, reason),
		logger:       DefaultSLogger(),
		mu:           sync.Mutex{},
		parsedTarget: nil,
		resolver:     nil,
		started:      false,
		state:        TransientFailure,
		stateChanged: make(chan struct{}),
		target:       target,
		transport:    nil,
		typ:          ChannelTypeRegular,
		watcherDone:  nil,
	}
}
