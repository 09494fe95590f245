// SPDX-License-Identifier: GPL-3.0-or-later

package grpc

import "github.com/bassosimone/runtimex"

// NewExecCtx creates an empty [*ExecCtx].
func NewExecCtx() *ExecCtx {
	return &ExecCtx{}
}

// ExecCtx collects continuations that become ready during an operation
// and drains them at well-defined points.
//
// Operations that complete other work enqueue the resulting callbacks
// instead of invoking them inline. The owner of the [*ExecCtx] drains
// the queue with [ExecCtx.Flush] before handing control back, which
// keeps call stacks bounded and avoids re-entering locks held by the
// operation that scheduled the continuation.
//
// An [*ExecCtx] belongs to a single goroutine. It is not safe for
// concurrent use.
type ExecCtx struct {
	// flushing guards against nested drains.
	flushing bool

	// queue holds the pending continuations in FIFO order.
	queue []func()
}

// Enqueue appends a continuation to the pending queue.
//
// The continuation runs during the next [ExecCtx.Flush], after every
// continuation enqueued before it.
func (ec *ExecCtx) Enqueue(fn func()) {
	runtimex.Assert(fn != nil)
	ec.queue = append(ec.queue, fn)
}

// Pending returns the number of continuations waiting to run.
func (ec *ExecCtx) Pending() int {
	return len(ec.queue)
}

// Flush drains the queue, running continuations in FIFO order until
// none remain, and returns the number of continuations it ran.
//
// Continuations enqueued while draining run in the same drain, after
// the ones already queued. Continuations must not call Flush
// themselves; doing so panics.
func (ec *ExecCtx) Flush() int {
	runtimex.Assert(!ec.flushing)
	ec.flushing = true
	defer func() { ec.flushing = false }()
	var done int
	for len(ec.queue) > 0 {
		fn := ec.queue[0]
		ec.queue = ec.queue[1:]
		fn()
		done++
	}
	return done
}
