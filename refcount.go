// SPDX-License-Identifier: GPL-3.0-or-later

package grpc

import (
	"sync/atomic"

	"github.com/bassosimone/runtimex"
)

// RefValue is a shared-ownership value managed through explicit stakes.
//
// Each holder that needs the value to outlive its current scope acquires
// a stake with [RefValue.Retain] and drops it with [RefValue.Release].
// The value is destroyed when the last stake is dropped. Both methods
// are safe for concurrent use.
type RefValue interface {
	// Retain acquires an additional stake.
	Retain()

	// Release drops one stake, destroying the value when it was the last.
	Release()
}

// newRefCount creates a [*refCount] holding one initial stake.
//
// The destroy hook runs exactly once, on the goroutine that drops the
// last stake. A nil destroy is allowed.
func newRefCount(destroy func()) *refCount {
	rc := &refCount{destroy: destroy}
	rc.count.Store(1)
	return rc
}

// refCount is an atomic reference count with a destroy hook.
//
// Embed a [*refCount] to give a type [RefValue] semantics. The count
// starts at one and must never be retained after reaching zero.
type refCount struct {
	// count is the current number of stakes.
	count atomic.Int64

	// destroy runs when count reaches zero.
	destroy func()
}

var _ RefValue = &refCount{}

// Retain implements [RefValue].
//
// This function panics when the count already reached zero, since
// retaining a destroyed value is a use-after-release bug.
func (rc *refCount) Retain() {
	count := rc.count.Add(1)
	runtimex.Assert(count >= 2)
}

// Release implements [RefValue].
//
// This function panics when called more times than there are stakes.
func (rc *refCount) Release() {
	count := rc.count.Add(-1)
	runtimex.Assert(count >= 0)
	if count == 0 && rc.destroy != nil {
		rc.destroy()
	}
}
