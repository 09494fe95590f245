// SPDX-License-Identifier: GPL-3.0-or-later

package grpc

import (
	"context"
	"net"
)

// Handshaker is one stage of a connection handshake pipeline.
//
// A handshaker consumes the connection it receives: on success the
// returned connection owns it (possibly wrapping it), on failure the
// handshaker must close it. Returns either a valid [net.Conn] or an
// error, never both.
type Handshaker interface {
	Handshake(ctx context.Context, conn net.Conn) (net.Conn, error)
}

// HandshakerFunc adapts a function to the [Handshaker] interface.
type HandshakerFunc func(ctx context.Context, conn net.Conn) (net.Conn, error)

var _ Handshaker = HandshakerFunc(nil)

// Handshake implements [Handshaker].
func (f HandshakerFunc) Handshake(ctx context.Context, conn net.Conn) (net.Conn, error) {
	return f(ctx, conn)
}

// NewHandshakeManager creates an empty [*HandshakeManager].
func NewHandshakeManager() *HandshakeManager {
	return &HandshakeManager{}
}

// HandshakeManager runs an ordered pipeline of [Handshaker] stages over
// a freshly dialed connection.
//
// Stages are appended with [HandshakeManager.Add], typically by a
// [SecurityConnector] asked to inject its handshake steps, and run in
// insertion order by [HandshakeManager.Do].
//
// A manager is populated once and then used for a single connection
// attempt. It is not safe for concurrent use.
type HandshakeManager struct {
	handshakers []Handshaker
}

// Add appends a stage to the pipeline.
func (m *HandshakeManager) Add(h Handshaker) {
	m.handshakers = append(m.handshakers, h)
}

// Len returns the number of stages in the pipeline.
func (m *HandshakeManager) Len() int {
	return len(m.handshakers)
}

// Do runs the pipeline stages in order over conn.
//
// Do takes ownership of conn. On success it returns the connection
// produced by the last stage; on failure the failing stage has closed
// the connection it received. An empty pipeline returns conn unchanged.
//
// While a stage runs, a [context.AfterFunc] watcher closes the
// in-flight connection as soon as ctx is done, so stages performing
// raw I/O are interrupted even when they do not honor ctx themselves.
func (m *HandshakeManager) Do(ctx context.Context, conn net.Conn) (net.Conn, error) {
	for _, h := range m.handshakers {
		current := conn
		stop := context.AfterFunc(ctx, func() {
			current.Close()
		})
		next, err := h.Handshake(ctx, current)
		if !stop() {
			// The watcher fired and closed the connection under the
			// stage. Report cancellation regardless of the stage result.
			if err == nil {
				next.Close()
			}
			return nil, ctx.Err()
		}
		if err != nil {
			return nil, err
		}
		conn = next
	}
	return conn, nil
}
