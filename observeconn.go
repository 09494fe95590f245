//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/ooni/probe-cli/blob/v3.20.1/internal/measurexlite/conn.go
// Adapted from: https://github.com/rbmk-project/rbmk/blob/v0.17.0/pkg/x/netcore/conn.go
//

package grpc

import (
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/bassosimone/safeconn"
)

// newObserveConn wraps conn to log I/O operations.
//
// Every connection dialed by [dialContext] is observed: reads, writes,
// and deadline changes are logged at [slog.LevelDebug], close at
// [slog.LevelInfo]. The wrapper owns the conn.
func newObserveConn(cfg *Config, conn net.Conn, logger SLogger) net.Conn {
	return &observeConn{
		classifier: cfg.ErrClassifier,
		closeonce:  sync.Once{},
		conn:       conn,
		laddr:      safeconn.LocalAddr(conn),
		logger:     logger,
		protocol:   safeconn.Network(conn),
		raddr:      safeconn.RemoteAddr(conn),
		timeNow:    cfg.TimeNow,
	}
}

// observeConn observes a [net.Conn] for logging I/O operations.
type observeConn struct {
	classifier ErrClassifier
	closeonce  sync.Once
	conn       net.Conn
	laddr      string
	logger     SLogger
	protocol   string
	raddr      string
	timeNow    func() time.Time
}

// Close implements [net.Conn].
//
// Subsequent calls return [net.ErrClosed], consistent with Go's standard
// library behavior for closed connections.
func (c *observeConn) Close() (err error) {
	err = net.ErrClosed
	c.closeonce.Do(func() {
		t0 := c.timeNow()
		c.logger.Info(
			"closeStart",
			slog.String("localAddr", c.laddr),
			slog.String("protocol", c.protocol),
			slog.String("remoteAddr", c.raddr),
			slog.Time("t", t0),
		)

		err = c.conn.Close()

		c.logger.Info(
			"closeDone",
			slog.Any("err", err),
			slog.String("errClass", c.classifier.Classify(err)),
			slog.String("localAddr", c.laddr),
			slog.String("protocol", c.protocol),
			slog.String("remoteAddr", c.raddr),
			slog.Time("t0", t0),
			slog.Time("t", c.timeNow()),
		)
	})
	return
}

// LocalAddr implements [net.Conn].
func (c *observeConn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// Read implements [net.Conn].
func (c *observeConn) Read(buf []byte) (int, error) {
	t0 := c.timeNow()
	c.logger.Debug(
		"readStart",
		slog.Int("ioBufferSize", len(buf)),
		slog.String("localAddr", c.laddr),
		slog.String("protocol", c.protocol),
		slog.String("remoteAddr", c.raddr),
		slog.Time("t", t0),
	)

	count, err := c.conn.Read(buf)

	c.logger.Debug(
		"readDone",
		slog.Int("ioBytesCount", count),
		slog.Any("err", err),
		slog.String("errClass", c.classifier.Classify(err)),
		slog.String("localAddr", c.laddr),
		slog.String("protocol", c.protocol),
		slog.String("remoteAddr", c.raddr),
		slog.Time("t0", t0),
		slog.Time("t", c.timeNow()),
	)

	return count, err
}

// RemoteAddr implements [net.Conn].
func (c *observeConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// SetDeadline implements [net.Conn].
func (c *observeConn) SetDeadline(t time.Time) error {
	c.logger.Debug(
		"setDeadline",
		slog.Time("deadline", t),
		slog.String("localAddr", c.laddr),
		slog.String("protocol", c.protocol),
		slog.String("remoteAddr", c.raddr),
		slog.Time("t", c.timeNow()),
	)
	return c.conn.SetDeadline(t)
}

// SetReadDeadline implements [net.Conn].
func (c *observeConn) SetReadDeadline(t time.Time) error {
	c.logger.Debug(
		"setReadDeadline",
		slog.Time("deadline", t),
		slog.String("localAddr", c.laddr),
		slog.String("protocol", c.protocol),
		slog.String("remoteAddr", c.raddr),
		slog.Time("t", c.timeNow()),
	)
	return c.conn.SetReadDeadline(t)
}

// SetWriteDeadline implements [net.Conn].
func (c *observeConn) SetWriteDeadline(t time.Time) error {
	c.logger.Debug(
		"setWriteDeadline",
		slog.Time("deadline", t),
		slog.String("localAddr", c.laddr),
		slog.String("protocol", c.protocol),
		slog.String("remoteAddr", c.raddr),
		slog.Time("t", c.timeNow()),
	)
	return c.conn.SetWriteDeadline(t)
}

// Write implements [net.Conn].
func (c *observeConn) Write(data []byte) (n int, err error) {
	t0 := c.timeNow()
	c.logger.Debug(
		"writeStart",
		slog.Int("ioBufferSize", len(data)),
		slog.String("localAddr", c.laddr),
		slog.String("protocol", c.protocol),
		slog.String("remoteAddr", c.raddr),
		slog.Time("t", t0),
	)

	count, err := c.conn.Write(data)

	c.logger.Debug(
		"writeDone",
		slog.Int("ioBytesCount", count),
		slog.Any("err", err),
		slog.String("errClass", c.classifier.Classify(err)),
		slog.String("localAddr", c.laddr),
		slog.String("protocol", c.protocol),
		slog.String("remoteAddr", c.raddr),
		slog.Time("t0", t0),
		slog.Time("t", c.timeNow()),
	)

	return count, err
}
