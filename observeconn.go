//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/ooni/probe-cli/blob/v3.20.1/internal/measurexlite/conn.go
// Adapted from: https://github.com/rbmk-project/rbmk/blob/v0.17.0/pkg/x/netcore/conn.go
//

package sockstream

import (
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/bassosimone/safeconn"
)

// observedConn is the socket owned by a [*Stream].
//
// It logs every I/O operation with the stream ID, so that the reads a
// [*GoReactor] performs and the deadline it moves to abort them show
// up in the same event sequence as connect and cancel.
type observedConn struct {
	closeonce sync.Once
	conn      net.Conn
	laddr     string
	protocol  string
	raddr     string
	stream    *Stream
}

// newObservedConn wraps conn on behalf of stream.
func newObservedConn(stream *Stream, conn net.Conn) *observedConn {
	return &observedConn{
		conn:     conn,
		laddr:    safeconn.LocalAddr(conn),
		protocol: safeconn.Network(conn),
		raddr:    safeconn.RemoteAddr(conn),
		stream:   stream,
	}
}

// attrs returns the attributes shared by all the events.
func (c *observedConn) attrs(extra ...any) []any {
	return append([]any{
		slog.String("localAddr", c.laddr),
		slog.String("protocol", c.protocol),
		slog.String("remoteAddr", c.raddr),
		slog.String("streamID", c.stream.ID),
	}, extra...)
}

// doneAttrs returns the attributes of a *Done event.
func (c *observedConn) doneAttrs(t0 time.Time, err error, extra ...any) []any {
	return c.attrs(append([]any{
		slog.Any("err", err),
		slog.String("errClass", c.stream.ErrClassifier.Classify(err)),
		slog.String("errKind", ClassifyError(err).String()),
		slog.Time("t0", t0),
		slog.Time("t", c.stream.TimeNow()),
	}, extra...)...)
}

// Close implements [net.Conn].
//
// Subsequent calls return [net.ErrClosed], consistent with Go's standard
// library behavior for closed connections.
func (c *observedConn) Close() (err error) {
	err = net.ErrClosed
	c.closeonce.Do(func() {
		t0 := c.stream.TimeNow()
		c.stream.Logger.Info("closeStart", c.attrs(slog.Time("t", t0))...)
		err = c.conn.Close()
		c.stream.Logger.Info("closeDone", c.doneAttrs(t0, err)...)
	})
	return
}

// LocalAddr implements [net.Conn].
func (c *observedConn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// Read implements [net.Conn].
func (c *observedConn) Read(buf []byte) (int, error) {
	t0 := c.stream.TimeNow()
	c.stream.Logger.Debug("readStart", c.attrs(
		slog.Int("ioBufferSize", len(buf)),
		slog.Time("t", t0),
	)...)

	count, err := c.conn.Read(buf)

	c.stream.Logger.Debug("readDone", c.doneAttrs(t0, err, slog.Int("ioBytesCount", count))...)
	return count, err
}

// RemoteAddr implements [net.Conn].
func (c *observedConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// SetDeadline implements [net.Conn].
func (c *observedConn) SetDeadline(t time.Time) error {
	c.logDeadline("setDeadline", t)
	return c.conn.SetDeadline(t)
}

// SetReadDeadline implements [net.Conn].
//
// A [*GoReactor] calls this to abort a pending receive.
func (c *observedConn) SetReadDeadline(t time.Time) error {
	c.logDeadline("setReadDeadline", t)
	return c.conn.SetReadDeadline(t)
}

// SetWriteDeadline implements [net.Conn].
func (c *observedConn) SetWriteDeadline(t time.Time) error {
	c.logDeadline("setWriteDeadline", t)
	return c.conn.SetWriteDeadline(t)
}

func (c *observedConn) logDeadline(event string, deadline time.Time) {
	c.stream.Logger.Debug(event, c.attrs(
		slog.Time("deadline", deadline),
		slog.Time("t", c.stream.TimeNow()),
	)...)
}

// Write implements [net.Conn].
func (c *observedConn) Write(data []byte) (int, error) {
	t0 := c.stream.TimeNow()
	c.stream.Logger.Debug("writeStart", c.attrs(
		slog.Int("ioBufferSize", len(data)),
		slog.Time("t", t0),
	)...)

	count, err := c.conn.Write(data)

	c.stream.Logger.Debug("writeDone", c.doneAttrs(t0, err, slog.Int("ioBytesCount", count))...)
	return count, err
}
