// SPDX-License-Identifier: GPL-3.0-or-later

package sockstream

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bassosimone/safeconn"
)

var (
	errAlreadyConnected  = errors.New("stream already connected")
	errNotConnected      = errors.New("stream not connected")
	errOperationInFlight = errors.New("another blocking operation is in flight")
)

// NewStream returns a new, unconnected [*Stream].
//
// The cfg argument contains the common configuration.
//
// The network argument must be either "tcp" or "udp".
//
// The logger argument is the [SLogger] to use for structured logging.
func NewStream(cfg *Config, network string, logger SLogger) *Stream {
	return &Stream{
		BufferSize:    cfg.BufferSize,
		ErrClassifier: cfg.ErrClassifier,
		ID:            NewStreamID(),
		Logger:        logger,
		Network:       network,
		Reactor:       cfg.reactor(),
		TimeNow:       cfg.TimeNow,
		token:         NewCancellationToken(),
	}
}

// NewStreamFromConn returns a [*Stream] owning an already established
// conn, e.g., an accepted TCP connection or a bound UDP socket.
//
// Arguments are like [NewStream], except that the network is taken
// from the conn itself.
func NewStreamFromConn(cfg *Config, conn net.Conn, logger SLogger) *Stream {
	s := NewStream(cfg, safeconn.Network(conn), logger)
	s.attach(conn)
	return s
}

// Stream is a buffered byte stream over a socket whose blocking
// operations (connect and reads that need to refill the buffer) can be
// aborted from any goroutine using [*Stream.Cancel].
//
// Each blocking call registers one asynchronous [Reactor] operation with
// the stream's [*CancellationToken] and waits for its completion. When
// Cancel wins the race with natural completion the reactor aborts the
// operation and the call fails with [ErrOperationAborted]; otherwise
// the call returns the natural result. Never both, and never neither.
//
// Cancellation is sticky: after Cancel, every blocking call fails with
// [ErrOperationAborted]. Bytes already buffered remain readable.
//
// Only one goroutine may perform blocking calls at a time; a concurrent
// second blocking call fails with [ErrProtocolMisuse]. Write may run
// concurrently with reads. Cancel, LastError and Close are safe to call
// from any goroutine.
//
// All exported fields are safe to modify after construction but before
// first use.
type Stream struct {
	// BufferSize is the size of the input buffer.
	//
	// Set by [NewStream] from [Config.BufferSize].
	BufferSize int

	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewStream] from [Config.ErrClassifier].
	ErrClassifier ErrClassifier

	// ID identifies the stream in logs.
	//
	// Set by [NewStream] using [NewStreamID].
	ID string

	// Logger is the [SLogger] to use (configurable for testing or custom logging).
	//
	// Set by [NewStream] to the user-provided logger.
	Logger SLogger

	// Network is the network to use (either "tcp" or "udp").
	//
	// Set by [NewStream] to the user-provided value.
	Network string

	// Reactor schedules the asynchronous operations.
	//
	// Set by [NewStream] from [Config.Reactor].
	Reactor Reactor

	// TimeNow is the function to get the current time (configurable for testing).
	//
	// Set by [NewStream] from [Config.TimeNow].
	TimeNow func() time.Time

	busy    atomic.Bool
	closed  bool
	conn    net.Conn
	lastErr error
	mu      sync.Mutex
	reader  *bufio.Reader
	token   *CancellationToken
	writeMu sync.Mutex
}

var _ Canceler = &Stream{}

// MaxDatagramSize is the minimum input buffer size of "udp" streams.
//
// Each receive on a datagram socket consumes a whole datagram and the
// kernel drops whatever does not fit in the receive buffer.
const MaxDatagramSize = 65535

// bufferSize returns the size of the input buffer.
//
// The buffer only refills when empty, so every datagram receive gets at
// least [MaxDatagramSize] bytes of room.
func (s *Stream) bufferSize() int {
	size := s.BufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}
	if strings.HasPrefix(s.Network, "udp") {
		size = max(size, MaxDatagramSize)
	}
	return size
}

// attach installs the connected socket unless the stream was closed.
func (s *Stream) attach(conn net.Conn) bool {
	observed := newObservedConn(s, conn)
	size := s.bufferSize()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conn = observed
	s.reader = bufio.NewReaderSize(streamReceiver{s}, size)
	return true
}

// enter marks the beginning of a blocking call.
func (s *Stream) enter(op string) error {
	if !s.busy.CompareAndSwap(false, true) {
		return s.record(newOpError(op, KindProtocolMisuse, errOperationInFlight))
	}
	return nil
}

// leave marks the end of a blocking call.
func (s *Stream) leave() {
	s.busy.Store(false)
}

// record saves err as the last observed completion status and returns it.
func (s *Stream) record(err error) error {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	return err
}

// LastError returns the completion status of the most recent operation:
// nil on success, [io.EOF] after orderly peer shutdown, or an [*OpError].
func (s *Stream) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Connected reports whether the stream owns a socket.
func (s *Stream) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Cancelled reports whether [*Stream.Cancel] was called.
func (s *Stream) Cancelled() bool {
	return s.token.Cancelled()
}

// Connect connects the stream to the given endpoint and blocks until
// the connection is established, fails, or [*Stream.Cancel] aborts it.
//
// The endpoint must be resolved. A connection that completes after
// cancellation won the race, or after [*Stream.Close], is closed, never
// installed.
func (s *Stream) Connect(endpoint Endpoint) error {
	if err := s.enter("connect"); err != nil {
		return err
	}
	defer s.leave()
	if s.Connected() {
		return s.record(newOpError("connect", KindProtocolMisuse, errAlreadyConnected))
	}
	address := endpoint.AddrPort()
	t0 := s.TimeNow()
	s.logConnectStart(address, t0)
	conn, err := s.connect(address)
	s.logConnectDone(address, t0, conn, err)
	if err != nil {
		return s.record(err)
	}
	if !s.attach(conn) {
		conn.Close()
		return s.record(newOpError("connect", KindOperationAborted, net.ErrClosed))
	}
	return s.record(nil)
}

func (s *Stream) connect(address netip.AddrPort) (net.Conn, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	res, aborted, err := await(s.token, "connect", func(done func(result)) Operation {
		return s.Reactor.AsyncConnect(s.Network, address, func(conn net.Conn, err error) {
			done(result{conn, err})
		})
	})
	switch {
	case err != nil:
		return nil, err
	case aborted:
		if res.conn != nil {
			res.conn.Close()
		}
		return nil, newOpError("connect", KindOperationAborted, res.err)
	case res.err != nil:
		return nil, classifyOpError("connect", res.err)
	default:
		return res.conn, nil
	}
}

func (s *Stream) logConnectStart(address netip.AddrPort, t0 time.Time) {
	s.Logger.Info(
		"connectStart",
		slog.String("protocol", s.Network),
		slog.String("remoteAddr", address.String()),
		slog.String("streamID", s.ID),
		slog.Time("t", t0),
	)
}

func (s *Stream) logConnectDone(address netip.AddrPort, t0 time.Time, conn net.Conn, err error) {
	s.Logger.Info(
		"connectDone",
		slog.Any("err", err),
		slog.String("errClass", s.ErrClassifier.Classify(err)),
		slog.String("errKind", ClassifyError(err).String()),
		slog.String("localAddr", safeconn.LocalAddr(conn)),
		slog.String("protocol", s.Network),
		slog.String("remoteAddr", address.String()),
		slog.String("streamID", s.ID),
		slog.Time("t0", t0),
		slog.Time("t", s.TimeNow()),
	)
}

// streamReceiver refills the input buffer using cancellable receives.
type streamReceiver struct {
	s *Stream
}

// Read implements [io.Reader].
func (r streamReceiver) Read(buf []byte) (int, error) {
	return r.s.receive(buf)
}

// receive performs one cancellable receive into buf.
//
// A zero-length receive without error is reported as [io.EOF].
func (s *Stream) receive(buf []byte) (int, error) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	type result struct {
		count int
		err   error
	}
	res, aborted, err := await(s.token, "receive", func(done func(result)) Operation {
		return s.Reactor.AsyncReceive(conn, buf, func(count int, err error) {
			done(result{count, err})
		})
	})
	switch {
	case err != nil:
		return 0, err
	case aborted:
		return 0, newOpError("receive", KindOperationAborted, res.err)
	case res.count == 0 && res.err == nil:
		return 0, io.EOF
	case errors.Is(res.err, io.EOF):
		return res.count, io.EOF
	default:
		return res.count, classifyOpError("receive", res.err)
	}
}

// withReader runs fx with the input buffer as a blocking call.
func (s *Stream) withReader(op string, fx func(rd *bufio.Reader) error) error {
	if err := s.enter(op); err != nil {
		return err
	}
	defer s.leave()
	s.mu.Lock()
	rd := s.reader
	s.mu.Unlock()
	if rd == nil {
		return s.record(newOpError(op, KindProtocolMisuse, errNotConnected))
	}
	return s.record(fx(rd))
}

// ReadByte reads and consumes one byte, blocking to refill the buffer
// when it is empty. It returns [io.EOF] after orderly peer shutdown.
func (s *Stream) ReadByte() (c byte, err error) {
	err = s.withReader("read", func(rd *bufio.Reader) (err error) {
		c, err = rd.ReadByte()
		return
	})
	return
}

// PeekByte is like [*Stream.ReadByte] but does not consume the byte.
func (s *Stream) PeekByte() (byte, error) {
	var c byte
	err := s.withReader("peek", func(rd *bufio.Reader) error {
		b, err := rd.Peek(1)
		if len(b) > 0 {
			c = b[0]
			return nil
		}
		return err
	})
	return c, err
}

// Read reads up to len(buf) bytes. It consumes buffered bytes without
// blocking and otherwise blocks for one receive. It returns [io.EOF]
// after orderly peer shutdown.
func (s *Stream) Read(buf []byte) (count int, err error) {
	err = s.withReader("read", func(rd *bufio.Reader) (err error) {
		count, err = rd.Read(buf)
		return
	})
	return
}

// Buffered returns the number of bytes that can be read without blocking.
//
// Call it only from the goroutine performing reads.
func (s *Stream) Buffered() int {
	s.mu.Lock()
	rd := s.reader
	s.mu.Unlock()
	if rd == nil {
		return 0
	}
	return rd.Buffered()
}

// Write sends data synchronously and is not affected by cancellation.
//
// A partial write returns the number of bytes sent and an error.
func (s *Stream) Write(data []byte) (int, error) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return 0, s.record(newOpError("send", KindProtocolMisuse, errNotConnected))
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	count, err := conn.Write(data)
	switch {
	case err == nil && count < len(data):
		err = io.ErrShortWrite
	case err == io.EOF:
		// end-of-stream is a receive outcome only
		err = newOpError("send", KindOther, err)
	}
	return count, s.record(classifyOpError("send", err))
}

// Cancel aborts the blocking call in progress, if any, and makes every
// later blocking call fail with [ErrOperationAborted].
//
// Cancel never blocks and may be called any number of times from any
// goroutine; only the first call can abort an operation.
func (s *Stream) Cancel() {
	gen, aborted := s.token.cancel()
	s.Logger.Info(
		"cancel",
		slog.Bool("aborted", aborted),
		slog.Uint64("generation", gen),
		slog.String("streamID", s.ID),
		slog.Time("t", s.TimeNow()),
	)
}

// LocalAddr returns the local address or nil when not connected.
func (s *Stream) LocalAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// RemoteAddr returns the remote address or nil when not connected.
func (s *Stream) RemoteAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.RemoteAddr()
}

// Close cancels the stream and closes the socket, if any.
//
// Once a socket was closed, subsequent calls return [net.ErrClosed]. A
// connect completing after Close closes its socket instead of
// installing it.
func (s *Stream) Close() error {
	s.token.Cancel()
	s.mu.Lock()
	s.closed = true
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}
