//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/ooni/probe-cli/blob/v3.20.1/internal/netxlite/dialer.go
//

package sockstream

import (
	"context"
	"net"
	"net/netip"
	"time"
)

// Dialer abstracts the [*net.Dialer] behavior.
//
// By making [*GoReactor] depend on an abstract implementation we
// allow for unit testing and for using alternative dialers.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Reactor schedules asynchronous socket operations and reports their
// completion through callbacks.
//
// Each method must only schedule the operation and return without
// blocking. It must call done exactly once, possibly before returning,
// and return a non-nil [Operation] whose Abort makes the operation
// complete promptly. A method that completes synchronously calls done
// only once the result is already available. [*Stream] uses a Reactor to turn asynchronous
// operations into blocking calls that another goroutine can cancel.
type Reactor interface {
	// AsyncConnect connects to address using network ("tcp" or "udp").
	AsyncConnect(network string, address netip.AddrPort, done func(net.Conn, error)) Operation

	// AsyncReceive reads from conn into buf.
	AsyncReceive(conn net.Conn, buf []byte, done func(int, error)) Operation
}

// NewGoReactor returns a new [*GoReactor] using the given [Dialer].
func NewGoReactor(dialer Dialer) *GoReactor {
	return &GoReactor{Dialer: dialer}
}

// GoReactor is a [Reactor] running each operation on its own goroutine
// on top of the Go runtime network poller.
//
// Connect is aborted by cancelling the context passed to the dialer.
// Receive is aborted by moving the read deadline into the past, which
// the network poller turns into an immediate failure of the pending read.
// An aborted receive leaves the deadline in place.
type GoReactor struct {
	// Dialer is the [Dialer] to use.
	//
	// Set by [NewGoReactor] to the user-provided value.
	Dialer Dialer
}

var _ Reactor = &GoReactor{}

// AsyncConnect implements [Reactor].
func (r *GoReactor) AsyncConnect(network string, address netip.AddrPort, done func(net.Conn, error)) Operation {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		defer cancel()
		done(r.Dialer.DialContext(ctx, network, address.String()))
	}()
	return OperationFunc(cancel)
}

// aLongTimeAgo is a non-zero time in the past used to abort pending reads.
var aLongTimeAgo = time.Unix(1, 0)

// AsyncReceive implements [Reactor].
func (r *GoReactor) AsyncReceive(conn net.Conn, buf []byte, done func(int, error)) Operation {
	go func() {
		done(conn.Read(buf))
	}()
	return OperationFunc(func() {
		_ = conn.SetReadDeadline(aLongTimeAgo)
	})
}
