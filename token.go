// SPDX-License-Identifier: GPL-3.0-or-later

package sockstream

import (
	"sync"
	"sync/atomic"

	"github.com/bassosimone/runtimex"
)

// Canceler is anything that can be cancelled from another goroutine.
//
// Both [*CancellationToken] and [*Stream] implement this interface.
type Canceler interface {
	Cancel()
}

// Operation is a handle to an outstanding asynchronous operation.
type Operation interface {
	// Abort asks the reactor to abort the operation at the OS level.
	//
	// Abort must not block and must eventually cause the operation
	// completion callback to run. It is called at most once per operation.
	Abort()
}

// OperationFunc adapts a function to the [Operation] interface.
type OperationFunc func()

var _ Operation = OperationFunc(nil)

// Abort implements [Operation].
func (f OperationFunc) Abort() {
	f()
}

// Possible states of a [pendingOp].
const (
	opRegistered int32 = iota
	opCompleted
	opAborted
)

// pendingOp is an operation registered with a [*CancellationToken].
//
// The first of complete and the token's cancel to swap the state away
// from opRegistered decides the outcome of the blocking call.
type pendingOp struct {
	gen    uint64
	handle Operation
	state  atomic.Int32
}

// complete marks the operation as naturally completed. It reports false
// when cancellation already claimed the outcome.
//
// The reactor completion path calls this before handing the result to
// the waiting goroutine.
func (op *pendingOp) complete() bool {
	return op.state.CompareAndSwap(opRegistered, opCompleted)
}

// CancellationToken is a sticky cancellation flag that also aborts the
// single asynchronous operation currently registered with it.
//
// At most one operation is live at a time. Cancelling without a live
// operation only sets the flag; cancelling twice is the same as
// cancelling once. Once cancelled, any further registration attempt
// fails with [ErrOperationAborted], so a Cancel racing with the start of
// a blocking call cannot be lost.
//
// The zero value is ready to use. All methods are safe for concurrent use.
type CancellationToken struct {
	mu         sync.Mutex
	cancelled  bool
	generation uint64
	live       *pendingOp
}

var _ Canceler = &CancellationToken{}

// NewCancellationToken returns a new, not cancelled, [*CancellationToken].
func NewCancellationToken() *CancellationToken {
	return &CancellationToken{}
}

// Cancel sets the cancelled flag and aborts the live operation, if any.
//
// Cancel never blocks waiting for the aborted operation to complete.
func (t *CancellationToken) Cancel() {
	t.cancel()
}

// cancel is like Cancel but returns the generation of the operation it
// aborted and whether it aborted one.
//
// When the live operation is still starting, its handle is not known yet
// and begin aborts it as soon as start returns.
func (t *CancellationToken) cancel() (uint64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelled = true
	op := t.live
	if op == nil || !op.state.CompareAndSwap(opRegistered, opAborted) {
		return 0, false
	}
	if op.handle != nil {
		op.handle.Abort()
	}
	return op.gen, true
}

// Cancelled reports whether [CancellationToken.Cancel] was called.
func (t *CancellationToken) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// Generation returns the number of operations registered so far.
func (t *CancellationToken) Generation() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.generation
}

// begin registers the operation returned by start.
//
// The start function receives the [*pendingOp] so the completion
// callback it installs can call complete. Checking the flag and
// registering the operation happen under the lock, thus cancel either
// sees the new operation or begin sees the flag. The start function runs
// without the lock, so a slow reactor cannot make cancel block.
//
// Fails with [ErrOperationAborted] when already cancelled and with
// [ErrProtocolMisuse] when another operation is still live.
func (t *CancellationToken) begin(op string, start func(p *pendingOp) Operation) (*pendingOp, error) {
	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		return nil, newOpError(op, KindOperationAborted, nil)
	}
	if t.live != nil {
		t.mu.Unlock()
		return nil, newOpError(op, KindProtocolMisuse, errOperationInFlight)
	}
	t.generation++
	p := &pendingOp{gen: t.generation}
	t.live = p
	t.mu.Unlock()

	handle := start(p)
	runtimex.Assert(handle != nil)

	t.mu.Lock()
	p.handle = handle
	abort := p.state.Load() == opAborted
	t.mu.Unlock()

	// cancel claimed the operation while start was running
	if abort {
		handle.Abort()
	}
	return p, nil
}

// finish unregisters p and reports whether cancellation claimed it.
//
// Call it after the completion callback for p has run.
func (t *CancellationToken) finish(p *pendingOp) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.live == p {
		t.live = nil
	}
	return p.state.Load() == opAborted
}

// await registers the operation started by start with t and blocks
// until its completion callback runs, returning the delivered value.
//
// The start function must arrange for done to be called exactly once.
// The aborted result reports whether cancellation claimed the outcome,
// in which case the value must be discarded (and released).
func await[T any](t *CancellationToken, op string, start func(done func(T)) Operation) (value T, aborted bool, err error) {
	ch := make(chan T, 1)
	p, err := t.begin(op, func(p *pendingOp) Operation {
		return start(func(v T) {
			p.complete()
			ch <- v
		})
	})
	if err != nil {
		return value, false, err
	}
	value = <-ch
	return value, t.finish(p), nil
}
