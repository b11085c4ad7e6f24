// SPDX-License-Identifier: GPL-3.0-or-later

package sockstream

import (
	"errors"
	"io"
)

// ErrorKind is the coarse classification of a failed stream or
// membership operation.
//
// The zero value is [KindNone] and means "no error".
type ErrorKind int

const (
	// KindNone means the operation succeeded.
	KindNone ErrorKind = iota

	// KindOperationAborted means the caller cancelled the operation.
	KindOperationAborted

	// KindConnectionRefused means the peer actively refused the connection.
	KindConnectionRefused

	// KindUnreachable means the host or network could not be reached.
	KindUnreachable

	// KindConnectionReset means the peer reset or aborted the connection.
	KindConnectionReset

	// KindRouteUnavailable means no interface or route could serve a
	// multicast membership request.
	KindRouteUnavailable

	// KindMalformedAddress means an address could not be parsed or converted.
	KindMalformedAddress

	// KindProtocolMisuse means the caller violated the usage contract
	// (e.g., two blocking calls in flight on the same stream).
	KindProtocolMisuse

	// KindOther is any other failure.
	KindOther
)

// String implements [fmt.Stringer].
func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return ""
	case KindOperationAborted:
		return "operation-aborted"
	case KindConnectionRefused:
		return "connection-refused"
	case KindUnreachable:
		return "unreachable"
	case KindConnectionReset:
		return "connection-reset"
	case KindRouteUnavailable:
		return "route-unavailable"
	case KindMalformedAddress:
		return "malformed-address"
	case KindProtocolMisuse:
		return "protocol-misuse"
	default:
		return "other"
	}
}

var (
	// ErrOperationAborted is the sentinel for [KindOperationAborted].
	ErrOperationAborted = errors.New("sockstream: operation aborted")

	// ErrConnectionRefused is the sentinel for [KindConnectionRefused].
	ErrConnectionRefused = errors.New("sockstream: connection refused")

	// ErrUnreachable is the sentinel for [KindUnreachable].
	ErrUnreachable = errors.New("sockstream: host or network unreachable")

	// ErrConnectionReset is the sentinel for [KindConnectionReset].
	ErrConnectionReset = errors.New("sockstream: connection reset")

	// ErrRouteUnavailable is the sentinel for [KindRouteUnavailable].
	ErrRouteUnavailable = errors.New("sockstream: route unavailable")

	// ErrMalformedAddress is the sentinel for [KindMalformedAddress].
	ErrMalformedAddress = errors.New("sockstream: malformed address")

	// ErrProtocolMisuse is the sentinel for [KindProtocolMisuse].
	ErrProtocolMisuse = errors.New("sockstream: protocol misuse")

	// ErrNotMapped is returned by [UnmapFromV6] for addresses outside ::ffff:0:0/96.
	//
	// It matches [ErrMalformedAddress] with [errors.Is].
	ErrNotMapped = &OpError{Op: "unmap", Kind: KindMalformedAddress, Err: errors.New("not an IPv4-mapped IPv6 address")}
)

// sentinel returns the sentinel error corresponding to the kind.
func (k ErrorKind) sentinel() error {
	switch k {
	case KindOperationAborted:
		return ErrOperationAborted
	case KindConnectionRefused:
		return ErrConnectionRefused
	case KindUnreachable:
		return ErrUnreachable
	case KindConnectionReset:
		return ErrConnectionReset
	case KindRouteUnavailable:
		return ErrRouteUnavailable
	case KindMalformedAddress:
		return ErrMalformedAddress
	case KindProtocolMisuse:
		return ErrProtocolMisuse
	default:
		return nil
	}
}

// OpError is the structured error returned by this package.
//
// Both the kind sentinel and the underlying cause are reachable through
// [errors.Is] and [errors.As], so callers can test for
// [ErrOperationAborted] as well as for a specific [syscall.Errno].
type OpError struct {
	// Op is the failed operation (e.g., "connect", "receive", "join").
	Op string

	// Kind is the classification of the failure.
	Kind ErrorKind

	// Err is the underlying cause, possibly nil.
	Err error
}

// Error implements [error].
func (e *OpError) Error() string {
	msg := "sockstream: " + e.Op + ": " + e.Kind.String()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the kind sentinel and the underlying cause.
func (e *OpError) Unwrap() []error {
	var errs []error
	if s := e.Kind.sentinel(); s != nil {
		errs = append(errs, s)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// newOpError wraps err as an [*OpError] of the given kind.
func newOpError(op string, kind ErrorKind, err error) *OpError {
	return &OpError{Op: op, Kind: kind, Err: err}
}

// ClassifyError maps err onto an [ErrorKind].
//
// A nil error maps to [KindNone]. An [*OpError] keeps its own kind.
// [io.EOF] is not an error in this taxonomy and maps to [KindNone].
// Operating system errors are mapped using the platform errno tables.
func ClassifyError(err error) ErrorKind {
	var opErr *OpError
	if errors.As(err, &opErr) {
		return opErr.Kind
	}
	if err == nil || errors.Is(err, io.EOF) {
		return KindNone
	}
	switch {
	case errors.Is(err, errECANCELED):
		return KindOperationAborted
	case errors.Is(err, errECONNREFUSED):
		return KindConnectionRefused
	case errors.Is(err, errECONNRESET), errors.Is(err, errECONNABORTED), errors.Is(err, errEPIPE):
		return KindConnectionReset
	case errors.Is(err, errENODEV), errors.Is(err, errEADDRNOTAVAIL):
		return KindRouteUnavailable
	case errors.Is(err, errEHOSTUNREACH), errors.Is(err, errENETUNREACH), errors.Is(err, errENETDOWN):
		return KindUnreachable
	default:
		return KindOther
	}
}

// classifyOpError wraps a raw error returned while performing op.
//
// It returns nil for nil and passes [io.EOF] through unchanged so
// that io consumers see the canonical end-of-stream value.
func classifyOpError(op string, err error) error {
	if err == nil || err == io.EOF {
		return err
	}
	var opErr *OpError
	if errors.As(err, &opErr) {
		return opErr
	}
	return newOpError(op, ClassifyError(err), err)
}
