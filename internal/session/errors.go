package session

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a session error (§7). Callers that need to branch on
// kind should use errors.As against *Error and compare Kind, or errors.Is
// against the sentinel values below.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindBluetoothOff
	KindNotConnected
	KindAlreadyConnected
	KindInProgress
	KindIncompatible
	KindWriteError
	KindDisconnected
	KindCommandPending
	KindStreamingInactive
	KindTransportInit
	KindTransportError
)

func (k ErrorKind) String() string {
	switch k {
	case KindBluetoothOff:
		return "BluetoothOff"
	case KindNotConnected:
		return "NotConnected"
	case KindAlreadyConnected:
		return "AlreadyConnected"
	case KindInProgress:
		return "InProgress"
	case KindIncompatible:
		return "Incompatible"
	case KindWriteError:
		return "WriteError"
	case KindDisconnected:
		return "Disconnected"
	case KindCommandPending:
		return "CommandPending"
	case KindStreamingInactive:
		return "StreamingInactive"
	case KindTransportInit:
		return "TransportInit"
	case KindTransportError:
		return "TransportError"
	default:
		return "Unknown"
	}
}

// Error wraps an underlying cause with a session.ErrorKind, preserving the
// original message for diagnostics per §7's propagation rule.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "elm327session: " + e.Kind.String()
	}
	return fmt.Sprintf("elm327session: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// newError builds an *Error, wrapping cause (which may be nil).
func newError(kind ErrorKind, cause error) *Error {
	return &Error{Kind: kind, Err: cause}
}

// Sentinel values for errors.Is comparisons against a bare kind, with no
// wrapped cause.
var (
	ErrBluetoothOff      = newError(KindBluetoothOff, nil)
	ErrNotConnected      = newError(KindNotConnected, nil)
	ErrAlreadyConnected  = newError(KindAlreadyConnected, nil)
	ErrInProgress        = newError(KindInProgress, nil)
	ErrIncompatible      = newError(KindIncompatible, nil)
	ErrWriteError        = newError(KindWriteError, nil)
	ErrDisconnected      = newError(KindDisconnected, nil)
	ErrCommandPending    = newError(KindCommandPending, nil)
	ErrStreamingInactive = newError(KindStreamingInactive, nil)
	ErrTransportInit     = newError(KindTransportInit, nil)
	ErrTransportError    = newError(KindTransportError, nil)
)

// Is makes *Error participate in errors.Is by kind alone, so
// errors.Is(err, ErrNotConnected) matches any *Error with KindNotConnected
// regardless of its wrapped cause.
func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return te.Kind == e.Kind
	}
	return false
}

// KindOf extracts the ErrorKind from err, or KindUnknown if err is not (or
// does not wrap) a *Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
