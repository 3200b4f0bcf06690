package remote

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies remote-side rejections.
type ErrorKind int

const (
	// NotFound means the addressed document does not exist.
	NotFound ErrorKind = iota
	// PermissionDenied means the remote rejected the caller's credentials.
	PermissionDenied
	// Unknown covers every other remote-side failure.
	Unknown
)

func (k ErrorKind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case PermissionDenied:
		return "permission_denied"
	default:
		return "unknown"
	}
}

// Error is a remote-side rejection: the request reached the store and the
// store said no.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("remote: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("remote: %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// NotFoundError builds a NotFound rejection for the given operation.
func NotFoundError(op string) error {
	return &Error{Kind: NotFound, Op: op}
}

// NetworkError is a transport failure: the request may or may not have
// reached the store. Callers recover via idempotent retry, keyed by the
// message's local id.
type NetworkError struct {
	Timeout bool
	Err     error
}

func (e *NetworkError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("network timeout: %v", e.Err)
	}
	return fmt.Sprintf("network unreachable: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a remote NotFound rejection.
func IsNotFound(err error) bool {
	var re *Error
	return errors.As(err, &re) && re.Kind == NotFound
}

// IsPermissionDenied reports whether err is a remote permission rejection.
func IsPermissionDenied(err error) bool {
	var re *Error
	return errors.As(err, &re) && re.Kind == PermissionDenied
}

// IsNetwork reports whether err is a transport failure, including
// context deadline expiry on a bounded remote call.
func IsNetwork(err error) bool {
	var ne *NetworkError
	if errors.As(err, &ne) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
