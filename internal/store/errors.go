package store

import (
	"errors"
	"fmt"
	"strings"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// ErrorKind classifies local store failures.
type ErrorKind int

const (
	// KindIO covers disk and driver failures.
	KindIO ErrorKind = iota
	// KindConstraint covers foreign key, unique and check violations.
	KindConstraint
	// KindNotInitialized means the schema has not been created yet.
	KindNotInitialized
)

func (k ErrorKind) String() string {
	switch k {
	case KindConstraint:
		return "constraint"
	case KindNotInitialized:
		return "not_initialized"
	default:
		return "io"
	}
}

// Error is the typed store error surfaced to the sync engine and queue.
// Table names the table the failing statement wrote to; Ref names the
// referenced table when a foreign key violation could be attributed, so
// callers can tell "chat missing" from "user missing".
type Error struct {
	Kind  ErrorKind
	Table string
	Ref   string
	Err   error
}

func (e *Error) Error() string {
	if e.Ref != "" {
		return fmt.Sprintf("store: %s on %s (missing %s): %v", e.Kind, e.Table, e.Ref, e.Err)
	}
	if e.Table != "" {
		return fmt.Sprintf("store: %s on %s: %v", e.Kind, e.Table, e.Err)
	}
	return fmt.Sprintf("store: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsConstraint reports whether err is a store constraint violation.
func IsConstraint(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Kind == KindConstraint
}

// IsNotInitialized reports whether err means the schema is missing.
func IsNotInitialized(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Kind == KindNotInitialized
}

// wrapErr maps a driver error into a typed *Error for the given table.
// Returns nil when err is nil.
func wrapErr(table string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	kind := KindIO
	var sqErr sqlite3.Error
	if errors.As(err, &sqErr) {
		if sqErr.Code == sqlite3.ErrConstraint {
			kind = KindConstraint
		}
	}
	if strings.Contains(err.Error(), "no such table") {
		kind = KindNotInitialized
	}
	return &Error{Kind: kind, Table: table, Err: err}
}

// withRef attributes a constraint violation to a referenced table.
func withRef(err error, ref string) error {
	var se *Error
	if errors.As(err, &se) && se.Kind == KindConstraint {
		se.Ref = ref
	}
	return err
}
