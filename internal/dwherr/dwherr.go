// Package dwherr classifies failures by pipeline stage. Every stage error
// carries the table and statement that failed and unwraps to the backend
// error, so callers can both branch on the stage with errors.Is and reach the
// driver error with errors.As.
package dwherr

import (
	"errors"
	"fmt"
)

// Kind names the stage an error originated in.
type Kind string

const (
	KindConnection Kind = "connection"
	KindSchema     Kind = "schema"
	KindLoad       Kind = "load"
	KindDerivation Kind = "derivation"
)

// Sentinels for errors.Is. An *Error matches the sentinel of its Kind.
var (
	ErrConnection = &Error{Kind: KindConnection}
	ErrSchema     = &Error{Kind: KindSchema}
	ErrLoad       = &Error{Kind: KindLoad}
	ErrDerivation = &Error{Kind: KindDerivation}
)

// Error is a stage failure.
type Error struct {
	Kind      Kind
	Table     string
	Statement string
	Err       error
}

func (e *Error) Error() string {
	msg := string(e.Kind) + " error"
	if e.Table != "" {
		msg += " on " + e.Table
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Err == nil && t.Table == ""
}

func wrap(kind Kind, table, stmt string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Table: table, Statement: stmt, Err: err}
}

// Connection wraps a failure to open or authenticate a session.
func Connection(err error) error { return wrap(KindConnection, "", "", err) }

// Schema wraps a DDL failure.
func Schema(table, stmt string, err error) error { return wrap(KindSchema, table, stmt, err) }

// Load wraps a staging load failure.
func Load(table, stmt string, err error) error { return wrap(KindLoad, table, stmt, err) }

// Derivation wraps a dimension or fact derivation failure.
func Derivation(table, stmt string, err error) error {
	return wrap(KindDerivation, table, stmt, err)
}

// Statement returns the failing statement recorded anywhere in err's chain.
func Statement(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Statement
	}
	return ""
}

// Errorf is a convenience for stage errors that do not wrap a backend error.
func Errorf(kind Kind, table, format string, args ...any) error {
	return &Error{Kind: kind, Table: table, Err: fmt.Errorf(format, args...)}
}
