package orm

import (
	"errors"
	"fmt"
)

// ErrNotFound reports a browse for an id that has no row. Wrapped by
// models with the concrete model name and id; the global error handler
// maps it to a 404.
var ErrNotFound = errors.New("record not found")

// ErrUnknownModel reports a registry lookup for a name nothing
// registered under. This is a wiring bug, not a client error.
var ErrUnknownModel = errors.New("unknown model")

// UserError is a business-rule violation raised by model code, e.g.
// "Login must be unique". The transaction layer turns it into a 400
// that carries only the message.
type UserError struct {
	Message string
	// Detail optionally expands on the message. It never leaves the
	// server.
	Detail string
}

func (e *UserError) Error() string {
	return e.Message
}

// UserWarning is a suppressible warning raised by model code. Name
// identifies the warning so a client could acknowledge it; until it
// does, the warning travels the same 400 path as UserError.
type UserWarning struct {
	Name    string
	Message string
}

func (e *UserWarning) Error() string {
	return e.Message
}

// ConcurrencyError reports an optimistic write conflict: the record was
// modified between the read and the write of the same transaction.
type ConcurrencyError struct {
	Message string
}

func (e *ConcurrencyError) Error() string {
	return e.Message
}

// OperationalError wraps a transient database failure (serialization
// failure, deadlock). The transaction layer retries these while the
// transaction is read-only and surfaces them as 409s otherwise.
type OperationalError struct {
	Err error
}

func (e *OperationalError) Error() string {
	return fmt.Sprintf("operational error: %v", e.Err)
}

func (e *OperationalError) Unwrap() error {
	return e.Err
}

// DomainMessage matches err against the closed set of domain error
// types and returns the client-facing message when it is one of them.
//
// The set is deliberately enumerated here rather than hidden behind a
// shared interface: adding a new domain error type must force a look at
// every translation site.
func DomainMessage(err error) (string, bool) {
	var userErr *UserError
	if errors.As(err, &userErr) {
		return userErr.Message, true
	}

	var warning *UserWarning
	if errors.As(err, &warning) {
		return warning.Message, true
	}

	var conflict *ConcurrencyError
	if errors.As(err, &conflict) {
		return conflict.Message, true
	}

	return "", false
}

// IsOperational reports whether err is (or wraps) a transient
// operational failure that a fresh transaction could survive.
func IsOperational(err error) bool {
	var opErr *OperationalError

	return errors.As(err, &opErr)
}
