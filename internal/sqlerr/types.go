package sqlerr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Code is our friendly enum over the SQLSTATE classes we care about.
// Everything we never branch on collapses into Other.
type Code int

const (
	Other Code = iota
	UniqueViolation
	ForeignKeyViolation
	NotNullViolation
	CheckViolation
	SerializationFailure
	DeadlockDetected
	ConnectionException
)

func (c Code) String() string {
	switch c {
	case UniqueViolation:
		return "unique_violation"
	case ForeignKeyViolation:
		return "foreign_key_violation"
	case NotNullViolation:
		return "not_null_violation"
	case CheckViolation:
		return "check_violation"
	case SerializationFailure:
		return "serialization_failure"
	case DeadlockDetected:
		return "deadlock_detected"
	case ConnectionException:
		return "connection_exception"
	default:
		return "other"
	}
}

// MapCode maps a raw SQLSTATE to our Code enum.
//
// SQLSTATE is a five-character code; the first two characters are the
// error class. Constraint violations are individual codes in class 23,
// transaction rollbacks (serialization failure, deadlock) live in class
// 40, and every connection problem shares class 08.
func MapCode(sqlstate string) Code {
	switch sqlstate {
	case "23505":
		return UniqueViolation
	case "23503":
		return ForeignKeyViolation
	case "23502":
		return NotNullViolation
	case "23514":
		return CheckViolation
	case "40001":
		return SerializationFailure
	case "40P01":
		return DeadlockDetected
	}

	if strings.HasPrefix(sqlstate, "08") {
		return ConnectionException
	}

	return Other
}

// Severity is the database's own severity tag, normalized.
type Severity int

const (
	SeverityOther Severity = iota
	SeverityError
	SeverityFatal
	SeverityPanic
	SeverityWarning
)

// MapSeverity maps the severity string from the driver ("ERROR",
// "FATAL", ...) into the enum.
func MapSeverity(s string) Severity {
	switch strings.ToUpper(s) {
	case "ERROR":
		return SeverityError
	case "FATAL":
		return SeverityFatal
	case "PANIC":
		return SeverityPanic
	case "WARNING":
		return SeverityWarning
	default:
		return SeverityOther
	}
}

// Error is our structured view of a database server error. It keeps the
// original SQLSTATE and the schema metadata the server reported, so
// messages and codes can be derived without re-parsing driver strings.
type Error struct {
	Code           Code
	Severity       Severity
	DatabaseCode   string
	Message        string
	SchemaName     string
	TableName      string
	ColumnName     string
	DataTypeName   string
	ConstraintName string

	driverErr error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (SQLSTATE %s)", e.Message, e.DatabaseCode)
}

// Unwrap exposes the original driver error for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.driverErr
}

// Transient reports whether this error names a condition a brand-new
// transaction could survive: the transaction layer retries these when
// its policy allows.
func (e *Error) Transient() bool {
	switch e.Code {
	case SerializationFailure, DeadlockDetected, ConnectionException:
		return true
	default:
		return false
	}
}

// Transient is the package-level probe for raw driver errors. It walks
// the chain for a pgconn.PgError and checks its SQLSTATE.
func Transient(err error) bool {
	var pgerr *pgconn.PgError
	if !errors.As(err, &pgerr) {
		return false
	}

	return MapCode(pgerr.Code) == SerializationFailure ||
		MapCode(pgerr.Code) == DeadlockDetected ||
		MapCode(pgerr.Code) == ConnectionException
}
