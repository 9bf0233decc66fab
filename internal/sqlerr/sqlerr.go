// Package sqlerr specifically handles database driver errors.
//
// It parses cryptic error codes from the database driver and converts
// them into something each layer can act on: constraint violations
// become user-friendly 400s, missing rows become 404s, and transient
// failures (serialization failures, deadlocks, dropped connections)
// become orm.OperationalError so the transaction layer can decide
// whether to retry.
package sqlerr
