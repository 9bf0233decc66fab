// Package errs defines the error types the API surfaces to clients.
//
// Handlers and middleware return *HTTPError values so that every failure
// serializes to the same JSON shape: a stable machine-readable code, a
// human-readable message, the HTTP status, and optional field-level
// details for validation failures.
//
// The transaction layer leans on two of these shapes. Domain errors
// raised by the ORM runtime (user errors, warnings, write conflicts)
// become 400s that keep only their message, and transient operational
// conflicts that survive the retry budget become 409s.
package errs
