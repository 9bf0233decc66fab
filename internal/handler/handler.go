// Package handler is the HTTP layer, the first entry point for
// business logic after the router.
//
// It parses requests, handles input validation using the validation
// package, and runs business logic against the ORM layer. Handlers
// that need a database transaction are mounted behind the scope
// middleware and read the open transaction (and any pre-resolved
// record parameters) from the echo context.
package handler
