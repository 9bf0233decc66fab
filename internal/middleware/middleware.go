// Package middleware stores global and route-specific middleware.
//
// These intercept requests to handle cross-cutting concerns such as
// request logging, CORS, panic recovery, tracing, and the global
// error funnel that maps transaction-layer errors onto HTTP statuses.
package middleware
