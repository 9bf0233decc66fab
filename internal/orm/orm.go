// Package orm is the runtime binding the transaction layer drives.
//
// It owns the model registry (lookup by dotted model name, browse by
// ids), transaction begin/commit/rollback over a pgx pool, the durable
// background-task queue written inside business transactions, and the
// redis-backed cache invalidation pair older runtime versions need
// around every request.
//
// Nothing in here touches HTTP. The request-side coupling lives in
// internal/scope, which drives this package through Runtime.
package orm
