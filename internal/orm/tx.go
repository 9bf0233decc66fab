package orm

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// Tx is one runtime transaction: the underlying pgx transaction plus
// the per-transaction state model code reads (acting user, readonly
// flag, context mapping) and writes (queued task ids, dirtied caches).
//
// A Tx belongs to exactly one in-flight call. Nothing here locks; if
// two goroutines share a Tx the bug is upstream.
type Tx struct {
	conn     pgx.Tx
	user     int
	readonly bool
	context  map[string]any

	// tasks holds queue_task ids written during this transaction, in
	// insertion order. They are handed to the task runner only after a
	// successful commit.
	tasks []int64

	// dirty names the registered caches this transaction invalidated.
	dirty map[string]struct{}

	finished bool
}

// NewTx wraps an already-open pgx transaction with the runtime's
// per-transaction state. Runtime.Begin is the normal path; NewTx
// exists for callers that manage the underlying transaction themselves.
func NewTx(conn pgx.Tx, opts TxOptions) *Tx {
	return &Tx{
		conn:     conn,
		user:     opts.User,
		readonly: opts.ReadOnly,
		context:  opts.Context,
	}
}

// Conn exposes the pgx transaction for model SQL. Model code only; the
// request layer never touches it.
func (t *Tx) Conn() pgx.Tx {
	return t.conn
}

// User returns the acting user id the transaction was opened with.
func (t *Tx) User() int {
	return t.user
}

// ReadOnly reports whether the transaction was opened read-only.
func (t *Tx) ReadOnly() bool {
	return t.readonly
}

// Context returns the transaction context mapping. It is the live map,
// shared with model code for the duration of the transaction.
func (t *Tx) Context() map[string]any {
	return t.context
}

// Value returns one context entry, nil when absent.
func (t *Tx) Value(key string) any {
	if t.context == nil {
		return nil
	}

	return t.context[key]
}

// EnqueueTask writes a durable queue row for model.method with a JSON
// payload and remembers its id for the post-commit drain. The row
// commits or rolls back with the rest of the transaction, so a task can
// never outlive the data it was queued for.
func (t *Tx) EnqueueTask(ctx context.Context, model, method string, data any) (int64, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return 0, errors.Wrap(err, "orm: marshal task payload")
	}

	var id int64
	row := t.conn.QueryRow(ctx,
		`INSERT INTO queue_task (model, method, data) VALUES ($1, $2, $3) RETURNING id`,
		model, method, payload)
	if err := row.Scan(&id); err != nil {
		return 0, errors.Wrapf(err, "orm: enqueue task %s.%s", model, method)
	}

	t.QueueTask(id)

	return id, nil
}

// QueueTask records an already-written queue row id for the drain.
// EnqueueTask calls it; it is exported for model code that writes queue
// rows with its own SQL.
func (t *Tx) QueueTask(id int64) {
	t.tasks = append(t.tasks, id)
}

// Tasks returns the queued task ids in insertion order.
func (t *Tx) Tasks() []int64 {
	out := make([]int64, len(t.tasks))
	copy(out, t.tasks)

	return out
}

// PopTask removes and returns the oldest queued task id. ok is false
// once the queue is empty.
func (t *Tx) PopTask() (id int64, ok bool) {
	if len(t.tasks) == 0 {
		return 0, false
	}

	id = t.tasks[0]
	t.tasks = t.tasks[1:]

	return id, true
}

// MarkCacheDirty flags a registered cache as invalidated by this
// transaction. Cache.Resets publishes the invalidation after commit.
func (t *Tx) MarkCacheDirty(name string) {
	if t.dirty == nil {
		t.dirty = map[string]struct{}{}
	}

	t.dirty[name] = struct{}{}
}

func (t *Tx) dirtyCaches() []string {
	names := make([]string, 0, len(t.dirty))
	for name := range t.dirty {
		names = append(names, name)
	}

	return names
}

// Commit commits the transaction. Calling it twice, or after Rollback,
// is an error from pgx which gets passed through.
func (t *Tx) Commit(ctx context.Context) error {
	if err := t.conn.Commit(ctx); err != nil {
		return errors.Wrap(err, "orm: commit")
	}

	t.finished = true

	return nil
}

// Rollback aborts the transaction. After a successful Commit it is a
// no-op, which lets callers keep it in a defer on every path.
func (t *Tx) Rollback(ctx context.Context) error {
	if t.finished {
		return nil
	}

	if err := t.conn.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return errors.Wrap(err, "orm: rollback")
	}

	t.finished = true

	return nil
}
