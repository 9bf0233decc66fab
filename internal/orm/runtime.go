package orm

import (
	"context"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// CacheSyncVersion is the runtime version that moved cache coordination
// into the runtime itself. Deployments tracking older runtimes need the
// explicit Cache.Clean / Cache.Resets pair around every transaction;
// from 5.1 on the runtime handles it and the pair must stay silent.
var CacheSyncVersion = Version{Major: 5, Minor: 1}

// Version is the runtime compatibility version a deployment tracks.
type Version struct {
	Major int
	Minor int
}

// ParseVersion reads "5.0" or "6.2.1" style strings; anything past
// major.minor is ignored.
func ParseVersion(s string) (Version, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) < 2 {
		return Version{}, errors.Errorf("orm: invalid version %q", s)
	}

	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return Version{}, errors.Errorf("orm: invalid version %q", s)
	}

	minor, err := strconv.Atoi(parts[1])
	if err != nil {
		return Version{}, errors.Errorf("orm: invalid version %q", s)
	}

	return Version{Major: major, Minor: minor}, nil
}

// Before reports whether v predates o.
func (v Version) Before(o Version) bool {
	if v.Major != o.Major {
		return v.Major < o.Major
	}

	return v.Minor < o.Minor
}

func (v Version) String() string {
	return strconv.Itoa(v.Major) + "." + strconv.Itoa(v.Minor)
}

// TxOptions carries the per-transaction settings resolved by the
// request layer before Begin.
type TxOptions struct {
	// User is the acting user id, readable by model SQL through
	// current_setting('ormscope.user_id').
	User int

	// ReadOnly picks the transaction access mode. Read-only
	// transactions never commit and are the only ones the request
	// layer will retry after a transient conflict.
	ReadOnly bool

	// Context is the transaction context mapping handed to model code.
	Context map[string]any
}

// Runtime binds one named database: its pgx pool, its model registry,
// its cache invalidation state, and the runner queued tasks get
// submitted to after commit.
type Runtime struct {
	name    string
	db      *pgxpool.Pool
	pool    *Pool
	cache   *Cache
	version Version
	runner  TaskRunner
	logger  *zerolog.Logger
}

// New builds a runtime for the named database. The default task runner
// executes tasks synchronously in-process; servers that drain through a
// queue broker replace it with SetTaskRunner.
func New(name string, db *pgxpool.Pool, rdb *redis.Client, version Version, logger *zerolog.Logger) *Runtime {
	r := &Runtime{
		name:    name,
		db:      db,
		pool:    NewPool(),
		cache:   NewCache(rdb, name, logger),
		version: version,
		logger:  logger,
	}
	r.runner = &SyncRunner{Runtime: r}

	return r
}

// Name returns the database name this runtime is bound to.
func (r *Runtime) Name() string {
	return r.name
}

// Pool returns the model registry.
func (r *Runtime) Pool() *Pool {
	return r.pool
}

// Cache returns the invalidation cache for this database.
func (r *Runtime) Cache() *Cache {
	return r.cache
}

// Version returns the runtime compatibility version.
func (r *Runtime) Version() Version {
	return r.version
}

// NeedsCacheSync reports whether this runtime predates in-runtime cache
// coordination and therefore needs the Clean/Resets pair driven from
// the request layer.
func (r *Runtime) NeedsCacheSync() bool {
	return r.version.Before(CacheSyncVersion)
}

// TaskRunner returns the runner queued task ids are submitted to.
func (r *Runtime) TaskRunner() TaskRunner {
	return r.runner
}

// SetTaskRunner swaps the task runner. Call during boot, before the
// first transaction.
func (r *Runtime) SetTaskRunner(runner TaskRunner) {
	r.runner = runner
}

// Begin opens a transaction with the resolved options. Repeatable read
// is the runtime's consistency floor; the serialization failures it can
// produce are exactly what the retry path upstream exists for.
func (r *Runtime) Begin(ctx context.Context, opts TxOptions) (*Tx, error) {
	mode := pgx.ReadWrite
	if opts.ReadOnly {
		mode = pgx.ReadOnly
	}

	conn, err := r.db.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: mode,
	})
	if err != nil {
		return nil, errors.Wrap(err, "orm: begin transaction")
	}

	// Expose the acting user to SQL. set_config with is_local=true
	// scopes the setting to this transaction.
	_, err = conn.Exec(ctx,
		`SELECT set_config('ormscope.user_id', $1, true)`,
		strconv.Itoa(opts.User))
	if err != nil {
		_ = conn.Rollback(ctx)

		return nil, errors.Wrap(err, "orm: set transaction user")
	}

	return NewTx(conn, opts), nil
}
