// Package scope ties HTTP requests to database transactions. A Scope
// wraps a handler so that a transaction opens before it runs, commits
// or rolls back depending on the outcome, and queued follow-up tasks
// are handed to the task runner once the commit is durable.
//
// The wrapper also resolves per-route configuration (read-only mode,
// acting user, extra transaction context), loads records named by URL
// parameters, translates domain errors into 400 responses, and retries
// read-only work that lost a serialization race.
package scope

import (
	"context"
	"net/http"
	"time"

	retry "github.com/avast/retry-go/v4"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ormscope/ormscope/internal/errs"
	"github.com/ormscope/ormscope/internal/orm"
	"github.com/ormscope/ormscope/internal/sqlerr"
)

const (
	// DefaultMaxRetries bounds how often a read-only request is
	// replayed after a transient database failure before the failure
	// is surfaced to the client.
	DefaultMaxRetries = 5

	defaultRetryDelay = 25 * time.Millisecond
)

// RetryHook observes every retry decision, receiving the attempt number
// that failed (1-based) and the error that caused it. Used to feed
// telemetry; must not block.
type RetryHook func(c echo.Context, attempt int, err error)

// Runtime is the slice of the transaction runtime the scope drives.
// *orm.Runtime implements it.
type Runtime interface {
	Begin(ctx context.Context, opts orm.TxOptions) (*orm.Tx, error)
	NeedsCacheSync() bool
	Cache() *orm.Cache
	Pool() *orm.Pool
	TaskRunner() orm.TaskRunner
}

// Scope owns the per-request transaction lifecycle for one runtime.
// Construct one at boot and reuse it across routes; per-route behavior
// comes from the Config passed to Transaction.
type Scope struct {
	runtime     Runtime
	defaultUser int
	maxRetries  int
	retryDelay  time.Duration
	contextFn   func() map[string]any
	onRetry     RetryHook
	logger      zerolog.Logger
}

// Option configures a Scope at construction time.
type Option func(*Scope)

// WithDefaultUser sets the user id used when a route does not configure
// one. Defaults to 0, the superuser.
func WithDefaultUser(user int) Option {
	return func(s *Scope) {
		s.defaultUser = user
	}
}

// WithMaxRetries sets how many times a read-only request is replayed
// after a transient database failure.
func WithMaxRetries(n int) Option {
	return func(s *Scope) {
		if n >= 0 {
			s.maxRetries = n
		}
	}
}

// WithDefaultContext registers a callback whose result seeds the
// transaction context of every request. Route-level context entries
// override entries from the callback.
func WithDefaultContext(fn func() map[string]any) Option {
	return func(s *Scope) {
		s.contextFn = fn
	}
}

// WithRetryDelay sets the base delay between retry attempts. The
// actual delay backs off exponentially from this base with jitter.
func WithRetryDelay(d time.Duration) Option {
	return func(s *Scope) {
		if d > 0 {
			s.retryDelay = d
		}
	}
}

// WithRetryHook registers a hook invoked on every retried attempt.
func WithRetryHook(hook RetryHook) Option {
	return func(s *Scope) {
		s.onRetry = hook
	}
}

// WithLogger sets the logger used for lifecycle warnings.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Scope) {
		s.logger = logger
	}
}

// New creates a Scope bound to a runtime.
func New(runtime Runtime, opts ...Option) *Scope {
	s := &Scope{
		runtime:    runtime,
		maxRetries: DefaultMaxRetries,
		retryDelay: defaultRetryDelay,
		logger:     zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Config describes how one route's transaction behaves. Every field is
// optional: an unset ReadOnly is derived from the request method, an
// unset User falls back to the scope default, and an unset Context
// contributes nothing beyond the default context callback.
type Config struct {
	ReadOnly Value[bool]
	User     Value[int]
	Context  Value[map[string]any]
	Params   []ParamSpec
}

// Transaction returns middleware running the wrapped handler inside a
// transaction configured by cfg.
//
// The lifecycle per request: parse declared record parameters, open a
// transaction, materialize the records, run the handler, commit when
// the transaction is read-write, translate domain errors to 400, and
// submit queued tasks once the commit is durable. Transient database
// failures replay the whole sequence while the transaction is
// read-only; read-write requests surface the failure immediately
// because the handler may have observed partial state.
func (s *Scope) Transaction(cfg Config) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			return s.run(c, cfg, next)
		}
	}
}

func (s *Scope) run(c echo.Context, cfg Config, next echo.HandlerFunc) error {
	bound, err := parseParams(c, cfg.Params)
	if err != nil {
		return err
	}

	// Tracks the mode of the most recent attempt. ReadOnly may be
	// backed by a provider, so the retry gate has to consult what the
	// attempt actually resolved rather than re-resolving.
	var lastReadonly bool

	return retry.Do(
		func() error {
			return s.attempt(c, cfg, bound, next, &lastReadonly)
		},
		retry.Attempts(uint(s.maxRetries)+1),
		retry.RetryIf(func(err error) bool {
			return lastReadonly && orm.IsOperational(err)
		}),
		retry.LastErrorOnly(true),
		retry.Context(c.Request().Context()),
		retry.Delay(s.retryDelay),
		retry.MaxJitter(s.retryDelay),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.OnRetry(func(n uint, err error) {
			attempt := int(n) + 1
			s.logger.Warn().
				Err(err).
				Int("attempt", attempt).
				Str("path", c.Path()).
				Msg("Transient database failure, retrying transaction")
			if s.onRetry != nil {
				s.onRetry(c, attempt, err)
			}
		}),
	)
}

// attempt runs one full transaction cycle. Every call starts from a
// clean slate so a retried request cannot observe state from a
// rolled-back predecessor.
func (s *Scope) attempt(c echo.Context, cfg Config, bound []boundParam, next echo.HandlerFunc, lastReadonly *bool) error {
	req := c.Request()
	ctx := req.Context()

	// Older runtimes do not push cache invalidations between processes,
	// so the scope reconciles against the shared counters before every
	// transaction.
	if s.runtime.NeedsCacheSync() {
		if err := s.runtime.Cache().Clean(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("Cache reconciliation failed, continuing with possibly stale caches")
		}
	}

	user := s.defaultUser
	if cfg.User.IsSet() {
		user = cfg.User.Resolve()
	}

	readonly := methodReadOnly(req.Method)
	if cfg.ReadOnly.IsSet() {
		readonly = cfg.ReadOnly.Resolve()
	}
	*lastReadonly = readonly

	txContext := s.buildContext(c, cfg)

	tx, err := s.runtime.Begin(ctx, orm.TxOptions{User: user, ReadOnly: readonly, Context: txContext})
	if err != nil {
		if sqlerr.Transient(err) {
			return &orm.OperationalError{Err: err}
		}
		return err
	}

	// Release must survive client disconnects, otherwise an abandoned
	// request would leak its connection back to the pool mid-transaction.
	releaseCtx := context.WithoutCancel(ctx)
	defer func() {
		if rbErr := tx.Rollback(releaseCtx); rbErr != nil {
			s.logger.Error().Err(rbErr).Msg("Transaction rollback failed")
		}
	}()

	c.Set(txKey, tx)

	err = func() error {
		if mErr := materialize(ctx, c, tx, s.runtime.Pool(), bound); mErr != nil {
			return mErr
		}
		return next(c)
	}()

	if err == nil && !readonly {
		if cErr := tx.Commit(ctx); cErr != nil {
			err = cErr
		}
	}

	if err != nil {
		if sqlerr.Transient(err) {
			err = &orm.OperationalError{Err: err}
		}
		// Operational failures keep their type so the retry gate and
		// the conflict mapping can see them. Only the closed set of
		// domain errors collapses into a 400, and only the message
		// survives the translation.
		if orm.IsOperational(err) {
			return err
		}
		if msg, ok := orm.DomainMessage(err); ok {
			return errs.NewBadRequestError(msg, false, nil, nil)
		}
		return err
	}

	if s.runtime.NeedsCacheSync() {
		if rErr := s.runtime.Cache().Resets(releaseCtx, tx); rErr != nil {
			s.logger.Warn().Err(rErr).Msg("Cache invalidation broadcast failed")
		}
	}

	if !readonly {
		s.drainTasks(releaseCtx, c, tx)
	}

	return nil
}

// buildContext assembles the transaction context: default context
// callback first, then the route-level context on top, then request
// metadata merged under the _request key. The _request entry always
// exists, even when nothing contributes to it, so context consumers
// can rely on its presence.
func (s *Scope) buildContext(c echo.Context, cfg Config) map[string]any {
	txContext := map[string]any{}
	if s.contextFn != nil {
		for k, v := range s.contextFn() {
			txContext[k] = v
		}
	}
	if cfg.Context.IsSet() {
		for k, v := range cfg.Context.Resolve() {
			txContext[k] = v
		}
	}

	reqInfo, _ := txContext["_request"].(map[string]any)
	if reqInfo == nil {
		reqInfo = map[string]any{}
	}
	if req := c.Request(); req != nil {
		scheme := c.Scheme()
		reqInfo["remote_addr"] = c.RealIP()
		reqInfo["http_host"] = req.Host
		reqInfo["scheme"] = scheme
		reqInfo["is_secure"] = scheme == "https"
	}
	txContext["_request"] = reqInfo

	return txContext
}

// drainTasks hands every queued task id to the runner, one at a time in
// queue order. Runs only after a durable commit. A submission failure
// stops the drain but not the request: the rows are committed, so the
// stale-task sweeper will pick up whatever was not submitted here.
func (s *Scope) drainTasks(ctx context.Context, c echo.Context, tx *orm.Tx) {
	runner := s.runtime.TaskRunner()
	for {
		id, ok := tx.PopTask()
		if !ok {
			return
		}

		if err := runner.Submit(ctx, id); err != nil {
			s.logger.Error().
				Err(err).
				Int64("task_id", id).
				Str("path", c.Path()).
				Msg("Task submission failed, leaving remaining tasks for the sweeper")
			return
		}
	}
}

// methodReadOnly derives the transaction mode from the request method
// when a route does not configure one: methods that imply mutation get
// a read-write transaction, everything else stays read-only.
func methodReadOnly(method string) bool {
	switch method {
	case http.MethodPut, http.MethodPost, http.MethodDelete, http.MethodPatch:
		return false
	}

	return true
}
