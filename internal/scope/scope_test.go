package scope

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/labstack/echo/v4"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ormscope/ormscope/internal/errs"
	"github.com/ormscope/ormscope/internal/orm"
)

// fakeConn satisfies pgx.Tx for lifecycle tests. Only Commit and
// Rollback are implemented; the handlers under test never run SQL, so
// any other method would panic through the nil embedded interface.
type fakeConn struct {
	pgx.Tx
	commits   int
	rollbacks int
	commitErr error
}

func (f *fakeConn) Commit(ctx context.Context) error {
	if f.commitErr != nil {
		return f.commitErr
	}
	f.commits++

	return nil
}

func (f *fakeConn) Rollback(ctx context.Context) error {
	f.rollbacks++

	return nil
}

// recordingRunner captures submitted task ids in order.
type recordingRunner struct {
	submitted []int64
	failOn    int64
}

func (r *recordingRunner) Submit(ctx context.Context, taskID int64) error {
	if r.failOn != 0 && taskID == r.failOn {
		return fmt.Errorf("broker unavailable")
	}
	r.submitted = append(r.submitted, taskID)

	return nil
}

// fakeRuntime implements Runtime over fake connections. Begin errors
// can be queued to simulate failures at transaction open.
type fakeRuntime struct {
	pool      *orm.Pool
	cache     *orm.Cache
	runner    *recordingRunner
	needsSync bool

	beginErrs []error
	opts      []orm.TxOptions
	conns     []*fakeConn
}

func newFakeRuntime() *fakeRuntime {
	logger := zerolog.Nop()

	return &fakeRuntime{
		pool:   orm.NewPool(),
		cache:  orm.NewCache(nil, "testdb", &logger),
		runner: &recordingRunner{},
	}
}

func (f *fakeRuntime) Begin(ctx context.Context, opts orm.TxOptions) (*orm.Tx, error) {
	if len(f.beginErrs) > 0 {
		err := f.beginErrs[0]
		f.beginErrs = f.beginErrs[1:]
		if err != nil {
			return nil, err
		}
	}

	conn := &fakeConn{}
	f.conns = append(f.conns, conn)
	f.opts = append(f.opts, opts)

	return orm.NewTx(conn, opts), nil
}

func (f *fakeRuntime) NeedsCacheSync() bool       { return f.needsSync }
func (f *fakeRuntime) Cache() *orm.Cache          { return f.cache }
func (f *fakeRuntime) Pool() *orm.Pool            { return f.pool }
func (f *fakeRuntime) TaskRunner() orm.TaskRunner { return f.runner }

// stubModel materializes records without a database.
type stubModel struct {
	name    string
	browsed [][]int64
	err     error
}

func (m *stubModel) Name() string { return m.name }

func (m *stubModel) Browse(ctx context.Context, tx *orm.Tx, ids []int64) ([]*orm.Record, error) {
	m.browsed = append(m.browsed, ids)
	if m.err != nil {
		return nil, m.err
	}

	records := make([]*orm.Record, len(ids))
	for i, id := range ids {
		records[i] = orm.NewRecord(m.name, id, map[string]any{"login": fmt.Sprintf("user-%d", id)})
	}

	return records, nil
}

func newTestContext(method, target string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()

	return e.NewContext(req, rec), rec
}

// serializationFailure mimics the driver error Postgres raises when
// repeatable read loses a concurrent-update race.
func serializationFailure() error {
	return &pgconn.PgError{Code: "40001", Message: "could not serialize access due to concurrent update"}
}

func testScope(rt *fakeRuntime, opts ...Option) *Scope {
	base := []Option{WithRetryDelay(time.Millisecond)}

	return New(rt, append(base, opts...)...)
}

func TestTransactionCommitsReadWriteExactlyOnce(t *testing.T) {
	rt := newFakeRuntime()
	s := testScope(rt)

	c, _ := newTestContext(http.MethodPost, "/api/users")
	err := s.Transaction(Config{})(func(c echo.Context) error {
		tx, err := TxFrom(c)
		require.NoError(t, err)
		tx.QueueTask(7)
		tx.QueueTask(3)
		tx.QueueTask(9)

		return nil
	})(c)

	require.NoError(t, err)
	require.Len(t, rt.conns, 1)
	assert.Equal(t, 1, rt.conns[0].commits)
	assert.Equal(t, 0, rt.conns[0].rollbacks)
	assert.Equal(t, []int64{7, 3, 9}, rt.runner.submitted, "tasks must reach the runner in queue order")
}

func TestTransactionReadOnlyNeverCommits(t *testing.T) {
	rt := newFakeRuntime()
	s := testScope(rt)

	c, _ := newTestContext(http.MethodGet, "/api/users/1")
	err := s.Transaction(Config{})(func(c echo.Context) error {
		tx, err := TxFrom(c)
		require.NoError(t, err)
		tx.QueueTask(11)

		return nil
	})(c)

	require.NoError(t, err)
	require.Len(t, rt.conns, 1)
	assert.Equal(t, 0, rt.conns[0].commits)
	assert.Equal(t, 1, rt.conns[0].rollbacks)
	assert.Empty(t, rt.runner.submitted, "a read-only transaction must not hand off tasks")
}

func TestTransactionDomainErrorsBecome400(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "user error", err: &orm.UserError{Message: "Login must be unique.", Detail: "internal detail"}},
		{name: "user warning", err: &orm.UserWarning{Name: "big_delete", Message: "You are deleting many records."}},
		{name: "concurrency error", err: &orm.ConcurrencyError{Message: "The record was modified concurrently."}},
		{name: "wrapped user error", err: pkgerrors.Wrap(&orm.UserError{Message: "Login must be unique."}, "creating user")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := newFakeRuntime()
			s := testScope(rt)

			c, _ := newTestContext(http.MethodPost, "/api/users")
			err := s.Transaction(Config{})(func(c echo.Context) error {
				return tt.err
			})(c)

			var httpErr *errs.HTTPError
			require.ErrorAs(t, err, &httpErr)
			assert.Equal(t, http.StatusBadRequest, httpErr.Status)

			// Only the message survives the translation.
			wanted, ok := orm.DomainMessage(tt.err)
			require.True(t, ok)
			assert.Equal(t, wanted, httpErr.Message)
			assert.NotContains(t, httpErr.Message, "internal detail")
			assert.Empty(t, httpErr.Errors)

			require.Len(t, rt.conns, 1)
			assert.Equal(t, 0, rt.conns[0].commits, "a failed handler must never commit")
			assert.Equal(t, 1, rt.conns[0].rollbacks)
			assert.Empty(t, rt.runner.submitted)
		})
	}
}

func TestTransactionOtherErrorsPassThrough(t *testing.T) {
	rt := newFakeRuntime()
	s := testScope(rt)

	boom := pkgerrors.New("backend exploded")

	c, _ := newTestContext(http.MethodPost, "/api/users")
	err := s.Transaction(Config{})(func(c echo.Context) error {
		return boom
	})(c)

	assert.ErrorIs(t, err, boom)
	require.Len(t, rt.conns, 1)
	assert.Equal(t, 0, rt.conns[0].commits)
	assert.Equal(t, 1, rt.conns[0].rollbacks)
}

func TestTransactionRetriesReadOnlyConflicts(t *testing.T) {
	rt := newFakeRuntime()

	var hookAttempts []int
	s := testScope(rt,
		WithMaxRetries(5),
		WithRetryHook(func(c echo.Context, attempt int, err error) {
			hookAttempts = append(hookAttempts, attempt)
		}),
	)

	calls := 0
	c, _ := newTestContext(http.MethodGet, "/api/users/1")
	err := s.Transaction(Config{})(func(c echo.Context) error {
		calls++
		if calls <= 2 {
			return serializationFailure()
		}

		return nil
	})(c)

	require.NoError(t, err)
	assert.Equal(t, 3, calls, "two conflicts then success means three executions")
	assert.Len(t, rt.conns, 3, "every attempt runs in a fresh transaction")
	for _, conn := range rt.conns {
		assert.Equal(t, 0, conn.commits)
		assert.Equal(t, 1, conn.rollbacks)
	}
	assert.Equal(t, []int{1, 2}, hookAttempts)
}

func TestTransactionRetryBudgetExhausted(t *testing.T) {
	rt := newFakeRuntime()
	s := testScope(rt, WithMaxRetries(2))

	calls := 0
	c, _ := newTestContext(http.MethodGet, "/api/users/1")
	err := s.Transaction(Config{})(func(c echo.Context) error {
		calls++

		return serializationFailure()
	})(c)

	require.Error(t, err)
	assert.True(t, orm.IsOperational(err), "the exhausted conflict must surface as operational")
	assert.Equal(t, 3, calls, "max retries 2 allows three attempts total")
}

func TestTransactionZeroRetriesMeansSingleAttempt(t *testing.T) {
	rt := newFakeRuntime()
	s := testScope(rt, WithMaxRetries(0))

	calls := 0
	c, _ := newTestContext(http.MethodGet, "/api/users/1")
	err := s.Transaction(Config{})(func(c echo.Context) error {
		calls++

		return serializationFailure()
	})(c)

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestTransactionReadWriteConflictNotRetried(t *testing.T) {
	rt := newFakeRuntime()
	s := testScope(rt, WithMaxRetries(5))

	calls := 0
	c, _ := newTestContext(http.MethodPost, "/api/users")
	err := s.Transaction(Config{})(func(c echo.Context) error {
		calls++

		return serializationFailure()
	})(c)

	require.Error(t, err)
	assert.True(t, orm.IsOperational(err))
	assert.Equal(t, 1, calls, "a read-write conflict surfaces immediately")
}

func TestTransactionCommitConflictNotRetried(t *testing.T) {
	rt := newFakeRuntime()
	s := testScope(rt, WithMaxRetries(5))

	calls := 0
	c, _ := newTestContext(http.MethodPost, "/api/users")
	err := s.Transaction(Config{})(func(c echo.Context) error {
		calls++
		tx, txErr := TxFrom(c)
		require.NoError(t, txErr)
		tx.Conn().(*fakeConn).commitErr = serializationFailure()

		return nil
	})(c)

	require.Error(t, err)
	assert.True(t, orm.IsOperational(err))
	assert.Equal(t, 1, calls)
	assert.Empty(t, rt.runner.submitted)
}

func TestTransactionBeginConflictRetriedWhenReadOnly(t *testing.T) {
	rt := newFakeRuntime()
	rt.beginErrs = []error{serializationFailure()}
	s := testScope(rt, WithMaxRetries(2))

	calls := 0
	c, _ := newTestContext(http.MethodGet, "/api/users/1")
	err := s.Transaction(Config{})(func(c echo.Context) error {
		calls++

		return nil
	})(c)

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Len(t, rt.conns, 1, "only the second begin produced a transaction")
}

func TestTransactionBeginPermanentFailureSurfaces(t *testing.T) {
	rt := newFakeRuntime()
	boom := pkgerrors.New("pool exhausted")
	rt.beginErrs = []error{boom}
	s := testScope(rt, WithMaxRetries(5))

	calls := 0
	c, _ := newTestContext(http.MethodGet, "/api/users/1")
	err := s.Transaction(Config{})(func(c echo.Context) error {
		calls++

		return nil
	})(c)

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, calls)
	assert.Empty(t, rt.conns)
}

func TestTransactionReadOnlyOverrides(t *testing.T) {
	t.Run("literal false on GET", func(t *testing.T) {
		rt := newFakeRuntime()
		s := testScope(rt)

		c, _ := newTestContext(http.MethodGet, "/api/report")
		err := s.Transaction(Config{ReadOnly: Literal(false)})(func(c echo.Context) error {
			return nil
		})(c)

		require.NoError(t, err)
		require.Len(t, rt.opts, 1)
		assert.False(t, rt.opts[0].ReadOnly)
		assert.Equal(t, 1, rt.conns[0].commits)
	})

	t.Run("literal true on POST", func(t *testing.T) {
		rt := newFakeRuntime()
		s := testScope(rt)

		c, _ := newTestContext(http.MethodPost, "/api/report")
		err := s.Transaction(Config{ReadOnly: Literal(true)})(func(c echo.Context) error {
			return nil
		})(c)

		require.NoError(t, err)
		require.Len(t, rt.opts, 1)
		assert.True(t, rt.opts[0].ReadOnly)
		assert.Equal(t, 0, rt.conns[0].commits)
	})
}

func TestTransactionReadOnlyProviderConsultedPerAttempt(t *testing.T) {
	rt := newFakeRuntime()
	s := testScope(rt, WithMaxRetries(5))

	// First attempt read-only, second read-write. The conflict of the
	// second attempt must not be retried because the retry gate looks
	// at what the failing attempt resolved.
	modes := []bool{true, false}
	resolved := 0

	calls := 0
	c, _ := newTestContext(http.MethodGet, "/api/users/1")
	err := s.Transaction(Config{
		ReadOnly: Provider(func() bool {
			mode := modes[resolved]
			resolved++

			return mode
		}),
	})(func(c echo.Context) error {
		calls++

		return serializationFailure()
	})(c)

	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, resolved)
}

func TestTransactionUserResolution(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want int
	}{
		{name: "default", cfg: Config{}, want: 42},
		{name: "literal", cfg: Config{User: Literal(7)}, want: 7},
		{name: "provider", cfg: Config{User: Provider(func() int { return 9 })}, want: 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := newFakeRuntime()
			s := testScope(rt, WithDefaultUser(42))

			c, _ := newTestContext(http.MethodGet, "/api/users/1")
			err := s.Transaction(tt.cfg)(func(c echo.Context) error {
				return nil
			})(c)

			require.NoError(t, err)
			require.Len(t, rt.opts, 1)
			assert.Equal(t, tt.want, rt.opts[0].User)
		})
	}
}

func TestTransactionContextMerge(t *testing.T) {
	rt := newFakeRuntime()
	s := testScope(rt, WithDefaultContext(func() map[string]any {
		return map[string]any{"company": 1, "locale": "en"}
	}))

	var captured map[string]any
	c, _ := newTestContext(http.MethodGet, "http://api.example.com/api/users/1")
	err := s.Transaction(Config{
		Context: Literal(map[string]any{
			"locale":   "de",
			"_request": map[string]any{"endpoint": "users"},
		}),
	})(func(c echo.Context) error {
		tx, err := TxFrom(c)
		require.NoError(t, err)
		captured = tx.Context()

		return nil
	})(c)

	require.NoError(t, err)
	assert.Equal(t, 1, captured["company"], "default context entries survive")
	assert.Equal(t, "de", captured["locale"], "route context wins over the default context")

	reqInfo, ok := captured["_request"].(map[string]any)
	require.True(t, ok, "_request must always be present")
	assert.Equal(t, "users", reqInfo["endpoint"], "existing _request entries are merged, not replaced")
	assert.Equal(t, "192.0.2.1", reqInfo["remote_addr"])
	assert.Equal(t, "api.example.com", reqInfo["http_host"])
	assert.Equal(t, "http", reqInfo["scheme"])
	assert.Equal(t, false, reqInfo["is_secure"])
}

func TestTransactionRequestInfoAlwaysPresent(t *testing.T) {
	rt := newFakeRuntime()
	s := testScope(rt)

	var captured map[string]any
	c, _ := newTestContext(http.MethodGet, "/api/users/1")
	err := s.Transaction(Config{})(func(c echo.Context) error {
		tx, err := TxFrom(c)
		require.NoError(t, err)
		captured = tx.Context()

		return nil
	})(c)

	require.NoError(t, err)
	reqInfo, ok := captured["_request"].(map[string]any)
	require.True(t, ok)
	for _, key := range []string{"remote_addr", "http_host", "scheme", "is_secure"} {
		assert.Contains(t, reqInfo, key)
	}
}

func TestBuildContextWithoutRequest(t *testing.T) {
	rt := newFakeRuntime()
	s := testScope(rt)

	e := echo.New()
	c := e.NewContext(nil, httptest.NewRecorder())

	txContext := s.buildContext(c, Config{})

	reqInfo, ok := txContext["_request"].(map[string]any)
	require.True(t, ok, "_request exists even without a request")
	assert.Empty(t, reqInfo)
}

func TestMethodReadOnly(t *testing.T) {
	tests := []struct {
		method string
		want   bool
	}{
		{method: http.MethodGet, want: true},
		{method: http.MethodHead, want: true},
		{method: http.MethodOptions, want: true},
		{method: http.MethodPut, want: false},
		{method: http.MethodPost, want: false},
		{method: http.MethodDelete, want: false},
		{method: http.MethodPatch, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			assert.Equal(t, tt.want, methodReadOnly(tt.method))
		})
	}
}

func TestTransactionMaterializesRecordParam(t *testing.T) {
	rt := newFakeRuntime()
	model := &stubModel{name: "res.user"}
	rt.pool.Register(model)
	s := testScope(rt)

	c, _ := newTestContext(http.MethodGet, "/api/users/42")
	c.SetParamNames("user")
	c.SetParamValues("42")

	err := s.Transaction(Config{
		Params: []ParamSpec{Record("user", "res.user")},
	})(func(c echo.Context) error {
		record, err := RecordFrom(c, "user")
		require.NoError(t, err)
		assert.Equal(t, int64(42), record.ID())
		assert.Equal(t, "res.user", record.Model())
		assert.Equal(t, "user-42", record.String("login"))

		return nil
	})(c)

	require.NoError(t, err)
	assert.Equal(t, [][]int64{{42}}, model.browsed)
}

func TestTransactionMaterializesRecordsParam(t *testing.T) {
	rt := newFakeRuntime()
	model := &stubModel{name: "res.user"}
	rt.pool.Register(model)
	s := testScope(rt)

	c, _ := newTestContext(http.MethodGet, "/api/users/batch/3,5,9")
	c.SetParamNames("users")
	c.SetParamValues("3,5,9")

	err := s.Transaction(Config{
		Params: []ParamSpec{Records("users", "res.user")},
	})(func(c echo.Context) error {
		records, err := RecordsFrom(c, "users")
		require.NoError(t, err)
		require.Len(t, records, 3)
		for i, want := range []int64{3, 5, 9} {
			assert.Equal(t, want, records[i].ID(), "records keep URL order")
		}

		return nil
	})(c)

	require.NoError(t, err)
	assert.Equal(t, [][]int64{{3, 5, 9}}, model.browsed)
}

func TestTransactionMalformedParamFailsBeforeTransaction(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{name: "letters", value: "abc"},
		{name: "mixed", value: "1a"},
		{name: "negative", value: "-1"},
		{name: "empty element", value: "1,,2"},
		{name: "trailing comma", value: "1,2,"},
		{name: "overflow", value: "9223372036854775808"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := newFakeRuntime()
			model := &stubModel{name: "res.user"}
			rt.pool.Register(model)
			s := testScope(rt)

			c, _ := newTestContext(http.MethodGet, "/api/users/batch/x")
			c.SetParamNames("users")
			c.SetParamValues(tt.value)

			called := false
			err := s.Transaction(Config{
				Params: []ParamSpec{Records("users", "res.user")},
			})(func(c echo.Context) error {
				called = true

				return nil
			})(c)

			var httpErr *errs.HTTPError
			require.ErrorAs(t, err, &httpErr)
			assert.Equal(t, http.StatusNotFound, httpErr.Status)
			assert.False(t, called, "the handler must not run for a malformed parameter")
			assert.Empty(t, rt.conns, "no transaction is opened for a malformed parameter")
		})
	}
}

func TestTransactionRematerializesOnRetry(t *testing.T) {
	rt := newFakeRuntime()
	model := &stubModel{name: "res.user"}
	rt.pool.Register(model)
	s := testScope(rt, WithMaxRetries(3))

	calls := 0
	c, _ := newTestContext(http.MethodGet, "/api/users/42")
	c.SetParamNames("user")
	c.SetParamValues("42")

	err := s.Transaction(Config{
		Params: []ParamSpec{Record("user", "res.user")},
	})(func(c echo.Context) error {
		calls++
		if calls == 1 {
			return serializationFailure()
		}

		return nil
	})(c)

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, [][]int64{{42}, {42}}, model.browsed, "a retried attempt browses in its own transaction")
}

func TestTransactionBrowseErrorPropagates(t *testing.T) {
	rt := newFakeRuntime()
	model := &stubModel{
		name: "res.user",
		err:  pkgerrors.Wrap(orm.ErrNotFound, "res.user(42)"),
	}
	rt.pool.Register(model)
	s := testScope(rt)

	called := false
	c, _ := newTestContext(http.MethodGet, "/api/users/42")
	c.SetParamNames("user")
	c.SetParamValues("42")

	err := s.Transaction(Config{
		Params: []ParamSpec{Record("user", "res.user")},
	})(func(c echo.Context) error {
		called = true

		return nil
	})(c)

	assert.ErrorIs(t, err, orm.ErrNotFound)
	assert.False(t, called)
}

func TestTransactionCacheSyncGating(t *testing.T) {
	t.Run("resets run after commit on older runtimes", func(t *testing.T) {
		rt := newFakeRuntime()
		rt.needsSync = true
		store := rt.cache.Register("res.user.login")
		store.Set("jdoe", int64(7))
		s := testScope(rt)

		c, _ := newTestContext(http.MethodPost, "/api/users")
		err := s.Transaction(Config{})(func(c echo.Context) error {
			tx, err := TxFrom(c)
			require.NoError(t, err)
			tx.MarkCacheDirty("res.user.login")

			return nil
		})(c)

		require.NoError(t, err)
		assert.Equal(t, 0, store.Len(), "a dirtied store is purged after commit")
	})

	t.Run("resets stay silent on current runtimes", func(t *testing.T) {
		rt := newFakeRuntime()
		rt.needsSync = false
		store := rt.cache.Register("res.user.login")
		store.Set("jdoe", int64(7))
		s := testScope(rt)

		c, _ := newTestContext(http.MethodPost, "/api/users")
		err := s.Transaction(Config{})(func(c echo.Context) error {
			tx, err := TxFrom(c)
			require.NoError(t, err)
			tx.MarkCacheDirty("res.user.login")

			return nil
		})(c)

		require.NoError(t, err)
		assert.Equal(t, 1, store.Len(), "current runtimes coordinate caches themselves")
	})

	t.Run("resets skipped when the handler fails", func(t *testing.T) {
		rt := newFakeRuntime()
		rt.needsSync = true
		store := rt.cache.Register("res.user.login")
		store.Set("jdoe", int64(7))
		s := testScope(rt)

		c, _ := newTestContext(http.MethodPost, "/api/users")
		err := s.Transaction(Config{})(func(c echo.Context) error {
			tx, txErr := TxFrom(c)
			require.NoError(t, txErr)
			tx.MarkCacheDirty("res.user.login")

			return &orm.UserError{Message: "No."}
		})(c)

		require.Error(t, err)
		assert.Equal(t, 1, store.Len(), "a rolled-back transaction must not purge caches")
	})
}

func TestTransactionTaskDrainStopsOnFailure(t *testing.T) {
	rt := newFakeRuntime()
	rt.runner.failOn = 3
	s := testScope(rt)

	c, _ := newTestContext(http.MethodPost, "/api/users")
	err := s.Transaction(Config{})(func(c echo.Context) error {
		tx, txErr := TxFrom(c)
		require.NoError(t, txErr)
		tx.QueueTask(7)
		tx.QueueTask(3)
		tx.QueueTask(9)

		return nil
	})(c)

	require.NoError(t, err, "a failed hand-off is not a request failure")
	assert.Equal(t, []int64{7}, rt.runner.submitted, "the drain stops at the first failure")
	assert.Equal(t, 1, rt.conns[0].commits, "the commit already happened")
}

func TestAccessorsOutsideScope(t *testing.T) {
	c, _ := newTestContext(http.MethodGet, "/api/users/1")

	_, err := TxFrom(c)
	assert.Error(t, err)

	_, err = RecordFrom(c, "user")
	assert.Error(t, err)

	_, err = RecordsFrom(c, "users")
	assert.Error(t, err)
}
