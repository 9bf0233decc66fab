package orm

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubConn fakes the pgx transaction underneath a Tx. Only the
// finishing methods matter here.
type stubConn struct {
	pgx.Tx
	commits     int
	rollbacks   int
	commitErr   error
	rollbackErr error
}

func (s *stubConn) Commit(ctx context.Context) error {
	if s.commitErr != nil {
		return s.commitErr
	}
	s.commits++

	return nil
}

func (s *stubConn) Rollback(ctx context.Context) error {
	s.rollbacks++

	return s.rollbackErr
}

func TestTxCarriesOptions(t *testing.T) {
	tx := NewTx(nil, TxOptions{
		User:     7,
		ReadOnly: true,
		Context:  map[string]any{"company": 1},
	})

	assert.Equal(t, 7, tx.User())
	assert.True(t, tx.ReadOnly())
	assert.Equal(t, 1, tx.Value("company"))
	assert.Nil(t, tx.Value("missing"))
}

func TestTxValueWithoutContext(t *testing.T) {
	tx := NewTx(nil, TxOptions{})

	assert.Nil(t, tx.Value("anything"))
	assert.Nil(t, tx.Context())
}

func TestTxTaskQueue(t *testing.T) {
	tx := NewTx(nil, TxOptions{})

	tx.QueueTask(7)
	tx.QueueTask(3)
	tx.QueueTask(9)

	tasks := tx.Tasks()
	require.Equal(t, []int64{7, 3, 9}, tasks)

	// The snapshot is detached from the queue.
	tasks[0] = 99
	id, ok := tx.PopTask()
	require.True(t, ok)
	assert.Equal(t, int64(7), id)

	id, ok = tx.PopTask()
	require.True(t, ok)
	assert.Equal(t, int64(3), id)

	id, ok = tx.PopTask()
	require.True(t, ok)
	assert.Equal(t, int64(9), id)

	_, ok = tx.PopTask()
	assert.False(t, ok)
}

func TestTxDirtyCachesDeduplicate(t *testing.T) {
	tx := NewTx(nil, TxOptions{})

	tx.MarkCacheDirty("res.user.login")
	tx.MarkCacheDirty("res.user.login")
	tx.MarkCacheDirty("ir.lang")

	assert.ElementsMatch(t, []string{"res.user.login", "ir.lang"}, tx.dirtyCaches())
}

func TestTxRollbackAfterCommitIsNoop(t *testing.T) {
	conn := &stubConn{}
	tx := NewTx(conn, TxOptions{})

	require.NoError(t, tx.Commit(context.Background()))
	require.NoError(t, tx.Rollback(context.Background()))

	assert.Equal(t, 1, conn.commits)
	assert.Equal(t, 0, conn.rollbacks, "rollback after commit must not reach the connection")
}

func TestTxRollbackOnlyOnce(t *testing.T) {
	conn := &stubConn{}
	tx := NewTx(conn, TxOptions{})

	require.NoError(t, tx.Rollback(context.Background()))
	require.NoError(t, tx.Rollback(context.Background()))

	assert.Equal(t, 1, conn.rollbacks)
}

func TestTxRollbackSwallowsClosed(t *testing.T) {
	conn := &stubConn{rollbackErr: pgx.ErrTxClosed}
	tx := NewTx(conn, TxOptions{})

	assert.NoError(t, tx.Rollback(context.Background()), "an already-closed transaction is not an error")
}

func TestTxCommitFailureLeavesTxOpen(t *testing.T) {
	conn := &stubConn{commitErr: pgx.ErrTxCommitRollback}
	tx := NewTx(conn, TxOptions{})

	err := tx.Commit(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, pgx.ErrTxCommitRollback)

	require.NoError(t, tx.Rollback(context.Background()))
	assert.Equal(t, 1, conn.rollbacks, "a failed commit still needs the rollback")
}
