package orm

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// Task is one row of the durable queue_task table.
type Task struct {
	ID         int64
	Model      string
	Method     string
	Data       []byte
	EnqueuedAt time.Time
}

// TaskRunner receives committed task ids from the post-commit drain.
// Implementations decide where execution happens: SyncRunner runs the
// task right here, the job package's runner hands it to a queue broker
// for a worker process.
type TaskRunner interface {
	Submit(ctx context.Context, taskID int64) error
}

// SyncRunner executes each submitted task immediately, in-process. It
// is the default runner and what tests and single-binary deployments
// use.
type SyncRunner struct {
	Runtime *Runtime
}

func (s *SyncRunner) Submit(ctx context.Context, taskID int64) error {
	return s.Runtime.ExecuteTask(ctx, taskID)
}

// ExecuteTask claims and runs one queued task inside a fresh read-write
// transaction. It is the execution entry point both runners end up in.
//
// Claiming re-checks the row instead of trusting the caller: a task
// already finished by another worker is skipped silently, so duplicate
// submissions (drain plus sweeper) stay harmless.
func (r *Runtime) ExecuteTask(ctx context.Context, taskID int64) error {
	tx, err := r.Begin(ctx, TxOptions{User: RootUser, Context: map[string]any{}})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	task, err := claimTask(ctx, tx, taskID)
	if err != nil {
		return err
	}
	if task == nil {
		return nil
	}

	model, err := r.pool.Get(task.Model)
	if err != nil {
		return err
	}

	exec, ok := model.(TaskModel)
	if !ok {
		return errors.Errorf("orm: model %s does not execute tasks", task.Model)
	}

	if err := exec.ExecuteTask(ctx, tx, task.Method, task.Data); err != nil {
		return errors.Wrapf(err, "orm: task %d (%s.%s)", task.ID, task.Model, task.Method)
	}

	_, err = tx.Conn().Exec(ctx,
		`UPDATE queue_task SET finished_at = now() WHERE id = $1`, task.ID)
	if err != nil {
		return errors.Wrap(err, "orm: finish task")
	}

	if r.logger != nil {
		r.logger.Debug().
			Int64("task_id", task.ID).
			Str("model", task.Model).
			Str("method", task.Method).
			Msg("Task executed")
	}

	return tx.Commit(ctx)
}

// RootUser is the acting user for task execution and other runtime
// internal work.
const RootUser = 0

func claimTask(ctx context.Context, tx *Tx, taskID int64) (*Task, error) {
	task := &Task{ID: taskID}

	row := tx.Conn().QueryRow(ctx,
		`UPDATE queue_task
		    SET dequeued_at = now()
		  WHERE id = $1 AND finished_at IS NULL
		  RETURNING model, method, data, enqueued_at`,
		taskID)

	err := row.Scan(&task.Model, &task.Method, &task.Data, &task.EnqueuedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "orm: claim task %d", taskID)
	}

	return task, nil
}

// StaleTasks lists committed tasks that never finished: either no
// worker ever claimed them (a failed post-commit drain) or a claim went
// stale (a worker died mid-task). The sweeper re-submits them.
//
// The limit bounds one sweep; leftovers surface in the next run.
func (r *Runtime) StaleTasks(ctx context.Context, olderThan time.Duration) ([]int64, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id
		   FROM queue_task
		  WHERE finished_at IS NULL
		    AND enqueued_at < now() - make_interval(secs => $1)
		    AND (dequeued_at IS NULL OR dequeued_at < now() - make_interval(secs => $1))
		  ORDER BY enqueued_at
		  LIMIT 100`,
		olderThan.Seconds())
	if err != nil {
		return nil, errors.Wrap(err, "orm: list stale tasks")
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "orm: scan stale task id")
		}
		ids = append(ids, id)
	}

	return ids, errors.Wrap(rows.Err(), "orm: iterate stale tasks")
}
