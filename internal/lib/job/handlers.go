package job

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/ormscope/ormscope/internal/orm"
)

// InitHandlers gives the job handlers their runtime. Must run before
// Start; the handler side executes queue rows through the runtime's
// model pool.
func (j *JobService) InitHandlers(runtime *orm.Runtime) {
	j.runtime = runtime
}

// handleExecuteTask processes one submitted queue row.
//
// Execution is idempotent against double submission: the runtime
// claims the row first and a row that already finished is skipped
// silently. That is what lets the sweeper re-submit aggressively.
func (j *JobService) handleExecuteTask(ctx context.Context, t *asynq.Task) error {
	var p ExecutePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("failed to unmarshal execute payload: %w", err)
	}

	if p.Database != j.runtime.Name() {
		j.logger.Warn().
			Str("payload_database", p.Database).
			Str("runtime_database", j.runtime.Name()).
			Int64("task_id", p.TaskID).
			Msg("Skipping task for a different database")
		return nil
	}

	j.logger.Info().
		Int64("task_id", p.TaskID).
		Msg("Executing queued task")

	if err := j.runtime.ExecuteTask(ctx, p.TaskID); err != nil {
		j.logger.Error().
			Int64("task_id", p.TaskID).
			Err(err).
			Msg("Queued task failed")
		return err // returning err makes Asynq schedule a retry
	}

	return nil
}
