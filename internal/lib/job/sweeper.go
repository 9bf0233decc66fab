package job

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"github.com/robfig/cron/v3"
)

// startSweeper schedules the periodic re-submission of committed queue
// rows that never finished. The request path submits tasks right after
// commit, so under normal operation the sweeper finds nothing; it only
// matters when a process died between commit and submission, or when a
// submission exhausted its Asynq retries.
func (j *JobService) startSweeper() error {
	j.cron = cron.New()

	_, err := j.cron.AddFunc(j.sweep.every, j.sweepOnce)
	if err != nil {
		return err
	}

	j.logger.Info().
		Str("schedule", j.sweep.every).
		Int64("age_seconds", j.sweep.age).
		Msg("Starting task sweeper")

	j.cron.Start()

	return nil
}

func (j *JobService) sweepOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	age := time.Duration(j.sweep.age) * time.Second
	ids, err := j.runtime.StaleTasks(ctx, age)
	if err != nil {
		j.logger.Error().Err(err).Msg("Task sweep failed")
		return
	}
	if len(ids) == 0 {
		return
	}

	j.logger.Warn().
		Int("count", len(ids)).
		Msg("Re-submitting stale tasks")

	for _, id := range ids {
		task, err := NewExecuteTask(j.queue, j.runtime.Name(), id)
		if err != nil {
			j.logger.Error().Err(err).Int64("task_id", id).Msg("Building stale task submission failed")
			continue
		}

		// Stale work is late already; it goes on the low queue so it
		// cannot crowd out fresh submissions.
		if _, err := j.Client.EnqueueContext(ctx, task, asynq.Queue("low")); err != nil {
			j.logger.Error().Err(err).Int64("task_id", id).Msg("Re-submitting stale task failed")
		}
	}
}
