package job

import (
	"context"

	"github.com/pkg/errors"
)

// Runner submits committed queue rows to Asynq. It implements
// orm.TaskRunner, so installing it on the runtime switches task
// execution from inline to background without touching the
// transaction layer.
type Runner struct {
	service *JobService
	queue   string
}

// Runner returns the service's task runner.
func (j *JobService) Runner() *Runner {
	return &Runner{service: j, queue: j.queue}
}

// Submit enqueues one task id for background execution.
func (r *Runner) Submit(ctx context.Context, taskID int64) error {
	task, err := NewExecuteTask(r.queue, r.service.runtime.Name(), taskID)
	if err != nil {
		return errors.Wrap(err, "building execute task")
	}

	if _, err := r.service.Client.EnqueueContext(ctx, task); err != nil {
		return errors.Wrapf(err, "submitting task %d", taskID)
	}

	return nil
}
