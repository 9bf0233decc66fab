package job

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

// TaskExecute is the Asynq task type for executing one committed queue
// row. The payload carries only the row's coordinates; the row itself
// holds the model, method, and data.
const TaskExecute = "orm:execute"

// ExecutePayload identifies a queue row. Database is checked against
// the worker's runtime so submissions from another deployment sharing
// the Redis instance are skipped instead of executed against the wrong
// data.
type ExecutePayload struct {
	Database string `json:"database"`
	TaskID   int64  `json:"task_id"`
}

// NewExecuteTask builds the Asynq task for one queue row.
//
// MaxRetry covers submission-side failures (worker crash mid-task,
// transient DB errors during execution). A task that exhausts its
// retries is not lost: the row stays unfinished and the sweeper
// re-submits it later.
func NewExecuteTask(queue, database string, taskID int64) (*asynq.Task, error) {
	payload, err := json.Marshal(ExecutePayload{
		Database: database,
		TaskID:   taskID,
	})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskExecute,
		payload,
		asynq.MaxRetry(3),
		asynq.Queue(queue),
		asynq.Timeout(30*time.Second),
	), nil
}
