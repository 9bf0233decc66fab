// Package job runs the background half of the task pipeline on Asynq.
//
// The transaction layer writes durable queue rows and, after commit,
// submits their ids here. Asynq stores the submissions in Redis; the
// worker side claims each queue row and executes it through the model
// pool. A cron sweeper re-submits committed rows whose submission was
// lost, so a crash between commit and submission delays a task instead
// of dropping it.
package job

import (
	"github.com/hibiken/asynq"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/ormscope/ormscope/internal/config"
	"github.com/ormscope/ormscope/internal/orm"
)

// JobService holds the Asynq client (submission) and server (worker
// execution), plus the cron scheduler driving the sweeper.
type JobService struct {
	// Client is used to enqueue task submissions into Redis.
	Client *asynq.Client

	// server runs workers that pull submissions from Redis and execute
	// the referenced queue rows.
	server *asynq.Server

	cron    *cron.Cron
	runtime *orm.Runtime
	queue   string
	sweep   sweepConfig
	logger  *zerolog.Logger
}

type sweepConfig struct {
	every string
	age   int64 // seconds
}

// NewJobService creates a JobService backed by the Redis instance from
// cfg. The queue weights give interactive submissions priority over
// sweeper re-submissions, which always land on the low queue.
func NewJobService(logger *zerolog.Logger, cfg *config.Config) *JobService {
	redisAddr := cfg.Redis.Address

	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr: redisAddr,
	})

	server := asynq.NewServer(
		asynq.RedisClientOpt{Addr: redisAddr},
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
		},
	)

	return &JobService{
		Client: client,
		server: server,
		queue:  cfg.ORM.Queue,
		sweep: sweepConfig{
			every: "@every " + cfg.ORM.SweepInterval.String(),
			age:   int64(cfg.ORM.SweepAge.Seconds()),
		},
		logger: logger,
	}
}

// Start registers the task handlers and starts the worker server and
// the sweeper. InitHandlers must have run first; without a runtime the
// workers would have nothing to execute against.
func (j *JobService) Start() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskExecute, j.handleExecuteTask)

	j.logger.Info().Msg("Starting background job server")

	if err := j.server.Start(mux); err != nil {
		return err
	}

	return j.startSweeper()
}

// Stop gracefully stops the sweeper, the worker server, and the
// submission client, in that order: nothing new gets scheduled, then
// in-flight work drains, then the Redis connections close.
func (j *JobService) Stop() {
	j.logger.Info().Msg("Stopping background job server")
	if j.cron != nil {
		j.cron.Stop()
	}
	j.server.Shutdown()
	j.Client.Close()
}
