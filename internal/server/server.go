// Package server defines the core Server struct that composes the
// app's main dependencies.
//
// It contains the initialization logic to spin up the HTTP server and
// handles graceful shutdowns.
//
// It owns the lifecycle of:
//   - configuration
//   - logger + optional New Relic service wrapper
//   - database pool
//   - redis client
//   - the transaction runtime and its model registry
//   - background job worker server (asynq) + task sweeper
//   - http.Server
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/newrelic/go-agent/v3/integrations/nrredis-v9"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ormscope/ormscope/internal/config"
	"github.com/ormscope/ormscope/internal/database"
	"github.com/ormscope/ormscope/internal/lib/job"
	loggerPkg "github.com/ormscope/ormscope/internal/logger"
	"github.com/ormscope/ormscope/internal/models"
	"github.com/ormscope/ormscope/internal/orm"
)

// Server is the application container that holds shared resources. It
// is not the HTTP server itself; the internal *http.Server is
// configured in SetupHTTPServer and run by Start.
type Server struct {
	// Config holds all environment/config values for the app.
	Config *config.Config

	// Logger is the application's main structured logger.
	Logger *zerolog.Logger

	// LoggerService optionally holds the New Relic application
	// instance. When New Relic is disabled it still exists but carries
	// a nil application.
	LoggerService *loggerPkg.LoggerService

	// DB holds the PostgreSQL pool wrapper.
	DB *database.Database

	// Redis backs both the task broker and the cache invalidation
	// counters.
	Redis *redis.Client

	// Runtime is the transaction runtime requests run against.
	Runtime *orm.Runtime

	// Models exposes the typed model instances registered on the
	// runtime's pool.
	Models *models.Registry

	// Job runs background workers (Asynq) and provides the task
	// runner installed on the runtime.
	Job *job.JobService

	httpServer *http.Server
}

// New constructs a Server and initializes core dependencies: the
// database pool, the Redis client, the transaction runtime with its
// models, and the background job service. It does not start the HTTP
// server; that is done in SetupHTTPServer + Start.
//
// Redis connection failure does not block startup. The task broker and
// the cache protocol degrade (submissions fail over to the sweeper,
// caches go unsynced), which is survivable in development; production
// deployments should treat the logged error as a paging matter.
func New(cfg *config.Config, logger *zerolog.Logger, loggerService *loggerPkg.LoggerService) (*Server, error) {
	db, err := database.New(cfg, logger, loggerService)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Redis connections are lazy; NewClient does not connect yet.
	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Address,
	})

	// New Relic hooks instrument Redis commands so they show up in
	// distributed traces.
	if loggerService != nil && loggerService.GetApplication() != nil {
		redisClient.AddHook(nrredis.NewHook(redisClient.Options()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Error().Err(err).Msg("Failed to connect to Redis, continuing without Redis")
	}

	version, err := orm.ParseVersion(cfg.ORM.CompatVersion)
	if err != nil {
		return nil, fmt.Errorf("invalid orm compat_version: %w", err)
	}

	// The runtime is named after the database: queue rows and cache
	// invalidation counters are scoped by that name.
	runtime := orm.New(cfg.Database.Name, db.Pool, redisClient, version, logger)
	registry := models.RegisterAll(runtime)

	// The job service replaces the runtime's default inline runner, so
	// committed tasks execute on the worker pool instead of on the
	// request goroutine.
	jobService := job.NewJobService(logger, cfg)
	jobService.InitHandlers(runtime)
	runtime.SetTaskRunner(jobService.Runner())

	if err := jobService.Start(); err != nil {
		return nil, fmt.Errorf("failed to start job service: %w", err)
	}

	server := &Server{
		Config:        cfg,
		Logger:        logger,
		LoggerService: loggerService,
		DB:            db,
		Redis:         redisClient,
		Runtime:       runtime,
		Models:        registry,
		Job:           jobService,
	}

	return server, nil
}

// SetupHTTPServer configures the internal net/http server. The router
// is passed in as handler; Echo implements http.Handler directly.
func (s *Server) SetupHTTPServer(handler http.Handler) {
	s.httpServer = &http.Server{
		Addr:    ":" + s.Config.Server.Port,
		Handler: handler,

		// Timeouts protect against slow clients and resource
		// exhaustion. Config stores seconds.
		ReadTimeout:  time.Duration(s.Config.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.Config.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(s.Config.Server.IdleTimeout) * time.Second,
	}
}

// Start runs the HTTP server. It requires SetupHTTPServer to be called
// first and blocks until the server stops or errors.
func (s *Server) Start() error {
	if s.httpServer == nil {
		return errors.New("HTTP server not initialized")
	}

	s.Logger.Info().
		Str("port", s.Config.Server.Port).
		Str("env", s.Config.Primary.Env).
		Str("database", s.Config.Database.Name).
		Str("runtime_version", s.Runtime.Version().String()).
		Msg("starting server")

	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server and its dependencies: stop
// accepting requests and drain inflight ones, stop background workers,
// then close the database pool and the Redis client.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown HTTP server: %w", err)
		}
	}

	if s.Job != nil {
		s.Job.Stop()
	}

	if err := s.DB.Close(); err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}

	if err := s.Redis.Close(); err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}

	return nil
}
