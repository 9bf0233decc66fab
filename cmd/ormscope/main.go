// Command ormscope runs the service.
//
// Subcommands:
//
//	serve   - run the HTTP API and the task worker in one process
//	worker  - run only the task worker (for dedicated worker deployments)
//	migrate - apply pending database migrations and exit
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ormscope/ormscope/internal/config"
	"github.com/ormscope/ormscope/internal/database"
	"github.com/ormscope/ormscope/internal/logger"
	"github.com/ormscope/ormscope/internal/router"
	"github.com/ormscope/ormscope/internal/server"
)

const shutdownTimeout = 15 * time.Second

func main() {
	root := &cobra.Command{
		Use:           "ormscope",
		Short:         "Transaction-scoped HTTP API over the ORM runtime",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), workerCmd(), migrateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// bootstrap loads configuration and builds the logging stack. Every
// subcommand starts here. The throwaway bootstrap logger exists only
// because the telemetry agent wants to log during its own setup.
func bootstrap() (*config.Config, *zerolog.Logger, *logger.LoggerService, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading config: %w", err)
	}

	boot := zerolog.New(os.Stdout).With().Timestamp().Logger()
	loggerService := logger.NewLoggerService(cfg, &boot)
	log := logger.New(cfg, loggerService)

	return cfg, log, loggerService, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the task worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, loggerService, err := bootstrap()
			if err != nil {
				return err
			}

			s, err := server.New(cfg, log, loggerService)
			if err != nil {
				return fmt.Errorf("initializing server: %w", err)
			}

			e := router.Init(s)
			s.SetupHTTPServer(e)

			errCh := make(chan error, 1)
			go func() {
				errCh <- s.Start()
			}()

			if err := waitForExit(log, errCh); err != nil {
				return err
			}

			return shutdown(s, log, loggerService)
		},
	}
}

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run only the task worker",
		Long: "Runs the task consumer and the stale-task sweeper without the HTTP API.\n" +
			"Use this for deployments that split web and worker processes.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, loggerService, err := bootstrap()
			if err != nil {
				return err
			}

			// server.New starts the task worker; without SetupHTTPServer
			// no HTTP listener exists, so this process only consumes.
			s, err := server.New(cfg, log, loggerService)
			if err != nil {
				return fmt.Errorf("initializing worker: %w", err)
			}

			log.Info().
				Str("database", cfg.Database.Name).
				Str("queue", cfg.ORM.Queue).
				Msg("worker started")

			if err := waitForExit(log, nil); err != nil {
				return err
			}

			return shutdown(s, log, loggerService)
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, _, err := bootstrap()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()

			if err := database.Migrate(ctx, log, cfg); err != nil {
				return fmt.Errorf("running migrations: %w", err)
			}

			log.Info().Msg("migrations applied")

			return nil
		},
	}
}

// waitForExit blocks until SIGINT/SIGTERM arrives or, when errCh is
// non-nil, the server loop returns. A clean listener close after
// Shutdown is not an error.
func waitForExit(log *zerolog.Logger, errCh <-chan error) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	if errCh == nil {
		sig := <-quit
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")

		return nil
	}

	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")

		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server stopped: %w", err)
		}

		return nil
	}
}

func shutdown(s *server.Server, log *zerolog.Logger, loggerService *logger.LoggerService) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")

		return err
	}

	// Flush buffered telemetry last; nothing logs after this point.
	loggerService.Shutdown(5 * time.Second)

	log.Info().Msg("shutdown complete")

	return nil
}
