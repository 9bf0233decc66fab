// Package logger configures the application's logging, monitoring, and
// observability.
//
// It uses ZeroLog for logging and integrates with New Relic to
// instrument the codebase, forwarding logs, metrics, and traces for
// debugging.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/newrelic/go-agent/v3/integrations/logcontext-v2/zerologWriter"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/rs/zerolog"

	"github.com/ormscope/ormscope/internal/config"
)

// LoggerService wraps the optional New Relic application instance.
//
// When New Relic is not configured (empty license key), the service
// still exists but GetApplication returns nil; every caller treats that
// as "tracing disabled".
type LoggerService struct {
	app *newrelic.Application
}

// NewLoggerService initializes the New Relic agent from config.
//
// Failures here degrade rather than abort: a service with a nil app is
// returned and the process runs without APM.
func NewLoggerService(cfg *config.Config, logger *zerolog.Logger) *LoggerService {
	obs := cfg.Observability

	if obs.NewRelic.LicenseKey == "" {
		logger.Info().Msg("New Relic disabled: no license key configured")

		return &LoggerService{}
	}

	opts := []newrelic.ConfigOption{
		newrelic.ConfigAppName(obs.ServiceName),
		newrelic.ConfigLicense(obs.NewRelic.LicenseKey),
		newrelic.ConfigDistributedTracerEnabled(obs.NewRelic.DistributedTracingEnabled),
		newrelic.ConfigAppLogForwardingEnabled(obs.NewRelic.AppLogForwardingEnabled),
	}
	if obs.NewRelic.DebugLogging {
		opts = append(opts, newrelic.ConfigDebugLogger(os.Stdout))
	}

	app, err := newrelic.NewApplication(opts...)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize New Relic, continuing without APM")

		return &LoggerService{}
	}

	return &LoggerService{app: app}
}

// GetApplication returns the New Relic application, nil when disabled.
func (s *LoggerService) GetApplication() *newrelic.Application {
	if s == nil {
		return nil
	}

	return s.app
}

// Shutdown flushes buffered telemetry. Called during graceful shutdown.
func (s *LoggerService) Shutdown(timeout time.Duration) {
	if s == nil || s.app == nil {
		return
	}

	s.app.Shutdown(timeout)
}

// New builds the application's root logger from config.
//
//   - level comes from observability config (with per-environment
//     defaults)
//   - "console" format gets the human-friendly writer, anything else
//     stays JSON for log pipelines
//   - when New Relic log forwarding is on, the writer is wrapped so log
//     lines carry trace linking metadata
func New(cfg *config.Config, service *LoggerService) *zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Observability.GetLogLevel())
	if err != nil {
		level = zerolog.InfoLevel
	}

	var out io.Writer = os.Stdout
	if cfg.Observability.Logging.Format == "console" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	if app := service.GetApplication(); app != nil && cfg.Observability.NewRelic.AppLogForwardingEnabled {
		nrWriter := zerologWriter.New(out, app)
		out = &nrWriter
	}

	logger := zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("service", cfg.Observability.ServiceName).
		Str("env", cfg.Primary.Env).
		Logger()

	return &logger
}

// WithTraceContext stamps the current New Relic trace and span ids onto
// a logger so log lines correlate with distributed traces.
func WithTraceContext(logger zerolog.Logger, txn *newrelic.Transaction) zerolog.Logger {
	if txn == nil {
		return logger
	}

	md := txn.GetTraceMetadata()

	return logger.With().
		Str("trace.id", md.TraceID).
		Str("span.id", md.SpanID).
		Logger()
}
