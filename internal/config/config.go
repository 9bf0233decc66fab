// Package config manages environment variables.
//
// It reads variables from the process environment (optionally seeded
// from a `.env` file), loads them into structured Go types, and
// validates that required values are present so they can be reused
// across the application runtime.
//
// Responsibilities:
//   - Load environment variables (optionally from a `.env` file).
//   - Map env vars into a structured Go config (structs).
//   - Validate required values so the app fails fast on bad/missing config.
//   - Provide sane defaults for optional config blocks (orm, observability).
package config

import (
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	// Side-effect import: if a `.env` file exists it gets loaded into
	// the process env before anything reads env vars.
	_ "github.com/joho/godotenv/autoload"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
)

// Env vars are read with the ORMSCOPE_ prefix and mapped into nested
// keys with "." as the delimiter:
//
//	ORMSCOPE_DATABASE.NAME -> database.name -> Config.Database.Name

// Config is the root configuration object for the application.
//
// The `koanf:"..."` tags specify where koanf maps values from, and the
// `validate:"required"` tags are enforced by go-playground/validator.
//
// ORM and Observability are pointers because they are optional; when
// missing, defaults are injected at load time.
type Config struct {
	Primary       Primary              `koanf:"primary" validate:"required"`
	Server        ServerConfig         `koanf:"server" validate:"required"`
	Database      DatabaseConfig       `koanf:"database" validate:"required"`
	Redis         RedisConfig          `koanf:"redis" validate:"required"`
	ORM           *ORMConfig           `koanf:"orm"`
	Observability *ObservabilityConfig `koanf:"observability"`
}

// Primary holds top-level information about the runtime environment,
// used to tag logs/traces and to switch behavior per environment.
type Primary struct {
	Env string `koanf:"env" validate:"required"`
}

// ServerConfig groups settings for the HTTP server runtime. Timeouts
// are in seconds.
type ServerConfig struct {
	Port               string   `koanf:"port" validate:"required"`
	ReadTimeout        int      `koanf:"read_timeout" validate:"required"`
	WriteTimeout       int      `koanf:"write_timeout" validate:"required"`
	IdleTimeout        int      `koanf:"idle_timeout" validate:"required"`
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins" validate:"required"`
}

// DatabaseConfig contains PostgreSQL connection parameters and pool
// tuning. Name doubles as the runtime's database name: cache
// invalidation keys and the task queue are scoped by it.
type DatabaseConfig struct {
	Host            string `koanf:"host" validate:"required"`
	Port            int    `koanf:"port" validate:"required"`
	User            string `koanf:"user" validate:"required"`
	Password        string `koanf:"password" validate:"required"`
	Name            string `koanf:"name" validate:"required"`
	SSLMode         string `koanf:"ssl_mode" validate:"required"`
	MaxOpenConns    int    `koanf:"max_open_conns" validate:"required"`
	MaxIdleConns    int    `koanf:"max_idle_conns" validate:"required"`
	ConnMaxLifetime int    `koanf:"conn_max_lifetime" validate:"required"`
	ConnMaxIdleTime int    `koanf:"conn_max_idle_time" validate:"required"`
}

// RedisConfig contains Redis connection details. Address is "host:port".
// The same instance backs the task broker and the cache invalidation
// counters.
type RedisConfig struct {
	Address string `koanf:"address" validate:"required"`
}

// New loads, validates, and defaults the full configuration. It exits
// the process on invalid config: there is nothing sensible to do with a
// half-configured service.
func New() (*Config, error) {
	return loadConfig()
}

// loadConfig loads configuration from environment variables, unmarshals
// it into Config, validates it, and injects the optional-block defaults.
func loadConfig() (*Config, error) {
	// Config loading happens before the real logger exists, so failures
	// here get a throwaway console logger.
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	// "." is the key-path delimiter koanf uses to represent nesting:
	// "database.name" means Config.Database.Name.
	k := koanf.New(".")

	// Only env vars with the ORMSCOPE_ prefix are read; the prefix is
	// stripped and the rest lowercased into koanf keys.
	err := k.Load(env.Provider("ORMSCOPE_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "ORMSCOPE_"))
	}), nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("Could not load initial env variables.")
	}

	mainConfig := &Config{}

	if err := k.Unmarshal("", mainConfig); err != nil {
		logger.Fatal().Err(err).Msg("Could not unmarshal main config.")
	}

	validate := validator.New()

	if err := validate.Struct(mainConfig); err != nil {
		logger.Fatal().Err(err).Msg("Config validation failed.")
	}

	// Optional blocks get defaults when not provided.
	if mainConfig.ORM == nil {
		mainConfig.ORM = DefaultORMConfig()
	}
	mainConfig.ORM.ApplyDefaults()

	if err := mainConfig.ORM.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid orm config")
	}

	if mainConfig.Observability == nil {
		mainConfig.Observability = DefaultObservabilityConfig()
	}

	// Force service name and environment so tracing/logging sees
	// consistent naming regardless of what was set.
	mainConfig.Observability.ServiceName = "ormscope"
	mainConfig.Observability.Environment = mainConfig.Primary.Env

	if err := mainConfig.Observability.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid observability config")
	}

	return mainConfig, nil
}
