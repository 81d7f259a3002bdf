// Package settings loads configdesk's own service settings from a file,
// CONFIGDESK_* environment variables and defaults.
package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/configdesk/configdesk/pkg/stores"
	"github.com/configdesk/configdesk/pkg/telemetry"
)

// EnvPrefix prefixes every environment override, e.g. CONFIGDESK_SERVER_LISTEN.
const EnvPrefix = "CONFIGDESK"

// Store drivers.
const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

// DefaultSQLitePath is the database location when store.driver is sqlite
// and store.path is unset.
const DefaultSQLitePath = ".data/configdesk.db"

// Settings configures the configdesk service.
type Settings struct {
	Server    ServerSettings    `mapstructure:"server"`
	Store     StoreSettings     `mapstructure:"store"`
	Session   SessionSettings   `mapstructure:"session"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
}

// ServerSettings configures the HTTP API.
type ServerSettings struct {
	Listen          string        `mapstructure:"listen" validate:"required"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"min=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"min=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=0"`
	Watch           bool          `mapstructure:"watch"`
}

// StoreSettings selects where the edited document is persisted.
type StoreSettings struct {
	Driver string `mapstructure:"driver" validate:"oneof=file sqlite"`
	Path   string `mapstructure:"path"`

	// KeepRevisions prunes SQLite history to this many revisions after
	// startup. Zero keeps everything.
	KeepRevisions int `mapstructure:"keep_revisions" validate:"min=0"`
}

// SessionSettings configures editing sessions.
type SessionSettings struct {
	Debounce    time.Duration `mapstructure:"debounce" validate:"min=0"`
	SaveTimeout time.Duration `mapstructure:"save_timeout" validate:"gt=0"`
}

// TelemetrySettings configures logging, tracing and metrics.
type TelemetrySettings struct {
	Environment string          `mapstructure:"environment"`
	Logging     LoggingSettings `mapstructure:"logging"`
	Tracing     TracingSettings `mapstructure:"tracing"`
	Metrics     MetricsSettings `mapstructure:"metrics"`
	Events      bool            `mapstructure:"events"`
}

// LoggingSettings configures the service log.
type LoggingSettings struct {
	Level  string `mapstructure:"level" validate:"oneof=trace debug info warn error fatal"`
	Format string `mapstructure:"format" validate:"oneof=console json"`
	Output string `mapstructure:"output"`
}

// TracingSettings configures OpenTelemetry export.
type TracingSettings struct {
	Enabled      bool    `mapstructure:"enabled"`
	Exporter     string  `mapstructure:"exporter" validate:"oneof=otlp stdout none"`
	Endpoint     string  `mapstructure:"endpoint" validate:"required_if=Exporter otlp"`
	SamplingRate float64 `mapstructure:"sampling_rate" validate:"gte=0,lte=1"`
	Insecure     bool    `mapstructure:"insecure"`
}

// MetricsSettings configures Prometheus metrics.
type MetricsSettings struct {
	Enabled       bool   `mapstructure:"enabled"`
	ListenAddress string `mapstructure:"listen_address"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads settings from path, or from ./configdesk.{yaml,toml,json} when
// path is empty, then applies environment overrides and defaults. A missing
// default file is not an error; a missing explicit file is.
func Load(path string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read settings file at %s: %w", path, err)
		}
	} else {
		v.SetConfigName("configdesk")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read settings file: %w", err)
			}
		}
	}

	s := &Settings{}
	if err := v.Unmarshal(s); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}
	s.normalize()

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Default returns the settings used when nothing is configured.
func Default() *Settings {
	v := viper.New()
	setDefaults(v)
	s := &Settings{}
	_ = v.Unmarshal(s)
	s.normalize()
	return s
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen", ":8000")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.watch", false)

	v.SetDefault("store.driver", DriverFile)
	v.SetDefault("store.path", "")
	v.SetDefault("store.keep_revisions", 0)

	v.SetDefault("session.debounce", 500*time.Millisecond)
	v.SetDefault("session.save_timeout", 10*time.Second)

	v.SetDefault("telemetry.environment", "development")
	v.SetDefault("telemetry.logging.level", "info")
	v.SetDefault("telemetry.logging.format", "console")
	v.SetDefault("telemetry.logging.output", "stderr")
	v.SetDefault("telemetry.tracing.enabled", false)
	v.SetDefault("telemetry.tracing.exporter", "none")
	v.SetDefault("telemetry.tracing.endpoint", "")
	v.SetDefault("telemetry.tracing.sampling_rate", 1.0)
	v.SetDefault("telemetry.tracing.insecure", true)
	v.SetDefault("telemetry.metrics.enabled", true)
	v.SetDefault("telemetry.metrics.listen_address", "")
	v.SetDefault("telemetry.events", true)
}

func (s *Settings) normalize() {
	s.Store.Driver = strings.ToLower(s.Store.Driver)
	s.Telemetry.Logging.Level = strings.ToLower(s.Telemetry.Logging.Level)
	if s.Store.Path == "" {
		switch s.Store.Driver {
		case DriverSQLite:
			s.Store.Path = DefaultSQLitePath
		default:
			s.Store.Path = stores.DefaultFilePath
		}
	}
}

// Validate checks the settings and reports every invalid field.
func (s *Settings) Validate() error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("failed to validate settings: %w", err)
	}
	msgs := make([]string, len(verrs))
	for i, fe := range verrs {
		msgs[i] = fmt.Sprintf("%s: failed %q (got %v)", fe.Namespace(), fe.Tag(), fe.Value())
	}
	return fmt.Errorf("invalid settings:\n  - %s", strings.Join(msgs, "\n  - "))
}

// TelemetryConfig builds the telemetry configuration for these settings.
func (s *Settings) TelemetryConfig(version string) *telemetry.Config {
	cfg := telemetry.DefaultConfig()
	if s.Telemetry.Environment == "production" {
		cfg = telemetry.ProductionConfig()
	}
	if version != "" {
		cfg.ServiceVersion = version
	}
	t := s.Telemetry
	cfg.Environment = t.Environment
	cfg.Logging.Level = t.Logging.Level
	cfg.Logging.Format = t.Logging.Format
	cfg.Logging.Output = t.Logging.Output
	cfg.Tracing.Enabled = t.Tracing.Enabled
	cfg.Tracing.Exporter = t.Tracing.Exporter
	cfg.Tracing.Endpoint = t.Tracing.Endpoint
	cfg.Tracing.SamplingRate = t.Tracing.SamplingRate
	cfg.Tracing.Insecure = t.Tracing.Insecure
	cfg.Metrics.Enabled = t.Metrics.Enabled
	cfg.Metrics.ListenAddress = t.Metrics.ListenAddress
	cfg.Events.Enabled = t.Events
	return cfg
}

// OpenStore opens the configured store. SQLite stores are migrated and,
// when KeepRevisions is set, pruned.
func (s *Settings) OpenStore(ctx context.Context, logger zerolog.Logger) (stores.Store, error) {
	switch s.Store.Driver {
	case DriverFile:
		return stores.NewFileStore(s.Store.Path, stores.WithFileLogger(logger)), nil

	case DriverSQLite:
		store, err := stores.OpenSQLiteStore(ctx, stores.Config{Path: s.Store.Path})
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		if s.Store.KeepRevisions > 0 {
			// Make sure the default revision exists before pruning.
			if _, err := store.Load(ctx); err != nil {
				_ = store.Close()
				return nil, err
			}
			n, err := store.PruneRevisions(ctx, s.Store.KeepRevisions)
			if err != nil {
				_ = store.Close()
				return nil, err
			}
			if n > 0 {
				logger.Info().Int64("removed", n).Int("kept", s.Store.KeepRevisions).Msg("pruned config revisions")
			}
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unsupported store driver: %s", s.Store.Driver)
	}
}
