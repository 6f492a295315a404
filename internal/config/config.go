// Package config provides configuration loading for voxd.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap/zapcore"
)

// Config is the full daemon configuration.
type Config struct {
	Orchestrator  OrchestratorConfig  `koanf:"orchestrator"`
	Router        RouterConfig        `koanf:"router"`
	Store         StoreConfig         `koanf:"store"`
	NATS          NATSConfig          `koanf:"nats"`
	HTTP          HTTPConfig          `koanf:"http"`
	Logging       LoggingConfig       `koanf:"logging"`
	Observability ObservabilityConfig `koanf:"observability"`
}

// OrchestratorConfig controls the state machine.
type OrchestratorConfig struct {
	// RequireConfirmation gates executor launches behind user approval.
	RequireConfirmation bool `koanf:"require_confirmation"`

	// RedactOutput scrubs credentials from outbound messages.
	RedactOutput bool `koanf:"redact_output"`

	// Executor selects the backend: "claude" or "mock".
	Executor string `koanf:"executor"`

	// WorkingDir is handed to launched executors. Defaults to the
	// process working directory.
	WorkingDir string `koanf:"working_dir"`

	// UserID tags persisted sessions.
	UserID string `koanf:"user_id"`

	// RouteTimeout bounds one router call.
	RouteTimeout Duration `koanf:"route_timeout"`

	// LaunchTimeout bounds one executor launch.
	LaunchTimeout Duration `koanf:"launch_timeout"`

	// StoreTimeout bounds store and summarizer calls.
	StoreTimeout Duration `koanf:"store_timeout"`
}

// RouterConfig controls the LLM router.
type RouterConfig struct {
	// BaseURL of the OpenAI-compatible endpoint. Empty uses the default
	// OpenAI endpoint.
	BaseURL string `koanf:"base_url"`

	// Model requested from the endpoint.
	Model string `koanf:"model"`

	// APIKey for the endpoint.
	APIKey Secret `koanf:"api_key"`

	// Timeout bounds one routing round trip.
	Timeout Duration `koanf:"timeout"`

	// RequestsPerSecond rate-limits routing calls. Zero disables.
	RequestsPerSecond float64 `koanf:"requests_per_second"`

	// Temperature for plan generation.
	Temperature float64 `koanf:"temperature"`
}

// StoreConfig controls session persistence.
type StoreConfig struct {
	// Root directory for session data. Defaults to
	// ~/.local/share/voxd/sessions.
	Root string `koanf:"root"`
}

// NATSConfig controls the message-bus transport.
type NATSConfig struct {
	// Enabled turns the NATS transport on.
	Enabled bool `koanf:"enabled"`

	// URL of the NATS server.
	URL string `koanf:"url"`

	// Embedded starts an in-process NATS server instead of connecting
	// to URL.
	Embedded bool `koanf:"embedded"`

	// SubjectPrefix namespaces voxd subjects.
	SubjectPrefix string `koanf:"subject_prefix"`
}

// HTTPConfig controls the HTTP surface.
type HTTPConfig struct {
	// Enabled turns the HTTP server on.
	Enabled bool `koanf:"enabled"`

	// Addr to listen on.
	Addr string `koanf:"addr"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  zapcore.Level `koanf:"level"`
	Format string        `koanf:"format"`
}

// ObservabilityConfig controls OpenTelemetry export.
type ObservabilityConfig struct {
	Enabled      bool    `koanf:"enabled"`
	ServiceName  string  `koanf:"service_name"`
	OTLPEndpoint string  `koanf:"otlp_endpoint"`
	SampleRatio  float64 `koanf:"sample_ratio"`
}

// applyDefaults fills in zero values.
func applyDefaults(cfg *Config) {
	if cfg.Orchestrator.Executor == "" {
		cfg.Orchestrator.Executor = "claude"
	}
	if cfg.Orchestrator.RouteTimeout == 0 {
		cfg.Orchestrator.RouteTimeout = Duration(30 * time.Second)
	}
	if cfg.Orchestrator.LaunchTimeout == 0 {
		cfg.Orchestrator.LaunchTimeout = Duration(15 * time.Second)
	}
	if cfg.Orchestrator.StoreTimeout == 0 {
		cfg.Orchestrator.StoreTimeout = Duration(10 * time.Second)
	}
	if cfg.Orchestrator.WorkingDir == "" {
		if wd, err := os.Getwd(); err == nil {
			cfg.Orchestrator.WorkingDir = wd
		}
	}
	if cfg.Router.Model == "" {
		cfg.Router.Model = "gpt-4o-mini"
	}
	if cfg.Router.Timeout == 0 {
		cfg.Router.Timeout = Duration(30 * time.Second)
	}
	if cfg.Router.RequestsPerSecond == 0 {
		cfg.Router.RequestsPerSecond = 2
	}
	if cfg.Router.Temperature == 0 {
		cfg.Router.Temperature = 0.1
	}
	if cfg.Store.Root == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.Store.Root = filepath.Join(home, ".local", "share", "voxd", "sessions")
		}
	}
	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://127.0.0.1:4222"
	}
	if cfg.NATS.SubjectPrefix == "" {
		cfg.NATS.SubjectPrefix = "voxd"
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = "127.0.0.1:8090"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "voxd"
	}
	if cfg.Observability.OTLPEndpoint == "" {
		cfg.Observability.OTLPEndpoint = "localhost:4317"
	}
	if cfg.Observability.SampleRatio == 0 {
		cfg.Observability.SampleRatio = 1.0
	}
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	switch c.Orchestrator.Executor {
	case "claude", "mock":
	default:
		return fmt.Errorf("orchestrator.executor: unknown executor %q", c.Orchestrator.Executor)
	}
	if c.Router.RequestsPerSecond < 0 {
		return fmt.Errorf("router.requests_per_second cannot be negative")
	}
	if c.Router.Temperature < 0 || c.Router.Temperature > 2 {
		return fmt.Errorf("router.temperature must be in [0, 2]")
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console")
	}
	if c.Observability.SampleRatio < 0 || c.Observability.SampleRatio > 1 {
		return fmt.Errorf("observability.sample_ratio must be in [0, 1]")
	}
	return nil
}
