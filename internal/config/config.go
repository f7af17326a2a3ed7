// Package config provides configuration for the NIRV engine and its servers.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nirv/nirv/internal/connector"
	nerrors "github.com/nirv/nirv/internal/errors"
	"github.com/nirv/nirv/internal/query/planner"
)

// Config holds the configuration for the engine and its front-ends.
type Config struct {
	// Server configuration
	Server ServerConfig `json:"server" yaml:"server"`

	// Query execution configuration
	Query QueryConfig `json:"query" yaml:"query"`

	// Connectors registered at startup
	Connectors []ConnectorConfig `json:"connectors" yaml:"connectors"`

	// Log configuration
	Log LogConfig `json:"log" yaml:"log"`
}

// ServerConfig holds HTTP and gRPC server configuration.
type ServerConfig struct {
	// HTTPAddr is the HTTP API listen address
	HTTPAddr string `json:"http_addr" yaml:"http_addr"`

	// GRPCAddr is the gRPC listen address
	GRPCAddr string `json:"grpc_addr" yaml:"grpc_addr"`

	// GRPCEnabled controls whether gRPC is served
	GRPCEnabled bool `json:"grpc_enabled" yaml:"grpc_enabled"`

	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout" yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// QueryConfig holds query execution configuration.
type QueryConfig struct {
	// Timeout bounds each query end to end
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// StatsWindow is how long idle statistics are kept
	StatsWindow time.Duration `json:"stats_window" yaml:"stats_window"`

	// Costs overrides the planner's advisory cost weights
	Costs planner.CostModel `json:"costs" yaml:"costs"`
}

// ConnectorConfig describes one backend to connect and register.
type ConnectorConfig struct {
	// Name labels the connector in logs
	Name string `json:"name" yaml:"name"`

	// Type selects the implementation: mock, file, postgres, sqlite, rest
	Type string `json:"type" yaml:"type"`

	// ObjectType is the name queries use in FROM clauses
	ObjectType string `json:"object_type" yaml:"object_type"`

	Params         map[string]string `json:"params" yaml:"params"`
	Timeout        time.Duration     `json:"timeout" yaml:"timeout"`
	MaxConnections uint32            `json:"max_connections" yaml:"max_connections"`
}

// InitConfig converts the entry into connector parameters.
func (c ConnectorConfig) InitConfig() connector.InitConfig {
	cfg := connector.NewInitConfig()
	for k, v := range c.Params {
		cfg = cfg.WithParam(k, v)
	}
	if c.Timeout > 0 {
		cfg = cfg.WithTimeout(c.Timeout)
	}
	if c.MaxConnections > 0 {
		cfg = cfg.WithMaxConnections(c.MaxConnections)
	}
	return cfg
}

// LogConfig holds logging configuration.
type LogConfig struct {
	// Level is one of debug, info, warn, error
	Level string `json:"level" yaml:"level"`

	// Format is text or json
	Format string `json:"format" yaml:"format"`
}

// NewLogger builds a logger writing to w.
func (l LogConfig) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(l.Level)}
	if strings.EqualFold(l.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// DefaultConfig returns the default configuration for local development.
// It registers no connectors.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:        ":8080",
			GRPCAddr:        ":9090",
			GRPCEnabled:     true,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Query: QueryConfig{
			Timeout:     30 * time.Second,
			StatsWindow: time.Hour,
			Costs:       planner.DefaultCostModel(),
		},
		Connectors: []ConnectorConfig{},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

var objectTypePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return invalid("server.http_addr is required")
	}
	if c.Server.GRPCEnabled && c.Server.GRPCAddr == "" {
		return invalid("server.grpc_addr is required when gRPC is enabled")
	}
	if c.Query.Timeout <= 0 {
		return invalid("query.timeout must be positive, got %s", c.Query.Timeout)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return invalid("invalid log.level: %s (must be debug, info, warn, or error)", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return invalid("invalid log.format: %s (must be text or json)", c.Log.Format)
	}

	names := make(map[string]bool)
	objectTypes := make(map[string]bool)
	for i, cc := range c.Connectors {
		if cc.Type == "" {
			return invalid("connectors[%d].type is required", i)
		}
		if !objectTypePattern.MatchString(cc.ObjectType) {
			return invalid("connectors[%d].object_type %q must be an identifier", i, cc.ObjectType)
		}
		if objectTypes[cc.ObjectType] {
			return invalid("connectors[%d]: object_type %q is already configured", i, cc.ObjectType)
		}
		objectTypes[cc.ObjectType] = true
		if cc.Name != "" {
			if names[cc.Name] {
				return invalid("connectors[%d]: duplicate name %q", i, cc.Name)
			}
			names[cc.Name] = true
		}
	}
	return nil
}

func invalid(format string, args ...interface{}) error {
	return nerrors.NewConfigError(fmt.Sprintf(format, args...), nil)
}

// LoadFromFile loads configuration from a YAML or JSON file on top of the
// defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nerrors.NewConfigError("failed to read config file", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, nerrors.NewConfigError("failed to parse YAML config", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, nerrors.NewConfigError("failed to parse JSON config", err)
		}
	default:
		return nil, nerrors.NewConfigError(fmt.Sprintf("unsupported config file format: %s", ext), nil)
	}

	return cfg, nil
}

// LoadFromEnv applies environment overrides. Variables use the NIRV_
// prefix; malformed values are ignored.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("NIRV_HTTP_ADDR"); v != "" {
		cfg.Server.HTTPAddr = v
	}
	if v := os.Getenv("NIRV_GRPC_ADDR"); v != "" {
		cfg.Server.GRPCAddr = v
	}
	if v := os.Getenv("NIRV_GRPC_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Server.GRPCEnabled = b
		}
	}
	if v := os.Getenv("NIRV_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ShutdownTimeout = d
		}
	}

	if v := os.Getenv("NIRV_QUERY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Query.Timeout = d
		}
	}

	if v := os.Getenv("NIRV_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("NIRV_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// Load reads path when it is non-empty, applies environment overrides
// and validates the result.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	LoadFromEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
