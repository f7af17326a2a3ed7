package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	nerrors "github.com/nirv/nirv/internal/errors"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Query.Timeout != 30*time.Second {
		t.Errorf("query timeout = %s, want 30s", cfg.Query.Timeout)
	}
	if cfg.Query.Costs.BaseScanCost != 1.0 {
		t.Errorf("base scan cost = %v, want 1.0", cfg.Query.Costs.BaseScanCost)
	}
}

func TestLoadFromFile_YAML(t *testing.T) {
	path := writeFile(t, "nirv.yaml", `
server:
  http_addr: ":9000"
  grpc_enabled: false
query:
  timeout: 5s
  costs:
    base_scan_cost: 2.5
connectors:
  - name: primary
    type: sqlite
    object_type: postgres
    timeout: 2s
    max_connections: 4
    params:
      path: /tmp/app.db
log:
  level: debug
  format: json
`)
	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.Server.HTTPAddr != ":9000" || cfg.Server.GRPCEnabled {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Server.GRPCAddr != ":9090" {
		t.Errorf("unset fields should keep defaults, grpc_addr = %q", cfg.Server.GRPCAddr)
	}
	if cfg.Query.Timeout != 5*time.Second {
		t.Errorf("query timeout = %s, want 5s", cfg.Query.Timeout)
	}
	if cfg.Query.Costs.BaseScanCost != 2.5 {
		t.Errorf("base scan cost = %v, want 2.5", cfg.Query.Costs.BaseScanCost)
	}
	if len(cfg.Connectors) != 1 {
		t.Fatalf("connectors = %d, want 1", len(cfg.Connectors))
	}

	ic := cfg.Connectors[0].InitConfig()
	if v, _ := ic.Param("path"); v != "/tmp/app.db" {
		t.Errorf("path param = %q", v)
	}
	if ic.TimeoutOrDefault() != 2*time.Second {
		t.Errorf("timeout = %s, want 2s", ic.TimeoutOrDefault())
	}
	if ic.MaxConnectionsOrDefault() != 4 {
		t.Errorf("max connections = %d, want 4", ic.MaxConnectionsOrDefault())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadFromFile_JSON(t *testing.T) {
	path := writeFile(t, "nirv.json", `{
  "connectors": [{"type": "mock", "object_type": "mock"}],
  "log": {"level": "warn", "format": "text"}
}`)
	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("log level = %q, want warn", cfg.Log.Level)
	}
	if len(cfg.Connectors) != 1 || cfg.Connectors[0].Type != "mock" {
		t.Errorf("connectors = %+v", cfg.Connectors)
	}
	if ic := cfg.Connectors[0].InitConfig(); ic.Timeout != nil || ic.MaxConnections != nil {
		t.Error("zero timeout and max_connections should leave defaults unset")
	}
}

func TestLoadFromFile_Errors(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"missing file", filepath.Join(t.TempDir(), "absent.yaml")},
		{"unsupported extension", writeFile(t, "nirv.toml", "x = 1")},
		{"malformed yaml", writeFile(t, "bad.yaml", "server: [unclosed")},
		{"malformed json", writeFile(t, "bad.json", "{")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromFile(tt.path)
			if err == nil {
				t.Fatal("expected error")
			}
			if nerrors.GetCode(err) != nerrors.CodeInvalidConfig {
				t.Errorf("code = %q, want %q", nerrors.GetCode(err), nerrors.CodeInvalidConfig)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty http addr", func(c *Config) { c.Server.HTTPAddr = "" }},
		{"grpc without addr", func(c *Config) { c.Server.GRPCAddr = "" }},
		{"zero timeout", func(c *Config) { c.Query.Timeout = 0 }},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
		{"missing connector type", func(c *Config) {
			c.Connectors = []ConnectorConfig{{ObjectType: "users"}}
		}},
		{"bad object type", func(c *Config) {
			c.Connectors = []ConnectorConfig{{Type: "mock", ObjectType: "my-type"}}
		}},
		{"duplicate object type", func(c *Config) {
			c.Connectors = []ConnectorConfig{
				{Type: "mock", ObjectType: "mock"},
				{Type: "file", ObjectType: "mock"},
			}
		}},
		{"duplicate name", func(c *Config) {
			c.Connectors = []ConnectorConfig{
				{Name: "a", Type: "mock", ObjectType: "mock"},
				{Name: "a", Type: "file", ObjectType: "file"},
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if nerrors.GetCategory(err) != nerrors.ErrCategoryConfig {
				t.Errorf("category = %q, want CONFIG", nerrors.GetCategory(err))
			}
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("NIRV_HTTP_ADDR", ":7070")
	t.Setenv("NIRV_GRPC_ENABLED", "false")
	t.Setenv("NIRV_QUERY_TIMEOUT", "750ms")
	t.Setenv("NIRV_SHUTDOWN_TIMEOUT", "not-a-duration")
	t.Setenv("NIRV_LOG_FORMAT", "json")

	cfg := DefaultConfig()
	LoadFromEnv(cfg)

	if cfg.Server.HTTPAddr != ":7070" {
		t.Errorf("http addr = %q", cfg.Server.HTTPAddr)
	}
	if cfg.Server.GRPCEnabled {
		t.Error("gRPC should be disabled")
	}
	if cfg.Query.Timeout != 750*time.Millisecond {
		t.Errorf("query timeout = %s", cfg.Query.Timeout)
	}
	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("malformed duration should be ignored, got %s", cfg.Server.ShutdownTimeout)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("log format = %q", cfg.Log.Format)
	}
}

func TestLoad(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load with no file: %v", err)
	}
	if cfg.Server.HTTPAddr != ":8080" {
		t.Errorf("http addr = %q", cfg.Server.HTTPAddr)
	}

	t.Setenv("NIRV_LOG_LEVEL", "loud")
	if _, err := Load(""); err == nil {
		t.Error("invalid env override should fail validation")
	}
}
