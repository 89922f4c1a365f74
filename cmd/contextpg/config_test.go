package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/youssefsiam38/contextpg/compaction"
)

func envMap(m map[string]string) func(string) string {
	return func(key string) string { return m[key] }
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "contextpg.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("", envMap(nil))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Database.Driver != DriverPgx || !cfg.Database.AutoMigrate {
		t.Errorf("Database = %+v", cfg.Database)
	}
	if cfg.Model != DefaultModel || cfg.SessionID != DefaultSessionID {
		t.Errorf("Model = %q, SessionID = %q", cfg.Model, cfg.SessionID)
	}
	if cfg.GenerateTimeout != DefaultGenerateTimeout {
		t.Errorf("GenerateTimeout = %s", cfg.GenerateTimeout)
	}
	if cfg.SystemPrompt == "" {
		t.Error("default system prompt is empty")
	}
}

func TestLoadConfig_File(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: sql
  url: postgres://localhost/contextpg
  auto_migrate: false
model: claude-opus-4
generate_timeout: 30s
session_id: work
compaction:
  trigger_ratio: 0.8
  min_messages: 8
  cooldown: 5m
context_windows:
  my-local-model: 16000
inspector:
  addr: ":9090"
`)

	cfg, err := LoadConfig(path, envMap(nil))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Database.Driver != DriverSQL || cfg.Database.AutoMigrate {
		t.Errorf("Database = %+v", cfg.Database)
	}
	if cfg.GenerateTimeout != 30*time.Second {
		t.Errorf("GenerateTimeout = %s", cfg.GenerateTimeout)
	}
	if cfg.Inspector.Addr != ":9090" {
		t.Errorf("Inspector.Addr = %q", cfg.Inspector.Addr)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	cc := cfg.CompactionConfig()
	if cc.TriggerRatio != 0.8 || cc.MinMessages != 8 || cc.Cooldown != 5*time.Minute {
		t.Errorf("CompactionConfig() = %+v", cc)
	}
	if cc.TargetRatio != compaction.DefaultTargetRatio {
		t.Errorf("TargetRatio = %v, want default", cc.TargetRatio)
	}
	if got := cfg.Registry().WindowSize("my-local-model-q4"); got != 16000 {
		t.Errorf("WindowSize() = %d, want 16000", got)
	}
}

func TestLoadConfig_ExampleFile(t *testing.T) {
	cfg, err := LoadConfig("contextpg.example.yaml", envMap(nil))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
	if cfg.Compaction.Cooldown != time.Minute {
		t.Errorf("Cooldown = %v, want 1m", cfg.Compaction.Cooldown)
	}
	if cfg.Inspector.BasePath != "/inspect" {
		t.Errorf("BasePath = %q", cfg.Inspector.BasePath)
	}
}

func TestSQLStoreOptions(t *testing.T) {
	cfg := DefaultConfig()
	if opts := sqlStoreOptions(cfg); len(opts) != 0 {
		t.Errorf("options = %d, want none by default", len(opts))
	}

	cfg.Database.DisableNotify = true
	if opts := sqlStoreOptions(cfg); len(opts) != 1 {
		t.Errorf("options = %d, want WithoutNotify", len(opts))
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"), envMap(nil)); err == nil {
		t.Error("missing file should fail")
	}
	if _, err := LoadConfig(writeConfig(t, "model: [unterminated"), envMap(nil)); err == nil {
		t.Error("malformed YAML should fail")
	}
}

func TestLoadConfig_EnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, "database:\n  url: postgres://file\nmodel: from-file\n")

	cfg, err := LoadConfig(path, envMap(map[string]string{
		"DATABASE_URL":      "postgres://env",
		"ANTHROPIC_API_KEY": "sk-test",
		"CONTEXTPG_MODEL":   "from-env",
		"SESSION_ID":        "env-session",
		"CONTEXTPG_DRIVER":  DriverMemory,
	}))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Database.URL != "postgres://env" || cfg.Database.Driver != DriverMemory {
		t.Errorf("Database = %+v", cfg.Database)
	}
	if cfg.Model != "from-env" || cfg.SessionID != "env-session" || cfg.AnthropicAPIKey != "sk-test" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestGlobalFlags_OnlyChangedOverride(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Model = "from-config"
	cfg.Database.URL = "postgres://config"

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	var g globalFlags
	g.register(fs)
	if err := fs.Parse([]string{"-s", "flag-session", "--driver", "memory", "-v"}); err != nil {
		t.Fatal(err)
	}
	g.apply(fs, cfg)

	if cfg.SessionID != "flag-session" || cfg.Database.Driver != DriverMemory || !cfg.Verbose {
		t.Errorf("flags not applied: %+v", cfg)
	}
	if cfg.Model != "from-config" || cfg.Database.URL != "postgres://config" {
		t.Errorf("unset flags overrode config: %+v", cfg)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid memory", func(c *Config) { c.Database.Driver = DriverMemory }, ""},
		{"valid pgx", func(c *Config) { c.Database.URL = "postgres://x" }, ""},
		{"pgx without url", func(c *Config) {}, "database.url is required"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, "database.driver must be"},
		{"empty model", func(c *Config) { c.Database.Driver = DriverMemory; c.Model = "" }, "model is required"},
		{"bad timeout", func(c *Config) { c.Database.Driver = DriverMemory; c.GenerateTimeout = -1 }, "generate_timeout"},
		{"bad window", func(c *Config) {
			c.Database.Driver = DriverMemory
			c.ContextWindows = map[string]int{"x": 0}
		}, "context_windows[x]"},
		{"target above trigger", func(c *Config) {
			c.Database.Driver = DriverMemory
			c.Compaction.TriggerRatio = 0.5
			c.Compaction.TargetRatio = 0.6
		}, "target_ratio"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	var sb strings.Builder
	logger, err := newLogger("warn", &sb)
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown")
	if strings.Contains(sb.String(), "hidden") || !strings.Contains(sb.String(), "shown") {
		t.Errorf("log output = %q", sb.String())
	}

	if _, err := newLogger("loud", &sb); err == nil {
		t.Error("unknown level should fail")
	}
}
