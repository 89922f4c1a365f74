package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/youssefsiam38/contextpg/compaction"
)

// Backend drivers accepted by database.driver.
const (
	DriverPgx    = "pgx"
	DriverSQL    = "sql"
	DriverMemory = "memory"
)

// Defaults for the CLI configuration.
const (
	DefaultModel           = "claude-sonnet-4-5"
	DefaultSessionID       = "default"
	DefaultGenerateTimeout = 2 * time.Minute
	DefaultInspectorAddr   = ":8080"
	DefaultLogLevel        = "info"
)

// Config is the CLI configuration. It is read from a YAML file, then
// overlaid by environment variables, then by command-line flags.
type Config struct {
	Database DatabaseConfig `yaml:"database"`

	// Model is the conversation model; its context window drives the
	// compaction trigger.
	Model string `yaml:"model"`

	// AnthropicAPIKey authenticates generation and summarization. Usually
	// supplied through ANTHROPIC_API_KEY rather than the file.
	AnthropicAPIKey string `yaml:"anthropic_api_key"`

	// MaxTokens caps each generated response. Zero uses the client default.
	MaxTokens int `yaml:"max_tokens"`

	// GenerateTimeout bounds a single generation call.
	GenerateTimeout time.Duration `yaml:"generate_timeout"`

	SessionID    string `yaml:"session_id"`
	SystemPrompt string `yaml:"system_prompt"`

	// HistoryFile is the readline history file of the chat REPL.
	HistoryFile string `yaml:"history_file"`

	LogLevel string `yaml:"log_level"`

	// Verbose additionally logs every engine hook.
	Verbose bool `yaml:"verbose"`

	Compaction CompactionConfig `yaml:"compaction"`

	// ContextWindows registers additional model window sizes, keyed by a
	// substring of the model identifier.
	ContextWindows map[string]int `yaml:"context_windows"`

	Inspector InspectorConfig `yaml:"inspector"`
}

// DatabaseConfig selects the storage backend.
type DatabaseConfig struct {
	// Driver is one of pgx, sql or memory.
	Driver string `yaml:"driver"`

	URL string `yaml:"url"`

	// AutoMigrate applies pending migrations when a command opens the store.
	AutoMigrate bool `yaml:"auto_migrate"`

	// DisableNotify stops compactions from issuing pg_notify. watch and the
	// inspector's live updates then see nothing from this process.
	DisableNotify bool `yaml:"disable_notify"`
}

// CompactionConfig mirrors compaction.Config. Zero fields keep their
// defaults.
type CompactionConfig struct {
	TriggerRatio        float64       `yaml:"trigger_ratio"`
	TargetRatio         float64       `yaml:"target_ratio"`
	MinMessages         int           `yaml:"min_messages"`
	Cooldown            time.Duration `yaml:"cooldown"`
	SummarizerModel     string        `yaml:"summarizer_model"`
	SummarizerMaxTokens int           `yaml:"summarizer_max_tokens"`
	SummarizeTimeout    time.Duration `yaml:"summarize_timeout"`
	CompactDirectives   bool          `yaml:"compact_directives"`
}

// InspectorConfig configures the inspect command's HTTP server.
type InspectorConfig struct {
	Addr     string `yaml:"addr"`
	BasePath string `yaml:"base_path"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:      DriverPgx,
			AutoMigrate: true,
		},
		Model:           DefaultModel,
		GenerateTimeout: DefaultGenerateTimeout,
		SessionID:       DefaultSessionID,
		SystemPrompt:    defaultSystemPrompt,
		LogLevel:        DefaultLogLevel,
		Inspector: InspectorConfig{
			Addr: DefaultInspectorAddr,
		},
	}
}

const defaultSystemPrompt = `You are a helpful assistant in a long-running conversation.
Earlier parts of the conversation may be replaced by a continuation summary; treat it as
an accurate record of what happened and continue from where it leaves off.`

// LoadConfig reads path (when non-empty) over the defaults and applies
// environment overrides read through getenv.
func LoadConfig(path string, getenv func(string) string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvironment(getenv)
	return cfg, nil
}

// applyEnvironment overlays the recognized environment variables.
func (c *Config) applyEnvironment(getenv func(string) string) {
	if v := getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := getenv("CONTEXTPG_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := getenv("ANTHROPIC_API_KEY"); v != "" {
		c.AnthropicAPIKey = v
	}
	if v := getenv("CONTEXTPG_MODEL"); v != "" {
		c.Model = v
	}
	if v := getenv("SESSION_ID"); v != "" {
		c.SessionID = v
	}
	if v := getenv("CONTEXTPG_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// globalFlags are accepted by every command.
type globalFlags struct {
	configPath  string
	databaseURL string
	driver      string
	model       string
	session     string
	logLevel    string
	verbose     bool
}

func (g *globalFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&g.configPath, "config", "c", "", "path to a YAML config file (default $CONTEXTPG_CONFIG)")
	fs.StringVar(&g.databaseURL, "database-url", "", "PostgreSQL connection string (default $DATABASE_URL)")
	fs.StringVar(&g.driver, "driver", "", "storage driver: pgx, sql or memory")
	fs.StringVarP(&g.model, "model", "m", "", "conversation model")
	fs.StringVarP(&g.session, "session", "s", "", "session ID")
	fs.StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn or error")
	fs.BoolVarP(&g.verbose, "verbose", "v", false, "log every engine hook")
}

// apply overlays the flags the user actually set.
func (g *globalFlags) apply(fs *pflag.FlagSet, cfg *Config) {
	if fs.Changed("database-url") {
		cfg.Database.URL = g.databaseURL
	}
	if fs.Changed("driver") {
		cfg.Database.Driver = g.driver
	}
	if fs.Changed("model") {
		cfg.Model = g.model
	}
	if fs.Changed("session") {
		cfg.SessionID = g.session
	}
	if fs.Changed("log-level") {
		cfg.LogLevel = g.logLevel
	}
	if fs.Changed("verbose") {
		cfg.Verbose = g.verbose
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case DriverPgx, DriverSQL:
		if c.Database.URL == "" {
			errs = append(errs, fmt.Errorf("database.url is required for driver %q", c.Database.Driver))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("database.driver must be one of pgx, sql, memory; got %q", c.Database.Driver))
	}

	if c.Model == "" {
		errs = append(errs, errors.New("model is required"))
	}
	if c.GenerateTimeout <= 0 {
		errs = append(errs, errors.New("generate_timeout must be positive"))
	}
	if c.MaxTokens < 0 {
		errs = append(errs, errors.New("max_tokens must be non-negative"))
	}
	for pattern, size := range c.ContextWindows {
		if size <= 0 {
			errs = append(errs, fmt.Errorf("context_windows[%s] must be positive", pattern))
		}
	}
	if err := c.CompactionConfig().Validate(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// CompactionConfig converts the compaction section, filling defaults.
func (c *Config) CompactionConfig() *compaction.Config {
	cc := &compaction.Config{
		TriggerRatio:        c.Compaction.TriggerRatio,
		TargetRatio:         c.Compaction.TargetRatio,
		MinMessages:         c.Compaction.MinMessages,
		Cooldown:            c.Compaction.Cooldown,
		SummarizerModel:     c.Compaction.SummarizerModel,
		SummarizerMaxTokens: c.Compaction.SummarizerMaxTokens,
		SummarizeTimeout:    c.Compaction.SummarizeTimeout,
		CompactDirectives:   c.Compaction.CompactDirectives,
	}
	cc.ApplyDefaults()
	return cc
}

// Registry builds the context window registry with the configured
// overrides.
func (c *Config) Registry() *compaction.Registry {
	registry := compaction.NewRegistry()
	for pattern, size := range c.ContextWindows {
		registry.Register(pattern, size)
	}
	return registry
}
