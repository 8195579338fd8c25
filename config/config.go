// Package config loads travelrouter configuration from YAML or TOML files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config is the full application configuration.
type Config struct {
	Logging    LoggingConfig    `yaml:"logging" toml:"logging"`
	Server     ServerConfig     `yaml:"server" toml:"server"`
	Classifier ClassifierConfig `yaml:"classifier" toml:"classifier"`
	LLM        LLMConfig        `yaml:"llm" toml:"llm"`
	Router     RouterConfig     `yaml:"router" toml:"router"`
	Memory     MemoryConfig     `yaml:"memory" toml:"memory"`
	Status     StatusConfig     `yaml:"status" toml:"status"`
	Analytics  AnalyticsConfig  `yaml:"analytics" toml:"analytics"`
	Session    SessionConfig    `yaml:"session" toml:"session"`
	Telemetry  TelemetryConfig  `yaml:"telemetry" toml:"telemetry"`
}

type LoggingConfig struct {
	Level        string `yaml:"level" toml:"level"`
	Format       string `yaml:"format" toml:"format"` // text or json
	TraceContext bool   `yaml:"trace_context" toml:"trace_context"`
}

type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
	GRPCAddr string `yaml:"grpc_addr" toml:"grpc_addr"`
}

// ClassifierConfig controls the LLM-first classification path.
type ClassifierConfig struct {
	UseLLM    bool    `yaml:"use_llm" toml:"use_llm"`
	Window    int     `yaml:"window" toml:"window"`
	RateLimit float64 `yaml:"rate_limit" toml:"rate_limit"` // calls per second, 0 = unlimited
	Burst     int     `yaml:"burst" toml:"burst"`

	Timeout    time.Duration `yaml:"-" toml:"-"`
	TimeoutRaw string        `yaml:"timeout" toml:"timeout"`
}

// LLMConfig selects the classification model.
type LLMConfig struct {
	Provider string `yaml:"provider" toml:"provider"` // gemini, openai, anthropic, bedrock, ollama
	Model    string `yaml:"model" toml:"model"`
	APIKey   string `yaml:"api_key" toml:"api_key"`
	BaseURL  string `yaml:"base_url" toml:"base_url"`
	Region   string `yaml:"region" toml:"region"`
	Profile  string `yaml:"profile" toml:"profile"`
}

type RouterConfig struct {
	FailureThreshold int `yaml:"failure_threshold" toml:"failure_threshold"`

	CollaboratorTimeout    time.Duration `yaml:"-" toml:"-"`
	RecoveryTimeout        time.Duration `yaml:"-" toml:"-"`
	CollaboratorTimeoutRaw string        `yaml:"collaborator_timeout" toml:"collaborator_timeout"`
	RecoveryTimeoutRaw     string        `yaml:"recovery_timeout" toml:"recovery_timeout"`
}

// MemoryConfig selects the conversation store.
type MemoryConfig struct {
	Backend    string `yaml:"backend" toml:"backend"` // memory, redis, sqlite
	MaxTurns   int    `yaml:"max_turns" toml:"max_turns"`
	RedisURL   string `yaml:"redis_url" toml:"redis_url"`
	KeyPrefix  string `yaml:"key_prefix" toml:"key_prefix"`
	SQLitePath string `yaml:"sqlite_path" toml:"sqlite_path"`

	TTL    time.Duration `yaml:"-" toml:"-"`
	TTLRaw string        `yaml:"ttl" toml:"ttl"`
}

// StatusConfig configures the live flight status collaborator.
type StatusConfig struct {
	Provider      string `yaml:"provider" toml:"provider"` // auto, aviationstack, static
	APIKey        string `yaml:"api_key" toml:"api_key"`
	BaseURL       string `yaml:"base_url" toml:"base_url"`
	CacheSize     int    `yaml:"cache_size" toml:"cache_size"`
	RetryAttempts int    `yaml:"retry_attempts" toml:"retry_attempts"`

	CacheTTL    time.Duration `yaml:"-" toml:"-"`
	CacheTTLRaw string        `yaml:"cache_ttl" toml:"cache_ttl"`
}

// AnalyticsConfig configures the historical flight dataset.
type AnalyticsConfig struct {
	DatabasePath string `yaml:"database_path" toml:"database_path"`
	Seed         bool   `yaml:"seed" toml:"seed"`

	CacheTTL    time.Duration `yaml:"-" toml:"-"`
	CacheTTLRaw string        `yaml:"cache_ttl" toml:"cache_ttl"`
}

type SessionConfig struct {
	IdleTimeout      time.Duration `yaml:"-" toml:"-"`
	SweepInterval    time.Duration `yaml:"-" toml:"-"`
	IdleTimeoutRaw   string        `yaml:"idle_timeout" toml:"idle_timeout"`
	SweepIntervalRaw string        `yaml:"sweep_interval" toml:"sweep_interval"`
}

type TelemetryConfig struct {
	ServiceName   string `yaml:"service_name" toml:"service_name"`
	OTLPEndpoint  string `yaml:"otlp_endpoint" toml:"otlp_endpoint"`
	ConsoleTraces bool   `yaml:"console_traces" toml:"console_traces"`
	Metrics       bool   `yaml:"metrics" toml:"metrics"`
}

// Default returns a configuration that runs locally with no external services
// beyond the LLM.
func Default() *Config {
	cfg := &Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Server:  ServerConfig{HTTPAddr: ":8080", GRPCAddr: ":50051"},
		Classifier: ClassifierConfig{
			UseLLM:     true,
			Window:     3,
			TimeoutRaw: "5s",
		},
		LLM: LLMConfig{Provider: "gemini", Model: "gemini-2.0-flash"},
		Router: RouterConfig{
			FailureThreshold:       5,
			CollaboratorTimeoutRaw: "10s",
			RecoveryTimeoutRaw:     "60s",
		},
		Memory: MemoryConfig{
			Backend:    "memory",
			KeyPrefix:  "travelrouter:session:",
			SQLitePath: "data/memory.db",
			TTLRaw:     "24h",
		},
		Status: StatusConfig{
			Provider:      "auto",
			CacheSize:     256,
			RetryAttempts: 3,
			CacheTTLRaw:   "2m",
		},
		Analytics: AnalyticsConfig{
			DatabasePath: "data/flights.db",
			Seed:         true,
			CacheTTLRaw:  "10m",
		},
		Session: SessionConfig{
			IdleTimeoutRaw:   "30m",
			SweepIntervalRaw: "1m",
		},
		Telemetry: TelemetryConfig{ServiceName: "travelrouter", Metrics: true},
	}
	// Defaults are valid literals.
	_ = parseDurations(cfg)
	return cfg
}

// Load reads path over Default. Files ending in .toml are TOML; anything else
// is YAML. ${VAR} references are expanded from the environment.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	default:
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

var envVarRe = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(s string) string {
	return envVarRe.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarRe.FindStringSubmatch(match)[1])
	})
}

// ApplyEnv fills unset secrets from the environment and resolves the "auto"
// status provider.
func (c *Config) ApplyEnv() {
	if c.LLM.APIKey == "" {
		switch c.LLM.Provider {
		case "gemini", "":
			c.LLM.APIKey = os.Getenv("GEMINI_API_KEY")
		case "openai":
			c.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		case "anthropic":
			c.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}
	if c.Status.APIKey == "" {
		c.Status.APIKey = os.Getenv("AVIATIONSTACK_API_KEY")
	}
	if c.Status.Provider == "auto" || c.Status.Provider == "" {
		if c.Status.APIKey != "" {
			c.Status.Provider = "aviationstack"
		} else {
			c.Status.Provider = "static"
		}
	}
}

// Validate checks the configuration for missing or contradictory settings.
func (c *Config) Validate() error {
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	if c.Classifier.Window < 0 {
		return fmt.Errorf("classifier.window must not be negative")
	}
	if c.Classifier.RateLimit < 0 {
		return fmt.Errorf("classifier.rate_limit must not be negative")
	}

	switch c.Memory.Backend {
	case "memory":
	case "redis":
		if c.Memory.RedisURL == "" {
			return fmt.Errorf("memory.redis_url is required for the redis backend")
		}
	case "sqlite":
		if c.Memory.SQLitePath == "" {
			return fmt.Errorf("memory.sqlite_path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("memory.backend must be memory, redis or sqlite, got %q", c.Memory.Backend)
	}

	switch c.Status.Provider {
	case "static", "auto":
	case "aviationstack":
		if c.Status.APIKey == "" {
			return fmt.Errorf("status.api_key is required for aviationstack (or set AVIATIONSTACK_API_KEY)")
		}
	default:
		return fmt.Errorf("status.provider must be auto, aviationstack or static, got %q", c.Status.Provider)
	}

	if c.Analytics.DatabasePath == "" {
		return fmt.Errorf("analytics.database_path is required")
	}

	return nil
}

func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"classifier.timeout", cfg.Classifier.TimeoutRaw, &cfg.Classifier.Timeout},
		{"router.collaborator_timeout", cfg.Router.CollaboratorTimeoutRaw, &cfg.Router.CollaboratorTimeout},
		{"router.recovery_timeout", cfg.Router.RecoveryTimeoutRaw, &cfg.Router.RecoveryTimeout},
		{"memory.ttl", cfg.Memory.TTLRaw, &cfg.Memory.TTL},
		{"status.cache_ttl", cfg.Status.CacheTTLRaw, &cfg.Status.CacheTTL},
		{"analytics.cache_ttl", cfg.Analytics.CacheTTLRaw, &cfg.Analytics.CacheTTL},
		{"session.idle_timeout", cfg.Session.IdleTimeoutRaw, &cfg.Session.IdleTimeout},
		{"session.sweep_interval", cfg.Session.SweepIntervalRaw, &cfg.Session.SweepInterval},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}
