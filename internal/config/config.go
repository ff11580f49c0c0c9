package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config is the full quill configuration. It is read from YAML or TOML
// depending on the file extension; every field has a default.
type Config struct {
	Database DatabaseConfig `yaml:"database" toml:"database"`
	Telegram TelegramConfig `yaml:"telegram" toml:"telegram"`
	LLM      LLMConfig      `yaml:"llm" toml:"llm"`
	Sessions SessionConfig  `yaml:"sessions" toml:"sessions"`
	Ingest   IngestConfig   `yaml:"ingest" toml:"ingest"`
	Web      WebConfig      `yaml:"web" toml:"web"`

	Prompts struct {
		Ideas string `yaml:"ideas,omitempty" toml:"ideas,omitempty"`
		Draft string `yaml:"draft,omitempty" toml:"draft,omitempty"`
	} `yaml:"prompts,omitempty" toml:"prompts,omitempty"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver" toml:"driver"` // "sqlite" or "postgres"
	Path   string `yaml:"path" toml:"path"`
	DSN    string `yaml:"dsn,omitempty" toml:"dsn,omitempty"`
}

type TelegramConfig struct {
	Token          string `yaml:"token,omitempty" toml:"token,omitempty"`
	PollTimeout    int    `yaml:"poll_timeout" toml:"poll_timeout"`
	Debug          bool   `yaml:"debug" toml:"debug"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes" toml:"max_upload_bytes"`
}

type LLMConfig struct {
	Provider            string  `yaml:"provider" toml:"provider"` // ollama, openai, anthropic, gemini, http
	Model               string  `yaml:"model" toml:"model"`
	BaseURL             string  `yaml:"base_url,omitempty" toml:"base_url,omitempty"`
	APIKey              string  `yaml:"api_key,omitempty" toml:"api_key,omitempty"`
	Temperature         float64 `yaml:"temperature" toml:"temperature"`
	MaxTokens           int     `yaml:"max_tokens" toml:"max_tokens"`
	TimeoutSeconds      int     `yaml:"timeout_seconds" toml:"timeout_seconds"`
	InsecureSkipVerify  bool    `yaml:"insecure_skip_verify" toml:"insecure_skip_verify"`
	EmbeddingModel      string  `yaml:"embedding_model,omitempty" toml:"embedding_model,omitempty"`
	EmbeddingURL        string  `yaml:"embedding_url,omitempty" toml:"embedding_url,omitempty"` // Ollama endpoint; defaults to base_url for ollama
	SimilarityThreshold float64 `yaml:"similarity_threshold" toml:"similarity_threshold"`
}

type SessionConfig struct {
	Backend       string `yaml:"backend" toml:"backend"` // "memory" or "redis"
	RedisAddr     string `yaml:"redis_addr,omitempty" toml:"redis_addr,omitempty"`
	RedisPassword string `yaml:"redis_password,omitempty" toml:"redis_password,omitempty"`
	RedisDB       int    `yaml:"redis_db" toml:"redis_db"`
	IdleMinutes   int    `yaml:"idle_minutes" toml:"idle_minutes"`
	SweepSchedule string `yaml:"sweep_schedule" toml:"sweep_schedule"`
}

type IngestConfig struct {
	MinExamplePosts int    `yaml:"min_example_posts" toml:"min_example_posts"`
	ContextPosts    int    `yaml:"context_posts" toml:"context_posts"`
	DefaultStyle    string `yaml:"default_style" toml:"default_style"`
	DefaultIdea     string `yaml:"default_idea" toml:"default_idea"`
}

type WebConfig struct {
	Addr         string `yaml:"addr" toml:"addr"`
	JWTSecret    string `yaml:"jwt_secret,omitempty" toml:"jwt_secret,omitempty"`
	TokenTTLHour int    `yaml:"token_ttl_hours" toml:"token_ttl_hours"`
}

// Default returns a config with sensible defaults.
func Default() *Config {
	cfg := &Config{}
	cfg.Database.Driver = "sqlite"
	cfg.Database.Path = "./quill.db"
	cfg.Telegram.PollTimeout = 60
	cfg.Telegram.MaxUploadBytes = 5 << 20
	cfg.LLM.Provider = "ollama"
	cfg.LLM.Model = "llama3"
	cfg.LLM.BaseURL = "http://localhost:11434"
	cfg.LLM.Temperature = 0.7
	cfg.LLM.MaxTokens = 1024
	cfg.LLM.TimeoutSeconds = 120
	cfg.LLM.SimilarityThreshold = 0.92
	cfg.Sessions.Backend = "memory"
	cfg.Sessions.IdleMinutes = 60
	cfg.Sessions.SweepSchedule = "@every 10m"
	cfg.Ingest.MinExamplePosts = 3
	cfg.Ingest.ContextPosts = 5
	cfg.Ingest.DefaultStyle = "manual entry"
	cfg.Ingest.DefaultIdea = "user-supplied post"
	cfg.Web.Addr = ":8080"
	cfg.Web.TokenTTLHour = 24 * 30
	return cfg
}

// Load reads the config file at path. A missing file yields the defaults
// with environment overrides applied; a malformed file is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg.ApplyEnv()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("parse toml config %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse yaml config %s: %w", path, err)
		}
	}

	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides secrets and endpoints from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("QUILL_TELEGRAM_TOKEN"); v != "" {
		c.Telegram.Token = v
	}
	if v := os.Getenv("QUILL_LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("QUILL_DATABASE_DSN"); v != "" {
		c.Database.Driver = "postgres"
		c.Database.DSN = v
	}
	if v := os.Getenv("QUILL_JWT_SECRET"); v != "" {
		c.Web.JWTSecret = v
	}
	if v := os.Getenv("QUILL_REDIS_ADDR"); v != "" {
		c.Sessions.Backend = "redis"
		c.Sessions.RedisAddr = v
	}
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return errors.New("database.path is required for sqlite")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return errors.New("database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	switch c.Sessions.Backend {
	case "memory":
	case "redis":
		if c.Sessions.RedisAddr == "" {
			return errors.New("sessions.redis_addr is required for redis sessions")
		}
	default:
		return fmt.Errorf("unknown session backend %q", c.Sessions.Backend)
	}
	if c.Ingest.MinExamplePosts < 0 {
		return errors.New("ingest.min_example_posts must not be negative")
	}
	if c.Ingest.ContextPosts <= 0 {
		return errors.New("ingest.context_posts must be positive")
	}
	return nil
}

// Write serializes the config to path, choosing the format by extension.
func (c *Config) Write(path string) error {
	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		var b strings.Builder
		err = toml.NewEncoder(&b).Encode(c)
		data = []byte(b.String())
	default:
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}
