package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	LLM      LLMConfig      `yaml:"llm"`
	Admin    AdminConfig    `yaml:"admin"`
	LogLevel string         `yaml:"log_level"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port         string `yaml:"port"`
	SecureCookie bool   `yaml:"secure_cookie"`
}

// DatabaseConfig points at the SQLite file.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LLMConfig selects and configures the extraction backend.
type LLMConfig struct {
	Provider string        `yaml:"provider"` // "openai" or "gemini"
	Model    string        `yaml:"model"`    // empty selects the provider's default
	APIKey   string        `yaml:"api_key"`
	Endpoint string        `yaml:"endpoint"` // base URL for OpenAI-compatible servers
	Timeout  time.Duration `yaml:"timeout"`
}

// AdminConfig seeds an initial account on first start.
type AdminConfig struct {
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Port: "8080"},
		Database: DatabaseConfig{Path: "expenses.db"},
		LLM: LLMConfig{
			Provider: ProviderOpenAI,
			Timeout:  20 * time.Second,
		},
		LogLevel: "info",
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if it
// exists), then a .env file, then environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("reading config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config: %w", err)
			}
		}
	}

	// A missing .env is normal outside development.
	_ = godotenv.Load()

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// Save writes cfg as YAML.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("server port is required")
	}
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
	if c.LLM.Timeout <= 0 {
		return errors.New("llm timeout must be positive")
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.Server.Port, "PORT")
	setString(&c.Database.Path, "DB_PATH")
	setString(&c.LLM.Provider, "LLM_PROVIDER")
	setString(&c.LLM.Model, "LLM_MODEL")
	setString(&c.LLM.Endpoint, "LLM_API_ENDPOINT")
	setString(&c.Admin.User, "ADMIN_USER")
	setString(&c.Admin.Password, "ADMIN_PASSWORD")
	setString(&c.LogLevel, "LOG_LEVEL")

	c.LLM.Provider = strings.ToLower(c.LLM.Provider)

	// Provider-specific key variables win over the generic one.
	setString(&c.LLM.APIKey, "LLM_API_KEY")
	switch c.LLM.Provider {
	case ProviderOpenAI:
		setString(&c.LLM.APIKey, "OPENAI_API_KEY")
	case ProviderGemini:
		setString(&c.LLM.APIKey, "GEMINI_API_KEY")
	}

	if v, ok := os.LookupEnv("SECURE_COOKIE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parsing SECURE_COOKIE: %w", err)
		}
		c.Server.SecureCookie = b
	}
	if v, ok := os.LookupEnv("LLM_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parsing LLM_TIMEOUT: %w", err)
		}
		c.LLM.Timeout = d
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}
