package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Config holds the application configuration.
type Config struct {
	// GeminiAPIKey may be empty; generation then fails with a missing
	// credential error instead of the app refusing to start.
	GeminiAPIKey  string `env:"GEMINI_API_KEY"`
	Provider      string `env:"GAMEFORGE_PROVIDER" envDefault:"gemini"`
	Model         string `env:"GAMEFORGE_MODEL" envDefault:"gemini-2.5-flash"`
	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL"`

	Addr     string `env:"GAMEFORGE_ADDR" envDefault:"127.0.0.1:8765"`
	DBPath   string `env:"GAMEFORGE_DB_PATH" envDefault:"./data/gameforge.db"`
	SaveDir  string `env:"GAMEFORGE_SAVE_DIR" envDefault:".saves"`
	LogFile  string `env:"GAMEFORGE_LOG_FILE" envDefault:"gameforge.log"`
	LogLevel string `env:"GAMEFORGE_LOG_LEVEL" envDefault:"info"`

	MaxAttempts int           `env:"GAMEFORGE_MAX_ATTEMPTS" envDefault:"3"`
	RetryDelay  time.Duration `env:"GAMEFORGE_RETRY_DELAY" envDefault:"2s"`
	LoadTimeout time.Duration `env:"GAMEFORGE_LOAD_TIMEOUT" envDefault:"1s"`
}

// LoadConfig loads the configuration from environment variables, reading a
// .env file first when one exists.
func LoadConfig() (*Config, error) {
	// a missing .env is normal
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that have no usable fallback.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Addr) == "" {
		errs = append(errs, errors.New("GAMEFORGE_ADDR is empty"))
	}
	if strings.TrimSpace(c.DBPath) == "" {
		errs = append(errs, errors.New("GAMEFORGE_DB_PATH is empty"))
	}
	switch c.Provider {
	case ProviderGemini, ProviderOpenAI:
	default:
		errs = append(errs, fmt.Errorf("unknown GAMEFORGE_PROVIDER %q", c.Provider))
	}
	if c.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("GAMEFORGE_MAX_ATTEMPTS must be at least 1, got %d", c.MaxAttempts))
	}
	if c.RetryDelay < 0 || c.LoadTimeout <= 0 {
		errs = append(errs, errors.New("GAMEFORGE_RETRY_DELAY must not be negative and GAMEFORGE_LOAD_TIMEOUT must be positive"))
	}
	return errors.Join(errs...)
}

// APIKey returns the key for the configured provider.
func (c *Config) APIKey() string {
	if c.Provider == ProviderOpenAI {
		return c.OpenAIAPIKey
	}
	return c.GeminiAPIKey
}
