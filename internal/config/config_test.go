package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir()) // no .env here
	for _, k := range []string{"GEMINI_API_KEY", "GAMEFORGE_PROVIDER", "GAMEFORGE_ADDR", "GAMEFORGE_MODEL", "GAMEFORGE_SAVE_DIR",
		"GAMEFORGE_MAX_ATTEMPTS", "GAMEFORGE_RETRY_DELAY", "GAMEFORGE_LOAD_TIMEOUT",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Provider != ProviderGemini || cfg.Model != "gemini-2.5-flash" {
		t.Errorf("provider/model = %q/%q", cfg.Provider, cfg.Model)
	}
	if cfg.Addr != "127.0.0.1:8765" || cfg.SaveDir != ".saves" {
		t.Errorf("addr/save dir = %q/%q", cfg.Addr, cfg.SaveDir)
	}
	if cfg.MaxAttempts != 3 || cfg.RetryDelay != 2*time.Second || cfg.LoadTimeout != time.Second {
		t.Errorf("retry settings = %d/%v/%v", cfg.MaxAttempts, cfg.RetryDelay, cfg.LoadTimeout)
	}
	if cfg.APIKey() != "" {
		t.Error("missing key must not fail loading")
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("GAMEFORGE_PROVIDER", " OpenAI ")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("GAMEFORGE_MAX_ATTEMPTS", "5")
	t.Setenv("GAMEFORGE_RETRY_DELAY", "250ms")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Provider != ProviderOpenAI || cfg.APIKey() != "sk-test" {
		t.Errorf("provider = %q key = %q", cfg.Provider, cfg.APIKey())
	}
	if cfg.MaxAttempts != 5 || cfg.RetryDelay != 250*time.Millisecond {
		t.Errorf("retry settings = %d/%v", cfg.MaxAttempts, cfg.RetryDelay)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Provider:    ProviderGemini,
			Addr:        "127.0.0.1:0",
			DBPath:      "db",
			MaxAttempts: 1,
			LoadTimeout: time.Second,
		}
	}
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"empty addr", func(c *Config) { c.Addr = " " }, "GAMEFORGE_ADDR"},
		{"empty db", func(c *Config) { c.DBPath = "" }, "GAMEFORGE_DB_PATH"},
		{"bad provider", func(c *Config) { c.Provider = "claude" }, "GAMEFORGE_PROVIDER"},
		{"no attempts", func(c *Config) { c.MaxAttempts = 0 }, "GAMEFORGE_MAX_ATTEMPTS"},
		{"zero timeout", func(c *Config) { c.LoadTimeout = 0 }, "GAMEFORGE_LOAD_TIMEOUT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}
