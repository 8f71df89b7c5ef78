package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config represents the sheetql configuration.
type Config struct {
	Model     ModelConfig     `yaml:"model"`
	Execution ExecutionConfig `yaml:"execution"`
	Cache     CacheConfig     `yaml:"cache"`
	Chat      ChatConfig      `yaml:"chat"`
	Log       LogConfig       `yaml:"log"`
}

// ModelConfig holds language-model settings.
type ModelConfig struct {
	Name      string `yaml:"name"`        // Model identifier sent to the completion endpoint
	BaseURL   string `yaml:"base_url"`    // OpenAI-compatible endpoint (empty = provider default)
	APIKeyEnv string `yaml:"api_key_env"` // Environment variable holding the API key
}

// ExecutionConfig holds query execution settings.
type ExecutionConfig struct {
	BudgetSecs int    `yaml:"budget_secs"` // Wall-clock budget for draining one query
	Output     string `yaml:"output"`      // Default path for generated spreadsheets
}

// CacheConfig holds staged-store reuse settings.
type CacheConfig struct {
	Enabled  bool `yaml:"enabled"`   // Keep staged stores between runs
	TTLHours int  `yaml:"ttl_hours"` // In-process cache entry lifetime
}

// ChatConfig holds interactive-session settings.
type ChatConfig struct {
	FilesDir        string `yaml:"files_dir"`         // Folder listed for file selection
	SessionTTLHours int    `yaml:"session_ttl_hours"` // Idle session eviction
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level      string `yaml:"level"`       // debug, info, warn, error
	File       string `yaml:"file"`        // Log file path (empty = default under data dir)
	MaxSizeMB  int    `yaml:"max_size_mb"` // Rotate after this size
	MaxBackups int    `yaml:"max_backups"` // Rotated files to keep
	MaxAgeDays int    `yaml:"max_age_days"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Model: ModelConfig{
			Name:      "gpt-4o",
			BaseURL:   "",
			APIKeyEnv: "CHATGPT_API_KEY",
		},
		Execution: ExecutionConfig{
			BudgetSecs: 600,
			Output:     "final.xlsx",
		},
		Cache: CacheConfig{
			Enabled:  false,
			TTLHours: 1,
		},
		Chat: ChatConfig{
			FilesDir:        "files",
			SessionTTLHours: 24,
		},
		Log: LogConfig{
			Level:      "info",
			File:       "", // Use default from paths
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load loads configuration from the default path.
func Load() (*Config, error) {
	paths := DefaultPaths()
	return LoadFromFile(paths.ConfigFile())
}

// LoadFromFile loads configuration from the specified file.
// If the file doesn't exist, returns default configuration.
// Environment variable overrides are applied after file loading.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.ApplyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves the configuration to the specified file.
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnvOverrides applies environment variable overrides to the
// config. Environment variables override config file values.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("SHEETQL_MODEL"); v != "" {
		c.Model.Name = v
	}
	if v := os.Getenv("SHEETQL_BASE_URL"); v != "" {
		c.Model.BaseURL = v
	}
	if v := os.Getenv("SHEETQL_BUDGET_SECS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Execution.BudgetSecs = n
		}
	}
	if v := os.Getenv("SHEETQL_FILES_DIR"); v != "" {
		c.Chat.FilesDir = v
	}
	if v := os.Getenv("SHEETQL_LOG_LEVEL"); v != "" {
		if isValidLogLevel(v) {
			c.Log.Level = v
		}
	}
	if v := os.Getenv("SHEETQL_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil && b {
			c.Log.Level = "debug"
		}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Model.Name == "" {
		return errors.New("model.name must not be empty")
	}
	if c.Model.APIKeyEnv == "" {
		return errors.New("model.api_key_env must not be empty")
	}
	if c.Execution.BudgetSecs <= 0 {
		return errors.New("execution.budget_secs must be > 0")
	}
	if c.Cache.TTLHours < 0 {
		return errors.New("cache.ttl_hours must be >= 0")
	}
	if c.Chat.SessionTTLHours <= 0 {
		return errors.New("chat.session_ttl_hours must be > 0")
	}
	if !isValidLogLevel(c.Log.Level) {
		return fmt.Errorf("log.level must be debug, info, warn, or error (got: %s)", c.Log.Level)
	}
	return nil
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}
