package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Loader reads configuration from a JSON file and the environment.
type Loader struct {
	v    *viper.Viper
	path string
}

// NewLoader creates a loader for the given config file path. An empty path
// falls back to DefaultConfigPath.
func NewLoader(path string) *Loader {
	if path == "" {
		path = DefaultConfigPath()
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix("EVO")
	v.AutomaticEnv()

	return &Loader{v: v, path: path}
}

// Load reads the config file, applies environment overrides, and fills in
// derived path defaults. A missing file is not an error; defaults apply.
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config %s: %w", l.path, err)
			}
		}
	}

	cfg := DefaultConfig()
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	applyPathDefaults(cfg)
	return cfg, nil
}

// Save writes the current configuration back to the config file.
func (l *Loader) Save(cfg *Config) error {
	l.v.Set("telegram", cfg.Telegram)
	l.v.Set("provider", cfg.Provider)
	l.v.Set("search", cfg.Search)
	l.v.Set("tools", cfg.Tools)
	l.v.Set("memory", cfg.Memory)
	l.v.Set("sessions", cfg.Sessions)
	l.v.Set("scheduler", cfg.Scheduler)
	l.v.Set("metrics", cfg.Metrics)
	l.v.Set("logging", cfg.Logging)
	l.v.Set("data_dir", cfg.DataDir)
	l.v.Set("system_prompt", cfg.SystemPrompt)

	if err := os.MkdirAll(filepath.Dir(l.path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := l.v.WriteConfig(); err != nil {
		if err := l.v.SafeWriteConfig(); err != nil {
			return fmt.Errorf("write config %s: %w", l.path, err)
		}
	}
	return nil
}

// Path returns the config file location this loader reads.
func (l *Loader) Path() string {
	return l.path
}

// DefaultConfigPath returns ~/.evo/config.json.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".evo", "config.json")
}

// Load is a convenience wrapper for one-shot loading.
func Load(path string) (*Config, error) {
	return NewLoader(path).Load()
}

// applyEnvOverrides maps well-known environment variables onto credential
// fields. Viper's AutomaticEnv only covers keys it has seen, so secrets that
// never appear in the config file need explicit handling.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("EVO_TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("EVO_ANTHROPIC_API_KEY"); v != "" {
		cfg.Provider.AnthropicAPIKey = v
	}
	if v := os.Getenv("EVO_OPENAI_API_KEY"); v != "" {
		cfg.Provider.OpenAIAPIKey = v
	}
	if v := os.Getenv("EVO_BRAVE_API_KEY"); v != "" {
		cfg.Search.BraveAPIKey = v
	}
	if v := os.Getenv("EVO_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
}

// applyPathDefaults roots unset storage paths under DataDir.
func applyPathDefaults(cfg *Config) {
	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		cfg.DataDir = filepath.Join(home, ".evo")
	}
	if cfg.Tools.Dir == "" {
		cfg.Tools.Dir = filepath.Join(cfg.DataDir, "tools")
	}
	if cfg.Sessions.Dir == "" {
		cfg.Sessions.Dir = filepath.Join(cfg.DataDir, "sessions")
	}
	if cfg.Memory.DBPath == "" {
		cfg.Memory.DBPath = filepath.Join(cfg.DataDir, "memory.db")
	}
	if cfg.Scheduler.StorePath == "" {
		cfg.Scheduler.StorePath = filepath.Join(cfg.DataDir, "tasks.json")
	}
	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.DataDir, "evo.log")
	}
}
