// Package config defines the daemon configuration and its loader.
package config

// Config is the root configuration.
type Config struct {
	Telegram  TelegramConfig  `json:"telegram" mapstructure:"telegram"`
	Provider  ProviderConfig  `json:"provider" mapstructure:"provider"`
	Search    SearchConfig    `json:"search" mapstructure:"search"`
	Tools     ToolsConfig     `json:"tools" mapstructure:"tools"`
	Memory    MemoryConfig    `json:"memory" mapstructure:"memory"`
	Sessions  SessionsConfig  `json:"sessions" mapstructure:"sessions"`
	Scheduler SchedulerConfig `json:"scheduler" mapstructure:"scheduler"`
	Metrics   MetricsConfig   `json:"metrics" mapstructure:"metrics"`
	Logging   LoggingConfig   `json:"logging" mapstructure:"logging"`

	// DataDir roots all derived paths (tools, sessions, memory, tasks).
	DataDir string `json:"data_dir" mapstructure:"data_dir"`

	// SystemPrompt is appended to the built-in system prompt.
	SystemPrompt string `json:"system_prompt" mapstructure:"system_prompt"`
}

// TelegramConfig configures the transport.
type TelegramConfig struct {
	BotToken string `json:"bot_token" mapstructure:"bot_token"`
	// Allowlist restricts who may talk to the bot. Empty means open, which
	// the validator warns about.
	Allowlist []int64 `json:"allowlist" mapstructure:"allowlist"`
}

// ProviderConfig selects and configures the planning model.
type ProviderConfig struct {
	Name            string  `json:"name" mapstructure:"name"` // anthropic, openai
	AnthropicAPIKey string  `json:"anthropic_api_key" mapstructure:"anthropic_api_key"`
	OpenAIAPIKey    string  `json:"openai_api_key" mapstructure:"openai_api_key"`
	Model           string  `json:"model" mapstructure:"model"`
	MaxTokens       int     `json:"max_tokens" mapstructure:"max_tokens"`
	Temperature     float64 `json:"temperature" mapstructure:"temperature"`
	// Aliases maps short names to model identifiers for the /model command.
	Aliases map[string]string `json:"aliases" mapstructure:"aliases"`
}

// SearchConfig configures the web_search built-in.
type SearchConfig struct {
	BraveAPIKey string `json:"brave_api_key" mapstructure:"brave_api_key"`
}

// ToolsConfig configures the tool store, sandbox and dispatch loop.
type ToolsConfig struct {
	Dir                string `json:"dir" mapstructure:"dir"`
	ExecTimeoutSeconds int    `json:"exec_timeout_seconds" mapstructure:"exec_timeout_seconds"`
	MaxIterations      int    `json:"max_iterations" mapstructure:"max_iterations"`
	MaxResultLen       int    `json:"max_result_len" mapstructure:"max_result_len"`
	// Watch reloads the registry when the tool directory changes on disk.
	Watch bool `json:"watch" mapstructure:"watch"`
}

// MemoryConfig configures long-term memory.
type MemoryConfig struct {
	DBPath string `json:"db_path" mapstructure:"db_path"`
	// DigestFacts bounds how many recent facts join the system prompt.
	DigestFacts int `json:"digest_facts" mapstructure:"digest_facts"`
}

// SessionsConfig configures conversation persistence.
type SessionsConfig struct {
	Dir string `json:"dir" mapstructure:"dir"`
	// HistoryLimit bounds how many stored messages seed a new turn.
	HistoryLimit int `json:"history_limit" mapstructure:"history_limit"`
}

// SchedulerConfig configures scheduled prompts.
type SchedulerConfig struct {
	StorePath string `json:"store_path" mapstructure:"store_path"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `json:"enabled" mapstructure:"enabled"`
	Port    int  `json:"port" mapstructure:"port"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// DefaultConfig returns the configuration used before any file or environment
// overrides.
func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderConfig{
			Name:      "anthropic",
			Model:     "claude-sonnet-4-5",
			MaxTokens: 4096,
			Aliases: map[string]string{
				"sonnet": "claude-sonnet-4-5",
				"haiku":  "claude-3-5-haiku-latest",
			},
		},
		Tools: ToolsConfig{
			ExecTimeoutSeconds: 30,
			MaxIterations:      20,
			MaxResultLen:       10000,
			Watch:              true,
		},
		Memory: MemoryConfig{
			DigestFacts: 20,
		},
		Sessions: SessionsConfig{
			HistoryLimit: 40,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9091,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Pretty:    true,
			Redaction: true,
		},
	}
}
