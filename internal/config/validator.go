package config

import (
	"fmt"
	"strings"
)

// Validate checks that the configuration can actually run the daemon.
// It returns all problems at once so the operator fixes them in one pass.
func Validate(cfg *Config) error {
	var problems []string

	if cfg.Telegram.BotToken == "" {
		problems = append(problems, "telegram.bot_token is required (or set EVO_TELEGRAM_BOT_TOKEN)")
	}

	switch cfg.Provider.Name {
	case "anthropic":
		if cfg.Provider.AnthropicAPIKey == "" {
			problems = append(problems, "provider.anthropic_api_key is required for provider anthropic")
		}
	case "openai":
		if cfg.Provider.OpenAIAPIKey == "" {
			problems = append(problems, "provider.openai_api_key is required for provider openai")
		}
	default:
		problems = append(problems, fmt.Sprintf("provider.name %q is not supported (anthropic, openai)", cfg.Provider.Name))
	}

	if cfg.Provider.MaxTokens <= 0 {
		problems = append(problems, "provider.max_tokens must be positive")
	}
	if cfg.Provider.Temperature < 0 || cfg.Provider.Temperature > 2 {
		problems = append(problems, "provider.temperature must be between 0 and 2")
	}

	if cfg.Tools.ExecTimeoutSeconds <= 0 {
		problems = append(problems, "tools.exec_timeout_seconds must be positive")
	}
	if cfg.Tools.MaxIterations <= 0 {
		problems = append(problems, "tools.max_iterations must be positive")
	}

	if cfg.Metrics.Enabled && (cfg.Metrics.Port <= 0 || cfg.Metrics.Port > 65535) {
		problems = append(problems, "metrics.port must be a valid TCP port")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

// Warnings returns non-fatal configuration concerns.
func Warnings(cfg *Config) []string {
	var warnings []string
	if len(cfg.Telegram.Allowlist) == 0 {
		warnings = append(warnings, "telegram.allowlist is empty; anyone can talk to the bot")
	}
	if cfg.Search.BraveAPIKey == "" {
		warnings = append(warnings, "search.brave_api_key is unset; web_search will be unavailable")
	}
	return warnings
}
