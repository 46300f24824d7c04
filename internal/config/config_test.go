package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "anthropic", cfg.Provider.Name)
	assert.Equal(t, 4096, cfg.Provider.MaxTokens)
	assert.Equal(t, 30, cfg.Tools.ExecTimeoutSeconds)
	assert.Equal(t, 20, cfg.Tools.MaxIterations)
	assert.True(t, cfg.Tools.Watch)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Redaction)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.Provider.Name)
	assert.NotEmpty(t, cfg.Tools.Dir)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{
		"provider": {"name": "openai", "model": "gpt-4o", "max_tokens": 2048},
		"telegram": {"bot_token": "123456789:AAHexampleexampleexampleexample123", "allowlist": [42]},
		"tools": {"max_iterations": 5},
		"data_dir": "` + dir + `"
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Provider.Name)
	assert.Equal(t, "gpt-4o", cfg.Provider.Model)
	assert.Equal(t, 2048, cfg.Provider.MaxTokens)
	assert.Equal(t, []int64{42}, cfg.Telegram.Allowlist)
	assert.Equal(t, 5, cfg.Tools.MaxIterations)

	// Unset fields keep their defaults.
	assert.Equal(t, 30, cfg.Tools.ExecTimeoutSeconds)
}

func TestLoad_PathsDerivedFromDataDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"data_dir": "`+dir+`"}`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "tools"), cfg.Tools.Dir)
	assert.Equal(t, filepath.Join(dir, "sessions"), cfg.Sessions.Dir)
	assert.Equal(t, filepath.Join(dir, "memory.db"), cfg.Memory.DBPath)
	assert.Equal(t, filepath.Join(dir, "tasks.json"), cfg.Scheduler.StorePath)
}

func TestLoad_EnvOverridesCredentials(t *testing.T) {
	t.Setenv("EVO_TELEGRAM_BOT_TOKEN", "env-token")
	t.Setenv("EVO_ANTHROPIC_API_KEY", "env-anthropic")

	cfg, err := Load(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)

	assert.Equal(t, "env-token", cfg.Telegram.BotToken)
	assert.Equal(t, "env-anthropic", cfg.Provider.AnthropicAPIKey)
}

func TestLoad_BadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	loader := NewLoader(path)

	cfg, err := loader.Load()
	require.NoError(t, err)
	cfg.Provider.Name = "openai"
	cfg.Telegram.Allowlist = []int64{7, 8}

	require.NoError(t, loader.Save(cfg))

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "openai", reloaded.Provider.Name)
	assert.Equal(t, []int64{7, 8}, reloaded.Telegram.Allowlist)
}
