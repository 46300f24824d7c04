package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halim/evo/pkg/tools"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		names[cmd.Name()] = true
	}
	assert.True(t, names["start"])
	assert.True(t, names["tools"])
	assert.True(t, names["status"])
}

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{"data_dir": "` + dir + `", "provider": {"name": "anthropic"}}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute())
	return buf.String()
}

func TestToolsCommand_EmptyStore(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out := execute(t, "tools", "--config", cfgPath)
	assert.Contains(t, out, "No custom tools.")
}

func TestToolsCommand_ListsManifests(t *testing.T) {
	cfgPath := writeTestConfig(t)
	toolsDir := filepath.Join(filepath.Dir(cfgPath), "tools")

	store, err := tools.NewStore(toolsDir, nil)
	require.NoError(t, err)
	_, err = store.Put(tools.Manifest{
		Name:        "double",
		Description: "Doubles a number",
		Parameters:  []tools.Parameter{{Name: "n", Type: "number", Required: true}},
		Source:      "function run(args) { return String(args.n * 2); }",
	})
	require.NoError(t, err)

	out := execute(t, "tools", "--config", cfgPath)
	assert.Contains(t, out, "double")
	assert.Contains(t, out, "Doubles a number")
	assert.Contains(t, out, "n number (required)")
}

func TestStatusCommand(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out := execute(t, "status", "--config", cfgPath)
	assert.Contains(t, out, "Provider:  anthropic")
	assert.Contains(t, out, "Data dir:")
	assert.Contains(t, out, "invalid configuration")
}
