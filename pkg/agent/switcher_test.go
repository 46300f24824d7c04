package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSwitcher_DefaultsToConfiguredModel(t *testing.T) {
	s, err := NewSwitcher("anthropic", "sk-ant-test", Options{Model: "claude-sonnet-4-5"})
	require.NoError(t, err)

	assert.Equal(t, "anthropic", s.Provider())
	assert.Equal(t, "claude-sonnet-4-5", s.Model())
}

func TestSwitcher_SwitchReplacesModel(t *testing.T) {
	s, err := NewSwitcher("openai", "sk-test", Options{Model: "gpt-4o"})
	require.NoError(t, err)

	require.NoError(t, s.Switch("gpt-4o-mini"))
	assert.Equal(t, "gpt-4o-mini", s.Model())
	assert.Equal(t, "openai", s.Provider())
}

func TestSwitcher_RequiresValidProvider(t *testing.T) {
	_, err := NewSwitcher("cohere", "key", Options{})
	assert.Error(t, err)
}
