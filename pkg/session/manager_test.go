package session

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halim/evo/pkg/dispatch"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := New(t.TempDir())
	require.NoError(t, err)
	return m
}

func TestAppendAndLoad(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.Append("chat_42", dispatch.Message{Role: "user", Content: "hello"}))
	require.NoError(t, m.Append("chat_42", dispatch.Message{Role: "assistant", Content: "hi there"}))

	messages, err := m.Load("chat_42", 0)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "user", messages[0].Role)
	assert.Equal(t, "hello", messages[0].Content)
	assert.Equal(t, "assistant", messages[1].Role)
}

func TestLoad_MissingSessionIsEmpty(t *testing.T) {
	m := newTestManager(t)

	messages, err := m.Load("nope", 0)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestLoad_LimitKeepsMostRecent(t *testing.T) {
	m := newTestManager(t)

	for _, text := range []string{"one", "two", "three", "four"} {
		require.NoError(t, m.Append("chat", dispatch.Message{Role: "user", Content: text}))
	}

	messages, err := m.Load("chat", 2)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "three", messages[0].Content)
	assert.Equal(t, "four", messages[1].Content)
}

func TestLoad_SkipsDamagedLines(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.Append("chat", dispatch.Message{Role: "user", Content: "good"}))

	// Simulate a torn write.
	file, err := os.OpenFile(filepath.Join(m.dir, "chat.jsonl"), os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	_, err = file.WriteString(`{"timestamp": "2026-01-01T00:00:00Z", "mess`)
	require.NoError(t, err)
	require.NoError(t, file.Close())

	require.NoError(t, m.Append("chat", dispatch.Message{Role: "assistant", Content: "also good"}))

	messages, err := m.Load("chat", 0)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "good", messages[0].Content)
}

func TestReset(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.Append("chat", dispatch.Message{Role: "user", Content: "x"}))
	require.NoError(t, m.Reset("chat"))

	messages, err := m.Load("chat", 0)
	require.NoError(t, err)
	assert.Empty(t, messages)

	// Resetting again is fine.
	assert.NoError(t, m.Reset("chat"))
}

func TestList(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.Append("zeta", dispatch.Message{Role: "user", Content: "x"}))
	require.NoError(t, m.Append("alpha", dispatch.Message{Role: "user", Content: "x"}))

	keys, err := m.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "zeta"}, keys)
}

func TestValidateKey(t *testing.T) {
	assert.NoError(t, ValidateKey("chat_42"))
	for _, key := range []string{"", "../etc", "a/b", "a\\b", "nul\x00l"} {
		assert.Error(t, ValidateKey(key), "key %q should be rejected", key)
	}
}

func TestAppend_RejectsEmptyRole(t *testing.T) {
	m := newTestManager(t)
	assert.Error(t, m.Append("chat", dispatch.Message{Content: "no role"}))
}

func TestConcurrentAppendsSameSession(t *testing.T) {
	m := newTestManager(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				assert.NoError(t, m.Append("busy", dispatch.Message{Role: "user", Content: "m"}))
			}
		}()
	}
	wg.Wait()

	messages, err := m.Load("busy", 0)
	require.NoError(t, err)
	assert.Len(t, messages, 100)
}

func TestStat(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.Append("chat", dispatch.Message{Role: "user", Content: "x"}))

	size, modified, count, err := m.Stat("chat")
	require.NoError(t, err)
	assert.Positive(t, size)
	assert.False(t, modified.IsZero())
	assert.Equal(t, 1, count)

	_, _, _, err = m.Stat("missing")
	assert.Error(t, err)
}
