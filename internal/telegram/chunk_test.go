package telegram

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkMessage_ShortTextUntouched(t *testing.T) {
	chunks := ChunkMessage("hello", MessageLimit)
	assert.Equal(t, []string{"hello"}, chunks)
}

func TestChunkMessage_SplitsOnParagraphs(t *testing.T) {
	text := strings.Repeat("a", 30) + "\n\n" + strings.Repeat("b", 30)

	chunks := ChunkMessage(text, 40)
	require.Len(t, chunks, 2)
	assert.Equal(t, strings.Repeat("a", 30), chunks[0])
	assert.Equal(t, strings.Repeat("b", 30), chunks[1])
}

func TestChunkMessage_FallsBackToLineBreaks(t *testing.T) {
	text := "first line\nsecond line\nthird line"

	chunks := ChunkMessage(text, 24)
	require.True(t, len(chunks) >= 2)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len([]rune(chunk)), 24)
	}
	assert.Equal(t, "first line\nsecond line\nthird line",
		strings.Join(chunks, "\n"))
}

func TestChunkMessage_HardCutWithoutNewlines(t *testing.T) {
	text := strings.Repeat("x", 100)

	chunks := ChunkMessage(text, 40)
	require.Len(t, chunks, 3)
	assert.Equal(t, 40, len(chunks[0]))
	assert.Equal(t, 40, len(chunks[1]))
	assert.Equal(t, 20, len(chunks[2]))
}

func TestChunkMessage_MultibyteSafe(t *testing.T) {
	text := strings.Repeat("é", 50)

	chunks := ChunkMessage(text, 20)
	require.Len(t, chunks, 3)
	for _, chunk := range chunks {
		assert.True(t, strings.HasPrefix(chunk, "é"))
	}
	assert.Equal(t, text, strings.Join(chunks, ""))
}
