package telegram

import "strings"

// MessageLimit is Telegram's maximum message length in characters.
const MessageLimit = 4096

// ChunkMessage splits text into pieces no longer than limit, preferring to
// break on paragraph and line boundaries so code blocks and lists survive
// splitting as well as they can.
func ChunkMessage(text string, limit int) []string {
	if limit <= 0 {
		limit = MessageLimit
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}

	var chunks []string
	for len(runes) > limit {
		cut := breakPoint(runes, limit)
		chunks = append(chunks, strings.TrimRight(string(runes[:cut]), "\n"))
		runes = runes[cut:]
		for len(runes) > 0 && runes[0] == '\n' {
			runes = runes[1:]
		}
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}

// breakPoint finds where to cut the next chunk: the last paragraph break
// within the window, else the last newline, else a hard cut at the limit.
func breakPoint(runes []rune, limit int) int {
	window := string(runes[:limit])
	if i := strings.LastIndex(window, "\n\n"); i > 0 {
		return i
	}
	if i := strings.LastIndex(window, "\n"); i > 0 {
		return i
	}
	return limit
}
