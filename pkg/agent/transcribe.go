package agent

import (
	"context"
	"fmt"
	"io"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Transcriber converts voice audio to text through the Whisper API. Voice
// transcription always goes through OpenAI regardless of which provider is
// planning, so it takes its own API key.
type Transcriber struct {
	client openai.Client
	model  string
}

// NewTranscriber creates a transcriber. An empty model selects whisper-1.
func NewTranscriber(apiKey, model string) (*Transcriber, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key is required for transcription")
	}
	if model == "" {
		model = "whisper-1"
	}
	return &Transcriber{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}, nil
}

// Transcribe converts audio to text. The reader should supply OGG, MP3 or WAV
// audio as delivered by the transport.
func (t *Transcriber) Transcribe(ctx context.Context, audio io.Reader) (string, error) {
	response, err := t.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		Model: openai.AudioModel(t.model),
		File:  audio,
	})
	if err != nil {
		return "", fmt.Errorf("transcription failed: %w", err)
	}
	return response.Text, nil
}
