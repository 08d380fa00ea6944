package stt

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/liuscraft/jowie/internal/audio"
	"github.com/liuscraft/jowie/internal/logging"
	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type WhisperConfig struct {
	BaseURL  string
	APIKey   string
	Model    string
	Language string
	Timeout  time.Duration
}

// WhisperTranscriber 调用 OpenAI 兼容的 /audio/transcriptions 接口
// （faster-whisper-server、speaches、OpenAI 等）
type WhisperTranscriber struct {
	client *openai.Client
	cfg    WhisperConfig
}

func NewWhisperTranscriber(cfg WhisperConfig) *WhisperTranscriber {
	if cfg.Model == "" {
		cfg.Model = openai.Whisper1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	clientCfg.HTTPClient = &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	return &WhisperTranscriber{
		client: openai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
	}
}

func (w *WhisperTranscriber) Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error) {
	if len(samples) == 0 {
		return "", ErrEmptyAudio
	}
	wav, err := audio.EncodeWAV(samples, sampleRate)
	if err != nil {
		return "", fmt.Errorf("stt: encode wav: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, w.cfg.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.cfg.Model,
		FilePath: "utterance.wav",
		Reader:   bytes.NewReader(wav),
		Language: w.cfg.Language,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", fmt.Errorf("stt: transcription request: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	logging.Debugf("WhisperTranscriber: %d samples transcribed in %v: %q", len(samples), time.Since(start), text)
	return text, nil
}
