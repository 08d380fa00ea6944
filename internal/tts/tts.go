package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/liuscraft/jowie/internal/logging"
	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var ErrEmptyText = errors.New("tts: empty text")

// Synthesizer 把文本合成为完整的音频容器（WAV）
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Voice   string
	Format  string
	Speed   float64
	Timeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8880/v1",
		Model:   "kokoro",
		Voice:   "af_heart",
		Format:  "wav",
		Speed:   1.0,
		Timeout: 30 * time.Second,
	}
}

// SpeechClient 调用 OpenAI 兼容的 /audio/speech 接口（Kokoro-FastAPI 等）
type SpeechClient struct {
	client *openai.Client
	cfg    Config
}

func NewSpeechClient(cfg Config) *SpeechClient {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Voice == "" {
		cfg.Voice = def.Voice
	}
	if cfg.Format == "" {
		cfg.Format = def.Format
	}
	if cfg.Speed <= 0 {
		cfg.Speed = def.Speed
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	// 本地 Kokoro 不校验 key，但客户端总会带上 Authorization
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = "not-needed"
	}
	clientCfg := openai.DefaultConfig(apiKey)
	clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	clientCfg.HTTPClient = &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	return &SpeechClient{client: openai.NewClientWithConfig(clientCfg), cfg: cfg}
}

func (c *SpeechClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(c.cfg.Model),
		Input:          text,
		Voice:          openai.SpeechVoice(c.cfg.Voice),
		ResponseFormat: openai.SpeechResponseFormat(c.cfg.Format),
		Speed:          c.cfg.Speed,
	})
	if err != nil {
		return nil, fmt.Errorf("tts: speech request: %w", err)
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("tts: read audio: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("tts: empty audio response")
	}

	logging.Debugf("SpeechClient: synthesized %d chars -> %d bytes in %v (voice=%s)",
		len(text), len(data), time.Since(start), c.cfg.Voice)
	return data, nil
}
