package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const DefaultPath = "config/jowie.json"

type AppConfig struct {
	Logging  LoggingConfig  `json:"logging" toml:"logging"`
	Audio    AudioConfig    `json:"audio" toml:"audio"`
	Listener ListenerConfig `json:"listener" toml:"listener"`
	Intent   IntentConfig   `json:"intent" toml:"intent"`
	STT      STTConfig      `json:"stt" toml:"stt"`
	LLM      LLMConfig      `json:"llm" toml:"llm"`
	TTS      TTSConfig      `json:"tts" toml:"tts"`
	Tools    ToolsConfig    `json:"tools" toml:"tools"`
	Journal  JournalConfig  `json:"journal" toml:"journal"`
	Tracing  TracingConfig  `json:"tracing" toml:"tracing"`
}

type LoggingConfig struct {
	Level  string `json:"level" toml:"level"`
	Format string `json:"format" toml:"format"`
}

type AudioConfig struct {
	SampleRate int `json:"sample_rate" toml:"sample_rate"`
	// FrameMs 送入 endpointer 的固定帧长
	FrameMs      int    `json:"frame_ms" toml:"frame_ms"`
	InputDevice  string `json:"input_device" toml:"input_device"`
	SettingsPath string `json:"settings_path" toml:"settings_path"`
	// QueueSeconds 采集回调与处理线程之间的缓冲时长
	QueueSeconds int `json:"queue_seconds" toml:"queue_seconds"`
	// UtteranceQueue 待转写语句队列长度
	UtteranceQueue int `json:"utterance_queue" toml:"utterance_queue"`
}

type ListenerConfig struct {
	UseVAD               bool    `json:"use_vad" toml:"use_vad"`
	VADThreshold         float64 `json:"vad_threshold" toml:"vad_threshold"`
	VADFrameMs           int     `json:"vad_frame_ms" toml:"vad_frame_ms"`
	MaxSilenceDuration   float64 `json:"max_silence_duration" toml:"max_silence_duration"`
	MinCommandDuration   float64 `json:"min_command_duration" toml:"min_command_duration"`
	MaxUtteranceDuration float64 `json:"max_utterance_duration" toml:"max_utterance_duration"`
	Normalize            bool    `json:"normalize" toml:"normalize"`
	TargetDB             float64 `json:"target_db" toml:"target_db"`
}

type IntentConfig struct {
	// Mode: pattern | fuzzy | any
	Mode           string   `json:"mode" toml:"mode"`
	Names          []string `json:"names" toml:"names"`
	Greetings      []string `json:"greetings" toml:"greetings"`
	Cues           []string `json:"cues" toml:"cues"`
	AllowBareCue   bool     `json:"allow_bare_cue" toml:"allow_bare_cue"`
	WakePhrases    []string `json:"wake_phrases" toml:"wake_phrases"`
	FuzzyThreshold float64  `json:"fuzzy_threshold" toml:"fuzzy_threshold"`
}

type STTConfig struct {
	// Provider: whisper | dashscope
	Provider       string `json:"provider" toml:"provider"`
	BaseURL        string `json:"base_url" toml:"base_url"`
	APIKey         string `json:"api_key" toml:"api_key"`
	Model          string `json:"model" toml:"model"`
	Language       string `json:"language" toml:"language"`
	Endpoint       string `json:"endpoint" toml:"endpoint"`
	TimeoutSeconds int    `json:"timeout_seconds" toml:"timeout_seconds"`
}

type LLMConfig struct {
	APIKey         string `json:"api_key" toml:"api_key"`
	BaseURL        string `json:"base_url" toml:"base_url"`
	Model          string `json:"model" toml:"model"`
	SystemPrompt   string `json:"system_prompt" toml:"system_prompt"`
	Stream         bool   `json:"stream" toml:"stream"`
	BatchFollowUp  bool   `json:"batch_follow_up" toml:"batch_follow_up"`
	TimeoutSeconds int    `json:"timeout_seconds" toml:"timeout_seconds"`
}

type TTSConfig struct {
	// Provider: kokoro | dashscope
	Provider       string  `json:"provider" toml:"provider"`
	APIKey         string  `json:"api_key" toml:"api_key"`
	BaseURL        string  `json:"base_url" toml:"base_url"`
	Model          string  `json:"model" toml:"model"`
	Voice          string  `json:"voice" toml:"voice"`
	Format         string  `json:"format" toml:"format"`
	Speed          float64 `json:"speed" toml:"speed"`
	Endpoint       string  `json:"endpoint" toml:"endpoint"`
	SampleRate     int     `json:"sample_rate" toml:"sample_rate"`
	TimeoutSeconds int     `json:"timeout_seconds" toml:"timeout_seconds"`
	QueueSize      int     `json:"queue_size" toml:"queue_size"`
}

type ToolsConfig struct {
	WeatherURL     string `json:"weather_url" toml:"weather_url"`
	BraveAPIKey    string `json:"brave_api_key" toml:"brave_api_key"`
	SearchResults  int    `json:"search_results" toml:"search_results"`
	TimeoutSeconds int    `json:"timeout_seconds" toml:"timeout_seconds"`
}

type JournalConfig struct {
	Enable bool   `json:"enable" toml:"enable"`
	Path   string `json:"path" toml:"path"`
}

type TracingConfig struct {
	Endpoint string `json:"endpoint" toml:"endpoint"`
	URLPath  string `json:"url_path" toml:"url_path"`
	APIKey   string `json:"api_key" toml:"api_key"`
}

func DefaultConfig() *AppConfig {
	return &AppConfig{
		Logging: LoggingConfig{},
		Audio: AudioConfig{
			SampleRate:     16000,
			FrameMs:        500,
			SettingsPath:   "settings.json",
			QueueSeconds:   10,
			UtteranceQueue: 4,
		},
		Listener: ListenerConfig{
			UseVAD:               true,
			VADThreshold:         0.015,
			VADFrameMs:           30,
			MaxSilenceDuration:   1.2,
			MinCommandDuration:   1.0,
			MaxUtteranceDuration: 30,
			Normalize:            false,
			TargetDB:             -20,
		},
		Intent: IntentConfig{
			Mode:         "pattern",
			Names:        []string{"jowie", "joey", "jowy", "jowey", "jowee", "jerry", "jawie", "joby", "joe"},
			Greetings:    []string{"hey", "hi", "hello", "hallo", "hei"},
			Cues:         []string{"can you", "could you", "would you", "please", "tell me", "what", "how", "do you", "show me"},
			AllowBareCue: true,
			WakePhrases: []string{
				"hey orion", "hi orion", "hello orion", "joey", "jowie", "orion",
				"jowey", "jowy", "jowey voice assistant", "hey jowie", "hi jowie", "hello jowie",
			},
			FuzzyThreshold: 0.75,
		},
		STT: STTConfig{
			Provider:       "whisper",
			BaseURL:        "http://localhost:8000/v1",
			Model:          "Systran/faster-whisper-base.en",
			Language:       "en",
			Endpoint:       "wss://dashscope.aliyuncs.com/api-ws/v1/inference",
			TimeoutSeconds: 30,
		},
		LLM: LLMConfig{
			BaseURL:        "http://localhost:11434/v1",
			Model:          "llama3.2:3b",
			TimeoutSeconds: 60,
		},
		TTS: TTSConfig{
			Provider:       "kokoro",
			BaseURL:        "http://localhost:8880/v1",
			Model:          "kokoro",
			Voice:          "af_heart",
			Format:         "wav",
			Speed:          1.0,
			TimeoutSeconds: 30,
			QueueSize:      32,
		},
		Tools: ToolsConfig{
			WeatherURL:     "http://wttr.in",
			SearchResults:  3,
			TimeoutSeconds: 5,
		},
		Journal: JournalConfig{
			Enable: true,
			Path:   "~/.local/share/jowie/journal.db",
		},
	}
}

// Load 读取 JSON 或 TOML 配置（按扩展名），文件不存在时使用默认值
func Load(path string) (*AppConfig, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = DefaultPath
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg.ApplyEnv()
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.ApplyEnv()
	return cfg, cfg.Validate()
}

func (c *AppConfig) ApplyEnv() {
	if level := strings.TrimSpace(os.Getenv("LOG_LEVEL")); level != "" {
		c.Logging.Level = level
	}
	if format := strings.TrimSpace(os.Getenv("LOG_FORMAT")); format != "" {
		c.Logging.Format = format
	}

	if key := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); key != "" {
		c.LLM.APIKey = key
		if strings.TrimSpace(c.STT.APIKey) == "" {
			c.STT.APIKey = key
		}
	}
	if key := strings.TrimSpace(os.Getenv("JOWIE_LLM_API_KEY")); key != "" {
		c.LLM.APIKey = key
	}
	if dash := strings.TrimSpace(os.Getenv("DASHSCOPE_API_KEY")); dash != "" {
		if c.STT.Provider == "dashscope" {
			c.STT.APIKey = dash
		}
		if c.TTS.Provider == "dashscope" {
			c.TTS.APIKey = dash
		}
	}
	if brave := strings.TrimSpace(os.Getenv("BRAVE_API_KEY")); brave != "" {
		c.Tools.BraveAPIKey = brave
	}
	if endpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")); endpoint != "" {
		c.Tracing.Endpoint = endpoint
	}
}

func (c *AppConfig) Validate() error {
	if c.Audio.SampleRate <= 0 {
		return errors.New("audio.sample_rate must be positive")
	}
	if c.Audio.FrameMs <= 0 {
		return errors.New("audio.frame_ms must be positive")
	}
	if c.Audio.QueueSeconds <= 0 {
		return errors.New("audio.queue_seconds must be positive")
	}
	if c.Audio.UtteranceQueue <= 0 {
		return errors.New("audio.utterance_queue must be positive")
	}

	l := c.Listener
	if l.MaxSilenceDuration <= 0 {
		return errors.New("listener.max_silence_duration must be positive")
	}
	if l.MinCommandDuration < 0 {
		return errors.New("listener.min_command_duration must be non-negative")
	}
	if l.MaxUtteranceDuration < l.MinCommandDuration {
		return errors.New("listener.max_utterance_duration must not be shorter than min_command_duration")
	}
	if l.UseVAD && l.VADFrameMs <= 0 {
		return errors.New("listener.vad_frame_ms must be positive")
	}
	if l.Normalize && l.TargetDB > 0 {
		return errors.New("listener.target_db must be at most 0 dBFS")
	}

	switch strings.ToLower(strings.TrimSpace(c.Intent.Mode)) {
	case "pattern", "fuzzy", "any":
	default:
		return fmt.Errorf("invalid intent mode: %s", c.Intent.Mode)
	}
	if c.Intent.FuzzyThreshold <= 0 || c.Intent.FuzzyThreshold > 1 {
		return errors.New("intent.fuzzy_threshold must be in (0, 1]")
	}

	switch strings.ToLower(strings.TrimSpace(c.STT.Provider)) {
	case "whisper", "dashscope":
	default:
		return fmt.Errorf("invalid stt provider: %s", c.STT.Provider)
	}

	switch strings.ToLower(strings.TrimSpace(c.TTS.Provider)) {
	case "kokoro", "dashscope":
	default:
		return fmt.Errorf("invalid tts provider: %s", c.TTS.Provider)
	}

	if c.LLM.TimeoutSeconds <= 0 {
		return errors.New("llm.timeout_seconds must be positive")
	}
	if c.TTS.TimeoutSeconds <= 0 {
		return errors.New("tts.timeout_seconds must be positive")
	}
	if c.TTS.QueueSize <= 0 {
		return errors.New("tts.queue_size must be positive")
	}
	if c.Tools.SearchResults < 0 {
		return errors.New("tools.search_results must be non-negative")
	}
	return nil
}

func (c *AppConfig) ValidateKeys(requireSTT, requireLLM bool) error {
	if requireSTT && c.STT.Provider == "dashscope" && strings.TrimSpace(c.STT.APIKey) == "" {
		return errors.New("stt api_key is required for dashscope")
	}
	if requireLLM && strings.TrimSpace(c.LLM.APIKey) == "" && !isLocalURL(c.LLM.BaseURL) {
		return errors.New("llm api_key is required for remote backends")
	}
	return nil
}

func isLocalURL(raw string) bool {
	raw = strings.ToLower(raw)
	return strings.Contains(raw, "://localhost") || strings.Contains(raw, "://127.0.0.1")
}
