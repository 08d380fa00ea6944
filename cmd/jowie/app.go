package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/liuscraft/jowie/internal/audio/player"
	"github.com/liuscraft/jowie/internal/chat"
	"github.com/liuscraft/jowie/internal/config"
	"github.com/liuscraft/jowie/internal/dialogue"
	"github.com/liuscraft/jowie/internal/intent"
	"github.com/liuscraft/jowie/internal/journal"
	"github.com/liuscraft/jowie/internal/listener"
	"github.com/liuscraft/jowie/internal/logging"
	"github.com/liuscraft/jowie/internal/speech"
	"github.com/liuscraft/jowie/internal/stt"
	"github.com/liuscraft/jowie/internal/tools"
	"github.com/liuscraft/jowie/internal/trace"
	"github.com/liuscraft/jowie/internal/tts"
)

// app 各子命令共享的运行时
type app struct {
	cfg      *config.AppConfig
	shutdown []func(context.Context) error
}

// setup 加载配置、初始化日志和链路追踪
func setup(ctx context.Context, requireSTT, requireLLM bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateKeys(requireSTT, requireLLM); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if err := logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format}); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	logging.SetTraceID(logging.NewTraceID())

	a := &app{cfg: cfg}
	shutdownTrace, err := trace.Init(ctx, trace.Config{
		Endpoint: cfg.Tracing.Endpoint,
		URLPath:  cfg.Tracing.URLPath,
		APIKey:   cfg.Tracing.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	a.onClose(shutdownTrace)
	return a, nil
}

func (a *app) onClose(fn func(context.Context) error) {
	a.shutdown = append(a.shutdown, fn)
}

// close 逆序释放资源
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := len(a.shutdown) - 1; i >= 0; i-- {
		if err := a.shutdown[i](ctx); err != nil {
			logging.Warnf("shutdown: %v", err)
		}
	}
	logging.Sync()
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// initPortAudio 所有音频组件共用一次初始化
func (a *app) initPortAudio() error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initialize portaudio: %w", err)
	}
	a.onClose(func(context.Context) error { return portaudio.Terminate() })
	return nil
}

// startSpeech 创建并启动语音输出队列，通过 PortAudio 默认输出设备播放
func (a *app) startSpeech(ctx context.Context) (*speech.Output, error) {
	c := a.cfg.TTS
	synth, err := buildSynthesizer(c)
	if err != nil {
		return nil, fmt.Errorf("synthesizer: %w", err)
	}

	out := speech.NewOutput(speech.Config{
		QueueSize:        c.QueueSize,
		SynthesisTimeout: time.Duration(c.TimeoutSeconds) * time.Second,
	}, synth, player.NewPortAudioPlayer(player.DefaultConfig()))
	if err := out.Start(ctx); err != nil {
		return nil, err
	}
	a.onClose(func(ctx context.Context) error {
		if err := out.Drain(ctx); err != nil {
			logging.Warnf("speech output not drained: %v", err)
		}
		out.Stop()
		st := out.Stats()
		logging.Infof("speech output: enqueued=%d played=%d failed=%d rejected=%d",
			st.Enqueued, st.Played, st.Failed, st.Rejected)
		return nil
	})
	return out, nil
}

// newOrchestrator 组装聊天后端、工具和对话编排器；journal 可以为 nil
func (a *app) newOrchestrator(ctx context.Context, speaker dialogue.Speaker, j *journal.Journal) (*dialogue.Orchestrator, error) {
	l := a.cfg.LLM
	backend, err := chat.NewOpenAIBackend(ctx, chat.OpenAIConfig{
		BaseURL: l.BaseURL,
		APIKey:  l.APIKey,
		Model:   l.Model,
		Timeout: time.Duration(l.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return nil, err
	}

	t := a.cfg.Tools
	registry, err := tools.NewBuiltinRegistry(tools.Config{
		WeatherURL:    t.WeatherURL,
		BraveAPIKey:   t.BraveAPIKey,
		SearchResults: t.SearchResults,
		Timeout:       time.Duration(t.TimeoutSeconds) * time.Second,
	}, speaker)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0)
	for _, s := range registry.Specs() {
		names = append(names, s.Name)
	}
	logging.Infof("tools registered: %s", strings.Join(names, ", "))

	orch := dialogue.NewOrchestrator(dialogue.Config{
		SystemPrompt:      l.SystemPrompt,
		CompletionTimeout: time.Duration(l.TimeoutSeconds) * time.Second,
		Stream:            l.Stream,
		BatchFollowUp:     l.BatchFollowUp,
	}, backend, registry, speaker)

	if j != nil {
		orch.OnTurnFinished(func(res *dialogue.TurnResult) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := j.Record(ctx, res); err != nil {
				logging.Warnf("journal: %v", err)
			}
		})
	}
	return orch, nil
}

// openJournal 未启用时返回 nil
func (a *app) openJournal() (*journal.Journal, error) {
	if !a.cfg.Journal.Enable {
		return nil, nil
	}
	j, err := journal.Open(a.cfg.Journal.Path)
	if err != nil {
		return nil, err
	}
	a.onClose(func(context.Context) error { return j.Close() })
	return j, nil
}

func buildGate(c config.IntentConfig) (intent.Matcher, error) {
	pattern := func() (intent.Matcher, error) {
		return intent.NewPatternMatcher(intent.PatternConfig{
			Names:        c.Names,
			Greetings:    c.Greetings,
			Cues:         c.Cues,
			AllowBareCue: c.AllowBareCue,
		})
	}
	fuzzy := func() (intent.Matcher, error) {
		return intent.NewFuzzyMatcher(c.WakePhrases, c.FuzzyThreshold)
	}

	switch strings.ToLower(strings.TrimSpace(c.Mode)) {
	case "fuzzy":
		return fuzzy()
	case "any":
		p, err := pattern()
		if err != nil {
			return nil, err
		}
		f, err := fuzzy()
		if err != nil {
			return nil, err
		}
		return intent.AnyOf{p, f}, nil
	default:
		return pattern()
	}
}

func buildTranscriber(c config.STTConfig) (stt.Transcriber, error) {
	timeout := time.Duration(c.TimeoutSeconds) * time.Second
	if strings.EqualFold(c.Provider, "dashscope") {
		var hints []string
		if c.Language != "" {
			hints = []string{c.Language}
		}
		// 默认模型是 whisper 的，DashScope 用自己的默认值
		model := c.Model
		if model == config.DefaultConfig().STT.Model {
			model = ""
		}
		return stt.NewDashScopeTranscriber(stt.DashScopeConfig{
			APIKey:        c.APIKey,
			Endpoint:      c.Endpoint,
			Model:         model,
			LanguageHints: hints,
			Timeout:       timeout,
		})
	}
	return stt.NewWhisperTranscriber(stt.WhisperConfig{
		BaseURL:  c.BaseURL,
		APIKey:   c.APIKey,
		Model:    c.Model,
		Language: c.Language,
		Timeout:  timeout,
	}), nil
}

func buildSynthesizer(c config.TTSConfig) (tts.Synthesizer, error) {
	timeout := time.Duration(c.TimeoutSeconds) * time.Second
	if strings.EqualFold(c.Provider, "dashscope") {
		// 默认模型和音色是 Kokoro 的，DashScope 用自己的默认值
		def := config.DefaultConfig().TTS
		model, voice := c.Model, c.Voice
		if model == def.Model {
			model = ""
		}
		if voice == def.Voice {
			voice = ""
		}
		return tts.NewDashScopeSynthesizer(tts.DashScopeConfig{
			APIKey:     c.APIKey,
			Endpoint:   c.Endpoint,
			Model:      model,
			Voice:      voice,
			SampleRate: c.SampleRate,
			Rate:       c.Speed,
			Timeout:    timeout,
		})
	}
	return tts.NewSpeechClient(tts.Config{
		BaseURL: c.BaseURL,
		APIKey:  c.APIKey,
		Model:   c.Model,
		Voice:   c.Voice,
		Format:  c.Format,
		Speed:   c.Speed,
		Timeout: timeout,
	}), nil
}

func listenerConfig(cfg *config.AppConfig) listener.Config {
	l := cfg.Listener
	return listener.Config{
		SampleRate:           cfg.Audio.SampleRate,
		MaxSilenceDuration:   seconds(l.MaxSilenceDuration),
		MinCommandDuration:   seconds(l.MinCommandDuration),
		MaxUtteranceDuration: seconds(l.MaxUtteranceDuration),
		Normalize:            l.Normalize,
		TargetDB:             l.TargetDB,
	}
}
