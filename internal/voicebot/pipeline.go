package voicebot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/liuscraft/jowie/internal/audio"
	"github.com/liuscraft/jowie/internal/audio/source"
	"github.com/liuscraft/jowie/internal/chat"
	"github.com/liuscraft/jowie/internal/dialogue"
	"github.com/liuscraft/jowie/internal/intent"
	"github.com/liuscraft/jowie/internal/listener"
	"github.com/liuscraft/jowie/internal/logging"
	"github.com/liuscraft/jowie/internal/stt"
)

// ErrCapture 采集故障，管线随之停止
var ErrCapture = errors.New("capture fault")

// Dialogue 对话编排器的最小接口
type Dialogue interface {
	Ask(ctx context.Context, input string) (*dialogue.TurnResult, error)
}

// Speaker 语音输出
type Speaker interface {
	Speak(text string) error
}

// Components 管线依赖的组件
type Components struct {
	Source      source.Source
	Endpointer  *listener.Endpointer
	Transcriber stt.Transcriber
	Gate        intent.Matcher
	Dialogue    Dialogue
	// Speaker 仅在配置了 Acknowledgement 时使用
	Speaker Speaker
}

type Config struct {
	// FrameSamples 送入 endpointer 的固定帧长（采样数）
	FrameSamples int
	// UtteranceQueue 待转写语句队列长度，满了就丢弃新语句
	UtteranceQueue int
	// TranscribeTimeout 单次转写超时，0 表示不限
	TranscribeTimeout time.Duration
	// Acknowledgement 意图通过后、进入对话前播报的短句
	Acknowledgement string
}

func DefaultConfig() Config {
	return Config{
		FrameSamples:      8000,
		UtteranceQueue:    4,
		TranscribeTimeout: 30 * time.Second,
	}
}

// Pipeline 语音命令管线：
// 第一阶段 采集 → 分帧 → endpointer；第二阶段 转写 → 意图判断 → 对话。
type Pipeline struct {
	cfg   Config
	c     Components
	bus   EventBus
	state *StateMachine
}

func NewPipeline(cfg Config, c Components) (*Pipeline, error) {
	def := DefaultConfig()
	if cfg.FrameSamples <= 0 {
		cfg.FrameSamples = def.FrameSamples
	}
	if cfg.UtteranceQueue <= 0 {
		cfg.UtteranceQueue = def.UtteranceQueue
	}
	switch {
	case c.Source == nil:
		return nil, errors.New("pipeline: source is required")
	case c.Endpointer == nil:
		return nil, errors.New("pipeline: endpointer is required")
	case c.Transcriber == nil:
		return nil, errors.New("pipeline: transcriber is required")
	case c.Gate == nil:
		return nil, errors.New("pipeline: intent gate is required")
	case c.Dialogue == nil:
		return nil, errors.New("pipeline: dialogue is required")
	case cfg.Acknowledgement != "" && c.Speaker == nil:
		return nil, errors.New("pipeline: speaker is required for acknowledgements")
	}
	return &Pipeline{
		cfg:   cfg,
		c:     c,
		bus:   NewEventBus(),
		state: NewStateMachine(),
	}, nil
}

// Events 返回管线的事件总线
func (p *Pipeline) Events() EventBus {
	return p.bus
}

// GetState 获取当前状态
func (p *Pipeline) GetState() State {
	return p.state.GetCurrentState()
}

// ToolFailed 供 dialogue.Orchestrator.OnToolError 使用
func (p *Pipeline) ToolFailed(call chat.ToolCall, err error) {
	p.bus.Publish(NewToolFailedEvent(call.Name, err))
}

// Run 阻塞直到 ctx 取消、音频源结束或采集故障。
// 音频源正常结束时，已排队的语句会处理完再返回。
func (p *Pipeline) Run(ctx context.Context) error {
	if err := p.c.Source.Start(); err != nil {
		return fmt.Errorf("%w: %w", ErrCapture, err)
	}
	defer func() {
		if err := p.c.Source.Close(); err != nil {
			logging.Warnf("Pipeline: close source: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	utterances := make(chan *listener.Utterance, p.cfg.UtteranceQueue)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.respond(ctx, utterances)
	}()

	p.transitionTo(StateListening)
	logging.Infof("Pipeline: listening (rate=%d, frame=%d samples)", p.c.Source.SampleRate(), p.cfg.FrameSamples)

	err := p.capture(ctx, utterances)
	if err != nil {
		logging.Errorf("Pipeline: %v", err)
		cancel()
	}
	close(utterances)
	wg.Wait()

	p.transitionTo(StateIdle)
	return err
}

// capture 第一阶段，从不在 endpointer 上阻塞
func (p *Pipeline) capture(ctx context.Context, out chan<- *listener.Utterance) error {
	assembler := audio.NewFrameAssembler(p.cfg.FrameSamples)
	for {
		block, err := p.c.Source.Read(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%w: %w", ErrCapture, err)
		}

		for _, frame := range assembler.Push(block) {
			u, ok := p.c.Endpointer.Feed(frame)
			if !ok {
				continue
			}
			logging.Debugf("Pipeline: utterance finalized (%v, truncated=%v)", u.Duration(), u.Truncated)
			p.bus.Publish(NewUtteranceFinalizedEvent(u.Duration(), u.Truncated))

			select {
			case out <- u:
			default:
				logging.Warnf("Pipeline: utterance queue full, dropping %v of audio", u.Duration())
				p.bus.Publish(NewUtteranceDroppedEvent(u.Duration()))
			}
		}
	}
}

// respond 第二阶段，按顺序一次处理一条语句
func (p *Pipeline) respond(ctx context.Context, in <-chan *listener.Utterance) {
	for u := range in {
		if ctx.Err() != nil {
			continue
		}
		p.handle(ctx, u)
	}
}

func (p *Pipeline) handle(ctx context.Context, u *listener.Utterance) {
	p.transitionTo(StateTranscribing)
	defer p.transitionTo(StateListening)

	text := strings.TrimSpace(p.transcribe(ctx, u))
	if text == "" || !p.c.Gate.Matches(text) {
		logging.Infof("Pipeline: ignored transcript %q", text)
		p.bus.Publish(NewTranscriptIgnoredEvent(text))
		return
	}

	logging.Infof("Pipeline: accepted transcript %q", text)
	p.bus.Publish(NewTranscriptAcceptedEvent(text))

	if p.cfg.Acknowledgement != "" {
		if err := p.c.Speaker.Speak(p.cfg.Acknowledgement); err != nil {
			logging.Warnf("Pipeline: acknowledgement not spoken: %v", err)
		}
	}

	p.transitionTo(StateThinking)
	res, err := p.c.Dialogue.Ask(ctx, text)
	if err != nil {
		logging.Errorf("Pipeline: turn failed: %v", err)
	}
	p.bus.Publish(NewTurnFinishedEvent(res, err))
}

// transcribe 转写失败按空文本处理
func (p *Pipeline) transcribe(ctx context.Context, u *listener.Utterance) string {
	if p.cfg.TranscribeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.TranscribeTimeout)
		defer cancel()
	}

	start := time.Now()
	text, err := p.c.Transcriber.Transcribe(ctx, u.Samples, u.SampleRate)
	if err != nil {
		logging.Errorf("Pipeline: transcription failed after %v: %v", time.Since(start), err)
		return ""
	}
	logging.Debugf("Pipeline: transcribed %v of audio in %v", u.Duration(), time.Since(start))
	return text
}

func (p *Pipeline) transitionTo(to State) {
	from, ok := p.state.Transition(to)
	if !ok {
		if from != to {
			logging.Warnf("Pipeline: invalid state transition %s -> %s", from, to)
		}
		return
	}
	p.bus.Publish(NewStateChangedEvent(from, to))
}
