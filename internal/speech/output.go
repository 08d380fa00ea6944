package speech

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/liuscraft/jowie/internal/audio"
	"github.com/liuscraft/jowie/internal/logging"
	"github.com/liuscraft/jowie/internal/tts"
	"github.com/liuscraft/jowie/pkg/markdown"
)

var (
	ErrQueueFull = errors.New("speech: queue full")
	ErrStopped   = errors.New("speech: output stopped")
)

// Request 一条待朗读的文本
type Request struct {
	ID       string
	Text     string
	Enqueued time.Time
}

type Config struct {
	QueueSize        int
	SynthesisTimeout time.Duration
	// PlaybackTimeout 0 表示不限制
	PlaybackTimeout time.Duration
	// KeepMarkdown 关闭 Markdown 过滤
	KeepMarkdown bool
}

func DefaultConfig() Config {
	return Config{
		QueueSize:        32,
		SynthesisTimeout: 30 * time.Second,
	}
}

type Stats struct {
	Enqueued uint64
	Played   uint64
	Failed   uint64
	Rejected uint64
	Pending  int
}

// Output 单 worker 的 FIFO 合成 + 播放队列
type Output struct {
	cfg    Config
	synth  tts.Synthesizer
	player audio.Player
	queue  chan Request

	mu      sync.Mutex
	pending int
	waiters []chan error
	started bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}

	enqueued atomic.Uint64
	played   atomic.Uint64
	failed   atomic.Uint64
	rejected atomic.Uint64
}

func NewOutput(cfg Config, synth tts.Synthesizer, player audio.Player) *Output {
	def := DefaultConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.SynthesisTimeout <= 0 {
		cfg.SynthesisTimeout = def.SynthesisTimeout
	}
	return &Output{
		cfg:    cfg,
		synth:  synth,
		player: player,
		queue:  make(chan Request, cfg.QueueSize),
		done:   make(chan struct{}),
	}
}

// Start 启动 worker，只能调用一次
func (o *Output) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped {
		return ErrStopped
	}
	if o.started {
		return nil
	}
	o.started = true

	ctx, o.cancel = context.WithCancel(ctx)
	go o.run(ctx)
	logging.Infof("SpeechOutput: started (queue=%d)", o.cfg.QueueSize)
	return nil
}

// Stop 停止 worker，丢弃尚未播放的请求
func (o *Output) Stop() {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}
	o.stopped = true
	started := o.started
	cancel := o.cancel
	o.mu.Unlock()

	if started {
		cancel()
		<-o.done
		return
	}
	o.halt()
}

// Speak 入队后立即返回。空文本（过滤 Markdown 之后）直接忽略。
func (o *Output) Speak(text string) error {
	if !o.cfg.KeepMarkdown {
		text = markdown.Filter(text)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	req := Request{ID: uuid.NewString(), Text: text, Enqueued: time.Now()}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped {
		return ErrStopped
	}
	select {
	case o.queue <- req:
		o.pending++
		o.enqueued.Add(1)
		logging.Debugf("SpeechOutput: queued %s (%d pending): %q", req.ID[:8], o.pending, text)
		return nil
	default:
		o.rejected.Add(1)
		logging.Warnf("SpeechOutput: queue full, dropping %q", text)
		return ErrQueueFull
	}
}

// Drain 等待所有已入队的请求处理完。
// 输出在此期间停止时返回 ErrStopped。
func (o *Output) Drain(ctx context.Context) error {
	o.mu.Lock()
	if o.pending == 0 {
		o.mu.Unlock()
		return nil
	}
	ch := make(chan error, 1)
	o.waiters = append(o.waiters, ch)
	o.mu.Unlock()

	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Output) Stats() Stats {
	o.mu.Lock()
	pending := o.pending
	o.mu.Unlock()
	return Stats{
		Enqueued: o.enqueued.Load(),
		Played:   o.played.Load(),
		Failed:   o.failed.Load(),
		Rejected: o.rejected.Load(),
		Pending:  pending,
	}
}

func (o *Output) run(ctx context.Context) {
	defer close(o.done)
	defer o.halt()
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-o.queue:
			o.process(ctx, req)
			o.finish()
		}
	}
}

func (o *Output) process(ctx context.Context, req Request) {
	start := time.Now()
	synthCtx, cancel := context.WithTimeout(ctx, o.cfg.SynthesisTimeout)
	data, err := o.synth.Synthesize(synthCtx, req.Text)
	cancel()
	if err != nil {
		o.failed.Add(1)
		logging.Errorf("SpeechOutput: synthesis failed for %q: %v", req.Text, err)
		return
	}

	playCtx := ctx
	if o.cfg.PlaybackTimeout > 0 {
		var cancelPlay context.CancelFunc
		playCtx, cancelPlay = context.WithTimeout(ctx, o.cfg.PlaybackTimeout)
		defer cancelPlay()
	}
	if err := o.player.Play(playCtx, data); err != nil {
		o.failed.Add(1)
		logging.Errorf("SpeechOutput: playback failed for %q: %v", req.Text, err)
		return
	}
	o.played.Add(1)
	logging.Debugf("SpeechOutput: played %s in %v (queued %v)", req.ID[:8], time.Since(start), start.Sub(req.Enqueued))
}

func (o *Output) finish() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending--
	if o.pending > 0 {
		return
	}
	o.wake(nil)
}

// halt worker 退出后调用：拒绝后续请求，丢弃未播放的请求，唤醒 Drain
func (o *Output) halt() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopped = true

	dropped := 0
	for {
		select {
		case <-o.queue:
			dropped++
			continue
		default:
		}
		break
	}
	o.pending = 0
	if dropped > 0 {
		logging.Warnf("SpeechOutput: stopped with %d requests unplayed", dropped)
	}
	o.wake(ErrStopped)
}

// wake 调用方持有 mu
func (o *Output) wake(err error) {
	for _, ch := range o.waiters {
		ch <- err
	}
	o.waiters = nil
}
