package listener

import (
	"time"

	"github.com/liuscraft/jowie/internal/audio"
	"github.com/liuscraft/jowie/internal/vad"
)

type Config struct {
	SampleRate         int
	MaxSilenceDuration time.Duration
	MinCommandDuration time.Duration
	// MaxUtteranceDuration 缓冲上限，达到后立即切出一段语句
	MaxUtteranceDuration time.Duration
	Normalize            bool
	TargetDB             float64
}

func DefaultConfig() Config {
	return Config{
		SampleRate:           16000,
		MaxSilenceDuration:   1200 * time.Millisecond,
		MinCommandDuration:   time.Second,
		MaxUtteranceDuration: 30 * time.Second,
		TargetDB:             -20,
	}
}

// Utterance 一段完整的用户语音
type Utterance struct {
	Samples    []float32
	SampleRate int
	// Truncated 因达到缓冲上限而切出
	Truncated bool
}

func (u *Utterance) Duration() time.Duration {
	return audio.SamplesDuration(len(u.Samples), u.SampleRate)
}

// Endpointer 把连续帧切分为语句：语音之后出现足够长的静音，
// 且累计时长不短于最短指令时才输出。
type Endpointer struct {
	config   Config
	detector vad.Detector

	buffer  []float32
	silence time.Duration
}

// NewEndpointer detector 为 nil 时所有帧都视为语音
func NewEndpointer(config Config, detector vad.Detector) *Endpointer {
	if detector == nil {
		detector = vad.AlwaysSpeech{}
	}
	if config.SampleRate <= 0 {
		config.SampleRate = DefaultConfig().SampleRate
	}
	if config.MaxUtteranceDuration <= 0 {
		config.MaxUtteranceDuration = DefaultConfig().MaxUtteranceDuration
	}
	if config.MaxUtteranceDuration < config.MinCommandDuration {
		config.MaxUtteranceDuration = config.MinCommandDuration
	}
	return &Endpointer{config: config, detector: detector}
}

// Feed 处理一帧，语句完成时返回 (utterance, true)
func (e *Endpointer) Feed(frame []float32) (*Utterance, bool) {
	if len(frame) == 0 {
		return nil, false
	}

	if e.detector.IsSpeech(frame) {
		samples := frame
		if e.config.Normalize {
			samples = make([]float32, len(frame))
			copy(samples, frame)
			audio.ApplyGain(samples, audio.GainToward(samples, e.config.TargetDB))
		}
		e.buffer = append(e.buffer, samples...)
		e.silence = 0
	} else {
		// 尚未开始说话，静音不累积
		if len(e.buffer) == 0 {
			return nil, false
		}
		e.buffer = append(e.buffer, frame...)
		e.silence += audio.SamplesDuration(len(frame), e.config.SampleRate)
	}

	buffered := e.BufferedDuration()
	if e.silence >= e.config.MaxSilenceDuration && buffered >= e.config.MinCommandDuration {
		return e.emit(false), true
	}
	if buffered >= e.config.MaxUtteranceDuration {
		return e.emit(true), true
	}
	return nil, false
}

func (e *Endpointer) BufferedDuration() time.Duration {
	return audio.SamplesDuration(len(e.buffer), e.config.SampleRate)
}

// Reset 丢弃未完成的缓冲
func (e *Endpointer) Reset() {
	e.buffer = nil
	e.silence = 0
}

func (e *Endpointer) emit(truncated bool) *Utterance {
	u := &Utterance{
		Samples:    e.buffer,
		SampleRate: e.config.SampleRate,
		Truncated:  truncated,
	}
	e.Reset()
	return u
}
