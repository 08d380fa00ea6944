package player

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/liuscraft/jowie/internal/audio"
	"github.com/liuscraft/jowie/internal/logging"
)

type Config struct {
	// DeviceRate 输出设备采样率，0 表示按音频自身采样率打开
	DeviceRate      int
	FramesPerBuffer int
	Volume          float64
}

func DefaultConfig() Config {
	return Config{
		DeviceRate:      0,
		FramesPerBuffer: 1024,
		Volume:          1.0,
	}
}

// PortAudioPlayer 通过 PortAudio 默认输出设备播放，实现 audio.Player。
// PortAudio 需由调用方 Initialize。
type PortAudioPlayer struct {
	config    Config
	resampler audio.Resampler
	mu        sync.Mutex
}

func NewPortAudioPlayer(config Config) *PortAudioPlayer {
	if config.FramesPerBuffer <= 0 {
		config.FramesPerBuffer = 1024
	}
	if config.Volume <= 0 {
		config.Volume = 1.0
	}
	return &PortAudioPlayer{
		config:    config,
		resampler: audio.NewLinearResampler(),
	}
}

func (p *PortAudioPlayer) Play(ctx context.Context, data []byte) error {
	samples, rate, err := p.prepare(data)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return nil
	}

	// 同一时刻只允许一个输出流
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playSamples(ctx, samples, rate)
}

// prepare 解码、混为单声道、按需重采样并调整音量
func (p *PortAudioPlayer) prepare(data []byte) ([]float32, int, error) {
	clip, err := audio.DecodeWAV(data)
	if err != nil {
		return nil, 0, err
	}
	if clip.SampleRate <= 0 {
		return nil, 0, errors.New("player: clip has no sample rate")
	}

	samples := clip.Mono()
	rate := clip.SampleRate
	if p.config.DeviceRate > 0 && p.config.DeviceRate != rate {
		samples, err = p.resampler.Resample(samples, rate, p.config.DeviceRate, 1)
		if err != nil {
			return nil, 0, fmt.Errorf("player: resample: %w", err)
		}
		rate = p.config.DeviceRate
	}
	if p.config.Volume != 1.0 {
		scaled := make([]float32, len(samples))
		copy(scaled, samples)
		audio.ApplyGain(scaled, p.config.Volume)
		samples = scaled
	}
	return samples, rate, nil
}

func (p *PortAudioPlayer) playSamples(ctx context.Context, samples []float32, rate int) error {
	buf := make([]float32, p.config.FramesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(rate), len(buf), &buf)
	if err != nil {
		return fmt.Errorf("player: open stream: %w", err)
	}
	defer func() {
		if err := stream.Close(); err != nil {
			logging.Errorf("Player: error closing stream: %v", err)
		}
	}()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("player: start stream: %w", err)
	}

	logging.Debugf("Player: playing %d samples @ %dHz (%v)", len(samples), rate, audio.SamplesDuration(len(samples), rate))

	for off := 0; off < len(samples); off += len(buf) {
		if err := ctx.Err(); err != nil {
			_ = stream.Abort()
			return err
		}
		n := copy(buf, samples[off:])
		for i := n; i < len(buf); i++ {
			buf[i] = 0
		}
		if err := stream.Write(); err != nil {
			_ = stream.Abort()
			return fmt.Errorf("player: write: %w", err)
		}
	}

	if err := stream.Stop(); err != nil {
		logging.Errorf("Player: error stopping stream: %v", err)
	}
	return nil
}
