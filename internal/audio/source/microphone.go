package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/liuscraft/jowie/internal/logging"
)

// ErrOverflow 采集队列已满，处理端跟不上设备
var ErrOverflow = errors.New("capture queue overflow")

// Source 产生单声道 float32 采样块
type Source interface {
	Start() error
	Read(ctx context.Context) ([]float32, error)
	Close() error
	SampleRate() int
}

type audioStream interface {
	Start() error
	Stop() error
	Close() error
}

// MicrophoneSource 麦克风音频源。
// PortAudio 回调只负责把采样拷贝进有界队列，从不阻塞。
type MicrophoneSource struct {
	stream     audioStream
	sampleRate int
	blocks     chan []float32
	closeCh    chan struct{}
	closeOnce  sync.Once

	startOnce sync.Once
	startErr  error

	overflowed atomic.Bool
	dropped    atomic.Int64

	// 诊断指标
	totalBlocks int64
	lastLogTime time.Time
	mu          sync.Mutex
}

type MicrophoneConfig struct {
	SampleRate      int
	FramesPerBuffer int
	// Device 设备索引或名称（部分匹配），空字符串表示默认输入设备
	Device      string
	HighLatency bool
	// QueueBlocks 回调与读取端之间可缓冲的块数
	QueueBlocks int
}

// NewMicrophoneSource 创建麦克风音频源，流在 Start() 或首次 Read() 时启动。
// PortAudio 需由调用方 Initialize。
func NewMicrophoneSource(cfg MicrophoneConfig) (*MicrophoneSource, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %d", cfg.SampleRate)
	}
	if cfg.FramesPerBuffer <= 0 {
		cfg.FramesPerBuffer = 1024
	}
	if cfg.QueueBlocks <= 0 {
		cfg.QueueBlocks = 64
	}

	logging.Infof("MicrophoneSource: creating source (device=%q, highLatency=%v)", cfg.Device, cfg.HighLatency)

	m := &MicrophoneSource{
		sampleRate: cfg.SampleRate,
		blocks:     make(chan []float32, cfg.QueueBlocks),
		closeCh:    make(chan struct{}),
	}

	inputDevice, err := findInputDevice(cfg.Device)
	if err != nil {
		return nil, err
	}

	latency := inputDevice.DefaultLowInputLatency
	latencyMode := "low"
	if cfg.HighLatency {
		latency = inputDevice.DefaultHighInputLatency
		latencyMode = "high"
	}

	logging.Infof("MicrophoneSource: device=%s, %s latency=%.1fms",
		inputDevice.Name, latencyMode, latency.Seconds()*1000)

	streamParams := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   inputDevice,
			Channels: 1,
			Latency:  latency,
		},
		SampleRate:      float64(cfg.SampleRate),
		FramesPerBuffer: cfg.FramesPerBuffer,
	}

	stream, err := portaudio.OpenStream(streamParams, m.callback)
	if err != nil {
		return nil, fmt.Errorf("open input stream on %q: %w", inputDevice.Name, err)
	}
	m.stream = stream

	logging.Infof("MicrophoneSource: created with sampleRate=%d, framesPerBuffer=%d, queue=%d blocks (stream not started yet)",
		cfg.SampleRate, cfg.FramesPerBuffer, cfg.QueueBlocks)
	return m, nil
}

// findInputDevice 按索引或名称查找输入设备，空值使用默认设备
func findInputDevice(selector string) (*portaudio.DeviceInfo, error) {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		dev, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("default input device: %w", err)
		}
		return dev, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}

	if idx, convErr := strconv.Atoi(selector); convErr == nil {
		if idx < 0 || idx >= len(devices) {
			return nil, fmt.Errorf("input device index %d out of range (%d devices)", idx, len(devices))
		}
		if devices[idx].MaxInputChannels <= 0 {
			return nil, fmt.Errorf("device %d (%s) has no input channels", idx, devices[idx].Name)
		}
		return devices[idx], nil
	}

	nameLower := strings.ToLower(selector)
	for _, dev := range devices {
		if dev.MaxInputChannels > 0 && strings.Contains(strings.ToLower(dev.Name), nameLower) {
			logging.Infof("MicrophoneSource: found device %q matching %q", dev.Name, selector)
			return dev, nil
		}
	}
	return nil, fmt.Errorf("no input device found matching %q", selector)
}

func newMicrophoneSourceWithStream(stream audioStream, sampleRate, queueBlocks int) *MicrophoneSource {
	return &MicrophoneSource{
		stream:     stream,
		sampleRate: sampleRate,
		blocks:     make(chan []float32, queueBlocks),
		closeCh:    make(chan struct{}),
	}
}

// callback 运行在 PortAudio 的实时线程
func (m *MicrophoneSource) callback(in []float32) {
	block := make([]float32, len(in))
	copy(block, in)
	select {
	case m.blocks <- block:
	default:
		m.dropped.Add(1)
		m.overflowed.Store(true)
	}
}

func (m *MicrophoneSource) SampleRate() int {
	return m.sampleRate
}

func (m *MicrophoneSource) Start() error {
	m.startOnce.Do(func() {
		logging.Infof("MicrophoneSource: starting stream...")
		if err := m.stream.Start(); err != nil {
			logging.Errorf("MicrophoneSource: failed to start stream: %v", err)
			m.startErr = fmt.Errorf("start input stream: %w", err)
			return
		}
		logging.Infof("MicrophoneSource: stream started successfully")
	})
	return m.startErr
}

// Read 返回下一个采集块。队列溢出后返回 ErrOverflow。
func (m *MicrophoneSource) Read(ctx context.Context) ([]float32, error) {
	if err := m.Start(); err != nil {
		return nil, err
	}
	if m.overflowed.Load() {
		return nil, fmt.Errorf("%w: %d blocks dropped", ErrOverflow, m.dropped.Load())
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-m.closeCh:
		return nil, io.EOF
	case block := <-m.blocks:
		m.recordMetrics()
		return block, nil
	}
}

func (m *MicrophoneSource) Close() error {
	logging.Infof("MicrophoneSource: closing...")

	var err error
	m.closeOnce.Do(func() {
		close(m.closeCh)
		if stopErr := m.stream.Stop(); stopErr != nil {
			logging.Errorf("MicrophoneSource: error stopping stream: %v", stopErr)
		}
		err = m.stream.Close()
	})
	return err
}

func (m *MicrophoneSource) recordMetrics() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalBlocks++
	now := time.Now()
	if now.Sub(m.lastLogTime) >= 30*time.Second {
		m.lastLogTime = now
		logging.Debugf("MicrophoneSource: metrics - blocks: %d, queued: %d/%d",
			m.totalBlocks, len(m.blocks), cap(m.blocks))
	}
}
