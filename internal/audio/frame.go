package audio

import (
	"math"
	"time"
)

// Frame 固定长度的单声道采样块，采样值范围 [-1, 1]
type Frame struct {
	Samples    []float32
	SampleRate int
}

func (f Frame) Duration() time.Duration {
	return SamplesDuration(len(f.Samples), f.SampleRate)
}

func SamplesDuration(n, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(n) / float64(sampleRate) * float64(time.Second))
}

// RMS 均方根能量
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// LoudnessDB 返回 dBFS，静音返回 -Inf
func LoudnessDB(samples []float32) float64 {
	rms := RMS(samples)
	if rms == 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(rms)
}

// GainToward 计算把 samples 提升到 targetDB 所需的线性增益。
// 已经不低于目标或响度不可计算时返回 1。
func GainToward(samples []float32, targetDB float64) float64 {
	current := LoudnessDB(samples)
	if math.IsInf(current, 0) || math.IsNaN(current) || current >= targetDB {
		return 1
	}
	return math.Pow(10, (targetDB-current)/20)
}

// ApplyGain 原地放大并裁剪到 [-1, 1]
func ApplyGain(samples []float32, gain float64) {
	if gain == 1 {
		return
	}
	for i, s := range samples {
		samples[i] = clip(float64(s) * gain)
	}
}

func clip(v float64) float32 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return float32(v)
}

func Float32ToInt16(in []float32) []int16 {
	out := make([]int16, len(in))
	for i, v := range in {
		f := float64(clip(float64(v))) * 32767
		out[i] = int16(math.Round(f))
	}
	return out
}

// FrameAssembler 把任意长度的采集块切成固定长度的帧
type FrameAssembler struct {
	size    int
	pending []float32
}

func NewFrameAssembler(frameSize int) *FrameAssembler {
	if frameSize <= 0 {
		frameSize = 1
	}
	return &FrameAssembler{size: frameSize, pending: make([]float32, 0, frameSize*2)}
}

// Push 追加采样，返回凑满的完整帧（可能为空）
func (a *FrameAssembler) Push(block []float32) [][]float32 {
	a.pending = append(a.pending, block...)
	var frames [][]float32
	for len(a.pending) >= a.size {
		frame := make([]float32, a.size)
		copy(frame, a.pending[:a.size])
		frames = append(frames, frame)
		a.pending = a.pending[a.size:]
	}
	// 避免底层数组无限增长
	if cap(a.pending) > a.size*4 {
		rest := make([]float32, len(a.pending), a.size*2)
		copy(rest, a.pending)
		a.pending = rest
	}
	return frames
}

func (a *FrameAssembler) Pending() int {
	return len(a.pending)
}
