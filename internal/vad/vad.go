package vad

import "github.com/liuscraft/jowie/internal/audio"

// Detector 判断一帧音频是否包含语音
type Detector interface {
	IsSpeech(samples []float32) bool
}

// EnergyDetector 基于 RMS 能量的语音检测。
// 帧被切成固定时长的子帧，任一子帧超过阈值即判为语音。
type EnergyDetector struct {
	threshold    float64
	subFrameSize int
}

func NewEnergyDetector(threshold float64, sampleRate, subFrameMs int) *EnergyDetector {
	if threshold <= 0 {
		threshold = 0.015
	}
	if subFrameMs <= 0 {
		subFrameMs = 30
	}
	size := sampleRate * subFrameMs / 1000
	if size <= 0 {
		size = 1
	}
	return &EnergyDetector{threshold: threshold, subFrameSize: size}
}

func (d *EnergyDetector) IsSpeech(samples []float32) bool {
	if len(samples) == 0 {
		return false
	}
	// 不足一个子帧时整体判断
	if len(samples) < d.subFrameSize {
		return audio.RMS(samples) >= d.threshold
	}
	for off := 0; off+d.subFrameSize <= len(samples); off += d.subFrameSize {
		if audio.RMS(samples[off:off+d.subFrameSize]) >= d.threshold {
			return true
		}
	}
	return false
}

// AlwaysSpeech 关闭 VAD 时使用，所有帧都视为语音
type AlwaysSpeech struct{}

func (AlwaysSpeech) IsSpeech([]float32) bool { return true }
