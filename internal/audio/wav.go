package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

var ErrInvalidWAV = errors.New("invalid wav data")

// Clip 解码后的音频，Samples 为交织的 float32
type Clip struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

func (c *Clip) Duration() float64 {
	if c == nil || c.SampleRate <= 0 || c.Channels <= 0 {
		return 0
	}
	return float64(len(c.Samples)/c.Channels) / float64(c.SampleRate)
}

// Mono 多声道取平均
func (c *Clip) Mono() []float32 {
	if c.Channels <= 1 {
		return c.Samples
	}
	frames := len(c.Samples) / c.Channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for ch := 0; ch < c.Channels; ch++ {
			sum += c.Samples[i*c.Channels+ch]
		}
		out[i] = sum / float32(c.Channels)
	}
	return out
}

// EncodeWAV 把单声道 float32 采样编码为 16bit PCM WAV
func EncodeWAV(samples []float32, sampleRate int) ([]byte, error) {
	if sampleRate <= 0 {
		return nil, errors.New("sample rate must be positive")
	}

	const (
		bitsPerSample  = 16
		audioFormatPCM = 1
		subchunk1Size  = 16
		numChannels    = 1
	)

	pcm := Float32ToInt16(samples)
	blockAlign := numChannels * bitsPerSample / 8
	byteRate := sampleRate * blockAlign
	dataSize := len(pcm) * 2

	buf := bytes.NewBuffer(make([]byte, 0, 44+dataSize))
	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(subchunk1Size))
	_ = binary.Write(buf, binary.LittleEndian, uint16(audioFormatPCM))
	_ = binary.Write(buf, binary.LittleEndian, uint16(numChannels))
	_ = binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	_ = binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	_ = binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, uint32(dataSize))
	_ = binary.Write(buf, binary.LittleEndian, pcm)

	return buf.Bytes(), nil
}

// DecodeWAV 解码 PCM WAV（8/16/24/32 bit）
func DecodeWAV(data []byte) (*Clip, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, ErrInvalidWAV
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode wav: %w", err)
	}
	if buf == nil || buf.Format == nil {
		return nil, ErrInvalidWAV
	}

	return &Clip{
		Samples:    intBufferToFloat32(buf, int(dec.BitDepth)),
		SampleRate: buf.Format.SampleRate,
		Channels:   buf.Format.NumChannels,
	}, nil
}

func intBufferToFloat32(buf *goaudio.IntBuffer, bitDepth int) []float32 {
	if bitDepth <= 0 {
		bitDepth = 16
	}
	out := make([]float32, len(buf.Data))
	if bitDepth == 8 {
		// 8bit WAV 为无符号
		for i, v := range buf.Data {
			out[i] = float32(v-128) / 128
		}
		return out
	}
	scale := float32(int64(1) << (bitDepth - 1))
	for i, v := range buf.Data {
		out[i] = float32(v) / scale
	}
	return out
}
