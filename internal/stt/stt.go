package stt

import (
	"context"
	"errors"
)

var (
	ErrAPIKeyRequired = errors.New("stt: api key is required")
	ErrEmptyAudio     = errors.New("stt: empty audio")
)

// Transcriber 把一段完整语句转成文本，阻塞调用
type Transcriber interface {
	Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error)
}

// TranscriberFunc 适配普通函数
type TranscriberFunc func(ctx context.Context, samples []float32, sampleRate int) (string, error)

func (f TranscriberFunc) Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error) {
	return f(ctx, samples, sampleRate)
}
