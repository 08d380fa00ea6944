package audio

import "context"

// Player 播放一段编码后的音频（WAV），阻塞到播放结束
type Player interface {
	Play(ctx context.Context, data []byte) error
}
