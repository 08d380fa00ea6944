package text

import (
	"strings"
	"unicode"
)

// Segmenter 把流式文本切成可以单独朗读的句子。
// '.', '!', '?' 只有后面跟空白时才算句末（避免切开 3.5 这样的数字）；
// 中文标点和换行立即断句。
type Segmenter struct {
	// MaxRunes 超过后在下一个空白处强制断开，0 表示不限制
	MaxRunes int
	buffer   []rune
}

func NewSegmenter(maxRunes int) *Segmenter {
	return &Segmenter{MaxRunes: maxRunes}
}

// Feed 追加一段文本，返回已经完整的句子
func (s *Segmenter) Feed(text string) []string {
	if text == "" {
		return nil
	}

	var outputs []string
	for _, r := range text {
		if unicode.IsSpace(r) && s.endsWithTerminal() {
			outputs = s.emit(outputs)
		}
		s.buffer = append(s.buffer, r)
		if isImmediateBoundary(r) {
			outputs = s.emit(outputs)
			continue
		}
		if s.MaxRunes > 0 && len(s.buffer) >= s.MaxRunes && unicode.IsSpace(r) {
			outputs = s.emit(outputs)
		}
	}
	return outputs
}

// Flush 返回缓冲中剩余的文本（流结束时调用）
func (s *Segmenter) Flush() string {
	return s.flushBuffer()
}

// Pending 缓冲中尚未成句的文本
func (s *Segmenter) Pending() string {
	return strings.TrimSpace(string(s.buffer))
}

func (s *Segmenter) emit(outputs []string) []string {
	if sentence := s.flushBuffer(); sentence != "" {
		outputs = append(outputs, sentence)
	}
	return outputs
}

func (s *Segmenter) flushBuffer() string {
	if len(s.buffer) == 0 {
		return ""
	}
	sentence := strings.TrimSpace(string(s.buffer))
	s.buffer = s.buffer[:0]
	return sentence
}

func (s *Segmenter) endsWithTerminal() bool {
	if len(s.buffer) == 0 {
		return false
	}
	switch s.buffer[len(s.buffer)-1] {
	case '.', '!', '?':
		return true
	default:
		return false
	}
}

func isImmediateBoundary(r rune) bool {
	switch r {
	case '\n', '。', '！', '？', '；', '…':
		return true
	default:
		return false
	}
}
