package dialogue

import (
	"github.com/liuscraft/jowie/internal/chat"
)

// History 对话历史，第一条永远是系统提示词
type History struct {
	messages []chat.Message
}

func NewHistory(systemPrompt string) *History {
	return &History{messages: []chat.Message{chat.SystemMessage(systemPrompt)}}
}

func (h *History) Append(m chat.Message) {
	h.messages = append(h.messages, m)
}

func (h *History) Len() int {
	return len(h.messages)
}

// Truncate 截断到前 n 条，系统提示词始终保留
func (h *History) Truncate(n int) {
	if n < 1 {
		n = 1
	}
	if n < len(h.messages) {
		clear(h.messages[n:])
		h.messages = h.messages[:n]
	}
}

func (h *History) Reset() {
	h.Truncate(1)
}

// Messages 返回副本
func (h *History) Messages() []chat.Message {
	out := make([]chat.Message, len(h.messages))
	copy(out, h.messages)
	return out
}
