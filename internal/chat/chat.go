package chat

import (
	"context"
	"errors"
	"io"
	"strings"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message 对话历史中的一条消息。
// tool 消息携带产生它的 ToolCall，便于适配层同时发出调用和结果。
type Message struct {
	Role     Role
	Name     string
	Content  string
	ToolCall *ToolCall
}

func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

func ToolMessage(call ToolCall, result string) Message {
	c := call
	return Message{Role: RoleTool, Name: call.Name, Content: result, ToolCall: &c}
}

// ToolCall 模型请求的一次工具调用，Arguments 为 JSON 文本
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

type ParamType string

const (
	TypeString  ParamType = "string"
	TypeNumber  ParamType = "number"
	TypeInteger ParamType = "integer"
	TypeBoolean ParamType = "boolean"
)

type Param struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool
}

// ToolSpec 启动时注册的工具描述
type ToolSpec struct {
	Name        string
	Description string
	Params      []Param
}

// Completion 一次补全的结果：可选文本 + 有序的工具调用
type Completion struct {
	Text      string
	ToolCalls []ToolCall
}

// Chunk 流式补全的一个片段。工具调用只会在流结束前整体给出。
type Chunk struct {
	Text      string
	ToolCalls []ToolCall
}

// ChunkStream 有限、不可重放的片段序列，结束时 Recv 返回 io.EOF
type ChunkStream interface {
	Recv() (Chunk, error)
	Close()
}

// Backend 聊天模型
type Backend interface {
	Complete(ctx context.Context, history []Message, tools []ToolSpec) (*Completion, error)
	Stream(ctx context.Context, history []Message, tools []ToolSpec) (ChunkStream, error)
}

var ErrEmptyHistory = errors.New("chat: empty history")

// Collect 读完整个流并合成一个 Completion。
// onText 非空时每个文本片段到达即回调。
func Collect(stream ChunkStream, onText func(string)) (*Completion, error) {
	defer stream.Close()

	var (
		text  strings.Builder
		calls []ToolCall
	)
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		text.WriteString(chunk.Text)
		if onText != nil && chunk.Text != "" {
			onText(chunk.Text)
		}
		calls = append(calls, chunk.ToolCalls...)
	}
	return &Completion{Text: text.String(), ToolCalls: calls}, nil
}

// SliceStream 基于切片的 ChunkStream，测试和离线回放使用
type SliceStream struct {
	chunks []Chunk
	pos    int
	err    error
	closed bool
}

// NewSliceStream err 非空时在所有片段之后返回 err 而不是 io.EOF
func NewSliceStream(chunks []Chunk, err error) *SliceStream {
	return &SliceStream{chunks: chunks, err: err}
}

func (s *SliceStream) Recv() (Chunk, error) {
	if s.closed {
		return Chunk{}, io.EOF
	}
	if s.pos < len(s.chunks) {
		c := s.chunks[s.pos]
		s.pos++
		return c, nil
	}
	if s.err != nil {
		return Chunk{}, s.err
	}
	return Chunk{}, io.EOF
}

func (s *SliceStream) Close() {
	s.closed = true
}

func (s *SliceStream) Closed() bool {
	return s.closed
}
