package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/liuscraft/jowie/internal/logging"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type OpenAIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
	Timeout     time.Duration
}

// EinoBackend 基于 eino ToolCallingChatModel 的 Backend
type EinoBackend struct {
	model model.ToolCallingChatModel
}

func NewEinoBackend(m model.ToolCallingChatModel) *EinoBackend {
	return &EinoBackend{model: m}
}

// NewOpenAIBackend OpenAI 兼容接口（Ollama、OpenAI、GLM 等）
func NewOpenAIBackend(ctx context.Context, cfg OpenAIConfig) (*EinoBackend, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		// Ollama 不校验 key
		apiKey = "ollama"
	}
	modelCfg := &openai.ChatModelConfig{
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		APIKey:  apiKey,
		Timeout: cfg.Timeout,
		HTTPClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   cfg.Timeout,
		},
	}
	if cfg.Temperature > 0 {
		temp := cfg.Temperature
		modelCfg.Temperature = &temp
	}

	chatModel, err := openai.NewChatModel(ctx, modelCfg)
	if err != nil {
		return nil, fmt.Errorf("chat: create model: %w", err)
	}
	logging.Infof("EinoBackend: model=%s base_url=%s", cfg.Model, cfg.BaseURL)
	return NewEinoBackend(chatModel), nil
}

func (b *EinoBackend) Complete(ctx context.Context, history []Message, tools []ToolSpec) (*Completion, error) {
	m, msgs, err := b.prepare(history, tools)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := m.Generate(ctx, msgs)
	if err != nil {
		return nil, fmt.Errorf("chat: generate: %w", err)
	}
	out := &Completion{Text: resp.Content, ToolCalls: fromSchemaToolCalls(resp.ToolCalls)}
	logging.Debugf("EinoBackend: completion in %v, %d chars, %d tool calls",
		time.Since(start), len(out.Text), len(out.ToolCalls))
	return out, nil
}

func (b *EinoBackend) Stream(ctx context.Context, history []Message, tools []ToolSpec) (ChunkStream, error) {
	m, msgs, err := b.prepare(history, tools)
	if err != nil {
		return nil, err
	}
	sr, err := m.Stream(ctx, msgs)
	if err != nil {
		return nil, fmt.Errorf("chat: stream: %w", err)
	}
	return &einoStream{reader: sr}, nil
}

func (b *EinoBackend) prepare(history []Message, tools []ToolSpec) (model.ToolCallingChatModel, []*schema.Message, error) {
	if len(history) == 0 {
		return nil, nil, ErrEmptyHistory
	}
	m := b.model
	if len(tools) > 0 {
		bound, err := b.model.WithTools(toToolInfos(tools))
		if err != nil {
			return nil, nil, fmt.Errorf("chat: bind tools: %w", err)
		}
		m = bound
	}
	return m, toSchemaMessages(history), nil
}

// einoStream 把 eino 的消息流转成 ChunkStream。
// 文本片段即时转发；工具调用片段先收集，流结束时合并后一次给出。
type einoStream struct {
	reader   *schema.StreamReader[*schema.Message]
	gathered []*schema.Message
	done     bool
}

func (s *einoStream) Recv() (Chunk, error) {
	if s.done {
		return Chunk{}, io.EOF
	}
	for {
		msg, err := s.reader.Recv()
		if errors.Is(err, io.EOF) {
			s.done = true
			if len(s.gathered) == 0 {
				return Chunk{}, io.EOF
			}
			merged, err := schema.ConcatMessages(s.gathered)
			if err != nil {
				return Chunk{}, fmt.Errorf("chat: merge tool call chunks: %w", err)
			}
			return Chunk{ToolCalls: fromSchemaToolCalls(merged.ToolCalls)}, nil
		}
		if err != nil {
			return Chunk{}, fmt.Errorf("chat: stream recv: %w", err)
		}
		if msg == nil {
			continue
		}
		if len(msg.ToolCalls) > 0 {
			s.gathered = append(s.gathered, &schema.Message{Role: schema.Assistant, ToolCalls: msg.ToolCalls})
		}
		if msg.Content != "" {
			return Chunk{Text: msg.Content}, nil
		}
	}
}

func (s *einoStream) Close() {
	s.reader.Close()
}

func toSchemaMessages(history []Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(history)+2)
	for _, m := range history {
		switch m.Role {
		case RoleSystem:
			out = append(out, schema.SystemMessage(m.Content))
		case RoleUser:
			out = append(out, schema.UserMessage(m.Content))
		case RoleAssistant:
			out = append(out, &schema.Message{Role: schema.Assistant, Content: m.Content})
		case RoleTool:
			if m.ToolCall == nil {
				// 没有对应调用的工具结果，按普通上下文发送
				out = append(out, &schema.Message{Role: schema.Tool, Content: m.Content, ToolName: m.Name})
				continue
			}
			call := toSchemaToolCall(*m.ToolCall)
			if last := len(out) - 1; last >= 0 && out[last].Role == schema.Assistant {
				out[last].ToolCalls = append(out[last].ToolCalls, call)
			} else {
				out = append(out, &schema.Message{Role: schema.Assistant, ToolCalls: []schema.ToolCall{call}})
			}
			out = append(out, &schema.Message{
				Role:       schema.Tool,
				Content:    m.Content,
				ToolCallID: m.ToolCall.ID,
				ToolName:   m.ToolCall.Name,
			})
		}
	}
	return out
}

func toSchemaToolCall(call ToolCall) schema.ToolCall {
	args := call.Arguments
	if args == "" {
		args = "{}"
	}
	return schema.ToolCall{
		ID:   call.ID,
		Type: "function",
		Function: schema.FunctionCall{
			Name:      call.Name,
			Arguments: args,
		},
	}
}

func fromSchemaToolCalls(calls []schema.ToolCall) []ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]ToolCall, 0, len(calls))
	for _, c := range calls {
		out = append(out, ToolCall{ID: c.ID, Name: c.Function.Name, Arguments: c.Function.Arguments})
	}
	return out
}

func toToolInfos(tools []ToolSpec) []*schema.ToolInfo {
	infos := make([]*schema.ToolInfo, 0, len(tools))
	for _, t := range tools {
		info := &schema.ToolInfo{Name: t.Name, Desc: t.Description}
		if len(t.Params) > 0 {
			params := make(map[string]*schema.ParameterInfo, len(t.Params))
			for _, p := range t.Params {
				params[p.Name] = &schema.ParameterInfo{
					Type:     toDataType(p.Type),
					Desc:     p.Description,
					Required: p.Required,
				}
			}
			info.ParamsOneOf = schema.NewParamsOneOfByParams(params)
		}
		infos = append(infos, info)
	}
	return infos
}

func toDataType(t ParamType) schema.DataType {
	switch t {
	case TypeNumber:
		return schema.Number
	case TypeInteger:
		return schema.Integer
	case TypeBoolean:
		return schema.Boolean
	default:
		return schema.String
	}
}
