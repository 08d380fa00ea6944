package chat

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

type fakeModel struct {
	tools    []*schema.ToolInfo
	lastMsgs []*schema.Message
	resp     *schema.Message
	chunks   []*schema.Message
	err      error
}

func (f *fakeModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.lastMsgs = input
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func (f *fakeModel) Stream(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	f.lastMsgs = input
	if f.err != nil {
		return nil, f.err
	}
	return schema.StreamReaderFromArray(f.chunks), nil
}

func (f *fakeModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	f.tools = tools
	return &boundModel{parent: f}, nil
}

// boundModel 把调用转发回 parent，保留最后一次输入
type boundModel struct {
	parent *fakeModel
}

func (b *boundModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	return b.parent.Generate(ctx, input, opts...)
}

func (b *boundModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return b.parent.Stream(ctx, input, opts...)
}

func (b *boundModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return b.parent.WithTools(tools)
}

var weatherSpec = ToolSpec{
	Name:        "get_weather",
	Description: "Get the current weather in a specific city.",
	Params:      []Param{{Name: "city", Type: TypeString, Description: "Name of the city", Required: true}},
}

func TestCompleteMapsToolCalls(t *testing.T) {
	fm := &fakeModel{resp: &schema.Message{
		Role:    schema.Assistant,
		Content: "Let me see.",
		ToolCalls: []schema.ToolCall{{
			ID:       "call_1",
			Type:     "function",
			Function: schema.FunctionCall{Name: "get_weather", Arguments: `{"city":"Paris"}`},
		}},
	}}
	b := NewEinoBackend(fm)

	out, err := b.Complete(context.Background(), []Message{SystemMessage("sys"), UserMessage("weather?")}, []ToolSpec{weatherSpec})
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if out.Text != "Let me see." {
		t.Fatalf("unexpected text %q", out.Text)
	}
	if len(out.ToolCalls) != 1 || out.ToolCalls[0] != (ToolCall{ID: "call_1", Name: "get_weather", Arguments: `{"city":"Paris"}`}) {
		t.Fatalf("unexpected tool calls %+v", out.ToolCalls)
	}
	if len(fm.tools) != 1 || fm.tools[0].Name != "get_weather" || fm.tools[0].ParamsOneOf == nil {
		t.Fatalf("tools not bound: %+v", fm.tools)
	}
	if len(fm.lastMsgs) != 2 || fm.lastMsgs[0].Role != schema.System || fm.lastMsgs[1].Role != schema.User {
		t.Fatalf("unexpected messages %+v", fm.lastMsgs)
	}
}

func TestCompleteWithoutToolsDoesNotBind(t *testing.T) {
	fm := &fakeModel{resp: &schema.Message{Role: schema.Assistant, Content: "ok"}}
	b := NewEinoBackend(fm)
	if _, err := b.Complete(context.Background(), []Message{UserMessage("hi")}, nil); err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if fm.tools != nil {
		t.Fatalf("expected no tools bound, got %+v", fm.tools)
	}
}

func TestCompleteErrors(t *testing.T) {
	b := NewEinoBackend(&fakeModel{})
	if _, err := b.Complete(context.Background(), nil, nil); !errors.Is(err, ErrEmptyHistory) {
		t.Fatalf("expected ErrEmptyHistory, got %v", err)
	}

	boom := errors.New("connection refused")
	b = NewEinoBackend(&fakeModel{err: boom})
	if _, err := b.Complete(context.Background(), []Message{UserMessage("hi")}, nil); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped backend error, got %v", err)
	}
}

func TestToSchemaMessagesToolRoundTrip(t *testing.T) {
	call := ToolCall{ID: "c1", Name: "get_date", Arguments: ""}
	history := []Message{
		SystemMessage("sys"),
		UserMessage("what day is it"),
		ToolMessage(call, "Monday, January 05 2026"),
		AssistantMessage("It is Monday."),
	}

	got := toSchemaMessages(history)
	if len(got) != 5 {
		t.Fatalf("expected 5 wire messages, got %d", len(got))
	}
	if got[2].Role != schema.Assistant || len(got[2].ToolCalls) != 1 {
		t.Fatalf("expected synthesized assistant tool call, got %+v", got[2])
	}
	if got[2].ToolCalls[0].Function.Arguments != "{}" {
		t.Fatalf("expected empty arguments to become {}, got %q", got[2].ToolCalls[0].Function.Arguments)
	}
	if got[3].Role != schema.Tool || got[3].ToolCallID != "c1" || got[3].Content != "Monday, January 05 2026" {
		t.Fatalf("unexpected tool message %+v", got[3])
	}
	if got[4].Content != "It is Monday." {
		t.Fatalf("unexpected final message %+v", got[4])
	}
}

func TestToSchemaMessagesMergesIntoAssistant(t *testing.T) {
	history := []Message{
		UserMessage("weather in Paris"),
		AssistantMessage("Checking."),
		ToolMessage(ToolCall{ID: "c1", Name: "get_weather", Arguments: `{"city":"Paris"}`}, "sunny"),
	}
	got := toSchemaMessages(history)
	if len(got) != 3 {
		t.Fatalf("expected 3 wire messages, got %d", len(got))
	}
	if got[1].Content != "Checking." || len(got[1].ToolCalls) != 1 {
		t.Fatalf("expected tool call merged into assistant text, got %+v", got[1])
	}
}

func TestStreamTextAndToolCalls(t *testing.T) {
	idx := 0
	fm := &fakeModel{chunks: []*schema.Message{
		{Role: schema.Assistant, Content: "Sure. "},
		{Role: schema.Assistant, Content: "One moment."},
		{Role: schema.Assistant, ToolCalls: []schema.ToolCall{{Index: &idx, ID: "c1", Type: "function", Function: schema.FunctionCall{Name: "get_date", Arguments: "{"}}}},
		{Role: schema.Assistant, ToolCalls: []schema.ToolCall{{Index: &idx, Function: schema.FunctionCall{Arguments: "}"}}}},
	}}
	b := NewEinoBackend(fm)

	stream, err := b.Stream(context.Background(), []Message{UserMessage("date?")}, nil)
	if err != nil {
		t.Fatalf("Stream error: %v", err)
	}
	var pieces []string
	out, err := Collect(stream, func(s string) { pieces = append(pieces, s) })
	if err != nil {
		t.Fatalf("Collect error: %v", err)
	}
	if out.Text != "Sure. One moment." {
		t.Fatalf("unexpected text %q", out.Text)
	}
	if len(pieces) != 2 || pieces[0] != "Sure. " || pieces[1] != "One moment." {
		t.Fatalf("expected each text chunk reported once, got %q", pieces)
	}
	if len(out.ToolCalls) != 1 || out.ToolCalls[0].Name != "get_date" || out.ToolCalls[0].Arguments != "{}" {
		t.Fatalf("unexpected tool calls %+v", out.ToolCalls)
	}
}

func TestSliceStream(t *testing.T) {
	boom := errors.New("reset by peer")
	s := NewSliceStream([]Chunk{{Text: "a"}}, boom)
	if c, err := s.Recv(); err != nil || c.Text != "a" {
		t.Fatalf("first Recv = %+v, %v", c, err)
	}
	if _, err := s.Recv(); !errors.Is(err, boom) {
		t.Fatalf("expected stream error, got %v", err)
	}
	s.Close()
	if _, err := s.Recv(); !errors.Is(err, io.EOF) || !s.Closed() {
		t.Fatalf("expected EOF after close, got %v", err)
	}
}
