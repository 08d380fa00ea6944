package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/liuscraft/jowie/internal/chat"
	"github.com/liuscraft/jowie/internal/logging"
	"github.com/liuscraft/jowie/internal/text"
	"github.com/liuscraft/jowie/internal/tools"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrTurnInProgress = errors.New("dialogue: turn already in progress")
	ErrEmptyInput     = errors.New("dialogue: empty input")
	ErrBackend        = errors.New("dialogue: chat backend failed")
	ErrUnknownTool    = errors.New("dialogue: unknown tool")
)

var tracer = otel.Tracer("github.com/liuscraft/jowie/internal/dialogue")

// Speaker 语音输出
type Speaker interface {
	Speak(text string) error
}

// ToolExecutor 工具注册表
type ToolExecutor interface {
	Specs() []chat.ToolSpec
	Execute(ctx context.Context, name, rawArgs string) (string, error)
}

type Config struct {
	SystemPrompt      string
	CompletionTimeout time.Duration
	// ToolTimeout 单个工具的超时，0 表示只受轮次上下文约束
	ToolTimeout time.Duration
	// Stream 流式补全，按句朗读
	Stream bool
	// BatchFollowUp 所有工具执行完后只做一次后续补全
	BatchFollowUp bool
	// MaxToolCalls 每次响应最多执行的工具调用数
	MaxToolCalls int
	Apology      string
}

func DefaultConfig() Config {
	return Config{
		SystemPrompt:      DefaultSystemPrompt,
		CompletionTimeout: 60 * time.Second,
		MaxToolCalls:      8,
		Apology:           DefaultApology,
	}
}

// ToolRecord 一次工具调用的结果
type ToolRecord struct {
	ID        string
	Name      string
	Arguments string
	Result    string
	// Skipped 工具未注册，没有写入历史
	Skipped bool
	Err     error
}

// TurnResult 一轮对话的摘要，供事件和日志使用
type TurnResult struct {
	TurnID    uint64
	UserText  string
	Replies   []string
	ToolCalls []ToolRecord
	StartedAt time.Time
	Duration  time.Duration
	Err       error
}

// Orchestrator 对话编排器，同一时间只处理一轮
type Orchestrator struct {
	cfg     Config
	backend chat.Backend
	tools   ToolExecutor
	speaker Speaker

	mu      sync.Mutex
	state   *StateMachine
	history *History

	hookMu      sync.RWMutex
	onToolError func(call chat.ToolCall, err error)
	onTurn      func(*TurnResult)
}

func NewOrchestrator(cfg Config, backend chat.Backend, executor ToolExecutor, speaker Speaker) *Orchestrator {
	def := DefaultConfig()
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = def.SystemPrompt
	}
	if cfg.CompletionTimeout <= 0 {
		cfg.CompletionTimeout = def.CompletionTimeout
	}
	if cfg.MaxToolCalls <= 0 {
		cfg.MaxToolCalls = def.MaxToolCalls
	}
	if cfg.Apology == "" {
		cfg.Apology = def.Apology
	}
	return &Orchestrator{
		cfg:     cfg,
		backend: backend,
		tools:   executor,
		speaker: speaker,
		state:   NewStateMachine(),
		history: NewHistory(cfg.SystemPrompt),
	}
}

// OnToolError 注册工具错误回调（未注册的工具、执行失败）
func (o *Orchestrator) OnToolError(fn func(call chat.ToolCall, err error)) {
	o.hookMu.Lock()
	defer o.hookMu.Unlock()
	o.onToolError = fn
}

// OnTurnFinished 每轮结束（成功或失败）后回调
func (o *Orchestrator) OnTurnFinished(fn func(*TurnResult)) {
	o.hookMu.Lock()
	defer o.hookMu.Unlock()
	o.onTurn = fn
}

func (o *Orchestrator) GetState() State {
	return o.state.GetCurrentState()
}

// History 返回对话历史副本，进行中的轮次结束前会阻塞
func (o *Orchestrator) History() []chat.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.history.Messages()
}

// Reset 清空历史，只保留系统提示词
func (o *Orchestrator) Reset() error {
	if !o.mu.TryLock() {
		return ErrTurnInProgress
	}
	defer o.mu.Unlock()
	o.history.Reset()
	o.state.ForceReset()
	logging.Infof("Orchestrator: conversation reset")
	return nil
}

// Ask 处理一轮用户输入。聊天后端失败时历史回退到用户消息之后，
// 播报致歉并返回包装了 ErrBackend 的错误。
func (o *Orchestrator) Ask(ctx context.Context, input string) (*TurnResult, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, ErrEmptyInput
	}
	if !o.mu.TryLock() {
		return nil, ErrTurnInProgress
	}
	defer o.mu.Unlock()

	res := &TurnResult{
		TurnID:    logging.StartTurn(),
		UserText:  input,
		StartedAt: time.Now(),
	}
	ctx, span := tracer.Start(ctx, "dialogue.turn", trace.WithAttributes(
		attribute.Int64("turn.id", int64(res.TurnID)),
		attribute.Int("history.len", o.history.Len()),
	))
	defer span.End()

	logging.Infof("Orchestrator: turn started: %q", input)
	o.history.Append(chat.UserMessage(input))
	mark := o.history.Len()
	o.transitionTo(StateRequestingCompletion)

	err := o.runTurn(ctx, res)
	o.transitionTo(StateAwaitingInput)
	res.Duration = time.Since(res.StartedAt)

	if err != nil {
		o.history.Truncate(mark)
		// 回退的助手消息不再算作回复，与历史保持一致
		res.Replies = nil
		res.Err = fmt.Errorf("%w: %w", ErrBackend, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logging.Errorf("Orchestrator: turn aborted after %v: %v", res.Duration, err)
		o.say(o.cfg.Apology)
		o.publish(res)
		return res, res.Err
	}

	logging.Infof("Orchestrator: turn finished in %v (%d replies, %d tool calls)",
		res.Duration, len(res.Replies), len(res.ToolCalls))
	o.publish(res)
	return res, nil
}

func (o *Orchestrator) runTurn(ctx context.Context, res *TurnResult) error {
	comp, err := o.complete(ctx, o.tools.Specs(), false, res)
	if err != nil {
		return err
	}
	calls := comp.ToolCalls
	if len(calls) == 0 {
		return nil
	}
	if len(calls) > o.cfg.MaxToolCalls {
		logging.Warnf("Orchestrator: %d tool calls requested, only the first %d run", len(calls), o.cfg.MaxToolCalls)
		calls = calls[:o.cfg.MaxToolCalls]
	}

	o.transitionTo(StateExecutingTools)
	if o.cfg.BatchFollowUp {
		executed := 0
		for _, call := range calls {
			if o.executeCall(ctx, call, res) {
				executed++
			}
		}
		if executed == 0 {
			return nil
		}
		o.transitionTo(StateRequestingCompletion)
		_, err := o.complete(ctx, nil, true, res)
		return err
	}

	for _, call := range calls {
		if !o.executeCall(ctx, call, res) {
			continue
		}
		o.transitionTo(StateRequestingCompletion)
		if _, err := o.complete(ctx, nil, true, res); err != nil {
			return err
		}
		o.transitionTo(StateExecutingTools)
	}
	return nil
}

// complete 请求一次补全；文本会被朗读并写入历史。
// followUp 为 true 时不附带工具，模型返回的工具调用被忽略。
func (o *Orchestrator) complete(ctx context.Context, specs []chat.ToolSpec, followUp bool, res *TurnResult) (*chat.Completion, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.CompletionTimeout)
	defer cancel()
	ctx, span := tracer.Start(ctx, "dialogue.completion", trace.WithAttributes(
		attribute.Int("tools.count", len(specs)),
		attribute.Bool("stream", o.cfg.Stream),
	))
	defer span.End()

	history := o.history.Messages()
	var (
		comp *chat.Completion
		err  error
	)
	if o.cfg.Stream {
		comp, err = o.streamCompletion(ctx, history, specs)
	} else {
		comp, err = o.backend.Complete(ctx, history, specs)
		if err == nil {
			o.say(comp.Text)
		}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if reply := strings.TrimSpace(comp.Text); reply != "" {
		o.history.Append(chat.AssistantMessage(reply))
		res.Replies = append(res.Replies, reply)
	}
	for i := range comp.ToolCalls {
		if comp.ToolCalls[i].ID == "" {
			comp.ToolCalls[i].ID = "call_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
		}
	}
	if followUp && len(comp.ToolCalls) > 0 {
		logging.Warnf("Orchestrator: follow-up requested %d tool calls, ignored", len(comp.ToolCalls))
		comp.ToolCalls = nil
	}
	span.SetAttributes(attribute.Int("tool_calls.count", len(comp.ToolCalls)))
	return comp, nil
}

// streamCompletion 边收边按句朗读
func (o *Orchestrator) streamCompletion(ctx context.Context, history []chat.Message, specs []chat.ToolSpec) (*chat.Completion, error) {
	stream, err := o.backend.Stream(ctx, history, specs)
	if err != nil {
		return nil, err
	}

	seg := text.NewSegmenter(0)
	comp, err := chat.Collect(stream, func(chunk string) {
		for _, sentence := range seg.Feed(chunk) {
			o.say(sentence)
		}
	})
	if err != nil {
		return nil, err
	}
	o.say(seg.Flush())
	return comp, nil
}

// executeCall 执行一次工具调用，返回是否写入了历史
func (o *Orchestrator) executeCall(ctx context.Context, call chat.ToolCall, res *TurnResult) bool {
	ctx, span := tracer.Start(ctx, "dialogue.tool", trace.WithAttributes(
		attribute.String("tool.name", call.Name),
		attribute.String("tool.call_id", call.ID),
	))
	defer span.End()

	if o.cfg.ToolTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.ToolTimeout)
		defer cancel()
	}

	record := ToolRecord{ID: call.ID, Name: call.Name, Arguments: call.Arguments}
	start := time.Now()
	result, err := o.tools.Execute(ctx, call.Name, call.Arguments)
	if errors.Is(err, tools.ErrToolNotFound) {
		err = fmt.Errorf("%w: %s", ErrUnknownTool, call.Name)
		logging.Errorf("Orchestrator: unknown tool %q requested, skipping", call.Name)
		span.SetStatus(codes.Error, err.Error())
		record.Skipped = true
		record.Err = err
		res.ToolCalls = append(res.ToolCalls, record)
		o.reportToolError(call, err)
		return false
	}
	if err != nil {
		logging.Warnf("Orchestrator: tool %s failed after %v: %v", call.Name, time.Since(start), err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		result = "tool failed: " + err.Error()
		record.Err = err
		o.reportToolError(call, err)
	} else {
		logging.Infof("Orchestrator: tool %s(%s) -> %q in %v", call.Name, call.Arguments, result, time.Since(start))
	}

	record.Result = result
	res.ToolCalls = append(res.ToolCalls, record)
	o.history.Append(chat.ToolMessage(call, result))
	return true
}

func (o *Orchestrator) say(s string) {
	s = strings.TrimSpace(s)
	if s == "" || o.speaker == nil {
		return
	}
	if err := o.speaker.Speak(s); err != nil {
		logging.Warnf("Orchestrator: speech dropped: %v", err)
	}
}

func (o *Orchestrator) transitionTo(to State) {
	from := o.state.GetCurrentState()
	if from == to {
		return
	}
	if !o.state.Transition(to) {
		logging.Warnf("Orchestrator: invalid transition %s -> %s", from, to)
		o.state.ForceReset()
		return
	}
	logging.Debugf("Orchestrator: state %s -> %s", from, to)
}

func (o *Orchestrator) reportToolError(call chat.ToolCall, err error) {
	o.hookMu.RLock()
	fn := o.onToolError
	o.hookMu.RUnlock()
	if fn != nil {
		fn(call, err)
	}
}

func (o *Orchestrator) publish(res *TurnResult) {
	o.hookMu.RLock()
	fn := o.onTurn
	o.hookMu.RUnlock()
	if fn != nil {
		fn(res)
	}
}
