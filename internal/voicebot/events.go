package voicebot

import (
	"time"

	"github.com/liuscraft/jowie/internal/dialogue"
)

// Event 事件接口
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// EventType 事件类型
type EventType int

const (
	EventTypeUtteranceFinalized EventType = iota
	EventTypeUtteranceDropped
	EventTypeTranscriptAccepted
	EventTypeTranscriptIgnored
	EventTypeTurnFinished
	EventTypeToolFailed
	EventTypeStateChanged
)

// BaseEvent 事件实现
type BaseEvent struct {
	eventType EventType
	timestamp time.Time
}

func (e *BaseEvent) Type() EventType {
	return e.eventType
}

func (e *BaseEvent) Timestamp() time.Time {
	return e.timestamp
}

func newBase(t EventType) BaseEvent {
	return BaseEvent{eventType: t, timestamp: time.Now()}
}

// UtteranceEvent 语句切出或因队列满被丢弃
type UtteranceEvent struct {
	BaseEvent
	Duration  time.Duration
	Truncated bool
}

func NewUtteranceFinalizedEvent(duration time.Duration, truncated bool) *UtteranceEvent {
	return &UtteranceEvent{
		BaseEvent: newBase(EventTypeUtteranceFinalized),
		Duration:  duration,
		Truncated: truncated,
	}
}

func NewUtteranceDroppedEvent(duration time.Duration) *UtteranceEvent {
	return &UtteranceEvent{
		BaseEvent: newBase(EventTypeUtteranceDropped),
		Duration:  duration,
	}
}

// TranscriptEvent 转写结果，是否通过意图判断由事件类型区分
type TranscriptEvent struct {
	BaseEvent
	Text string
}

func NewTranscriptAcceptedEvent(text string) *TranscriptEvent {
	return &TranscriptEvent{BaseEvent: newBase(EventTypeTranscriptAccepted), Text: text}
}

func NewTranscriptIgnoredEvent(text string) *TranscriptEvent {
	return &TranscriptEvent{BaseEvent: newBase(EventTypeTranscriptIgnored), Text: text}
}

// TurnFinishedEvent 一轮对话结束（含失败）
type TurnFinishedEvent struct {
	BaseEvent
	Result *dialogue.TurnResult
	Err    error
}

func NewTurnFinishedEvent(result *dialogue.TurnResult, err error) *TurnFinishedEvent {
	return &TurnFinishedEvent{BaseEvent: newBase(EventTypeTurnFinished), Result: result, Err: err}
}

// ToolFailedEvent 工具未注册或执行失败
type ToolFailedEvent struct {
	BaseEvent
	Tool string
	Err  error
}

func NewToolFailedEvent(tool string, err error) *ToolFailedEvent {
	return &ToolFailedEvent{BaseEvent: newBase(EventTypeToolFailed), Tool: tool, Err: err}
}

// StateChangedEvent 状态变化事件
type StateChangedEvent struct {
	BaseEvent
	OldState State
	NewState State
}

func NewStateChangedEvent(oldState, newState State) *StateChangedEvent {
	return &StateChangedEvent{
		BaseEvent: newBase(EventTypeStateChanged),
		OldState:  oldState,
		NewState:  newState,
	}
}
