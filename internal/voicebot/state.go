package voicebot

import (
	"slices"
	"sync"
)

// State 管线第二阶段（转写 → 对话）所处的状态
type State int

const (
	StateIdle State = iota
	StateListening
	StateTranscribing
	StateThinking
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateListening:
		return "Listening"
	case StateTranscribing:
		return "Transcribing"
	case StateThinking:
		return "Thinking"
	default:
		return "Unknown"
	}
}

var validTransitions = map[State][]State{
	StateIdle:         {StateListening},
	StateListening:    {StateTranscribing, StateIdle},
	StateTranscribing: {StateThinking, StateListening, StateIdle},
	StateThinking:     {StateListening, StateIdle},
}

// StateMachine 状态机
type StateMachine struct {
	mu           sync.RWMutex
	currentState State
}

func NewStateMachine() *StateMachine {
	return &StateMachine{
		currentState: StateIdle,
	}
}

// Transition 状态转换，返回转换前的状态
func (sm *StateMachine) Transition(to State) (State, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	from := sm.currentState
	if slices.Contains(validTransitions[from], to) {
		sm.currentState = to
		return from, true
	}
	return from, false
}

// GetCurrentState 获取当前状态
func (sm *StateMachine) GetCurrentState() State {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.currentState
}
