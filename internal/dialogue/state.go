package dialogue

import (
	"slices"
	"sync"
)

// State 一轮对话所处的阶段
type State int

const (
	StateAwaitingInput State = iota
	StateRequestingCompletion
	StateExecutingTools
)

func (s State) String() string {
	switch s {
	case StateAwaitingInput:
		return "AwaitingInput"
	case StateRequestingCompletion:
		return "RequestingCompletion"
	case StateExecutingTools:
		return "ExecutingTools"
	default:
		return "Unknown"
	}
}

var validTransitions = map[State][]State{
	StateAwaitingInput:        {StateRequestingCompletion},
	StateRequestingCompletion: {StateExecutingTools, StateAwaitingInput},
	StateExecutingTools:       {StateRequestingCompletion, StateAwaitingInput},
}

// StateMachine 状态机
type StateMachine struct {
	mu           sync.RWMutex
	currentState State
}

func NewStateMachine() *StateMachine {
	return &StateMachine{
		currentState: StateAwaitingInput,
	}
}

func canTransition(from, to State) bool {
	validTo, ok := validTransitions[from]
	if !ok {
		return false
	}
	return slices.Contains(validTo, to)
}

// Transition 状态转换
func (sm *StateMachine) Transition(to State) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if canTransition(sm.currentState, to) {
		sm.currentState = to
		return true
	}
	return false
}

// ForceReset 无条件回到 AwaitingInput
func (sm *StateMachine) ForceReset() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.currentState = StateAwaitingInput
}

// GetCurrentState 获取当前状态
func (sm *StateMachine) GetCurrentState() State {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.currentState
}
