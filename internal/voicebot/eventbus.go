package voicebot

import (
	"sync"
)

// EventBus 事件总线，负责组件间异步通信
type EventBus interface {
	Publish(event Event)
	// Subscribe 返回取消订阅函数
	Subscribe(eventType EventType, handler EventHandler) func()
}

// EventHandler 事件处理器
type EventHandler func(event Event)

type subscription struct {
	id      uint64
	handler EventHandler
}

// eventBus 事件总线实现，每个处理器在独立 goroutine 中执行
type eventBus struct {
	mu          sync.RWMutex
	nextID      uint64
	subscribers map[EventType][]subscription
}

func NewEventBus() EventBus {
	return &eventBus{
		subscribers: make(map[EventType][]subscription),
	}
}

// Publish 发布事件，不阻塞发布者
func (eb *eventBus) Publish(event Event) {
	eb.mu.RLock()
	handlers := append([]subscription(nil), eb.subscribers[event.Type()]...)
	eb.mu.RUnlock()

	for _, sub := range handlers {
		go sub.handler(event)
	}
}

// Subscribe 订阅事件
func (eb *eventBus) Subscribe(eventType EventType, handler EventHandler) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.nextID++
	id := eb.nextID
	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscription{id: id, handler: handler})

	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		subs := eb.subscribers[eventType]
		for i, s := range subs {
			if s.id == id {
				eb.subscribers[eventType] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}
