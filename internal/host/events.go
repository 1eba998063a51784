package host

import (
	"sync"

	"github.com/xchovs/story-tracker/internal/logger"
)

type Event string

const (
	EventMessageReceived Event = "message_received"
	EventChatChanged     Event = "chat_changed"
)

// EventBus 宿主事件源，处理函数按注册顺序同步调用
type EventBus struct {
	mu        sync.RWMutex
	handlers  map[Event][]func(chatID int64)
	active    int64
	hasActive bool
}

func NewEventBus() *EventBus {
	return &EventBus{handlers: make(map[Event][]func(chatID int64))}
}

func (b *EventBus) On(event Event, fn func(chatID int64)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[event] = append(b.handlers[event], fn)
}

// Emit 派发事件；chat_changed 会先更新当前聊天
func (b *EventBus) Emit(event Event, chatID int64) {
	b.mu.Lock()
	if event == EventChatChanged {
		b.active = chatID
		b.hasActive = true
	}
	handlers := append([]func(int64){}, b.handlers[event]...)
	b.mu.Unlock()

	logger.Debugf("[Host] 事件 %s, chatID: %d", event, chatID)
	for _, fn := range handlers {
		fn(chatID)
	}
}

// ActiveChat 当前激活的聊天
func (b *EventBus) ActiveChat() (int64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.active, b.hasActive
}
