package notify

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/xchovs/story-tracker/internal/logger"
	"github.com/xchovs/story-tracker/internal/story"
)

// OutboxTTL 已发送记录的保留时间，超时未回显的记录直接丢弃
const OutboxTTL = 10 * time.Minute

// Receiver 保存消息并派发 message_received
type Receiver interface {
	Receive(ctx context.Context, msg story.ChatMessage) error
}

type outboxKey struct {
	chatID int64
	text   string
}

// Outbox 记录发回聊天的梳理结果，消息源收到自己发出的这些消息时不再入库
type Outbox struct {
	mu      sync.Mutex
	pending map[outboxKey][]time.Time
	now     func() time.Time
}

func NewOutbox() *Outbox {
	return &Outbox{
		pending: make(map[outboxKey][]time.Time),
		now:     time.Now,
	}
}

// Add 发送前登记；回显可能早于发送请求返回
func (o *Outbox) Add(chatID int64, text string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.prune()
	key := outboxKey{chatID: chatID, text: strings.TrimSpace(text)}
	o.pending[key] = append(o.pending[key], o.now())
}

// Take 消费一条登记记录，不存在时返回 false
func (o *Outbox) Take(chatID int64, text string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.prune()
	key := outboxKey{chatID: chatID, text: strings.TrimSpace(text)}
	sent := o.pending[key]
	if len(sent) == 0 {
		return false
	}
	if len(sent) == 1 {
		delete(o.pending, key)
	} else {
		o.pending[key] = sent[1:]
	}
	return true
}

func (o *Outbox) prune() {
	deadline := o.now().Add(-OutboxTTL)
	for key, sent := range o.pending {
		i := 0
		for i < len(sent) && sent[i].Before(deadline) {
			i++
		}
		if i == len(sent) {
			delete(o.pending, key)
		} else if i > 0 {
			o.pending[key] = sent[i:]
		}
	}
}

// Filter 包装消息接收方，跳过本程序发出的梳理消息
func (o *Outbox) Filter(next Receiver) Receiver {
	return &outboxFilter{outbox: o, next: next}
}

type outboxFilter struct {
	outbox *Outbox
	next   Receiver
}

func (f *outboxFilter) Receive(ctx context.Context, msg story.ChatMessage) error {
	if msg.Role == story.RoleAssistant && f.outbox.Take(msg.ChatID, msg.Text) {
		logger.Debugf("[Notify] 跳过已发送的梳理消息, chat: %d, message: %d", msg.ChatID, msg.MessageID)
		return nil
	}
	return f.next.Receive(ctx, msg)
}
