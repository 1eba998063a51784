package host

import (
	"context"
	"fmt"

	"github.com/elliotchance/pie/v2"

	"github.com/xchovs/story-tracker/internal/model"
	"github.com/xchovs/story-tracker/internal/story"
)

// messageStore 聊天记录存储（便于测试注入 mock）
type messageStore interface {
	Create(ctx context.Context, data *model.MessageData) (*model.MessageData, error)
	GetRecentByChat(ctx context.Context, chatID int64, limit int) ([]*model.MessageData, error)
}

// History 聊天记录访问器，写入后派发 message_received
type History struct {
	messages messageStore
	bus      *EventBus
}

func NewHistory(messages messageStore, bus *EventBus) *History {
	return &History{messages: messages, bus: bus}
}

// Recent 返回聊天最近的 limit 条消息，按时间正序
func (h *History) Recent(ctx context.Context, chatID int64, limit int) ([]story.ChatMessage, error) {
	rows, err := h.messages.GetRecentByChat(ctx, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("获取聊天记录失败: %w", err)
	}

	return pie.Map(rows, func(m *model.MessageData) story.ChatMessage {
		return story.ChatMessage{
			ChatID:    m.ChatID,
			MessageID: m.MessageID,
			Role:      story.Role(m.Role),
			Name:      m.SenderName,
			Text:      m.Text,
			SentAt:    m.SentAt,
		}
	}), nil
}

// Receive 保存一条新消息并派发 message_received 事件
func (h *History) Receive(ctx context.Context, msg story.ChatMessage) error {
	role := msg.Role
	if role == "" {
		role = story.RoleUser
	}

	_, err := h.messages.Create(ctx, &model.MessageData{
		MessageID:  msg.MessageID,
		ChatID:     msg.ChatID,
		Role:       string(role),
		SenderName: msg.Name,
		Text:       msg.Text,
		SentAt:     msg.SentAt,
	})
	if err != nil {
		return fmt.Errorf("保存消息失败: %w", err)
	}

	h.bus.Emit(EventMessageReceived, msg.ChatID)
	return nil
}
