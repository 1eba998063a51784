package model

import (
	"context"
	"time"

	entsql "entgo.io/ent/dialect/sql"
)

type MessageModel struct {
	drv *entsql.Driver
}

func NewMessageModel(drv *entsql.Driver) *MessageModel {
	return &MessageModel{drv: drv}
}

type MessageData struct {
	ID         int
	MessageID  int64 // 来源平台的消息ID，网页录入时为 0
	ChatID     int64
	Role       string
	SenderName string
	Text       string
	SentAt     time.Time
}

// ChatInfo 聊天列表中的一项
type ChatInfo struct {
	ChatID       int64
	MessageCount int
	LastSentAt   time.Time
}

var messageColumns = []string{"id", "message_id", "chat_id", "role", "sender_name", "text", "sent_at"}

// Create 保存消息
func (m *MessageModel) Create(ctx context.Context, data *MessageData) (*MessageData, error) {
	// 统一按 UTC 存储，保证时间文本可直接比较
	sentAt := data.SentAt.UTC()
	if data.SentAt.IsZero() {
		sentAt = time.Now().UTC()
	}

	query, args := builder().
		Insert(MessagesTable.Name).
		Columns("message_id", "chat_id", "role", "sender_name", "text", "sent_at", "create_time").
		Values(data.MessageID, data.ChatID, data.Role, data.SenderName, data.Text, sentAt, time.Now().UTC()).
		Query()

	var res entsql.Result
	if err := m.drv.Exec(ctx, query, args, &res); err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	saved := *data
	saved.ID = int(id)
	saved.SentAt = sentAt
	return &saved, nil
}

// GetRecentByChat 查询聊天最近的 limit 条消息，按时间正序返回
func (m *MessageModel) GetRecentByChat(ctx context.Context, chatID int64, limit int) ([]*MessageData, error) {
	selector := builder().
		Select(messageColumns...).
		From(builder().Table(MessagesTable.Name)).
		Where(entsql.EQ("chat_id", chatID)).
		OrderBy(entsql.Desc("id"))
	if limit > 0 {
		selector.Limit(limit)
	}
	query, args := selector.Query()

	var rows entsql.Rows
	if err := m.drv.Query(ctx, query, args, &rows); err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]*MessageData, 0)
	for rows.Next() {
		var msg MessageData
		if err := rows.Scan(&msg.ID, &msg.MessageID, &msg.ChatID, &msg.Role, &msg.SenderName, &msg.Text, &msg.SentAt); err != nil {
			return nil, err
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// 倒序查询，翻转为时间正序
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// GetChats 查询所有有消息的聊天
func (m *MessageModel) GetChats(ctx context.Context) ([]ChatInfo, error) {
	query, args := builder().
		Select("chat_id", entsql.Count("*"), entsql.Max("sent_at")).
		From(builder().Table(MessagesTable.Name)).
		GroupBy("chat_id").
		OrderBy("chat_id").
		Query()

	var rows entsql.Rows
	if err := m.drv.Query(ctx, query, args, &rows); err != nil {
		return nil, err
	}
	defer rows.Close()

	chats := make([]ChatInfo, 0)
	for rows.Next() {
		var (
			info   ChatInfo
			lastAt entsql.NullString
		)
		if err := rows.Scan(&info.ChatID, &info.MessageCount, &lastAt); err != nil {
			return nil, err
		}
		if lastAt.Valid {
			info.LastSentAt = parseSQLiteTime(lastAt.String)
		}
		chats = append(chats, info)
	}
	return chats, rows.Err()
}

// DeleteBefore 删除指定时间之前的消息
func (m *MessageModel) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	query, args := builder().
		Delete(MessagesTable.Name).
		Where(entsql.LT("sent_at", cutoff.UTC())).
		Query()

	var res entsql.Result
	if err := m.drv.Exec(ctx, query, args, &res); err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

// parseSQLiteTime 解析 MAX() 聚合后失去列类型的时间文本
func parseSQLiteTime(s string) time.Time {
	layouts := []string{
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02T15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02T15:04:05.999999999",
		"2006-01-02 15:04:05",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
