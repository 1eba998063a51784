package model

import (
	"context"
	"testing"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *entsql.Driver {
	t.Helper()
	drv, err := Open(context.Background(), DSN(t.TempDir()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = drv.Close() })
	return drv
}

func TestSettingModel(t *testing.T) {
	ctx := context.Background()
	m := NewSettingModel(openTestDB(t))

	_, err := m.Get(ctx, "story_tracker")
	assert.True(t, IsNotFound(err))

	require.NoError(t, m.Upsert(ctx, "story_tracker", `{"model":"a"}`))
	data, err := m.Get(ctx, "story_tracker")
	require.NoError(t, err)
	assert.Equal(t, `{"model":"a"}`, data)

	require.NoError(t, m.Upsert(ctx, "story_tracker", `{"model":"b"}`))
	data, err = m.Get(ctx, "story_tracker")
	require.NoError(t, err)
	assert.Equal(t, `{"model":"b"}`, data)
}

func TestMetadataModel(t *testing.T) {
	ctx := context.Background()
	m := NewMetadataModel(openTestDB(t))

	_, err := m.Get(ctx, 1, "story_tracker")
	assert.True(t, IsNotFound(err))

	require.NoError(t, m.Upsert(ctx, 1, "story_tracker", `{"summary":"one"}`))
	require.NoError(t, m.Upsert(ctx, 2, "story_tracker", `{"summary":"two"}`))
	require.NoError(t, m.Upsert(ctx, 1, "story_tracker", `{"summary":"one-b"}`))

	data, err := m.Get(ctx, 1, "story_tracker")
	require.NoError(t, err)
	assert.Equal(t, `{"summary":"one-b"}`, data)

	data, err = m.Get(ctx, 2, "story_tracker")
	require.NoError(t, err)
	assert.Equal(t, `{"summary":"two"}`, data)

	_, err = m.Get(ctx, 1, "other_plugin")
	assert.True(t, IsNotFound(err))
}

func TestMessageModel_Recent(t *testing.T) {
	ctx := context.Background()
	m := NewMessageModel(openTestDB(t))

	base := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 25; i++ {
		_, err := m.Create(ctx, &MessageData{
			ChatID:     7,
			Role:       "user",
			SenderName: "艾琳",
			Text:       string(rune('a' + i)),
			SentAt:     base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}
	_, err := m.Create(ctx, &MessageData{ChatID: 8, Role: "assistant", SenderName: "旁白", Text: "other"})
	require.NoError(t, err)

	msgs, err := m.GetRecentByChat(ctx, 7, 20)
	require.NoError(t, err)
	require.Len(t, msgs, 20)
	// 最近 20 条，按时间正序
	assert.Equal(t, "f", msgs[0].Text)
	assert.Equal(t, "y", msgs[19].Text)
	assert.Equal(t, int64(7), msgs[0].ChatID)
	assert.True(t, msgs[0].SentAt.Equal(base.Add(5*time.Minute)))

	all, err := m.GetRecentByChat(ctx, 7, 0)
	require.NoError(t, err)
	assert.Len(t, all, 25)

	none, err := m.GetRecentByChat(ctx, 99, 20)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMessageModel_ChatsAndDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMessageModel(openTestDB(t))

	old := time.Now().AddDate(0, 0, -40)
	recent := time.Now().Add(-time.Hour)
	_, err := m.Create(ctx, &MessageData{ChatID: 1, Role: "user", SenderName: "a", Text: "old", SentAt: old})
	require.NoError(t, err)
	_, err = m.Create(ctx, &MessageData{ChatID: 1, Role: "user", SenderName: "a", Text: "new", SentAt: recent})
	require.NoError(t, err)
	_, err = m.Create(ctx, &MessageData{ChatID: 2, Role: "user", SenderName: "b", Text: "new", SentAt: recent})
	require.NoError(t, err)

	chats, err := m.GetChats(ctx)
	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.Equal(t, int64(1), chats[0].ChatID)
	assert.Equal(t, 2, chats[0].MessageCount)
	assert.Equal(t, int64(2), chats[1].ChatID)

	deleted, err := m.DeleteBefore(ctx, time.Now().AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	msgs, err := m.GetRecentByChat(ctx, 1, 20)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "new", msgs[0].Text)
}
