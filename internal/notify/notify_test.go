package notify

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xchovs/story-tracker/internal/story"
)

type fakeHub struct {
	types  []string
	toasts []Toast
}

func (f *fakeHub) Broadcast(msgType string, data any) {
	f.types = append(f.types, msgType)
	f.toasts = append(f.toasts, data.(Toast))
}

func TestToaster(t *testing.T) {
	hub := &fakeHub{}
	toaster := NewToaster(hub, "toast")

	toaster.Success("", "剧情梳理完成")
	toaster.Warning("", "请先填写 URL 和 API Key")
	toaster.Error("梳理失败", "API 请求失败")

	assert.Equal(t, []string{"toast", "toast", "toast"}, hub.types)
	assert.Equal(t, []Toast{
		{Level: LevelSuccess, Message: "剧情梳理完成"},
		{Level: LevelWarning, Message: "请先填写 URL 和 API Key"},
		{Level: LevelError, Title: "梳理失败", Message: "API 请求失败"},
	}, hub.toasts)
}

func TestToaster_NoHub(t *testing.T) {
	toaster := NewToaster(nil, "toast")
	assert.NotPanics(t, func() { toaster.Success("", "ok") })
}

func TestSplitMessage(t *testing.T) {
	short := "📖 剧情梳理\n艾琳来到酒馆"
	assert.Equal(t, []string{short}, SplitMessage(short))

	para := strings.Repeat("a", 3000)
	parts := SplitMessage(para + "\n\n" + para)
	assert.Equal(t, []string{para, para}, parts)

	// 单段超长时按句号拆分
	sentence := strings.Repeat("b", 1000)
	long := strings.Repeat(sentence+"。", 9)
	parts = SplitMessage(long)
	assert.Greater(t, len(parts), 1)
	for _, p := range parts {
		assert.LessOrEqual(t, len(p), MaxMessageLength)
	}
	assert.Equal(t, strings.Repeat("b", 9000), strings.ReplaceAll(strings.Join(parts, ""), "。", ""))
}

type fakeReceiver struct {
	received []story.ChatMessage
}

func (f *fakeReceiver) Receive(ctx context.Context, msg story.ChatMessage) error {
	f.received = append(f.received, msg)
	return nil
}

func TestOutbox_Filter(t *testing.T) {
	outbox := NewOutbox()
	next := &fakeReceiver{}
	receiver := outbox.Filter(next)
	ctx := context.Background()

	outbox.Add(1, "📖 剧情梳理\n艾琳来到酒馆\n")

	// 其他聊天、非自己发出的消息不受影响
	require.NoError(t, receiver.Receive(ctx, story.ChatMessage{ChatID: 2, Role: story.RoleAssistant, Text: "📖 剧情梳理\n艾琳来到酒馆"}))
	require.NoError(t, receiver.Receive(ctx, story.ChatMessage{ChatID: 1, Role: story.RoleUser, Text: "📖 剧情梳理\n艾琳来到酒馆"}))
	assert.Len(t, next.received, 2)

	require.NoError(t, receiver.Receive(ctx, story.ChatMessage{ChatID: 1, Role: story.RoleAssistant, Text: "📖 剧情梳理\n艾琳来到酒馆"}))
	assert.Len(t, next.received, 2)

	// 每条登记只跳过一次
	require.NoError(t, receiver.Receive(ctx, story.ChatMessage{ChatID: 1, Role: story.RoleAssistant, Text: "📖 剧情梳理\n艾琳来到酒馆"}))
	assert.Len(t, next.received, 3)
}

func TestOutbox_Expire(t *testing.T) {
	outbox := NewOutbox()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	outbox.now = func() time.Time { return now }

	outbox.Add(1, "a")
	outbox.Add(1, "a")
	now = now.Add(OutboxTTL / 2)
	outbox.Add(1, "a")

	now = now.Add(OutboxTTL/2 + time.Second)
	assert.True(t, outbox.Take(1, "a"))
	assert.False(t, outbox.Take(1, "a"))
	assert.Empty(t, outbox.pending)
}
