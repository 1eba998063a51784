package teleapp

import (
	"context"
	"fmt"

	"github.com/zelenin/go-tdlib/client"

	"github.com/xchovs/story-tracker/internal/logger"
	"github.com/xchovs/story-tracker/internal/notify"
	"github.com/xchovs/story-tracker/internal/story"
	"github.com/xchovs/story-tracker/internal/summarizer"
)

// Publisher 梳理完成后把剧情发回来源 Telegram 聊天
type Publisher struct {
	app    *TeleApp
	outbox *notify.Outbox
}

// Publisher 发出的消息登记到 outbox，更新循环据此跳过回显
func (app *TeleApp) Publisher(outbox *notify.Outbox) *Publisher {
	return &Publisher{app: app, outbox: outbox}
}

func (p *Publisher) Publish(ctx context.Context, chatID int64, state story.StoryState) error {
	if p.app.tdClient == nil {
		return nil
	}

	content := summarizer.FormatStoryForDisplay(state)
	if content == "" {
		return nil
	}

	for _, msg := range notify.SplitMessage(content) {
		text := parseHTMLText(msg)
		p.outbox.Add(chatID, text.Text)
		_, err := p.app.tdClient.SendMessage(&client.SendMessageRequest{
			ChatId: chatID,
			InputMessageContent: &client.InputMessageText{
				Text: text,
			},
		})
		if err != nil {
			p.outbox.Take(chatID, text.Text)
			return fmt.Errorf("发送剧情到聊天 %d 失败: %w", chatID, err)
		}
	}
	logger.Infof("[TeleApp] 已发送剧情梳理到聊天 %d", chatID)
	return nil
}

// parseHTMLText 使用 TDLib 的 HTML 解析能力，将 HTML 文本转换为带实体的 FormattedText。
// 支持的 HTML 标签：<b>粗体</b>
func parseHTMLText(text string) *client.FormattedText {
	if text == "" {
		return &client.FormattedText{Text: text}
	}

	formatted, err := client.ParseTextEntities(&client.ParseTextEntitiesRequest{
		Text:      text,
		ParseMode: &client.TextParseModeHTML{},
	})
	if err != nil {
		logger.Warnf("[TeleApp] 解析 HTML 文本失败，回退为纯文本发送: %v", err)
		return &client.FormattedText{Text: text}
	}
	return formatted
}
