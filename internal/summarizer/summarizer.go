package summarizer

import (
	"context"
	"fmt"
	"strings"

	"github.com/xchovs/story-tracker/internal/llm"
	"github.com/xchovs/story-tracker/internal/logger"
	"github.com/xchovs/story-tracker/internal/story"
)

// DefaultHistoryLimit 参与梳理的最近消息条数
const DefaultHistoryLimit = 20

// Completer 单次补全调用（便于测试注入 mock）
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ClientFactory 按当前设置创建 LLM 客户端，设置随时可能被修改
type ClientFactory func(settings story.Settings) Completer

// Publisher 梳理完成后的额外发布渠道
type Publisher interface {
	Publish(ctx context.Context, chatID int64, state story.StoryState) error
}

type Summarizer struct {
	settings     story.SettingsStore
	history      story.History
	metadata     story.MetadataStore
	newClient    ClientFactory
	historyLimit int
	publisher    Publisher
}

func NewSummarizer(settings story.SettingsStore, history story.History, metadata story.MetadataStore, newClient ClientFactory, historyLimit int) *Summarizer {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Summarizer{
		settings:     settings,
		history:      history,
		metadata:     metadata,
		newClient:    newClient,
		historyLimit: historyLimit,
	}
}

// SetPublisher 设置梳理完成后的发布渠道，nil 表示不发布
func (s *Summarizer) SetPublisher(publisher Publisher) {
	s.publisher = publisher
}

// LLMClientFactory 使用 llm.Client 的默认工厂
func LLMClientFactory(options func(settings story.Settings) llm.Options) ClientFactory {
	return func(settings story.Settings) Completer {
		return llm.NewClient(options(settings))
	}
}

// BuildPrompt 系统提示词 + 聊天记录，每条消息一行 "名字: 内容"
func BuildPrompt(systemPrompt string, messages []story.ChatMessage) string {
	var sb strings.Builder
	sb.WriteString(systemPrompt)
	sb.WriteString("\n\n聊天记录:\n")
	for i, msg := range messages {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(msg.Name)
		sb.WriteString(": ")
		sb.WriteString(msg.Text)
	}
	return sb.String()
}

// Summarize 梳理指定聊天的剧情，成功后整体替换该聊天的 StoryState。
// 失败时原有状态保持不变。
func (s *Summarizer) Summarize(ctx context.Context, chatID int64) (story.StoryState, error) {
	settings := s.settings.Get()
	if settings.APIKey == "" {
		return story.StoryState{}, llm.ErrMissingCredential
	}

	// 记录开始时的版本，用于发现梳理期间的手动编辑
	revision := s.metadata.Revision(chatID)

	messages, err := s.history.Recent(ctx, chatID, s.historyLimit)
	if err != nil {
		return story.StoryState{}, err
	}
	logger.Infof("[Summarizer] 开始梳理聊天 %d 的剧情，共 %d 条消息", chatID, len(messages))

	prompt := BuildPrompt(settings.SystemPrompt, messages)
	content, err := s.newClient(settings).Complete(ctx, prompt)
	if err != nil {
		return story.StoryState{}, err
	}

	var state story.StoryState
	tier, err := llm.ExtractJSON(content, &state)
	if err != nil {
		logger.Debugf("[Summarizer] 无法解析模型返回的内容: %s", content)
		return story.StoryState{}, err
	}
	if tier != llm.TierStrict {
		logger.Debugf("[Summarizer] 模型返回内容包含多余文本，使用 %s 提取", tier)
	}
	state = state.Normalize()

	if current := s.metadata.Revision(chatID); current != revision {
		logger.Warnf("[Summarizer] 聊天 %d 在梳理期间被手动编辑，梳理结果将覆盖编辑内容", chatID)
	}
	s.metadata.Set(chatID, state)

	logger.Infof("[Summarizer] 聊天 %d 梳理完成，角色 %d 个，物品 %d 个",
		chatID, len(state.Characters), len(state.Items))

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, chatID, state); err != nil {
			logger.Errorf("[Summarizer] 发布梳理结果失败, %v", err)
		}
	}

	return state, nil
}

// escapeHTML 对文本进行 HTML 转义，防止注入及破坏标签
// 转义：& < > "
func escapeHTML(text string) string {
	result := strings.ReplaceAll(text, "&", "&amp;")
	result = strings.ReplaceAll(result, "<", "&lt;")
	result = strings.ReplaceAll(result, ">", "&gt;")
	result = strings.ReplaceAll(result, "\"", "&quot;")
	return result
}

// FormatStoryForDisplay 将 StoryState 格式化为 Telegram HTML 文本
// 使用 Telegram HTML 语法：<b>粗体</b>
func FormatStoryForDisplay(state story.StoryState) string {
	if state.Summary == "" && len(state.Characters) == 0 && len(state.Items) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("📖 <b>剧情梳理</b>\n")
	if state.Summary != "" {
		sb.WriteString(escapeHTML(state.Summary))
		sb.WriteString("\n")
	}

	writeEntities := func(title string, entities []story.Entity) {
		if len(entities) == 0 {
			return
		}
		sb.WriteString(fmt.Sprintf("\n<b>%s</b>\n", title))
		for _, e := range entities {
			sb.WriteString(fmt.Sprintf("- <b>%s</b> %s\n", escapeHTML(e.Name), escapeHTML(e.Status)))
		}
	}
	writeEntities("👥 角色", state.Characters)
	writeEntities("🎒 物品", state.Items)

	return strings.TrimRight(sb.String(), "\n")
}
