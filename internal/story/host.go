package story

import "context"

// SettingsStore 按插件名保存的进程级设置
type SettingsStore interface {
	Get() Settings
	Set(settings Settings)
	Subscribe(fn func(Settings)) (unsubscribe func())
}

// MetadataStore 按聊天保存的剧情状态
type MetadataStore interface {
	Get(chatID int64) (StoryState, bool)
	Set(chatID int64, state StoryState)
	// Revision 每次 Set 后递增，用于发现梳理期间的手动编辑
	Revision(chatID int64) uint64
	Subscribe(fn func(chatID int64, state StoryState)) (unsubscribe func())
}

// History 访问聊天记录
type History interface {
	Recent(ctx context.Context, chatID int64, limit int) ([]ChatMessage, error)
}

// Dialog 确认对话框
type Dialog interface {
	Confirm(ctx context.Context, title, message string) (bool, error)
}

// Toaster 短暂的提示通知
type Toaster interface {
	Success(title, message string)
	Warning(title, message string)
	Error(title, message string)
}

// ActiveChat 当前激活的聊天
type ActiveChat interface {
	ActiveChat() (chatID int64, ok bool)
}
