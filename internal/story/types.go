package story

import "time"

// PluginName 设置与聊天元数据中使用的键
const PluginName = "story_tracker"

const DefaultSystemPrompt = `你是一个专业的剧情记录员。请阅读以下聊天记录，并以严格的JSON格式输出以下内容：
1. "summary": 当前剧情的简要总结（100字以内）。
2. "characters": 一个列表，包含所有出现的角色，格式为 {"name": "名字", "status": "当前状态/心情/位置"}。
3. "items": 一个列表，包含所有重要物品，格式为 {"name": "物品名", "status": "状态/位置/持有者"}。

只输出JSON，不要包含markdown代码块或其他文字。`

// Settings 插件设置
type Settings struct {
	APIURL         string `json:"apiUrl"`
	APIKey         string `json:"apiKey"`
	Model          string `json:"model"`
	UpdateInterval int    `json:"updateInterval"` // 每隔多少条消息自动梳理，0 为关闭
	SystemPrompt   string `json:"systemPrompt"`
}

// DefaultSettings 首次加载时的默认设置
func DefaultSettings() Settings {
	return Settings{
		APIURL:         "https://api.openai.com",
		APIKey:         "",
		Model:          "gpt-3.5-turbo",
		UpdateInterval: 5,
		SystemPrompt:   DefaultSystemPrompt,
	}
}

// Entity 角色或物品的一行记录
type Entity struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// StoryState 单个聊天的剧情状态，总是整体替换
type StoryState struct {
	Summary    string   `json:"summary"`
	Characters []Entity `json:"characters"`
	Items      []Entity `json:"items"`
}

// Normalize 将 nil 列表替换为空列表，使序列化结果稳定
func (s StoryState) Normalize() StoryState {
	if s.Characters == nil {
		s.Characters = []Entity{}
	}
	if s.Items == nil {
		s.Items = []Entity{}
	}
	return s
}

// Clone 深拷贝，避免调用方修改共享的切片
func (s StoryState) Clone() StoryState {
	out := StoryState{Summary: s.Summary}
	if s.Characters != nil {
		out.Characters = append([]Entity{}, s.Characters...)
	}
	if s.Items != nil {
		out.Items = append([]Entity{}, s.Items...)
	}
	return out
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ChatMessage 宿主聊天记录中的一条消息
type ChatMessage struct {
	ChatID    int64
	MessageID int64 // 来源平台的消息ID，可为 0
	Role      Role
	Name      string
	Text      string
	SentAt    time.Time
}

// Status 梳理状态机：Idle -> Generating -> Idle
type Status int

const (
	StatusIdle Status = iota
	StatusGenerating
)

func (s Status) String() string {
	switch s {
	case StatusGenerating:
		return "generating"
	default:
		return "idle"
	}
}
