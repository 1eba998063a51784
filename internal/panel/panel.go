package panel

import (
	"embed"
	"html/template"
	"net/url"
	"slices"
	"strconv"
	"sync"

	"github.com/xchovs/story-tracker/internal/logger"
	"github.com/xchovs/story-tracker/internal/story"
)

//go:embed templates/*.html
var templateFS embed.FS

// 行列表名称
const (
	ListCharacters = "characters"
	ListItems      = "items"
)

// 表单字段名
const (
	FieldSummary = "summary"
	fieldName    = ".name"
	fieldStatus  = ".status"
)

// Templates 面板与设置对话框的模板
func Templates() *template.Template {
	return template.Must(template.New("").ParseFS(templateFS, "templates/*.html"))
}

// Control 刷新按钮，由梳理状态派生
type Control struct {
	Label    string `json:"label"`
	Disabled bool   `json:"disabled"`
}

func ControlFor(status story.Status) Control {
	if status == story.StatusGenerating {
		return Control{Label: "...", Disabled: true}
	}
	return Control{Label: "↻"}
}

// View 面板渲染所需的全部数据
type View struct {
	ChatID    int64            `json:"chatId"`
	HasChat   bool             `json:"hasChat"`
	State     story.StoryState `json:"state"`
	Status    string           `json:"status"`
	Control   Control          `json:"control"`
	Minimized bool             `json:"minimized"`
}

// Panel 当前聊天的剧情面板，编辑总是整体替换 StoryState
type Panel struct {
	metadata story.MetadataStore
	active   story.ActiveChat

	mu        sync.Mutex
	minimized bool
}

func New(metadata story.MetadataStore, active story.ActiveChat) *Panel {
	return &Panel{metadata: metadata, active: active}
}

// View 当前聊天的面板；未保存过的聊天显示空白状态
func (p *Panel) View(status story.Status) View {
	p.mu.Lock()
	minimized := p.minimized
	p.mu.Unlock()

	view := View{
		State:     story.StoryState{}.Normalize(),
		Status:    status.String(),
		Control:   ControlFor(status),
		Minimized: minimized,
	}

	chatID, ok := p.active.ActiveChat()
	if !ok {
		return view
	}
	view.ChatID = chatID
	view.HasChat = true
	if state, ok := p.metadata.Get(chatID); ok {
		view.State = state.Normalize()
	}
	return view
}

// Replace 整体写入当前聊天的 StoryState，没有激活聊天时返回 false
func (p *Panel) Replace(state story.StoryState) bool {
	chatID, ok := p.active.ActiveChat()
	if !ok {
		return false
	}
	p.metadata.Set(chatID, state.Normalize())
	return true
}

// Edit 从表单重建 StoryState 并写入
func (p *Panel) Edit(form url.Values) bool {
	return p.Replace(ReadForm(form))
}

// AddRow 从表单重建后在指定列表末尾追加空行并写入
func (p *Panel) AddRow(form url.Values, list string) bool {
	state := ReadForm(form)
	switch list {
	case ListCharacters:
		state.Characters = append(state.Characters, story.Entity{})
	case ListItems:
		state.Items = append(state.Items, story.Entity{})
	default:
		logger.Warnf("[Panel] 未知的列表: %s", list)
		return false
	}
	return p.Replace(state)
}

// RemoveRow 从表单重建后删除指定行并写入；行号越界时按原表单写入
func (p *Panel) RemoveRow(form url.Values, list string, index int) bool {
	state := ReadForm(form)
	var rows *[]story.Entity
	switch list {
	case ListCharacters:
		rows = &state.Characters
	case ListItems:
		rows = &state.Items
	default:
		logger.Warnf("[Panel] 未知的列表: %s", list)
		return false
	}

	if index >= 0 && index < len(*rows) {
		*rows = slices.Delete(*rows, index, index+1)
	} else {
		logger.Warnf("[Panel] 删除行越界, list: %s, index: %d, rows: %d", list, index, len(*rows))
	}
	return p.Replace(state)
}

// Toggle 切换面板折叠状态，返回切换后的状态
func (p *Panel) Toggle() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.minimized = !p.minimized
	return p.minimized
}

// FormValues 把 StoryState 展开为表单字段，顺序与渲染一致
func FormValues(state story.StoryState) url.Values {
	values := url.Values{}
	values.Set(FieldSummary, state.Summary)
	for _, list := range []struct {
		name     string
		entities []story.Entity
	}{
		{ListCharacters, state.Characters},
		{ListItems, state.Items},
	} {
		for _, e := range list.entities {
			values.Add(list.name+fieldName, e.Name)
			values.Add(list.name+fieldStatus, e.Status)
		}
	}
	return values
}

// ReadForm 从全部表单字段重建 StoryState，不做校验
func ReadForm(form url.Values) story.StoryState {
	return story.StoryState{
		Summary:    form.Get(FieldSummary),
		Characters: readRows(form, ListCharacters),
		Items:      readRows(form, ListItems),
	}
}

func readRows(form url.Values, list string) []story.Entity {
	names := form[list+fieldName]
	statuses := form[list+fieldStatus]

	n := max(len(names), len(statuses))
	rows := make([]story.Entity, n)
	for i := range rows {
		if i < len(names) {
			rows[i].Name = names[i]
		}
		if i < len(statuses) {
			rows[i].Status = statuses[i]
		}
	}
	return rows
}

// 设置对话框字段
const (
	FieldAPIURL         = "apiUrl"
	FieldAPIKey         = "apiKey"
	FieldModel          = "model"
	FieldUpdateInterval = "updateInterval"
	FieldSystemPrompt   = "systemPrompt"
)

// SettingsView 设置对话框
type SettingsView struct {
	Settings story.Settings
	Models   []string
}

// ParseSettingsForm 按表单字段原样覆盖设置；间隔无法解析或为负时记为 0，即关闭自动梳理
func ParseSettingsForm(form url.Values) story.Settings {
	interval, err := strconv.Atoi(form.Get(FieldUpdateInterval))
	if err != nil || interval < 0 {
		interval = 0
	}
	return story.Settings{
		APIURL:         form.Get(FieldAPIURL),
		APIKey:         form.Get(FieldAPIKey),
		Model:          form.Get(FieldModel),
		UpdateInterval: interval,
		SystemPrompt:   form.Get(FieldSystemPrompt),
	}
}
