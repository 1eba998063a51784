package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xchovs/story-tracker/internal/host"
	"github.com/xchovs/story-tracker/internal/llm"
	"github.com/xchovs/story-tracker/internal/logger"
	"github.com/xchovs/story-tracker/internal/model"
	"github.com/xchovs/story-tracker/internal/panel"
	"github.com/xchovs/story-tracker/internal/story"
	"github.com/xchovs/story-tracker/internal/tracker"
)

const (
	MissingEndpointMessage = "请先填写 URL 和 API Key"
	ListModelsFailedPrefix = "获取模型失败: "
)

// trackerService 梳理触发策略
type trackerService interface {
	ManualTrigger(ctx context.Context) (bool, error)
	Status() story.Status
	Subscribe(fn func(story.Status)) func()
}

// messageReceiver 保存消息并派发 message_received
type messageReceiver interface {
	Receive(ctx context.Context, msg story.ChatMessage) error
}

// eventEmitter 宿主事件源
type eventEmitter interface {
	Emit(event host.Event, chatID int64)
	ActiveChat() (int64, bool)
}

// chatLister 已保存消息的聊天列表
type chatLister interface {
	GetChats(ctx context.Context) ([]model.ChatInfo, error)
}

// ModelLister 使用对话框中填写的端点获取模型列表
type ModelLister func(ctx context.Context, apiURL, apiKey string) ([]string, error)

type Handler struct {
	settings   story.SettingsStore
	metadata   story.MetadataStore
	panel      *panel.Panel
	tracker    trackerService
	messages   messageReceiver
	chats      chatLister
	events     eventEmitter
	listModels ModelLister
	toaster    story.Toaster
	hub        *Hub
	resp       *ResponseHelper
	echoes     *editEchoes
}

func NewHandler(
	settings story.SettingsStore,
	metadata story.MetadataStore,
	panel *panel.Panel,
	tracker trackerService,
	messages messageReceiver,
	chats chatLister,
	events eventEmitter,
	listModels ModelLister,
	toaster story.Toaster,
	hub *Hub,
) *Handler {
	return &Handler{
		settings:   settings,
		metadata:   metadata,
		panel:      panel,
		tracker:    tracker,
		messages:   messages,
		chats:      chats,
		events:     events,
		listModels: listModels,
		toaster:    toaster,
		hub:        hub,
		resp:       NewResponseHelper(),
		echoes:     newEditEchoes(),
	}
}

// WatchChanges 把状态与当前聊天的剧情变化推送给面板
func (h *Handler) WatchChanges() (unsubscribe func()) {
	unsubStatus := h.tracker.Subscribe(func(status story.Status) {
		h.hub.Broadcast(MessageStatus, gin.H{
			"status":  status.String(),
			"control": panel.ControlFor(status),
		})
	})
	unsubState := h.metadata.Subscribe(func(chatID int64, state story.StoryState) {
		if active, ok := h.events.ActiveChat(); ok && active == chatID {
			data := gin.H{"chatId": chatID, "state": state}
			if source, ok := h.echoes.match(chatID, state); ok {
				data["source"] = source
			}
			h.hub.Broadcast(MessageState, data)
		}
	})
	return func() {
		unsubStatus()
		unsubState()
	}
}

func (h *Handler) view() panel.View {
	return h.panel.View(h.tracker.Status())
}

// IndexPage 当前聊天的剧情面板
func (h *Handler) IndexPage(c *gin.Context) {
	c.HTML(http.StatusOK, "panel.html", h.view())
}

func (h *Handler) GetState(c *gin.Context) {
	h.resp.Success(c, h.view())
}

type ingestRequest struct {
	MessageID int64      `json:"messageId"`
	Role      story.Role `json:"role" binding:"omitempty,oneof=user assistant system"`
	Name      string     `json:"name" binding:"required"`
	Text      string     `json:"text" binding:"required"`
	SentAt    time.Time  `json:"sentAt"`
}

func chatIDParam(c *gin.Context) (int64, bool) {
	chatID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	return chatID, err == nil
}

// IngestMessage 宿主新消息
func (h *Handler) IngestMessage(c *gin.Context) {
	chatID, ok := chatIDParam(c)
	if !ok {
		h.resp.BadRequest(c, "聊天ID无效")
		return
	}

	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.resp.BadRequest(c, err.Error())
		return
	}

	msg := story.ChatMessage{
		ChatID:    chatID,
		MessageID: req.MessageID,
		Role:      req.Role,
		Name:      req.Name,
		Text:      req.Text,
		SentAt:    req.SentAt,
	}
	if err := h.messages.Receive(c.Request.Context(), msg); err != nil {
		logger.Errorf("[API] 保存消息失败, %v", err)
		h.resp.InternalError(c, "保存消息失败")
		return
	}
	h.resp.Created(c, gin.H{"chatId": chatID})
}

// ListChats 已保存消息的聊天
func (h *Handler) ListChats(c *gin.Context) {
	chats, err := h.chats.GetChats(c.Request.Context())
	if err != nil {
		logger.Errorf("[API] 获取聊天列表失败, %v", err)
		h.resp.InternalError(c, "获取聊天列表失败")
		return
	}

	active, hasActive := h.events.ActiveChat()
	items := make([]gin.H, 0, len(chats))
	for _, chat := range chats {
		items = append(items, gin.H{
			"chatId":       chat.ChatID,
			"messageCount": chat.MessageCount,
			"lastSentAt":   chat.LastSentAt,
			"active":       hasActive && chat.ChatID == active,
		})
	}
	h.resp.Success(c, items)
}

// ActivateChat 切换当前聊天
func (h *Handler) ActivateChat(c *gin.Context) {
	chatID, ok := chatIDParam(c)
	if !ok {
		h.resp.BadRequest(c, "聊天ID无效")
		return
	}
	h.events.Emit(host.EventChatChanged, chatID)
	h.resp.Success(c, h.view())
}

// ReplaceStory JSON 方式整体替换当前聊天的剧情
func (h *Handler) ReplaceStory(c *gin.Context) {
	var state story.StoryState
	if err := c.ShouldBindJSON(&state); err != nil {
		h.resp.BadRequest(c, err.Error())
		return
	}
	if !h.panel.Replace(state) {
		h.resp.Conflict(c, tracker.ErrNoActiveChat.Error())
		return
	}
	h.resp.Success(c, h.view())
}

func (h *Handler) finishForm(c *gin.Context, ok bool) {
	if c.Query("async") != "" {
		if !ok {
			h.resp.Conflict(c, tracker.ErrNoActiveChat.Error())
			return
		}
		c.Status(http.StatusNoContent)
		return
	}
	c.Redirect(http.StatusSeeOther, "/")
}

// EditPanel 从表单重建剧情
func (h *Handler) EditPanel(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		h.resp.BadRequest(c, err.Error())
		return
	}
	if client := c.GetHeader(PanelClientHeader); client != "" {
		if chatID, ok := h.events.ActiveChat(); ok {
			h.echoes.record(chatID, client, panel.ReadForm(c.Request.PostForm))
		}
	}
	h.finishForm(c, h.panel.Edit(c.Request.PostForm))
}

// AddRow 追加空行
func (h *Handler) AddRow(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		h.resp.BadRequest(c, err.Error())
		return
	}
	list := c.Param("list")
	if list != panel.ListCharacters && list != panel.ListItems {
		h.resp.BadRequest(c, "未知的列表: "+list)
		return
	}
	h.finishForm(c, h.panel.AddRow(c.Request.PostForm, list))
}

// RemoveRow 删除指定行
func (h *Handler) RemoveRow(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		h.resp.BadRequest(c, err.Error())
		return
	}
	list := c.Param("list")
	if list != panel.ListCharacters && list != panel.ListItems {
		h.resp.BadRequest(c, "未知的列表: "+list)
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		h.resp.BadRequest(c, "行号无效")
		return
	}
	h.finishForm(c, h.panel.RemoveRow(c.Request.PostForm, list, index))
}

func (h *Handler) TogglePanel(c *gin.Context) {
	h.panel.Toggle()
	h.finishForm(c, true)
}

// Summarize 手动梳理，确认框通过 websocket 弹出
func (h *Handler) Summarize(c *gin.Context) {
	triggered, err := h.tracker.ManualTrigger(c.Request.Context())
	if err != nil {
		switch {
		case errors.Is(err, tracker.ErrNoActiveChat), errors.Is(err, ErrNoDialogClient):
			h.resp.Conflict(c, err.Error())
		case errors.Is(err, llm.ErrMissingCredential):
			h.resp.BadRequest(c, err.Error())
		default:
			h.resp.BadGateway(c, err.Error())
		}
		return
	}
	h.resp.Success(c, gin.H{"triggered": triggered, "view": h.view()})
}

// SettingsPage 设置对话框，预填当前设置
func (h *Handler) SettingsPage(c *gin.Context) {
	c.HTML(http.StatusOK, "settings.html", panel.SettingsView{Settings: h.settings.Get()})
}

// SaveSettings 按表单原样覆盖设置
func (h *Handler) SaveSettings(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		h.resp.BadRequest(c, err.Error())
		return
	}
	h.settings.Set(panel.ParseSettingsForm(c.Request.PostForm))
	logger.Infof("[API] 插件设置已更新")
	c.Redirect(http.StatusSeeOther, "/")
}

type listModelsRequest struct {
	APIURL string `json:"apiUrl"`
	APIKey string `json:"apiKey"`
}

// ListModels 使用表单中的 URL 与 Key 获取模型列表
func (h *Handler) ListModels(c *gin.Context) {
	var req listModelsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.resp.BadRequest(c, err.Error())
		return
	}
	if req.APIURL == "" || req.APIKey == "" {
		h.toaster.Warning("", MissingEndpointMessage)
		h.resp.BadRequest(c, MissingEndpointMessage)
		return
	}

	models, err := h.listModels(c.Request.Context(), req.APIURL, req.APIKey)
	if err != nil {
		logger.Errorf("[API] 获取模型列表失败, %v", err)
		h.toaster.Error("", ListModelsFailedPrefix+err.Error())
		h.resp.BadGateway(c, ListModelsFailedPrefix+err.Error())
		return
	}
	h.resp.Success(c, gin.H{"models": models})
}
