package svc

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"golang.org/x/net/proxy"

	"github.com/xchovs/story-tracker/internal/api"
	"github.com/xchovs/story-tracker/internal/config"
	"github.com/xchovs/story-tracker/internal/host"
	"github.com/xchovs/story-tracker/internal/llm"
	"github.com/xchovs/story-tracker/internal/logger"
	"github.com/xchovs/story-tracker/internal/model"
	"github.com/xchovs/story-tracker/internal/notify"
	"github.com/xchovs/story-tracker/internal/panel"
	"github.com/xchovs/story-tracker/internal/story"
	"github.com/xchovs/story-tracker/internal/summarizer"
	"github.com/xchovs/story-tracker/internal/tracker"
)

// ConfirmTimeout 等待面板确认的最长时间
const ConfirmTimeout = 2 * time.Minute

type ServiceContext struct {
	Config        *config.Config
	DB            *entsql.Driver
	HTTPClient    *http.Client
	Debouncer     *host.Debouncer
	SettingModel  *model.SettingModel
	MetadataModel *model.MetadataModel
	MessageModel  *model.MessageModel
	Settings      *host.SettingsStore
	Metadata      *host.MetadataStore
	Events        *host.EventBus
	History       *host.History
	Hub           *api.Hub
	Toaster       *notify.Toaster
	Outbox        *notify.Outbox
	Summarizer    *summarizer.Summarizer
	Tracker       *tracker.Tracker
	Panel         *panel.Panel
}

func NewServiceContext(c *config.Config) *ServiceContext {
	ctx := context.Background()

	// 创建数据库连接
	db, err := model.Open(ctx, model.DSN(c.Storage.DataDir))
	if err != nil {
		logger.Fatalf("打开数据库失败, %v", err)
	}

	httpClient, err := newHTTPClient(c)
	if err != nil {
		logger.Fatalf("创建HTTP客户端失败, %v", err)
	}

	debouncer := host.NewDebouncer(time.Duration(c.Storage.SaveDebounceMs) * time.Millisecond)
	settingModel := model.NewSettingModel(db)
	settings, err := host.LoadSettingsStore(ctx, settingModel, debouncer, DefaultSettings(c))
	if err != nil {
		logger.Fatalf("加载插件设置失败, %v", err)
	}

	metadataModel := model.NewMetadataModel(db)
	messageModel := model.NewMessageModel(db)
	metadata := host.NewMetadataStore(metadataModel, debouncer)
	events := host.NewEventBus()
	history := host.NewHistory(messageModel, events)

	hub := api.NewHub(ConfirmTimeout)
	toaster := notify.NewToaster(hub, api.MessageToast)

	sum := summarizer.NewSummarizer(settings, history, metadata,
		summarizer.LLMClientFactory(func(s story.Settings) llm.Options {
			return llm.Options{BaseURL: s.APIURL, APIKey: s.APIKey, Model: s.Model, HTTPClient: httpClient}
		}),
		c.LLM.HistoryLimit,
	)
	trk := tracker.NewTracker(settings, events, hub, toaster, sum)
	events.On(host.EventMessageReceived, trk.OnMessageReceived)

	return &ServiceContext{
		Config:        c,
		DB:            db,
		HTTPClient:    httpClient,
		Debouncer:     debouncer,
		SettingModel:  settingModel,
		MetadataModel: metadataModel,
		MessageModel:  messageModel,
		Settings:      settings,
		Metadata:      metadata,
		Events:        events,
		History:       history,
		Hub:           hub,
		Toaster:       toaster,
		Outbox:        notify.NewOutbox(),
		Summarizer:    sum,
		Tracker:       trk,
		Panel:         panel.New(metadata, events),
	}
}

// DefaultSettings 内置默认设置，配置文件 Defaults 中非空的字段覆盖之
func DefaultSettings(c *config.Config) story.Settings {
	settings := story.DefaultSettings()
	if c.Defaults.BaseURL != "" {
		settings.APIURL = c.Defaults.BaseURL
	}
	if c.Defaults.APIKey != "" {
		settings.APIKey = c.Defaults.APIKey
	}
	if c.Defaults.Model != "" {
		settings.Model = c.Defaults.Model
	}
	if c.Defaults.UpdateInterval != nil {
		settings.UpdateInterval = *c.Defaults.UpdateInterval
	}
	return settings
}

// newHTTPClient LLM 请求使用的HTTP客户端，可选SOCKS5代理
func newHTTPClient(c *config.Config) (*http.Client, error) {
	httpClient := &http.Client{Timeout: time.Duration(c.LLM.TimeoutSeconds) * time.Second}
	if !c.Sock5Proxy.Enable {
		return httpClient, nil
	}

	// 创建SOCKS5代理
	socks5Proxy := fmt.Sprintf("%s:%d", c.Sock5Proxy.Host, c.Sock5Proxy.Port)
	dialer, err := proxy.SOCKS5("tcp", socks5Proxy, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("创建SOCKS5代理失败: %w", err)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	if contextDialer, ok := dialer.(proxy.ContextDialer); ok {
		transport.DialContext = contextDialer.DialContext
	} else {
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialer.Dial(network, addr)
		}
	}
	httpClient.Transport = transport
	return httpClient, nil
}

// ListModels 使用设置对话框中填写的端点获取模型列表
func (svcCtx *ServiceContext) ListModels(ctx context.Context, apiURL, apiKey string) ([]string, error) {
	client := llm.NewClient(llm.Options{BaseURL: apiURL, APIKey: apiKey, HTTPClient: svcCtx.HTTPClient})
	return client.ListModels(ctx)
}

// NewHandler HTTP 处理器
func (svcCtx *ServiceContext) NewHandler() *api.Handler {
	return api.NewHandler(
		svcCtx.Settings,
		svcCtx.Metadata,
		svcCtx.Panel,
		svcCtx.Tracker,
		svcCtx.History,
		svcCtx.MessageModel,
		svcCtx.Events,
		svcCtx.ListModels,
		svcCtx.Toaster,
		svcCtx.Hub,
	)
}

// Close 等待进行中的梳理，写入尚未保存的数据后关闭数据库
func (svcCtx *ServiceContext) Close() {
	svcCtx.Tracker.Wait()
	svcCtx.Debouncer.Flush()
	if err := svcCtx.DB.Close(); err != nil {
		logger.Errorf("关闭数据库失败, %v", err)
	}
}
