package host

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/xchovs/story-tracker/internal/logger"
	"github.com/xchovs/story-tracker/internal/model"
	"github.com/xchovs/story-tracker/internal/story"
)

// settingsPersister 插件设置的持久化（便于测试注入 mock）
type settingsPersister interface {
	Get(ctx context.Context, plugin string) (string, error)
	Upsert(ctx context.Context, plugin, data string) error
}

// SettingsStore 进程级插件设置，修改后防抖保存
type SettingsStore struct {
	plugin    string
	persister settingsPersister
	debouncer *Debouncer
	mu        sync.RWMutex
	settings  story.Settings
	subs      Subscribers[story.Settings]
}

// LoadSettingsStore 读取已保存的设置；首次加载时使用默认值创建
func LoadSettingsStore(ctx context.Context, persister settingsPersister, debouncer *Debouncer, defaults story.Settings) (*SettingsStore, error) {
	s := &SettingsStore{
		plugin:    story.PluginName,
		persister: persister,
		debouncer: debouncer,
		settings:  defaults,
	}

	data, err := persister.Get(ctx, s.plugin)
	if err != nil {
		if !model.IsNotFound(err) {
			return nil, fmt.Errorf("读取插件设置失败: %w", err)
		}
		logger.Infof("[Host] 未找到插件设置，使用默认值创建")
		s.save()
		return s, nil
	}

	// 已保存的字段覆盖默认值
	settings := defaults
	if err := json.Unmarshal([]byte(data), &settings); err != nil {
		return nil, fmt.Errorf("解析插件设置失败: %w", err)
	}
	s.settings = settings
	return s, nil
}

func (s *SettingsStore) Get() story.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Set 整体覆盖设置并防抖保存
func (s *SettingsStore) Set(settings story.Settings) {
	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()

	s.save()
	s.subs.Notify(settings)
}

func (s *SettingsStore) Subscribe(fn func(story.Settings)) func() {
	return s.subs.Add(fn)
}

func (s *SettingsStore) save() {
	s.debouncer.Trigger("settings:"+s.plugin, func() {
		data, err := json.Marshal(s.Get())
		if err != nil {
			logger.Errorf("[Host] 序列化插件设置失败, %v", err)
			return
		}
		if err := s.persister.Upsert(context.Background(), s.plugin, string(data)); err != nil {
			logger.Errorf("[Host] 保存插件设置失败, %v", err)
			return
		}
		logger.Debugf("[Host] 插件设置已保存")
	})
}
