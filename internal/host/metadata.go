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

// metadataPersister 聊天元数据的持久化（便于测试注入 mock）
type metadataPersister interface {
	Get(ctx context.Context, chatID int64, plugin string) (string, error)
	Upsert(ctx context.Context, chatID int64, plugin, data string) error
}

// MetadataChange 元数据变更通知
type MetadataChange struct {
	ChatID int64
	State  story.StoryState
}

// MetadataStore 每个聊天的剧情状态，写入整体替换并防抖保存
type MetadataStore struct {
	plugin    string
	persister metadataPersister
	debouncer *Debouncer
	mu        sync.RWMutex
	cache     map[int64]story.StoryState
	missing   map[int64]bool
	revisions map[int64]uint64
	subs      Subscribers[MetadataChange]
}

func NewMetadataStore(persister metadataPersister, debouncer *Debouncer) *MetadataStore {
	return &MetadataStore{
		plugin:    story.PluginName,
		persister: persister,
		debouncer: debouncer,
		cache:     make(map[int64]story.StoryState),
		missing:   make(map[int64]bool),
		revisions: make(map[int64]uint64),
	}
}

// Get 读取聊天的剧情状态，不存在时返回 false
func (s *MetadataStore) Get(chatID int64) (story.StoryState, bool) {
	s.mu.RLock()
	state, ok := s.cache[chatID]
	missing := s.missing[chatID]
	s.mu.RUnlock()
	if ok {
		return state.Clone(), true
	}
	if missing {
		return story.StoryState{}, false
	}

	state, found, err := s.load(chatID)
	if err != nil {
		logger.Errorf("[Host] 读取聊天 %d 的元数据失败, %v", chatID, err)
		return story.StoryState{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// 读取期间可能已被写入
	if cached, ok := s.cache[chatID]; ok {
		return cached.Clone(), true
	}
	if !found {
		s.missing[chatID] = true
		return story.StoryState{}, false
	}
	s.cache[chatID] = state
	return state.Clone(), true
}

func (s *MetadataStore) load(chatID int64) (story.StoryState, bool, error) {
	data, err := s.persister.Get(context.Background(), chatID, s.plugin)
	if err != nil {
		if model.IsNotFound(err) {
			return story.StoryState{}, false, nil
		}
		return story.StoryState{}, false, err
	}

	var state story.StoryState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return story.StoryState{}, false, fmt.Errorf("解析元数据失败: %w", err)
	}
	return state.Normalize(), true, nil
}

// Set 整体替换聊天的剧情状态并防抖保存
func (s *MetadataStore) Set(chatID int64, state story.StoryState) {
	state = state.Clone().Normalize()

	s.mu.Lock()
	s.cache[chatID] = state
	delete(s.missing, chatID)
	s.revisions[chatID]++
	s.mu.Unlock()

	s.save(chatID)
	s.subs.Notify(MetadataChange{ChatID: chatID, State: state.Clone()})
}

func (s *MetadataStore) Revision(chatID int64) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revisions[chatID]
}

func (s *MetadataStore) Subscribe(fn func(chatID int64, state story.StoryState)) func() {
	return s.subs.Add(func(c MetadataChange) { fn(c.ChatID, c.State) })
}

func (s *MetadataStore) save(chatID int64) {
	s.debouncer.Trigger(fmt.Sprintf("chat:%d", chatID), func() {
		s.mu.RLock()
		state := s.cache[chatID]
		s.mu.RUnlock()

		data, err := json.Marshal(state)
		if err != nil {
			logger.Errorf("[Host] 序列化聊天 %d 的元数据失败, %v", chatID, err)
			return
		}
		if err := s.persister.Upsert(context.Background(), chatID, s.plugin, string(data)); err != nil {
			logger.Errorf("[Host] 保存聊天 %d 的元数据失败, %v", chatID, err)
			return
		}
		logger.Debugf("[Host] 聊天 %d 的元数据已保存", chatID)
	})
}
