package tracker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/xchovs/story-tracker/internal/host"
	"github.com/xchovs/story-tracker/internal/llm"
	"github.com/xchovs/story-tracker/internal/logger"
	"github.com/xchovs/story-tracker/internal/story"
)

const (
	ConfirmTitle   = "重新梳理"
	ConfirmMessage = "确认重新梳理剧情？这将消耗 API 额度。"
	SuccessMessage = "剧情梳理完成"
	ErrorTitle     = "梳理失败"
)

// ErrNoActiveChat 手动梳理时没有激活的聊天
var ErrNoActiveChat = errors.New("请先选择一个聊天")

// summarizer 梳理单个聊天（便于测试注入 mock）
type summarizer interface {
	Summarize(ctx context.Context, chatID int64) (story.StoryState, error)
}

// Tracker 梳理触发策略：消息计数自动触发、手动触发，同一时间最多一次梳理
type Tracker struct {
	settings   story.SettingsStore
	active     story.ActiveChat
	dialog     story.Dialog
	toaster    story.Toaster
	summarizer summarizer

	mu      sync.Mutex
	counter int

	busy   atomic.Bool
	status atomic.Int32
	wg     sync.WaitGroup

	subs host.Subscribers[story.Status]
}

func NewTracker(settings story.SettingsStore, active story.ActiveChat, dialog story.Dialog, toaster story.Toaster, summarizer summarizer) *Tracker {
	return &Tracker{
		settings:   settings,
		active:     active,
		dialog:     dialog,
		toaster:    toaster,
		summarizer: summarizer,
	}
}

// OnMessageReceived 消息计数，达到间隔后异步梳理该聊天
func (t *Tracker) OnMessageReceived(chatID int64) {
	interval := t.settings.Get().UpdateInterval

	t.mu.Lock()
	t.counter++
	fire := interval > 0 && t.counter >= interval
	if fire {
		t.counter = 0
	}
	t.mu.Unlock()

	if fire {
		logger.Infof("[Tracker] 已累计 %d 条消息，自动梳理聊天 %d", interval, chatID)
		t.start(chatID)
	}
}

// Counter 当前累计的消息数
func (t *Tracker) Counter() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counter
}

// ManualTrigger 确认后梳理当前聊天并等待结果。
// 梳理进行中时直接返回 false，不弹出确认框。
func (t *Tracker) ManualTrigger(ctx context.Context) (bool, error) {
	if t.busy.Load() {
		logger.Debugf("[Tracker] 正在梳理中，忽略手动触发")
		return false, nil
	}

	ok, err := t.dialog.Confirm(ctx, ConfirmTitle, ConfirmMessage)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	chatID, ok := t.active.ActiveChat()
	if !ok {
		t.toaster.Warning("", ErrNoActiveChat.Error())
		return false, ErrNoActiveChat
	}

	done, err := t.start(chatID)
	if err != nil {
		return false, err
	}
	if done == nil {
		return false, nil
	}

	select {
	case err := <-done:
		return true, err
	case <-ctx.Done():
		return true, ctx.Err()
	}
}

// start 在调用方 goroutine 中抢占忙标记，成功后异步梳理。
// 已在梳理时返回 nil channel。
func (t *Tracker) start(chatID int64) (<-chan error, error) {
	if t.settings.Get().APIKey == "" {
		t.fail(chatID, llm.ErrMissingCredential)
		return nil, llm.ErrMissingCredential
	}

	if !t.busy.CompareAndSwap(false, true) {
		logger.Debugf("[Tracker] 正在梳理中，丢弃聊天 %d 的梳理请求", chatID)
		return nil, nil
	}
	t.setStatus(story.StatusGenerating)

	done := make(chan error, 1)
	t.wg.Add(1)
	go t.run(chatID, done)
	return done, nil
}

func (t *Tracker) run(chatID int64, done chan<- error) {
	var err error
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[Tracker] 梳理聊天 %d 时发生异常: %v", chatID, r)
			err = errors.New("梳理过程发生异常")
		}
		// 先回到 Idle 再释放忙标记，避免覆盖下一次梳理的 Generating
		t.setStatus(story.StatusIdle)
		t.busy.Store(false)
		done <- err
		t.wg.Done()
	}()

	// 梳理不随请求取消
	_, err = t.summarizer.Summarize(context.Background(), chatID)
	if err != nil {
		t.fail(chatID, err)
		return
	}
	t.toaster.Success("", SuccessMessage)
}

func (t *Tracker) fail(chatID int64, err error) {
	logger.Errorf("[Tracker] 梳理聊天 %d 失败, %v", chatID, err)
	t.toaster.Error(ErrorTitle, err.Error())
}

// Wait 等待进行中的梳理结束
func (t *Tracker) Wait() {
	t.wg.Wait()
}

func (t *Tracker) Status() story.Status {
	return story.Status(t.status.Load())
}

// Subscribe 订阅状态变化
func (t *Tracker) Subscribe(fn func(story.Status)) func() {
	return t.subs.Add(fn)
}

func (t *Tracker) setStatus(status story.Status) {
	t.status.Store(int32(status))
	t.subs.Notify(status)
}
