package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/xchovs/story-tracker/internal/config"
	"github.com/xchovs/story-tracker/internal/logger"
)

// messageCleaner 删除过期消息（便于测试注入 mock）
type messageCleaner interface {
	DeleteBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// Scheduler 定期清理过期的聊天记录
type Scheduler struct {
	cron         *cron.Cron
	messageModel messageCleaner
	config       *config.Retention
	now          func() time.Time
	ctx          context.Context
	cancel       context.CancelFunc
	mu           sync.Mutex
}

// locUTC UTC 标准时间（UTC）
var locUTC = time.UTC

func NewScheduler(messageModel messageCleaner, cfg *config.Retention) *Scheduler {
	return &Scheduler{
		cron:         cron.New(cron.WithLocation(locUTC)),
		messageModel: messageModel,
		config:       cfg,
		now:          time.Now,
	}
}

// Start 启动调度器，未配置 Cron 时不做任何事
func (s *Scheduler) Start() error {
	if s.config.Cron == "" {
		logger.Infof("[Scheduler] 未配置清理任务，跳过")
		return nil
	}

	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	_, err := s.cron.AddFunc(s.config.Cron, s.runCleanup)
	if err != nil {
		return fmt.Errorf("注册清理任务失败: %w", err)
	}

	s.cron.Start()
	logger.Infof("[Scheduler] 调度器已启动，清理任务: %s，保留 %d 天", s.config.Cron, s.config.RetentionDays)
	return nil
}

// Stop 停止调度器并等待正在执行的任务结束
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Infof("[Scheduler] 调度器已停止")
}

func (s *Scheduler) runCleanup() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}
	s.cleanupMessages(ctx)
}

// cutoff 保留最近 RetentionDays 个完整的 UTC 日
func (s *Scheduler) cutoff() time.Time {
	cutoffDate := s.now().In(locUTC).AddDate(0, 0, -s.config.RetentionDays)
	return time.Date(cutoffDate.Year(), cutoffDate.Month(), cutoffDate.Day(), 0, 0, 0, 0, locUTC)
}

// cleanupMessages 执行消息清理
func (s *Scheduler) cleanupMessages(ctx context.Context) int {
	cutoffDate := s.cutoff()

	logger.Infof("[Scheduler] 开始清理 %s 之前的消息", cutoffDate.Format("2006-01-02"))
	deleted, err := s.messageModel.DeleteBefore(ctx, cutoffDate)
	if err != nil {
		logger.Errorf("[Scheduler] 清理消息失败: %v", err)
		return 0
	}
	logger.Infof("[Scheduler] 已清理 %d 条消息", deleted)
	return deleted
}
