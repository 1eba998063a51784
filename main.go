//go:build linux
// +build linux

package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zelenin/go-tdlib/client"
	"golang.org/x/sync/errgroup"

	"github.com/xchovs/story-tracker/internal/api"
	"github.com/xchovs/story-tracker/internal/config"
	"github.com/xchovs/story-tracker/internal/logger"
	"github.com/xchovs/story-tracker/internal/scheduler"
	"github.com/xchovs/story-tracker/internal/svc"
	"github.com/xchovs/story-tracker/internal/teleapp"
)

var configFile = flag.String("f", "etc/config.yaml", "the config file")

func main() {
	flag.Parse()

	// 读取配置文件
	c, err := config.LoadFromFile(*configFile)
	if err != nil {
		logger.Fatalf("读取配置文件失败, %s", err)
	}
	logger.SetDebug(c.Server.Debug)

	// 创建数据目录
	if err := os.MkdirAll(c.Storage.DataDir, 0755); err != nil {
		logger.Fatalf("创建数据目录失败, %s", err)
	}

	// 创建服务上下文
	svcCtx := svc.NewServiceContext(c)

	// 运行Telegram App
	var app *teleapp.TeleApp
	if c.TelegramApp.Enable {
		options := make([]client.Option, 0)
		if c.Sock5Proxy.Enable {
			options = append(options, client.WithProxy(&client.AddProxyRequest{
				Server: c.Sock5Proxy.Host,
				Port:   c.Sock5Proxy.Port,
				Enable: c.Sock5Proxy.Enable,
				Type:   &client.ProxyTypeSocks5{},
			}))
		}

		app = teleapp.NewApp(svcCtx.Outbox.Filter(svcCtx.History), c.TelegramApp.ChatIds, c.TelegramApp.ApiId, c.TelegramApp.ApiHash, c.Storage.DataDir)
		user, err := app.Login(options...)
		if err != nil {
			logger.Fatalf("[TeleApp] 用户登录失败, %s", err)
		}
		logger.Infof("[TeleApp] 用户 <%s %s>(%d) 登录成功", user.FirstName, user.LastName, user.Id)

		if c.TelegramApp.PublishSummary {
			svcCtx.Summarizer.SetPublisher(app.Publisher(svcCtx.Outbox))
		}
	}

	// 创建并启动调度器
	schedulerInstance := scheduler.NewScheduler(svcCtx.MessageModel, &c.Retention)
	if err := schedulerInstance.Start(); err != nil {
		logger.Fatalf("[Scheduler] 启动调度器失败: %s", err)
	}

	// HTTP 面板
	handler := svcCtx.NewHandler()
	unwatch := handler.WatchChanges()
	server := &http.Server{
		Addr:              c.Server.Addr,
		Handler:           api.SetupRouter(handler, c.Server.Debug),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("[API] 面板已启动: http://%s", c.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Errorf("[API] 服务异常退出, %v", err)
	}

	// 优雅关闭
	logger.Infof("正在关闭服务...")
	unwatch()
	schedulerInstance.Stop()
	if app != nil {
		if err := app.Close(); err != nil {
			logger.Infof("[TeleApp] 关闭失败, %v", err)
		}
	}
	svcCtx.Close()
	logger.Infof("服务已停止")
}
