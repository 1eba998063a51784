package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xchovs/story-tracker/internal/logger"
	"github.com/xchovs/story-tracker/internal/panel"
)

// SetupRouter 配置HTTP路由
func SetupRouter(h *Handler, debug bool) *gin.Engine {
	if debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.RecoveryWithWriter(logger.Writer()), requestLogger())
	r.SetHTMLTemplate(panel.Templates())

	r.GET("/", h.IndexPage)
	r.GET("/settings", h.SettingsPage)
	r.POST("/settings", h.SaveSettings)
	r.GET("/ws", h.hub.ServeWS)

	p := r.Group("/panel")
	{
		p.POST("/edit", h.EditPanel)
		p.POST("/rows/:list", h.AddRow)
		p.POST("/rows/:list/:index/delete", h.RemoveRow)
		p.POST("/toggle", h.TogglePanel)
	}

	api := r.Group("/api")
	{
		api.GET("/state", h.GetState)
		api.PUT("/story", h.ReplaceStory)
		api.POST("/summarize", h.Summarize)
		api.POST("/models", h.ListModels)
		api.GET("/chats", h.ListChats)
		api.POST("/chats/:id/messages", h.IngestMessage)
		api.POST("/chats/:id/activate", h.ActivateChat)
	}

	return r
}

// requestLogger 使用项目日志记录请求
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debugf("[API] %s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}
