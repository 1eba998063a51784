package notify

import (
	"strings"

	"github.com/xchovs/story-tracker/internal/logger"
)

const (
	MaxMessageLength = 4096 // Telegram 消息最大长度
)

// 通知级别
const (
	LevelSuccess = "success"
	LevelWarning = "warning"
	LevelError   = "error"
)

// broadcaster 推送消息给所有面板
type broadcaster interface {
	Broadcast(msgType string, data any)
}

// Toast 推送给面板的通知
type Toast struct {
	Level   string `json:"level"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// Toaster 通知同时写入日志并推送给已连接的面板
type Toaster struct {
	hub     broadcaster
	msgType string
}

func NewToaster(hub broadcaster, msgType string) *Toaster {
	return &Toaster{hub: hub, msgType: msgType}
}

func (t *Toaster) Success(title, message string) {
	logger.Infof("[Notify] %s %s", title, message)
	t.push(LevelSuccess, title, message)
}

func (t *Toaster) Warning(title, message string) {
	logger.Warnf("[Notify] %s %s", title, message)
	t.push(LevelWarning, title, message)
}

func (t *Toaster) Error(title, message string) {
	logger.Errorf("[Notify] %s %s", title, message)
	t.push(LevelError, title, message)
}

func (t *Toaster) push(level, title, message string) {
	if t.hub == nil {
		return
	}
	t.hub.Broadcast(t.msgType, Toast{Level: level, Title: title, Message: message})
}

// SplitMessage 将消息按长度拆分为多条，依次按段落、换行、句号拆分
func SplitMessage(content string) []string {
	if len(content) <= MaxMessageLength {
		return []string{content}
	}

	// 按段落拆分
	paragraphs := strings.Split(content, "\n\n")
	if len(paragraphs) == 1 {
		// 如果没有段落分隔，按换行拆分
		paragraphs = strings.Split(content, "\n")
	}

	messages := make([]string, 0)
	currentMsg := ""

	for _, para := range paragraphs {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		testMsg := currentMsg
		if testMsg != "" {
			testMsg += "\n\n"
		}
		testMsg += para

		if len(testMsg) <= MaxMessageLength {
			currentMsg = testMsg
			continue
		}

		// 当前消息已满，保存并开始新消息
		if currentMsg != "" {
			messages = append(messages, currentMsg)
			currentMsg = ""
		}
		if len(para) <= MaxMessageLength {
			currentMsg = para
			continue
		}

		// 单个段落就超过长度，按句子拆分
		for _, sentence := range strings.Split(para, "。") {
			sentence = strings.TrimSpace(sentence)
			if sentence == "" {
				continue
			}
			if currentMsg != "" && len(currentMsg)+len("。")+len(sentence) > MaxMessageLength {
				messages = append(messages, currentMsg)
				currentMsg = ""
			}
			if currentMsg != "" {
				currentMsg += "。"
			}
			currentMsg += sentence
		}
	}

	if currentMsg != "" {
		messages = append(messages, currentMsg)
	}

	return messages
}
