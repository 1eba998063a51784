package teleapp

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/elliotchance/pie/v2"
	"github.com/zelenin/go-tdlib/client"

	"github.com/xchovs/story-tracker/internal/logger"
	"github.com/xchovs/story-tracker/internal/story"
)

// messageReceiver 保存消息并派发 message_received（便于测试注入 mock）
type messageReceiver interface {
	Receive(ctx context.Context, msg story.ChatMessage) error
}

type TeleApp struct {
	receiver   messageReceiver
	chatIds    []int64
	user       *client.User
	tdClient   *client.Client
	listener   *client.Listener
	parameters *client.SetTdlibParametersRequest
	usersMu    sync.RWMutex
	usersCache map[int64]*client.User
	chatsMu    sync.RWMutex
	chatsCache map[int64]*client.Chat
	ctx        context.Context
	cancel     context.CancelFunc
	ctxMu      sync.Mutex
}

// NewApp 创建 Telegram 消息源；chatIds 为空时监听全部群组
func NewApp(receiver messageReceiver, chatIds []int64, apiId int32, apiHash, dataDir string) *TeleApp {
	_, err := client.SetLogVerbosityLevel(&client.SetLogVerbosityLevelRequest{
		NewVerbosityLevel: 1,
	})
	if err != nil {
		logger.Fatalf("[TeleApp] 设置日志级别错误, %s", err)
	}

	parameters := &client.SetTdlibParametersRequest{
		UseTestDc:           false,
		DatabaseDirectory:   filepath.Join(dataDir, ".tdlib", "database"),
		FilesDirectory:      filepath.Join(dataDir, ".tdlib", "files"),
		UseFileDatabase:     true,
		UseChatInfoDatabase: true,
		UseMessageDatabase:  true,
		UseSecretChats:      false,
		ApiId:               apiId,
		ApiHash:             apiHash,
		SystemLanguageCode:  "en",
		DeviceModel:         "Server",
		SystemVersion:       "1.0.0",
		ApplicationVersion:  "1.0.0",
	}

	app := &TeleApp{
		receiver:   receiver,
		chatIds:    chatIds,
		parameters: parameters,
		chatsCache: make(map[int64]*client.Chat),
		usersCache: make(map[int64]*client.User),
	}
	return app
}

func (app *TeleApp) Login(options ...client.Option) (*client.User, error) {
	if app.user != nil {
		return app.user, nil
	}

	authorizer := client.ClientAuthorizer(app.parameters)
	go client.CliInteractor(authorizer)

	tdlibClient, err := client.NewClient(authorizer, options...)
	if err != nil {
		return nil, err
	}

	me, err := tdlibClient.GetMe()
	if err != nil {
		return nil, err
	}

	app.user = me
	app.tdClient = tdlibClient

	app.logWatchedChats()

	listener := tdlibClient.GetListener()
	app.listener = listener

	app.ctxMu.Lock()
	app.ctx, app.cancel = context.WithCancel(context.Background())
	app.ctxMu.Unlock()

	go app.getUpdates(listener)

	return me, nil
}

// logWatchedChats 打印将要监听的聊天，配置的聊天不存在时给出警告
func (app *TeleApp) logWatchedChats() {
	chatIds := app.chatIds
	if len(chatIds) == 0 {
		chats, err := app.tdClient.GetChats(&client.GetChatsRequest{Limit: 100})
		if err != nil {
			logger.Warnf("[TeleApp] 获取聊天列表失败: %v", err)
			return
		}
		chatIds = chats.ChatIds
	}

	for _, chatId := range chatIds {
		chat, err := app.getChat(chatId)
		if err != nil {
			logger.Warnf("[TeleApp] 获取聊天信息失败, id: %d, %v", chatId, err)
			continue
		}
		logger.Infof("[TeleApp] 监听聊天: %s[%d]", chat.Title, chat.Id)
	}
}

func (app *TeleApp) Close() error {
	if app.tdClient == nil {
		return nil
	}

	app.ctxMu.Lock()
	if app.cancel != nil {
		app.cancel()
	}
	app.ctxMu.Unlock()

	if app.listener != nil {
		app.listener.Close()
	}

	_, err := app.tdClient.Close()
	return err
}

func (app *TeleApp) getChat(chatId int64) (*client.Chat, error) {
	// 先尝试读锁读取缓存
	app.chatsMu.RLock()
	chat, ok := app.chatsCache[chatId]
	app.chatsMu.RUnlock()
	if ok {
		return chat, nil
	}

	// 缓存未命中，获取数据
	chat, err := app.tdClient.GetChat(&client.GetChatRequest{ChatId: chatId})
	if err != nil {
		return nil, err
	}

	// 写锁更新缓存
	app.chatsMu.Lock()
	app.chatsCache[chatId] = chat
	app.chatsMu.Unlock()
	return chat, nil
}

func (app *TeleApp) getUser(userId int64) (*client.User, error) {
	// 先尝试读锁读取缓存
	app.usersMu.RLock()
	user, ok := app.usersCache[userId]
	app.usersMu.RUnlock()
	if ok {
		return user, nil
	}

	// 缓存未命中，获取数据
	user, err := app.tdClient.GetUser(&client.GetUserRequest{UserId: userId})
	if err != nil {
		return nil, err
	}

	// 写锁更新缓存
	app.usersMu.Lock()
	app.usersCache[userId] = user
	app.usersMu.Unlock()
	return user, nil
}

func (app *TeleApp) getUpdates(listener *client.Listener) {
	app.ctxMu.Lock()
	ctx := app.ctx
	app.ctxMu.Unlock()

	for listener.IsActive() {
		select {
		case <-ctx.Done():
			logger.Infof("[TeleApp] 更新循环已取消，退出")
			return
		case update := <-listener.Updates:
			if update.GetType() != "updateNewMessage" {
				continue
			}

			// 仅处理文本消息
			updateNewMessage := update.(*client.UpdateNewMessage)
			message := updateNewMessage.Message
			if message.Content.MessageContentType() != "messageText" {
				continue
			}

			text := message.Content.(*client.MessageText)
			if text.Text == nil || text.Text.Text == "" {
				continue
			}

			// 获取来源Chat信息
			chat, err := app.getChat(message.ChatId)
			if err != nil {
				logger.Warnf("[TeleApp] 获取聊天信息失败, id: %d, %v", message.ChatId, err)
				continue
			}

			logger.Debugf("[TeleApp] 接收消息: %s[%d] -> %s", chat.Title, chat.Id, text.Text.Text)

			// 配置了聊天列表时只监听列表中的聊天，否则过滤私聊和密聊
			if len(app.chatIds) > 0 {
				if !pie.Contains(app.chatIds, chat.Id) {
					continue
				}
			} else {
				switch chat.Type.ChatTypeType() {
				case client.TypeChatTypePrivate, client.TypeChatTypeSecret:
					continue
				}
			}

			// 获取发送者信息
			senderName := chat.Title
			if message.SenderId != nil {
				switch sender := message.SenderId.(type) {
				case *client.MessageSenderUser:
					user, err := app.getUser(sender.UserId)
					if err != nil {
						logger.Warnf("[TeleApp] 获取用户信息失败, id: %d, %v", sender.UserId, err)
						continue
					}
					senderName = displayName(user)
				case *client.MessageSenderChat:
					if senderChat, err := app.getChat(sender.ChatId); err == nil {
						senderName = senderChat.Title
					}
				}
			}

			// 自己发出的消息视为 assistant
			role := story.RoleUser
			if message.IsOutgoing {
				role = story.RoleAssistant
			}

			msg := story.ChatMessage{
				ChatID:    message.ChatId,
				MessageID: message.Id,
				Role:      role,
				Name:      senderName,
				Text:      text.Text.Text,
				SentAt:    time.Unix(int64(message.Date), 0),
			}
			if err := app.receiver.Receive(ctx, msg); err != nil {
				logger.Errorf("[TeleApp] 保存消息失败, %v", err)
				continue
			}

			logger.Debugf("[TeleApp] 保存消息: %s[%d] -> %s: %s", chat.Title, chat.Id, senderName, text.Text.Text)
		}
	}
}

// displayName 用户显示名称，优先使用姓名，其次用户名
func displayName(user *client.User) string {
	name := user.FirstName
	if user.LastName != "" {
		name += " " + user.LastName
	}
	if name == "" && user.Usernames != nil && len(user.Usernames.ActiveUsernames) > 0 {
		name = "@" + user.Usernames.ActiveUsernames[0]
	}
	return name
}
