package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/xchovs/story-tracker/internal/logger"
)

// 服务端推送的消息类型
const (
	MessageToast         = "toast"
	MessageStatus        = "status"
	MessageState         = "state"
	MessageConfirm       = "confirm"
	MessageConfirmResult = "confirm_result"
)

const (
	pingInterval = 54 * time.Second
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	sendQueue    = 64
)

// ErrNoDialogClient 没有已连接的面板可以弹出确认框
var ErrNoDialogClient = errors.New("没有已连接的面板，无法确认")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Envelope websocket 消息
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type confirmRequest struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

type confirmResult struct {
	ID string `json:"id"`
	OK bool   `json:"ok"`
}

type wsClient struct {
	conn   *websocket.Conn
	send   chan []byte
	closed atomic.Bool
}

func (client *wsClient) enqueue(msg []byte) {
	if client.closed.Load() {
		return
	}
	select {
	case client.send <- msg:
	default:
		logger.Warnf("[API] websocket 消息队列已满，消息被丢弃")
	}
}

// Hub 管理面板的 websocket 连接：推送通知、状态，以及确认框往返
type Hub struct {
	confirmTimeout time.Duration

	mu      sync.RWMutex
	clients map[*wsClient]struct{}

	pendingMu sync.Mutex
	pending   map[string]chan bool
	nextID    atomic.Uint64
}

func NewHub(confirmTimeout time.Duration) *Hub {
	return &Hub{
		confirmTimeout: confirmTimeout,
		clients:        make(map[*wsClient]struct{}),
		pending:        make(map[string]chan bool),
	}
}

// ClientCount 已连接的客户端数量
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast 向所有客户端推送消息
func (h *Hub) Broadcast(msgType string, data any) {
	msg, err := encode(msgType, data)
	if err != nil {
		logger.Errorf("[API] 序列化 websocket 消息失败, %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		client.enqueue(msg)
	}
}

func encode(msgType string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: msgType, Data: raw})
}

// Confirm 请求面板弹出确认框并等待结果；超时或没有面板时视为取消
func (h *Hub) Confirm(ctx context.Context, title, message string) (bool, error) {
	if h.ClientCount() == 0 {
		return false, ErrNoDialogClient
	}

	id := strconv.FormatUint(h.nextID.Add(1), 10)
	result := make(chan bool, 1)
	h.pendingMu.Lock()
	h.pending[id] = result
	h.pendingMu.Unlock()
	defer func() {
		h.pendingMu.Lock()
		delete(h.pending, id)
		h.pendingMu.Unlock()
	}()

	h.Broadcast(MessageConfirm, confirmRequest{ID: id, Title: title, Message: message})

	var timeout <-chan time.Time
	if h.confirmTimeout > 0 {
		timer := time.NewTimer(h.confirmTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case ok := <-result:
		return ok, nil
	case <-timeout:
		logger.Warnf("[API] 等待确认超时, id: %s", id)
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (h *Hub) resolve(res confirmResult) {
	h.pendingMu.Lock()
	ch, ok := h.pending[res.ID]
	delete(h.pending, res.ID)
	h.pendingMu.Unlock()

	if !ok {
		logger.Debugf("[API] 忽略过期的确认结果, id: %s", res.ID)
		return
	}
	ch <- res.OK
}

// ServeWS 升级为 websocket 连接
func (h *Hub) ServeWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warnf("[API] websocket 升级失败, %v", err)
		return
	}

	client := &wsClient{conn: conn, send: make(chan []byte, sendQueue)}
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	logger.Debugf("[API] websocket 客户端已连接, 当前 %d 个", h.ClientCount())

	go h.writePump(client)
	h.readPump(client)
}

func (h *Hub) unregister(client *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	h.mu.Unlock()
	client.closed.Store(true)
}

func (h *Hub) readPump(client *wsClient) {
	defer func() {
		h.unregister(client)
		_ = client.conn.Close()
		logger.Debugf("[API] websocket 客户端已断开")
	}()

	_ = client.conn.SetReadDeadline(time.Now().Add(readTimeout))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warnf("[API] websocket 读取错误, %v", err)
			}
			return
		}
		_ = client.conn.SetReadDeadline(time.Now().Add(readTimeout))

		var envelope Envelope
		if err := json.Unmarshal(data, &envelope); err != nil {
			logger.Warnf("[API] websocket 消息解析失败, %v", err)
			continue
		}

		switch envelope.Type {
		case MessageConfirmResult:
			var res confirmResult
			if err := json.Unmarshal(envelope.Data, &res); err != nil {
				logger.Warnf("[API] 确认结果解析失败, %v", err)
				continue
			}
			h.resolve(res)
		default:
			logger.Debugf("[API] 未知的 websocket 消息类型: %s", envelope.Type)
		}
	}
}

func (h *Hub) writePump(client *wsClient) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = client.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Warnf("[API] websocket 写入失败, %v", err)
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
