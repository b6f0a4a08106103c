package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Connection 表示一个WebSocket连接
type Connection struct {
	ID     string
	UserID string
	Conn   *websocket.Conn
	Send   chan []byte
	Hub    *Hub

	mu       sync.RWMutex
	LastPing time.Time
	IsAlive  bool
}

func (c *Connection) alive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.IsAlive
}

func (c *Connection) markDead() {
	c.mu.Lock()
	c.IsAlive = false
	c.mu.Unlock()
}

func (c *Connection) lastPing() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.LastPing
}

func (c *Connection) touch() {
	c.mu.Lock()
	c.LastPing = time.Now()
	c.mu.Unlock()
}

// newUpgrader 根据配置创建WebSocket升级器
func newUpgrader(cfg *Config) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			// 调度台与 API 通常不同源
			return true
		},
		EnableCompression: cfg.EnableCompression,
	}
}

// HandleWebSocket 升级连接并启动读写协程
func HandleWebSocket(hub *Hub, w http.ResponseWriter, r *http.Request, userID string) {
	upgrader := newUpgrader(hub.config)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.Errorf("WebSocket升级失败: %v", err)
		return
	}
	if hub.config.EnableCompression {
		conn.EnableWriteCompression(true)
	}

	connection := &Connection{
		ID:       "conn_" + uuid.NewString(),
		UserID:   userID,
		Conn:     conn,
		Send:     make(chan []byte, hub.config.MessageBufferSize),
		Hub:      hub,
		LastPing: time.Now(),
		IsAlive:  true,
	}
	hub.register <- connection

	go connection.writePump()
	go connection.readPump()
}

// readPump 读取消息的协程
func (c *Connection) readPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(int64(c.Hub.config.MaxMessageSize))
	_ = c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.ConnectionTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.touch()
		return c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.ConnectionTimeout))
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.Errorf("WebSocket读取错误: %v", err)
			}
			return
		}
		c.handleMessage(message)
	}
}

// writePump 发送消息的协程
func (c *Connection) writePump() {
	interval := c.Hub.config.HeartbeatInterval
	if interval <= 0 {
		interval = DefaultHeartbeatInterval * time.Second
	}
	ticker := time.NewTicker(time.Duration(float64(interval) * 0.9))
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage 处理接收到的消息
func (c *Connection) handleMessage(message []byte) {
	var msg Message
	if err := json.Unmarshal(message, &msg); err != nil {
		logrus.Errorf("消息解析失败: %v", err)
		return
	}
	msg.From = c.UserID

	if msg.Type == MessageTypePing {
		c.handlePing()
		return
	}
	fn, ok := c.Hub.handler(msg.Type)
	if !ok {
		logrus.Warnf("%s: %s", ErrInvalidMessageType, msg.Type)
		_ = c.SendMessage(MessageTypeError, ErrInvalidMessageType)
		return
	}
	fn(c, msg)
}

// handlePing 处理ping消息
func (c *Connection) handlePing() {
	c.touch()
	if err := c.SendMessage(MessageTypePong, nil); err != nil {
		logrus.Warnf("连接 %s %s", c.ID, ErrSendBufferFull)
	}
}

// SendMessage 发送消息给当前连接
func (c *Connection) SendMessage(typ string, data any) error {
	msg, err := NewMessage(typ, data)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case c.Send <- raw:
		return nil
	default:
		return errSendBufferFull
	}
}
