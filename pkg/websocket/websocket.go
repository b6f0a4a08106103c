package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Message 定义WebSocket消息结构
type Message struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
	From      string          `json:"from,omitempty"`
}

// NewMessage 序列化负载
func NewMessage(typ string, data any) (*Message, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Message{Type: typ, Data: raw, Timestamp: time.Now().Unix()}, nil
}

// MessageHandler 入站消息处理函数
type MessageHandler func(conn *Connection, msg Message)

// Hub 管理所有WebSocket连接。按类型保存的最新状态消息会在新连接注册时补发。
type Hub struct {
	connections     map[string]*Connection
	connectionCount int64

	broadcast  chan []byte
	register   chan *Connection
	unregister chan *Connection

	config *Config
	mu     sync.RWMutex

	handlersMu sync.RWMutex
	handlers   map[string]MessageHandler

	stateMu sync.RWMutex
	state   map[string][]byte

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

// NewHub 创建新的Hub实例
func NewHub(config *Config) *Hub {
	if config == nil {
		config = DefaultConfig()
	}
	ctx, cancel := context.WithCancel(context.Background())
	hub := &Hub{
		connections: make(map[string]*Connection),
		broadcast:   make(chan []byte, 1024),
		register:    make(chan *Connection, 64),
		unregister:  make(chan *Connection, 64),
		config:      config,
		handlers:    make(map[string]MessageHandler),
		state:       make(map[string][]byte),
		ctx:         ctx,
		cancel:      cancel,
	}
	go hub.run()
	return hub
}

// run Hub主循环
func (h *Hub) run() {
	ticker := time.NewTicker(h.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case conn := <-h.register:
			h.registerConnection(conn)
		case conn := <-h.unregister:
			h.unregisterConnection(conn)
		case data := <-h.broadcast:
			h.mu.RLock()
			for _, conn := range h.connections {
				if conn.alive() {
					h.trySend(conn, data)
				}
			}
			h.mu.RUnlock()
		case <-ticker.C:
			h.checkHeartbeats()
		}
	}
}

// Handle 注册入站消息处理函数；同类型后注册的覆盖先注册的
func (h *Hub) Handle(typ string, fn MessageHandler) {
	h.handlersMu.Lock()
	h.handlers[typ] = fn
	h.handlersMu.Unlock()
}

func (h *Hub) handler(typ string) (MessageHandler, bool) {
	h.handlersMu.RLock()
	defer h.handlersMu.RUnlock()
	fn, ok := h.handlers[typ]
	return fn, ok
}

// Broadcast 广播消息给所有连接
func (h *Hub) Broadcast(message *Message) error {
	if message.Timestamp == 0 {
		message.Timestamp = time.Now().Unix()
	}
	data, err := json.Marshal(message)
	if err != nil {
		logrus.Errorf("消息序列化失败: %v", err)
		return err
	}
	select {
	case h.broadcast <- data:
		return nil
	case <-h.ctx.Done():
		return context.Canceled
	default:
		logrus.Warnf("广播队列已满，消息被丢弃: %s", message.Type)
		return nil
	}
}

// BroadcastState 广播并记住该类型的最新消息，后续连接注册时补发
func (h *Hub) BroadcastState(typ string, data any) error {
	msg, err := NewMessage(typ, data)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	h.stateMu.Lock()
	h.state[typ] = raw
	h.stateMu.Unlock()
	return h.Broadcast(msg)
}

// BroadcastJSON 广播一次性事件
func (h *Hub) BroadcastJSON(typ string, data any) error {
	msg, err := NewMessage(typ, data)
	if err != nil {
		return err
	}
	return h.Broadcast(msg)
}

// registerConnection 注册连接
func (h *Hub) registerConnection(conn *Connection) {
	h.mu.Lock()
	if atomic.LoadInt64(&h.connectionCount) >= h.config.MaxConnections {
		h.mu.Unlock()
		if conn.Conn != nil {
			conn.Conn.Close()
		}
		logrus.Warnf("达到最大连接数限制: %d", h.config.MaxConnections)
		return
	}
	h.connections[conn.ID] = conn
	n := atomic.AddInt64(&h.connectionCount, 1)
	h.mu.Unlock()

	h.stateMu.RLock()
	for _, data := range h.state {
		h.trySend(conn, data)
	}
	h.stateMu.RUnlock()

	logrus.Infof("WebSocket连接已注册: %s, 调度员: %s, 当前连接数: %d", conn.ID, conn.UserID, n)
}

// unregisterConnection 注销连接
func (h *Hub) unregisterConnection(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.connections[conn.ID]; !exists {
		return
	}
	delete(h.connections, conn.ID)
	atomic.AddInt64(&h.connectionCount, -1)
	close(conn.Send)
	logrus.Infof("WebSocket连接已注销: %s, 当前连接数: %d", conn.ID, atomic.LoadInt64(&h.connectionCount))
}

// checkHeartbeats 关闭心跳超时的连接
func (h *Hub) checkHeartbeats() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	now := time.Now()
	for _, conn := range h.connections {
		if now.Sub(conn.lastPing()) > h.config.ConnectionTimeout {
			logrus.Warnf("连接 %s 心跳超时，准备关闭", conn.ID)
			conn.markDead()
			if conn.Conn != nil {
				conn.Conn.Close()
			}
		}
	}
}

// trySend 背压策略
func (h *Hub) trySend(conn *Connection, data []byte) {
	if h.config.DropOnFull {
		select {
		case conn.Send <- data:
		default:
			logrus.Debugf("连接 %s %s", conn.ID, ErrSendBufferFull)
		}
		return
	}
	timeout := h.config.SendTimeout
	if timeout <= 0 {
		timeout = 50 * time.Millisecond
	}
	select {
	case conn.Send <- data:
	case <-time.After(timeout):
		logrus.Warnf("连接 %s %s", conn.ID, ErrSendBufferFull)
	}
}

// GetConnectionCount 获取当前连接数
func (h *Hub) GetConnectionCount() int64 {
	return atomic.LoadInt64(&h.connectionCount)
}

// Close 关闭Hub及全部连接，可重复调用
func (h *Hub) Close() {
	h.once.Do(func() {
		h.cancel()
		h.mu.Lock()
		for _, conn := range h.connections {
			if conn.Conn != nil {
				_ = conn.Conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(time.Second))
				conn.Conn.Close()
			}
		}
		h.mu.Unlock()
		logrus.Info("WebSocket Hub已关闭")
	})
}
