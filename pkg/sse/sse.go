package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// 事件名
const (
	EventView         = "view"
	EventNotification = "notification"
	EventPing         = "ping"
)

// Event 一条已编号的推送
type Event struct {
	ID   uint64
	Name string
	Data string
}

func (e Event) format() string {
	if e.Name == "" {
		return fmt.Sprintf("id: %d\ndata: %s\n\n", e.ID, e.Data)
	}
	return fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", e.ID, e.Name, e.Data)
}

type Client struct {
	id     string
	groups map[string]bool
	ch     chan string
	done   chan struct{}
}

// Hub 管理订阅客户端；最近 history 条广播用于 Last-Event-ID 重放
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*Client
	groups   map[string]map[string]bool // group -> clientID set
	interval time.Duration
	retryMs  int

	seq     uint64
	history []Event
	maxHist int
}

func NewHub(interval time.Duration) *Hub {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Hub{
		clients:  make(map[string]*Client),
		groups:   make(map[string]map[string]bool),
		interval: interval,
		retryMs:  5000,
		maxHist:  64,
	}
}

func (h *Hub) AddClient(id string) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.clients[id]; ok {
		h.removeLocked(id, old)
	}
	c := &Client{id: id, groups: make(map[string]bool), ch: make(chan string, 64), done: make(chan struct{})}
	h.clients[id] = c
	return c
}

func (h *Hub) RemoveClient(id string) {
	h.mu.Lock()
	if c, ok := h.clients[id]; ok {
		h.removeLocked(id, c)
	}
	h.mu.Unlock()
}

// release 同 id 已被新连接替换时不做处理
func (h *Hub) release(c *Client) {
	h.mu.Lock()
	if cur, ok := h.clients[c.id]; ok && cur == c {
		h.removeLocked(c.id, c)
	}
	h.mu.Unlock()
}

func (h *Hub) removeLocked(id string, c *Client) {
	close(c.done)
	for g := range c.groups {
		delete(h.groups[g], id)
	}
	delete(h.clients, id)
}

// ClientCount 当前订阅数
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Join(id, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[id]
	if !ok {
		return
	}
	c.groups[group] = true
	if h.groups[group] == nil {
		h.groups[group] = make(map[string]bool)
	}
	h.groups[group][id] = true
}

func (h *Hub) Leave(id, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[id]
	if !ok {
		return
	}
	delete(c.groups, group)
	if h.groups[group] != nil {
		delete(h.groups[group], id)
	}
}

// Publish 编号、记录并推送给所有客户端
func (h *Hub) Publish(name, data string) Event {
	h.mu.Lock()
	h.seq++
	ev := Event{ID: h.seq, Name: name, Data: data}
	h.history = append(h.history, ev)
	if len(h.history) > h.maxHist {
		h.history = h.history[len(h.history)-h.maxHist:]
	}
	msg := ev.format()
	for _, c := range h.clients {
		select {
		case c.ch <- msg:
		default:
		}
	}
	h.mu.Unlock()
	return ev
}

// PublishJSON 序列化后 Publish
func (h *Hub) PublishJSON(name string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Publish(name, string(b))
	return nil
}

func (h *Hub) Broadcast(data string) { h.Publish("", data) }

func (h *Hub) SendToGroup(group, name, data string) {
	h.mu.RLock()
	msg := Event{Name: name, Data: data}.format()
	for id := range h.groups[group] {
		if c := h.clients[id]; c != nil {
			select {
			case c.ch <- msg:
			default:
			}
		}
	}
	h.mu.RUnlock()
}

// since 返回 ID 大于 last 的历史事件
func (h *Hub) since(last uint64) []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []Event
	for _, ev := range h.history {
		if ev.ID > last {
			out = append(out, ev)
		}
	}
	return out
}

func (h *Hub) Serve(c *gin.Context, clientID string) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	fmt.Fprintf(c.Writer, "retry: %d\n\n", h.retryMs)

	client := h.AddClient(clientID)
	defer h.release(client)
	if gid := c.Query("group"); gid != "" {
		h.Join(clientID, gid)
	}

	if last, err := strconv.ParseUint(c.GetHeader("Last-Event-ID"), 10, 64); err == nil {
		for _, ev := range h.since(last) {
			_, _ = c.Writer.Write([]byte(ev.format()))
		}
	}
	flusher.Flush()

	ping := time.NewTicker(h.interval)
	defer ping.Stop()
	for {
		select {
		case <-client.done:
			return
		case <-c.Request.Context().Done():
			return
		case <-ping.C:
			fmt.Fprintf(c.Writer, "event: %s\ndata: {}\n\n", EventPing)
			flusher.Flush()
		case msg := <-client.ch:
			_, _ = c.Writer.Write([]byte(msg))
			flusher.Flush()
		}
	}
}
