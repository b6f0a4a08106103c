package websocket

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

var errSendBufferFull = errors.New(ErrSendBufferFull)

// Handler WebSocket HTTP处理器
type Handler struct {
	hub *Hub
	// Identify 从请求中取调度员标识，默认读 operator 查询参数或 X-Operator-ID
	Identify func(c *gin.Context) string
}

// NewHandler 创建新的WebSocket处理器
func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub, Identify: defaultIdentify}
}

func defaultIdentify(c *gin.Context) string {
	if id := c.Query("operator"); id != "" {
		return id
	}
	if id := c.GetHeader("X-Operator-ID"); id != "" {
		return id
	}
	return "anonymous_" + c.ClientIP()
}

// RegisterRoutes 统一注册路由
func RegisterRoutes(r gin.IRouter, handler *Handler) {
	r.GET(RouteWebSocket, handler.HandleWebSocket)
	r.GET(RouteWebSocketStats, handler.GetStats)
}

// HandleWebSocket 处理WebSocket连接请求
func (h *Handler) HandleWebSocket(c *gin.Context) {
	if h.hub.GetConnectionCount() >= h.hub.config.MaxConnections {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": ErrConnectionLimitExceeded})
		return
	}
	HandleWebSocket(h.hub, c.Writer, c.Request, h.Identify(c))
}

// GetStats 获取WebSocket统计信息
func (h *Handler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"total_connections":   h.hub.GetConnectionCount(),
		"max_connections":     h.hub.config.MaxConnections,
		"heartbeat_interval":  h.hub.config.HeartbeatInterval.String(),
		"connection_timeout":  h.hub.config.ConnectionTimeout.String(),
		"message_buffer_size": h.hub.config.MessageBufferSize,
		"enable_compression":  h.hub.config.EnableCompression,
		"drop_on_full":        h.hub.config.DropOnFull,
	})
}
