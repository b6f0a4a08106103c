package handlers

import (
	"RescueDesk/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// handleEvents SSE：视图与通知。同一 client 重连会替换旧连接，缺省时每个连接独立
func (h *Handlers) handleEvents(c *gin.Context) {
	id := c.Query("client")
	if id == "" {
		id = middleware.OperatorID(c) + "-" + uuid.NewString()
	}
	h.opts.Events.Serve(c, id)
}
