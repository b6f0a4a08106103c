package handlers

import (
	"net/http"

	"RescueDesk/pkg/middleware"
	"RescueDesk/pkg/response"

	"github.com/gin-gonic/gin"
)

// UpdateRateLimiterConfig 更新限流配置
func (h *Handlers) UpdateRateLimiterConfig(c *gin.Context) {
	if h.opts.Limiter == nil {
		response.Fail(c, "rate limiter disabled", nil)
		return
	}
	var config middleware.RateLimiterConfig
	if err := c.ShouldBindJSON(&config); err != nil {
		response.Fail(c, "invalid request", nil)
		return
	}

	// 更新限流配置
	h.opts.Limiter.UpdateConfig(config)
	response.Success(c, "rate limiter config updated", nil)
}

// HealthCheck 健康检查接口：数据库可达，快照加载状态随结果返回
func (h *Handlers) HealthCheck(c *gin.Context) {
	// 检查数据库连接
	if h.db != nil {
		sqlDB, err := h.db.DB()
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "database connection failed"})
			return
		}
		if err := sqlDB.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "database ping failed"})
			return
		}
	}

	load := h.svc.LastLoad()
	status := "healthy"
	if load.Failure != nil {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":     status,
		"snapshot":   load,
		"alerts":     h.svc.Alerts().Len(),
		"table":      h.svc.Alerts().State(),
		"tracked_id": h.svc.Focus().TrackedID(),
	})
}
