package handlers

import (
	"RescueDesk/pkg/middleware"
	"RescueDesk/pkg/response"

	"github.com/gin-gonic/gin"
)

func (h *Handlers) detectionState(c *gin.Context) gin.H {
	d := h.svc.Detector()
	return gin.H{
		"mode":     d.Mode(),
		"paused":   d.Paused(),
		"notified": d.NotifiedCount(c.Request.Context()),
		"tracking": h.svc.Focus().TrackedID(),
	}
}

func (h *Handlers) handleDetectionStatus(c *gin.Context) {
	response.Success(c, "success", h.detectionState(c))
}

// handlePauseDetection 暂停期间不记录已提示，恢复后补发
func (h *Handlers) handlePauseDetection(c *gin.Context) {
	middleware.SetAudit(c, "detection.pause", nil)
	h.svc.Detector().Pause()
	response.Success(c, "detection paused", h.detectionState(c))
}

func (h *Handlers) handleResumeDetection(c *gin.Context) {
	middleware.SetAudit(c, "detection.resume", nil)
	h.svc.Detector().Resume()
	// 立即扫描一次，不等下一个轮询周期
	fresh := h.svc.Detector().Sweep(c.Request.Context())
	state := h.detectionState(c)
	state["caught_up"] = fresh
	response.Success(c, "detection resumed", state)
}
