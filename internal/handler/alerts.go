package handlers

import (
	"strconv"
	"strings"

	"RescueDesk/internal/dashboard"
	"RescueDesk/internal/models"
	"RescueDesk/internal/view"
	"RescueDesk/pkg/middleware"
	"RescueDesk/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
)

// parseStatuses 逗号分隔，未知取值被忽略
func parseStatuses(raw string) []models.Status {
	var out []models.Status
	for _, part := range strings.Split(raw, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		if st, ok := models.ParseStatus(part); ok {
			out = append(out, st)
		}
	}
	return out
}

// queryOptions 在当前展示条件上叠加查询参数，不修改共享视图
func (h *Handlers) queryOptions(c *gin.Context) view.Options {
	opts := h.svc.Live().Options()
	if raw, ok := c.GetQuery("status"); ok {
		opts.Statuses = parseStatuses(raw)
	}
	if raw, ok := c.GetQuery("category"); ok {
		opts.Categories = nil
		for _, cat := range strings.Split(raw, ",") {
			if cat = strings.TrimSpace(cat); cat != "" {
				opts.Categories = append(opts.Categories, strings.ToLower(cat))
			}
		}
	}
	if q, ok := c.GetQuery("q"); ok {
		opts.Text = q
	}
	if raw, ok := c.GetQuery("show_resolved"); ok {
		opts.ShowResolved = cast.ToBool(raw)
	}
	return opts
}

func (h *Handlers) handleListAlerts(c *gin.Context) {
	v := view.Build(h.svc.Live().Input(), h.queryOptions(c))
	load := h.svc.LastLoad()
	response.Success(c, "success", gin.H{
		"alerts":   v.Filtered,
		"active":   len(v.Active),
		"resolved": len(v.Resolved),
		"stats":    v.Stats,
		"state":    h.svc.Alerts().State(),
		// failure 非空时前端显示重试入口
		"failure": load.Failure,
	})
}

func (h *Handlers) handleGetAlert(c *gin.Context) {
	a, err := h.svc.Alert(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "success", a)
}

func (h *Handlers) handleNearestPersonnel(c *gin.Context) {
	limit := cast.ToInt(c.DefaultQuery("limit", "5"))
	got, err := h.svc.Nearest(c.Param("id"), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "success", got)
}

func (h *Handlers) handleStats(c *gin.Context) {
	response.Success(c, "success", h.svc.Live().Current().Stats)
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
	Notes  string `json:"notes"`
}

func (h *Handlers) handleUpdateStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, "invalid request", gin.H{"error": err.Error()})
		return
	}
	middleware.SetAudit(c, "alert.status", req)
	a, err := h.svc.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status, req.Notes)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "status updated", a)
}

func (h *Handlers) handleAssign(c *gin.Context) {
	var req dashboard.AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, "invalid request", gin.H{"error": err.Error()})
		return
	}
	middleware.SetAudit(c, "alert.assign", req)
	a, err := h.svc.Assign(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "assigned", a)
}

func (h *Handlers) handleRefresh(c *gin.Context) {
	middleware.SetAudit(c, "dashboard.refresh", nil)
	if err := h.svc.Refresh(c.Request.Context()); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "refreshed", gin.H{"alerts": h.svc.Alerts().Len(), "snapshot": h.svc.LastLoad()})
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
