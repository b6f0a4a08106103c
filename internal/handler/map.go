package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"RescueDesk/internal/models"
	"RescueDesk/internal/view"
	"RescueDesk/pkg/errors"
	"RescueDesk/pkg/middleware"
	"RescueDesk/pkg/response"

	"github.com/gin-gonic/gin"
)

// handleMarkers 当前视图的标记，GeoJSON FeatureCollection
func (h *Handlers) handleMarkers(c *gin.Context) {
	c.JSON(http.StatusOK, view.FeatureCollection(h.svc.Live().Current().Markers))
}

// handleClusters level 优先；否则按 bbox=latMin,lngMin,latMax,lngMax 选择层级
func (h *Handlers) handleClusters(c *gin.Context) {
	level := atoiDefault(c.Query("level"), 0)
	if level <= 0 {
		if vp, ok := parseBBox(c.Query("bbox")); ok {
			level = view.LevelForViewport(vp)
		} else {
			level = 10
		}
	}
	clusters := view.Clusters(h.svc.Live().Current().Markers, level)
	if c.Query("format") == "geojson" {
		c.JSON(http.StatusOK, view.ClusterCollection(clusters))
		return
	}
	response.Success(c, "success", gin.H{"level": level, "clusters": clusters})
}

func parseBBox(raw string) (view.Viewport, bool) {
	parts := splitFloats(raw)
	if len(parts) != 4 {
		return view.Viewport{}, false
	}
	return view.Viewport{LatMin: parts[0], LngMin: parts[1], LatMax: parts[2], LngMax: parts[3]}, true
}

type viewOptionsRequest struct {
	ShowHelpers    *bool    `json:"show_helpers"`
	ShowResponders *bool    `json:"show_responders"`
	ShowResolved   *bool    `json:"show_resolved"`
	Statuses       []string `json:"statuses"`
	Categories     []string `json:"categories"`
	Text           *string  `json:"text"`
	ClusterLevel   *int     `json:"cluster_level"`
}

func (h *Handlers) handleGetViewOptions(c *gin.Context) {
	opts := h.svc.Live().Options()
	response.Success(c, "success", gin.H{
		"show_helpers":    opts.ShowHelpers,
		"show_responders": opts.ShowResponders,
		"show_resolved":   opts.ShowResolved,
		"statuses":        opts.Statuses,
		"categories":      opts.Categories,
		"text":            opts.Text,
		"cluster_level":   opts.ClusterLevel,
	})
}

// handleSetViewOptions 修改共享展示条件，视图立即重建并推送
func (h *Handlers) handleSetViewOptions(c *gin.Context) {
	var req viewOptionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, "invalid request", gin.H{"error": err.Error()})
		return
	}
	middleware.SetAudit(c, "view.options", req)
	opts := h.svc.Live().Options()
	if req.ShowHelpers != nil {
		opts.ShowHelpers = *req.ShowHelpers
	}
	if req.ShowResponders != nil {
		opts.ShowResponders = *req.ShowResponders
	}
	if req.ShowResolved != nil {
		opts.ShowResolved = *req.ShowResolved
	}
	if req.Statuses != nil {
		opts.Statuses = nil
		for _, s := range req.Statuses {
			if st, ok := models.ParseStatus(s); ok {
				opts.Statuses = append(opts.Statuses, st)
			}
		}
	}
	if req.Categories != nil {
		opts.Categories = req.Categories
	}
	if req.Text != nil {
		opts.Text = *req.Text
	}
	if req.ClusterLevel != nil {
		opts.ClusterLevel = *req.ClusterLevel
	}
	v := h.svc.Live().SetOptions(opts)
	response.Success(c, "view updated", gin.H{"version": v.Version, "stats": v.Stats, "markers": len(v.Markers)})
}

type focusRequest struct {
	Lat   *float64 `json:"lat" binding:"required"`
	Lng   *float64 `json:"lng" binding:"required"`
	Label string   `json:"label"`
	Slot  string   `json:"slot"`
}

func (h *Handlers) handleFocus(c *gin.Context) {
	var req focusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, "invalid request", gin.H{"error": err.Error()})
		return
	}
	target := models.NewCoordinate(*req.Lat, *req.Lng)
	if target == nil {
		response.Error(c, errors.WithCode(errors.CodeInvalidArgument, "coordinate out of range"))
		return
	}
	middleware.SetAudit(c, "map.focus", req)
	var (
		m   models.Marker
		err error
	)
	if req.Slot != "" {
		m, err = h.svc.Focus().FocusSlot(req.Slot, *target, req.Label)
	} else {
		m, err = h.svc.Focus().Focus(*target, req.Label)
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "focused", m)
}

func (h *Handlers) handleTrack(c *gin.Context) {
	middleware.SetAudit(c, "map.track", nil)
	m, err := h.svc.Focus().Track(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "tracking", m)
}

func (h *Handlers) handleUntrack(c *gin.Context) {
	middleware.SetAudit(c, "map.untrack", nil)
	if !h.svc.Focus().Untrack(c.Param("id")) {
		response.Error(c, errors.WithCodef(errors.CodeNotFound, "alert %s is not tracked", c.Param("id")))
		return
	}
	response.Success(c, "untracked", gin.H{"tracked_id": h.svc.Focus().TrackedID()})
}

func splitFloats(raw string) []float64 {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil
		}
		out = append(out, f)
	}
	return out
}
