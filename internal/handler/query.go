package handlers

import (
	"strings"

	"RescueDesk/internal/dashboard"
	"RescueDesk/internal/geo"
	"RescueDesk/internal/models"
	"RescueDesk/pkg/errors"
	"RescueDesk/pkg/logger"
	"RescueDesk/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (h *Handlers) handleSearch(c *gin.Context) {
	ix := h.svc.Index()
	if ix == nil {
		response.Error(c, errors.WithCode(errors.CodeRejected, "search index disabled"))
		return
	}
	res, err := ix.Search(c.Request.Context(), dashboard.Query{
		Text:     c.Query("q"),
		Statuses: parseStatuses(c.Query("status")),
		Category: strings.ToLower(c.Query("category")),
		Fuzzy:    atoiDefault(c.Query("fuzzy"), 0),
		Size:     atoiDefault(c.Query("size"), 50),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "success", res)
}

func (h *Handlers) handleSuggest(c *gin.Context) {
	ix := h.svc.Index()
	if ix == nil {
		response.Success(c, "success", []string{})
		return
	}
	out, err := ix.Suggest(c.Request.Context(), c.Query("q"), atoiDefault(c.Query("size"), 10))
	if err != nil {
		logger.Warn("suggest failed", zap.Error(err))
		out = nil
	}
	if out == nil {
		out = []string{}
	}
	response.Success(c, "success", out)
}

// handleGeocode 远端失败返回空列表而不是错误
func (h *Handlers) handleGeocode(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		response.Fail(c, "q is required", nil)
		return
	}
	places := []geo.Place{}
	if g := h.svc.Geo(); g != nil {
		got, err := g.Geocode(c.Request.Context(), q)
		if err != nil {
			logger.Warn("geocode failed", zap.String("q", q), zap.Error(err))
		} else if got != nil {
			places = got
		}
	}
	response.Success(c, "success", places)
}

// handleRoute from/to 为 "lat,lng"；远端失败时返回直线估算
func (h *Handlers) handleRoute(c *gin.Context) {
	from, ok1 := parseLatLng(c.Query("from"))
	to, ok2 := parseLatLng(c.Query("to"))
	if !ok1 || !ok2 {
		response.Fail(c, "from and to must be lat,lng", nil)
		return
	}
	g := h.svc.Geo()
	if g == nil {
		response.Success(c, "success", geo.StraightLine(from, to))
		return
	}
	route, err := g.Route(c.Request.Context(), from, to)
	if err != nil {
		logger.Debug("route estimated", zap.Error(err))
	}
	response.Success(c, "success", route)
}

func parseLatLng(raw string) (models.Coordinate, bool) {
	parts := splitFloats(raw)
	if len(parts) != 2 {
		return models.Coordinate{}, false
	}
	c := models.NewCoordinate(parts[0], parts[1])
	if c == nil {
		return models.Coordinate{}, false
	}
	return *c, true
}
