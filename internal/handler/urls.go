package handlers

import (
	"RescueDesk/internal/dashboard"
	"RescueDesk/pkg/cache"
	"RescueDesk/pkg/config"
	"RescueDesk/pkg/i18n"
	"RescueDesk/pkg/metrics"
	"RescueDesk/pkg/middleware"
	"RescueDesk/pkg/sse"
	"RescueDesk/pkg/websocket"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Options 可选组件，为 nil 时对应路由或中间件不挂载
type Options struct {
	Events      *sse.Hub
	WS          *websocket.Hub
	Limiter     *middleware.RateLimiter
	Idempotency cache.Cache
	Metrics     *metrics.Metrics
	I18n        *i18n.I18nSupport
}

type Handlers struct {
	db   *gorm.DB
	svc  *dashboard.Service
	opts Options
}

func NewHandlers(db *gorm.DB, svc *dashboard.Service, opts Options) *Handlers {
	return &Handlers{
		db:   db,
		svc:  svc,
		opts: opts,
	}
}

func apiPrefix() string {
	if config.GlobalConfig != nil && config.GlobalConfig.APIPrefix != "" {
		return config.GlobalConfig.APIPrefix
	}
	return "/api"
}

func (h *Handlers) Register(engine *gin.Engine) {
	if h.opts.Metrics != nil {
		engine.Use(metrics.MonitorMiddleware(h.opts.Metrics))
		engine.GET("/metrics", gin.WrapH(h.opts.Metrics.Handler()))
	}

	r := engine.Group(apiPrefix())
	if h.opts.I18n != nil {
		r.Use(middleware.LanguageMiddleware(h.opts.I18n))
	}
	r.OPTIONS("/*cors", func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, Idempotency-Key, X-Operator-ID, Accept-Language")
		c.AbortWithStatus(204)
	})

	// Register System Module Routes
	h.registerSystemRoutes(r)

	// Register Business Module Routes
	h.registerAlertRoutes(r)
	h.registerMapRoutes(r)
	h.registerQueryRoutes(r)
	h.registerDetectionRoutes(r)
	h.registerStreamRoutes(r)
}

// writeChain 写路径：限流、幂等、审计
func (h *Handlers) writeChain() []gin.HandlerFunc {
	var chain []gin.HandlerFunc
	if h.opts.Limiter != nil {
		chain = append(chain, h.opts.Limiter.Middleware())
	}
	chain = append(chain,
		middleware.IdempotencyMiddleware(middleware.IdempotencyConfig{Store: h.opts.Idempotency}),
		middleware.OperationLogMiddleware(h.db),
	)
	return chain
}

// Alert Module
func (h *Handlers) registerAlertRoutes(r *gin.RouterGroup) {
	r.GET("/alerts", h.handleListAlerts)
	r.GET("/alerts/:id", h.handleGetAlert)
	r.GET("/alerts/:id/nearest", h.handleNearestPersonnel)
	r.GET("/stats", h.handleStats)

	write := r.Group("", h.writeChain()...)
	{
		write.POST("/alerts/:id/status", h.handleUpdateStatus)

		write.POST("/alerts/:id/assign", h.handleAssign)

		write.POST("/refresh", h.handleRefresh)
	}
}

// Map Module
func (h *Handlers) registerMapRoutes(r *gin.RouterGroup) {
	r.GET("/markers", h.handleMarkers)
	r.GET("/clusters", h.handleClusters)
	r.GET("/view/options", h.handleGetViewOptions)

	write := r.Group("", h.writeChain()...)
	{
		write.PUT("/view/options", h.handleSetViewOptions)

		write.POST("/focus", h.handleFocus)

		write.POST("/track/:id", h.handleTrack)

		write.DELETE("/track/:id", h.handleUntrack)
	}
}

// Search & Geo Module
func (h *Handlers) registerQueryRoutes(r *gin.RouterGroup) {
	r.GET("/search", h.handleSearch)
	r.GET("/search/suggest", h.handleSuggest)
	r.GET("/geocode", h.handleGeocode)
	r.GET("/route", h.handleRoute)
}

func (h *Handlers) registerDetectionRoutes(r *gin.RouterGroup) {
	detection := r.Group("detection")
	{
		detection.GET("", h.handleDetectionStatus)

		detection.POST("/pause", append(h.writeChain(), h.handlePauseDetection)...)

		detection.POST("/resume", append(h.writeChain(), h.handleResumeDetection)...)
	}
}

func (h *Handlers) registerStreamRoutes(r *gin.RouterGroup) {
	if h.opts.Events != nil {
		r.GET("/events", h.handleEvents)
	}
	if h.opts.WS != nil {
		websocket.RegisterRoutes(r, websocket.NewHandler(h.opts.WS))
	}
}

func (h *Handlers) registerSystemRoutes(r *gin.RouterGroup) {
	r.GET("/health", h.HealthCheck)
	system := r.Group("system")
	{
		system.POST("/rate-limiter/config", h.UpdateRateLimiterConfig)

		system.GET("/health", h.HealthCheck)
	}
}
