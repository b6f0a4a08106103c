// Package focus 管理独立于数据标记的临时聚焦标记和持久跟踪标记。
package focus

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"RescueDesk/internal/models"
	"RescueDesk/internal/reconciler"
	"RescueDesk/pkg/errors"
	"RescueDesk/pkg/logger"
	"RescueDesk/pkg/metrics"
	"RescueDesk/pkg/scheduler"
	"RescueDesk/pkg/util"

	"go.uber.org/zap"
)

// MapSurface 外部地图组件。控制器只发出 FlyTo；标记经 OnMarkers 并入视图后统一 SetMarkers
type MapSurface interface {
	SetMarkers(markers []models.Marker)
	FlyTo(target models.Coordinate, zoom float64, duration time.Duration)
	OnMarkerClick(fn func(markerID string))
}

// Config 聚焦参数
type Config struct {
	Dwell       time.Duration
	Zoom        float64
	FlyDuration time.Duration
}

func DefaultConfig() Config {
	return Config{Dwell: 15 * time.Second, Zoom: 16, FlyDuration: 1500 * time.Millisecond}
}

// DefaultSlot Focus 使用的槽位
const DefaultSlot = "default"

type ephemeral struct {
	marker  models.Marker
	expires time.Time
	cancel  scheduler.CancelFunc
}

// Controller 聚焦与跟踪控制器
type Controller struct {
	cfg     Config
	surface MapSurface
	alerts  *reconciler.Table[models.Alert]
	sched   *scheduler.Scheduler
	metrics *metrics.Metrics

	// Clock 测试注入
	Clock func() time.Time

	mu        sync.Mutex
	ephemeral map[string]*ephemeral
	tracked   map[string]models.Marker
	// trackOrder 开始跟踪的先后顺序，末尾即 TrackedID
	trackOrder []string
	listeners  []func([]models.Marker)
}

// New sched 为 nil 时不安排定时清理，需由调用方调用 Expire
func New(cfg Config, surface MapSurface, alerts *reconciler.Table[models.Alert], sched *scheduler.Scheduler, m *metrics.Metrics) *Controller {
	if cfg.Dwell <= 0 {
		cfg.Dwell = DefaultConfig().Dwell
	}
	if cfg.Zoom <= 0 {
		cfg.Zoom = DefaultConfig().Zoom
	}
	return &Controller{
		cfg:       cfg,
		surface:   surface,
		alerts:    alerts,
		sched:     sched,
		metrics:   m,
		Clock:     time.Now,
		ephemeral: make(map[string]*ephemeral),
		tracked:   make(map[string]models.Marker),
	}
}

// Attach 监听警报表变化以清理跟踪，并接管地图点击
func (c *Controller) Attach() {
	c.alerts.OnChange(func(ch reconciler.Change[models.Alert]) {
		if ch.Kind != reconciler.ChangeInsert {
			c.Check()
		}
	})
	if c.surface != nil {
		c.surface.OnMarkerClick(c.HandleMarkerClick)
	}
}

// OnMarkers 标记集合变化时回调
func (c *Controller) OnMarkers(fn func([]models.Marker)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// Focus 在默认槽位创建临时标记
func (c *Controller) Focus(target models.Coordinate, label string) (models.Marker, error) {
	return c.FocusSlot(DefaultSlot, target, label)
}

// FocusSlot 同一槽位的新聚焦替换旧标记；标记在 Dwell 后移除
func (c *Controller) FocusSlot(slot string, target models.Coordinate, label string) (models.Marker, error) {
	if !target.Valid() {
		return models.Marker{}, errors.WithCodef(errors.CodeInvalidArgument, "invalid focus coordinate %s", target)
	}
	if slot == "" {
		slot = DefaultSlot
	}
	m := models.Marker{
		ID:       string(models.MarkerFocus) + ":" + slot,
		Type:     models.MarkerFocus,
		Position: target,
		Label:    label,
	}

	c.mu.Lock()
	if prev, ok := c.ephemeral[slot]; ok && prev.cancel != nil {
		prev.cancel()
	}
	e := &ephemeral{marker: m, expires: c.Clock().Add(c.cfg.Dwell)}
	if c.sched != nil {
		e.cancel = c.sched.OnceAfter(c.cfg.Dwell, scheduler.FuncJob(func(context.Context) { c.Expire() }))
	}
	c.ephemeral[slot] = e
	c.mu.Unlock()

	c.flyTo(target)
	c.publish()
	return m, nil
}

// Track 为警报创建持久跟踪标记；同一警报重复跟踪时替换
func (c *Controller) Track(alertID string) (models.Marker, error) {
	a, ok := c.alerts.Get(alertID)
	if !ok {
		return models.Marker{}, errors.WithCodef(errors.CodeNotFound, "alert %s not found", alertID)
	}
	if a.Status.Terminal() {
		return models.Marker{}, errors.WithCodef(errors.CodeRejected, "alert %s is %s", alertID, a.Status)
	}
	if a.Location == nil {
		return models.Marker{}, errors.WithCodef(errors.CodeInvalidArgument, "alert %s has no location", alertID)
	}
	m := trackingMarker(a)

	c.mu.Lock()
	c.tracked[alertID] = m
	c.dropOrderLocked(alertID)
	c.trackOrder = append(c.trackOrder, alertID)
	n := len(c.tracked)
	c.mu.Unlock()

	logger.Info("tracking alert", zap.String("id", alertID))
	c.metrics.TrackedMarkers(n)
	c.flyTo(m.Position)
	c.publish()
	return m, nil
}

func trackingMarker(a models.Alert) models.Marker {
	return models.Marker{
		ID:       "track:" + a.ID,
		Type:     models.MarkerFocus,
		Position: *a.Location,
		SourceID: a.ID,
		Label:    a.Title(),
		Status:   string(a.Status),
		Priority: a.Priority.String(),
		Tracked:  true,
	}
}

// Untrack 手动结束跟踪，未跟踪时返回 false
func (c *Controller) Untrack(alertID string) bool {
	c.mu.Lock()
	_, ok := c.tracked[alertID]
	if ok {
		c.removeTrackedLocked(alertID)
	}
	n := len(c.tracked)
	c.mu.Unlock()
	if ok {
		c.metrics.TrackedMarkers(n)
		c.publish()
	}
	return ok
}

func (c *Controller) removeTrackedLocked(alertID string) {
	delete(c.tracked, alertID)
	c.dropOrderLocked(alertID)
}

func (c *Controller) dropOrderLocked(alertID string) {
	for i, id := range c.trackOrder {
		if id == alertID {
			c.trackOrder = append(c.trackOrder[:i:i], c.trackOrder[i+1:]...)
			return
		}
	}
}

// Check 对照表中的实时状态：终态或已删除的警报移除跟踪，位置变化时更新标记
func (c *Controller) Check() {
	c.mu.Lock()
	changed := false
	var ended []models.Alert
	for id, m := range c.tracked {
		a, ok := c.alerts.Get(id)
		switch {
		case !ok || a.Status.Terminal():
			logger.Info("tracking ended", zap.String("id", id), zap.String("status", string(a.Status)))
			c.removeTrackedLocked(id)
			changed = true
			if ok {
				ended = append(ended, a)
			}
		case a.Location != nil && (*a.Location != m.Position || string(a.Status) != m.Status):
			c.tracked[id] = trackingMarker(a)
			changed = true
		}
	}
	n := len(c.tracked)
	c.mu.Unlock()
	if changed {
		c.metrics.TrackedMarkers(n)
		c.publish()
	}
	for _, a := range ended {
		util.Sig().Emit(models.SigTrackingEnded, a)
	}
}

// Expire 移除到期的临时标记
func (c *Controller) Expire() int {
	now := c.Clock()
	c.mu.Lock()
	removed := 0
	for slot, e := range c.ephemeral {
		if !now.Before(e.expires) {
			delete(c.ephemeral, slot)
			removed++
		}
	}
	c.mu.Unlock()
	if removed > 0 {
		c.publish()
	}
	return removed
}

// TrackedID 仍在跟踪的警报中最近开始的一个；结束后回退到更早的跟踪
func (c *Controller) TrackedID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.trackOrder) == 0 {
		return ""
	}
	return c.trackOrder[len(c.trackOrder)-1]
}

// IsTracking 警报是否处于跟踪中
func (c *Controller) IsTracking(alertID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.tracked[alertID]
	return ok
}

// Markers 当前全部聚焦与跟踪标记，按 ID 排序
func (c *Controller) Markers() []models.Marker {
	c.mu.Lock()
	out := make([]models.Marker, 0, len(c.ephemeral)+len(c.tracked))
	for _, e := range c.ephemeral {
		out = append(out, e.marker)
	}
	for _, m := range c.tracked {
		out = append(out, m)
	}
	c.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// HandleMarkerClick 点击警报标记开始跟踪，点击其他标记仅移动视角
func (c *Controller) HandleMarkerClick(markerID string) {
	typ, id := splitMarkerID(markerID)
	if typ == string(models.MarkerSOS) {
		if _, err := c.Track(id); err != nil {
			logger.Debug("marker click ignored", zap.String("marker", markerID), zap.Error(err))
		}
		return
	}
	for _, m := range c.Markers() {
		if m.ID == markerID {
			c.flyTo(m.Position)
			return
		}
	}
}

func splitMarkerID(id string) (string, string) {
	typ, rest, ok := strings.Cut(id, ":")
	if !ok {
		return "", id
	}
	return typ, rest
}

// Close 取消未到期的定时器
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.ephemeral {
		if e.cancel != nil {
			e.cancel()
		}
	}
}

func (c *Controller) flyTo(target models.Coordinate) {
	if c.surface != nil {
		c.surface.FlyTo(target, c.cfg.Zoom, c.cfg.FlyDuration)
	}
}

func (c *Controller) publish() {
	markers := c.Markers()
	c.mu.Lock()
	listeners := make([]func([]models.Marker), len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()
	for _, fn := range listeners {
		fn(markers)
	}
}
