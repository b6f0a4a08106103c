// Package dashboard 组装快照加载、实时协调、视图、聚焦与检测，提供给 HTTP 层使用。
package dashboard

import (
	"context"
	"sync"
	"time"

	"RescueDesk/internal/changefeed"
	"RescueDesk/internal/detect"
	"RescueDesk/internal/focus"
	"RescueDesk/internal/geo"
	"RescueDesk/internal/models"
	"RescueDesk/internal/reconciler"
	"RescueDesk/internal/rowstore"
	"RescueDesk/internal/snapshot"
	"RescueDesk/internal/view"
	"RescueDesk/pkg/cache"
	"RescueDesk/pkg/config"
	"RescueDesk/pkg/errors"
	"RescueDesk/pkg/logger"
	"RescueDesk/pkg/metrics"
	"RescueDesk/pkg/scheduler"
	"RescueDesk/pkg/search"
	"RescueDesk/pkg/storage"
	"RescueDesk/pkg/util"

	"go.uber.org/zap"
)

const (
	HelperTable    = "helpers"
	ResponderTable = "responders"
)

// Config 服务参数
type Config struct {
	Snapshot snapshot.Config
	Focus    focus.Config
	Detect   detect.Config
	View     view.Options
	// RefreshSchedule cron 表达式，为空不定时刷新
	RefreshSchedule string
}

func DefaultConfig() Config {
	return Config{
		Snapshot: snapshot.DefaultConfig(),
		Focus:    focus.DefaultConfig(),
		Detect:   detect.Config{Mode: detect.ModeBoth, Interval: detect.DefaultInterval},
		View:     view.DefaultOptions(),
	}
}

// ConfigFrom 从进程配置映射
func ConfigFrom(c *config.Config) (Config, error) {
	cfg := DefaultConfig()
	if c.AlertTable != "" {
		cfg.Snapshot.AlertTable = c.AlertTable
	}
	if c.AlertOrderColumn != "" {
		cfg.Snapshot.OrderColumn = c.AlertOrderColumn
	}
	if c.AlertFallbackColumn != "" {
		cfg.Snapshot.FallbackOrderColumn = c.AlertFallbackColumn
	}
	if c.SnapshotPageSize > 0 {
		cfg.Snapshot.PageSize = c.SnapshotPageSize
	}
	mode, err := detect.ParseMode(c.DetectMode)
	if err != nil {
		return cfg, errors.Wrap(err, errors.CodeInvalidArgument, "DETECT_MODE")
	}
	cfg.Detect = detect.Config{Mode: mode, Interval: c.DetectInterval}
	if c.FocusDwell > 0 {
		cfg.Focus.Dwell = c.FocusDwell
	}
	if c.FocusZoom > 0 {
		cfg.Focus.Zoom = c.FocusZoom
	}
	if c.FlyDurationMs > 0 {
		cfg.Focus.FlyDuration = time.Duration(c.FlyDurationMs) * time.Millisecond
	}
	if c.RecentWindow > 0 {
		cfg.View.RecentWindow = c.RecentWindow
	}
	cfg.RefreshSchedule = c.RefreshSchedule
	return cfg, nil
}

// Deps 外部协作者。Store 必填，其余可为 nil
type Deps struct {
	Store    rowstore.Store
	Source   changefeed.Source
	Notified cache.Cache
	Notifier detect.Notifier
	Surface  focus.MapSurface
	Geo      *geo.Client
	Search   search.Engine
	Media    storage.Locator
	Metrics  *metrics.Metrics
	Signals  *util.Signals
}

// Service 一个调度台会话：每张表唯一的内存集合及其派生组件
type Service struct {
	cfg  Config
	deps Deps

	alerts     *reconciler.Table[models.Alert]
	helpers    *reconciler.Table[models.Personnel]
	responders *reconciler.Table[models.Personnel]

	loader *snapshot.Loader
	binder *reconciler.Binder
	live   *view.Live
	focus  *focus.Controller
	detect *detect.Observer
	index  *AlertIndex
	sched  *scheduler.Scheduler
	cron   *scheduler.Cron

	mu         sync.Mutex
	connected  bool
	disposed   bool
	cancel     context.CancelFunc
	alertTable string
	last       snapshot.Result
	loadedAt   time.Time
}

// New 只构建组件，不发起任何网络请求；Connect 之后才开始加载与订阅
func New(cfg Config, deps Deps) (*Service, error) {
	if deps.Store == nil {
		return nil, errors.WithCode(errors.CodeInvalidArgument, "row store is required")
	}
	if deps.Notified == nil {
		deps.Notified = cache.NewGoCache(0)
	}
	if deps.Signals == nil {
		deps.Signals = util.Sig()
	}
	s := &Service{cfg: cfg, deps: deps, alertTable: cfg.Snapshot.AlertTable, sched: scheduler.New()}

	s.alerts = reconciler.NewAlertTable(cfg.Snapshot.AlertTable, reconciler.WithMetrics[models.Alert](deps.Metrics))
	s.helpers = reconciler.NewTable(HelperTable, reconciler.PersonnelDecoder(models.RoleHelper), reconciler.WithMetrics[models.Personnel](deps.Metrics))
	s.responders = reconciler.NewTable(ResponderTable, reconciler.PersonnelDecoder(models.RoleResponder), reconciler.WithMetrics[models.Personnel](deps.Metrics))

	s.loader = snapshot.NewLoader(deps.Store, cfg.Snapshot, deps.Metrics)
	s.live = view.NewLive(s.alerts, s.helpers, s.responders, cfg.View, deps.Metrics)

	s.focus = focus.New(cfg.Focus, deps.Surface, s.alerts, s.sched, deps.Metrics)
	s.focus.Attach()
	s.focus.OnMarkers(func([]models.Marker) { s.live.Rebuild() })
	s.live.SetExtraMarkers(s.focus.Markers)
	if deps.Surface != nil {
		s.live.OnView(func(v view.View) { deps.Surface.SetMarkers(v.Markers) })
	}

	s.detect = detect.New(cfg.Detect, s.alerts, deps.Notified, asyncNotifier(deps.Notifier), s.focus, s.sched)

	if deps.Search != nil {
		s.index = NewAlertIndex(deps.Search, s.alerts)
	}
	if deps.Source != nil {
		s.binder = reconciler.NewBinder(deps.Source)
		s.binder.OnResubscribe = s.catchUp
	}
	if cfg.RefreshSchedule != "" {
		s.cron = scheduler.NewCron(time.Local)
		if _, err := s.cron.Add(cfg.RefreshSchedule, scheduler.FuncJob(func(ctx context.Context) {
			if err := s.Refresh(ctx); err != nil {
				logger.Warn("scheduled refresh failed", zap.Error(err))
			}
		})); err != nil {
			return nil, errors.Wrapf(err, errors.CodeInvalidArgument, "refresh schedule %q", cfg.RefreshSchedule)
		}
	}
	return s, nil
}

// Connect 订阅事件源并加载快照。订阅先于快照建立，加载期间到达的事件直接落表。
// 快照失败不返回错误，而是记录在 LastLoad().Failure 中。
func (s *Service) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return errors.WithCode(errors.CodeRejected, "dashboard disposed")
	}
	if s.connected {
		s.mu.Unlock()
		return nil
	}
	s.connected = true
	bindCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	s.beginHydrate()
	if s.binder != nil {
		if err := s.binder.Bind(bindCtx, nil, s.alerts, s.helpers, s.responders); err != nil {
			logger.Error("change feed subscribe failed", zap.Error(err))
			s.mu.Lock()
			s.connected = false
			s.mu.Unlock()
			cancel()
			return errors.Wrap(err, errors.CodeTransientFetch, "subscribe change feed")
		}
	}
	s.hydrate(ctx)

	s.detect.Start()
	if s.cron != nil {
		s.cron.Start()
	}
	logger.Info("dashboard connected",
		zap.Int("alerts", s.alerts.Len()), zap.Int("helpers", s.helpers.Len()), zap.Int("responders", s.responders.Len()))
	return nil
}

// Refresh 清空所有表并重新加载；订阅保持不变，已提示集合随表重置清空
func (s *Service) Refresh(ctx context.Context) error {
	s.mu.Lock()
	connected, disposed := s.connected, s.disposed
	s.mu.Unlock()
	if disposed || !connected {
		return errors.WithCode(errors.CodeRejected, "dashboard not connected")
	}
	s.alerts.Reset()
	s.helpers.Reset()
	s.responders.Reset()
	s.beginHydrate()
	res := s.hydrate(ctx)
	if res.Failure != nil {
		return res.Failure
	}
	return nil
}

// Dispose 停止订阅与定时任务，可重复调用
func (s *Service) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	cancel := s.cancel
	s.mu.Unlock()

	if s.cron != nil {
		s.cron.Stop()
	}
	s.detect.Stop()
	if s.binder != nil {
		s.binder.Close()
	}
	if cancel != nil {
		cancel()
	}
	s.focus.Close()
	s.sched.Stop()
	logger.Info("dashboard disposed")
}

func (s *Service) beginHydrate() {
	s.alerts.BeginHydrate()
	s.helpers.BeginHydrate()
	s.responders.BeginHydrate()
}

// hydrate 快照按“仅插入不存在的 ID”合并，不会覆盖实时事件已写入的更新状态
func (s *Service) hydrate(ctx context.Context) snapshot.Result {
	res := s.loader.Load(ctx, snapshot.Filter{})
	s.alerts.Hydrate(res.Rows)
	s.helpers.Hydrate(s.loader.LoadRows(ctx, HelperTable))
	s.responders.Hydrate(s.loader.LoadRows(ctx, ResponderTable))

	s.mu.Lock()
	s.last = res
	s.loadedAt = time.Now()
	if res.Table != "" {
		s.alertTable = res.Table
	}
	s.mu.Unlock()
	if res.Failure != nil {
		logger.Warn("snapshot degraded to empty", zap.String("table", res.Table), zap.Error(res.Failure))
	}
	return res
}

// catchUp 断线重连后补拉：已有条目合并服务端行，缺失条目按快照插入
func (s *Service) catchUp(table string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	logger.Info("catch up after resubscribe", zap.String("table", table))
	switch table {
	case s.alerts.Name():
		res := s.loader.Load(ctx, snapshot.Filter{})
		if res.Failure == nil {
			mergeRows(s.alerts, res.Rows)
		}
	case HelperTable:
		mergeRows(s.helpers, s.loader.LoadRows(ctx, HelperTable))
	case ResponderTable:
		mergeRows(s.responders, s.loader.LoadRows(ctx, ResponderTable))
	}
}

func mergeRows[T any](t *reconciler.Table[T], rows []models.Row) {
	var fresh []models.Row
	for _, r := range rows {
		if _, ok := t.Row(r.ID()); ok {
			if err := t.ApplyUpdate(r); err != nil {
				logger.Warn("catch up row skipped", zap.String("table", t.Name()), zap.Error(err))
			}
			continue
		}
		fresh = append(fresh, r)
	}
	t.Hydrate(fresh)
}

// Alerts 只读访问；修改须经写路径或事件源
func (s *Service) Alerts() *reconciler.Table[models.Alert]         { return s.alerts }
func (s *Service) Helpers() *reconciler.Table[models.Personnel]    { return s.helpers }
func (s *Service) Responders() *reconciler.Table[models.Personnel] { return s.responders }
func (s *Service) Live() *view.Live                                { return s.live }
func (s *Service) Focus() *focus.Controller                        { return s.focus }
func (s *Service) Detector() *detect.Observer                      { return s.detect }
func (s *Service) Geo() *geo.Client                                { return s.deps.Geo }
func (s *Service) Index() *AlertIndex                              { return s.index }

// LoadStatus 最近一次加载的结果摘要
type LoadStatus struct {
	Table       string        `json:"table"`
	OrderColumn string        `json:"order_column"`
	Rows        int           `json:"rows"`
	LoadedAt    time.Time     `json:"loaded_at"`
	Failure     *errors.Error `json:"failure,omitempty"`
}

func (s *Service) LastLoad() LoadStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return LoadStatus{
		Table:       s.last.Table,
		OrderColumn: s.last.OrderColumn,
		Rows:        len(s.last.Rows),
		LoadedAt:    s.loadedAt,
		Failure:     s.last.Failure,
	}
}

func (s *Service) table() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alertTable
}
