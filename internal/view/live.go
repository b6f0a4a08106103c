package view

import (
	"sync"
	"time"

	"RescueDesk/internal/models"
	"RescueDesk/internal/reconciler"
	"RescueDesk/pkg/metrics"
)

// Live 持有最新视图，任一表变更或过滤条件变化时全量重建并通知监听者
type Live struct {
	alerts     *reconciler.Table[models.Alert]
	helpers    *reconciler.Table[models.Personnel]
	responders *reconciler.Table[models.Personnel]
	metrics    *metrics.Metrics

	// Clock 测试注入
	Clock func() time.Time

	// buildMu 保证视图按构建顺序发布
	buildMu   sync.Mutex
	mu        sync.RWMutex
	opts      Options
	extra     func() []models.Marker
	current   View
	seq       uint64
	listeners []func(View)
}

// NewLive helpers/responders 可为 nil
func NewLive(alerts *reconciler.Table[models.Alert], helpers, responders *reconciler.Table[models.Personnel], opts Options, m *metrics.Metrics) *Live {
	l := &Live{alerts: alerts, helpers: helpers, responders: responders, metrics: m, opts: opts, Clock: time.Now}
	alerts.OnChange(func(reconciler.Change[models.Alert]) { l.Rebuild() })
	for _, t := range []*reconciler.Table[models.Personnel]{helpers, responders} {
		if t != nil {
			t.OnChange(func(reconciler.Change[models.Personnel]) { l.Rebuild() })
		}
	}
	l.Rebuild()
	return l
}

// SetOptions 替换过滤条件并重建
func (l *Live) SetOptions(opts Options) View {
	l.mu.Lock()
	l.opts = opts
	l.mu.Unlock()
	return l.Rebuild()
}

func (l *Live) Options() Options {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.opts
}

// SetExtraMarkers 附加标记来源（聚焦控制器）
func (l *Live) SetExtraMarkers(fn func() []models.Marker) {
	l.mu.Lock()
	l.extra = fn
	l.mu.Unlock()
}

// OnView 注册视图监听者，在重建的协程中同步调用；监听者内不得再调用 Rebuild
func (l *Live) OnView(fn func(View)) {
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	l.mu.Unlock()
}

// Current 最近一次构建的视图
func (l *Live) Current() View {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// Input 当前集合快照
func (l *Live) Input() Input {
	in := Input{Alerts: l.alerts.Snapshot()}
	if l.helpers != nil {
		in.Helpers = l.helpers.Snapshot()
	}
	if l.responders != nil {
		in.Responders = l.responders.Snapshot()
	}
	return in
}

// Rebuild 全量重算
func (l *Live) Rebuild() View {
	l.buildMu.Lock()
	defer l.buildMu.Unlock()
	start := time.Now()
	in := l.Input()

	l.mu.RLock()
	opts := l.opts
	extra := l.extra
	l.mu.RUnlock()

	if extra != nil {
		opts.Extra = append(append([]models.Marker(nil), opts.Extra...), extra()...)
	}
	if opts.Now.IsZero() && l.Clock != nil {
		opts.Now = l.Clock()
	}
	v := Build(in, opts)

	l.mu.Lock()
	l.seq++
	v.Version = l.seq
	l.current = v
	listeners := make([]func(View), len(l.listeners))
	copy(listeners, l.listeners)
	l.mu.Unlock()

	l.metrics.ViewBuilt(time.Since(start))
	for _, fn := range listeners {
		fn(v)
	}
	return v
}
