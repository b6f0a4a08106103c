// Package detect 发现尚未提示给调度员的新警报，每个警报在一次会话中只提示一次。
package detect

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"RescueDesk/internal/models"
	"RescueDesk/internal/reconciler"
	"RescueDesk/pkg/cache"
	"RescueDesk/pkg/logger"
	"RescueDesk/pkg/scheduler"

	"go.uber.org/zap"
)

// Mode 触发方式
type Mode string

const (
	ModeEvent Mode = "event"
	ModePoll  Mode = "poll"
	ModeBoth  Mode = "both"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeEvent, ModePoll, ModeBoth:
		return m, nil
	case "":
		return ModeBoth, nil
	}
	return "", fmt.Errorf("unknown detection mode %q", s)
}

// DefaultInterval 轮询间隔
const DefaultInterval = 500 * time.Millisecond

// Notifier 新警报提示
type Notifier interface {
	NotifyAlert(ctx context.Context, a models.Alert) error
}

// Tracker 为新警报开启持久跟踪
type Tracker interface {
	Track(alertID string) (models.Marker, error)
}

// Config 检测参数
type Config struct {
	Mode     Mode
	Interval time.Duration
}

// Observer 检测器。已提示集合存放在 cache 中，表 Reset 时清空。
type Observer struct {
	cfg      Config
	alerts   *reconciler.Table[models.Alert]
	notified cache.Cache
	notifier Notifier
	tracker  Tracker
	sched    *scheduler.Scheduler

	paused atomic.Bool
	// sweepMu 串行化扫描与单条检查，保证同一 ID 只提示一次
	sweepMu sync.Mutex

	mu     sync.Mutex
	cancel scheduler.CancelFunc
}

// New tracker 可为 nil
func New(cfg Config, alerts *reconciler.Table[models.Alert], notified cache.Cache, notifier Notifier, tracker Tracker, sched *scheduler.Scheduler) *Observer {
	if cfg.Mode == "" {
		cfg.Mode = ModeBoth
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	o := &Observer{cfg: cfg, alerts: alerts, notified: notified, notifier: notifier, tracker: tracker, sched: sched}
	alerts.OnChange(o.onChange)
	return o
}

func (o *Observer) Mode() Mode { return o.cfg.Mode }

func (o *Observer) onChange(ch reconciler.Change[models.Alert]) {
	switch ch.Kind {
	case reconciler.ChangeReset:
		o.Reset(context.Background())
	case reconciler.ChangeInsert, reconciler.ChangeUpdate:
		if o.cfg.Mode == ModePoll {
			return
		}
		o.sweepMu.Lock()
		defer o.sweepMu.Unlock()
		if !o.paused.Load() {
			o.consider(context.Background(), ch.Item)
		}
	}
}

// Start 轮询模式下启动定时扫描
func (o *Observer) Start() {
	if o.cfg.Mode == ModeEvent || o.sched == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		return
	}
	o.cancel = o.sched.Every(o.cfg.Interval, scheduler.FuncJob(func(ctx context.Context) { o.Sweep(ctx) }))
}

// Stop 停止定时扫描
func (o *Observer) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
}

// Pause 暂停期间不提示也不记录，恢复后遗漏的警报仍会被发现
func (o *Observer) Pause() { o.paused.Store(true) }

func (o *Observer) Resume() { o.paused.Store(false) }

func (o *Observer) Paused() bool { return o.paused.Load() }

// Sweep 扫描当前集合，返回本次新提示的 ID
func (o *Observer) Sweep(ctx context.Context) []string {
	o.sweepMu.Lock()
	defer o.sweepMu.Unlock()
	if o.paused.Load() {
		return nil
	}
	var fresh []string
	for _, a := range o.alerts.Snapshot() {
		if ctx.Err() != nil {
			break
		}
		if o.consider(ctx, a) {
			fresh = append(fresh, a.ID)
		}
	}
	return fresh
}

// consider 调用方持有 sweepMu
func (o *Observer) consider(ctx context.Context, a models.Alert) bool {
	if a.Status != models.StatusActive || !a.HasLocation() || a.ID == "" {
		return false
	}
	if o.notified.Exists(ctx, a.ID) {
		return false
	}
	if err := o.notified.Set(ctx, a.ID, time.Now().Unix(), 0); err != nil {
		// 无法记录时不提示，避免重复提示
		logger.Warn("record notified alert failed", zap.String("id", a.ID), zap.Error(err))
		return false
	}
	if o.notifier != nil {
		if err := o.notifier.NotifyAlert(ctx, a); err != nil {
			logger.Warn("notify alert failed", zap.String("id", a.ID), zap.Error(err))
		}
	}
	if o.tracker != nil {
		if _, err := o.tracker.Track(a.ID); err != nil {
			logger.Debug("auto track skipped", zap.String("id", a.ID), zap.Error(err))
		}
	}
	logger.Info("new alert detected", zap.String("id", a.ID), zap.String("category", a.Category))
	return true
}

// Notified 是否已提示
func (o *Observer) Notified(ctx context.Context, id string) bool {
	return o.notified.Exists(ctx, id)
}

// NotifiedCount 已提示数量
func (o *Observer) NotifiedCount(ctx context.Context) int {
	return len(o.notified.Keys(ctx))
}

// Reset 清空已提示集合
func (o *Observer) Reset(ctx context.Context) {
	if err := o.notified.Clear(ctx); err != nil {
		logger.Warn("clear notified set failed", zap.Error(err))
	}
}
