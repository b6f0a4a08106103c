package notification

import (
	"context"
	"time"

	"RescueDesk/internal/models"
	"RescueDesk/pkg/errors"
	"RescueDesk/pkg/i18n"
	"RescueDesk/pkg/logger"
	"RescueDesk/pkg/metrics"

	"go.uber.org/zap"
)

// Kind 通知类型
type Kind string

const (
	KindNewAlert     Kind = "new_alert"
	KindStatusChange Kind = "status_change"
	KindTrackingEnd  Kind = "tracking_ended"
)

// Message 一条面向调度员的通知
type Message struct {
	Kind     Kind               `json:"kind"`
	AlertID  string             `json:"alert_id"`
	Title    string             `json:"title"`
	Body     string             `json:"body"`
	Status   models.Status      `json:"status,omitempty"`
	Priority models.Priority    `json:"priority,omitempty"`
	Position *models.Coordinate `json:"position,omitempty"`
	At       time.Time          `json:"at"`
}

// Sink 通知投递通道
type Sink interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// Dispatcher 渲染本地化文本并扇出到所有 Sink
type Dispatcher struct {
	sinks   []Sink
	i18n    *i18n.I18nSupport
	lang    string
	metrics *metrics.Metrics
	Clock   func() time.Time
}

// NewDispatcher tr 为 nil 时直接使用键名
func NewDispatcher(tr *i18n.I18nSupport, lang string, m *metrics.Metrics, sinks ...Sink) *Dispatcher {
	return &Dispatcher{sinks: sinks, i18n: tr, lang: lang, metrics: m, Clock: time.Now}
}

// AddSink 追加投递通道，须在开始投递前调用
func (d *Dispatcher) AddSink(s Sink) { d.sinks = append(d.sinks, s) }

func (d *Dispatcher) text(key string, data map[string]any) string {
	if d.i18n == nil {
		return key
	}
	return d.i18n.T(d.lang, key, data)
}

func (d *Dispatcher) build(kind Kind, prefix string, a models.Alert) Message {
	data := map[string]any{"Title": a.Title(), "Status": string(a.Status)}
	if a.Location != nil {
		data["Position"] = a.Location.String()
	} else {
		data["Position"] = "-"
	}
	return Message{
		Kind:     kind,
		AlertID:  a.ID,
		Title:    d.text(prefix+".title", data),
		Body:     d.text(prefix+".body", data),
		Status:   a.Status,
		Priority: a.Priority,
		Position: a.Location,
		At:       d.Clock(),
	}
}

// NotifyAlert 新警报通知
func (d *Dispatcher) NotifyAlert(ctx context.Context, a models.Alert) error {
	return d.Dispatch(ctx, d.build(KindNewAlert, "alert.new", a))
}

// NotifyStatus 状态变更通知
func (d *Dispatcher) NotifyStatus(ctx context.Context, a models.Alert) error {
	return d.Dispatch(ctx, d.build(KindStatusChange, "alert.status", a))
}

// NotifyTrackingEnded 追踪因终态结束
func (d *Dispatcher) NotifyTrackingEnded(ctx context.Context, a models.Alert) error {
	return d.Dispatch(ctx, d.build(KindTrackingEnd, "tracking.ended", a))
}

// Dispatch 投递到全部 Sink；单个失败不影响其他，返回第一个错误
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) error {
	var first error
	for _, s := range d.sinks {
		if err := s.Send(ctx, msg); err != nil {
			logger.Warn("notification sink failed",
				zap.String("sink", s.Name()), zap.String("alert", msg.AlertID), zap.Error(err))
			if first == nil {
				first = errors.Wrapf(err, errors.CodeTransientFetch, "sink %s", s.Name())
			}
			continue
		}
		d.metrics.Notification(s.Name())
	}
	return first
}

// FuncSink 以函数实现 Sink
type FuncSink struct {
	SinkName string
	Fn       func(ctx context.Context, msg Message) error
}

func (f FuncSink) Name() string                                { return f.SinkName }
func (f FuncSink) Send(ctx context.Context, msg Message) error { return f.Fn(ctx, msg) }
