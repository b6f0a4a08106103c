package listeners

import (
	"context"
	"time"

	"RescueDesk/internal/models"
	"RescueDesk/pkg/logger"
	"RescueDesk/pkg/notification"
	"RescueDesk/pkg/util"

	"go.uber.org/zap"
)

// notifyTimeout 单次通知扇出的上限
const notifyTimeout = 10 * time.Second

// InitAlertListeners 状态变更、指派与追踪结束转为调度员通知
func InitAlertListeners(sig *util.Signals, d *notification.Dispatcher) {
	if sig == nil {
		sig = util.Sig()
	}
	forward := func(name string, send func(context.Context, models.Alert) error) {
		sig.Connect(name, func(sender any, params ...any) {
			a, ok := sender.(models.Alert)
			if !ok {
				return
			}
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
				defer cancel()
				if err := send(ctx, a); err != nil {
					logger.Warn("notify failed", zap.String("signal", name), zap.String("alert", a.ID), zap.Error(err))
				}
			}()
		})
	}
	forward(models.SigAlertStatusChanged, d.NotifyStatus)
	forward(models.SigAlertAssigned, d.NotifyStatus)
	forward(models.SigTrackingEnded, d.NotifyTrackingEnded)
}
