package dashboard

import (
	"context"
	"time"

	"RescueDesk/internal/detect"
	"RescueDesk/internal/models"
	"RescueDesk/pkg/logger"

	"go.uber.org/zap"
)

const notifyTimeout = 10 * time.Second

// goNotifier 检测回调运行在表的观察者链上，推送等慢操作移到独立协程
type goNotifier struct {
	next detect.Notifier
}

func asyncNotifier(n detect.Notifier) detect.Notifier {
	if n == nil {
		return nil
	}
	return goNotifier{next: n}
}

func (g goNotifier) NotifyAlert(_ context.Context, a models.Alert) error {
	a = a.Clone()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := g.next.NotifyAlert(ctx, a); err != nil {
			logger.Warn("new alert notification failed", zap.String("alert", a.ID), zap.Error(err))
		}
	}()
	return nil
}
