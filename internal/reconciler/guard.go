package reconciler

import (
	"RescueDesk/internal/models"
	"RescueDesk/pkg/logger"

	"go.uber.org/zap"
)

// TerminalGuard 已进入终态的警报不会被迟到的事件改回 active/assigned
func TerminalGuard(id string, prev, next models.Row) models.Row {
	prevStatus, _ := models.ParseStatus(prev["status"])
	if !prevStatus.Terminal() {
		return next
	}
	nextStatus, _ := models.ParseStatus(next["status"])
	if nextStatus.Terminal() {
		return next
	}
	logger.Warn("ignore status regression",
		zap.String("id", id), zap.String("from", string(prevStatus)), zap.String("to", string(nextStatus)))
	next["status"] = prev["status"]
	for _, k := range []string{"resolved_at", "closed_at", "completed_at"} {
		if v, ok := prev[k]; ok {
			next[k] = v
		}
	}
	return next
}

// DecodeAlert 无 ID 的行被拒绝，其余字段按默认值补齐
func DecodeAlert(r models.Row) (models.Alert, bool) {
	a, _ := models.AlertFromRow(r)
	return a, a.ID != ""
}

// PersonnelDecoder 帮助者/响应者表
func PersonnelDecoder(def models.Role) Decoder[models.Personnel] {
	return func(r models.Row) (models.Personnel, bool) {
		p := models.PersonnelFromRow(r, def)
		if p.ID == "" {
			return p, false
		}
		if err := p.Validate(); err != nil {
			// 缺字段的人员行仍然保留，显示层用 ID 占位
			logger.Debug("personnel row incomplete", zap.String("id", p.ID), zap.Error(err))
			if p.Name == "" {
				p.Name = p.ID
			}
		}
		return p, true
	}
}

// NewAlertTable 警报表带终态保护
func NewAlertTable(name string, opts ...Option[models.Alert]) *Table[models.Alert] {
	opts = append([]Option[models.Alert]{WithGuard[models.Alert](TerminalGuard)}, opts...)
	return NewTable(name, DecodeAlert, opts...)
}
