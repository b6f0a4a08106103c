package models

// 进程内信号，sender 为 Alert
const (
	SigAlertStatusChanged = "alert.status_changed"
	SigAlertAssigned      = "alert.assigned"
	SigTrackingEnded      = "alert.tracking_ended"
)
