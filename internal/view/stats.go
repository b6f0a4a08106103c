package view

import (
	"time"

	"RescueDesk/internal/models"
)

// Stats 集合统计。ByStatus 始终包含全部状态键，其值之和等于 Total。
type Stats struct {
	Total      int                   `json:"total"`
	ByStatus   map[models.Status]int `json:"by_status"`
	ByCategory map[string]int        `json:"by_category"`
	ByPriority map[string]int        `json:"by_priority"`
	// AvgResponseMinutes 触发到指派的平均分钟数，没有任何指派时为 0
	AvgResponseMinutes float64       `json:"avg_response_minutes"`
	Responded          int           `json:"responded"`
	Recent             int           `json:"recent"`
	RecentWindow       time.Duration `json:"recent_window"`
	LastHour           int           `json:"last_hour"`
	WithMedia          int           `json:"with_media"`
	WithLocation       int           `json:"with_location"`
	ActiveHelpers      int           `json:"active_helpers"`
	BusyHelpers        int           `json:"busy_helpers"`
	Responders         int           `json:"responders"`
}

// ComputeStats 一次遍历计算全部聚合
func ComputeStats(in Input, now time.Time, window time.Duration) Stats {
	s := Stats{
		Total:        len(in.Alerts),
		ByStatus:     make(map[models.Status]int, len(models.AllStatuses)),
		ByCategory:   make(map[string]int),
		ByPriority:   make(map[string]int),
		RecentWindow: window,
	}
	for _, st := range models.AllStatuses {
		s.ByStatus[st] = 0
	}

	recentSince := now.Add(-window)
	hourSince := now.Add(-time.Hour)
	var totalMinutes float64
	for _, a := range in.Alerts {
		s.ByStatus[a.Status]++
		s.ByCategory[a.Category]++
		s.ByPriority[a.Priority.String()]++
		if mins, ok := a.ResponseMinutes(); ok {
			totalMinutes += mins
			s.Responded++
		}
		if !a.TriggeredAt.IsZero() && !a.TriggeredAt.After(now) {
			if !a.TriggeredAt.Before(recentSince) {
				s.Recent++
			}
			if !a.TriggeredAt.Before(hourSince) {
				s.LastHour++
			}
		}
		if len(a.Media) > 0 {
			s.WithMedia++
		}
		if a.HasLocation() {
			s.WithLocation++
		}
	}
	if s.Responded > 0 {
		s.AvgResponseMinutes = totalMinutes / float64(s.Responded)
	}

	for _, p := range in.Helpers {
		switch p.Status {
		case models.PersonnelAvailable:
			s.ActiveHelpers++
		case models.PersonnelBusy:
			s.ActiveHelpers++
			s.BusyHelpers++
		}
	}
	s.Responders = len(in.Responders)
	return s
}
