package models

import (
	"strings"
	"time"
)

// Alert SOS 求助警报
type Alert struct {
	ID              string      `json:"id"`
	UserID          string      `json:"user_id,omitempty"`
	UserName        string      `json:"user_name,omitempty"`
	Category        string      `json:"category"`
	Priority        Priority    `json:"priority"`
	Status          Status      `json:"status"`
	Location        *Coordinate `json:"location,omitempty"`
	Address         string      `json:"address,omitempty"`
	Description     string      `json:"description,omitempty"`
	TriggeredAt     time.Time   `json:"triggered_at"`
	AssignedAt      *time.Time  `json:"assigned_at,omitempty"`
	ResolvedAt      *time.Time  `json:"resolved_at,omitempty"`
	ResolutionNotes string      `json:"resolution_notes,omitempty"`
	Media           []Media     `json:"media,omitempty"`
	Assignments     []Personnel `json:"assignments,omitempty"`
}

// DefaultCategory 类别缺失时的占位
const DefaultCategory = "other"

// HasLocation 是否有可绘制坐标
func (a Alert) HasLocation() bool { return a.Location != nil }

// ResponseMinutes 触发到首次指派的分钟数，未指派返回 false
func (a Alert) ResponseMinutes() (float64, bool) {
	if a.AssignedAt == nil || a.TriggeredAt.IsZero() {
		return 0, false
	}
	d := a.AssignedAt.Sub(a.TriggeredAt)
	if d < 0 {
		return 0, false
	}
	return d.Minutes(), true
}

// Title 通知与标记使用的简短标题
func (a Alert) Title() string {
	name := a.UserName
	if name == "" {
		name = a.UserID
	}
	if name == "" {
		return strings.ToUpper(a.Category)
	}
	return strings.ToUpper(a.Category) + " · " + name
}

// AlertFromRow 把原始行投影为 Alert。缺失字段使用默认值，issues 列出被默认的字段。
// 返回的 Alert.ID 为空表示该行无法使用。
func AlertFromRow(r Row) (Alert, []string) {
	var issues []string
	a := Alert{
		ID:              r.ID(),
		UserID:          r.String("user_id", "uid", "reporter_id", "created_by"),
		UserName:        r.String("user_name", "full_name", "name", "reporter_name"),
		Address:         r.String("address", "location_address", "formatted_address"),
		Description:     r.String("description", "message", "details", "notes"),
		ResolutionNotes: r.String("resolution_notes", "resolution", "resolved_notes"),
		Location:        CoordinateFromRow(r),
	}
	if a.ID == "" {
		issues = append(issues, "id")
	}

	a.Category = strings.ToLower(r.String("category", "emergency_type", "alert_type", "type"))
	if a.Category == "" {
		a.Category = DefaultCategory
		issues = append(issues, "category")
	}

	rawStatus, hasStatus := r.Lookup("status")
	st, ok := ParseStatus(rawStatus)
	if !hasStatus || !ok {
		issues = append(issues, "status")
	}
	a.Status = st

	rawPriority, _ := r.Lookup("priority", "severity", "urgency", "level")
	a.Priority, _ = ParsePriority(rawPriority)

	if ts, ok := r.Time("triggered_at", "created_at", "timestamp", "inserted_at"); ok {
		a.TriggeredAt = ts
	} else {
		issues = append(issues, "triggered_at")
	}

	a.ResolvedAt = r.TimePtr("resolved_at", "closed_at", "completed_at")
	if a.ResolvedAt != nil && !a.TriggeredAt.IsZero() && a.ResolvedAt.Before(a.TriggeredAt) {
		a.ResolvedAt = nil
		issues = append(issues, "resolved_at")
	}

	for _, key := range []string{"helpers", "assigned_helpers", "responders", "assignments"} {
		if v, ok := r[key]; ok && v != nil {
			def := RoleHelper
			if key == "responders" {
				def = RoleResponder
			}
			people, rejected := DecodeAssignments(v, a.ID, def)
			a.Assignments = append(a.Assignments, people...)
			if len(rejected) > 0 {
				issues = append(issues, key)
			}
		}
	}

	a.AssignedAt = r.TimePtr("assigned_at", "accepted_at", "responded_at", "dispatched_at")
	if a.AssignedAt == nil {
		for _, p := range a.Assignments {
			if p.AssignedAt != nil && (a.AssignedAt == nil || p.AssignedAt.Before(*a.AssignedAt)) {
				t := *p.AssignedAt
				a.AssignedAt = &t
			}
		}
	}

	// 快照已关联的媒体优先，其中已包含行内字段
	if joined, ok := r["media"].([]Media); ok {
		a.Media = append([]Media(nil), joined...)
	} else {
		a.Media = inlineMedia(r, a.ID, a.TriggeredAt)
	}
	return a, issues
}

// Clone 深拷贝切片，避免视图层共享底层数组
func (a Alert) Clone() Alert {
	out := a
	if a.Location != nil {
		loc := *a.Location
		out.Location = &loc
	}
	out.Media = append([]Media(nil), a.Media...)
	out.Assignments = append([]Personnel(nil), a.Assignments...)
	return out
}
