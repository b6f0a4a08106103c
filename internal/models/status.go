package models

import (
	"strings"

	"github.com/spf13/cast"
)

// Status 警报生命周期状态
type Status string

const (
	StatusActive    Status = "active"
	StatusAssigned  Status = "assigned"
	StatusResolved  Status = "resolved"
	StatusCancelled Status = "cancelled"
	StatusTimeout   Status = "timeout"
)

// AllStatuses 固定顺序，统计输出按此顺序补零
var AllStatuses = []Status{StatusActive, StatusAssigned, StatusResolved, StatusCancelled, StatusTimeout}

var statusAliases = map[string]Status{
	"active":      StatusActive,
	"pending":     StatusActive,
	"open":        StatusActive,
	"triggered":   StatusActive,
	"new":         StatusActive,
	"assigned":    StatusAssigned,
	"processing":  StatusAssigned,
	"in_progress": StatusAssigned,
	"dispatched":  StatusAssigned,
	"responding":  StatusAssigned,
	"accepted":    StatusAssigned,
	"resolved":    StatusResolved,
	"completed":   StatusResolved,
	"closed":      StatusResolved,
	"safe":        StatusResolved,
	"cancelled":   StatusCancelled,
	"canceled":    StatusCancelled,
	"false_alarm": StatusCancelled,
	"dismissed":   StatusCancelled,
	"timeout":     StatusTimeout,
	"timed_out":   StatusTimeout,
	"expired":     StatusTimeout,
}

// ParseStatus 归一化历史状态值；无法识别时返回 active 和 false
func ParseStatus(v any) (Status, bool) {
	s := strings.ToLower(strings.TrimSpace(cast.ToString(v)))
	s = strings.NewReplacer("-", "_", " ", "_").Replace(s)
	if st, ok := statusAliases[s]; ok {
		return st, true
	}
	return StatusActive, false
}

// Terminal resolved / cancelled / timeout 之后不会再回到活跃状态
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusCancelled || s == StatusTimeout
}

// Open active 或 assigned
func (s Status) Open() bool { return s == StatusActive || s == StatusAssigned }

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusAssigned, StatusResolved, StatusCancelled, StatusTimeout:
		return true
	}
	return false
}

// Priority 1 最高，5 最低
type Priority int

const (
	PriorityCritical Priority = 1
	PriorityHigh     Priority = 2
	PriorityMedium   Priority = 3
	PriorityLow      Priority = 4
	PriorityInfo     Priority = 5

	DefaultPriority = PriorityMedium
)

var priorityNames = map[Priority]string{
	PriorityCritical: "critical",
	PriorityHigh:     "high",
	PriorityMedium:   "medium",
	PriorityLow:      "low",
	PriorityInfo:     "info",
}

var priorityAliases = map[string]Priority{
	"critical": PriorityCritical,
	"urgent":   PriorityCritical,
	"p1":       PriorityCritical,
	"high":     PriorityHigh,
	"p2":       PriorityHigh,
	"medium":   PriorityMedium,
	"normal":   PriorityMedium,
	"moderate": PriorityMedium,
	"p3":       PriorityMedium,
	"low":      PriorityLow,
	"p4":       PriorityLow,
	"info":     PriorityInfo,
	"minimal":  PriorityInfo,
	"minor":    PriorityInfo,
	"p5":       PriorityInfo,
}

// ParsePriority 接受字符串枚举或 1-5 数值；超出范围的数值被钳制
func ParsePriority(v any) (Priority, bool) {
	if v == nil {
		return DefaultPriority, false
	}
	s := strings.ToLower(strings.TrimSpace(cast.ToString(v)))
	if p, ok := priorityAliases[s]; ok {
		return p, true
	}
	n, err := cast.ToFloat64E(v)
	if err != nil || s == "" {
		return DefaultPriority, false
	}
	switch {
	case n < 1:
		return PriorityCritical, true
	case n > 5:
		return PriorityInfo, true
	}
	return Priority(int(n + 0.5)), true
}

func (p Priority) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return priorityNames[DefaultPriority]
}

// MarshalText 序列化为名字，便于前端直接展示
func (p Priority) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Priority) UnmarshalText(b []byte) error {
	*p, _ = ParsePriority(string(b))
	return nil
}
