package models

import (
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// Role 人员角色
type Role string

const (
	RoleHelper    Role = "helper"
	RoleResponder Role = "responder"
)

// PersonnelStatus 人员可用状态
type PersonnelStatus string

const (
	PersonnelAvailable PersonnelStatus = "available"
	PersonnelBusy      PersonnelStatus = "busy"
	PersonnelOffline   PersonnelStatus = "offline"
)

// Personnel 志愿者或专业救援人员的一次指派
type Personnel struct {
	ID           string          `json:"id"`
	AlertID      string          `json:"alert_id,omitempty"`
	Name         string          `json:"name" validate:"required"`
	Contact      string          `json:"contact,omitempty"`
	Organization string          `json:"organization,omitempty"`
	Role         Role            `json:"role" validate:"oneof=helper responder"`
	Status       PersonnelStatus `json:"status" validate:"oneof=available busy offline"`
	AssignedAt   *time.Time      `json:"assigned_at,omitempty"`
	ArrivedAt    *time.Time      `json:"arrived_at,omitempty"`
	Location     *Coordinate     `json:"location,omitempty"`
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator 共享校验器
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate 校验必填字段与枚举
func (p Personnel) Validate() error {
	return Validator().Struct(p)
}

func parsePersonnelStatus(s string) PersonnelStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "available", "idle", "online", "free":
		return PersonnelAvailable
	case "busy", "assigned", "en_route", "on_scene", "responding":
		return PersonnelBusy
	case "offline", "inactive", "off_duty":
		return PersonnelOffline
	case "":
		return PersonnelAvailable
	}
	return PersonnelStatus(strings.ToLower(s))
}

func parseRole(s string, def Role) Role {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "helper", "volunteer", "citizen":
		return RoleHelper
	case "responder", "professional", "paramedic", "police", "firefighter", "ems":
		return RoleResponder
	case "":
		return def
	}
	return Role(strings.ToLower(s))
}

// PersonnelFromRow helpers/responders 表行或嵌入的指派对象投影，未做校验
func PersonnelFromRow(r Row, def Role) Personnel {
	p := Personnel{
		ID:           r.ID(),
		AlertID:      r.String("alert_id", "sos_alert_id", "sos_id", "emergency_id"),
		Name:         r.String("name", "full_name", "display_name", "helper_name", "responder_name"),
		Contact:      r.String("contact", "phone", "phone_number", "email"),
		Organization: r.String("organization", "org", "agency", "unit"),
		Role:         parseRole(r.String("role", "type", "kind"), def),
		Status:       parsePersonnelStatus(r.String("status", "availability")),
		AssignedAt:   r.TimePtr("assigned_at", "accepted_at", "dispatched_at", "created_at"),
		ArrivedAt:    r.TimePtr("arrived_at", "arrival_time", "on_scene_at"),
		Location:     CoordinateFromRow(r),
	}
	if p.ID == "" {
		p.ID = r.String("user_id", "helper_id", "responder_id")
	}
	if p.ArrivedAt != nil && p.AssignedAt != nil && p.ArrivedAt.Before(*p.AssignedAt) {
		p.ArrivedAt = nil
	}
	return p
}

// DecodeAssignments 解码松散的指派数组，非法条目被丢弃并通过 rejected 返回
func DecodeAssignments(v any, alertID string, def Role) (valid []Personnel, rejected []error) {
	for _, r := range asRows(v) {
		p := PersonnelFromRow(r, def)
		if p.AlertID == "" {
			p.AlertID = alertID
		}
		if err := p.Validate(); err != nil {
			rejected = append(rejected, err)
			continue
		}
		valid = append(valid, p)
	}
	return valid, rejected
}
