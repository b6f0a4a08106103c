package models

import (
	"time"

	"gorm.io/datatypes"
)

// AlertRecord sos_alerts 表结构，用于本地 sqlite 部署和测试建表
type AlertRecord struct {
	ID              string `gorm:"primaryKey;size:64"`
	UserID          string `gorm:"size:64;index"`
	UserName        string
	Category        string `gorm:"size:32"`
	Priority        string `gorm:"size:16"`
	Status          string `gorm:"size:16;index"`
	Latitude        *float64
	Longitude       *float64
	Address         string
	Description     string
	TriggeredAt     time.Time `gorm:"index"`
	AssignedAt      *time.Time
	ResolvedAt      *time.Time
	ResolutionNotes string
	Helpers         datatypes.JSON
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (AlertRecord) TableName() string { return "sos_alerts" }

// MediaRecord media 表
type MediaRecord struct {
	ID        string `gorm:"primaryKey;size:64"`
	AlertID   string `gorm:"size:64;index"`
	MediaType string `gorm:"size:16"`
	URL       string
	Duration  *float64
	Size      *int64
	CreatedAt time.Time
}

func (MediaRecord) TableName() string { return "media" }

// PersonnelRecord helpers / responders 两张表共用结构
type PersonnelRecord struct {
	ID           string `gorm:"primaryKey;size:64"`
	AlertID      string `gorm:"size:64;index"`
	Name         string
	Contact      string
	Organization string
	Status       string `gorm:"size:16"`
	Latitude     *float64
	Longitude    *float64
	AssignedAt   *time.Time
	ArrivedAt    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// OperatorAction 操作员对警报执行的操作（改状态、指派、刷新等）
type OperatorAction struct {
	ID         uint   `gorm:"primaryKey"`
	AlertID    string `gorm:"size:64;index"`
	Operator   string `gorm:"size:64"`
	Action     string `gorm:"size:64"`
	Method     string `gorm:"size:8"`
	Path       string
	StatusCode int
	IP         string `gorm:"size:64"`
	Browser    string `gorm:"size:64"`
	OS         string `gorm:"size:64"`
	Detail     datatypes.JSON
	ActionTime time.Time `gorm:"index"`
}

// Migrate 返回需要建表的模型，personnel 两张表按表名单独迁移
func Migrate() []any {
	return []any{&AlertRecord{}, &MediaRecord{}, &OperatorAction{}}
}
