package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ActivityLog is the fire-and-forget audit trail. Writes are best effort and
// never block or roll back a registration. Meta holds structured detail
// (quantities, amounts); PII never goes in here.
type ActivityLog struct {
	ActivityID      uuid.UUID      `gorm:"column:activity_id;type:uuid;default:gen_random_uuid();primaryKey" json:"activity_id"`
	ActivityEventID *uuid.UUID     `gorm:"column:activity_event_id;type:uuid;index" json:"activity_event_id,omitempty"`
	ActivityMessage string         `gorm:"column:activity_message;not null" json:"activity_message"`
	ActivityMeta    datatypes.JSON `gorm:"column:activity_meta;type:jsonb" json:"activity_meta,omitempty"`
	CreatedAt       time.Time      `gorm:"column:activity_created_at;autoCreateTime;index" json:"activity_created_at"`
}

func (ActivityLog) TableName() string { return "activity_logs" }

func (a *ActivityLog) BeforeCreate(tx *gorm.DB) error {
	if a.ActivityID == uuid.Nil {
		a.ActivityID = uuid.New()
	}
	return nil
}
