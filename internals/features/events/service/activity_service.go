package service

import (
	"encoding/json"
	"log"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"tickethub_backend/internals/features/events/model"
)

// LogActivity appends to the audit trail. Best effort: a failed write is
// logged and swallowed so it can never roll back the operation it describes.
func LogActivity(db *gorm.DB, message string, eventID *uuid.UUID, meta map[string]any) {
	entry := model.ActivityLog{
		ActivityMessage: message,
		ActivityEventID: eventID,
	}
	if len(meta) > 0 {
		if raw, err := json.Marshal(meta); err == nil {
			entry.ActivityMeta = datatypes.JSON(raw)
		}
	}
	if err := db.Create(&entry).Error; err != nil {
		log.Printf("[WARN] activity log write failed: %v", err)
	}
}
