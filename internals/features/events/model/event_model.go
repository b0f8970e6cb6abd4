package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	paymentModel "tickethub_backend/internals/features/payments/model"
)

/* ===================== Model ===================== */

type Event struct {
	EventID      uuid.UUID `gorm:"column:event_id;type:uuid;default:gen_random_uuid();primaryKey" json:"event_id"`
	EventOwnerID uuid.UUID `gorm:"column:event_owner_id;type:uuid;not null;index" json:"event_owner_id"`

	EventName        string  `gorm:"column:event_name;not null" json:"event_name"`
	EventDescription *string `gorm:"column:event_description" json:"event_description,omitempty"`

	// Price in the smallest currency unit (cents); integer math only.
	EventPriceAmount int64  `gorm:"column:event_price_amount;not null;check:event_price_amount >= 0" json:"event_price_amount"`
	EventCurrency    string `gorm:"column:event_currency;type:varchar(8);not null;default:USD" json:"event_currency"`

	EventProvider paymentModel.PaymentProvider `gorm:"column:event_provider;type:varchar(16);not null" json:"event_provider"`

	// Which contact fields this event collects. Absent fields are never
	// stored, encrypted or otherwise.
	EventCollectName  bool `gorm:"column:event_collect_name;not null;default:true" json:"event_collect_name"`
	EventCollectEmail bool `gorm:"column:event_collect_email;not null;default:true" json:"event_collect_email"`
	EventCollectPhone bool `gorm:"column:event_collect_phone;not null;default:false" json:"event_collect_phone"`

	// Optional outbound notification target; payloads carry no PII.
	EventNotifyURL *string `gorm:"column:event_notify_url" json:"event_notify_url,omitempty"`

	// Provider-side webhook endpoint id, recorded by the idempotent setup call.
	EventWebhookEndpointID *string `gorm:"column:event_webhook_endpoint_id" json:"event_webhook_endpoint_id,omitempty"`

	CreatedAt time.Time      `gorm:"column:event_created_at;autoCreateTime" json:"event_created_at"`
	UpdatedAt time.Time      `gorm:"column:event_updated_at;autoUpdateTime" json:"event_updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"column:event_deleted_at;index" json:"event_deleted_at,omitempty"`
}

func (Event) TableName() string { return "events" }

func (e *Event) BeforeCreate(tx *gorm.DB) error {
	if e.EventID == uuid.Nil {
		e.EventID = uuid.New()
	}
	return nil
}
