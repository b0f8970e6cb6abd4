package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Attendee is one paid registration. Contact columns hold the field codec's
// "v1:" ciphertext, encrypted per-field under the event owner's data key; a
// field the event does not collect stays empty.
type Attendee struct {
	AttendeeID      uuid.UUID `gorm:"column:attendee_id;type:uuid;default:gen_random_uuid();primaryKey" json:"attendee_id"`
	AttendeeEventID uuid.UUID `gorm:"column:attendee_event_id;type:uuid;not null;index" json:"attendee_event_id"`

	AttendeeName  string `gorm:"column:attendee_name;type:text" json:"-"`
	AttendeeEmail string `gorm:"column:attendee_email;type:text" json:"-"`
	AttendeePhone string `gorm:"column:attendee_phone;type:text" json:"-"`

	AttendeeQuantity    int   `gorm:"column:attendee_quantity;not null;check:attendee_quantity > 0" json:"attendee_quantity"`
	AttendeeAmountTotal int64 `gorm:"column:attendee_amount_total;not null" json:"attendee_amount_total"`
	AttendeeCheckedIn   bool  `gorm:"column:attendee_checked_in;not null;default:false" json:"attendee_checked_in"`

	// Provider charge/payment id, kept for refunds.
	AttendeePaymentRef *string `gorm:"column:attendee_payment_ref" json:"attendee_payment_ref,omitempty"`

	CreatedAt time.Time `gorm:"column:attendee_created_at;autoCreateTime" json:"attendee_created_at"`
}

func (Attendee) TableName() string { return "attendees" }

func (a *Attendee) BeforeCreate(tx *gorm.DB) error {
	if a.AttendeeID == uuid.Nil {
		a.AttendeeID = uuid.New()
	}
	return nil
}
