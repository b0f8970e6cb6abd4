package model

import (
	"time"

	"github.com/google/uuid"
)

// ProcessedPayment is the reservation ledger: one row per payment session,
// keyed by the provider session/order id. The primary key is the only
// synchronization primitive protecting against duplicate webhook delivery —
// attendee_id is NULL exactly while a registration is in flight and is written
// once, by the claimant that inserted the row.
//
// The column keeps its historical stripe_ prefix; it holds Square order ids
// and Midtrans order ids just the same.
type ProcessedPayment struct {
	StripeSessionID string     `gorm:"column:stripe_session_id;primaryKey" json:"stripe_session_id"`
	AttendeeID      *uuid.UUID `gorm:"column:attendee_id;type:uuid" json:"attendee_id,omitempty"`
	ProcessedAt     time.Time  `gorm:"column:processed_at;not null" json:"processed_at"`
}

func (ProcessedPayment) TableName() string { return "processed_payments" }

func (p *ProcessedPayment) Finalized() bool { return p.AttendeeID != nil }

func (p *ProcessedPayment) Stale(now time.Time, threshold time.Duration) bool {
	return p.AttendeeID == nil && now.Sub(p.ProcessedAt) > threshold
}
