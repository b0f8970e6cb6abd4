package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"tickethub_backend/internals/features/registrations/model"
)

// reserveAttempts bounds the insert/inspect loop. Races between concurrent
// webhook deliveries resolve in microseconds, so hitting the cap means
// something is pathologically wrong and we fail loudly instead of spinning.
const reserveAttempts = 10

var (
	ErrReserveContention = errors.New("ledger: reserve retry budget exhausted")
	ErrFinalizeNotOwner  = errors.New("ledger: finalize without a live reservation")
)

// ReserveResult is the explicit outcome of a claim attempt. A duplicate-key
// insert is an expected result here, not an error: callers branch on the
// struct, never on storage exceptions.
type ReserveResult struct {
	Reserved bool
	// Existing is set when Reserved is false: either a finalized row
	// (AttendeeID non-nil, idempotent replay) or a fresh in-flight row
	// (AttendeeID nil, retryable conflict).
	Existing *model.ProcessedPayment
}

// LedgerService implements the two-phase claim/finalize protocol over the
// processed_payments table. The table's primary key is the only
// synchronization primitive; no in-process locks, because concurrent handlers
// may live on different machines.
type LedgerService struct {
	DB    *gorm.DB
	Stale time.Duration
	now   func() time.Time
}

func NewLedgerService(db *gorm.DB, stale time.Duration) *LedgerService {
	return &LedgerService{DB: db, Stale: stale, now: time.Now}
}

// Reserve claims sessionID for the caller. Exactly one concurrent caller gets
// Reserved=true and with it the exclusive right to finalize.
func (s *LedgerService) Reserve(ctx context.Context, sessionID string) (ReserveResult, error) {
	for attempt := 0; attempt < reserveAttempts; attempt++ {
		row := model.ProcessedPayment{
			StripeSessionID: sessionID,
			AttendeeID:      nil,
			ProcessedAt:     s.now().UTC(),
		}
		err := s.DB.WithContext(ctx).Create(&row).Error
		if err == nil {
			return ReserveResult{Reserved: true}, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return ReserveResult{}, fmt.Errorf("ledger: insert reservation: %w", err)
		}

		var existing model.ProcessedPayment
		err = s.DB.WithContext(ctx).
			First(&existing, "stripe_session_id = ?", sessionID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Lost a race with a claimant that already cleared its stale
			// row; start over.
			continue
		}
		if err != nil {
			return ReserveResult{}, fmt.Errorf("ledger: read reservation: %w", err)
		}

		if existing.Finalized() {
			return ReserveResult{Reserved: false, Existing: &existing}, nil
		}

		if existing.Stale(s.now().UTC(), s.Stale) {
			// The original claimant is presumed crashed. Delete only if the
			// row is still the one we inspected (unfinalized and old) so a
			// finalize racing us is never wiped out.
			res := s.DB.WithContext(ctx).
				Where("stripe_session_id = ? AND attendee_id IS NULL AND processed_at = ?",
					sessionID, existing.ProcessedAt).
				Delete(&model.ProcessedPayment{})
			if res.Error != nil {
				return ReserveResult{}, fmt.Errorf("ledger: clear stale reservation: %w", res.Error)
			}
			continue
		}

		// Fresh in-flight claim owned by someone else.
		return ReserveResult{Reserved: false, Existing: &existing}, nil
	}
	return ReserveResult{}, ErrReserveContention
}

// Finalize writes the attendee id into the claimed row. It is the sole
// nil→non-nil transition and may only be called by the claimant that received
// Reserved=true.
func (s *LedgerService) Finalize(ctx context.Context, sessionID string, attendeeID uuid.UUID) error {
	return s.FinalizeTx(ctx, s.DB, sessionID, attendeeID)
}

// FinalizeTx runs the finalize write on the caller's handle so attendee
// creation and the ledger transition can commit or roll back together.
func (s *LedgerService) FinalizeTx(ctx context.Context, db *gorm.DB, sessionID string, attendeeID uuid.UUID) error {
	res := db.WithContext(ctx).
		Model(&model.ProcessedPayment{}).
		Where("stripe_session_id = ? AND attendee_id IS NULL", sessionID).
		Update("attendee_id", attendeeID)
	if res.Error != nil {
		return fmt.Errorf("ledger: finalize: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrFinalizeNotOwner
	}
	return nil
}
