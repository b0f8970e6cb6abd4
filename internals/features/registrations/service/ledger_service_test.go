package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickethub_backend/internals/features/registrations/model"
)

func TestReserveFirstClaimWins(t *testing.T) {
	ledger := NewLedgerService(newTestDB(t), 5*time.Minute)
	ctx := context.Background()

	first, err := ledger.Reserve(ctx, "cs_test_1")
	require.NoError(t, err)
	assert.True(t, first.Reserved)

	second, err := ledger.Reserve(ctx, "cs_test_1")
	require.NoError(t, err)
	assert.False(t, second.Reserved)
	require.NotNil(t, second.Existing)
	assert.False(t, second.Existing.Finalized(), "in-flight claim must look like a conflict")
}

func TestFinalizeThenReplay(t *testing.T) {
	ledger := NewLedgerService(newTestDB(t), 5*time.Minute)
	ctx := context.Background()
	attendeeID := uuid.New()

	claim, err := ledger.Reserve(ctx, "cs_test_1")
	require.NoError(t, err)
	require.True(t, claim.Reserved)
	require.NoError(t, ledger.Finalize(ctx, "cs_test_1", attendeeID))

	replay, err := ledger.Reserve(ctx, "cs_test_1")
	require.NoError(t, err)
	assert.False(t, replay.Reserved)
	require.NotNil(t, replay.Existing)
	require.True(t, replay.Existing.Finalized())
	assert.Equal(t, attendeeID, *replay.Existing.AttendeeID)
}

func TestFinalizeWithoutReservation(t *testing.T) {
	ledger := NewLedgerService(newTestDB(t), 5*time.Minute)
	err := ledger.Finalize(context.Background(), "cs_never_reserved", uuid.New())
	assert.ErrorIs(t, err, ErrFinalizeNotOwner)
}

func TestFinalizeIsWriteOnce(t *testing.T) {
	ledger := NewLedgerService(newTestDB(t), 5*time.Minute)
	ctx := context.Background()

	claim, err := ledger.Reserve(ctx, "cs_test_1")
	require.NoError(t, err)
	require.True(t, claim.Reserved)

	require.NoError(t, ledger.Finalize(ctx, "cs_test_1", uuid.New()))
	err = ledger.Finalize(ctx, "cs_test_1", uuid.New())
	assert.ErrorIs(t, err, ErrFinalizeNotOwner)
}

func TestReserveReclaimsStaleClaim(t *testing.T) {
	ledger := NewLedgerService(newTestDB(t), 5*time.Minute)
	ctx := context.Background()

	// First claimant crashed six minutes ago.
	past := time.Now().UTC().Add(-6 * time.Minute)
	ledger.now = func() time.Time { return past }
	claim, err := ledger.Reserve(ctx, "cs_test_1")
	require.NoError(t, err)
	require.True(t, claim.Reserved)

	ledger.now = time.Now
	reclaimed, err := ledger.Reserve(ctx, "cs_test_1")
	require.NoError(t, err)
	assert.True(t, reclaimed.Reserved, "stale unfinalized claim must be reclaimable")
}

func TestReserveDoesNotReclaimFreshClaim(t *testing.T) {
	ledger := NewLedgerService(newTestDB(t), 5*time.Minute)
	ctx := context.Background()

	// Claimed four minutes ago, still within the stale threshold.
	ledger.now = func() time.Time { return time.Now().UTC().Add(-4 * time.Minute) }
	claim, err := ledger.Reserve(ctx, "cs_test_1")
	require.NoError(t, err)
	require.True(t, claim.Reserved)

	ledger.now = time.Now
	conflict, err := ledger.Reserve(ctx, "cs_test_1")
	require.NoError(t, err)
	assert.False(t, conflict.Reserved)
	require.NotNil(t, conflict.Existing)
	assert.False(t, conflict.Existing.Finalized())
}

func TestReserveStaleFinalizedRowIsReplay(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedgerService(db, 5*time.Minute)
	ctx := context.Background()
	attendeeID := uuid.New()

	// A finalized row never goes stale, regardless of age.
	old := model.ProcessedPayment{
		StripeSessionID: "cs_test_1",
		AttendeeID:      &attendeeID,
		ProcessedAt:     time.Now().UTC().Add(-48 * time.Hour),
	}
	require.NoError(t, db.Create(&old).Error)

	result, err := ledger.Reserve(ctx, "cs_test_1")
	require.NoError(t, err)
	assert.False(t, result.Reserved)
	require.NotNil(t, result.Existing)
	assert.True(t, result.Existing.Finalized())
}

func TestReserveConcurrent(t *testing.T) {
	ledger := NewLedgerService(newTestDB(t), 5*time.Minute)
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	results := make([]ReserveResult, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			results[n], errs[n] = ledger.Reserve(ctx, "cs_race")
		}(i)
	}
	wg.Wait()

	winners := 0
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		if results[i].Reserved {
			winners++
		}
	}
	assert.Equal(t, 1, winners, "exactly one concurrent claimant may win")
}
