package quota

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postpilot/backend/internal/domain/identity"
	"github.com/postpilot/backend/internal/domain/shared"
)

func TestLedger_Reserve(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	ttl := 5 * time.Minute

	t.Run("consumes one slot per reservation", func(t *testing.T) {
		ledger := NewLedger(uuid.New(), identity.TierStarter, now)

		res, err := ledger.Reserve(now, ttl)

		require.NoError(t, err)
		assert.Equal(t, ReservationPending, res.State)
		assert.Equal(t, ledger.UserID, res.UserID)
		assert.Equal(t, now.Add(ttl), res.ExpiresAt)
		assert.Equal(t, 1, ledger.UsedPosts)
		assert.Equal(t, 11, ledger.Remaining())
	})

	t.Run("fails once quota is spent", func(t *testing.T) {
		ledger := NewLedger(uuid.New(), identity.TierStarter, now)

		for i := 0; i < identity.TierStarter.PostQuota(); i++ {
			_, err := ledger.Reserve(now, ttl)
			require.NoError(t, err)
		}

		res, err := ledger.Reserve(now, ttl)

		assert.Nil(t, res)
		assert.ErrorIs(t, err, shared.ErrQuotaExceeded)
		assert.Equal(t, 0, ledger.Remaining())
	})

	t.Run("rolls the period before checking", func(t *testing.T) {
		ledger := NewLedger(uuid.New(), identity.TierStarter, now)
		ledger.UsedPosts = ledger.Quota

		later := now.Add(CycleLength + time.Hour)
		res, err := ledger.Reserve(later, ttl)

		require.NoError(t, err)
		assert.NotNil(t, res)
		assert.Equal(t, 1, ledger.UsedPosts)
	})
}

func TestLedger_Roll(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("no-op within the period", func(t *testing.T) {
		ledger := NewLedger(uuid.New(), identity.TierGrowth, start)
		ledger.UsedPosts = 10

		rolled := ledger.Roll(start.Add(29 * 24 * time.Hour))

		assert.False(t, rolled)
		assert.Equal(t, 10, ledger.UsedPosts)
		assert.Equal(t, start, ledger.PeriodStart)
	})

	t.Run("resets usage after one cycle", func(t *testing.T) {
		ledger := NewLedger(uuid.New(), identity.TierGrowth, start)
		ledger.UsedPosts = 52

		rolled := ledger.Roll(start.Add(CycleLength))

		assert.True(t, rolled)
		assert.Equal(t, 0, ledger.UsedPosts)
		assert.Equal(t, start.Add(CycleLength), ledger.PeriodStart)
	})

	t.Run("keeps the anchor across skipped cycles", func(t *testing.T) {
		ledger := NewLedger(uuid.New(), identity.TierGrowth, start)

		ledger.Roll(start.Add(2*CycleLength + 3*24*time.Hour))

		assert.Equal(t, start.Add(2*CycleLength), ledger.PeriodStart)
	})
}

func TestLedger_ReleaseOne(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("returns the slot", func(t *testing.T) {
		ledger := NewLedger(uuid.New(), identity.TierStarter, now)
		_, err := ledger.Reserve(now, 5*time.Minute)
		require.NoError(t, err)

		ledger.ReleaseOne(now)

		assert.Equal(t, 0, ledger.UsedPosts)
		assert.Equal(t, 12, ledger.Remaining())
	})

	t.Run("never goes negative after a roll", func(t *testing.T) {
		ledger := NewLedger(uuid.New(), identity.TierStarter, now)
		_, err := ledger.Reserve(now, 5*time.Minute)
		require.NoError(t, err)

		ledger.ReleaseOne(now.Add(CycleLength + time.Hour))

		assert.Equal(t, 0, ledger.UsedPosts)
	})
}

func TestLedger_SyncTier(t *testing.T) {
	now := time.Now()
	ledger := NewLedger(uuid.New(), identity.TierStarter, now)
	ledger.UsedPosts = 12

	ledger.SyncTier(identity.TierProfessional)

	assert.Equal(t, identity.TierProfessional, ledger.Tier)
	assert.Equal(t, 150, ledger.Quota)
	assert.Equal(t, 12, ledger.UsedPosts)
	assert.Equal(t, 138, ledger.Remaining())
}

func TestReservation_Lifecycle(t *testing.T) {
	now := time.Now()

	t.Run("commit is one-way", func(t *testing.T) {
		res := NewReservation(uuid.New(), now.Add(5*time.Minute))

		require.NoError(t, res.Commit())
		assert.Equal(t, ReservationCommitted, res.State)

		assert.Error(t, res.Release())
		assert.Error(t, res.Commit())
	})

	t.Run("release is one-way", func(t *testing.T) {
		res := NewReservation(uuid.New(), now.Add(5*time.Minute))

		require.NoError(t, res.Release())
		assert.Equal(t, ReservationReleased, res.State)

		assert.Error(t, res.Commit())
	})

	t.Run("only pending reservations expire", func(t *testing.T) {
		res := NewReservation(uuid.New(), now.Add(-time.Minute))
		assert.True(t, res.IsExpired(now))

		require.NoError(t, res.Commit())
		assert.False(t, res.IsExpired(now))
	})

	t.Run("extend only moves expiry forward", func(t *testing.T) {
		res := NewReservation(uuid.New(), now.Add(5*time.Minute))

		res.Extend(now.Add(time.Minute))
		assert.Equal(t, now.Add(5*time.Minute), res.ExpiresAt)

		res.Extend(now.Add(10 * time.Minute))
		assert.Equal(t, now.Add(10*time.Minute), res.ExpiresAt)
	})
}
