package publishing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/postpilot/backend/internal/domain/identity"
	"github.com/postpilot/backend/internal/domain/quota"
)

func TestReservationSweeper_Sweep(t *testing.T) {
	ctx := context.Background()
	user := testUser(identity.TierStarter)
	ledgers := newMemoryLedger(quota.NewLedger(user.ID, user.Tier, user.BillingCycleStart))

	// One reservation already past its hold, one still live.
	expired, err := ledgers.Reserve(ctx, user.ID, user.Tier, user.BillingCycleStart, -time.Minute)
	require.NoError(t, err)
	live, err := ledgers.Reserve(ctx, user.ID, user.Tier, user.BillingCycleStart, 5*time.Minute)
	require.NoError(t, err)

	sweeper := NewReservationSweeper(ledgers, DefaultSweeperConfig(), zap.NewNop())
	sweeper.Sweep(ctx)

	expiredRes, _ := ledgers.FindReservation(ctx, expired.ID)
	assert.Equal(t, quota.ReservationReleased, expiredRes.State)
	liveRes, _ := ledgers.FindReservation(ctx, live.ID)
	assert.Equal(t, quota.ReservationPending, liveRes.State)

	ledger, _ := ledgers.FindByUserID(ctx, user.ID)
	assert.Equal(t, 1, ledger.UsedPosts)
}
