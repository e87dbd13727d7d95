package publishing

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/postpilot/backend/internal/domain/connection"
	"github.com/postpilot/backend/internal/domain/identity"
	"github.com/postpilot/backend/internal/domain/queue"
	"github.com/postpilot/backend/internal/domain/quota"
	"github.com/postpilot/backend/internal/domain/shared"
	"github.com/postpilot/backend/internal/domain/social"
)

type dispatcherFixture struct {
	users      *mockUserRepository
	entries    *mockEntryRepository
	ledgers    *memoryLedger
	tokens     *mockTokenSource
	publisher  *mockPublisher
	recorder   *mockRecordRepository
	dispatcher *Dispatcher
	user       *identity.User
}

func newDispatcherFixture(t *testing.T, remaining int) *dispatcherFixture {
	t.Helper()
	user := testUser(identity.TierStarter)
	ledger := quota.NewLedger(user.ID, user.Tier, user.BillingCycleStart)
	ledger.UsedPosts = ledger.Quota - remaining

	f := &dispatcherFixture{
		users:     new(mockUserRepository),
		entries:   new(mockEntryRepository),
		ledgers:   newMemoryLedger(ledger),
		tokens:    new(mockTokenSource),
		publisher: &mockPublisher{platform: social.PlatformX},
		recorder:  new(mockRecordRepository),
		user:      user,
	}
	f.users.On("FindByID", mock.Anything, user.ID).Return(user, nil)
	f.entries.On("Save", mock.Anything, mock.Anything).Return(nil)
	f.recorder.On("Save", mock.Anything, mock.Anything).Return(nil)

	registry := &mockRegistry{publishers: map[social.Platform]social.Publisher{
		social.PlatformX: f.publisher,
	}}
	f.dispatcher = NewDispatcher(
		f.entries, f.ledgers, f.users, f.tokens, registry, f.recorder,
		NewRetryScheduler(RetryConfig{BaseDelay: time.Second, MaxDelay: time.Minute, MaxAttempts: 5}),
		NopMetrics{},
		DefaultDispatcherConfig(),
		zap.NewNop(),
	)
	return f
}

// claimedEntry builds an entry the way ClaimDue hands it to a lane: holding
// a live reservation and already transitioned to processing.
func (f *dispatcherFixture) claimedEntry(t *testing.T) *queue.Entry {
	t.Helper()
	res, err := f.ledgers.Reserve(context.Background(), f.user.ID, f.user.Tier, f.user.BillingCycleStart, 5*time.Minute)
	require.NoError(t, err)
	entry := queue.NewEntry(uuid.New(), f.user.ID, social.PlatformX, social.Content{Text: "go time"}, res.ID)
	require.NoError(t, entry.MarkProcessing())
	// The worker re-reads the entry around the platform call to observe
	// cancellations.
	f.entries.On("FindByID", mock.Anything, entry.ID).Return(entry, nil)
	return entry
}

func (f *dispatcherFixture) lane() *lane {
	for _, l := range f.dispatcher.lanes {
		if l.platform == social.PlatformX {
			return l
		}
	}
	return nil
}

func validToken() *connection.TokenInfo {
	return &connection.TokenInfo{
		AccessToken:       "tok-plain",
		ExternalAccountID: "acct-1",
		ExpiresAt:         time.Now().Add(time.Hour),
	}
}

func TestDispatcher_Process(t *testing.T) {
	ctx := context.Background()

	t.Run("publishes and commits the reservation", func(t *testing.T) {
		f := newDispatcherFixture(t, 3)
		entry := f.claimedEntry(t)
		reservationID := *entry.ReservationID
		f.tokens.On("AccessToken", mock.Anything, f.user.ID, social.PlatformX).Return(validToken(), nil)
		f.publisher.On("Publish", mock.Anything, mock.Anything).
			Return(&social.PublishResult{PlatformPostID: "x-42", PostedAt: time.Now()}, nil)

		f.dispatcher.process(ctx, f.lane(), entry)

		assert.Equal(t, queue.StatusPublished, entry.Status)
		assert.Equal(t, "x-42", entry.PlatformPostID)
		res, _ := f.ledgers.FindReservation(ctx, reservationID)
		assert.Equal(t, quota.ReservationCommitted, res.State)
		f.recorder.AssertCalled(t, "Save", mock.Anything, mock.Anything)
	})

	t.Run("rate limit releases the slot and schedules a retry", func(t *testing.T) {
		f := newDispatcherFixture(t, 3)
		entry := f.claimedEntry(t)
		reservationID := *entry.ReservationID
		f.tokens.On("AccessToken", mock.Anything, f.user.ID, social.PlatformX).Return(validToken(), nil)
		f.publisher.On("Publish", mock.Anything, mock.Anything).
			Return(nil, &social.PublishError{
				Platform:   social.PlatformX,
				Kind:       social.ErrorRateLimited,
				Message:    "throttled",
				StatusCode: 429,
				RetryAfter: 3 * time.Minute,
			})

		before := time.Now()
		f.dispatcher.process(ctx, f.lane(), entry)

		assert.Equal(t, queue.StatusQueued, entry.Status)
		assert.Equal(t, 1, entry.AttemptCount)
		assert.Nil(t, entry.ReservationID)
		assert.False(t, entry.NextAttemptAt.Before(before.Add(3*time.Minute)))
		res, _ := f.ledgers.FindReservation(ctx, reservationID)
		assert.Equal(t, quota.ReservationReleased, res.State)
	})

	t.Run("auth expiry retries once after a forced refresh", func(t *testing.T) {
		f := newDispatcherFixture(t, 3)
		entry := f.claimedEntry(t)
		f.tokens.On("AccessToken", mock.Anything, f.user.ID, social.PlatformX).Return(validToken(), nil)
		f.tokens.On("Refresh", mock.Anything, f.user.ID, social.PlatformX).Return(validToken(), nil)
		f.publisher.On("Publish", mock.Anything, mock.Anything).
			Return(nil, social.NewPublishError(social.PlatformX, social.ErrorAuthExpired, "token rejected")).Once()
		f.publisher.On("Publish", mock.Anything, mock.Anything).
			Return(&social.PublishResult{PlatformPostID: "x-7", PostedAt: time.Now()}, nil).Once()

		f.dispatcher.process(ctx, f.lane(), entry)

		assert.Equal(t, queue.StatusPublished, entry.Status)
		f.tokens.AssertCalled(t, "Refresh", mock.Anything, f.user.ID, social.PlatformX)
	})

	t.Run("auth expiry after refresh fails the entry and invalidates the connection", func(t *testing.T) {
		f := newDispatcherFixture(t, 3)
		entry := f.claimedEntry(t)
		reservationID := *entry.ReservationID
		f.tokens.On("AccessToken", mock.Anything, f.user.ID, social.PlatformX).Return(validToken(), nil)
		f.tokens.On("Refresh", mock.Anything, f.user.ID, social.PlatformX).Return(validToken(), nil)
		f.tokens.On("Invalidate", mock.Anything, f.user.ID, social.PlatformX).Return(nil)
		f.publisher.On("Publish", mock.Anything, mock.Anything).
			Return(nil, social.NewPublishError(social.PlatformX, social.ErrorAuthExpired, "token rejected"))

		f.dispatcher.process(ctx, f.lane(), entry)

		assert.Equal(t, queue.StatusFailed, entry.Status)
		assert.True(t, entry.RequiresReconnect)
		f.tokens.AssertCalled(t, "Invalidate", mock.Anything, f.user.ID, social.PlatformX)
		res, _ := f.ledgers.FindReservation(ctx, reservationID)
		assert.Equal(t, quota.ReservationReleased, res.State)
	})

	t.Run("platform validation failure settles terminally", func(t *testing.T) {
		f := newDispatcherFixture(t, 3)
		entry := f.claimedEntry(t)
		f.tokens.On("AccessToken", mock.Anything, f.user.ID, social.PlatformX).Return(validToken(), nil)
		f.publisher.On("Publish", mock.Anything, mock.Anything).
			Return(nil, social.NewPublishError(social.PlatformX, social.ErrorValidation, "duplicate content"))

		f.dispatcher.process(ctx, f.lane(), entry)

		assert.Equal(t, queue.StatusFailed, entry.Status)
		assert.False(t, entry.RequiresReconnect)
		assert.Equal(t, string(social.ErrorValidation), entry.LastErrorKind)
	})

	t.Run("exhausted retry budget dead-letters the entry", func(t *testing.T) {
		f := newDispatcherFixture(t, 3)
		entry := f.claimedEntry(t)
		entry.AttemptCount = 4
		f.tokens.On("AccessToken", mock.Anything, f.user.ID, social.PlatformX).Return(validToken(), nil)
		f.publisher.On("Publish", mock.Anything, mock.Anything).
			Return(nil, social.NewPublishError(social.PlatformX, social.ErrorTransient, "upstream 503"))

		f.dispatcher.process(ctx, f.lane(), entry)

		assert.Equal(t, queue.StatusDead, entry.Status)
		f.recorder.AssertCalled(t, "Save", mock.Anything, mock.Anything)
	})

	t.Run("retry attempt re-reserves at dispatch", func(t *testing.T) {
		f := newDispatcherFixture(t, 3)
		entry := queue.NewEntry(uuid.New(), f.user.ID, social.PlatformX, social.Content{Text: "again"}, uuid.New())
		entry.ReservationID = nil
		entry.AttemptCount = 1
		require.NoError(t, entry.MarkProcessing())
		f.entries.On("FindByID", mock.Anything, entry.ID).Return(entry, nil)
		f.tokens.On("AccessToken", mock.Anything, f.user.ID, social.PlatformX).Return(validToken(), nil)
		f.publisher.On("Publish", mock.Anything, mock.Anything).
			Return(&social.PublishResult{PlatformPostID: "x-9", PostedAt: time.Now()}, nil)

		f.dispatcher.process(ctx, f.lane(), entry)

		assert.Equal(t, queue.StatusPublished, entry.Status)
		ledger, _ := f.ledgers.FindByUserID(ctx, f.user.ID)
		assert.Equal(t, ledger.Quota-2, ledger.UsedPosts)
	})

	t.Run("exhausted quota defers the retry to the next period", func(t *testing.T) {
		f := newDispatcherFixture(t, 0)
		entry := queue.NewEntry(uuid.New(), f.user.ID, social.PlatformX, social.Content{Text: "wait"}, uuid.New())
		entry.ReservationID = nil
		entry.AttemptCount = 2
		require.NoError(t, entry.MarkProcessing())

		f.dispatcher.process(ctx, f.lane(), entry)

		assert.Equal(t, queue.StatusQueued, entry.Status)
		assert.Equal(t, 2, entry.AttemptCount)
		assert.True(t, entry.NextAttemptAt.After(time.Now()))
		f.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
	})

	t.Run("sweeper-reclaimed reservation is re-reserved before publishing", func(t *testing.T) {
		f := newDispatcherFixture(t, 3)
		entry := f.claimedEntry(t)
		staleID := *entry.ReservationID
		// The entry sat in a backlog past the reservation TTL and the
		// sweeper took the slot back.
		require.NoError(t, f.ledgers.Release(ctx, staleID))
		f.tokens.On("AccessToken", mock.Anything, f.user.ID, social.PlatformX).Return(validToken(), nil)
		f.publisher.On("Publish", mock.Anything, mock.Anything).
			Return(&social.PublishResult{PlatformPostID: "x-11", PostedAt: time.Now()}, nil)

		f.dispatcher.process(ctx, f.lane(), entry)

		assert.Equal(t, queue.StatusPublished, entry.Status)
		ledger, _ := f.ledgers.FindByUserID(ctx, f.user.ID)
		assert.Equal(t, ledger.Quota-2, ledger.UsedPosts, "publish charged exactly one slot")
		assert.NotNil(t, ledger.LastPostedAt)
		stale, _ := f.ledgers.FindReservation(ctx, staleID)
		assert.Equal(t, quota.ReservationReleased, stale.State)
	})

	t.Run("commit racing the sweeper still charges the ledger", func(t *testing.T) {
		f := newDispatcherFixture(t, 3)
		entry := f.claimedEntry(t)
		staleID := *entry.ReservationID
		f.tokens.On("AccessToken", mock.Anything, f.user.ID, social.PlatformX).Return(validToken(), nil)
		f.publisher.On("Publish", mock.Anything, mock.Anything).
			Run(func(mock.Arguments) {
				require.NoError(t, f.ledgers.Release(context.Background(), staleID))
			}).
			Return(&social.PublishResult{PlatformPostID: "x-12", PostedAt: time.Now()}, nil)

		f.dispatcher.process(ctx, f.lane(), entry)

		assert.Equal(t, queue.StatusPublished, entry.Status)
		ledger, _ := f.ledgers.FindByUserID(ctx, f.user.ID)
		assert.Equal(t, ledger.Quota-2, ledger.UsedPosts, "fresh slot committed in place of the lapsed one")
		assert.NotNil(t, ledger.LastPostedAt)
	})

	t.Run("cancel observed before the platform call aborts the attempt", func(t *testing.T) {
		f := newDispatcherFixture(t, 3)
		entry := f.claimedEntry(t)
		reservationID := *entry.ReservationID
		local := *entry
		require.NoError(t, entry.Cancel())
		f.tokens.On("AccessToken", mock.Anything, f.user.ID, social.PlatformX).Return(validToken(), nil)

		f.dispatcher.process(ctx, f.lane(), &local)

		f.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
		res, _ := f.ledgers.FindReservation(ctx, reservationID)
		assert.Equal(t, quota.ReservationReleased, res.State)
	})

	t.Run("cancel racing the publish keeps the platform post on record", func(t *testing.T) {
		f := newDispatcherFixture(t, 3)
		entry := f.claimedEntry(t)
		reservationID := *entry.ReservationID
		local := *entry
		f.tokens.On("AccessToken", mock.Anything, f.user.ID, social.PlatformX).Return(validToken(), nil)
		f.publisher.On("Publish", mock.Anything, mock.Anything).
			Run(func(mock.Arguments) { require.NoError(t, entry.Cancel()) }).
			Return(&social.PublishResult{PlatformPostID: "x-99", PostedAt: time.Now()}, nil)

		f.dispatcher.process(ctx, f.lane(), &local)

		// The platform post consumed the slot, but the cancelled row is
		// left untouched.
		assert.NotEqual(t, queue.StatusPublished, local.Status)
		res, _ := f.ledgers.FindReservation(ctx, reservationID)
		assert.Equal(t, quota.ReservationCommitted, res.State)
		f.recorder.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})

	t.Run("inactive connection fails with a reconnect flag", func(t *testing.T) {
		f := newDispatcherFixture(t, 3)
		entry := f.claimedEntry(t)
		f.tokens.On("AccessToken", mock.Anything, f.user.ID, social.PlatformX).
			Return(nil, shared.ErrConnectionInactive)

		f.dispatcher.process(ctx, f.lane(), entry)

		assert.Equal(t, queue.StatusFailed, entry.Status)
		assert.True(t, entry.RequiresReconnect)
	})
}
