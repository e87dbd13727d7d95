package publishing

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/postpilot/backend/internal/domain/connection"
	"github.com/postpilot/backend/internal/domain/identity"
	"github.com/postpilot/backend/internal/domain/post"
	"github.com/postpilot/backend/internal/domain/queue"
	"github.com/postpilot/backend/internal/domain/quota"
	"github.com/postpilot/backend/internal/domain/shared"
	"github.com/postpilot/backend/internal/domain/social"
)

// DispatcherConfig holds configuration for the lane dispatchers
type DispatcherConfig struct {
	// PollInterval is how often each lane looks for due entries
	PollInterval time.Duration
	// MaxInFlight caps concurrent publishes per platform lane
	MaxInFlight int
	// MinInterval is the minimum spacing between publish starts on one
	// lane, so a burst of due entries does not hammer the platform
	MinInterval time.Duration
	// StuckCutoff is how long a processing entry may sit before startup
	// recovery returns it to the queue
	StuckCutoff time.Duration
	// ReservationTTL covers re-reservations made for retry attempts
	ReservationTTL time.Duration
	// BreakerFailureThreshold is the consecutive-failure count that opens
	// a lane's circuit breaker
	BreakerFailureThreshold uint32
	// BreakerOpenTimeout is how long an open breaker waits before probing
	BreakerOpenTimeout time.Duration
}

// DefaultDispatcherConfig returns default dispatcher configuration
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		PollInterval:            time.Second,
		MaxInFlight:             3,
		MinInterval:             2 * time.Second,
		StuckCutoff:             10 * time.Minute,
		ReservationTTL:          5 * time.Minute,
		BreakerFailureThreshold: 5,
		BreakerOpenTimeout:      30 * time.Second,
	}
}

// lane is the per-platform dispatch unit: its own poll loop, throttle,
// in-flight cap and circuit breaker. Lanes never share state, so a platform
// outage or rate limit cannot slow the other four down.
type lane struct {
	platform social.Platform
	limiter  *rate.Limiter
	slots    chan struct{}
	breaker  *gobreaker.CircuitBreaker
}

// Dispatcher drains the queue: one lane per platform claims due entries in
// FIFO order and publishes them through the platform adapters. Failures are
// classified and either rescheduled through the retry policy or settled
// terminally; every settled entry lands in the posts audit table.
type Dispatcher struct {
	entries   queue.EntryRepository
	ledgers   quota.LedgerRepository
	users     identity.UserRepository
	tokens    connection.TokenSource
	registry  social.PublisherRegistry
	recorder  post.RecordRepository
	scheduler *RetryScheduler
	metrics   Metrics
	config    DispatcherConfig
	logger    *zap.Logger

	lanes  []*lane
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDispatcher creates a new Dispatcher
func NewDispatcher(
	entries queue.EntryRepository,
	ledgers quota.LedgerRepository,
	users identity.UserRepository,
	tokens connection.TokenSource,
	registry social.PublisherRegistry,
	recorder post.RecordRepository,
	scheduler *RetryScheduler,
	metrics Metrics,
	config DispatcherConfig,
	logger *zap.Logger,
) *Dispatcher {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	d := &Dispatcher{
		entries:   entries,
		ledgers:   ledgers,
		users:     users,
		tokens:    tokens,
		registry:  registry,
		recorder:  recorder,
		scheduler: scheduler,
		metrics:   metrics,
		config:    config,
		logger:    logger,
	}
	for _, platform := range social.AllPlatforms {
		d.lanes = append(d.lanes, d.newLane(platform))
	}
	return d
}

func (d *Dispatcher) newLane(platform social.Platform) *lane {
	threshold := d.config.BreakerFailureThreshold
	return &lane{
		platform: platform,
		limiter:  rate.NewLimiter(rate.Every(d.config.MinInterval), 1),
		slots:    make(chan struct{}, d.config.MaxInFlight),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "publish-" + platform.String(),
			Timeout: d.config.BreakerOpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				d.logger.Warn("lane circuit breaker state change",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		}),
	}
}

// Start recovers entries orphaned by a previous crash and launches one poll
// loop per platform lane.
func (d *Dispatcher) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	requeued, err := d.entries.RequeueStuck(ctx, time.Now().Add(-d.config.StuckCutoff))
	if err != nil {
		d.logger.Error("failed to requeue stuck entries", zap.Error(err))
	} else if requeued > 0 {
		d.logger.Info("requeued stuck entries", zap.Int("count", requeued))
	}

	for _, l := range d.lanes {
		d.wg.Add(1)
		go d.laneLoop(ctx, l)
	}

	d.logger.Info("queue dispatcher started",
		zap.Int("lanes", len(d.lanes)),
		zap.Duration("poll_interval", d.config.PollInterval),
		zap.Int("max_in_flight", d.config.MaxInFlight),
		zap.Duration("min_interval", d.config.MinInterval),
	)
	return nil
}

// Stop gracefully stops the dispatcher, waiting for in-flight publishes
func (d *Dispatcher) Stop(ctx context.Context) error {
	if d.cancel != nil {
		d.cancel()
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("queue dispatcher stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// laneLoop polls one platform lane for due entries
func (d *Dispatcher) laneLoop(ctx context.Context, l *lane) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.claimBatch(ctx, l)
		}
	}
}

// claimBatch claims as many due entries as the lane has free slots and
// hands each to a publish goroutine.
func (d *Dispatcher) claimBatch(ctx context.Context, l *lane) {
	free := cap(l.slots) - len(l.slots)
	if free == 0 {
		return
	}

	claimed, err := d.entries.ClaimDue(ctx, l.platform, free, time.Now())
	if err != nil {
		d.logger.Error("failed to claim due entries",
			zap.String("platform", l.platform.String()),
			zap.Error(err),
		)
		return
	}

	for _, entry := range claimed {
		select {
		case l.slots <- struct{}{}:
		case <-ctx.Done():
			return
		}
		d.wg.Add(1)
		go func(entry *queue.Entry) {
			defer d.wg.Done()
			defer func() { <-l.slots }()

			if err := l.limiter.Wait(ctx); err != nil {
				// Shutdown mid-wait; the entry stays processing and
				// startup recovery requeues it.
				return
			}
			d.process(ctx, l, entry)
		}(entry)
	}
}

// process runs one publish attempt end to end
func (d *Dispatcher) process(ctx context.Context, l *lane, entry *queue.Entry) {
	reservationID, ok := d.ensureReservation(ctx, entry)
	if !ok {
		return
	}

	token, err := d.tokens.AccessToken(ctx, entry.UserID, entry.Platform)
	if err != nil {
		d.releaseReservation(ctx, reservationID)
		if errors.Is(err, shared.ErrConnectionInactive) {
			d.failEntry(ctx, entry, "platform connection is inactive", social.ErrorAuthExpired, true)
			return
		}
		d.retryOrDead(ctx, entry, &social.PublishError{
			Platform: entry.Platform,
			Kind:     social.ErrorTransient,
			Message:  "token store unavailable: " + err.Error(),
			Err:      err,
		})
		return
	}

	adapter, err := d.registry.Get(entry.Platform)
	if err != nil {
		d.releaseReservation(ctx, reservationID)
		d.failEntry(ctx, entry, "no adapter registered for platform", social.ErrorFatal, false)
		return
	}

	// Last look before the network call; a cancel landing here wins.
	if d.cancelledMeanwhile(ctx, entry.ID) {
		d.releaseReservation(ctx, reservationID)
		return
	}

	result, pubErr := d.publish(ctx, l, adapter, entry, token)
	if pubErr == nil {
		d.settlePublished(ctx, entry, reservationID, result)
		return
	}

	// One forced refresh on a rejected token before giving up on the
	// connection.
	if pubErr.Kind == social.ErrorAuthExpired {
		if fresh, refreshErr := d.tokens.Refresh(ctx, entry.UserID, entry.Platform); refreshErr == nil {
			result, pubErr = d.publish(ctx, l, adapter, entry, fresh)
			if pubErr == nil {
				d.settlePublished(ctx, entry, reservationID, result)
				return
			}
		}
		if pubErr.Kind == social.ErrorAuthExpired {
			d.releaseReservation(ctx, reservationID)
			if invErr := d.tokens.Invalidate(ctx, entry.UserID, entry.Platform); invErr != nil {
				d.logger.Error("failed to invalidate connection",
					zap.String("user_id", entry.UserID.String()),
					zap.String("platform", entry.Platform.String()),
					zap.Error(invErr),
				)
			}
			d.failEntry(ctx, entry, pubErr.Message, social.ErrorAuthExpired, true)
			return
		}
	}

	d.releaseReservation(ctx, reservationID)
	switch pubErr.Kind {
	case social.ErrorValidation, social.ErrorFatal:
		d.failEntry(ctx, entry, pubErr.Message, pubErr.Kind, false)
	default:
		d.retryOrDead(ctx, entry, pubErr)
	}
}

// publish runs one adapter call through the lane's circuit breaker
func (d *Dispatcher) publish(ctx context.Context, l *lane, adapter social.Publisher, entry *queue.Entry, token *connection.TokenInfo) (*social.PublishResult, *social.PublishError) {
	start := time.Now()
	res, err := l.breaker.Execute(func() (interface{}, error) {
		return adapter.Publish(ctx, &social.PublishRequest{
			AccessToken:       token.AccessToken,
			ExternalAccountID: token.ExternalAccountID,
			Content:           entry.Content,
			IdempotencyKey:    entry.ID.String(),
		})
	})
	d.metrics.ObservePublish(ctx, entry.Platform.String(), time.Since(start), err == nil)

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &social.PublishError{
				Platform: entry.Platform,
				Kind:     social.ErrorTransient,
				Message:  "lane circuit breaker open",
				Err:      err,
			}
		}
		return nil, social.ClassifyPublishError(entry.Platform, err)
	}
	return res.(*social.PublishResult), nil
}

// cancelledMeanwhile reports whether the owner cancelled the entry after it
// was claimed. Lookup failures count as not cancelled; the attempt proceeds
// and the next state save surfaces any real problem.
func (d *Dispatcher) cancelledMeanwhile(ctx context.Context, entryID uuid.UUID) bool {
	current, err := d.entries.FindByID(ctx, entryID)
	if err != nil {
		return false
	}
	return current.Status == queue.StatusCancelled
}

// ensureReservation makes sure the attempt holds a live quota slot. First
// attempts carry the reservation made at enqueue; it is extended to cover
// this attempt, and re-reserved when the sweeper reclaimed it while the
// entry waited in a backlog. Retries reserve here. An exhausted quota
// defers the entry to the next billing period instead of burning an
// attempt.
func (d *Dispatcher) ensureReservation(ctx context.Context, entry *queue.Entry) (uuid.UUID, bool) {
	if entry.ReservationID != nil {
		id := *entry.ReservationID
		if err := d.ledgers.ExtendReservation(ctx, id, time.Now().Add(d.config.ReservationTTL)); err == nil {
			return id, true
		}
		d.logger.Info("enqueue-time reservation lapsed, reserving afresh",
			zap.String("entry_id", entry.ID.String()),
			zap.String("reservation_id", id.String()),
		)
		entry.ReservationID = nil
	}

	user, err := d.users.FindByID(ctx, entry.UserID)
	if err != nil {
		d.failEntry(ctx, entry, "owner account not found", social.ErrorFatal, false)
		return uuid.Nil, false
	}

	reservation, err := d.ledgers.Reserve(ctx, user.ID, user.Tier, user.BillingCycleStart, d.config.ReservationTTL)
	if err == nil {
		entry.ReservationID = &reservation.ID
		return reservation.ID, true
	}

	if errors.Is(err, shared.ErrQuotaExceeded) {
		until := d.nextPeriodStart(ctx, user)
		if deferErr := entry.Defer(until, "quota exhausted, waiting for next billing period"); deferErr != nil {
			d.logger.Error("failed to defer entry", zap.String("entry_id", entry.ID.String()), zap.Error(deferErr))
			return uuid.Nil, false
		}
		d.saveEntry(ctx, entry)
		d.logger.Info("entry deferred to next billing period",
			zap.String("entry_id", entry.ID.String()),
			zap.Time("next_attempt_at", until),
		)
		return uuid.Nil, false
	}

	d.logger.Error("re-reservation failed",
		zap.String("entry_id", entry.ID.String()),
		zap.Error(err),
	)
	if deferErr := entry.Defer(time.Now().Add(time.Minute), "quota ledger unavailable"); deferErr == nil {
		d.saveEntry(ctx, entry)
	}
	return uuid.Nil, false
}

// commitFresh reserves and immediately commits one slot for a publish whose
// original reservation was reclaimed during the platform call
func (d *Dispatcher) commitFresh(ctx context.Context, entry *queue.Entry) error {
	user, err := d.users.FindByID(ctx, entry.UserID)
	if err != nil {
		return err
	}
	res, err := d.ledgers.Reserve(ctx, user.ID, user.Tier, user.BillingCycleStart, d.config.ReservationTTL)
	if err != nil {
		return err
	}
	return d.ledgers.Commit(ctx, res.ID)
}

// nextPeriodStart returns when the user's quota replenishes
func (d *Dispatcher) nextPeriodStart(ctx context.Context, user *identity.User) time.Time {
	now := time.Now()
	ledger, err := d.ledgers.Status(ctx, user.ID, user.Tier, user.BillingCycleStart, now)
	if err != nil {
		return now.Add(time.Hour)
	}
	return ledger.PeriodEnd()
}

// settlePublished commits the quota slot and settles the entry. A publish
// is only recorded against a committed reservation: when the held one
// lapsed mid-attempt, a fresh slot is reserved and committed in its place
// so the published post always consumes exactly one unit of quota.
func (d *Dispatcher) settlePublished(ctx context.Context, entry *queue.Entry, reservationID uuid.UUID, result *social.PublishResult) {
	if err := d.ledgers.Commit(ctx, reservationID); err != nil {
		d.logger.Warn("held reservation lapsed before commit, charging a fresh slot",
			zap.String("reservation_id", reservationID.String()),
			zap.Error(err),
		)
		if err := d.commitFresh(ctx, entry); err != nil {
			d.logger.Error("published post could not be charged against quota",
				zap.String("entry_id", entry.ID.String()),
				zap.String("user_id", entry.UserID.String()),
				zap.Error(err),
			)
		}
	}
	// A cancel that raced the platform call keeps the entry cancelled, but
	// the platform-side post exists and must not vanish from the record.
	if d.cancelledMeanwhile(ctx, entry.ID) {
		d.logger.Warn("entry cancelled during publish, platform post retained",
			zap.String("entry_id", entry.ID.String()),
			zap.String("platform", entry.Platform.String()),
			zap.String("platform_post_id", result.PlatformPostID),
		)
		return
	}
	if err := entry.MarkPublished(result.PlatformPostID); err != nil {
		d.logger.Error("failed to mark entry published",
			zap.String("entry_id", entry.ID.String()),
			zap.Error(err),
		)
		return
	}
	d.saveEntry(ctx, entry)
	d.recordTerminal(ctx, entry)
	d.logger.Info("entry published",
		zap.String("entry_id", entry.ID.String()),
		zap.String("platform", entry.Platform.String()),
		zap.String("platform_post_id", result.PlatformPostID),
		zap.Int("attempt", entry.AttemptCount+1),
	)
}

// retryOrDead reschedules a retryable failure or dead-letters the entry
// once the attempt budget is spent.
func (d *Dispatcher) retryOrDead(ctx context.Context, entry *queue.Entry, pubErr *social.PublishError) {
	attempts := entry.AttemptCount + 1
	if d.scheduler.Exhausted(attempts) {
		if err := entry.MarkDead(pubErr.Message, string(pubErr.Kind)); err != nil {
			d.logger.Error("failed to dead-letter entry", zap.String("entry_id", entry.ID.String()), zap.Error(err))
			return
		}
		d.saveEntry(ctx, entry)
		d.recordTerminal(ctx, entry)
		d.logger.Warn("entry dead-lettered",
			zap.String("entry_id", entry.ID.String()),
			zap.String("platform", entry.Platform.String()),
			zap.Int("attempts", attempts),
			zap.String("last_error", pubErr.Message),
		)
		return
	}

	nextAt := d.scheduler.NextAttemptAt(time.Now(), attempts, pubErr.RetryAfter)
	if err := entry.ScheduleRetry(nextAt, pubErr.Message, string(pubErr.Kind)); err != nil {
		d.logger.Error("failed to schedule retry", zap.String("entry_id", entry.ID.String()), zap.Error(err))
		return
	}
	d.saveEntry(ctx, entry)
	d.metrics.ObserveRetry(ctx, entry.Platform.String())
	d.logger.Info("entry scheduled for retry",
		zap.String("entry_id", entry.ID.String()),
		zap.String("platform", entry.Platform.String()),
		zap.String("error_kind", string(pubErr.Kind)),
		zap.Int("attempt", attempts),
		zap.Time("next_attempt_at", nextAt),
	)
}

// failEntry settles the entry terminally on a non-retryable failure
func (d *Dispatcher) failEntry(ctx context.Context, entry *queue.Entry, cause string, kind social.ErrorKind, requiresReconnect bool) {
	if err := entry.MarkFailed(cause, string(kind), requiresReconnect); err != nil {
		d.logger.Error("failed to fail entry", zap.String("entry_id", entry.ID.String()), zap.Error(err))
		return
	}
	d.saveEntry(ctx, entry)
	d.recordTerminal(ctx, entry)
	d.logger.Warn("entry failed",
		zap.String("entry_id", entry.ID.String()),
		zap.String("platform", entry.Platform.String()),
		zap.String("error_kind", string(kind)),
		zap.Bool("requires_reconnect", requiresReconnect),
		zap.String("cause", cause),
	)
}

func (d *Dispatcher) releaseReservation(ctx context.Context, reservationID uuid.UUID) {
	if reservationID == uuid.Nil {
		return
	}
	if err := d.ledgers.Release(ctx, reservationID); err != nil {
		d.logger.Error("failed to release reservation",
			zap.String("reservation_id", reservationID.String()),
			zap.Error(err),
		)
	}
}

func (d *Dispatcher) saveEntry(ctx context.Context, entry *queue.Entry) {
	if err := d.entries.Save(ctx, entry); err != nil {
		d.logger.Error("failed to save entry",
			zap.String("entry_id", entry.ID.String()),
			zap.Error(err),
		)
	}
}

// recordTerminal writes the audit record for a settled entry
func (d *Dispatcher) recordTerminal(ctx context.Context, entry *queue.Entry) {
	d.metrics.ObserveSettled(ctx, entry.Platform.String(), string(entry.Status))
	if err := d.recorder.Save(ctx, post.NewRecord(entry)); err != nil {
		d.logger.Error("failed to write publish record",
			zap.String("entry_id", entry.ID.String()),
			zap.Error(err),
		)
	}
}
