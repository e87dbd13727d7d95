package quota

import (
	"time"

	"github.com/google/uuid"
	"github.com/postpilot/backend/internal/domain/identity"
	"github.com/postpilot/backend/internal/domain/shared"
)

// CycleLength is the rolling billing period over which post quotas apply.
const CycleLength = 30 * 24 * time.Hour

// Ledger tracks quota consumption for one user over the current billing
// period. usedPosts counts committed publishes plus pending reservations, so
// remaining quota is always quota - usedPosts regardless of in-flight work.
//
// There is exactly one ledger row per user; all mutations happen inside a
// row-locking transaction in the repository implementation.
type Ledger struct {
	UserID       uuid.UUID `gorm:"primaryKey"`
	Tier         identity.Tier
	PeriodStart  time.Time
	Quota        int
	UsedPosts    int
	LastPostedAt *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TableName returns the database table name for GORM
func (Ledger) TableName() string {
	return "quota_ledgers"
}

// NewLedger opens a fresh ledger for a user at the given billing anchor
func NewLedger(userID uuid.UUID, tier identity.Tier, periodStart time.Time) *Ledger {
	now := time.Now()
	return &Ledger{
		UserID:      userID,
		Tier:        tier,
		PeriodStart: periodStart,
		Quota:       tier.PostQuota(),
		UsedPosts:   0,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// PeriodEnd returns the instant the current billing period closes
func (l *Ledger) PeriodEnd() time.Time {
	return l.PeriodStart.Add(CycleLength)
}

// Remaining returns how many posts the user may still reserve this period
func (l *Ledger) Remaining() int {
	if r := l.Quota - l.UsedPosts; r > 0 {
		return r
	}
	return 0
}

// Roll advances the billing period when it has elapsed, resetting usage.
// The period start moves forward in whole cycle steps so the anchor day
// stays aligned with the original billing date. Returns true when a new
// period was opened.
func (l *Ledger) Roll(now time.Time) bool {
	if now.Before(l.PeriodEnd()) {
		return false
	}
	elapsed := now.Sub(l.PeriodStart)
	steps := elapsed / CycleLength
	l.PeriodStart = l.PeriodStart.Add(steps * CycleLength)
	l.UsedPosts = 0
	l.UpdatedAt = now
	return true
}

// SyncTier applies a tier change mid-period. Usage already consumed carries
// over; only the ceiling moves.
func (l *Ledger) SyncTier(tier identity.Tier) {
	if tier == l.Tier {
		return
	}
	l.Tier = tier
	l.Quota = tier.PostQuota()
	l.UpdatedAt = time.Now()
}

// Reserve consumes one quota slot and returns a pending reservation. The
// period is rolled first so stale ledgers never block a new cycle.
func (l *Ledger) Reserve(now time.Time, ttl time.Duration) (*Reservation, error) {
	l.Roll(now)
	if l.UsedPosts >= l.Quota {
		return nil, shared.ErrQuotaExceeded
	}
	l.UsedPosts++
	l.UpdatedAt = now
	return NewReservation(l.UserID, now.Add(ttl)), nil
}

// CommitPost finalizes a reservation's slot as a published post
func (l *Ledger) CommitPost(now time.Time) {
	l.LastPostedAt = &now
	l.UpdatedAt = now
}

// ReleaseOne hands one reserved slot back. Slots reserved in a previous
// period are gone already; releasing after a roll must not go negative.
func (l *Ledger) ReleaseOne(now time.Time) {
	l.Roll(now)
	if l.UsedPosts > 0 {
		l.UsedPosts--
	}
	l.UpdatedAt = now
}
