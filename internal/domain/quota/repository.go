package quota

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/postpilot/backend/internal/domain/identity"
)

// LedgerRepository persists quota ledgers and reservations. Reserve, Commit
// and Release are atomic: implementations lock the ledger row for the
// duration of the mutation so concurrent callers serialize on it.
type LedgerRepository interface {
	// Reserve consumes one quota slot for the user and returns the pending
	// reservation. The ledger is created on first use from the given tier
	// and billing anchor. Returns shared.ErrQuotaExceeded when the period's
	// quota is spent.
	Reserve(ctx context.Context, userID uuid.UUID, tier identity.Tier, cycleStart time.Time, ttl time.Duration) (*Reservation, error)

	// Commit finalizes a pending reservation after a successful publish and
	// stamps the ledger's last-posted time. Committing a non-pending
	// reservation is an error.
	Commit(ctx context.Context, reservationID uuid.UUID) error

	// Release returns a pending reservation's slot to the ledger. Releasing
	// a non-pending reservation is an error.
	Release(ctx context.Context, reservationID uuid.UUID) error

	// ReleaseExpired releases every pending reservation whose expiry has
	// passed and returns how many were reclaimed. Called by the sweeper.
	ReleaseExpired(ctx context.Context, now time.Time) (int, error)

	// FindByUserID loads the user's ledger. The returned ledger is not
	// rolled; callers wanting current-period numbers use Status.
	FindByUserID(ctx context.Context, userID uuid.UUID) (*Ledger, error)

	// Status loads the user's ledger rolled to the current period,
	// creating it from the tier and billing anchor when absent. Read-only
	// callers see up-to-date remaining counts without mutating state.
	Status(ctx context.Context, userID uuid.UUID, tier identity.Tier, cycleStart time.Time, now time.Time) (*Ledger, error)

	// ExtendReservation pushes a pending reservation's expiry out to at
	// least the given instant, keeping the sweeper away while a publish
	// attempt is in flight. Extending a reservation that is no longer
	// pending is an error; callers reserve afresh in that case.
	ExtendReservation(ctx context.Context, reservationID uuid.UUID, until time.Time) error

	// FindReservation loads a reservation by id
	FindReservation(ctx context.Context, id uuid.UUID) (*Reservation, error)
}
