package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/postpilot/backend/internal/domain/identity"
	"github.com/postpilot/backend/internal/domain/quota"
	"github.com/postpilot/backend/internal/domain/shared"
)

// GormQuotaLedgerRepository implements quota.LedgerRepository using GORM.
// Every mutation locks the ledger row, so concurrent reservations for the
// same user serialize at the database and the remaining count never goes
// below zero.
type GormQuotaLedgerRepository struct {
	db *gorm.DB
}

// NewGormQuotaLedgerRepository creates a new GormQuotaLedgerRepository
func NewGormQuotaLedgerRepository(db *gorm.DB) *GormQuotaLedgerRepository {
	return &GormQuotaLedgerRepository{db: db}
}

// Reserve consumes one quota slot inside a row-locking transaction
func (r *GormQuotaLedgerRepository) Reserve(ctx context.Context, userID uuid.UUID, tier identity.Tier, cycleStart time.Time, ttl time.Duration) (*quota.Reservation, error) {
	var reservation *quota.Reservation
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ledger, err := lockLedger(tx, userID, tier, cycleStart)
		if err != nil {
			return err
		}
		ledger.SyncTier(tier)

		res, err := ledger.Reserve(time.Now(), ttl)
		if err != nil {
			return err
		}
		if err := tx.Save(ledger).Error; err != nil {
			return err
		}
		if err := tx.Create(res).Error; err != nil {
			return err
		}
		reservation = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reservation, nil
}

// Commit finalizes a pending reservation and stamps the ledger
func (r *GormQuotaLedgerRepository) Commit(ctx context.Context, reservationID uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res, err := lockReservation(tx, reservationID)
		if err != nil {
			return err
		}
		if err := res.Commit(); err != nil {
			return err
		}

		var ledger quota.Ledger
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&ledger, "user_id = ?", res.UserID).Error; err != nil {
			return err
		}
		ledger.CommitPost(time.Now())

		if err := tx.Save(res).Error; err != nil {
			return err
		}
		return tx.Save(&ledger).Error
	})
}

// Release hands a pending reservation's slot back to the ledger
func (r *GormQuotaLedgerRepository) Release(ctx context.Context, reservationID uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res, err := lockReservation(tx, reservationID)
		if err != nil {
			return err
		}
		return releaseLocked(tx, res)
	})
}

// ReleaseExpired reclaims every pending reservation whose hold has lapsed.
// Rows another sweeper already holds are skipped rather than waited on.
func (r *GormQuotaLedgerRepository) ReleaseExpired(ctx context.Context, now time.Time) (int, error) {
	released := 0
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var expired []*quota.Reservation
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("state = ? AND expires_at < ?", quota.ReservationPending, now).
			Order("expires_at ASC").
			Find(&expired).Error; err != nil {
			return err
		}

		for _, res := range expired {
			if err := releaseLocked(tx, res); err != nil {
				return err
			}
			released++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return released, nil
}

// FindByUserID loads the user's ledger without rolling it
func (r *GormQuotaLedgerRepository) FindByUserID(ctx context.Context, userID uuid.UUID) (*quota.Ledger, error) {
	var ledger quota.Ledger
	if err := r.db.WithContext(ctx).First(&ledger, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &ledger, nil
}

// Status returns the ledger rolled to the current period. The roll is
// applied to the returned copy only; persistence happens on the next
// reserving write.
func (r *GormQuotaLedgerRepository) Status(ctx context.Context, userID uuid.UUID, tier identity.Tier, cycleStart time.Time, now time.Time) (*quota.Ledger, error) {
	ledger, err := r.FindByUserID(ctx, userID)
	if errors.Is(err, shared.ErrNotFound) {
		return quota.NewLedger(userID, tier, cycleStart), nil
	}
	if err != nil {
		return nil, err
	}
	ledger.SyncTier(tier)
	ledger.Roll(now)
	return ledger, nil
}

// ExtendReservation moves a pending reservation's expiry forward under the
// row lock, so it cannot race the sweeper's reclaim
func (r *GormQuotaLedgerRepository) ExtendReservation(ctx context.Context, reservationID uuid.UUID, until time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res, err := lockReservation(tx, reservationID)
		if err != nil {
			return err
		}
		if res.State != quota.ReservationPending {
			return shared.NewDomainError("RESERVATION_FINAL",
				"Reservation is already "+string(res.State))
		}
		res.Extend(until)
		return tx.Save(res).Error
	})
}

// FindReservation loads a reservation by id
func (r *GormQuotaLedgerRepository) FindReservation(ctx context.Context, id uuid.UUID) (*quota.Reservation, error) {
	var res quota.Reservation
	if err := r.db.WithContext(ctx).First(&res, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &res, nil
}

// lockLedger loads the user's ledger row under FOR UPDATE, creating it on
// first use. The insert races only with another first-use insert; on
// conflict the existing row is locked and returned instead.
func lockLedger(tx *gorm.DB, userID uuid.UUID, tier identity.Tier, cycleStart time.Time) (*quota.Ledger, error) {
	var ledger quota.Ledger
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&ledger, "user_id = ?", userID).Error
	if err == nil {
		return &ledger, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	fresh := quota.NewLedger(userID, tier, cycleStart)
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(fresh).Error; err != nil {
		return nil, err
	}

	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&ledger, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &ledger, nil
}

// lockReservation loads a reservation row under FOR UPDATE
func lockReservation(tx *gorm.DB, id uuid.UUID) (*quota.Reservation, error) {
	var res quota.Reservation
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&res, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &res, nil
}

// releaseLocked releases an already-locked reservation and returns its slot
// to the owning ledger.
func releaseLocked(tx *gorm.DB, res *quota.Reservation) error {
	if err := res.Release(); err != nil {
		return err
	}

	var ledger quota.Ledger
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&ledger, "user_id = ?", res.UserID).Error; err != nil {
		return err
	}
	ledger.ReleaseOne(time.Now())

	if err := tx.Save(res).Error; err != nil {
		return err
	}
	return tx.Save(&ledger).Error
}

var _ quota.LedgerRepository = (*GormQuotaLedgerRepository)(nil)
