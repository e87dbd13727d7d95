package quota

import (
	"time"

	"github.com/google/uuid"
	"github.com/postpilot/backend/internal/domain/shared"
)

// ReservationState is the lifecycle state of a quota reservation
type ReservationState string

const (
	// ReservationPending holds a quota slot for an in-flight publish
	ReservationPending ReservationState = "pending"
	// ReservationCommitted means the publish succeeded and the slot is spent
	ReservationCommitted ReservationState = "committed"
	// ReservationReleased means the slot was handed back to the ledger
	ReservationReleased ReservationState = "released"
)

// IsValid returns true if the state is a known reservation state
func (s ReservationState) IsValid() bool {
	switch s {
	case ReservationPending, ReservationCommitted, ReservationReleased:
		return true
	}
	return false
}

// IsFinal returns true when the reservation can no longer change state
func (s ReservationState) IsFinal() bool {
	return s == ReservationCommitted || s == ReservationReleased
}

// Reservation is a held quota slot. A pending reservation that outlives its
// expiry is reclaimed by the sweeper, which releases the slot back to the
// ledger. Commit and Release are each one-way; a committed reservation can
// never be released and vice versa.
type Reservation struct {
	shared.BaseEntity
	UserID    uuid.UUID
	State     ReservationState
	ExpiresAt time.Time
}

// TableName returns the database table name for GORM
func (Reservation) TableName() string {
	return "quota_reservations"
}

// NewReservation creates a pending reservation expiring at the given instant
func NewReservation(userID uuid.UUID, expiresAt time.Time) *Reservation {
	return &Reservation{
		BaseEntity: shared.NewBaseEntity(),
		UserID:     userID,
		State:      ReservationPending,
		ExpiresAt:  expiresAt,
	}
}

// IsExpired reports whether a pending reservation has outlived its hold
func (r *Reservation) IsExpired(now time.Time) bool {
	return r.State == ReservationPending && now.After(r.ExpiresAt)
}

// Commit finalizes the reservation after a successful publish
func (r *Reservation) Commit() error {
	if r.State != ReservationPending {
		return shared.NewDomainError("RESERVATION_FINAL",
			"Reservation is already "+string(r.State))
	}
	r.State = ReservationCommitted
	r.UpdatedAt = time.Now()
	return nil
}

// Release hands the slot back after a failed or abandoned publish
func (r *Reservation) Release() error {
	if r.State != ReservationPending {
		return shared.NewDomainError("RESERVATION_FINAL",
			"Reservation is already "+string(r.State))
	}
	r.State = ReservationReleased
	r.UpdatedAt = time.Now()
	return nil
}

// Extend pushes the expiry forward while the publish is still in flight
func (r *Reservation) Extend(until time.Time) {
	if r.State != ReservationPending {
		return
	}
	if until.After(r.ExpiresAt) {
		r.ExpiresAt = until
		r.UpdatedAt = time.Now()
	}
}
