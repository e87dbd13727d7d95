package queue

import (
	"time"

	"github.com/google/uuid"
	"github.com/postpilot/backend/internal/domain/shared"
	"github.com/postpilot/backend/internal/domain/social"
)

// EntryStatus is the lifecycle state of a queue entry
type EntryStatus string

const (
	// StatusQueued means the entry waits for its lane to pick it up
	StatusQueued EntryStatus = "queued"
	// StatusProcessing means a dispatcher claimed the entry and the
	// platform call is in flight
	StatusProcessing EntryStatus = "processing"
	// StatusPublished means the platform accepted the post
	StatusPublished EntryStatus = "published"
	// StatusFailed means a non-retryable error stopped the entry
	StatusFailed EntryStatus = "failed"
	// StatusDead means the retry budget ran out
	StatusDead EntryStatus = "dead"
	// StatusCancelled means the owner withdrew the entry before dispatch
	StatusCancelled EntryStatus = "cancelled"
)

// IsValid returns true if the status is a known entry status
func (s EntryStatus) IsValid() bool {
	switch s {
	case StatusQueued, StatusProcessing, StatusPublished, StatusFailed, StatusDead, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal returns true when the entry will never be dispatched again
func (s EntryStatus) IsTerminal() bool {
	switch s {
	case StatusPublished, StatusFailed, StatusDead, StatusCancelled:
		return true
	}
	return false
}

// Entry is one pending publish of a post to a single platform. A post fanned
// out to three platforms produces three independent entries; each rides its
// own lane and fails or succeeds on its own.
//
// ReservationID links the quota slot held for this publish. It is set while
// a reservation is pending and cleared once the slot is committed or
// released, so crash recovery can tell held slots from settled ones.
type Entry struct {
	shared.BaseEntity
	PostID            uuid.UUID
	UserID            uuid.UUID
	Platform          social.Platform
	Content           social.Content `gorm:"serializer:json"`
	Status            EntryStatus
	AttemptCount      int
	NextAttemptAt     time.Time
	ReservationID     *uuid.UUID
	PlatformPostID    string
	LastError         string
	LastErrorKind     string
	RequiresReconnect bool
	PublishedAt       *time.Time
}

// TableName returns the database table name for GORM
func (Entry) TableName() string {
	return "queue_entries"
}

// NewEntry creates a queued entry holding the given quota reservation,
// dispatchable immediately.
func NewEntry(postID, userID uuid.UUID, platform social.Platform, content social.Content, reservationID uuid.UUID) *Entry {
	return &Entry{
		BaseEntity:    shared.NewBaseEntity(),
		PostID:        postID,
		UserID:        userID,
		Platform:      platform,
		Content:       content,
		Status:        StatusQueued,
		AttemptCount:  0,
		NextAttemptAt: time.Now(),
		ReservationID: &reservationID,
	}
}

// MarkProcessing transitions the entry to processing when a lane claims it
func (e *Entry) MarkProcessing() error {
	if e.Status != StatusQueued {
		return shared.NewDomainError("INVALID_ENTRY_STATE",
			"Cannot process entry in status "+string(e.Status))
	}
	e.Status = StatusProcessing
	e.UpdatedAt = time.Now()
	return nil
}

// MarkPublished records a successful publish. The quota slot is committed
// by the caller; the entry drops its reservation link.
func (e *Entry) MarkPublished(platformPostID string) error {
	if e.Status != StatusProcessing {
		return shared.NewDomainError("INVALID_ENTRY_STATE",
			"Cannot publish entry in status "+string(e.Status))
	}
	now := time.Now()
	e.Status = StatusPublished
	e.PlatformPostID = platformPostID
	e.PublishedAt = &now
	e.ReservationID = nil
	e.LastError = ""
	e.LastErrorKind = ""
	e.UpdatedAt = now
	return nil
}

// ScheduleRetry puts the entry back in the queue for another attempt at the
// given instant. The held quota slot was released by the caller; the next
// dispatch reserves a fresh one.
func (e *Entry) ScheduleRetry(nextAt time.Time, cause string, kind string) error {
	if e.Status != StatusProcessing {
		return shared.NewDomainError("INVALID_ENTRY_STATE",
			"Cannot retry entry in status "+string(e.Status))
	}
	e.Status = StatusQueued
	e.AttemptCount++
	e.NextAttemptAt = nextAt
	e.ReservationID = nil
	e.LastError = cause
	e.LastErrorKind = kind
	e.UpdatedAt = time.Now()
	return nil
}

// Defer puts the entry back in the queue without burning an attempt. Used
// when dispatch cannot proceed for reasons unrelated to the platform call,
// like an exhausted quota period; the entry waits until the given instant.
func (e *Entry) Defer(until time.Time, cause string) error {
	if e.Status != StatusProcessing {
		return shared.NewDomainError("INVALID_ENTRY_STATE",
			"Cannot defer entry in status "+string(e.Status))
	}
	e.Status = StatusQueued
	e.NextAttemptAt = until
	e.ReservationID = nil
	e.LastError = cause
	e.UpdatedAt = time.Now()
	return nil
}

// MarkFailed stops the entry on a non-retryable error. requiresReconnect is
// set when the failure was an expired or revoked platform connection the
// user must re-authorize.
func (e *Entry) MarkFailed(cause string, kind string, requiresReconnect bool) error {
	if e.Status != StatusProcessing {
		return shared.NewDomainError("INVALID_ENTRY_STATE",
			"Cannot fail entry in status "+string(e.Status))
	}
	e.Status = StatusFailed
	e.AttemptCount++
	e.ReservationID = nil
	e.LastError = cause
	e.LastErrorKind = kind
	e.RequiresReconnect = requiresReconnect
	e.UpdatedAt = time.Now()
	return nil
}

// MarkDead parks the entry after its retry budget is exhausted
func (e *Entry) MarkDead(cause string, kind string) error {
	if e.Status != StatusProcessing {
		return shared.NewDomainError("INVALID_ENTRY_STATE",
			"Cannot dead-letter entry in status "+string(e.Status))
	}
	e.Status = StatusDead
	e.AttemptCount++
	e.ReservationID = nil
	e.LastError = cause
	e.LastErrorKind = kind
	e.UpdatedAt = time.Now()
	return nil
}

// Cancel withdraws an entry. Queued entries are withdrawn immediately;
// processing entries are marked cancelled and the worker observes the flag
// around the platform call. Settled entries cannot be cancelled.
func (e *Entry) Cancel() error {
	if e.Status != StatusQueued && e.Status != StatusProcessing {
		return shared.NewDomainError("INVALID_ENTRY_STATE",
			"Cannot cancel entry in status "+string(e.Status))
	}
	e.Status = StatusCancelled
	e.ReservationID = nil
	e.UpdatedAt = time.Now()
	return nil
}
