package post

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/postpilot/backend/internal/domain/queue"
	"github.com/postpilot/backend/internal/domain/shared"
	"github.com/postpilot/backend/internal/domain/social"
)

// Record is the durable audit row written once a queue entry settles. The
// queue table is operational and gets pruned; records are the permanent
// per-platform publish history shown to the user.
type Record struct {
	shared.BaseEntity
	EntryID        uuid.UUID
	PostID         uuid.UUID
	UserID         uuid.UUID
	Platform       social.Platform
	Status         queue.EntryStatus
	PlatformPostID string
	FailureKind    string
	FailureMessage string
	OccurredAt     time.Time
}

// TableName returns the database table name for GORM
func (Record) TableName() string {
	return "posts"
}

// NewRecord captures the terminal outcome of a settled queue entry
func NewRecord(entry *queue.Entry) *Record {
	occurred := entry.UpdatedAt
	if entry.PublishedAt != nil {
		occurred = *entry.PublishedAt
	}
	return &Record{
		BaseEntity:     shared.NewBaseEntity(),
		EntryID:        entry.ID,
		PostID:         entry.PostID,
		UserID:         entry.UserID,
		Platform:       entry.Platform,
		Status:         entry.Status,
		PlatformPostID: entry.PlatformPostID,
		FailureKind:    entry.LastErrorKind,
		FailureMessage: entry.LastError,
		OccurredAt:     occurred,
	}
}

// RecordRepository persists publish records
type RecordRepository interface {
	Save(ctx context.Context, record *Record) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*Record, error)
}
