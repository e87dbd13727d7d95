package publishing

import (
	"time"

	"github.com/google/uuid"
	"github.com/postpilot/backend/internal/domain/queue"
	"github.com/postpilot/backend/internal/domain/social"
)

// EnqueueCommand is one publish request fanned out to the listed platforms.
// PostID identifies the approved content; enqueueing the same post to the
// same platform twice returns the original entry instead of a duplicate.
type EnqueueCommand struct {
	PostID    uuid.UUID
	UserID    uuid.UUID
	Platforms []social.Platform
	Content   social.Content
}

// AcceptedEntry is one platform lane the enqueue admitted
type AcceptedEntry struct {
	Platform social.Platform `json:"platform"`
	EntryID  uuid.UUID       `json:"entry_id"`
	Existing bool            `json:"existing,omitempty"`
}

// RejectedEntry is one platform lane the enqueue turned away
type RejectedEntry struct {
	Platform social.Platform `json:"platform"`
	Code     string          `json:"code"`
	Message  string          `json:"message"`
}

// EnqueueResult reports per-platform admission. Lanes are independent: one
// platform running out of quota does not block the others.
type EnqueueResult struct {
	PostID   uuid.UUID       `json:"post_id"`
	Accepted []AcceptedEntry `json:"accepted"`
	Rejected []RejectedEntry `json:"rejected,omitempty"`
}

// EntryDTO is the queue entry view returned by the API
type EntryDTO struct {
	ID                uuid.UUID  `json:"id"`
	PostID            uuid.UUID  `json:"post_id"`
	UserID            uuid.UUID  `json:"user_id"`
	Platform          string     `json:"platform"`
	Status            string     `json:"status"`
	AttemptCount      int        `json:"attempt_count"`
	NextAttemptAt     *time.Time `json:"next_attempt_at,omitempty"`
	PlatformPostID    string     `json:"platform_post_id,omitempty"`
	LastError         string     `json:"last_error,omitempty"`
	LastErrorKind     string     `json:"last_error_kind,omitempty"`
	RequiresReconnect bool       `json:"requires_reconnect,omitempty"`
	PublishedAt       *time.Time `json:"published_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// ToEntryDTO maps a queue entry to its API view
func ToEntryDTO(entry *queue.Entry) *EntryDTO {
	dto := &EntryDTO{
		ID:                entry.ID,
		PostID:            entry.PostID,
		UserID:            entry.UserID,
		Platform:          entry.Platform.String(),
		Status:            string(entry.Status),
		AttemptCount:      entry.AttemptCount,
		PlatformPostID:    entry.PlatformPostID,
		LastError:         entry.LastError,
		LastErrorKind:     entry.LastErrorKind,
		RequiresReconnect: entry.RequiresReconnect,
		PublishedAt:       entry.PublishedAt,
		CreatedAt:         entry.CreatedAt,
	}
	if !entry.Status.IsTerminal() {
		next := entry.NextAttemptAt
		dto.NextAttemptAt = &next
	}
	return dto
}

// QuotaStatusDTO is the quota view returned by the API
type QuotaStatusDTO struct {
	UserID      uuid.UUID `json:"user_id"`
	Tier        string    `json:"tier"`
	Quota       int       `json:"quota"`
	UsedPosts   int       `json:"used_posts"`
	Remaining   int       `json:"remaining"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
}

// QueueStatsDTO aggregates lane counts for the operations endpoint
type QueueStatsDTO struct {
	Lanes []queue.LaneStats `json:"lanes"`
}
