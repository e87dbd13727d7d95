package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/postpilot/backend/internal/domain/social"
)

// LaneStats aggregates entry counts for one platform lane
type LaneStats struct {
	Platform   social.Platform `json:"platform"`
	Queued     int64           `json:"queued"`
	Processing int64           `json:"processing"`
	Published  int64           `json:"published"`
	Failed     int64           `json:"failed"`
	Dead       int64           `json:"dead"`
	Cancelled  int64           `json:"cancelled"`
}

// EntryRepository persists queue entries. ClaimDue is the hot path: lane
// dispatchers poll it concurrently, so implementations must hand each due
// entry to exactly one caller (row locks with skipped-lock semantics on
// PostgreSQL).
type EntryRepository interface {
	// Save inserts or updates an entry
	Save(ctx context.Context, entry *Entry) error

	// FindByID loads an entry by id
	FindByID(ctx context.Context, id uuid.UUID) (*Entry, error)

	// FindByPostAndPlatform loads the entry for a post on one platform.
	// Post and platform are unique together; the pair is the idempotency
	// key for enqueue.
	FindByPostAndPlatform(ctx context.Context, postID uuid.UUID, platform social.Platform) (*Entry, error)

	// ClaimDue atomically claims up to limit queued entries on the given
	// platform whose next attempt is due, oldest first, and returns them
	// already transitioned to processing. Entries claimed here are
	// invisible to concurrent callers.
	ClaimDue(ctx context.Context, platform social.Platform, limit int, now time.Time) ([]*Entry, error)

	// RequeueStuck returns processing entries older than the cutoff to
	// queued state. Run at startup to recover entries orphaned by a crash
	// between claim and settle.
	RequeueStuck(ctx context.Context, cutoff time.Time) (int, error)

	// ListByUser returns the user's entries, newest first
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*Entry, error)

	// Stats returns per-lane entry counts across all platforms
	Stats(ctx context.Context) ([]LaneStats, error)
}
