package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/postpilot/backend/internal/domain/queue"
	"github.com/postpilot/backend/internal/domain/shared"
	"github.com/postpilot/backend/internal/domain/social"
)

// GormQueueEntryRepository implements queue.EntryRepository using GORM
type GormQueueEntryRepository struct {
	db *gorm.DB
}

// NewGormQueueEntryRepository creates a new GormQueueEntryRepository
func NewGormQueueEntryRepository(db *gorm.DB) *GormQueueEntryRepository {
	return &GormQueueEntryRepository{db: db}
}

// Save inserts or updates an entry
func (r *GormQueueEntryRepository) Save(ctx context.Context, entry *queue.Entry) error {
	return r.db.WithContext(ctx).Save(entry).Error
}

// FindByID loads an entry by id
func (r *GormQueueEntryRepository) FindByID(ctx context.Context, id uuid.UUID) (*queue.Entry, error) {
	var entry queue.Entry
	if err := r.db.WithContext(ctx).First(&entry, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &entry, nil
}

// FindByPostAndPlatform loads the entry for a post on one platform
func (r *GormQueueEntryRepository) FindByPostAndPlatform(ctx context.Context, postID uuid.UUID, platform social.Platform) (*queue.Entry, error) {
	var entry queue.Entry
	err := r.db.WithContext(ctx).
		First(&entry, "post_id = ? AND platform = ?", postID, platform).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &entry, nil
}

// ClaimDue claims up to limit due entries for the platform, oldest due
// first. The select locks the rows with SKIP LOCKED so concurrent lane
// pollers never claim the same entry twice; the transition to processing
// is persisted before the rows are handed back.
func (r *GormQueueEntryRepository) ClaimDue(ctx context.Context, platform social.Platform, limit int, now time.Time) ([]*queue.Entry, error) {
	var claimed []*queue.Entry
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entries []*queue.Entry
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("platform = ? AND status = ? AND next_attempt_at <= ?",
				platform, queue.StatusQueued, now).
			Order("next_attempt_at ASC").
			Limit(limit).
			Find(&entries).Error; err != nil {
			return err
		}

		for _, entry := range entries {
			if err := entry.MarkProcessing(); err != nil {
				return err
			}
			if err := tx.Save(entry).Error; err != nil {
				return err
			}
		}
		claimed = entries
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// RequeueStuck returns processing entries older than the cutoff to queued
// state and reports how many were recovered.
func (r *GormQueueEntryRepository) RequeueStuck(ctx context.Context, cutoff time.Time) (int, error) {
	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&queue.Entry{}).
		Where("status = ? AND updated_at < ?", queue.StatusProcessing, cutoff).
		Updates(map[string]any{
			"status":          queue.StatusQueued,
			"next_attempt_at": now,
			"updated_at":      now,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return int(result.RowsAffected), nil
}

// ListByUser returns the user's entries, newest first
func (r *GormQueueEntryRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*queue.Entry, error) {
	var entries []*queue.Entry
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Stats returns per-lane entry counts across all platforms
func (r *GormQueueEntryRepository) Stats(ctx context.Context) ([]queue.LaneStats, error) {
	type row struct {
		Platform string
		Status   string
		Count    int64
	}
	var rows []row
	err := r.db.WithContext(ctx).
		Model(&queue.Entry{}).
		Select("platform, status, COUNT(*) AS count").
		Group("platform").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	byPlatform := make(map[social.Platform]*queue.LaneStats)
	for _, platform := range social.AllPlatforms {
		byPlatform[platform] = &queue.LaneStats{Platform: platform}
	}
	for _, r := range rows {
		stats, ok := byPlatform[social.Platform(r.Platform)]
		if !ok {
			continue
		}
		switch queue.EntryStatus(r.Status) {
		case queue.StatusQueued:
			stats.Queued = r.Count
		case queue.StatusProcessing:
			stats.Processing = r.Count
		case queue.StatusPublished:
			stats.Published = r.Count
		case queue.StatusFailed:
			stats.Failed = r.Count
		case queue.StatusDead:
			stats.Dead = r.Count
		case queue.StatusCancelled:
			stats.Cancelled = r.Count
		}
	}

	result := make([]queue.LaneStats, 0, len(byPlatform))
	for _, platform := range social.AllPlatforms {
		result = append(result, *byPlatform[platform])
	}
	return result, nil
}

var _ queue.EntryRepository = (*GormQueueEntryRepository)(nil)
