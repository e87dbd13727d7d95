package persistence

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/postpilot/backend/internal/domain/post"
)

// GormPostRecordRepository implements post.RecordRepository using GORM
type GormPostRecordRepository struct {
	db *gorm.DB
}

// NewGormPostRecordRepository creates a new GormPostRecordRepository
func NewGormPostRecordRepository(db *gorm.DB) *GormPostRecordRepository {
	return &GormPostRecordRepository{db: db}
}

// Save appends a publish record. Records are write-once; settled entries
// never produce a second row for the same entry.
func (r *GormPostRecordRepository) Save(ctx context.Context, record *post.Record) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// ListByUser returns the user's publish history, newest first
func (r *GormPostRecordRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*post.Record, error) {
	var records []*post.Record
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("occurred_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

var _ post.RecordRepository = (*GormPostRecordRepository)(nil)
