package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/postpilot/backend/internal/domain/connection"
	"github.com/postpilot/backend/internal/domain/shared"
	"github.com/postpilot/backend/internal/domain/social"
)

// GormConnectionRepository implements connection.ConnectionRepository using GORM
type GormConnectionRepository struct {
	db *gorm.DB
}

// NewGormConnectionRepository creates a new GormConnectionRepository
func NewGormConnectionRepository(db *gorm.DB) *GormConnectionRepository {
	return &GormConnectionRepository{db: db}
}

// FindByID finds a connection by ID
func (r *GormConnectionRepository) FindByID(ctx context.Context, id uuid.UUID) (*connection.PlatformConnection, error) {
	var conn connection.PlatformConnection
	if err := r.db.WithContext(ctx).First(&conn, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &conn, nil
}

// FindByUserAndPlatform finds the user's connection for one platform.
// User and platform are unique together.
func (r *GormConnectionRepository) FindByUserAndPlatform(ctx context.Context, userID uuid.UUID, platform social.Platform) (*connection.PlatformConnection, error) {
	var conn connection.PlatformConnection
	err := r.db.WithContext(ctx).
		First(&conn, "user_id = ? AND platform = ?", userID, platform).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &conn, nil
}

// ListByUser returns all of the user's connections in lane order
func (r *GormConnectionRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*connection.PlatformConnection, error) {
	var conns []*connection.PlatformConnection
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("platform ASC").
		Find(&conns).Error
	if err != nil {
		return nil, err
	}
	return conns, nil
}

// Save creates or updates a connection
func (r *GormConnectionRepository) Save(ctx context.Context, conn *connection.PlatformConnection) error {
	return r.db.WithContext(ctx).Save(conn).Error
}

var _ connection.ConnectionRepository = (*GormConnectionRepository)(nil)
