package connection

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/postpilot/backend/internal/domain/shared"
	"github.com/postpilot/backend/internal/domain/social"
)

// PlatformConnection is a user's OAuth link to one platform. Tokens are
// stored as ciphertext; only the token store holds the key and sees
// plaintext. A deactivated connection stays on record so the user can see
// which platform needs re-authorization.
type PlatformConnection struct {
	shared.BaseEntity
	UserID             uuid.UUID
	Platform           social.Platform
	ExternalAccountID  string
	AccessTokenCipher  []byte
	RefreshTokenCipher []byte
	TokenExpiresAt     time.Time
	Scopes             string
	Active             bool
	LastRefreshedAt    *time.Time
}

// TableName returns the database table name for GORM
func (PlatformConnection) TableName() string {
	return "platform_connections"
}

// NewPlatformConnection creates an active connection with freshly issued
// token ciphertext.
func NewPlatformConnection(userID uuid.UUID, platform social.Platform, externalAccountID string, accessCipher, refreshCipher []byte, expiresAt time.Time, scopes string) *PlatformConnection {
	return &PlatformConnection{
		BaseEntity:         shared.NewBaseEntity(),
		UserID:             userID,
		Platform:           platform,
		ExternalAccountID:  externalAccountID,
		AccessTokenCipher:  accessCipher,
		RefreshTokenCipher: refreshCipher,
		TokenExpiresAt:     expiresAt,
		Scopes:             scopes,
		Active:             true,
	}
}

// NeedsRefresh reports whether the access token expires within the margin.
// Refreshing ahead of expiry keeps a token from dying mid-publish.
func (c *PlatformConnection) NeedsRefresh(now time.Time, margin time.Duration) bool {
	return now.Add(margin).After(c.TokenExpiresAt)
}

// UpdateTokens stores a refreshed token pair. A refresh response without a
// new refresh token keeps the old one.
func (c *PlatformConnection) UpdateTokens(accessCipher, refreshCipher []byte, expiresAt time.Time) {
	now := time.Now()
	c.AccessTokenCipher = accessCipher
	if len(refreshCipher) > 0 {
		c.RefreshTokenCipher = refreshCipher
	}
	c.TokenExpiresAt = expiresAt
	c.LastRefreshedAt = &now
	c.UpdatedAt = now
}

// Deactivate marks the connection unusable until the user re-authorizes.
// Called when the platform rejects a refresh or revokes access.
func (c *PlatformConnection) Deactivate() {
	c.Active = false
	c.UpdatedAt = time.Now()
}

// Reactivate restores a connection after a fresh authorization
func (c *PlatformConnection) Reactivate(accessCipher, refreshCipher []byte, expiresAt time.Time) {
	c.UpdateTokens(accessCipher, refreshCipher, expiresAt)
	c.Active = true
}

// ConnectionRepository persists platform connections
type ConnectionRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*PlatformConnection, error)
	FindByUserAndPlatform(ctx context.Context, userID uuid.UUID, platform social.Platform) (*PlatformConnection, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*PlatformConnection, error)
	Save(ctx context.Context, conn *PlatformConnection) error
}
