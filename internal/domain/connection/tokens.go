package connection

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/postpilot/backend/internal/domain/social"
)

// TokenInfo is a decrypted, ready-to-use access token. Plaintext exists only
// in memory on the publish path; it is never persisted or logged.
type TokenInfo struct {
	AccessToken       string
	ExternalAccountID string
	ExpiresAt         time.Time
}

// TokenSource hands out valid access tokens for publish calls. It is the
// port interface for the token store: implementations decrypt the stored
// pair, refresh it ahead of expiry, and collapse concurrent refreshes for
// the same connection into one upstream call.
//
// Returns shared.ErrConnectionInactive when the user has no usable
// connection for the platform.
type TokenSource interface {
	// AccessToken returns a token valid for at least the store's expiry
	// margin, refreshing first when needed.
	AccessToken(ctx context.Context, userID uuid.UUID, platform social.Platform) (*TokenInfo, error)

	// Refresh forces a token refresh regardless of the expiry margin and
	// returns the fresh token. Used after the platform rejected a token
	// the store still considered valid.
	Refresh(ctx context.Context, userID uuid.UUID, platform social.Platform) (*TokenInfo, error)

	// Invalidate deactivates the connection after the platform rejected
	// its token. Subsequent AccessToken calls fail until the user
	// re-authorizes.
	Invalidate(ctx context.Context, userID uuid.UUID, platform social.Platform) error
}
