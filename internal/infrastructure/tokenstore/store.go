package tokenstore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/postpilot/backend/internal/domain/connection"
	"github.com/postpilot/backend/internal/domain/shared"
	"github.com/postpilot/backend/internal/domain/social"
)

// DefaultRefreshMargin is how far ahead of expiry tokens are refreshed
const DefaultRefreshMargin = 5 * time.Minute

// Store implements connection.TokenSource. Tokens live encrypted in the
// connections table; plaintext exists only in the returned TokenInfo.
// Concurrent refreshes for the same connection collapse into a single
// upstream grant through singleflight.
type Store struct {
	connections connection.ConnectionRepository
	cipher      *TokenCipher
	refresher   OAuthRefresher
	margin      time.Duration
	group       singleflight.Group
	logger      *zap.Logger
}

// NewStore creates a token store. A zero margin falls back to the default.
func NewStore(
	connections connection.ConnectionRepository,
	cipher *TokenCipher,
	refresher OAuthRefresher,
	margin time.Duration,
	logger *zap.Logger,
) *Store {
	if margin <= 0 {
		margin = DefaultRefreshMargin
	}
	return &Store{
		connections: connections,
		cipher:      cipher,
		refresher:   refresher,
		margin:      margin,
		logger:      logger.Named("tokenstore"),
	}
}

// AccessToken returns a token valid past the refresh margin, refreshing
// first when the stored one is about to expire.
func (s *Store) AccessToken(ctx context.Context, userID uuid.UUID, platform social.Platform) (*connection.TokenInfo, error) {
	conn, err := s.activeConnection(ctx, userID, platform)
	if err != nil {
		return nil, err
	}

	if conn.NeedsRefresh(time.Now(), s.margin) {
		return s.refreshShared(ctx, userID, platform)
	}

	accessToken, err := s.cipher.Open(conn.AccessTokenCipher)
	if err != nil {
		return nil, err
	}
	return &connection.TokenInfo{
		AccessToken:       accessToken,
		ExternalAccountID: conn.ExternalAccountID,
		ExpiresAt:         conn.TokenExpiresAt,
	}, nil
}

// Refresh forces a token refresh regardless of the expiry margin
func (s *Store) Refresh(ctx context.Context, userID uuid.UUID, platform social.Platform) (*connection.TokenInfo, error) {
	if _, err := s.activeConnection(ctx, userID, platform); err != nil {
		return nil, err
	}
	return s.refreshShared(ctx, userID, platform)
}

// Invalidate deactivates the connection after the platform rejected its token
func (s *Store) Invalidate(ctx context.Context, userID uuid.UUID, platform social.Platform) error {
	conn, err := s.connections.FindByUserAndPlatform(ctx, userID, platform)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.ErrConnectionInactive
		}
		return err
	}
	if !conn.Active {
		return nil
	}
	conn.Deactivate()
	if err := s.connections.Save(ctx, conn); err != nil {
		return err
	}
	s.logger.Warn("connection invalidated",
		zap.String("user_id", userID.String()),
		zap.String("platform", platform.String()))
	return nil
}

// activeConnection loads the connection and screens out unusable ones
func (s *Store) activeConnection(ctx context.Context, userID uuid.UUID, platform social.Platform) (*connection.PlatformConnection, error) {
	conn, err := s.connections.FindByUserAndPlatform(ctx, userID, platform)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrConnectionInactive
		}
		return nil, err
	}
	if !conn.Active {
		return nil, shared.ErrConnectionInactive
	}
	return conn, nil
}

// refreshShared funnels concurrent refreshes for one connection through a
// single upstream grant.
func (s *Store) refreshShared(ctx context.Context, userID uuid.UUID, platform social.Platform) (*connection.TokenInfo, error) {
	key := userID.String() + ":" + platform.String()
	result, err, _ := s.group.Do(key, func() (any, error) {
		return s.doRefresh(ctx, userID, platform)
	})
	if err != nil {
		return nil, err
	}
	return result.(*connection.TokenInfo), nil
}

// doRefresh performs the refresh grant and persists the new token pair.
// A grant the IdP rejects outright kills the connection; transient upstream
// failures leave it intact for the next attempt.
func (s *Store) doRefresh(ctx context.Context, userID uuid.UUID, platform social.Platform) (*connection.TokenInfo, error) {
	conn, err := s.activeConnection(ctx, userID, platform)
	if err != nil {
		return nil, err
	}

	refreshToken, err := s.cipher.Open(conn.RefreshTokenCipher)
	if err != nil {
		return nil, err
	}

	token, err := s.refresher.Refresh(ctx, platform, refreshToken)
	if err != nil {
		var refreshErr *RefreshError
		if errors.As(err, &refreshErr) && refreshErr.Revoked() {
			conn.Deactivate()
			if saveErr := s.connections.Save(ctx, conn); saveErr != nil {
				s.logger.Error("failed to deactivate connection",
					zap.String("user_id", userID.String()),
					zap.String("platform", platform.String()),
					zap.Error(saveErr))
			}
			return nil, shared.ErrConnectionInactive
		}
		return nil, err
	}

	accessCipher, err := s.cipher.Seal(token.AccessToken)
	if err != nil {
		return nil, err
	}
	var refreshCipher []byte
	if token.RefreshToken != "" {
		refreshCipher, err = s.cipher.Seal(token.RefreshToken)
		if err != nil {
			return nil, err
		}
	}

	expiresAt := time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)
	conn.UpdateTokens(accessCipher, refreshCipher, expiresAt)
	if err := s.connections.Save(ctx, conn); err != nil {
		return nil, err
	}

	s.logger.Debug("token refreshed",
		zap.String("user_id", userID.String()),
		zap.String("platform", platform.String()),
		zap.Time("expires_at", expiresAt))

	return &connection.TokenInfo{
		AccessToken:       token.AccessToken,
		ExternalAccountID: conn.ExternalAccountID,
		ExpiresAt:         expiresAt,
	}, nil
}

var _ connection.TokenSource = (*Store)(nil)
