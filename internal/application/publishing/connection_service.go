package publishing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/postpilot/backend/internal/domain/connection"
	"github.com/postpilot/backend/internal/domain/social"
)

// ConnectionDTO is the platform connection view returned by the API. Token
// material never leaves the token store; only expiry metadata is exposed.
type ConnectionDTO struct {
	ID                uuid.UUID  `json:"id"`
	Platform          string     `json:"platform"`
	ExternalAccountID string     `json:"external_account_id"`
	Active            bool       `json:"active"`
	TokenExpiresAt    time.Time  `json:"token_expires_at"`
	LastRefreshedAt   *time.Time `json:"last_refreshed_at,omitempty"`
	ConnectedAt       time.Time  `json:"connected_at"`
}

// ConnectionService answers connection queries and handles manual
// invalidation.
type ConnectionService struct {
	connections connection.ConnectionRepository
	tokens      connection.TokenSource
	logger      *zap.Logger
}

// NewConnectionService creates a new ConnectionService
func NewConnectionService(connections connection.ConnectionRepository, tokens connection.TokenSource, logger *zap.Logger) *ConnectionService {
	return &ConnectionService{
		connections: connections,
		tokens:      tokens,
		logger:      logger,
	}
}

// ListConnections returns the user's platform connections
func (s *ConnectionService) ListConnections(ctx context.Context, userID uuid.UUID) ([]*ConnectionDTO, error) {
	conns, err := s.connections.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	dtos := make([]*ConnectionDTO, len(conns))
	for i, conn := range conns {
		dtos[i] = toConnectionDTO(conn)
	}
	return dtos, nil
}

// Invalidate deactivates a user's connection to one platform. Queued
// entries for that platform will fail with a reconnect flag on their next
// dispatch.
func (s *ConnectionService) Invalidate(ctx context.Context, userID uuid.UUID, platform social.Platform) error {
	if err := s.tokens.Invalidate(ctx, userID, platform); err != nil {
		return err
	}
	s.logger.Info("connection invalidated",
		zap.String("user_id", userID.String()),
		zap.String("platform", platform.String()),
	)
	return nil
}

func toConnectionDTO(conn *connection.PlatformConnection) *ConnectionDTO {
	return &ConnectionDTO{
		ID:                conn.ID,
		Platform:          conn.Platform.String(),
		ExternalAccountID: conn.ExternalAccountID,
		Active:            conn.Active,
		TokenExpiresAt:    conn.TokenExpiresAt,
		LastRefreshedAt:   conn.LastRefreshedAt,
		ConnectedAt:       conn.CreatedAt,
	}
}
