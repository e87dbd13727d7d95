package publishing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/postpilot/backend/internal/domain/connection"
	"github.com/postpilot/backend/internal/domain/identity"
	"github.com/postpilot/backend/internal/domain/queue"
	"github.com/postpilot/backend/internal/domain/quota"
	"github.com/postpilot/backend/internal/domain/shared"
	"github.com/postpilot/backend/internal/domain/social"
)

// Rejection codes returned per platform lane at enqueue
const (
	RejectCodeValidation         = "VALIDATION"
	RejectCodeQuotaExceeded      = "QUOTA_EXCEEDED"
	RejectCodeConnectionInactive = "CONNECTION_INACTIVE"
	RejectCodeInternal           = "INTERNAL"
)

// MediaProber fills in media sizes the enqueue payload did not carry, so
// pre-flight validation can check platform size limits before any quota is
// reserved.
type MediaProber interface {
	// Probe returns the object size in bytes for a media URL
	Probe(ctx context.Context, url string) (int64, error)
}

// IdempotencyStore remembers which entry a (post, platform) pair produced,
// so a client retrying an enqueue gets the original entry back.
type IdempotencyStore interface {
	Get(ctx context.Context, postID uuid.UUID, platform social.Platform) (uuid.UUID, bool, error)
	Set(ctx context.Context, postID uuid.UUID, platform social.Platform, entryID uuid.UUID, ttl time.Duration) error
}

// EnqueueConfig tunes enqueue-side behavior
type EnqueueConfig struct {
	ReservationTTL time.Duration
	IdempotencyTTL time.Duration
}

// DefaultEnqueueConfig returns default enqueue configuration
func DefaultEnqueueConfig() EnqueueConfig {
	return EnqueueConfig{
		ReservationTTL: 5 * time.Minute,
		IdempotencyTTL: 24 * time.Hour,
	}
}

// EnqueueService admits publish requests into the per-platform lanes. Each
// target platform is admitted independently: content is validated against
// the platform's limits, the connection must be active, and one quota slot
// is reserved up front so concurrent enqueues can never oversubscribe a
// user's remaining quota.
type EnqueueService struct {
	users       identity.UserRepository
	entries     queue.EntryRepository
	ledgers     quota.LedgerRepository
	connections connection.ConnectionRepository
	prober      MediaProber
	idempotency IdempotencyStore
	config      EnqueueConfig
	logger      *zap.Logger
}

// NewEnqueueService creates a new EnqueueService
func NewEnqueueService(
	users identity.UserRepository,
	entries queue.EntryRepository,
	ledgers quota.LedgerRepository,
	connections connection.ConnectionRepository,
	prober MediaProber,
	idempotency IdempotencyStore,
	config EnqueueConfig,
	logger *zap.Logger,
) *EnqueueService {
	return &EnqueueService{
		users:       users,
		entries:     entries,
		ledgers:     ledgers,
		connections: connections,
		prober:      prober,
		idempotency: idempotency,
		config:      config,
		logger:      logger,
	}
}

// Enqueue fans the post out to the requested platforms and reports
// per-platform admission. It returns an error only when the request as a
// whole cannot be processed; individual lane rejections come back in the
// result.
func (s *EnqueueService) Enqueue(ctx context.Context, cmd EnqueueCommand) (*EnqueueResult, error) {
	if len(cmd.Platforms) == 0 {
		return nil, shared.NewDomainError("INVALID_INPUT", "At least one target platform is required")
	}
	if cmd.PostID == uuid.Nil {
		cmd.PostID = uuid.New()
	}

	user, err := s.users.FindByID(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}

	content := s.probeMedia(ctx, cmd.Content)

	result := &EnqueueResult{PostID: cmd.PostID}
	for _, platform := range dedupe(cmd.Platforms) {
		s.admit(ctx, user, cmd.PostID, platform, content, result)
	}
	return result, nil
}

// admit runs the full admission pipeline for one platform lane
func (s *EnqueueService) admit(ctx context.Context, user *identity.User, postID uuid.UUID, platform social.Platform, content social.Content, result *EnqueueResult) {
	reject := func(code, message string) {
		result.Rejected = append(result.Rejected, RejectedEntry{
			Platform: platform,
			Code:     code,
			Message:  message,
		})
	}

	if !platform.IsValid() {
		reject(RejectCodeValidation, "unsupported platform")
		return
	}
	if verr := content.Validate(platform); verr != nil {
		reject(RejectCodeValidation, verr.Message)
		return
	}

	if entryID, ok := s.lookupExisting(ctx, postID, platform); ok {
		result.Accepted = append(result.Accepted, AcceptedEntry{
			Platform: platform,
			EntryID:  entryID,
			Existing: true,
		})
		return
	}

	conn, err := s.connections.FindByUserAndPlatform(ctx, user.ID, platform)
	if err != nil || conn == nil || !conn.Active {
		reject(RejectCodeConnectionInactive, "no active connection for platform")
		return
	}

	reservation, err := s.ledgers.Reserve(ctx, user.ID, user.Tier, user.BillingCycleStart, s.config.ReservationTTL)
	if err != nil {
		if errors.Is(err, shared.ErrQuotaExceeded) {
			reject(RejectCodeQuotaExceeded, "posting quota exhausted for the current billing period")
			return
		}
		s.logger.Error("quota reservation failed",
			zap.String("user_id", user.ID.String()),
			zap.String("platform", platform.String()),
			zap.Error(err),
		)
		reject(RejectCodeInternal, "could not reserve quota")
		return
	}

	entry := queue.NewEntry(postID, user.ID, platform, content, reservation.ID)
	if err := s.entries.Save(ctx, entry); err != nil {
		if releaseErr := s.ledgers.Release(ctx, reservation.ID); releaseErr != nil {
			s.logger.Error("failed to release reservation after save failure",
				zap.String("reservation_id", reservation.ID.String()),
				zap.Error(releaseErr),
			)
		}
		s.logger.Error("failed to save queue entry",
			zap.String("post_id", postID.String()),
			zap.String("platform", platform.String()),
			zap.Error(err),
		)
		reject(RejectCodeInternal, "could not persist queue entry")
		return
	}

	if err := s.idempotency.Set(ctx, postID, platform, entry.ID, s.config.IdempotencyTTL); err != nil {
		s.logger.Warn("failed to record idempotency key",
			zap.String("entry_id", entry.ID.String()),
			zap.Error(err),
		)
	}

	s.logger.Info("entry enqueued",
		zap.String("entry_id", entry.ID.String()),
		zap.String("post_id", postID.String()),
		zap.String("user_id", user.ID.String()),
		zap.String("platform", platform.String()),
	)
	result.Accepted = append(result.Accepted, AcceptedEntry{Platform: platform, EntryID: entry.ID})
}

// lookupExisting checks the idempotency store first and falls back to the
// unique (post, platform) index when the cached key has expired.
func (s *EnqueueService) lookupExisting(ctx context.Context, postID uuid.UUID, platform social.Platform) (uuid.UUID, bool) {
	if entryID, ok, err := s.idempotency.Get(ctx, postID, platform); err == nil && ok {
		return entryID, true
	}
	existing, err := s.entries.FindByPostAndPlatform(ctx, postID, platform)
	if err != nil || existing == nil {
		return uuid.Nil, false
	}
	return existing.ID, true
}

// probeMedia fills missing media sizes from storage metadata. Probe
// failures are logged and left unknown; validation only checks limits it
// has data for.
func (s *EnqueueService) probeMedia(ctx context.Context, content social.Content) social.Content {
	if s.prober == nil {
		return content
	}
	media := make([]social.MediaRef, len(content.Media))
	copy(media, content.Media)
	for i := range media {
		if media[i].SizeBytes > 0 || media[i].URL == "" {
			continue
		}
		size, err := s.prober.Probe(ctx, media[i].URL)
		if err != nil {
			s.logger.Warn("media size probe failed",
				zap.String("url", media[i].URL),
				zap.Error(err),
			)
			continue
		}
		media[i].SizeBytes = size
	}
	content.Media = media
	return content
}

func dedupe(platforms []social.Platform) []social.Platform {
	seen := make(map[social.Platform]struct{}, len(platforms))
	out := make([]social.Platform, 0, len(platforms))
	for _, p := range platforms {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
