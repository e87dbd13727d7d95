package publishing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/postpilot/backend/internal/domain/identity"
	"github.com/postpilot/backend/internal/domain/quota"
)

// QuotaService answers quota status queries
type QuotaService struct {
	users   identity.UserRepository
	ledgers quota.LedgerRepository
	logger  *zap.Logger
}

// NewQuotaService creates a new QuotaService
func NewQuotaService(users identity.UserRepository, ledgers quota.LedgerRepository, logger *zap.Logger) *QuotaService {
	return &QuotaService{
		users:   users,
		ledgers: ledgers,
		logger:  logger,
	}
}

// Status returns the user's quota position for the current billing period.
// usedPosts includes pending reservations, so remaining reflects what an
// enqueue right now could actually get.
func (s *QuotaService) Status(ctx context.Context, userID uuid.UUID) (*QuotaStatusDTO, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	ledger, err := s.ledgers.Status(ctx, user.ID, user.Tier, user.BillingCycleStart, time.Now())
	if err != nil {
		return nil, err
	}

	return &QuotaStatusDTO{
		UserID:      user.ID,
		Tier:        user.Tier.String(),
		Quota:       ledger.Quota,
		UsedPosts:   ledger.UsedPosts,
		Remaining:   ledger.Remaining(),
		PeriodStart: ledger.PeriodStart,
		PeriodEnd:   ledger.PeriodEnd(),
	}, nil
}
