package identity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/postpilot/backend/internal/domain/shared"
)

// Tier is the subscription tier a user is billed on. Owned by the billing
// collaborator; the core only reads it to derive posting quotas.
type Tier string

const (
	TierStarter      Tier = "starter"
	TierGrowth       Tier = "growth"
	TierProfessional Tier = "professional"
)

// String returns the string representation of the tier
func (t Tier) String() string {
	return string(t)
}

// IsValid returns true if the tier is a known subscription tier
func (t Tier) IsValid() bool {
	switch t {
	case TierStarter, TierGrowth, TierProfessional:
		return true
	}
	return false
}

// PostQuota returns the number of posts the tier allows per 30-day billing
// cycle.
func (t Tier) PostQuota() int {
	switch t {
	case TierStarter:
		return 12
	case TierGrowth:
		return 52
	case TierProfessional:
		return 150
	default:
		return 0
	}
}

// User is the account-system entity the core reads. Only the billing
// webhook mutates tier and billing-cycle fields; everything else treats the
// row as read-only.
type User struct {
	shared.BaseEntity
	Email             string
	Tier              Tier
	BillingCycleStart time.Time
	StripeCustomerID  string
}

// TableName returns the database table name for GORM
func (User) TableName() string {
	return "users"
}

// SetTier updates the subscription tier
func (u *User) SetTier(tier Tier) error {
	if !tier.IsValid() {
		return shared.NewDomainError("INVALID_TIER", "Unknown subscription tier")
	}
	u.Tier = tier
	u.UpdatedAt = time.Now()
	return nil
}

// ResetBillingCycle anchors a new billing cycle at the given instant
func (u *User) ResetBillingCycle(start time.Time) {
	u.BillingCycleStart = start
	u.UpdatedAt = time.Now()
}

// UserRepository defines persistence for users
type UserRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
	FindByStripeCustomerID(ctx context.Context, customerID string) (*User, error)
	Save(ctx context.Context, user *User) error
}
