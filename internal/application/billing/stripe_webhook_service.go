package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
	"go.uber.org/zap"

	"github.com/postpilot/backend/internal/domain/identity"
	"github.com/postpilot/backend/internal/domain/shared"
	"github.com/postpilot/backend/internal/infrastructure/billing"
)

// StripeWebhookService applies Stripe subscription events to user accounts.
// Tier changes take effect on the quota ledger's next reservation; the new
// billing anchor opens a fresh quota period.
type StripeWebhookService struct {
	config *billing.StripeConfig
	users  identity.UserRepository
	logger *zap.Logger
}

// NewStripeWebhookService creates a new StripeWebhookService
func NewStripeWebhookService(config *billing.StripeConfig, users identity.UserRepository, logger *zap.Logger) *StripeWebhookService {
	return &StripeWebhookService{
		config: config,
		users:  users,
		logger: logger,
	}
}

// WebhookResult contains the result of processing a webhook
type WebhookResult struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Processed bool   `json:"processed"`
	Message   string `json:"message,omitempty"`
}

// ProcessWebhook verifies and processes a Stripe webhook event
func (s *StripeWebhookService) ProcessWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	event, err := webhook.ConstructEvent(payload, signature, s.config.WebhookSecret)
	if err != nil {
		s.logger.Error("Failed to verify webhook signature", zap.Error(err))
		return nil, fmt.Errorf("webhook signature verification failed: %w", err)
	}

	s.logger.Info("Processing Stripe webhook event",
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)))

	result := &WebhookResult{
		EventID:   event.ID,
		EventType: string(event.Type),
		Processed: true,
	}

	switch event.Type {
	case "customer.subscription.created", "customer.subscription.updated":
		err = s.handleSubscriptionChanged(ctx, event)
	case "customer.subscription.deleted":
		err = s.handleSubscriptionDeleted(ctx, event)
	case "invoice.paid":
		err = s.handleInvoicePaid(ctx, event)
	default:
		s.logger.Debug("Unhandled webhook event type",
			zap.String("event_type", string(event.Type)))
		result.Message = "Event type not handled"
	}

	if err != nil {
		s.logger.Error("Failed to process webhook event",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
		result.Processed = false
		result.Message = err.Error()
		return result, err
	}

	return result, nil
}

// handleSubscriptionChanged applies tier and billing-anchor updates
func (s *StripeWebhookService) handleSubscriptionChanged(ctx context.Context, event stripe.Event) error {
	var subscription stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &subscription); err != nil {
		return fmt.Errorf("failed to unmarshal subscription: %w", err)
	}

	user, err := s.findUser(ctx, &subscription)
	if err != nil || user == nil {
		return err
	}

	tier, ok := s.resolveTier(&subscription)
	if ok && tier != user.Tier {
		if err := user.SetTier(tier); err != nil {
			s.logger.Warn("Failed to set user tier",
				zap.String("tier", tier.String()),
				zap.Error(err))
		}
	}

	if subscription.CurrentPeriodStart > 0 {
		user.ResetBillingCycle(time.Unix(subscription.CurrentPeriodStart, 0).UTC())
	}

	if err := s.users.Save(ctx, user); err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}

	s.logger.Info("Subscription change processed",
		zap.String("user_id", user.ID.String()),
		zap.String("subscription_id", subscription.ID),
		zap.String("tier", user.Tier.String()))
	return nil
}

// handleSubscriptionDeleted downgrades the user to the entry tier
func (s *StripeWebhookService) handleSubscriptionDeleted(ctx context.Context, event stripe.Event) error {
	var subscription stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &subscription); err != nil {
		return fmt.Errorf("failed to unmarshal subscription: %w", err)
	}

	user, err := s.findUser(ctx, &subscription)
	if err != nil || user == nil {
		return err
	}

	if err := user.SetTier(identity.TierStarter); err != nil {
		s.logger.Warn("Failed to downgrade user tier", zap.Error(err))
	}
	if err := s.users.Save(ctx, user); err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}

	s.logger.Info("Subscription deletion processed",
		zap.String("user_id", user.ID.String()),
		zap.String("subscription_id", subscription.ID))
	return nil
}

// handleInvoicePaid anchors the next billing cycle on the invoice period
func (s *StripeWebhookService) handleInvoicePaid(ctx context.Context, event stripe.Event) error {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return fmt.Errorf("failed to unmarshal invoice: %w", err)
	}

	customerID := ""
	if invoice.Customer != nil {
		customerID = invoice.Customer.ID
	}
	if customerID == "" || invoice.Subscription == nil {
		return nil
	}

	user, err := s.users.FindByStripeCustomerID(ctx, customerID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			// Webhooks may arrive before account setup completes, or for
			// customers not in our system; acknowledge to stop Stripe
			// retries.
			s.logger.Warn("User not found for Stripe customer",
				zap.String("customer_id", customerID))
			return nil
		}
		return fmt.Errorf("failed to find user: %w", err)
	}

	if invoice.PeriodStart > 0 {
		user.ResetBillingCycle(time.Unix(invoice.PeriodStart, 0).UTC())
		if err := s.users.Save(ctx, user); err != nil {
			return fmt.Errorf("failed to save user: %w", err)
		}
	}

	s.logger.Info("Invoice paid processed",
		zap.String("user_id", user.ID.String()),
		zap.String("invoice_id", invoice.ID))
	return nil
}

// findUser resolves the subscription's customer to a user account. A nil
// user with nil error means the customer is unknown and the event should be
// acknowledged anyway.
func (s *StripeWebhookService) findUser(ctx context.Context, subscription *stripe.Subscription) (*identity.User, error) {
	customerID := ""
	if subscription.Customer != nil {
		customerID = subscription.Customer.ID
	}
	if customerID == "" {
		s.logger.Warn("Subscription has no customer ID, skipping",
			zap.String("subscription_id", subscription.ID))
		return nil, nil
	}

	user, err := s.users.FindByStripeCustomerID(ctx, customerID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.logger.Warn("User not found for Stripe customer",
				zap.String("customer_id", customerID))
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// resolveTier extracts the subscription tier from metadata first and falls
// back to the configured price mapping.
func (s *StripeWebhookService) resolveTier(subscription *stripe.Subscription) (identity.Tier, bool) {
	if raw, ok := subscription.Metadata["tier"]; ok {
		tier := identity.Tier(raw)
		if tier.IsValid() {
			return tier, true
		}
		s.logger.Warn("Unknown tier in subscription metadata", zap.String("tier", raw))
	}

	if subscription.Items != nil {
		for _, item := range subscription.Items.Data {
			if item.Price == nil {
				continue
			}
			if raw, ok := s.config.TierForPriceID(item.Price.ID); ok {
				tier := identity.Tier(raw)
				if tier.IsValid() {
					return tier, true
				}
			}
		}
	}
	return "", false
}
