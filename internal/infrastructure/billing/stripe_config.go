package billing

import (
	"fmt"
	"strings"
)

// StripeConfig holds configuration for Stripe integration
type StripeConfig struct {
	// SecretKey is the Stripe secret API key (sk_test_xxx or sk_live_xxx)
	SecretKey string `json:"secret_key" mapstructure:"secret_key"`

	// WebhookSecret is the secret for verifying webhook signatures
	WebhookSecret string `json:"webhook_secret" mapstructure:"webhook_secret"`

	// IsTestMode indicates if using Stripe test mode
	IsTestMode bool `json:"is_test_mode" mapstructure:"is_test_mode"`

	// PriceIDs maps subscription tiers to Stripe Price IDs
	PriceIDs map[string]string `json:"price_ids" mapstructure:"price_ids"`
}

// DefaultStripeConfig returns a default configuration for development
func DefaultStripeConfig() *StripeConfig {
	return &StripeConfig{
		IsTestMode: true,
		PriceIDs: map[string]string{
			"starter":      "price_starter_monthly",
			"growth":       "price_growth_monthly",
			"professional": "price_professional_monthly",
		},
	}
}

// Validate validates the Stripe configuration
func (c *StripeConfig) Validate() error {
	if c.SecretKey == "" {
		return fmt.Errorf("stripe: secret key is required")
	}
	if c.IsTestMode {
		if !strings.HasPrefix(c.SecretKey, "sk_test") {
			return fmt.Errorf("stripe: test mode enabled but secret key is not a test key")
		}
	} else {
		if !strings.HasPrefix(c.SecretKey, "sk_live") {
			return fmt.Errorf("stripe: live mode enabled but secret key is not a live key")
		}
	}
	if c.WebhookSecret == "" {
		return fmt.Errorf("stripe: webhook secret is required")
	}
	return nil
}

// TierForPriceID resolves the subscription tier a Stripe price belongs to
func (c *StripeConfig) TierForPriceID(priceID string) (string, bool) {
	for tier, id := range c.PriceIDs {
		if id == priceID {
			return tier, true
		}
	}
	return "", false
}
