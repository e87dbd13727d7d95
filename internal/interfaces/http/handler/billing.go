package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/postpilot/backend/internal/application/billing"
	"github.com/postpilot/backend/internal/interfaces/http/dto"
)

// maxWebhookBodySize bounds Stripe webhook payloads
const maxWebhookBodySize = 64 * 1024

// BillingHandler handles Stripe webhook callbacks
type BillingHandler struct {
	BaseHandler
	webhooks *billing.StripeWebhookService
}

// NewBillingHandler creates a new BillingHandler
func NewBillingHandler(webhooks *billing.StripeWebhookService) *BillingHandler {
	return &BillingHandler{webhooks: webhooks}
}

// Webhook receives Stripe events. Signature verification happens inside the
// service; any failure is reported as 400 so Stripe retries with backoff.
func (h *BillingHandler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodySize))
	if err != nil {
		h.BadRequest(c, "Failed to read request body")
		return
	}

	signature := c.GetHeader("Stripe-Signature")
	if signature == "" {
		h.BadRequest(c, "Missing Stripe-Signature header")
		return
	}

	result, err := h.webhooks.ProcessWebhook(c.Request.Context(), payload, signature)
	if err != nil {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, "Webhook processing failed")
		return
	}
	h.Success(c, result)
}

// RegisterRoutes registers billing routes
func (h *BillingHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/billing/webhook", h.Webhook)
}
