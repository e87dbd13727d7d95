package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/postpilot/backend/internal/application/publishing"
	"github.com/postpilot/backend/internal/interfaces/http/dto"
)

// QuotaHandler handles quota API endpoints
type QuotaHandler struct {
	BaseHandler
	quota *publishing.QuotaService
}

// NewQuotaHandler creates a new QuotaHandler
func NewQuotaHandler(quota *publishing.QuotaService) *QuotaHandler {
	return &QuotaHandler{quota: quota}
}

// Status returns the quota position for a user. Callers may only look up
// their own quota.
func (h *QuotaHandler) Status(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	var req dto.IDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		h.BadRequest(c, "Invalid user ID")
		return
	}
	if uuid.MustParse(req.ID) != userID {
		h.Error(c, http.StatusForbidden, dto.ErrCodeForbidden, "Cannot view another user's quota")
		return
	}

	status, err := h.quota.Status(c.Request.Context(), userID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, status)
}

// RegisterRoutes registers quota routes
func (h *QuotaHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/quota/status/:id", h.Status)
}
