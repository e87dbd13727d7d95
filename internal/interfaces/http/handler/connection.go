package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/postpilot/backend/internal/application/publishing"
	"github.com/postpilot/backend/internal/domain/social"
)

// ConnectionHandler handles platform connection endpoints
type ConnectionHandler struct {
	BaseHandler
	connections *publishing.ConnectionService
}

// NewConnectionHandler creates a new ConnectionHandler
func NewConnectionHandler(connections *publishing.ConnectionService) *ConnectionHandler {
	return &ConnectionHandler{connections: connections}
}

// List returns the caller's platform connections
func (h *ConnectionHandler) List(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	conns, err := h.connections.ListConnections(c.Request.Context(), userID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, conns)
}

// Invalidate deactivates the caller's connection to one platform
func (h *ConnectionHandler) Invalidate(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	platform := social.Platform(c.Param("platform"))
	if !platform.IsValid() {
		h.BadRequest(c, "Unknown platform")
		return
	}

	if err := h.connections.Invalidate(c.Request.Context(), userID, platform); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// RegisterRoutes registers connection routes
func (h *ConnectionHandler) RegisterRoutes(rg *gin.RouterGroup) {
	conns := rg.Group("/connections")
	{
		conns.GET("", h.List)
		conns.DELETE("/:platform", h.Invalidate)
	}
}
