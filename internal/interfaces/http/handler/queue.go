package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/postpilot/backend/internal/application/publishing"
	"github.com/postpilot/backend/internal/domain/social"
	"github.com/postpilot/backend/internal/interfaces/http/dto"
)

// QueueHandler handles queue API endpoints
type QueueHandler struct {
	BaseHandler
	enqueue *publishing.EnqueueService
	queue   *publishing.QueueService
}

// NewQueueHandler creates a new QueueHandler
func NewQueueHandler(enqueue *publishing.EnqueueService, queue *publishing.QueueService) *QueueHandler {
	return &QueueHandler{enqueue: enqueue, queue: queue}
}

// EnqueueRequest is the enqueue API payload
type EnqueueRequest struct {
	PostID    string         `json:"post_id" binding:"omitempty,uuid"`
	Platforms []string       `json:"platforms" binding:"required,min=1"`
	Content   ContentRequest `json:"content" binding:"required"`
}

// ContentRequest is the content portion of an enqueue payload
type ContentRequest struct {
	Text  string         `json:"text"`
	Media []MediaRequest `json:"media" binding:"omitempty,dive"`
}

// MediaRequest is one media reference in an enqueue payload
type MediaRequest struct {
	URL             string `json:"url" binding:"required,url"`
	Kind            string `json:"kind" binding:"required,oneof=image video"`
	Format          string `json:"format" binding:"required"`
	SizeBytes       int64  `json:"size_bytes" binding:"omitempty,min=0"`
	DurationSeconds int    `json:"duration_seconds" binding:"omitempty,min=0"`
	Width           int    `json:"width" binding:"omitempty,min=0"`
	Height          int    `json:"height" binding:"omitempty,min=0"`
}

// Enqueue accepts a post for asynchronous publishing. Admission is
// reported per platform: the call answers 202 as long as at least one lane
// was admitted; when every lane turned the post away the first rejection's
// code decides the status (quota exhaustion answers 429, validation 422).
func (h *QueueHandler) Enqueue(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	var req EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	cmd := publishing.EnqueueCommand{
		UserID:  userID,
		Content: toContent(req.Content),
	}
	if req.PostID != "" {
		cmd.PostID = uuid.MustParse(req.PostID)
	}
	for _, p := range req.Platforms {
		cmd.Platforms = append(cmd.Platforms, social.Platform(p))
	}

	result, err := h.enqueue.Enqueue(c.Request.Context(), cmd)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if rej := soleRejection(result); rej != nil {
		h.Error(c, dto.GetHTTPStatus(rej.Code), rej.Code, rej.Message)
		return
	}
	h.Accepted(c, result)
}

// soleRejection returns the rejection that should decide the response
// status when not a single lane admitted the post, nil otherwise.
func soleRejection(result *publishing.EnqueueResult) *publishing.RejectedEntry {
	if len(result.Accepted) > 0 || len(result.Rejected) == 0 {
		return nil
	}
	return &result.Rejected[0]
}

// GetEntry returns one of the caller's queue entries
func (h *QueueHandler) GetEntry(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	var req dto.IDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		h.BadRequest(c, "Invalid entry ID")
		return
	}

	entry, err := h.queue.GetEntry(c.Request.Context(), userID, uuid.MustParse(req.ID))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, entry)
}

// ListEntries returns the caller's entries, newest first
func (h *QueueHandler) ListEntries(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	var query struct {
		Limit int `form:"limit" binding:"omitempty,min=1,max=200"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	entries, err := h.queue.ListEntries(c.Request.Context(), userID, query.Limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, entries)
}

// CancelEntry withdraws one of the caller's entries and returns its quota
// slot
func (h *QueueHandler) CancelEntry(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	var req dto.IDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		h.BadRequest(c, "Invalid entry ID")
		return
	}

	entry, err := h.queue.CancelEntry(c.Request.Context(), userID, uuid.MustParse(req.ID))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, entry)
}

// Stats returns per-lane entry counts
func (h *QueueHandler) Stats(c *gin.Context) {
	stats, err := h.queue.Stats(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, stats)
}

// RegisterRoutes registers queue routes
func (h *QueueHandler) RegisterRoutes(rg *gin.RouterGroup) {
	queue := rg.Group("/queue")
	{
		queue.POST("/enqueue", h.Enqueue)
		queue.GET("/entries", h.ListEntries)
		queue.GET("/entry/:id", h.GetEntry)
		queue.DELETE("/entry/:id", h.CancelEntry)
		queue.GET("/stats", h.Stats)
	}
}

func toContent(req ContentRequest) social.Content {
	content := social.Content{Text: req.Text}
	for _, m := range req.Media {
		content.Media = append(content.Media, social.MediaRef{
			URL:       m.URL,
			Kind:      social.MediaKind(m.Kind),
			Format:    m.Format,
			SizeBytes: m.SizeBytes,
			Duration:  time.Duration(m.DurationSeconds) * time.Second,
			Width:     m.Width,
			Height:    m.Height,
		})
	}
	return content
}
