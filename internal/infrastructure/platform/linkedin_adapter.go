package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/postpilot/backend/internal/domain/social"
)

// LinkedInAdapter implements the Publisher interface for LinkedIn
type LinkedInAdapter struct {
	config     *Config
	httpClient *http.Client
}

// NewLinkedInAdapter creates a new LinkedIn adapter with the given configuration
func NewLinkedInAdapter(config *Config) (*LinkedInAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &LinkedInAdapter{
		config: config,
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
	}, nil
}

// Platform returns the platform this adapter publishes to
func (a *LinkedInAdapter) Platform() social.Platform {
	return social.PlatformLinkedIn
}

// linkedinShareRequest is the UGC post payload
type linkedinShareRequest struct {
	Author          string               `json:"author"`
	LifecycleState  string               `json:"lifecycleState"`
	SpecificContent linkedinShareContent `json:"specificContent"`
	Visibility      map[string]string    `json:"visibility"`
}

type linkedinShareContent struct {
	ShareContent linkedinShare `json:"com.linkedin.ugc.ShareContent"`
}

type linkedinShare struct {
	ShareCommentary    linkedinText    `json:"shareCommentary"`
	ShareMediaCategory string          `json:"shareMediaCategory"`
	Media              []linkedinMedia `json:"media,omitempty"`
}

type linkedinText struct {
	Text string `json:"text"`
}

type linkedinMedia struct {
	Status      string `json:"status"`
	OriginalURL string `json:"originalUrl"`
}

// linkedinErrorResponse is the API error envelope
type linkedinErrorResponse struct {
	Message          string `json:"message"`
	ServiceErrorCode int    `json:"serviceErrorCode"`
	Status           int    `json:"status"`
}

// Publish creates a UGC post and returns its urn
func (a *LinkedInAdapter) Publish(ctx context.Context, req *social.PublishRequest) (*social.PublishResult, error) {
	category := "NONE"
	var media []linkedinMedia
	for _, m := range req.Content.Media {
		switch m.Kind {
		case social.MediaKindImage:
			category = "IMAGE"
		case social.MediaKindVideo:
			category = "VIDEO"
		}
		media = append(media, linkedinMedia{Status: "READY", OriginalURL: m.URL})
	}

	payload := linkedinShareRequest{
		Author:         "urn:li:person:" + req.ExternalAccountID,
		LifecycleState: "PUBLISHED",
		SpecificContent: linkedinShareContent{
			ShareContent: linkedinShare{
				ShareCommentary:    linkedinText{Text: req.Content.Text},
				ShareMediaCategory: category,
				Media:              media,
			},
		},
		Visibility: map[string]string{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, social.NewPublishError(social.PlatformLinkedIn, social.ErrorFatal,
			fmt.Sprintf("failed to marshal request: %v", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.config.BaseURL+"/ugcPosts", bytes.NewReader(body))
	if err != nil {
		return nil, social.NewPublishError(social.PlatformLinkedIn, social.ErrorFatal,
			fmt.Sprintf("failed to create request: %v", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+req.AccessToken)
	httpReq.Header.Set("X-Restli-Protocol-Version", "2.0.0")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, transportError(social.PlatformLinkedIn, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, transportError(social.PlatformLinkedIn, err)
	}

	if resp.StatusCode >= 400 {
		var envelope linkedinErrorResponse
		message := ""
		if json.Unmarshal(respBody, &envelope) == nil {
			message = envelope.Message
		}
		return nil, classifyStatus(social.PlatformLinkedIn, resp.StatusCode, resp.Header, message)
	}

	// The created urn comes back in a response header
	postID := resp.Header.Get("X-RestLi-Id")
	if postID == "" {
		var created struct {
			ID string `json:"id"`
		}
		if json.Unmarshal(respBody, &created) == nil {
			postID = created.ID
		}
	}
	if postID == "" {
		return nil, social.NewPublishError(social.PlatformLinkedIn, social.ErrorTransient,
			"response carried no post urn")
	}

	return &social.PublishResult{
		PlatformPostID: postID,
		PostedAt:       time.Now(),
	}, nil
}

var _ social.Publisher = (*LinkedInAdapter)(nil)
