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

// FacebookAdapter implements the Publisher interface for Facebook pages
type FacebookAdapter struct {
	config     *Config
	httpClient *http.Client
}

// NewFacebookAdapter creates a new Facebook adapter with the given configuration
func NewFacebookAdapter(config *Config) (*FacebookAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &FacebookAdapter{
		config: config,
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
	}, nil
}

// Platform returns the platform this adapter publishes to
func (a *FacebookAdapter) Platform() social.Platform {
	return social.PlatformFacebook
}

// facebookPostRequest is the page feed payload. Media is attached by URL;
// the Graph API fetches the asset itself.
type facebookPostRequest struct {
	Message       string   `json:"message,omitempty"`
	AttachedMedia []string `json:"attached_media,omitempty"`
}

// facebookPostResponse is the Graph API response envelope
type facebookPostResponse struct {
	ID    string `json:"id"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Publish creates a post on the user's page feed and returns its id
func (a *FacebookAdapter) Publish(ctx context.Context, req *social.PublishRequest) (*social.PublishResult, error) {
	payload := facebookPostRequest{Message: req.Content.Text}
	for _, m := range req.Content.Media {
		payload.AttachedMedia = append(payload.AttachedMedia, m.URL)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, social.NewPublishError(social.PlatformFacebook, social.ErrorFatal,
			fmt.Sprintf("failed to marshal request: %v", err))
	}

	url := fmt.Sprintf("%s/%s/feed", a.config.BaseURL, req.ExternalAccountID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, social.NewPublishError(social.PlatformFacebook, social.ErrorFatal,
			fmt.Sprintf("failed to create request: %v", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+req.AccessToken)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, transportError(social.PlatformFacebook, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, transportError(social.PlatformFacebook, err)
	}

	var envelope facebookPostResponse
	if resp.StatusCode >= 400 {
		message := ""
		if json.Unmarshal(respBody, &envelope) == nil && envelope.Error != nil {
			message = envelope.Error.Message
		}
		return nil, classifyStatus(social.PlatformFacebook, resp.StatusCode, resp.Header, message)
	}

	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, social.NewPublishError(social.PlatformFacebook, social.ErrorTransient,
			fmt.Sprintf("failed to parse response: %v", err))
	}
	if envelope.ID == "" {
		return nil, social.NewPublishError(social.PlatformFacebook, social.ErrorTransient,
			"response carried no post id")
	}

	return &social.PublishResult{
		PlatformPostID: envelope.ID,
		PostedAt:       time.Now(),
	}, nil
}

var _ social.Publisher = (*FacebookAdapter)(nil)
