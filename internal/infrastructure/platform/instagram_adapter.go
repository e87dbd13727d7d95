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

// InstagramAdapter implements the Publisher interface for Instagram.
// Publishing is a two-step flow: create a media container, then publish it.
// A failure in either step classifies the same way; the container is
// abandoned server-side when the publish step never happens.
type InstagramAdapter struct {
	config     *Config
	httpClient *http.Client
}

// NewInstagramAdapter creates a new Instagram adapter with the given configuration
func NewInstagramAdapter(config *Config) (*InstagramAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &InstagramAdapter{
		config: config,
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
	}, nil
}

// Platform returns the platform this adapter publishes to
func (a *InstagramAdapter) Platform() social.Platform {
	return social.PlatformInstagram
}

// instagramContainerRequest creates a media container
type instagramContainerRequest struct {
	Caption  string `json:"caption,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
	VideoURL string `json:"video_url,omitempty"`
}

// instagramPublishRequest publishes a previously created container
type instagramPublishRequest struct {
	CreationID string `json:"creation_id"`
}

// instagramResponse is the Graph API response envelope shared by both steps
type instagramResponse struct {
	ID    string `json:"id"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Publish creates and publishes a media container, returning the post id
func (a *InstagramAdapter) Publish(ctx context.Context, req *social.PublishRequest) (*social.PublishResult, error) {
	container := instagramContainerRequest{Caption: req.Content.Text}
	for _, m := range req.Content.Media {
		switch m.Kind {
		case social.MediaKindImage:
			container.ImageURL = m.URL
		case social.MediaKindVideo:
			container.VideoURL = m.URL
		}
	}

	containerURL := fmt.Sprintf("%s/%s/media", a.config.BaseURL, req.ExternalAccountID)
	creation, err := a.doRequest(ctx, containerURL, req.AccessToken, container)
	if err != nil {
		return nil, err
	}

	publishURL := fmt.Sprintf("%s/%s/media_publish", a.config.BaseURL, req.ExternalAccountID)
	published, err := a.doRequest(ctx, publishURL, req.AccessToken, instagramPublishRequest{
		CreationID: creation.ID,
	})
	if err != nil {
		return nil, err
	}

	return &social.PublishResult{
		PlatformPostID: published.ID,
		PostedAt:       time.Now(),
	}, nil
}

// doRequest performs one Graph API call and decodes the shared envelope
func (a *InstagramAdapter) doRequest(ctx context.Context, url, accessToken string, payload any) (*instagramResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, social.NewPublishError(social.PlatformInstagram, social.ErrorFatal,
			fmt.Sprintf("failed to marshal request: %v", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, social.NewPublishError(social.PlatformInstagram, social.ErrorFatal,
			fmt.Sprintf("failed to create request: %v", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, transportError(social.PlatformInstagram, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, transportError(social.PlatformInstagram, err)
	}

	var envelope instagramResponse
	if resp.StatusCode >= 400 {
		message := ""
		if json.Unmarshal(respBody, &envelope) == nil && envelope.Error != nil {
			message = envelope.Error.Message
		}
		return nil, classifyStatus(social.PlatformInstagram, resp.StatusCode, resp.Header, message)
	}

	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, social.NewPublishError(social.PlatformInstagram, social.ErrorTransient,
			fmt.Sprintf("failed to parse response: %v", err))
	}
	if envelope.ID == "" {
		return nil, social.NewPublishError(social.PlatformInstagram, social.ErrorTransient,
			"response carried no media id")
	}
	return &envelope, nil
}

var _ social.Publisher = (*InstagramAdapter)(nil)
