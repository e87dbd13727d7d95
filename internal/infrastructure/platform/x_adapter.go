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

// XAdapter implements the Publisher interface for X (Twitter)
type XAdapter struct {
	config     *Config
	httpClient *http.Client
}

// NewXAdapter creates a new X adapter with the given configuration
func NewXAdapter(config *Config) (*XAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &XAdapter{
		config: config,
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
	}, nil
}

// Platform returns the platform this adapter publishes to
func (a *XAdapter) Platform() social.Platform {
	return social.PlatformX
}

// xTweetRequest is the create-tweet payload
type xTweetRequest struct {
	Text  string       `json:"text"`
	Media *xTweetMedia `json:"media,omitempty"`
}

type xTweetMedia struct {
	MediaURLs []string `json:"media_urls"`
}

// xTweetResponse is the create-tweet response envelope
type xTweetResponse struct {
	Data *struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// Publish creates a tweet and returns its id
func (a *XAdapter) Publish(ctx context.Context, req *social.PublishRequest) (*social.PublishResult, error) {
	payload := xTweetRequest{Text: req.Content.Text}
	if len(req.Content.Media) > 0 {
		media := &xTweetMedia{}
		for _, m := range req.Content.Media {
			media.MediaURLs = append(media.MediaURLs, m.URL)
		}
		payload.Media = media
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, social.NewPublishError(social.PlatformX, social.ErrorFatal,
			fmt.Sprintf("failed to marshal request: %v", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.config.BaseURL+"/tweets", bytes.NewReader(body))
	if err != nil {
		return nil, social.NewPublishError(social.PlatformX, social.ErrorFatal,
			fmt.Sprintf("failed to create request: %v", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+req.AccessToken)
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, transportError(social.PlatformX, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, transportError(social.PlatformX, err)
	}

	var envelope xTweetResponse
	if resp.StatusCode >= 400 {
		message := ""
		if json.Unmarshal(respBody, &envelope) == nil && envelope.Detail != "" {
			message = envelope.Detail
		}
		return nil, classifyStatus(social.PlatformX, resp.StatusCode, resp.Header, message)
	}

	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, social.NewPublishError(social.PlatformX, social.ErrorTransient,
			fmt.Sprintf("failed to parse response: %v", err))
	}
	if envelope.Data == nil || envelope.Data.ID == "" {
		return nil, social.NewPublishError(social.PlatformX, social.ErrorTransient,
			"response carried no tweet id")
	}

	return &social.PublishResult{
		PlatformPostID: envelope.Data.ID,
		PostedAt:       time.Now(),
	}, nil
}

var _ social.Publisher = (*XAdapter)(nil)
