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

// maxYouTubeTitleLength is the platform's hard title limit
const maxYouTubeTitleLength = 100

// YouTubeAdapter implements the Publisher interface for YouTube. The video
// asset is referenced by URL; ingestion happens server-side.
type YouTubeAdapter struct {
	config     *Config
	httpClient *http.Client
}

// NewYouTubeAdapter creates a new YouTube adapter with the given configuration
func NewYouTubeAdapter(config *Config) (*YouTubeAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &YouTubeAdapter{
		config: config,
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
	}, nil
}

// Platform returns the platform this adapter publishes to
func (a *YouTubeAdapter) Platform() social.Platform {
	return social.PlatformYouTube
}

// youtubeVideoRequest is the videos.insert payload
type youtubeVideoRequest struct {
	Snippet youtubeSnippet `json:"snippet"`
	Status  youtubeStatus  `json:"status"`
	FileURL string         `json:"fileUrl"`
}

type youtubeSnippet struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type youtubeStatus struct {
	PrivacyStatus string `json:"privacyStatus"`
}

// youtubeVideoResponse is the videos.insert response envelope
type youtubeVideoResponse struct {
	ID    string `json:"id"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Publish uploads a video by reference and returns its id
func (a *YouTubeAdapter) Publish(ctx context.Context, req *social.PublishRequest) (*social.PublishResult, error) {
	var videoURL string
	for _, m := range req.Content.Media {
		if m.Kind == social.MediaKindVideo {
			videoURL = m.URL
			break
		}
	}
	if videoURL == "" {
		return nil, social.NewPublishError(social.PlatformYouTube, social.ErrorValidation,
			"a video is required")
	}

	title := req.Content.Text
	description := ""
	if runes := []rune(title); len(runes) > maxYouTubeTitleLength {
		title = string(runes[:maxYouTubeTitleLength])
		description = req.Content.Text
	}

	payload := youtubeVideoRequest{
		Snippet: youtubeSnippet{Title: title, Description: description},
		Status:  youtubeStatus{PrivacyStatus: "public"},
		FileURL: videoURL,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, social.NewPublishError(social.PlatformYouTube, social.ErrorFatal,
			fmt.Sprintf("failed to marshal request: %v", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.config.BaseURL+"/videos?part=snippet,status", bytes.NewReader(body))
	if err != nil {
		return nil, social.NewPublishError(social.PlatformYouTube, social.ErrorFatal,
			fmt.Sprintf("failed to create request: %v", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+req.AccessToken)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, transportError(social.PlatformYouTube, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, transportError(social.PlatformYouTube, err)
	}

	var envelope youtubeVideoResponse
	if resp.StatusCode >= 400 {
		message := ""
		if json.Unmarshal(respBody, &envelope) == nil && envelope.Error != nil {
			message = envelope.Error.Message
		}
		return nil, classifyStatus(social.PlatformYouTube, resp.StatusCode, resp.Header, message)
	}

	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, social.NewPublishError(social.PlatformYouTube, social.ErrorTransient,
			fmt.Sprintf("failed to parse response: %v", err))
	}
	if envelope.ID == "" {
		return nil, social.NewPublishError(social.PlatformYouTube, social.ErrorTransient,
			"response carried no video id")
	}

	return &social.PublishResult{
		PlatformPostID: envelope.ID,
		PostedAt:       time.Now(),
	}, nil
}

var _ social.Publisher = (*YouTubeAdapter)(nil)
