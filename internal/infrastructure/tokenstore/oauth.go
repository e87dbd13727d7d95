package tokenstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/postpilot/backend/internal/domain/social"
)

// maxTokenResponseSize bounds IdP response bodies
const maxTokenResponseSize = 1 * 1024 * 1024 // 1MB

// OAuthEndpoint holds one platform's token-refresh settings
type OAuthEndpoint struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
}

// TokenResponse is the token endpoint's answer to a refresh grant
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// RefreshError is a failed refresh grant. Revoked reports whether the IdP
// rejected the grant itself, meaning the refresh token is dead and the user
// must re-authorize.
type RefreshError struct {
	Platform   social.Platform
	StatusCode int
	Code       string
	Message    string
}

// Error implements the error interface
func (e *RefreshError) Error() string {
	return fmt.Sprintf("%s token refresh failed (status %d): %s %s",
		e.Platform, e.StatusCode, e.Code, e.Message)
}

// Revoked reports whether the refresh token itself was rejected
func (e *RefreshError) Revoked() bool {
	return e.StatusCode == http.StatusBadRequest || e.StatusCode == http.StatusUnauthorized
}

// OAuthRefresher exchanges a refresh token for a fresh token pair
type OAuthRefresher interface {
	Refresh(ctx context.Context, platform social.Platform, refreshToken string) (*TokenResponse, error)
}

// HTTPRefresher performs standard refresh-token grants against each
// platform's token endpoint.
type HTTPRefresher struct {
	endpoints  map[social.Platform]OAuthEndpoint
	httpClient *http.Client
}

// NewHTTPRefresher creates a refresher for the configured endpoints
func NewHTTPRefresher(endpoints map[social.Platform]OAuthEndpoint, timeout time.Duration) *HTTPRefresher {
	return &HTTPRefresher{
		endpoints:  endpoints,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Refresh performs the refresh-token grant
func (r *HTTPRefresher) Refresh(ctx context.Context, platform social.Platform, refreshToken string) (*TokenResponse, error) {
	endpoint, ok := r.endpoints[platform]
	if !ok {
		return nil, social.ErrPlatformNotConfigured
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", endpoint.ClientID)
	form.Set("client_secret", endpoint.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.TokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("tokenstore: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tokenstore: refresh request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseSize))
	if err != nil {
		return nil, fmt.Errorf("tokenstore: failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var oauthErr struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
		}
		_ = json.Unmarshal(body, &oauthErr)
		return nil, &RefreshError{
			Platform:   platform,
			StatusCode: resp.StatusCode,
			Code:       oauthErr.Error,
			Message:    oauthErr.ErrorDescription,
		}
	}

	var token TokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("tokenstore: failed to parse token response: %w", err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("tokenstore: token response carried no access token")
	}
	return &token, nil
}

var _ OAuthRefresher = (*HTTPRefresher)(nil)
