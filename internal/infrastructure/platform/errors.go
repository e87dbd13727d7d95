package platform

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/postpilot/backend/internal/domain/social"
)

// maxResponseSize limits response bodies to prevent memory exhaustion
const maxResponseSize = 4 * 1024 * 1024 // 4MB

// classifyStatus maps an upstream HTTP status to the publish error taxonomy.
// 429 carries the platform's Retry-After hint when one was sent; 401 means
// the token was rejected; 400 and 422 are content the platform refused;
// other 4xx responses are not fixable by retrying. Everything 5xx and 408
// is transient.
func classifyStatus(platform social.Platform, status int, header http.Header, message string) *social.PublishError {
	kind := social.ErrorFatal
	var retryAfter time.Duration

	switch {
	case status == http.StatusTooManyRequests:
		kind = social.ErrorRateLimited
		retryAfter = parseRetryAfter(header.Get("Retry-After"), time.Now())
	case status == http.StatusUnauthorized:
		kind = social.ErrorAuthExpired
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		kind = social.ErrorValidation
	case status == http.StatusRequestTimeout || status >= 500:
		kind = social.ErrorTransient
	}

	if message == "" {
		message = http.StatusText(status)
	}

	return &social.PublishError{
		Platform:   platform,
		Kind:       kind,
		Message:    message,
		StatusCode: status,
		RetryAfter: retryAfter,
	}
}

// transportError classifies a failed round trip. Cancelled contexts keep
// their cancellation; everything else (timeouts, connection resets, DNS) is
// transient.
func transportError(platform social.Platform, err error) *social.PublishError {
	return &social.PublishError{
		Platform: platform,
		Kind:     social.ErrorTransient,
		Message:  fmt.Sprintf("request failed: %v", err),
		Err:      err,
	}
}

// parseRetryAfter reads a Retry-After header value, which is either a delay
// in seconds or an HTTP date. Unparseable values yield zero so the backoff
// schedule applies unmodified.
func parseRetryAfter(value string, now time.Time) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
