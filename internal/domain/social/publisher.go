package social

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrPlatformNotConfigured means no adapter is registered for the platform
	ErrPlatformNotConfigured = errors.New("social: platform not configured")
)

// ---------------------------------------------------------------------------
// Publish error taxonomy
// ---------------------------------------------------------------------------

// ErrorKind classifies a publish failure. The dispatcher routes entries by
// kind: retryable kinds go back through the scheduler, the rest settle the
// entry terminally.
type ErrorKind string

const (
	// ErrorRateLimited means the platform throttled the call; retry after
	// the platform-supplied delay
	ErrorRateLimited ErrorKind = "RATE_LIMITED"
	// ErrorAuthExpired means the token was rejected; refresh once, then
	// fail the entry and flag the connection for re-authorization
	ErrorAuthExpired ErrorKind = "AUTH_EXPIRED"
	// ErrorValidation means the platform rejected the content itself
	ErrorValidation ErrorKind = "VALIDATION"
	// ErrorTransient covers timeouts and 5xx responses
	ErrorTransient ErrorKind = "TRANSIENT"
	// ErrorFatal covers everything that retrying cannot fix
	ErrorFatal ErrorKind = "FATAL"
)

// IsValid returns true if the kind is a known error kind
func (k ErrorKind) IsValid() bool {
	switch k {
	case ErrorRateLimited, ErrorAuthExpired, ErrorValidation, ErrorTransient, ErrorFatal:
		return true
	}
	return false
}

// Retryable returns true when the dispatcher should schedule another attempt
func (k ErrorKind) Retryable() bool {
	return k == ErrorRateLimited || k == ErrorTransient
}

// PublishError is the classified failure an adapter returns. StatusCode is
// the upstream HTTP status when one was received; RetryAfter carries the
// platform's throttle hint for RATE_LIMITED failures.
type PublishError struct {
	Platform   Platform
	Kind       ErrorKind
	Message    string
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

// Error implements the error interface
func (e *PublishError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s publish failed (%s, status %d): %s", e.Platform, e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s publish failed (%s): %s", e.Platform, e.Kind, e.Message)
}

// Unwrap returns the underlying cause
func (e *PublishError) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt may succeed
func (e *PublishError) Retryable() bool {
	return e.Kind.Retryable()
}

// NewPublishError builds a classified publish failure
func NewPublishError(platform Platform, kind ErrorKind, message string) *PublishError {
	return &PublishError{Platform: platform, Kind: kind, Message: message}
}

// ClassifyPublishError extracts the PublishError from an adapter error
// chain. Unclassified errors (network failures surfaced raw, programming
// mistakes) are treated as TRANSIENT so a flaky wrapper never kills an
// entry outright.
func ClassifyPublishError(platform Platform, err error) *PublishError {
	var pubErr *PublishError
	if errors.As(err, &pubErr) {
		return pubErr
	}
	return &PublishError{
		Platform: platform,
		Kind:     ErrorTransient,
		Message:  err.Error(),
		Err:      err,
	}
}

// ---------------------------------------------------------------------------
// Publisher port
// ---------------------------------------------------------------------------

// PublishRequest carries everything an adapter needs for one publish call.
// AccessToken is plaintext, fetched from the token store just before the
// call; it must never be persisted or logged.
type PublishRequest struct {
	AccessToken       string
	ExternalAccountID string
	Content           Content
	IdempotencyKey    string
}

// PublishResult is the platform's acknowledgement of a published post
type PublishResult struct {
	PlatformPostID string
	PostedAt       time.Time
}

// Publisher is the port interface for one platform's publish API. It is
// defined in the domain layer; concrete adapters live in the infrastructure
// layer. Implementations classify every failure as a *PublishError.
type Publisher interface {
	// Platform returns the platform this adapter publishes to
	Platform() Platform

	// Publish creates the post on the platform and returns its id
	Publish(ctx context.Context, req *PublishRequest) (*PublishResult, error)
}

// PublisherRegistry resolves the adapter for a platform
type PublisherRegistry interface {
	// Get returns the adapter for the platform, or ErrPlatformNotConfigured
	Get(platform Platform) (Publisher, error)

	// List returns every registered adapter in lane order
	List() []Publisher
}
