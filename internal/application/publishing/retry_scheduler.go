package publishing

import (
	"math/rand"
	"sync"
	"time"
)

// RetryConfig tunes the backoff policy for retryable publish failures
type RetryConfig struct {
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	MaxAttempts    int
	JitterFraction float64
}

// DefaultRetryConfig returns default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		BaseDelay:      10 * time.Second,
		MaxDelay:       15 * time.Minute,
		MaxAttempts:    5,
		JitterFraction: 0.10,
	}
}

// RetryScheduler computes when a failed entry gets its next attempt:
// exponential backoff capped at MaxDelay, with jitter so entries failing
// together do not retry together. Rate-limited failures carrying a
// platform-supplied delay never retry earlier than that delay.
type RetryScheduler struct {
	config RetryConfig

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewRetryScheduler creates a new RetryScheduler
func NewRetryScheduler(config RetryConfig) *RetryScheduler {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultRetryConfig().MaxAttempts
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = DefaultRetryConfig().BaseDelay
	}
	if config.MaxDelay < config.BaseDelay {
		config.MaxDelay = DefaultRetryConfig().MaxDelay
	}
	return &RetryScheduler{
		config: config,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// MaxAttempts returns the attempt budget before an entry is dead-lettered
func (s *RetryScheduler) MaxAttempts() int {
	return s.config.MaxAttempts
}

// Exhausted reports whether the given attempt count used up the budget
func (s *RetryScheduler) Exhausted(attempts int) bool {
	return attempts >= s.config.MaxAttempts
}

// Backoff returns the delay before the given attempt number, without
// jitter. Attempt 1 is the first retry.
func (s *RetryScheduler) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := s.config.BaseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= s.config.MaxDelay {
			return s.config.MaxDelay
		}
	}
	if delay > s.config.MaxDelay {
		return s.config.MaxDelay
	}
	return delay
}

// NextAttemptAt returns when the given retry attempt should run.
// retryAfter is the platform's throttle hint and acts as a floor: jittered
// backoff may push the attempt later, never earlier.
func (s *RetryScheduler) NextAttemptAt(now time.Time, attempt int, retryAfter time.Duration) time.Time {
	delay := s.jitter(s.Backoff(attempt))
	if retryAfter > delay {
		delay = retryAfter
	}
	return now.Add(delay)
}

// jitter spreads the delay by ±JitterFraction
func (s *RetryScheduler) jitter(delay time.Duration) time.Duration {
	if s.config.JitterFraction <= 0 {
		return delay
	}
	s.mu.Lock()
	f := s.rnd.Float64()
	s.mu.Unlock()

	spread := 1 + s.config.JitterFraction*(2*f-1)
	return time.Duration(float64(delay) * spread)
}
