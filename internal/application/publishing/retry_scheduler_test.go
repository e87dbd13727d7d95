package publishing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryScheduler_Backoff(t *testing.T) {
	s := NewRetryScheduler(RetryConfig{
		BaseDelay:   10 * time.Second,
		MaxDelay:    15 * time.Minute,
		MaxAttempts: 5,
	})

	assert.Equal(t, 10*time.Second, s.Backoff(0))
	assert.Equal(t, 20*time.Second, s.Backoff(1))
	assert.Equal(t, 40*time.Second, s.Backoff(2))
	assert.Equal(t, 80*time.Second, s.Backoff(3))

	t.Run("caps at max delay", func(t *testing.T) {
		assert.Equal(t, 15*time.Minute, s.Backoff(10))
		assert.Equal(t, 15*time.Minute, s.Backoff(60))
	})
}

func TestRetryScheduler_NextAttemptAt(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("jitter stays within the configured spread", func(t *testing.T) {
		s := NewRetryScheduler(RetryConfig{
			BaseDelay:      10 * time.Second,
			MaxDelay:       15 * time.Minute,
			MaxAttempts:    5,
			JitterFraction: 0.10,
		})

		for i := 0; i < 200; i++ {
			at := s.NextAttemptAt(now, 1, 0)
			delay := at.Sub(now)
			assert.GreaterOrEqual(t, delay, 18*time.Second)
			assert.LessOrEqual(t, delay, 22*time.Second)
		}
	})

	t.Run("platform retry-after acts as a floor", func(t *testing.T) {
		s := NewRetryScheduler(RetryConfig{
			BaseDelay:      10 * time.Second,
			MaxDelay:       15 * time.Minute,
			MaxAttempts:    5,
			JitterFraction: 0.10,
		})

		at := s.NextAttemptAt(now, 1, 5*time.Minute)
		assert.False(t, at.Before(now.Add(5*time.Minute)))
	})

	t.Run("no jitter when fraction is zero", func(t *testing.T) {
		s := NewRetryScheduler(RetryConfig{
			BaseDelay:   10 * time.Second,
			MaxDelay:    15 * time.Minute,
			MaxAttempts: 5,
		})

		assert.Equal(t, now.Add(20*time.Second), s.NextAttemptAt(now, 1, 0))
	})
}

func TestRetryScheduler_Exhausted(t *testing.T) {
	s := NewRetryScheduler(RetryConfig{BaseDelay: time.Second, MaxDelay: time.Minute, MaxAttempts: 5})

	assert.False(t, s.Exhausted(4))
	assert.True(t, s.Exhausted(5))
	assert.True(t, s.Exhausted(6))
	assert.Equal(t, 5, s.MaxAttempts())
}

func TestRetryScheduler_Defaults(t *testing.T) {
	s := NewRetryScheduler(RetryConfig{})

	assert.Equal(t, DefaultRetryConfig().MaxAttempts, s.MaxAttempts())
	assert.Equal(t, DefaultRetryConfig().BaseDelay, s.Backoff(0))
}
