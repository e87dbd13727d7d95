package publishing

import (
	"context"
	"time"
)

// Metrics receives dispatcher observations. The OpenTelemetry implementation
// lives in the infrastructure layer; NopMetrics keeps tests and tools free
// of a meter provider.
type Metrics interface {
	// ObservePublish records one platform call with its duration
	ObservePublish(ctx context.Context, platform string, duration time.Duration, success bool)

	// ObserveRetry records an entry going back into the queue
	ObserveRetry(ctx context.Context, platform string)

	// ObserveSettled records an entry reaching a terminal status
	ObserveSettled(ctx context.Context, platform string, status string)
}

// NopMetrics discards all observations
type NopMetrics struct{}

var _ Metrics = NopMetrics{}

func (NopMetrics) ObservePublish(context.Context, string, time.Duration, bool) {}
func (NopMetrics) ObserveRetry(context.Context, string)                        {}
func (NopMetrics) ObserveSettled(context.Context, string, string)              {}
