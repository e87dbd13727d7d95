package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/postpilot/backend/internal/application/publishing"
)

// Attribute keys shared by publish metrics
var (
	attrPlatform = attribute.Key("platform")
	attrSuccess  = attribute.Key("success")
	attrStatus   = attribute.Key("status")
)

// publishDurationBuckets are bucket boundaries for platform call duration
// in seconds. Platform APIs routinely take whole seconds, so the buckets
// run coarser than HTTP server buckets.
var publishDurationBuckets = []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// PublishMetrics records dispatcher observations as OpenTelemetry metrics
type PublishMetrics struct {
	publishTotal    metric.Int64Counter
	publishDuration metric.Float64Histogram
	retryTotal      metric.Int64Counter
	settledTotal    metric.Int64Counter
}

// NewPublishMetrics creates the dispatcher instruments on the given meter
func NewPublishMetrics(meter metric.Meter) (*PublishMetrics, error) {
	publishTotal, err := meter.Int64Counter("queue_publish_total",
		metric.WithDescription("Platform publish calls"),
		metric.WithUnit("{call}"))
	if err != nil {
		return nil, fmt.Errorf("failed to create counter queue_publish_total: %w", err)
	}

	publishDuration, err := meter.Float64Histogram("queue_publish_duration_seconds",
		metric.WithDescription("Platform publish call duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(publishDurationBuckets...))
	if err != nil {
		return nil, fmt.Errorf("failed to create histogram queue_publish_duration_seconds: %w", err)
	}

	retryTotal, err := meter.Int64Counter("queue_retry_total",
		metric.WithDescription("Entries scheduled for another attempt"),
		metric.WithUnit("{entry}"))
	if err != nil {
		return nil, fmt.Errorf("failed to create counter queue_retry_total: %w", err)
	}

	settledTotal, err := meter.Int64Counter("queue_settled_total",
		metric.WithDescription("Entries that reached a terminal status"),
		metric.WithUnit("{entry}"))
	if err != nil {
		return nil, fmt.Errorf("failed to create counter queue_settled_total: %w", err)
	}

	return &PublishMetrics{
		publishTotal:    publishTotal,
		publishDuration: publishDuration,
		retryTotal:      retryTotal,
		settledTotal:    settledTotal,
	}, nil
}

// ObservePublish records one platform call with its duration
func (m *PublishMetrics) ObservePublish(ctx context.Context, platform string, duration time.Duration, success bool) {
	attrs := metric.WithAttributes(
		attrPlatform.String(platform),
		attrSuccess.Bool(success),
	)
	m.publishTotal.Add(ctx, 1, attrs)
	m.publishDuration.Record(ctx, duration.Seconds(), attrs)
}

// ObserveRetry records an entry going back into the queue
func (m *PublishMetrics) ObserveRetry(ctx context.Context, platform string) {
	m.retryTotal.Add(ctx, 1, metric.WithAttributes(attrPlatform.String(platform)))
}

// ObserveSettled records an entry reaching a terminal status
func (m *PublishMetrics) ObserveSettled(ctx context.Context, platform string, status string) {
	m.settledTotal.Add(ctx, 1, metric.WithAttributes(
		attrPlatform.String(platform),
		attrStatus.String(status),
	))
}

var _ publishing.Metrics = (*PublishMetrics)(nil)
