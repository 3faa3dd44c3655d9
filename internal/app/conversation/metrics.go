package conversation

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ylol-app/ylol/internal/domain"
	"github.com/ylol-app/ylol/internal/observability"
)

type metrics struct {
	generateDuration metric.Float64Histogram
	generateFailures metric.Int64Counter
	bubbles          metric.Int64Counter
	flushFailures    metric.Int64Counter
}

// newMetrics never fails: an instrument that cannot be created stays nil and
// is skipped when recording.
func newMetrics() *metrics {
	m := observability.Meter()
	out := &metrics{}

	out.generateDuration, _ = m.Float64Histogram(
		"ylol.generate.duration",
		metric.WithDescription("Response service call duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	out.generateFailures, _ = m.Int64Counter(
		"ylol.generate.failures",
		metric.WithDescription("Failed response service calls"),
	)
	out.bubbles, _ = m.Int64Counter(
		"ylol.bubbles.delivered",
		metric.WithDescription("Assistant bubbles revealed"),
	)
	out.flushFailures, _ = m.Int64Counter(
		"ylol.flush.failures",
		metric.WithDescription("Session writes that failed"),
	)
	return out
}

func (m *metrics) generated(ctx context.Context, mode domain.Mode, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("mode", string(mode)))
	if m.generateDuration != nil {
		m.generateDuration.Record(ctx, float64(elapsed.Milliseconds()), attrs)
	}
	if err != nil && m.generateFailures != nil {
		m.generateFailures.Add(ctx, 1, attrs)
	}
}

func (m *metrics) bubbleDelivered(ctx context.Context) {
	if m == nil || m.bubbles == nil {
		return
	}
	m.bubbles.Add(ctx, 1)
}

func (m *metrics) flushFailed(ctx context.Context) {
	if m == nil || m.flushFailures == nil {
		return
	}
	m.flushFailures.Add(ctx, 1)
}
