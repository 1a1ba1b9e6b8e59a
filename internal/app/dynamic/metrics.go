package dynamic

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/coachpo/payroute/internal/infra/telemetry"
)

type dynamicMetrics struct {
	calls       metric.Int64Counter
	duration    metric.Float64Histogram
	submissions metric.Int64Counter
}

func newDynamicMetrics() *dynamicMetrics {
	meter := otel.Meter("dynamic")
	m := &dynamicMetrics{}
	m.calls, _ = meter.Int64Counter(telemetry.MetricDynamicCalls,
		metric.WithDescription("Dynamic routing service calls by adapter and result"),
		metric.WithUnit("{call}"))
	m.duration, _ = meter.Float64Histogram(telemetry.MetricDynamicDuration,
		metric.WithDescription("Dynamic routing service call latency"),
		metric.WithUnit("ms"))
	m.submissions, _ = meter.Int64Counter(telemetry.MetricReporterSubmissions,
		metric.WithDescription("Outcome reports submitted to the detached reporter"),
		metric.WithUnit("{report}"))
	return m
}

func (m *dynamicMetrics) recordCall(ctx context.Context, adapter, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(telemetry.AdapterAttributes(telemetry.Environment(), adapter, result)...)
	if m.calls != nil {
		m.calls.Add(ctx, 1, attrs)
	}
	if m.duration != nil {
		m.duration.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)
	}
}

func (m *dynamicMetrics) recordSubmission(ctx context.Context, adapter, result string) {
	if m == nil || m.submissions == nil {
		return
	}
	m.submissions.Add(ctx, 1, metric.WithAttributes(telemetry.AdapterAttributes(telemetry.Environment(), adapter, result)...))
}
