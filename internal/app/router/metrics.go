package router

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/coachpo/payroute/internal/domain/routing"
	"github.com/coachpo/payroute/internal/infra/telemetry"
)

type routerMetrics struct {
	decisions        metric.Int64Counter
	decisionDuration metric.Float64Histogram
	pruned           metric.Int64Counter
}

func newRouterMetrics() *routerMetrics {
	meter := otel.Meter("router")
	m := &routerMetrics{}
	m.decisions, _ = meter.Int64Counter(telemetry.MetricDecisions,
		metric.WithDescription("Routing decisions by approach and result"),
		metric.WithUnit("{decision}"))
	m.decisionDuration, _ = meter.Float64Histogram(telemetry.MetricDecisionDuration,
		metric.WithDescription("Static routing decision latency"),
		metric.WithUnit("ms"))
	m.pruned, _ = meter.Int64Counter(telemetry.MetricEligibilityPruned,
		metric.WithDescription("Candidates removed by the eligibility filter"),
		metric.WithUnit("{connector}"))
	return m
}

func (m *routerMetrics) recordDecision(ctx context.Context, txnType routing.TransactionType, approach routing.RoutingApproach, result string, started time.Time) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(telemetry.DecisionAttributes(telemetry.Environment(), string(txnType), string(approach), result)...)
	if m.decisions != nil {
		m.decisions.Add(ctx, 1, attrs)
	}
	if m.decisionDuration != nil {
		m.decisionDuration.Record(ctx, float64(time.Since(started).Microseconds())/1000, attrs)
	}
}

func (m *routerMetrics) recordPruned(ctx context.Context, n int) {
	if m == nil || m.pruned == nil || n == 0 {
		return
	}
	m.pruned.Add(ctx, int64(n), metric.WithAttributes(telemetry.AttrEnvironment.String(telemetry.Environment())))
}
