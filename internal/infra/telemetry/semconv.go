package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Semantic convention attribute keys for routing telemetry.
const (
	// AttrEnvironment specifies the deployment environment for every metric.
	AttrEnvironment = attribute.Key("environment")
	// AttrCache names the cache a lookup hit (algorithm, graph).
	AttrCache = attribute.Key("cache.name")
	// AttrResult records the outcome of an operation (hit, miss, success, error, degraded).
	AttrResult = attribute.Key("result")
	// AttrApproach is the routing approach tag of a decision.
	AttrApproach = attribute.Key("routing.approach")
	// AttrTransactionType separates payment from payout routing.
	AttrTransactionType = attribute.Key("routing.transaction_type")
	// AttrAdapter names the dynamic routing adapter (success_rate, elimination, contract, open_router).
	AttrAdapter = attribute.Key("routing.adapter")
	// AttrErrorType categorizes failures by canonical error family.
	AttrErrorType = attribute.Key("error.type")
)

// Metric instrument names.
const (
	MetricCacheLookups        = "routing.cache.lookups"
	MetricCacheBuildFailures  = "routing.cache.build.failures"
	MetricDecisions           = "routing.decisions"
	MetricDecisionDuration    = "routing.decision.duration"
	MetricEligibilityPruned   = "routing.eligibility.pruned"
	MetricDynamicCalls        = "routing.dynamic.calls"
	MetricDynamicDuration     = "routing.dynamic.duration"
	MetricReporterSubmissions = "routing.reporter.submissions"
)

// Result values.
const (
	ResultHit      = "hit"
	ResultMiss     = "miss"
	ResultSuccess  = "success"
	ResultError    = "error"
	ResultFallback = "fallback"
	ResultDegraded = "degraded"
	ResultDropped  = "dropped"
)

// CacheAttributes returns attributes for cache lookups.
func CacheAttributes(environment, cache, result string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrCache.String(cache),
		AttrResult.String(result),
	}
}

// DecisionAttributes returns attributes for routing decisions.
func DecisionAttributes(environment, txnType, approach, result string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrTransactionType.String(txnType),
		AttrApproach.String(approach),
		AttrResult.String(result),
	}
}

// AdapterAttributes returns attributes for dynamic routing calls.
func AdapterAttributes(environment, adapter, result string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrAdapter.String(adapter),
		AttrResult.String(result),
	}
}

// ErrorAttributes returns attributes for failure counters.
func ErrorAttributes(environment, cache, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrCache.String(cache),
		AttrErrorType.String(errorType),
	}
}
