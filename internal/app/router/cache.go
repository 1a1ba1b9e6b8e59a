package router

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/coachpo/payroute/errs"
	"github.com/coachpo/payroute/internal/infra/telemetry"
)

// SnapshotCache maps keys to immutable published values. Readers get the published pointer and
// never observe a partially built value; a rebuild publishes a new pointer. Concurrent misses
// may build redundantly, the last publisher wins. Failed builds are never cached.
type SnapshotCache[V any] struct {
	name    string
	mu      sync.RWMutex
	entries map[string]*V

	lookups       metric.Int64Counter
	buildFailures metric.Int64Counter
}

// NewSnapshotCache constructs an empty cache. name labels its metrics.
func NewSnapshotCache[V any](name string) *SnapshotCache[V] {
	cache := &SnapshotCache[V]{name: name, entries: make(map[string]*V)}
	meter := otel.Meter("router.cache")
	cache.lookups, _ = meter.Int64Counter(telemetry.MetricCacheLookups,
		metric.WithDescription("Routing cache lookups by cache and result"),
		metric.WithUnit("{lookup}"))
	cache.buildFailures, _ = meter.Int64Counter(telemetry.MetricCacheBuildFailures,
		metric.WithDescription("Routing cache rebuilds that failed"),
		metric.WithUnit("{build}"))
	return cache
}

// Get returns the published value for the key.
func (c *SnapshotCache[V]) Get(key string) (*V, bool) {
	c.mu.RLock()
	v, ok := c.entries[key]
	c.mu.RUnlock()
	return v, ok
}

// GetOrBuild returns the published value when fresh reports true for it; otherwise it builds,
// publishes and returns a new value. No lock is held while build runs. fresh may be nil.
func (c *SnapshotCache[V]) GetOrBuild(ctx context.Context, key string, fresh func(*V) bool, build func(context.Context) (*V, error)) (*V, error) {
	if v, ok := c.Get(key); ok && (fresh == nil || fresh(v)) {
		c.record(ctx, telemetry.ResultHit)
		return v, nil
	}
	c.record(ctx, telemetry.ResultMiss)

	v, err := build(ctx)
	if err == nil && v == nil {
		err = errs.New(component, errs.CodeInternal, errs.WithMessage("cache build returned no value"))
	}
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		if c.buildFailures != nil {
			c.buildFailures.Add(ctx, 1, metric.WithAttributes(
				telemetry.ErrorAttributes(telemetry.Environment(), c.name, string(errs.Canonical(err)))...))
		}
		return nil, err
	}
	c.Publish(key, v)
	return v, nil
}

// Publish replaces the value for the key.
func (c *SnapshotCache[V]) Publish(key string, v *V) {
	c.mu.Lock()
	c.entries[key] = v
	c.mu.Unlock()
}

// Invalidate drops the value for the key; the next lookup rebuilds it.
func (c *SnapshotCache[V]) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Len reports the number of published entries.
func (c *SnapshotCache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *SnapshotCache[V]) record(ctx context.Context, result string) {
	if c.lookups == nil {
		return
	}
	c.lookups.Add(ctx, 1, metric.WithAttributes(telemetry.CacheAttributes(telemetry.Environment(), c.name, result)...))
}
