package router

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coachpo/payroute/errs"
	"github.com/coachpo/payroute/internal/domain/dsl"
	"github.com/coachpo/payroute/internal/domain/routing"
	"github.com/coachpo/payroute/internal/domain/routingstore"
)

type snapshot struct {
	version int
	items   []string
}

func TestSnapshotCacheBuildsOnceAndPublishes(t *testing.T) {
	cache := NewSnapshotCache[snapshot]("test")
	var builds atomic.Int32
	build := func(context.Context) (*snapshot, error) {
		n := builds.Add(1)
		return &snapshot{version: int(n)}, nil
	}

	first, err := cache.GetOrBuild(context.Background(), "k", nil, build)
	require.NoError(t, err)
	second, err := cache.GetOrBuild(context.Background(), "k", nil, build)
	require.NoError(t, err)
	require.Same(t, first, second)
	require.Equal(t, int32(1), builds.Load())
	require.Equal(t, 1, cache.Len())

	cache.Invalidate("k")
	third, err := cache.GetOrBuild(context.Background(), "k", nil, build)
	require.NoError(t, err)
	require.Equal(t, 2, third.version)
}

func TestSnapshotCacheConcurrentMissesBuildIndependently(t *testing.T) {
	cache := NewSnapshotCache[snapshot]("test")
	started := make(chan struct{})
	release := make(chan struct{})
	slow := func(context.Context) (*snapshot, error) {
		close(started)
		<-release
		return &snapshot{version: 1}, nil
	}
	fast := func(context.Context) (*snapshot, error) { return &snapshot{version: 2}, nil }

	done := make(chan *snapshot)
	go func() {
		v, _ := cache.GetOrBuild(context.Background(), "k", nil, slow)
		done <- v
	}()
	<-started

	// The slow build holds no lock, so a second miss builds and publishes on its own.
	second, err := cache.GetOrBuild(context.Background(), "k", nil, fast)
	require.NoError(t, err)
	require.Equal(t, 2, second.version)

	close(release)
	first := <-done
	require.Equal(t, 1, first.version)

	published, ok := cache.Get("k")
	require.True(t, ok)
	require.Same(t, first, published)
}

func TestSnapshotCacheDoesNotCacheFailures(t *testing.T) {
	cache := NewSnapshotCache[snapshot]("test")
	boom := errors.New("store offline")
	_, err := cache.GetOrBuild(context.Background(), "k", nil, func(context.Context) (*snapshot, error) { return nil, boom })
	require.ErrorIs(t, err, boom)
	require.Zero(t, cache.Len())

	_, err = cache.GetOrBuild(context.Background(), "k", nil, func(context.Context) (*snapshot, error) { return nil, nil })
	require.Error(t, err)
	require.Zero(t, cache.Len())
}

func TestSnapshotCacheFreshnessCheck(t *testing.T) {
	cache := NewSnapshotCache[snapshot]("test")
	cache.Publish("k", &snapshot{version: 1})
	got, err := cache.GetOrBuild(context.Background(), "k",
		func(s *snapshot) bool { return s.version == 2 },
		func(context.Context) (*snapshot, error) { return &snapshot{version: 2}, nil })
	require.NoError(t, err)
	require.Equal(t, 2, got.version)
}

func TestSnapshotCacheReadersKeepOldSnapshot(t *testing.T) {
	cache := NewSnapshotCache[snapshot]("test")
	cache.Publish("k", &snapshot{version: 1, items: []string{"a"}})
	held, _ := cache.Get("k")

	cache.Publish("k", &snapshot{version: 2, items: []string{"a", "b"}})
	require.Equal(t, 1, held.version)
	require.Equal(t, []string{"a"}, held.items)

	current, ok := cache.Get("k")
	require.True(t, ok)
	require.Equal(t, 2, current.version)
}

func TestSnapshotCacheConcurrentAccess(t *testing.T) {
	cache := NewSnapshotCache[snapshot]("test")
	var wg sync.WaitGroup
	for i := range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 200 {
				if j%50 == 0 {
					cache.Invalidate("k")
				}
				got, err := cache.GetOrBuild(context.Background(), "k", nil, func(context.Context) (*snapshot, error) {
					return &snapshot{version: i, items: []string{"x"}}, nil
				})
				if err != nil {
					t.Errorf("get: %v", err)
					return
				}
				if len(got.items) != 1 {
					t.Errorf("partially built snapshot observed: %+v", got)
					return
				}
			}
		}()
	}
	wg.Wait()
}

type countingAlgorithmStore struct {
	routingstore.AlgorithmStore
	calls atomic.Int32
	fail  atomic.Bool
}

func (c *countingAlgorithmStore) FindAlgorithmByProfileAndID(ctx context.Context, profileID, algorithmID string) (routingstore.AlgorithmRecord, error) {
	c.calls.Add(1)
	if c.fail.Load() {
		return routingstore.AlgorithmRecord{}, errors.New("connection refused")
	}
	return c.AlgorithmStore.FindAlgorithmByProfileAndID(ctx, profileID, algorithmID)
}

func TestAlgorithmCacheRebuildsOnIDChange(t *testing.T) {
	s := newTestStore(t)
	activate(t, s, "algo_1", priority(choiceA))
	activate(t, s, "algo_2", priority(choiceB))
	store := &countingAlgorithmStore{AlgorithmStore: s}
	cache := NewAlgorithmCache(store, nil)
	key := routing.CacheKey(testMerchant, testProfile, routing.TransactionPayment)

	first, err := cache.Get(context.Background(), key, testProfile, "algo_1")
	require.NoError(t, err)
	require.Equal(t, "algo_1", first.ID)
	_, err = cache.Get(context.Background(), key, testProfile, "algo_1")
	require.NoError(t, err)
	require.Equal(t, int32(1), store.calls.Load())

	second, err := cache.Get(context.Background(), key, testProfile, "algo_2")
	require.NoError(t, err)
	require.Equal(t, "algo_2", second.ID)
	require.Equal(t, []routing.RoutableConnectorChoice{choiceB}, second.Algorithm.Connectors())
	require.Equal(t, int32(2), store.calls.Load())
}

func TestAlgorithmCacheErrors(t *testing.T) {
	s := newTestStore(t)
	activate(t, s, "algo_1", priority(choiceA))
	store := &countingAlgorithmStore{AlgorithmStore: s}
	cache := NewAlgorithmCache(store, nil)
	key := routing.CacheKey(testMerchant, testProfile, routing.TransactionPayment)

	_, err := cache.Get(context.Background(), key, testProfile, "algo_missing")
	require.True(t, errs.IsCanonical(err, errs.CanonicalDslMissingInDB))

	store.fail.Store(true)
	_, err = cache.Get(context.Background(), key, testProfile, "algo_1")
	require.Error(t, err)
	require.Zero(t, cache.Len())

	store.fail.Store(false)
	got, err := cache.Get(context.Background(), key, testProfile, "algo_1")
	require.NoError(t, err)
	require.Equal(t, "algo_1", got.ID)
}

func TestCompileAlgorithmRejectsInvalidDocuments(t *testing.T) {
	_, err := CompileAlgorithm("bad", []byte(`{"type":"priority"`), dsl.BackendSchema())
	require.True(t, errs.IsCanonical(err, errs.CanonicalDslParsing))

	_, err = CompileAlgorithm("3ds", []byte(`{"type":"three_ds_decision_rule","data":{"rules":[]}}`), dsl.BackendSchema())
	require.True(t, errs.IsCanonical(err, errs.CanonicalInvalidAlgorithm))

	algo := advanced(t, dsl.Program{
		DefaultSelection: dsl.PriorityOutput(choiceA),
		Rules: []dsl.Rule{{
			Name:      "unknown",
			Selection: dsl.PriorityOutput(choiceB),
			Condition: dsl.Cmp("payment.unknown_field", dsl.OpEqual, dsl.Number(1)),
		}},
	})
	doc, err := algo.MarshalJSON()
	require.NoError(t, err)
	_, err = CompileAlgorithm("adv", doc, dsl.BackendSchema())
	require.Error(t, err)
}
