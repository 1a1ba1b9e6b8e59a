package router

import (
	"context"
	"errors"
	"strings"

	"github.com/coachpo/payroute/errs"
	"github.com/coachpo/payroute/internal/domain/dsl"
	"github.com/coachpo/payroute/internal/domain/routing"
	"github.com/coachpo/payroute/internal/domain/routingstore"
)

// CachedAlgorithm is a resolved algorithm ready for evaluation. It is never mutated after
// publication.
type CachedAlgorithm struct {
	ID        string
	Algorithm routing.RoutingAlgorithm
	// Program is set for advanced algorithms.
	Program *dsl.CompiledProgram
}

// AlgorithmCache resolves active routing algorithms, compiling advanced programs once per
// (merchant, profile, transaction type).
type AlgorithmCache struct {
	cache  *SnapshotCache[CachedAlgorithm]
	store  routingstore.AlgorithmStore
	schema *dsl.Schema
}

// NewAlgorithmCache constructs a cache reading from the store. A nil schema uses the
// BackendInput schema.
func NewAlgorithmCache(store routingstore.AlgorithmStore, schema *dsl.Schema) *AlgorithmCache {
	if schema == nil {
		schema = dsl.BackendSchema()
	}
	return &AlgorithmCache{
		cache:  NewSnapshotCache[CachedAlgorithm]("algorithm"),
		store:  store,
		schema: schema,
	}
}

// Get returns the cached algorithm for the key, rebuilding when absent or built from a
// different algorithm id than the one now active.
func (c *AlgorithmCache) Get(ctx context.Context, key, profileID, algorithmID string) (*CachedAlgorithm, error) {
	algorithmID = strings.TrimSpace(algorithmID)
	fresh := func(entry *CachedAlgorithm) bool { return entry.ID == algorithmID }
	return c.cache.GetOrBuild(ctx, key, fresh, func(ctx context.Context) (*CachedAlgorithm, error) {
		return c.build(ctx, profileID, algorithmID)
	})
}

// Invalidate drops the cached algorithm for the key.
func (c *AlgorithmCache) Invalidate(key string) { c.cache.Invalidate(key) }

// Len reports the number of cached algorithms.
func (c *AlgorithmCache) Len() int { return c.cache.Len() }

func (c *AlgorithmCache) build(ctx context.Context, profileID, algorithmID string) (*CachedAlgorithm, error) {
	record, err := c.store.FindAlgorithmByProfileAndID(ctx, profileID, algorithmID)
	if err != nil {
		code := errs.CodeUnavailable
		if errors.Is(err, routingstore.ErrNotFound) {
			code = errs.CodeNotFound
		}
		return nil, errs.New(component, code,
			errs.WithCanonicalCode(errs.CanonicalDslMissingInDB),
			errs.WithMessage("load routing algorithm"),
			errs.WithField("profile_id", profileID),
			errs.WithField("algorithm_id", algorithmID),
			errs.WithCause(err))
	}
	return CompileAlgorithm(record.ID, record.Document, c.schema)
}

// CompileAlgorithm parses a stored algorithm document and compiles advanced programs.
func CompileAlgorithm(id string, document []byte, schema *dsl.Schema) (*CachedAlgorithm, error) {
	algo, err := routing.ParseAlgorithm(document)
	if err != nil {
		return nil, errs.New(component, errs.CodeInvalid,
			errs.WithCanonicalCode(errs.CanonicalDslParsing),
			errs.WithMessage("decode routing algorithm"),
			errs.WithField("algorithm_id", id),
			errs.WithCause(err))
	}
	entry := &CachedAlgorithm{ID: strings.TrimSpace(id), Algorithm: algo}
	switch algo.Kind {
	case routing.AlgorithmThreeDsDecisionRule:
		return nil, errs.New(component, errs.CodeInvalid,
			errs.WithCanonicalCode(errs.CanonicalInvalidAlgorithm),
			errs.WithMessage("3ds decision rules cannot drive connector routing"),
			errs.WithField("algorithm_id", id))
	case routing.AlgorithmAdvanced:
		program, err := dsl.ParseAndCompile(algo.Advanced, schema)
		if err != nil {
			return nil, errs.New(component, errs.CodeInvalid,
				errs.WithCanonicalCode(errs.Canonical(err)),
				errs.WithMessage("compile advanced routing program"),
				errs.WithField("algorithm_id", id),
				errs.WithCause(err))
		}
		entry.Program = program
	}
	return entry, nil
}
