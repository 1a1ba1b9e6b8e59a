package router

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/coachpo/payroute/internal/app/dynamic"
	"github.com/coachpo/payroute/internal/domain/dsl"
	"github.com/coachpo/payroute/internal/domain/kgraph"
	"github.com/coachpo/payroute/internal/domain/routing"
	"github.com/coachpo/payroute/internal/domain/routingstore"
)

// DynamicRouter re-ranks static decisions and learns from attempt outcomes. Implementations
// degrade to the static decision on failure.
type DynamicRouter interface {
	Rank(ctx context.Context, req dynamic.Request) routing.Decision
	Report(ctx context.Context, outcome dynamic.Outcome)
}

// EngineConfig wires an Engine.
type EngineConfig struct {
	Store   routingstore.Store
	Filters kgraph.Filters
	// InputSchema selects the BackendInput builder (v1 or v2).
	InputSchema string
	// DisableGraphCheck skips the constraint graph during eligibility filtering.
	DisableGraphCheck bool
	SessionWorkers    int
	// Dynamic is optional.
	Dynamic DynamicRouter
	Events  routing.EventSink
	Logger  *log.Logger
	Now     func() time.Time
}

// Engine is the routing entry point used by the payment pipeline. It owns the algorithm and
// graph caches.
type Engine struct {
	static     *StaticRouter
	session    *SessionRouter
	algorithms *AlgorithmCache
	graphs     *GraphCache
	store      routingstore.Store
	dynamic    DynamicRouter
	events     routing.EventSink
	logger     *log.Logger
	now        func() time.Time
}

// NewEngine builds an engine and its caches.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("routing store required")
	}
	inputs, err := NewInputBuilder(cfg.InputSchema)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	events := cfg.Events
	if events == nil {
		events = routing.NopSink{}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	schema := dsl.BackendSchema()
	algorithms := NewAlgorithmCache(cfg.Store, schema)
	graphs := NewGraphCache(cfg.Store, cfg.Filters)
	static := NewStaticRouter(StaticDeps{
		Profiles:   cfg.Store,
		Fallbacks:  cfg.Store,
		Algorithms: algorithms,
		Graphs:     graphs,
		Inputs:     inputs,
		Filter:     NewEligibilityFilter(!cfg.DisableGraphCheck),
		Schema:     schema,
		Logger:     logger,
	})
	return &Engine{
		static:     static,
		session:    NewSessionRouter(static, cfg.SessionWorkers),
		algorithms: algorithms,
		graphs:     graphs,
		store:      cfg.Store,
		dynamic:    cfg.Dynamic,
		events:     events,
		logger:     logger,
		now:        now,
	}, nil
}

// Route returns the final ordered connectors for the transaction.
func (e *Engine) Route(ctx context.Context, req Request) (routing.Decision, error) {
	started := e.now()
	out, err := e.static.Route(ctx, req)
	e.emitStatic(ctx, req, out, err, started)
	if err != nil {
		return routing.Decision{}, err
	}
	if !e.rankDynamically(req, out) {
		return out.Decision, nil
	}
	return e.dynamic.Rank(ctx, dynamic.Request{
		MerchantID: req.MerchantID,
		ProfileID:  req.ProfileID,
		PaymentID:  req.Transaction.PaymentID,
		Input:      out.Input,
		Config:     out.Profile.DynamicRouting,
		Static:     out.Decision,
	}), nil
}

// rankDynamically decides whether the payment takes the dynamic path. The profile's volume
// split buckets payments; the payment id seeds the draw so retries land in the same bucket.
func (e *Engine) rankDynamically(req Request, out Outcome) bool {
	if e.dynamic == nil || len(out.Decision.Connectors) == 0 {
		return false
	}
	if req.Transaction.TransactionType() != routing.TransactionPayment || req.Transaction.StraightThrough != nil {
		return false
	}
	cfg := out.Profile.DynamicRouting
	if !cfg.Any() {
		return false
	}
	share := uint64(cfg.DynamicShare())
	var opts []SplitOption
	if id := req.Transaction.PaymentID; id != "" {
		opts = append(opts, WithSeed(id))
	}
	bucket, ok := SampleIndex([]uint64{share, 100 - share}, opts...)
	return ok && bucket == 0
}

// RouteSession returns independent decisions per payment method type.
func (e *Engine) RouteSession(ctx context.Context, req SessionRequest) (map[routing.PaymentMethodType][]routing.RoutableConnectorChoice, error) {
	return e.session.Route(ctx, req)
}

// ReportOutcome forwards an attempt outcome to the dynamic layer. Profiles without dynamic
// routing are ignored.
func (e *Engine) ReportOutcome(ctx context.Context, merchantID, profileID, paymentID string, input routing.BackendInput,
	connector routing.RoutableConnectorChoice, success bool) {
	if e.dynamic == nil {
		return
	}
	profile, err := e.store.RoutingProfile(ctx, merchantID, profileID)
	if err != nil {
		e.logger.Printf("router: outcome report skipped: merchant=%s profile=%s err=%v", merchantID, profileID, err)
		return
	}
	if !profile.DynamicRouting.Any() {
		return
	}
	e.dynamic.Report(ctx, dynamic.Outcome{
		MerchantID: merchantID,
		ProfileID:  profileID,
		PaymentID:  paymentID,
		Input:      input,
		Config:     profile.DynamicRouting,
		Connector:  connector,
		Success:    success,
	})
}

// InvalidateAlgorithm drops the cached algorithm so the next call reloads it.
func (e *Engine) InvalidateAlgorithm(merchantID, profileID string, txnType routing.TransactionType) {
	e.algorithms.Invalidate(routing.CacheKey(merchantID, profileID, txnType))
}

// InvalidateGraph drops the cached constraint graph so the next call rebuilds it.
func (e *Engine) InvalidateGraph(merchantID, profileID string, txnType routing.TransactionType) {
	e.graphs.Invalidate(routing.CacheKey(merchantID, profileID, txnType))
}

// ValidationReport describes whether a profile's routing configuration can be served.
type ValidationReport struct {
	AlgorithmID   string
	AlgorithmKind routing.AlgorithmKind
	Referenced    []routing.RoutableConnectorChoice
	// Inactive lists referenced connectors without an enabled account.
	Inactive []routing.RoutableConnectorChoice
	// FallbackInactive lists default connectors without an enabled account.
	FallbackInactive []routing.RoutableConnectorChoice
	ActiveAccounts   int
	GraphNodes       int
	GraphEdges       int
}

// OK reports whether every referenced and default connector is active.
func (r ValidationReport) OK() bool {
	return len(r.Inactive) == 0 && len(r.FallbackInactive) == 0
}

// Validate resolves the profile's algorithm and graph and checks every connector they rely on.
// Unlike Route it reports resolution failures instead of degrading.
func (e *Engine) Validate(ctx context.Context, merchantID, profileID string, txnType routing.TransactionType) (ValidationReport, error) {
	if txnType == "" {
		txnType = routing.TransactionPayment
	}
	var report ValidationReport
	graph, err := e.graphs.Get(ctx, merchantID, profileID, txnType)
	if err != nil {
		return report, err
	}
	stats := graph.Graph.Stats()
	report.ActiveAccounts = graph.ActiveCount()
	report.GraphNodes, report.GraphEdges = stats.Nodes, stats.Edges

	fallback, err := e.store.DefaultConnectors(ctx, profileID, txnType)
	if err != nil {
		return report, fallbackUnavailable(merchantID, profileID, "load default connectors", err)
	}
	for _, c := range fallback {
		if !graph.IsActive(c) {
			report.FallbackInactive = append(report.FallbackInactive, c)
		}
	}

	profile, err := e.store.RoutingProfile(ctx, merchantID, profileID)
	if err != nil {
		return report, fmt.Errorf("load profile: %w", err)
	}
	report.AlgorithmID = profile.ActiveAlgorithmID(txnType)
	if report.AlgorithmID == "" {
		return report, nil
	}
	key := routing.CacheKey(merchantID, profileID, txnType)
	algorithm, err := e.algorithms.Get(ctx, key, profileID, report.AlgorithmID)
	if err != nil {
		return report, err
	}
	report.AlgorithmKind = algorithm.Algorithm.Kind
	if algorithm.Program != nil {
		report.Referenced = algorithm.Program.Connectors()
	} else {
		report.Referenced = algorithm.Algorithm.Connectors()
	}
	for _, c := range report.Referenced {
		if !graph.IsActive(c) {
			report.Inactive = append(report.Inactive, c)
		}
	}
	return report, nil
}

func (e *Engine) emitStatic(ctx context.Context, req Request, out Outcome, routeErr error, started time.Time) {
	evt := routing.NewRoutingEvent(req.MerchantID, req.ProfileID, req.Transaction.ReferenceID(), routing.EngineStatic, "static_routing", started)
	evt.Latency = e.now().Sub(started)
	evt.SetError(routeErr)
	if routeErr == nil {
		evt.SetRequest(out.Input)
		evt.SetConnectors(out.Decision.Connectors)
		evt.Approach = out.Decision.Approach
		evt.Attributes = map[string]string{"transaction_type": string(req.Transaction.TransactionType())}
		if out.Fallback {
			evt.Attributes["fallback"] = "true"
		}
		if out.Rule != "" {
			evt.Attributes["rule"] = out.Rule
		}
		if out.AlgorithmID != "" {
			evt.Attributes["algorithm_id"] = out.AlgorithmID
		}
	}
	if err := e.events.Emit(ctx, evt); err != nil {
		e.logger.Printf("router: routing event dropped: merchant=%s profile=%s err=%v", req.MerchantID, req.ProfileID, err)
	}
}
