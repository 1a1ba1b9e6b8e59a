package router

import (
	"context"
	"io"
	"log"
	"slices"
	"strings"
	"time"

	"github.com/coachpo/payroute/errs"
	"github.com/coachpo/payroute/internal/domain/dsl"
	"github.com/coachpo/payroute/internal/domain/routing"
	"github.com/coachpo/payroute/internal/domain/routingstore"
	"github.com/coachpo/payroute/internal/infra/telemetry"
)

// Request identifies one routing call.
type Request struct {
	MerchantID  string
	ProfileID   string
	Transaction routing.Transaction
}

// Outcome is a static routing decision together with the inputs it was made from.
type Outcome struct {
	Decision routing.Decision
	Input    routing.BackendInput
	Profile  routingstore.Profile
	// Fallback reports that the merchant default list was returned.
	Fallback bool
	// Rule names the advanced rule that fired, if any.
	Rule string
	// AlgorithmID is the algorithm evaluated, empty for fallback and straight-through.
	AlgorithmID string
}

// StaticDeps wires a StaticRouter.
type StaticDeps struct {
	Profiles   routingstore.ProfileStore
	Fallbacks  routingstore.FallbackStore
	Algorithms *AlgorithmCache
	Graphs     *GraphCache
	Inputs     InputBuilder
	Filter     *EligibilityFilter
	Schema     *dsl.Schema
	Logger     *log.Logger
}

// StaticRouter resolves the merchant's configured algorithm, evaluates it and filters the
// result for eligibility. Every failure after the default connector list has been loaded
// degrades to that list.
type StaticRouter struct {
	profiles   routingstore.ProfileStore
	fallbacks  routingstore.FallbackStore
	algorithms *AlgorithmCache
	graphs     *GraphCache
	inputs     InputBuilder
	filter     *EligibilityFilter
	schema     *dsl.Schema
	logger     *log.Logger
	metrics    *routerMetrics
}

// NewStaticRouter constructs a router from its dependencies.
func NewStaticRouter(deps StaticDeps) *StaticRouter {
	logger := deps.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	inputs := deps.Inputs
	if inputs == nil {
		inputs = attemptFirstBuilder{}
	}
	filter := deps.Filter
	if filter == nil {
		filter = NewEligibilityFilter(true)
	}
	schema := deps.Schema
	if schema == nil {
		schema = dsl.BackendSchema()
	}
	return &StaticRouter{
		profiles:   deps.Profiles,
		fallbacks:  deps.Fallbacks,
		algorithms: deps.Algorithms,
		graphs:     deps.Graphs,
		inputs:     inputs,
		filter:     filter,
		schema:     schema,
		logger:     logger,
		metrics:    newRouterMetrics(),
	}
}

// plan holds what one routing call loads before evaluation. Everything in it is shared
// read-only.
type plan struct {
	req             Request
	txnType         routing.TransactionType
	fallback        []routing.RoutableConnectorChoice
	graph           *CachedGraph
	profile         routingstore.Profile
	algorithm       *CachedAlgorithm
	straightThrough bool
}

// Route returns the ordered connectors for the transaction.
func (r *StaticRouter) Route(ctx context.Context, req Request) (Outcome, error) {
	started := time.Now()
	txnType := req.Transaction.TransactionType()
	p, err := r.prepare(ctx, req)
	if err != nil {
		r.metrics.recordDecision(ctx, txnType, routing.ApproachNone, telemetry.ResultError, started)
		return Outcome{}, err
	}
	input, err := r.inputs.Build(req.Transaction)
	if err != nil {
		r.logger.Printf("router: routing input incomplete, using default connectors: merchant=%s profile=%s err=%v",
			req.MerchantID, req.ProfileID, err)
		p.algorithm = nil
	}
	out, err := r.decide(ctx, p, input, req.Transaction.EligibleConnectors, nil)
	if err != nil {
		r.metrics.recordDecision(ctx, txnType, routing.ApproachNone, telemetry.ResultError, started)
		return Outcome{}, err
	}
	result := telemetry.ResultSuccess
	if out.Fallback {
		result = telemetry.ResultFallback
	}
	r.metrics.recordDecision(ctx, txnType, out.Decision.Approach, result, started)
	return out, nil
}

func (r *StaticRouter) prepare(ctx context.Context, req Request) (*plan, error) {
	merchantID := strings.TrimSpace(req.MerchantID)
	profileID := strings.TrimSpace(req.ProfileID)
	if profileID == "" {
		return nil, errs.New(component, errs.CodeInvalid,
			errs.WithCanonicalCode(errs.CanonicalProfileMissing),
			errs.WithMessage("profile id required for routing"),
			errs.WithField("merchant_id", merchantID))
	}
	p := &plan{
		req:     Request{MerchantID: merchantID, ProfileID: profileID, Transaction: req.Transaction},
		txnType: req.Transaction.TransactionType(),
	}

	fallback, err := r.fallbacks.DefaultConnectors(ctx, profileID, p.txnType)
	if err != nil {
		return nil, fallbackUnavailable(merchantID, profileID, "load default connectors", err)
	}
	p.fallback = fallback

	graph, err := r.graphs.Get(ctx, merchantID, profileID, p.txnType)
	if err != nil {
		return nil, fallbackUnavailable(merchantID, profileID, "load constraint graph", err)
	}
	p.graph = graph

	profile, err := r.profiles.RoutingProfile(ctx, merchantID, profileID)
	if err != nil {
		r.logger.Printf("router: profile lookup failed, using default connectors: merchant=%s profile=%s err=%v",
			merchantID, profileID, err)
		return p, nil
	}
	p.profile = profile

	if st := req.Transaction.StraightThrough; st != nil {
		algorithm, err := r.straightThrough(*st)
		if err != nil {
			r.logger.Printf("router: straight-through algorithm rejected: merchant=%s profile=%s err=%v",
				merchantID, profileID, err)
			return p, nil
		}
		p.algorithm = algorithm
		p.straightThrough = true
		return p, nil
	}

	algorithmID := profile.ActiveAlgorithmID(p.txnType)
	if algorithmID == "" {
		return p, nil
	}
	key := routing.CacheKey(merchantID, profileID, p.txnType)
	algorithm, err := r.algorithms.Get(ctx, key, profileID, algorithmID)
	if err != nil {
		r.logger.Printf("router: algorithm resolution failed, using default connectors: merchant=%s profile=%s algorithm=%s err=%v",
			merchantID, profileID, algorithmID, err)
		return p, nil
	}
	p.algorithm = algorithm
	return p, nil
}

func (r *StaticRouter) straightThrough(algo routing.RoutingAlgorithm) (*CachedAlgorithm, error) {
	if err := algo.Validate(); err != nil {
		return nil, errs.New(component, errs.CodeInvalid,
			errs.WithCanonicalCode(errs.CanonicalInvalidAlgorithm),
			errs.WithMessage("straight-through algorithm"),
			errs.WithCause(err))
	}
	document, err := algo.MarshalJSON()
	if err != nil {
		return nil, errs.New(component, errs.CodeInvalid,
			errs.WithCanonicalCode(errs.CanonicalDslParsing),
			errs.WithCause(err))
	}
	return CompileAlgorithm("", document, r.schema)
}

// decide evaluates the planned algorithm for the input and filters the result, degrading to
// the filtered default list. keep, when set, drops further candidates after filtering. Only a
// failure to filter the default list is returned.
func (r *StaticRouter) decide(ctx context.Context, p *plan, input routing.BackendInput, allowList []routing.Connector,
	keep func(routing.RoutableConnectorChoice) bool) (Outcome, error) {
	eligible := func(candidates []routing.RoutableConnectorChoice) ([]routing.RoutableConnectorChoice, error) {
		out, err := r.filter.Filter(ctx, candidates, input, allowList, p.graph)
		if err != nil || keep == nil {
			return out, err
		}
		return slices.DeleteFunc(out, func(c routing.RoutableConnectorChoice) bool { return !keep(c) }), nil
	}

	out := Outcome{Input: input, Profile: p.profile}
	if p.algorithm != nil {
		candidates, approach, rule, err := evaluate(p.algorithm, input)
		switch {
		case err != nil:
			r.logger.Printf("router: algorithm evaluation failed, using default connectors: merchant=%s profile=%s algorithm=%s err=%v",
				p.req.MerchantID, p.req.ProfileID, p.algorithm.ID, err)
		default:
			if p.straightThrough {
				approach = routing.ApproachStraightThrough
			}
			list, err := eligible(candidates)
			if err != nil {
				r.logger.Printf("router: eligibility check failed, using default connectors: merchant=%s profile=%s err=%v",
					p.req.MerchantID, p.req.ProfileID, err)
			} else if len(list) > 0 {
				out.Decision = routing.Decision{Connectors: list, Approach: approach}
				out.Rule = rule
				out.AlgorithmID = p.algorithm.ID
				return out, nil
			}
		}
	}

	list, err := eligible(p.fallback)
	if err != nil {
		return Outcome{}, fallbackUnavailable(p.req.MerchantID, p.req.ProfileID, "filter default connectors", err)
	}
	out.Decision = routing.Decision{Connectors: list, Approach: routing.ApproachNone}
	out.Fallback = true
	return out, nil
}

// evaluate runs the algorithm and reports the approach tag of the variant that fired.
func evaluate(entry *CachedAlgorithm, input routing.BackendInput) ([]routing.RoutableConnectorChoice, routing.RoutingApproach, string, error) {
	algo := entry.Algorithm
	switch algo.Kind {
	case routing.AlgorithmSingle, routing.AlgorithmPriority:
		return algo.Connectors(), routing.ApproachNone, "", nil
	case routing.AlgorithmVolumeSplit:
		list, err := SplitVolume(algo.VolumeSplit)
		return list, routing.ApproachVolumeBased, "", err
	case routing.AlgorithmAdvanced:
		if entry.Program == nil {
			return nil, "", "", errs.New(component, errs.CodeInternal,
				errs.WithCanonicalCode(errs.CanonicalDslExecution),
				errs.WithMessage("advanced algorithm not compiled"))
		}
		res, err := entry.Program.Execute(input)
		if err != nil {
			return nil, "", "", err
		}
		if res.Output.Kind == dsl.OutputVolumeSplit {
			list, err := SplitVolume(res.Output.VolumeSplit)
			return list, routing.ApproachRuleBased, res.Rule, err
		}
		return res.Output.Connectors(), routing.ApproachRuleBased, res.Rule, nil
	default:
		return nil, "", "", errs.New(component, errs.CodeInvalid,
			errs.WithCanonicalCode(errs.CanonicalInvalidAlgorithm),
			errs.WithField("kind", string(algo.Kind)))
	}
}

func fallbackUnavailable(merchantID, profileID, message string, cause error) error {
	return errs.New(component, errs.CodeUnavailable,
		errs.WithCanonicalCode(errs.CanonicalFallbackUnavailable),
		errs.WithMessage(message),
		errs.WithField("merchant_id", merchantID),
		errs.WithField("profile_id", profileID),
		errs.WithCause(cause))
}
