// Package dynamic re-ranks statically eligible connectors using external statistical routing
// services. Every adapter is best effort: on any failure the list it was given is kept.
package dynamic

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"github.com/coachpo/payroute/errs"
	"github.com/coachpo/payroute/internal/domain/routing"
	"github.com/coachpo/payroute/internal/domain/routingstore"
	"github.com/coachpo/payroute/internal/infra/dynamicrouting"
	"github.com/coachpo/payroute/internal/infra/telemetry"
)

const component = "dynamic"

// Adapter names used in metrics and logs.
const (
	AdapterSuccessRate = "success_rate"
	AdapterElimination = "elimination"
	AdapterContract    = "contract"
	AdapterOpenRouter  = "open_router"
)

// Client is the statistical routing service API.
type Client interface {
	CalculateSuccessRate(ctx context.Context, req dynamicrouting.CalculateSuccessRateRequest) (dynamicrouting.CalculateSuccessRateResponse, error)
	UpdateSuccessRateWindow(ctx context.Context, req dynamicrouting.UpdateSuccessRateWindowRequest) error
	PerformElimination(ctx context.Context, req dynamicrouting.EliminationRequest) (dynamicrouting.EliminationResponse, error)
	UpdateEliminationBucket(ctx context.Context, req dynamicrouting.UpdateEliminationBucketRequest) error
	CalculateContractScore(ctx context.Context, req dynamicrouting.ContractScoreRequest) (dynamicrouting.ContractScoreResponse, error)
	UpdateContracts(ctx context.Context, req dynamicrouting.UpdateContractsRequest) error
	DecideGateway(ctx context.Context, req dynamicrouting.DecideGatewayRequest) (dynamicrouting.DecideGatewayResponse, error)
	UpdateGatewayScore(ctx context.Context, req dynamicrouting.UpdateGatewayScoreRequest) error
}

// Request is one ranking call over a static decision.
type Request struct {
	MerchantID string
	ProfileID  string
	PaymentID  string
	Input      routing.BackendInput
	Config     routingstore.DynamicRoutingConfig
	Static     routing.Decision
}

// Outcome is the result of a payment attempt against the connector routing picked.
type Outcome struct {
	MerchantID string
	ProfileID  string
	PaymentID  string
	Input      routing.BackendInput
	Config     routingstore.DynamicRoutingConfig
	Connector  routing.RoutableConnectorChoice
	Success    bool
}

// Config wires a Router.
type Config struct {
	Client   Client
	Reporter *Reporter
	Events   routing.EventSink
	Logger   *log.Logger
	// Timeout bounds every ranking call.
	Timeout time.Duration
	// ContractInitRate limits how often missing contracts are initialised, per second.
	ContractInitRate float64
	Now              func() time.Time
}

// Router composes the dynamic routing adapters.
type Router struct {
	client       Client
	reporter     *Reporter
	events       routing.EventSink
	logger       *log.Logger
	timeout      time.Duration
	contractInit *rate.Limiter
	now          func() time.Time
	metrics      *dynamicMetrics
}

// NewRouter constructs a router. A nil Reporter disables outcome reporting and contract
// initialisation.
func NewRouter(cfg Config) *Router {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	events := cfg.Events
	if events == nil {
		events = routing.NopSink{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 300 * time.Millisecond
	}
	initRate := cfg.ContractInitRate
	if initRate <= 0 {
		initRate = 1
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Router{
		client:       cfg.Client,
		reporter:     cfg.Reporter,
		events:       events,
		logger:       logger,
		timeout:      timeout,
		contractInit: rate.NewLimiter(rate.Limit(initRate), 1),
		now:          now,
		metrics:      newDynamicMetrics(),
	}
}

// Rank re-ranks the static decision. Success-rate ranking runs first, contract scoring stands
// in when it yields nothing, and elimination runs last on the result. The open router replaces
// all three with one call.
func (r *Router) Rank(ctx context.Context, req Request) routing.Decision {
	static := req.Static
	if len(static.Connectors) == 0 || !req.Config.Any() || r.client == nil {
		return static
	}
	if req.Config.OpenRouter.Enabled {
		list, approach, err := r.openRouter(ctx, req, static.Connectors)
		if err != nil {
			return static
		}
		return routing.Decision{Connectors: list, Approach: approach}
	}

	list, approach := static.Connectors, static.Approach
	ranked := false
	if req.Config.SuccessRate.Enabled {
		if out, a, err := r.successRate(ctx, req, list); err == nil {
			list, approach, ranked = out, a, true
		}
	}
	if !ranked && req.Config.Contract.Enabled {
		if out, a, err := r.contract(ctx, req, list); err == nil {
			list, approach = out, a
		}
	}
	if req.Config.Elimination.Enabled {
		if out, eliminated, err := r.elimination(ctx, req, list); err == nil {
			list = out
			if eliminated {
				approach = routing.ApproachElimination
			}
		}
	}
	return routing.Decision{Connectors: list, Approach: approach}
}

// callResult is what one adapter invocation produced.
type callResult struct {
	response   any
	connectors []routing.RoutableConnectorChoice
	approach   routing.RoutingApproach
}

// invoke runs one bounded service call and emits its RoutingEvent.
func (r *Router) invoke(ctx context.Context, req Request, adapter string, engine routing.RoutingEngine, flow string,
	body any, fn func(context.Context) (callResult, error)) (callResult, error) {
	started := r.now()
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	res, err := fn(callCtx)
	cancel()
	elapsed := r.now().Sub(started)

	evt := routing.NewRoutingEvent(req.MerchantID, req.ProfileID, req.PaymentID, engine, flow, started)
	evt.SetRequest(body)
	evt.Latency = elapsed
	if err != nil {
		evt.SetError(err)
		evt.StatusCode = dynamicrouting.StatusCode(err)
		if evt.StatusCode == 0 {
			evt.StatusCode = http.StatusInternalServerError
		}
	} else {
		evt.StatusCode = http.StatusOK
		evt.SetResponse(res.response)
		evt.SetConnectors(res.connectors)
		evt.Approach = res.approach
	}
	if emitErr := r.events.Emit(ctx, evt); emitErr != nil {
		r.logger.Printf("dynamic: routing event dropped: flow=%s err=%v", flow, emitErr)
	}

	result := telemetry.ResultSuccess
	if err != nil {
		result = telemetry.ResultDegraded
		r.logger.Printf("dynamic: %s failed, keeping candidates: merchant=%s profile=%s err=%v",
			adapter, req.MerchantID, req.ProfileID, err)
	}
	r.metrics.recordCall(ctx, adapter, result, elapsed)
	return res, err
}

func (r *Router) successRate(ctx context.Context, req Request, candidates []routing.RoutableConnectorChoice) ([]routing.RoutableConnectorChoice, routing.RoutingApproach, error) {
	cfg := req.Config.SuccessRate
	body := dynamicrouting.CalculateSuccessRateRequest{
		ID:     req.ProfileID,
		Params: Params(req.Input, cfg.Params),
		Labels: routing.Labels(candidates),
		Config: successRateConfig(cfg),
	}
	res, err := r.invoke(ctx, req, AdapterSuccessRate, routing.EngineIntelligentRouter, "calculate_success_rate", body,
		func(ctx context.Context) (callResult, error) {
			resp, err := r.client.CalculateSuccessRate(ctx, body)
			if err != nil {
				return callResult{}, err
			}
			if len(resp.LabelsWithScore) == 0 {
				return callResult{}, emptyResponse("calculate_success_rate")
			}
			entries := make([]scored, 0, len(resp.LabelsWithScore))
			for _, l := range resp.LabelsWithScore {
				entries = append(entries, scored{label: l.Label, score: l.Score})
			}
			approach := routing.ApproachSuccessRateExploitation
			if resp.RoutingApproach == dynamicrouting.ApproachExploration {
				approach = routing.ApproachSuccessRateExploration
			}
			ordered, err := orderByLabels("calculate_success_rate", candidates, labelsByScore(entries))
			if err != nil {
				return callResult{}, err
			}
			return callResult{response: resp, connectors: ordered, approach: approach}, nil
		})
	return res.connectors, res.approach, err
}

// elimination moves eliminated connectors behind the others, keeping them as a last resort.
func (r *Router) elimination(ctx context.Context, req Request, candidates []routing.RoutableConnectorChoice) ([]routing.RoutableConnectorChoice, bool, error) {
	cfg := req.Config.Elimination
	body := dynamicrouting.EliminationRequest{
		ID:     req.ProfileID,
		Params: Params(req.Input, cfg.Params),
		Labels: routing.Labels(candidates),
		Config: eliminationConfig(cfg),
	}
	eliminated := false
	res, err := r.invoke(ctx, req, AdapterElimination, routing.EngineIntelligentRouter, "perform_elimination_routing", body,
		func(ctx context.Context) (callResult, error) {
			resp, err := r.client.PerformElimination(ctx, body)
			if err != nil {
				return callResult{}, err
			}
			var tail []string
			for _, status := range resp.LabelsWithStatus {
				if status.Eliminated() {
					tail = append(tail, status.Label)
				}
			}
			dropped, err := routing.ParseLabels(tail)
			if err != nil {
				return callResult{}, malformedResponse("perform_elimination_routing", err)
			}
			eliminated = len(dropped) > 0
			return callResult{response: resp, connectors: demote(candidates, dropped), approach: routing.ApproachElimination}, nil
		})
	return res.connectors, eliminated, err
}

func (r *Router) contract(ctx context.Context, req Request, candidates []routing.RoutableConnectorChoice) ([]routing.RoutableConnectorChoice, routing.RoutingApproach, error) {
	cfg := req.Config.Contract
	body := dynamicrouting.ContractScoreRequest{
		ID:     req.ProfileID,
		Params: Params(req.Input, cfg.Params),
		Labels: routing.Labels(candidates),
	}
	res, err := r.invoke(ctx, req, AdapterContract, routing.EngineIntelligentRouter, "calculate_contract_score", body,
		func(ctx context.Context) (callResult, error) {
			resp, err := r.client.CalculateContractScore(ctx, body)
			if err != nil {
				return callResult{}, err
			}
			if len(resp.LabelsWithScore) == 0 {
				return callResult{}, emptyResponse("calculate_contract_score")
			}
			entries := make([]scored, 0, len(resp.LabelsWithScore))
			for _, l := range resp.LabelsWithScore {
				entries = append(entries, scored{label: l.Label, score: l.Score})
			}
			ordered, err := orderByLabels("calculate_contract_score", candidates, labelsByScore(entries))
			if err != nil {
				return callResult{}, err
			}
			return callResult{response: resp, connectors: ordered, approach: routing.ApproachContractBased}, nil
		})
	if errs.IsCanonical(err, errs.CanonicalContractNotFound) {
		r.initContracts(ctx, req, body.Params)
	}
	return res.connectors, res.approach, err
}

// initContracts registers the profile's contract targets so later calls can be scored. The
// call that discovered the missing contract still degrades.
func (r *Router) initContracts(ctx context.Context, req Request, params string) {
	if r.reporter == nil {
		return
	}
	if !r.contractInit.Allow() {
		r.logger.Printf("dynamic: contract initialisation throttled: profile=%s", req.ProfileID)
		return
	}
	body := dynamicrouting.UpdateContractsRequest{ID: req.ProfileID, Params: params}
	for _, target := range req.Config.Contract.Targets {
		body.LabelsInformation = append(body.LabelsInformation, dynamicrouting.ContractLabelInfo{
			Label:       target.Connector.Label(),
			TargetCount: target.TargetCount,
			TargetTime:  target.TargetTime,
		})
	}
	r.reporter.Submit(ctx, AdapterContract, func(ctx context.Context) error {
		return r.client.UpdateContracts(ctx, body)
	})
}

func (r *Router) openRouter(ctx context.Context, req Request, candidates []routing.RoutableConnectorChoice) ([]routing.RoutableConnectorChoice, routing.RoutingApproach, error) {
	// The decision service keys merchants by profile.
	body := dynamicrouting.DecideGatewayRequest{
		MerchantID:          req.ProfileID,
		PaymentInfo:         paymentInfo(req),
		EligibleGatewayList: routing.Labels(candidates),
		RankingAlgorithm:    dynamicrouting.RankingSuccessRate,
		EliminationEnabled:  req.Config.OpenRouter.EliminationEnabled,
	}
	res, err := r.invoke(ctx, req, AdapterOpenRouter, routing.EngineOpenRouter, "decide_gateway", body,
		func(ctx context.Context) (callResult, error) {
			resp, err := r.client.DecideGateway(ctx, body)
			if err != nil {
				return callResult{}, err
			}
			if resp.DecidedGateway == "" {
				return callResult{}, emptyResponse("decide_gateway")
			}
			entries := make([]scored, 0, len(resp.GatewayPriorityMap))
			for label, score := range resp.GatewayPriorityMap {
				if label != resp.DecidedGateway {
					entries = append(entries, scored{label: label, score: score})
				}
			}
			sortScoredByLabel(entries)
			labels := append([]string{resp.DecidedGateway}, labelsByScore(entries)...)
			approach := routing.ApproachSuccessRateExploitation
			if resp.RoutingApproach == dynamicrouting.ApproachExploration || resp.RoutingApproach == "SR_SELECTION_V3_EXPLORATION" {
				approach = routing.ApproachSuccessRateExploration
			}
			ordered, err := orderByLabels("decide_gateway", candidates, labels)
			if err != nil {
				return callResult{}, err
			}
			return callResult{response: resp, connectors: ordered, approach: approach}, nil
		})
	return res.connectors, res.approach, err
}

// Report submits the attempt outcome to every enabled feature. It never blocks on the
// services and never fails.
func (r *Router) Report(ctx context.Context, outcome Outcome) {
	if r.reporter == nil || r.client == nil || !outcome.Config.Any() {
		return
	}
	label := outcome.Connector.Label()
	cfg := outcome.Config
	if cfg.OpenRouter.Enabled {
		status := dynamicrouting.StatusFailure
		if outcome.Success {
			status = dynamicrouting.StatusCharged
		}
		body := dynamicrouting.UpdateGatewayScoreRequest{
			MerchantID: outcome.ProfileID,
			Gateway:    label,
			Status:     status,
			PaymentID:  outcome.PaymentID,
		}
		r.reporter.Submit(ctx, AdapterOpenRouter, func(ctx context.Context) error {
			return r.client.UpdateGatewayScore(ctx, body)
		})
		return
	}
	statuses := []dynamicrouting.LabelWithStatus{{Label: label, Status: outcome.Success}}
	if cfg.SuccessRate.Enabled {
		body := dynamicrouting.UpdateSuccessRateWindowRequest{
			ID:               outcome.ProfileID,
			Params:           Params(outcome.Input, cfg.SuccessRate.Params),
			LabelsWithStatus: statuses,
			Config:           successRateConfig(cfg.SuccessRate),
		}
		r.reporter.Submit(ctx, AdapterSuccessRate, func(ctx context.Context) error {
			return r.client.UpdateSuccessRateWindow(ctx, body)
		})
	}
	if cfg.Elimination.Enabled {
		body := dynamicrouting.UpdateEliminationBucketRequest{
			ID:               outcome.ProfileID,
			Params:           Params(outcome.Input, cfg.Elimination.Params),
			LabelsWithStatus: statuses,
			Config:           eliminationConfig(cfg.Elimination),
		}
		r.reporter.Submit(ctx, AdapterElimination, func(ctx context.Context) error {
			return r.client.UpdateEliminationBucket(ctx, body)
		})
	}
	if cfg.Contract.Enabled && outcome.Success {
		info := dynamicrouting.ContractLabelInfo{Label: label, CurrentCount: 1}
		for _, target := range cfg.Contract.Targets {
			if target.Connector == outcome.Connector {
				info.TargetCount, info.TargetTime = target.TargetCount, target.TargetTime
				break
			}
		}
		body := dynamicrouting.UpdateContractsRequest{
			ID:                outcome.ProfileID,
			Params:            Params(outcome.Input, cfg.Contract.Params),
			LabelsInformation: []dynamicrouting.ContractLabelInfo{info},
		}
		r.reporter.Submit(ctx, AdapterContract, func(ctx context.Context) error {
			return r.client.UpdateContracts(ctx, body)
		})
	}
}

func paymentInfo(req Request) dynamicrouting.PaymentInfo {
	in := req.Input
	return dynamicrouting.PaymentInfo{
		PaymentID:         req.PaymentID,
		Amount:            MajorUnits(in.Payment.Amount, in.Payment.Currency),
		Currency:          string(in.Payment.Currency),
		PaymentType:       string(in.Mandate.PaymentType),
		PaymentMethod:     string(in.PaymentMethod.PaymentMethod),
		PaymentMethodType: string(in.PaymentMethod.PaymentMethodType),
		CardIsin:          in.Payment.CardBin,
	}
}

func successRateConfig(cfg routingstore.SuccessRateConfig) *dynamicrouting.SuccessRateConfig {
	return &dynamicrouting.SuccessRateConfig{
		MinAggregatesSize:  cfg.MinAggregatesSize,
		DefaultSuccessRate: cfg.DefaultSuccessRate,
		MaxAggregatesSize:  cfg.MaxAggregatesSize,
	}
}

func eliminationConfig(cfg routingstore.EliminationConfig) *dynamicrouting.EliminationConfig {
	return &dynamicrouting.EliminationConfig{
		BucketSize:         cfg.BucketSize,
		BucketLeakInterval: cfg.BucketLeakInterval,
	}
}

// demote moves the dropped choices to the end, preserving relative order on both sides.
func demote(list, dropped []routing.RoutableConnectorChoice) []routing.RoutableConnectorChoice {
	head := make([]routing.RoutableConnectorChoice, 0, len(list))
	var tail []routing.RoutableConnectorChoice
	for _, c := range list {
		if routing.ContainsChoice(dropped, c) {
			tail = append(tail, c)
			continue
		}
		head = append(head, c)
	}
	return append(head, tail...)
}

// sortScoredByLabel gives map-derived entries a stable order before the score sort.
func sortScoredByLabel(entries []scored) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].label < entries[j].label })
}

var (
	errEmptyResponse    = errors.New("empty response")
	errNoCandidateLabel = errors.New("no ranked label names a candidate")
)

func emptyResponse(flow string) error {
	return errs.New(component, errs.CodeInternal,
		errs.WithCanonicalCode(errs.CanonicalDynamicRouting),
		errs.WithField("flow", flow),
		errs.WithCause(errEmptyResponse))
}

func malformedResponse(flow string, cause error) error {
	return errs.New(component, errs.CodeInternal,
		errs.WithMessage("malformed response"),
		errs.WithCanonicalCode(errs.CanonicalDynamicRouting),
		errs.WithField("flow", flow),
		errs.WithCause(cause))
}
