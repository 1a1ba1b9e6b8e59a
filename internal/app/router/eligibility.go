package router

import (
	"context"

	"github.com/coachpo/payroute/internal/domain/kgraph"
	"github.com/coachpo/payroute/internal/domain/routing"
)

// EligibilityFilter prunes candidates that the constraint graph rejects, that are outside an
// explicit allow list, or whose account is disabled.
type EligibilityFilter struct {
	// GraphCheck enables the constraint graph check; account and allow-list checks always run.
	GraphCheck bool
	metrics    *routerMetrics
}

// NewEligibilityFilter constructs a filter.
func NewEligibilityFilter(graphCheck bool) *EligibilityFilter {
	return &EligibilityFilter{GraphCheck: graphCheck, metrics: newRouterMetrics()}
}

// Filter returns the candidates that pass every check, in their original order. A nil
// allowList means no allow list was supplied. One memo and cycle guard serve the whole pass.
func (f *EligibilityFilter) Filter(ctx context.Context, candidates []routing.RoutableConnectorChoice, input routing.BackendInput,
	allowList []routing.Connector, graph *CachedGraph) ([]routing.RoutableConnectorChoice, error) {
	var (
		analysis = kgraph.ContextFromInput(input)
		memo     = kgraph.NewMemo()
		guard    = kgraph.NewCycleGuard()
		allowed  map[routing.Connector]struct{}
	)
	if allowList != nil {
		allowed = make(map[routing.Connector]struct{}, len(allowList))
		for _, c := range allowList {
			allowed[c] = struct{}{}
		}
	}

	out := make([]routing.RoutableConnectorChoice, 0, len(candidates))
	for _, candidate := range candidates {
		if allowed != nil {
			if _, ok := allowed[candidate.Connector]; !ok {
				continue
			}
		}
		if graph == nil || !graph.IsActive(candidate) {
			continue
		}
		if f.GraphCheck {
			ok, err := f.graphAllows(graph, candidate, analysis, memo, guard)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		out = append(out, candidate)
	}
	f.metrics.recordPruned(ctx, len(candidates)-len(out))
	return out, nil
}

func (f *EligibilityFilter) graphAllows(graph *CachedGraph, candidate routing.RoutableConnectorChoice, analysis *kgraph.AnalysisContext,
	memo *kgraph.Memo, guard *kgraph.CycleGuard) (bool, error) {
	for _, account := range graph.Accounts(candidate) {
		ok, err := graph.Graph.CheckValueValidity(kgraph.ConnectorValue(account), analysis, memo, guard)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
