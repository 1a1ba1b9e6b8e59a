package router

import (
	"context"
	"runtime"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/coachpo/payroute/internal/domain/routing"
	"github.com/coachpo/payroute/internal/infra/telemetry"
)

// SessionCandidates are the connectors the caller may use for one payment method type.
type SessionCandidates struct {
	PaymentMethod routing.PaymentMethod
	Connectors    []routing.RoutableConnectorChoice
}

// SessionRequest asks for one routing decision per payment method type, used when session
// tokens are generated for wallet SDK initialisation.
type SessionRequest struct {
	MerchantID string
	ProfileID  string
	// Transaction is the template every per-type input is derived from.
	Transaction routing.Transaction
	Candidates  map[routing.PaymentMethodType]SessionCandidates
}

type sessionResult struct {
	pmt        routing.PaymentMethodType
	connectors []routing.RoutableConnectorChoice
}

// SessionRouter computes independent routing decisions per payment method type. Types that
// yield no connector, even after the default list, are left out of the result.
type SessionRouter struct {
	static     *StaticRouter
	maxWorkers int
}

// NewSessionRouter constructs a session router over the static router. maxWorkers bounds the
// number of payment method types resolved concurrently.
func NewSessionRouter(static *StaticRouter, maxWorkers int) *SessionRouter {
	if maxWorkers <= 0 {
		maxWorkers = runtime.GOMAXPROCS(0)
	}
	return &SessionRouter{static: static, maxWorkers: maxWorkers}
}

// Route returns the ordered connectors per payment method type.
func (s *SessionRouter) Route(ctx context.Context, req SessionRequest) (map[routing.PaymentMethodType][]routing.RoutableConnectorChoice, error) {
	started := time.Now()
	r := s.static
	txnType := req.Transaction.TransactionType()
	p, err := r.prepare(ctx, Request{MerchantID: req.MerchantID, ProfileID: req.ProfileID, Transaction: req.Transaction})
	if err != nil {
		r.metrics.recordDecision(ctx, txnType, routing.ApproachNone, telemetry.ResultError, started)
		return nil, err
	}
	template, err := r.inputs.Build(req.Transaction)
	if err != nil {
		r.logger.Printf("router: session input incomplete, using default connectors: merchant=%s profile=%s err=%v",
			p.req.MerchantID, p.req.ProfileID, err)
		p.algorithm = nil
	}

	workers := s.maxWorkers
	if workers > len(req.Candidates) {
		workers = len(req.Candidates)
	}
	if workers == 0 {
		return map[routing.PaymentMethodType][]routing.RoutableConnectorChoice{}, nil
	}

	tasks := pool.NewWithResults[sessionResult]().WithContext(ctx).WithMaxGoroutines(workers)
	for pmt, candidates := range req.Candidates {
		tasks.Go(func(ctx context.Context) (sessionResult, error) {
			input := template.WithPaymentMethodType(candidates.PaymentMethod, pmt)
			keep := func(c routing.RoutableConnectorChoice) bool { return offered(candidates.Connectors, c) }
			out, err := r.decide(ctx, p, input, req.Transaction.EligibleConnectors, keep)
			if err != nil {
				return sessionResult{}, err
			}
			return sessionResult{pmt: pmt, connectors: out.Decision.Connectors}, nil
		})
	}
	results, err := tasks.Wait()
	if err != nil {
		r.metrics.recordDecision(ctx, txnType, routing.ApproachNone, telemetry.ResultError, started)
		return nil, err
	}

	out := make(map[routing.PaymentMethodType][]routing.RoutableConnectorChoice, len(results))
	for _, res := range results {
		if len(res.connectors) == 0 {
			continue
		}
		out[res.pmt] = res.connectors
	}
	r.metrics.recordDecision(ctx, txnType, routing.ApproachNone, telemetry.ResultSuccess, started)
	return out, nil
}

// offered reports whether the caller listed the choice. Choices without an account reference
// match on connector alone.
func offered(candidates []routing.RoutableConnectorChoice, choice routing.RoutableConnectorChoice) bool {
	for _, c := range candidates {
		if c.Connector != choice.Connector {
			continue
		}
		if c.MerchantConnectorID == "" || choice.MerchantConnectorID == "" || c.MerchantConnectorID == choice.MerchantConnectorID {
			return true
		}
	}
	return false
}
