package kgraph

import "github.com/coachpo/payroute/internal/domain/routing"

// AnalysisContext is the set of values known for the transaction being routed.
type AnalysisContext struct {
	values map[DirKey]map[string]struct{}
	amount *int64
}

// NewContext returns an empty context.
func NewContext() *AnalysisContext {
	return &AnalysisContext{values: make(map[DirKey]map[string]struct{})}
}

// Insert records a value. Empty values are ignored.
func (c *AnalysisContext) Insert(v DirValue) *AnalysisContext {
	if v.Value == "" {
		return c
	}
	set, ok := c.values[v.Key]
	if !ok {
		set = make(map[string]struct{}, 1)
		c.values[v.Key] = set
	}
	set[v.Value] = struct{}{}
	return c
}

// SetAmount records the transaction amount in minor units.
func (c *AnalysisContext) SetAmount(amount int64) *AnalysisContext {
	c.amount = &amount
	return c
}

// HasKey reports whether any value is known for the key.
func (c *AnalysisContext) HasKey(key DirKey) bool {
	return len(c.values[key]) > 0
}

// Has reports whether the exact value is present.
func (c *AnalysisContext) Has(v DirValue) bool {
	_, ok := c.values[v.Key][v.Value]
	return ok
}

// Amount returns the recorded amount.
func (c *AnalysisContext) Amount() (int64, bool) {
	if c.amount == nil {
		return 0, false
	}
	return *c.amount, true
}

func (c *AnalysisContext) anyIn(key DirKey, set map[string]struct{}) bool {
	for v := range c.values[key] {
		if _, ok := set[v]; ok {
			return true
		}
	}
	return false
}

// ContextFromInput builds the analysis context for a BackendInput.
func ContextFromInput(in routing.BackendInput) *AnalysisContext {
	ctx := NewContext()
	ctx.Insert(DirValue{Key: KeyPaymentMethod, Value: string(in.PaymentMethod.PaymentMethod)})
	ctx.Insert(DirValue{Key: KeyPaymentMethodType, Value: string(in.PaymentMethod.PaymentMethodType)})
	ctx.Insert(DirValue{Key: KeyCardNetwork, Value: string(in.PaymentMethod.CardNetwork)})
	ctx.Insert(DirValue{Key: KeyCurrency, Value: string(in.Payment.Currency)})
	ctx.Insert(DirValue{Key: KeyBillingCountry, Value: string(in.Payment.BillingCountry)})
	ctx.Insert(DirValue{Key: KeyCaptureMethod, Value: string(in.Payment.CaptureMethod)})
	ctx.Insert(DirValue{Key: KeyAuthenticationType, Value: string(in.Payment.AuthenticationType)})
	ctx.Insert(DirValue{Key: KeySetupFutureUsage, Value: string(in.Payment.SetupFutureUsage)})
	ctx.Insert(DirValue{Key: KeyPaymentType, Value: string(in.Mandate.PaymentType)})
	// Zero is a real amount (mandate setup), not an unknown one.
	ctx.SetAmount(in.Payment.Amount)
	return ctx
}

// ConnectorValue returns the graph value addressing a connector choice.
func ConnectorValue(choice routing.RoutableConnectorChoice) DirValue {
	return DirValue{Key: KeyConnector, Value: choice.Label()}
}
