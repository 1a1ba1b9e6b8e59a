package router

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coachpo/payroute/errs"
	"github.com/coachpo/payroute/internal/domain/dsl"
	"github.com/coachpo/payroute/internal/domain/routing"
	"github.com/coachpo/payroute/internal/domain/routingstore"
	"github.com/coachpo/payroute/internal/infra/persistence/memory"
)

func route(t *testing.T, s routingstore.Store, txn routing.Transaction) Outcome {
	t.Helper()
	out, err := newTestStatic(s).Route(context.Background(), Request{MerchantID: testMerchant, ProfileID: testProfile, Transaction: txn})
	require.NoError(t, err)
	return out
}

func TestStaticPriorityDropsDisabledAccount(t *testing.T) {
	s := newTestStore(t)
	disabled := cardAccount(choiceA)
	disabled.Disabled = true
	s.PutAccount(disabled)
	activate(t, s, "algo_prio", priority(choiceA, choiceB))

	out := route(t, s, cardPayment("USD", 1000))
	require.Equal(t, []routing.RoutableConnectorChoice{choiceB}, out.Decision.Connectors)
	require.Equal(t, routing.ApproachNone, out.Decision.Approach)
	require.False(t, out.Fallback)
	require.Equal(t, "algo_prio", out.AlgorithmID)
}

func TestStaticVolumeSplitFullWeight(t *testing.T) {
	s := newTestStore(t)
	activate(t, s, "algo_vs", volumeSplit(
		routing.VolumeSplitChoice{Split: 0, Connector: choiceA},
		routing.VolumeSplitChoice{Split: 100, Connector: choiceB},
	))

	for range 20 {
		out := route(t, s, cardPayment("USD", 1000))
		require.Equal(t, []routing.RoutableConnectorChoice{choiceB, choiceA}, out.Decision.Connectors)
		require.Equal(t, routing.ApproachVolumeBased, out.Decision.Approach)
	}
}

func currencyProgram(t *testing.T) routing.RoutingAlgorithm {
	return advanced(t, dsl.Program{
		DefaultSelection: dsl.PriorityOutput(choiceB),
		Rules: []dsl.Rule{{
			Name:      "eur_cards",
			Selection: dsl.PriorityOutput(choiceA),
			Condition: dsl.All(
				dsl.Cmp("payment.currency", dsl.OpEqual, dsl.Enum("EUR")),
				dsl.Cmp("payment_method.payment_method", dsl.OpEqual, dsl.Enum("card")),
			),
		}},
	})
}

func TestStaticAdvancedRules(t *testing.T) {
	s := newTestStore(t)
	activate(t, s, "algo_adv", currencyProgram(t))

	eur := route(t, s, cardPayment("EUR", 1000))
	require.Equal(t, []routing.RoutableConnectorChoice{choiceA}, eur.Decision.Connectors)
	require.Equal(t, routing.ApproachRuleBased, eur.Decision.Approach)
	require.Equal(t, "eur_cards", eur.Rule)

	usd := route(t, s, cardPayment("USD", 1000))
	require.Equal(t, []routing.RoutableConnectorChoice{choiceB}, usd.Decision.Connectors)
	require.Equal(t, routing.ApproachRuleBased, usd.Decision.Approach)
	require.Empty(t, usd.Rule)
}

func TestStaticAdvancedFallsBackWhenRuleOutputIneligible(t *testing.T) {
	s := newTestStore(t)
	disabled := cardAccount(choiceA)
	disabled.Disabled = true
	s.PutAccount(disabled)
	activate(t, s, "algo_adv", currencyProgram(t))

	out := route(t, s, cardPayment("EUR", 1000))
	require.True(t, out.Fallback)
	require.Equal(t, []routing.RoutableConnectorChoice{choiceB, choiceC}, out.Decision.Connectors)
	require.Equal(t, routing.ApproachNone, out.Decision.Approach)
}

func TestStaticGraphRejectsUnsupportedCurrency(t *testing.T) {
	s := newTestStore(t)
	s.PutAccount(cardAccount(choiceA, "EUR"))
	activate(t, s, "algo_prio", priority(choiceA, choiceB))

	out := route(t, s, cardPayment("USD", 1000))
	require.Equal(t, []routing.RoutableConnectorChoice{choiceB}, out.Decision.Connectors)

	out = route(t, s, cardPayment("EUR", 1000))
	require.Equal(t, []routing.RoutableConnectorChoice{choiceA, choiceB}, out.Decision.Connectors)
}

func TestStaticAllowList(t *testing.T) {
	s := newTestStore(t)
	activate(t, s, "algo_prio", priority(choiceA, choiceB, choiceC))

	txn := cardPayment("USD", 1000)
	txn.EligibleConnectors = []routing.Connector{routing.ConnectorAdyen, routing.ConnectorCheckout}
	out := route(t, s, txn)
	require.Equal(t, []routing.RoutableConnectorChoice{choiceB, choiceC}, out.Decision.Connectors)
}

func TestStaticStraightThrough(t *testing.T) {
	s := newTestStore(t)
	activate(t, s, "algo_prio", priority(choiceA))

	txn := cardPayment("USD", 1000)
	st := priority(choiceC, choiceB)
	txn.StraightThrough = &st
	out := route(t, s, txn)
	require.Equal(t, []routing.RoutableConnectorChoice{choiceC, choiceB}, out.Decision.Connectors)
	require.Equal(t, routing.ApproachStraightThrough, out.Decision.Approach)
	require.Empty(t, out.AlgorithmID)

	invalid := routing.RoutingAlgorithm{Kind: routing.AlgorithmPriority}
	txn.StraightThrough = &invalid
	out = route(t, s, txn)
	require.True(t, out.Fallback)
	require.Equal(t, []routing.RoutableConnectorChoice{choiceA, choiceB, choiceC}, out.Decision.Connectors)
}

func TestStaticPayout(t *testing.T) {
	s := newTestStore(t)
	s.PutAccount(routingstore.MerchantConnectorAccount{
		ID:            choiceP.MerchantConnectorID,
		MerchantID:    testMerchant,
		ProfileID:     testProfile,
		Connector:     choiceP.Connector,
		ConnectorType: routingstore.ConnectorTypePayoutProcessor,
	})
	doc, err := priority(choiceP, choiceA).MarshalJSON()
	require.NoError(t, err)
	s.PutAlgorithm(routingstore.AlgorithmRecord{
		ID: "algo_payout", MerchantID: testMerchant, ProfileID: testProfile,
		Kind: routing.AlgorithmPriority, TransactionType: routing.TransactionPayout, Document: doc,
	})
	s.PutProfile(routingstore.Profile{ID: testProfile, MerchantID: testMerchant, PayoutAlgorithmID: "algo_payout"})
	s.SetDefaultConnectors(testProfile, routing.TransactionPayout, []routing.RoutableConnectorChoice{choiceP})

	txn := routing.Transaction{
		Type:   routing.TransactionPayout,
		Payout: &routing.PayoutDetails{PayoutID: "po_1", Amount: 5000, Currency: "eur", PayoutMethod: routing.PaymentMethodBankTransfer},
	}
	out := route(t, s, txn)
	// Payment accounts never serve payouts.
	require.Equal(t, []routing.RoutableConnectorChoice{choiceP}, out.Decision.Connectors)
	require.Equal(t, "algo_payout", out.AlgorithmID)
	require.Equal(t, routing.Currency("EUR"), out.Input.Payment.Currency)
}

func TestStaticDegradesToFallback(t *testing.T) {
	cases := []struct {
		name  string
		setup func(t *testing.T, s *memory.Store)
		txn   routing.Transaction
	}{
		{
			name:  "no active algorithm",
			setup: func(*testing.T, *memory.Store) {},
			txn:   cardPayment("USD", 1000),
		},
		{
			name: "active algorithm missing from store",
			setup: func(t *testing.T, s *memory.Store) {
				s.PutProfile(routingstore.Profile{ID: testProfile, MerchantID: testMerchant, AlgorithmID: "algo_gone"})
			},
			txn: cardPayment("USD", 1000),
		},
		{
			name: "currency missing from input",
			setup: func(t *testing.T, s *memory.Store) {
				activate(t, s, "algo_prio", priority(choiceC))
			},
			txn: cardPayment("", 1000),
		},
		{
			name: "volume split with zero weights",
			setup: func(t *testing.T, s *memory.Store) {
				activate(t, s, "algo_vs", volumeSplit(routing.VolumeSplitChoice{Split: 0, Connector: choiceC}))
			},
			txn: cardPayment("USD", 1000),
		},
		{
			name: "unparseable algorithm document",
			setup: func(t *testing.T, s *memory.Store) {
				activateDocument(t, s, "algo_bad", routing.AlgorithmPriority, []byte(`{"type":"priority","data":`))
			},
			txn: cardPayment("USD", 1000),
		},
		{
			name: "3ds decision rule",
			setup: func(t *testing.T, s *memory.Store) {
				activateDocument(t, s, "algo_3ds", routing.AlgorithmThreeDsDecisionRule,
					[]byte(`{"type":"three_ds_decision_rule","data":{"decision":"challenge_requested"}}`))
			},
			txn: cardPayment("USD", 1000),
		},
		{
			name: "program fails type check",
			setup: func(t *testing.T, s *memory.Store) {
				activate(t, s, "algo_typed", advanced(t, dsl.Program{
					DefaultSelection: dsl.PriorityOutput(choiceC),
					Rules: []dsl.Rule{{
						Name:      "amount_as_enum",
						Selection: dsl.PriorityOutput(choiceC),
						Condition: dsl.Cmp("payment.amount", dsl.OpEqual, dsl.Enum("100")),
					}},
				}))
			},
			txn: cardPayment("USD", 100),
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestStore(t)
			tc.setup(t, s)
			out := route(t, s, tc.txn)
			require.True(t, out.Fallback)
			require.Equal(t, routing.ApproachNone, out.Decision.Approach)
			require.Equal(t, []routing.RoutableConnectorChoice{choiceA, choiceB, choiceC}, out.Decision.Connectors)
		})
	}
}

func TestStaticProfileMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := newTestStatic(s).Route(context.Background(), Request{MerchantID: testMerchant, Transaction: cardPayment("USD", 1)})
	require.Error(t, err)
	require.True(t, errs.IsCanonical(err, errs.CanonicalProfileMissing))
}

type failingFallbacks struct {
	routingstore.Store
}

func (failingFallbacks) DefaultConnectors(context.Context, string, routing.TransactionType) ([]routing.RoutableConnectorChoice, error) {
	return nil, errors.New("connection reset")
}

type failingAccounts struct {
	routingstore.Store
}

func (failingAccounts) ListActiveAccounts(context.Context, string) ([]routingstore.MerchantConnectorAccount, error) {
	return nil, errors.New("connection reset")
}

func TestStaticHardFailures(t *testing.T) {
	s := newTestStore(t)
	activate(t, s, "algo_prio", priority(choiceA))

	for name, store := range map[string]routingstore.Store{
		"default list":     failingFallbacks{Store: s},
		"constraint graph": failingAccounts{Store: s},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := newTestStatic(store).Route(context.Background(),
				Request{MerchantID: testMerchant, ProfileID: testProfile, Transaction: cardPayment("USD", 1000)})
			require.Error(t, err)
			require.True(t, errs.IsCanonical(err, errs.CanonicalFallbackUnavailable))
		})
	}
}
