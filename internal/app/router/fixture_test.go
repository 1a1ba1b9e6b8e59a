package router

import (
	"testing"

	json "github.com/goccy/go-json"

	"github.com/coachpo/payroute/internal/domain/dsl"
	"github.com/coachpo/payroute/internal/domain/kgraph"
	"github.com/coachpo/payroute/internal/domain/routing"
	"github.com/coachpo/payroute/internal/domain/routingstore"
	"github.com/coachpo/payroute/internal/infra/persistence/memory"
)

const (
	testMerchant = "mer_1"
	testProfile  = "pro_1"
)

var (
	choiceA = routing.NewChoice(routing.ConnectorStripe, "mca_a")
	choiceB = routing.NewChoice(routing.ConnectorAdyen, "mca_b")
	choiceC = routing.NewChoice(routing.ConnectorCheckout, "mca_c")
	choiceP = routing.NewChoice(routing.ConnectorWise, "mca_p")
)

func cardAccount(choice routing.RoutableConnectorChoice, currencies ...routing.Currency) routingstore.MerchantConnectorAccount {
	return routingstore.MerchantConnectorAccount{
		ID:            choice.MerchantConnectorID,
		MerchantID:    testMerchant,
		ProfileID:     testProfile,
		Connector:     choice.Connector,
		ConnectorType: routingstore.ConnectorTypePaymentProcessor,
		PaymentMethods: []routingstore.PaymentMethodsEnabled{{
			PaymentMethod: routing.PaymentMethodCard,
			Types: []routingstore.PaymentMethodTypeConfig{
				{Type: routing.PaymentMethodTypeCredit, AcceptedCurrencies: currencies, RecurringEnabled: true},
				{Type: routing.PaymentMethodTypeDebit, AcceptedCurrencies: currencies, RecurringEnabled: true},
			},
		}},
	}
}

// newTestStore seeds three enabled card accounts (A, B, C) and a default list [A, B, C].
func newTestStore(t *testing.T) *memory.Store {
	t.Helper()
	s := memory.New()
	s.PutProfile(routingstore.Profile{ID: testProfile, MerchantID: testMerchant})
	for _, c := range []routing.RoutableConnectorChoice{choiceA, choiceB, choiceC} {
		s.PutAccount(cardAccount(c))
	}
	s.SetDefaultConnectors(testProfile, routing.TransactionPayment, []routing.RoutableConnectorChoice{choiceA, choiceB, choiceC})
	return s
}

// activate stores the algorithm under id and makes it the profile's active payment algorithm.
func activate(t *testing.T, s *memory.Store, id string, algo routing.RoutingAlgorithm) {
	t.Helper()
	doc, err := algo.MarshalJSON()
	if err != nil {
		t.Fatalf("encode algorithm: %v", err)
	}
	activateDocument(t, s, id, algo.Kind, doc)
}

// activateDocument stores a raw algorithm document, valid or not, and activates it.
func activateDocument(t *testing.T, s *memory.Store, id string, kind routing.AlgorithmKind, doc []byte) {
	t.Helper()
	s.PutAlgorithm(routingstore.AlgorithmRecord{
		ID:              id,
		MerchantID:      testMerchant,
		ProfileID:       testProfile,
		Kind:            kind,
		TransactionType: routing.TransactionPayment,
		Document:        doc,
	})
	profile, err := s.RoutingProfile(t.Context(), testMerchant, testProfile)
	if err != nil {
		t.Fatalf("load profile: %v", err)
	}
	profile.AlgorithmID = id
	s.PutProfile(profile)
}

func priority(choices ...routing.RoutableConnectorChoice) routing.RoutingAlgorithm {
	return routing.RoutingAlgorithm{Kind: routing.AlgorithmPriority, Priority: choices}
}

func volumeSplit(choices ...routing.VolumeSplitChoice) routing.RoutingAlgorithm {
	return routing.RoutingAlgorithm{Kind: routing.AlgorithmVolumeSplit, VolumeSplit: choices}
}

func advanced(t *testing.T, program dsl.Program) routing.RoutingAlgorithm {
	t.Helper()
	doc, err := json.Marshal(program)
	if err != nil {
		t.Fatalf("encode program: %v", err)
	}
	return routing.RoutingAlgorithm{Kind: routing.AlgorithmAdvanced, Advanced: doc}
}

func cardPayment(currency routing.Currency, amount int64) routing.Transaction {
	return routing.Transaction{
		PaymentID: "pay_1",
		Attempt: routing.AttemptDetails{
			AttemptID:         "att_1",
			PaymentMethod:     routing.PaymentMethodCard,
			PaymentMethodType: routing.PaymentMethodTypeCredit,
			CardNetwork:       routing.CardNetworkVisa,
		},
		Intent: routing.IntentDetails{Amount: amount, Currency: currency, BillingCountry: "DE"},
	}
}

func newTestStatic(s routingstore.Store) *StaticRouter {
	schema := dsl.BackendSchema()
	return NewStaticRouter(StaticDeps{
		Profiles:   s,
		Fallbacks:  s,
		Algorithms: NewAlgorithmCache(s, schema),
		Graphs:     NewGraphCache(s, kgraph.Filters{}),
		Schema:     schema,
	})
}
