package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coachpo/payroute/internal/domain/routing"
)

func TestSessionRoutesEachPaymentMethodType(t *testing.T) {
	s := newTestStore(t)
	activate(t, s, "algo_prio", priority(choiceA, choiceB, choiceC))
	session := NewSessionRouter(newTestStatic(s), 2)

	got, err := session.Route(context.Background(), SessionRequest{
		MerchantID:  testMerchant,
		ProfileID:   testProfile,
		Transaction: cardPayment("USD", 1000),
		Candidates: map[routing.PaymentMethodType]SessionCandidates{
			routing.PaymentMethodTypeCredit: {
				PaymentMethod: routing.PaymentMethodCard,
				Connectors:    []routing.RoutableConnectorChoice{routing.NewChoice(routing.ConnectorStripe, ""), choiceB},
			},
			routing.PaymentMethodTypeDebit: {
				PaymentMethod: routing.PaymentMethodCard,
				Connectors:    []routing.RoutableConnectorChoice{choiceC},
			},
			routing.PaymentMethodTypeApplePay: {
				PaymentMethod: routing.PaymentMethodWallet,
				Connectors:    []routing.RoutableConnectorChoice{choiceA},
			},
		},
	})
	require.NoError(t, err)
	require.Equal(t, map[routing.PaymentMethodType][]routing.RoutableConnectorChoice{
		routing.PaymentMethodTypeCredit: {choiceA, choiceB},
		routing.PaymentMethodTypeDebit:  {choiceC},
	}, got)
}

func TestSessionWithoutCandidates(t *testing.T) {
	s := newTestStore(t)
	session := NewSessionRouter(newTestStatic(s), 0)
	got, err := session.Route(context.Background(), SessionRequest{
		MerchantID: testMerchant, ProfileID: testProfile, Transaction: cardPayment("USD", 1000),
	})
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestSessionRequiresProfile(t *testing.T) {
	s := newTestStore(t)
	session := NewSessionRouter(newTestStatic(s), 0)
	_, err := session.Route(context.Background(), SessionRequest{MerchantID: testMerchant})
	require.Error(t, err)
}

func TestOffered(t *testing.T) {
	candidates := []routing.RoutableConnectorChoice{routing.NewChoice(routing.ConnectorStripe, ""), choiceB}
	if !offered(candidates, choiceA) {
		t.Fatal("connector-only candidate should match any account")
	}
	if !offered(candidates, choiceB) {
		t.Fatal("exact candidate should match")
	}
	if offered(candidates, routing.NewChoice(routing.ConnectorAdyen, "mca_other")) {
		t.Fatal("different account should not match")
	}
	if offered(candidates, choiceC) {
		t.Fatal("unlisted connector should not match")
	}
}
