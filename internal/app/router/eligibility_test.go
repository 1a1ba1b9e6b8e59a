package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coachpo/payroute/internal/domain/kgraph"
	"github.com/coachpo/payroute/internal/domain/routing"
)

func TestEligibilityFilterIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	s.PutAccount(cardAccount(choiceB, "EUR"))
	graphs := NewGraphCache(s, kgraph.Filters{})
	graph, err := graphs.Get(context.Background(), testMerchant, testProfile, routing.TransactionPayment)
	require.NoError(t, err)

	input, err := attemptFirstBuilder{}.Build(cardPayment("USD", 1000))
	require.NoError(t, err)
	filter := NewEligibilityFilter(true)
	candidates := []routing.RoutableConnectorChoice{choiceA, choiceB, choiceC, choiceP}

	once, err := filter.Filter(context.Background(), candidates, input, nil, graph)
	require.NoError(t, err)
	require.Equal(t, []routing.RoutableConnectorChoice{choiceA, choiceC}, once)

	twice, err := filter.Filter(context.Background(), once, input, nil, graph)
	require.NoError(t, err)
	require.Equal(t, once, twice)
}

func TestEligibilityFilterWithoutGraphCheck(t *testing.T) {
	s := newTestStore(t)
	s.PutAccount(cardAccount(choiceB, "EUR"))
	graph, err := NewGraphCache(s, kgraph.Filters{}).Get(context.Background(), testMerchant, testProfile, routing.TransactionPayment)
	require.NoError(t, err)
	input, err := attemptFirstBuilder{}.Build(cardPayment("USD", 1000))
	require.NoError(t, err)

	out, err := NewEligibilityFilter(false).Filter(context.Background(),
		[]routing.RoutableConnectorChoice{choiceA, choiceB, choiceP}, input, nil, graph)
	require.NoError(t, err)
	require.Equal(t, []routing.RoutableConnectorChoice{choiceA, choiceB}, out)
}

func TestEligibilityFilterAppliesGlobalFilters(t *testing.T) {
	s := newTestStore(t)
	filters := kgraph.Filters{
		Connectors: map[routing.Connector]map[routing.PaymentMethodType]kgraph.PaymentMethodFilter{
			routing.ConnectorCheckout: {routing.PaymentMethodTypeCredit: {DeniedCountries: []routing.Country{"DE"}}},
		},
	}
	graph, err := NewGraphCache(s, filters).Get(context.Background(), testMerchant, testProfile, routing.TransactionPayment)
	require.NoError(t, err)
	input, err := attemptFirstBuilder{}.Build(cardPayment("USD", 1000))
	require.NoError(t, err)

	out, err := NewEligibilityFilter(true).Filter(context.Background(),
		[]routing.RoutableConnectorChoice{choiceA, choiceB, choiceC}, input, nil, graph)
	require.NoError(t, err)
	require.Equal(t, []routing.RoutableConnectorChoice{choiceA, choiceB}, out)
}

func TestEligibilityFilterWithoutGraph(t *testing.T) {
	out, err := NewEligibilityFilter(true).Filter(context.Background(),
		[]routing.RoutableConnectorChoice{choiceA}, routing.BackendInput{}, nil, nil)
	require.NoError(t, err)
	require.Empty(t, out)
}
