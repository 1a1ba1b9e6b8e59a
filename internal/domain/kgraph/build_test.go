package kgraph

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coachpo/payroute/internal/domain/routing"
	"github.com/coachpo/payroute/internal/domain/routingstore"
)

func int64Ptr(v int64) *int64 { return &v }

func sampleAccounts() []routingstore.MerchantConnectorAccount {
	return []routingstore.MerchantConnectorAccount{
		{
			ID:            "mca_stripe",
			MerchantID:    "m1",
			ProfileID:     "p1",
			Connector:     routing.ConnectorStripe,
			ConnectorType: routingstore.ConnectorTypePaymentProcessor,
			PaymentMethods: []routingstore.PaymentMethodsEnabled{{
				PaymentMethod: routing.PaymentMethodCard,
				Types: []routingstore.PaymentMethodTypeConfig{{
					Type:               routing.PaymentMethodTypeCredit,
					CardNetworks:       []routing.CardNetwork{routing.CardNetworkVisa, routing.CardNetworkMastercard},
					AcceptedCurrencies: []routing.Currency{"USD", "EUR"},
					MaximumAmount:      int64Ptr(100000),
					RecurringEnabled:   true,
				}},
			}},
			CaptureMethods: []routing.CaptureMethod{routing.CaptureMethodAutomatic, routing.CaptureMethodManual},
		},
		{
			ID:            "mca_adyen",
			MerchantID:    "m1",
			ProfileID:     "p1",
			Connector:     routing.ConnectorAdyen,
			ConnectorType: routingstore.ConnectorTypePaymentProcessor,
			PaymentMethods: []routingstore.PaymentMethodsEnabled{
				{PaymentMethod: routing.PaymentMethodCard, Types: []routingstore.PaymentMethodTypeConfig{{Type: routing.PaymentMethodTypeCredit}}},
				{PaymentMethod: routing.PaymentMethodWallet, Types: []routingstore.PaymentMethodTypeConfig{{Type: routing.PaymentMethodTypeApplePay, RecurringEnabled: true}}},
			},
		},
		{
			ID:            "mca_disabled",
			ProfileID:     "p1",
			Connector:     routing.ConnectorCheckout,
			ConnectorType: routingstore.ConnectorTypePaymentProcessor,
			Disabled:      true,
		},
		{
			ID:            "mca_other_profile",
			ProfileID:     "p2",
			Connector:     routing.ConnectorBraintree,
			ConnectorType: routingstore.ConnectorTypePaymentProcessor,
		},
		{
			ID:            "mca_payout",
			ProfileID:     "p1",
			Connector:     routing.ConnectorWise,
			ConnectorType: routingstore.ConnectorTypePayoutProcessor,
		},
	}
}

func connectorValid(t *testing.T, g *Graph, connector routing.Connector, mca string, in routing.BackendInput) bool {
	t.Helper()
	ok, err := g.CheckValueValidity(ConnectorValue(routing.NewChoice(connector, mca)), ContextFromInput(in), NewMemo(), NewCycleGuard())
	require.NoError(t, err)
	return ok
}

func TestBuildScopesAccounts(t *testing.T) {
	g, err := Build(sampleAccounts(), Filters{}, BuildOptions{ProfileID: "p1", TransactionType: routing.TransactionPayment})
	require.NoError(t, err)
	require.Equal(t, []string{"adyen:mca_adyen", "stripe:mca_stripe"}, g.Values(KeyConnector))

	payouts, err := Build(sampleAccounts(), Filters{}, BuildOptions{ProfileID: "p1", TransactionType: routing.TransactionPayout})
	require.NoError(t, err)
	require.Equal(t, []string{"wise:mca_payout"}, payouts.Values(KeyConnector))

	stats := g.Stats()
	require.Equal(t, stats.Nodes, stats.ValueNodes+stats.Aggregators)
	require.Positive(t, stats.Edges)
}

func TestBuildAmountRangeAppliesToZeroAmount(t *testing.T) {
	accounts := []routingstore.MerchantConnectorAccount{{
		ID:            "mca_min",
		ProfileID:     "p1",
		Connector:     routing.ConnectorStripe,
		ConnectorType: routingstore.ConnectorTypePaymentProcessor,
		PaymentMethods: []routingstore.PaymentMethodsEnabled{{
			PaymentMethod: routing.PaymentMethodCard,
			Types: []routingstore.PaymentMethodTypeConfig{{
				Type:          routing.PaymentMethodTypeCredit,
				MinimumAmount: int64Ptr(100),
			}},
		}},
	}}
	g, err := Build(accounts, Filters{}, BuildOptions{ProfileID: "p1"})
	require.NoError(t, err)

	in := routing.BackendInput{
		Payment:       routing.PaymentInput{Currency: "USD"},
		PaymentMethod: routing.PaymentMethodInput{PaymentMethod: routing.PaymentMethodCard, PaymentMethodType: routing.PaymentMethodTypeCredit},
	}
	require.False(t, connectorValid(t, g, routing.ConnectorStripe, "mca_min", in))

	in.Payment.Amount = 100
	require.True(t, connectorValid(t, g, routing.ConnectorStripe, "mca_min", in))
}

func TestBuildFeatureMatrix(t *testing.T) {
	g, err := Build(sampleAccounts(), Filters{}, BuildOptions{ProfileID: "p1"})
	require.NoError(t, err)

	visaUSD := routing.BackendInput{
		Payment:       routing.PaymentInput{Amount: 5000, Currency: "USD", CaptureMethod: routing.CaptureMethodManual},
		PaymentMethod: routing.PaymentMethodInput{PaymentMethod: routing.PaymentMethodCard, PaymentMethodType: routing.PaymentMethodTypeCredit, CardNetwork: routing.CardNetworkVisa},
	}
	require.True(t, connectorValid(t, g, routing.ConnectorStripe, "mca_stripe", visaUSD))
	require.True(t, connectorValid(t, g, routing.ConnectorAdyen, "mca_adyen", visaUSD))

	gbp := visaUSD
	gbp.Payment.Currency = "GBP"
	require.False(t, connectorValid(t, g, routing.ConnectorStripe, "mca_stripe", gbp))

	amex := visaUSD
	amex.PaymentMethod.CardNetwork = routing.CardNetworkAmex
	require.False(t, connectorValid(t, g, routing.ConnectorStripe, "mca_stripe", amex))

	large := visaUSD
	large.Payment.Amount = 200000
	require.False(t, connectorValid(t, g, routing.ConnectorStripe, "mca_stripe", large))

	scheduled := visaUSD
	scheduled.Payment.CaptureMethod = routing.CaptureMethodScheduled
	require.False(t, connectorValid(t, g, routing.ConnectorStripe, "mca_stripe", scheduled))

	applePay := routing.BackendInput{
		Payment:       routing.PaymentInput{Amount: 100, Currency: "USD"},
		PaymentMethod: routing.PaymentMethodInput{PaymentMethod: routing.PaymentMethodWallet, PaymentMethodType: routing.PaymentMethodTypeApplePay},
	}
	require.False(t, connectorValid(t, g, routing.ConnectorStripe, "mca_stripe", applePay))
	require.True(t, connectorValid(t, g, routing.ConnectorAdyen, "mca_adyen", applePay))

	recurringCard := visaUSD
	recurringCard.Payment.SetupFutureUsage = routing.SetupFutureUsageOffSession
	require.True(t, connectorValid(t, g, routing.ConnectorStripe, "mca_stripe", recurringCard))
	require.False(t, connectorValid(t, g, routing.ConnectorAdyen, "mca_adyen", recurringCard))

	require.False(t, connectorValid(t, g, routing.ConnectorCheckout, "mca_disabled", visaUSD))
}

func TestBuildAppliesFilters(t *testing.T) {
	filters := Filters{
		Default: map[routing.PaymentMethodType]PaymentMethodFilter{
			routing.PaymentMethodTypeApplePay: {Countries: []routing.Country{"US", "GB"}},
		},
		Connectors: map[routing.Connector]map[routing.PaymentMethodType]PaymentMethodFilter{
			routing.ConnectorAdyen: {
				routing.PaymentMethodTypeCredit: {DeniedCurrencies: []routing.Currency{"INR"}},
			},
		},
	}
	g, err := Build(sampleAccounts(), filters, BuildOptions{ProfileID: "p1"})
	require.NoError(t, err)

	applePay := func(country routing.Country) routing.BackendInput {
		return routing.BackendInput{
			Payment:       routing.PaymentInput{Currency: "USD", BillingCountry: country},
			PaymentMethod: routing.PaymentMethodInput{PaymentMethod: routing.PaymentMethodWallet, PaymentMethodType: routing.PaymentMethodTypeApplePay},
		}
	}
	require.True(t, connectorValid(t, g, routing.ConnectorAdyen, "mca_adyen", applePay("GB")))
	require.False(t, connectorValid(t, g, routing.ConnectorAdyen, "mca_adyen", applePay("DE")))

	credit := func(currency routing.Currency) routing.BackendInput {
		return routing.BackendInput{
			Payment:       routing.PaymentInput{Currency: currency},
			PaymentMethod: routing.PaymentMethodInput{PaymentMethod: routing.PaymentMethodCard, PaymentMethodType: routing.PaymentMethodTypeCredit},
		}
	}
	require.True(t, connectorValid(t, g, routing.ConnectorAdyen, "mca_adyen", credit("USD")))
	require.False(t, connectorValid(t, g, routing.ConnectorAdyen, "mca_adyen", credit("INR")))
}

func TestBuildRejectsMalformedAccounts(t *testing.T) {
	accounts := []routingstore.MerchantConnectorAccount{{
		ID:            "mca_x",
		ProfileID:     "p1",
		Connector:     "acme",
		ConnectorType: routingstore.ConnectorTypePaymentProcessor,
	}}
	_, err := Build(accounts, Filters{}, BuildOptions{ProfileID: "p1"})
	require.Error(t, err)

	accounts = []routingstore.MerchantConnectorAccount{{
		ID:            "mca_y",
		ProfileID:     "p1",
		Connector:     routing.ConnectorStripe,
		ConnectorType: routingstore.ConnectorTypePaymentProcessor,
		PaymentMethods: []routingstore.PaymentMethodsEnabled{{
			PaymentMethod: routing.PaymentMethodCard,
			Types: []routingstore.PaymentMethodTypeConfig{{
				Type:          routing.PaymentMethodTypeCredit,
				MinimumAmount: int64Ptr(10),
				MaximumAmount: int64Ptr(5),
			}},
		}},
	}}
	_, err = Build(accounts, Filters{}, BuildOptions{ProfileID: "p1"})
	require.Error(t, err)
}
