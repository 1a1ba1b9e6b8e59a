package kgraph

import (
	"fmt"
	"strings"

	"github.com/coachpo/payroute/internal/domain/routing"
	"github.com/coachpo/payroute/internal/domain/routingstore"
)

// PaymentMethodFilter restricts where a payment method type may be used with a connector.
type PaymentMethodFilter struct {
	Countries        []routing.Country
	Currencies       []routing.Currency
	DeniedCountries  []routing.Country
	DeniedCurrencies []routing.Currency
}

func (f PaymentMethodFilter) empty() bool {
	return len(f.Countries) == 0 && len(f.Currencies) == 0 && len(f.DeniedCountries) == 0 && len(f.DeniedCurrencies) == 0
}

// Filters holds the global payment method filters. Connector entries take precedence over
// Default for the same payment method type.
type Filters struct {
	Default    map[routing.PaymentMethodType]PaymentMethodFilter
	Connectors map[routing.Connector]map[routing.PaymentMethodType]PaymentMethodFilter
}

// Lookup returns the filter applying to the connector and payment method type.
func (f Filters) Lookup(connector routing.Connector, pmt routing.PaymentMethodType) (PaymentMethodFilter, bool) {
	if byType, ok := f.Connectors[connector]; ok {
		if filter, ok := byType[pmt]; ok {
			return filter, true
		}
	}
	filter, ok := f.Default[pmt]
	return filter, ok
}

// BuildOptions scopes a graph to one profile and transaction type.
type BuildOptions struct {
	ProfileID       string
	TransactionType routing.TransactionType
}

// Build constructs the constraint graph from the merchant's connector accounts. Disabled
// accounts and accounts outside the profile or connector type are skipped.
func Build(accounts []routingstore.MerchantConnectorAccount, filters Filters, opts BuildOptions) (*Graph, error) {
	txnType := opts.TransactionType
	if txnType == "" {
		txnType = routing.TransactionPayment
	}
	b := NewBuilder()
	for _, account := range accounts {
		if account.Disabled {
			continue
		}
		if opts.ProfileID != "" && !account.Serves(opts.ProfileID, txnType) {
			continue
		}
		if opts.ProfileID == "" && account.ConnectorType != routingstore.ForTransaction(txnType) {
			continue
		}
		if err := addAccount(b, account, filters); err != nil {
			return nil, fmt.Errorf("account %s: %w", account.ID, err)
		}
	}
	return b.Build(), nil
}

func addAccount(b *Builder, account routingstore.MerchantConnectorAccount, filters Filters) error {
	if !account.Connector.Valid() {
		return fmt.Errorf("unknown connector %q", account.Connector)
	}
	if strings.TrimSpace(account.ID) == "" {
		return fmt.Errorf("connector %s: account id missing", account.Connector)
	}
	choice := account.Choice()
	label := choice.Label()
	connector := b.ValueNode(ConnectorValue(choice))

	if len(account.CaptureMethods) > 0 {
		methods := make([]string, 0, len(account.CaptureMethods))
		for _, m := range account.CaptureMethods {
			methods = append(methods, string(m))
		}
		in := b.InNode(KeyCaptureMethod, methods, label)
		if err := b.Edge(in, connector, Positive, Normal); err != nil {
			return err
		}
	}

	if len(account.PaymentMethods) == 0 {
		return nil
	}
	methods := b.AnyNode("payment_methods:" + label)
	if err := b.Edge(methods, connector, Positive, Strong); err != nil {
		return err
	}
	for _, pm := range account.PaymentMethods {
		if pm.PaymentMethod == "" {
			return fmt.Errorf("payment method missing")
		}
		types := pm.Types
		if len(types) == 0 {
			types = []routingstore.PaymentMethodTypeConfig{{RecurringEnabled: true}}
		}
		for _, cfg := range types {
			entry, err := addPaymentMethodType(b, account.Connector, label, pm.PaymentMethod, cfg, filters)
			if err != nil {
				return err
			}
			if err := b.Edge(entry, methods, Positive, Normal); err != nil {
				return err
			}
		}
	}
	return nil
}

func addPaymentMethodType(b *Builder, connector routing.Connector, label string, pm routing.PaymentMethod,
	cfg routingstore.PaymentMethodTypeConfig, filters Filters) (NodeID, error) {
	entry := b.AllNode(label + "/" + string(pm) + "/" + string(cfg.Type))
	require := func(from NodeID) error { return b.Edge(from, entry, Positive, Normal) }
	conflict := func(from NodeID) error { return b.Edge(from, entry, Negative, Normal) }

	if err := require(b.ValueNode(DirValue{Key: KeyPaymentMethod, Value: string(pm)})); err != nil {
		return 0, err
	}
	if cfg.Type != "" {
		if err := require(b.ValueNode(DirValue{Key: KeyPaymentMethodType, Value: string(cfg.Type)})); err != nil {
			return 0, err
		}
	}
	if len(cfg.CardNetworks) > 0 {
		if err := require(b.InNode(KeyCardNetwork, toStrings(cfg.CardNetworks), label)); err != nil {
			return 0, err
		}
	}
	if len(cfg.AcceptedCurrencies) > 0 {
		if err := require(b.InNode(KeyCurrency, toStrings(cfg.AcceptedCurrencies), label)); err != nil {
			return 0, err
		}
	}
	if len(cfg.AcceptedCountries) > 0 {
		if err := require(b.InNode(KeyBillingCountry, toStrings(cfg.AcceptedCountries), label)); err != nil {
			return 0, err
		}
	}
	if cfg.MinimumAmount != nil || cfg.MaximumAmount != nil {
		if cfg.MinimumAmount != nil && cfg.MaximumAmount != nil && *cfg.MinimumAmount > *cfg.MaximumAmount {
			return 0, fmt.Errorf("%s: minimum amount exceeds maximum", cfg.Type)
		}
		if err := require(b.AmountRangeNode(cfg.MinimumAmount, cfg.MaximumAmount, label)); err != nil {
			return 0, err
		}
	}
	if !cfg.RecurringEnabled {
		offSession := b.ValueNode(DirValue{Key: KeySetupFutureUsage, Value: string(routing.SetupFutureUsageOffSession)})
		if err := conflict(offSession); err != nil {
			return 0, err
		}
	}

	filter, ok := filters.Lookup(connector, cfg.Type)
	if !ok || filter.empty() {
		return entry, nil
	}
	if len(filter.Countries) > 0 {
		if err := require(b.InNode(KeyBillingCountry, toStrings(filter.Countries), "filter")); err != nil {
			return 0, err
		}
	}
	if len(filter.Currencies) > 0 {
		if err := require(b.InNode(KeyCurrency, toStrings(filter.Currencies), "filter")); err != nil {
			return 0, err
		}
	}
	if len(filter.DeniedCountries) > 0 {
		if err := conflict(b.InNode(KeyBillingCountry, toStrings(filter.DeniedCountries), "deny")); err != nil {
			return 0, err
		}
	}
	if len(filter.DeniedCurrencies) > 0 {
		if err := conflict(b.InNode(KeyCurrency, toStrings(filter.DeniedCurrencies), "deny")); err != nil {
			return 0, err
		}
	}
	return entry, nil
}

func toStrings[T ~string](values []T) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, string(v))
	}
	return out
}
