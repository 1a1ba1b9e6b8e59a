package dynamic

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/coachpo/payroute/internal/domain/routing"
)

// Parameter names accepted in a feature's params list.
const (
	ParamPaymentMethod      = "payment_method"
	ParamPaymentMethodType  = "payment_method_type"
	ParamAuthenticationType = "authentication_type"
	ParamCurrency           = "currency"
	ParamCountry            = "country"
	ParamCardNetwork        = "card_network"
	ParamCardBin            = "card_bin"
)

// Params renders the ":"-joined parameter blob the statistical services bucket by. Unknown
// names are skipped and missing values render empty.
func Params(in routing.BackendInput, names []string) string {
	parts := make([]string, 0, len(names))
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case ParamPaymentMethod:
			parts = append(parts, string(in.PaymentMethod.PaymentMethod))
		case ParamPaymentMethodType:
			parts = append(parts, string(in.PaymentMethod.PaymentMethodType))
		case ParamAuthenticationType:
			parts = append(parts, string(in.Payment.AuthenticationType))
		case ParamCurrency:
			parts = append(parts, string(in.Payment.Currency))
		case ParamCountry:
			parts = append(parts, string(in.Payment.BillingCountry))
		case ParamCardNetwork:
			parts = append(parts, string(in.PaymentMethod.CardNetwork))
		case ParamCardBin:
			parts = append(parts, in.Payment.CardBin)
		}
	}
	return strings.Join(parts, ":")
}

// MajorUnits converts a minor-unit amount into a decimal string in the currency's major unit.
func MajorUnits(amount int64, currency routing.Currency) string {
	exp := minorUnitExponent(currency)
	return decimal.New(amount, -exp).StringFixed(exp)
}

func minorUnitExponent(currency routing.Currency) int32 {
	switch strings.ToUpper(string(currency)) {
	case "BIF", "CLP", "DJF", "GNF", "ISK", "JPY", "KMF", "KRW", "PYG", "RWF", "UGX", "VND", "VUV", "XAF", "XOF", "XPF":
		return 0
	case "BHD", "IQD", "JOD", "KWD", "LYD", "OMR", "TND":
		return 3
	default:
		return 2
	}
}

// orderByLabels parses the labels a service ranked and returns the candidates in that order,
// followed by the candidates no label names. A label that does not parse, or a ranking that
// names none of the candidates, fails the call.
func orderByLabels(flow string, candidates []routing.RoutableConnectorChoice, labels []string) ([]routing.RoutableConnectorChoice, error) {
	ranked, err := routing.ParseLabels(labels)
	if err != nil {
		return nil, malformedResponse(flow, err)
	}
	used := make([]bool, len(candidates))
	out := make([]routing.RoutableConnectorChoice, 0, len(candidates))
	for _, choice := range ranked {
		for i, c := range candidates {
			if !used[i] && c == choice {
				used[i] = true
				out = append(out, c)
				break
			}
		}
	}
	if len(out) == 0 {
		return nil, malformedResponse(flow, errNoCandidateLabel)
	}
	for i, c := range candidates {
		if !used[i] {
			out = append(out, c)
		}
	}
	return out, nil
}

type scored struct {
	label string
	score float64
}

// labelsByScore sorts labels by descending score, keeping the service order for ties.
func labelsByScore(entries []scored) []string {
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].score > entries[j].score })
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.label
	}
	return out
}
