package router

import (
	"fmt"
	"strings"

	"github.com/coachpo/payroute/errs"
	"github.com/coachpo/payroute/internal/domain/routing"
)

// Input schema versions.
const (
	InputSchemaV1 = "v1"
	InputSchemaV2 = "v2"
)

// InputBuilder derives the BackendInput a routing algorithm evaluates against. Build always
// returns the best input it could assemble; a non-nil error reports a missing required field.
type InputBuilder interface {
	Build(txn routing.Transaction) (routing.BackendInput, error)
	Version() string
}

// NewInputBuilder returns the builder for the configured payment schema version.
func NewInputBuilder(version string) (InputBuilder, error) {
	switch strings.ToLower(strings.TrimSpace(version)) {
	case "", InputSchemaV1:
		return attemptFirstBuilder{}, nil
	case InputSchemaV2:
		return intentFirstBuilder{}, nil
	default:
		return nil, fmt.Errorf("unsupported input schema %q", version)
	}
}

// attemptFirstBuilder prefers attempt-level attributes, falling back to the intent.
type attemptFirstBuilder struct{}

func (attemptFirstBuilder) Version() string { return InputSchemaV1 }

func (attemptFirstBuilder) Build(txn routing.Transaction) (routing.BackendInput, error) {
	if txn.TransactionType() == routing.TransactionPayout {
		return buildPayoutInput(txn)
	}
	a, i := txn.Attempt, txn.Intent
	in := baseInput(txn)
	in.Payment.Amount = firstNonZero(a.Amount, i.Amount)
	in.Payment.Currency = routing.NormalizeCurrency(string(pick(a.Currency, i.Currency)))
	in.Payment.CaptureMethod = pick(a.CaptureMethod, i.CaptureMethod)
	in.Payment.AuthenticationType = pick(a.AuthenticationType, i.AuthenticationType)
	return in, requireCurrency(in, txn.ReferenceID())
}

// intentFirstBuilder reads monetary and authorisation attributes from the intent only.
type intentFirstBuilder struct{}

func (intentFirstBuilder) Version() string { return InputSchemaV2 }

func (intentFirstBuilder) Build(txn routing.Transaction) (routing.BackendInput, error) {
	if txn.TransactionType() == routing.TransactionPayout {
		return buildPayoutInput(txn)
	}
	i := txn.Intent
	in := baseInput(txn)
	in.Payment.Amount = i.Amount
	in.Payment.Currency = routing.NormalizeCurrency(string(i.Currency))
	in.Payment.CaptureMethod = i.CaptureMethod
	in.Payment.AuthenticationType = i.AuthenticationType
	return in, requireCurrency(in, txn.ReferenceID())
}

// baseInput fills the fields both payment schema versions agree on.
func baseInput(txn routing.Transaction) routing.BackendInput {
	a, i := txn.Attempt, txn.Intent
	in := routing.BackendInput{
		Payment: routing.PaymentInput{
			CardBin:          strings.TrimSpace(a.CardBin),
			ExtendedCardBin:  strings.TrimSpace(a.ExtendedCardBin),
			BusinessCountry:  routing.NormalizeCountry(string(i.BusinessCountry)),
			BusinessLabel:    strings.TrimSpace(i.BusinessLabel),
			BillingCountry:   routing.NormalizeCountry(string(i.BillingCountry)),
			SetupFutureUsage: i.SetupFutureUsage,
		},
		PaymentMethod: routing.PaymentMethodInput{
			PaymentMethod:     a.PaymentMethod,
			PaymentMethodType: a.PaymentMethodType,
			CardNetwork:       a.CardNetwork,
		},
		Mandate: routing.MandateInput{
			MandateAcceptanceType: i.MandateAcceptanceType,
			MandateType:           a.MandateType,
			PaymentType:           pick(a.PaymentType, routing.PaymentTypeNormal),
		},
		Metadata: i.Metadata,
	}
	if i.AcquirerCountry != "" {
		in.Acquirer = &routing.AcquirerInput{Country: routing.NormalizeCountry(string(i.AcquirerCountry))}
	}
	if i.DevicePlatform != "" || i.DeviceType != "" {
		in.Device = &routing.DeviceInput{Platform: i.DevicePlatform, DeviceType: i.DeviceType}
	}
	if i.IssuerName != "" || i.IssuerCountry != "" {
		in.Issuer = &routing.IssuerInput{Name: i.IssuerName, Country: routing.NormalizeCountry(string(i.IssuerCountry))}
	}
	return in
}

func buildPayoutInput(txn routing.Transaction) (routing.BackendInput, error) {
	p := txn.Payout
	if p == nil {
		return routing.BackendInput{}, errs.New(component, errs.CodeInvalid,
			errs.WithMessage("payout details missing"),
			errs.WithField("reference_id", txn.ReferenceID()))
	}
	in := routing.BackendInput{
		Payment: routing.PaymentInput{
			Amount:          p.Amount,
			Currency:        routing.NormalizeCurrency(string(p.Currency)),
			BusinessCountry: routing.NormalizeCountry(string(p.BusinessCountry)),
			BusinessLabel:   strings.TrimSpace(p.BusinessLabel),
			BillingCountry:  routing.NormalizeCountry(string(p.BillingCountry)),
		},
		PaymentMethod: routing.PaymentMethodInput{
			PaymentMethod:     p.PayoutMethod,
			PaymentMethodType: p.PayoutMethodType,
		},
		Metadata: p.Metadata,
	}
	return in, requireCurrency(in, txn.ReferenceID())
}

func requireCurrency(in routing.BackendInput, reference string) error {
	if in.Payment.Currency != "" {
		return nil
	}
	return errs.New(component, errs.CodeInvalid,
		errs.WithMessage("currency missing from routing input"),
		errs.WithField("reference_id", reference))
}

func pick[T ~string](values ...T) T {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonZero(values ...int64) int64 {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}
