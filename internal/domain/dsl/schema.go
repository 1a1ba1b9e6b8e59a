package dsl

import (
	"sort"

	"github.com/coachpo/payroute/internal/domain/routing"
)

// FieldKind classifies a schema field for type checking.
type FieldKind int

const (
	KindEnum FieldKind = iota + 1
	KindNumber
	KindString
	KindMetadata
)

func (k FieldKind) String() string {
	switch k {
	case KindEnum:
		return "enum"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindMetadata:
		return "metadata"
	default:
		return "unknown"
	}
}

// fact is the resolved value of one field for one input.
type fact struct {
	str  string
	num  int64
	meta map[string]string
}

// resolver extracts a field from the input; ok is false when the field is absent.
type resolver func(in *routing.BackendInput) (fact, bool)

// Field describes one dotted path of the BackendInput.
type Field struct {
	Path string
	Kind FieldKind
	// Variants restricts enum literals; nil accepts any non-empty variant.
	Variants map[string]struct{}
	resolve  resolver
}

// Allows reports whether the enum variant is acceptable for the field.
func (f Field) Allows(variant string) bool {
	if variant == "" {
		return false
	}
	if f.Variants == nil {
		return true
	}
	_, ok := f.Variants[variant]
	return ok
}

// Schema is the set of fields a program may reference.
type Schema struct {
	fields map[string]Field
}

// NewSchema builds a schema from field definitions.
func NewSchema(fields ...Field) *Schema {
	s := &Schema{fields: make(map[string]Field, len(fields))}
	for _, f := range fields {
		s.fields[f.Path] = f
	}
	return s
}

// Field returns the definition for a path.
func (s *Schema) Field(path string) (Field, bool) {
	if s == nil {
		return Field{}, false
	}
	f, ok := s.fields[path]
	return f, ok
}

// Paths lists the schema paths in sorted order.
func (s *Schema) Paths() []string {
	out := make([]string, 0, len(s.fields))
	for path := range s.fields {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

// Without returns a copy of the schema lacking the given paths.
func (s *Schema) Without(paths ...string) *Schema {
	out := &Schema{fields: make(map[string]Field, len(s.fields))}
	for path, f := range s.fields {
		out.fields[path] = f
	}
	for _, path := range paths {
		delete(out.fields, path)
	}
	return out
}

func variants[T ~string](values ...T) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		out[string(v)] = struct{}{}
	}
	return out
}

func enumField[T ~string](path string, allowed map[string]struct{}, get func(in *routing.BackendInput) T) Field {
	return Field{Path: path, Kind: KindEnum, Variants: allowed, resolve: func(in *routing.BackendInput) (fact, bool) {
		v := get(in)
		return fact{str: string(v)}, v != ""
	}}
}

func stringField(path string, get func(in *routing.BackendInput) string) Field {
	return Field{Path: path, Kind: KindString, resolve: func(in *routing.BackendInput) (fact, bool) {
		v := get(in)
		return fact{str: v}, v != ""
	}}
}

func numberField(path string, get func(in *routing.BackendInput) (int64, bool)) Field {
	return Field{Path: path, Kind: KindNumber, resolve: func(in *routing.BackendInput) (fact, bool) {
		v, ok := get(in)
		return fact{num: v}, ok
	}}
}

var backendSchema = NewSchema(
	numberField("payment.amount", func(in *routing.BackendInput) (int64, bool) { return in.Payment.Amount, true }),
	enumField("payment.currency", nil, func(in *routing.BackendInput) routing.Currency { return in.Payment.Currency }),
	enumField("payment.capture_method", variants(
		routing.CaptureMethodAutomatic, routing.CaptureMethodManual,
		routing.CaptureMethodManualMultiple, routing.CaptureMethodScheduled,
	), func(in *routing.BackendInput) routing.CaptureMethod { return in.Payment.CaptureMethod }),
	enumField("payment.authentication_type", variants(routing.AuthenticationThreeDS, routing.AuthenticationNoThreeDS),
		func(in *routing.BackendInput) routing.AuthenticationType { return in.Payment.AuthenticationType }),
	stringField("payment.card_bin", func(in *routing.BackendInput) string { return in.Payment.CardBin }),
	stringField("payment.extended_card_bin", func(in *routing.BackendInput) string { return in.Payment.ExtendedCardBin }),
	enumField("payment.business_country", nil, func(in *routing.BackendInput) routing.Country { return in.Payment.BusinessCountry }),
	stringField("payment.business_label", func(in *routing.BackendInput) string { return in.Payment.BusinessLabel }),
	enumField("payment.billing_country", nil, func(in *routing.BackendInput) routing.Country { return in.Payment.BillingCountry }),
	enumField("payment.setup_future_usage", variants(routing.SetupFutureUsageOnSession, routing.SetupFutureUsageOffSession),
		func(in *routing.BackendInput) routing.SetupFutureUsage { return in.Payment.SetupFutureUsage }),
	enumField("payment_method.payment_method", nil, func(in *routing.BackendInput) routing.PaymentMethod { return in.PaymentMethod.PaymentMethod }),
	enumField("payment_method.payment_method_type", nil, func(in *routing.BackendInput) routing.PaymentMethodType {
		return in.PaymentMethod.PaymentMethodType
	}),
	enumField("payment_method.card_network", nil, func(in *routing.BackendInput) routing.CardNetwork { return in.PaymentMethod.CardNetwork }),
	enumField("mandate.mandate_acceptance_type", variants(routing.MandateAcceptanceOnline, routing.MandateAcceptanceOffline),
		func(in *routing.BackendInput) routing.MandateAcceptanceType { return in.Mandate.MandateAcceptanceType }),
	enumField("mandate.mandate_type", variants(routing.MandateTypeSingleUse, routing.MandateTypeMultiUse),
		func(in *routing.BackendInput) routing.MandateType { return in.Mandate.MandateType }),
	enumField("mandate.payment_type", variants(
		routing.PaymentTypeNormal, routing.PaymentTypeSetupMandate, routing.PaymentTypeProcessorTokenMandate,
	), func(in *routing.BackendInput) routing.PaymentType { return in.Mandate.PaymentType }),
	Field{Path: "metadata", Kind: KindMetadata, resolve: func(in *routing.BackendInput) (fact, bool) {
		return fact{meta: in.Metadata}, len(in.Metadata) > 0
	}},
	enumField("acquirer_data.country", nil, func(in *routing.BackendInput) routing.Country {
		if in.Acquirer == nil {
			return ""
		}
		return in.Acquirer.Country
	}),
	numberField("acquirer_data.fraud_rate", func(in *routing.BackendInput) (int64, bool) {
		if in.Acquirer == nil || in.Acquirer.FraudRate == nil {
			return 0, false
		}
		return *in.Acquirer.FraudRate, true
	}),
	stringField("customer_device_data.platform", func(in *routing.BackendInput) string {
		if in.Device == nil {
			return ""
		}
		return in.Device.Platform
	}),
	stringField("customer_device_data.device_type", func(in *routing.BackendInput) string {
		if in.Device == nil {
			return ""
		}
		return in.Device.DeviceType
	}),
	stringField("customer_device_data.display_size", func(in *routing.BackendInput) string {
		if in.Device == nil {
			return ""
		}
		return in.Device.DisplaySize
	}),
	stringField("issuer_data.name", func(in *routing.BackendInput) string {
		if in.Issuer == nil {
			return ""
		}
		return in.Issuer.Name
	}),
	enumField("issuer_data.country", nil, func(in *routing.BackendInput) routing.Country {
		if in.Issuer == nil {
			return ""
		}
		return in.Issuer.Country
	}),
)

// BackendSchema returns the schema describing routing.BackendInput.
func BackendSchema() *Schema {
	return backendSchema
}
