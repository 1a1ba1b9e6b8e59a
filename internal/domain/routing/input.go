package routing

// BackendInput is the structured fact record a routing algorithm evaluates against. It is
// built fresh for every routing decision and never persisted. Empty enum fields are absent.
type BackendInput struct {
	Payment       PaymentInput       `json:"payment"`
	PaymentMethod PaymentMethodInput `json:"payment_method"`
	Mandate       MandateInput       `json:"mandate"`
	Metadata      map[string]string  `json:"metadata,omitempty"`
	Acquirer      *AcquirerInput     `json:"acquirer_data,omitempty"`
	Device        *DeviceInput       `json:"customer_device_data,omitempty"`
	Issuer        *IssuerInput       `json:"issuer_data,omitempty"`
}

// PaymentInput carries amount, currency and authorisation attributes.
type PaymentInput struct {
	Amount             int64              `json:"amount"`
	Currency           Currency           `json:"currency"`
	CaptureMethod      CaptureMethod      `json:"capture_method,omitempty"`
	AuthenticationType AuthenticationType `json:"authentication_type,omitempty"`
	CardBin            string             `json:"card_bin,omitempty"`
	ExtendedCardBin    string             `json:"extended_card_bin,omitempty"`
	BusinessCountry    Country            `json:"business_country,omitempty"`
	BusinessLabel      string             `json:"business_label,omitempty"`
	BillingCountry     Country            `json:"billing_country,omitempty"`
	SetupFutureUsage   SetupFutureUsage   `json:"setup_future_usage,omitempty"`
}

// PaymentMethodInput describes the instrument used.
type PaymentMethodInput struct {
	PaymentMethod     PaymentMethod     `json:"payment_method,omitempty"`
	PaymentMethodType PaymentMethodType `json:"payment_method_type,omitempty"`
	CardNetwork       CardNetwork       `json:"card_network,omitempty"`
}

// MandateInput describes mandate attributes of the transaction.
type MandateInput struct {
	MandateAcceptanceType MandateAcceptanceType `json:"mandate_acceptance_type,omitempty"`
	MandateType           MandateType           `json:"mandate_type,omitempty"`
	PaymentType           PaymentType           `json:"payment_type,omitempty"`
}

// AcquirerInput describes the acquiring side, when known.
type AcquirerInput struct {
	Country   Country `json:"country,omitempty"`
	FraudRate *int64  `json:"fraud_rate,omitempty"`
}

// DeviceInput describes the customer's device, when known.
type DeviceInput struct {
	Platform    string `json:"platform,omitempty"`
	DeviceType  string `json:"device_type,omitempty"`
	DisplaySize string `json:"display_size,omitempty"`
}

// IssuerInput describes the card issuer, when known.
type IssuerInput struct {
	Name    string  `json:"name,omitempty"`
	Country Country `json:"country,omitempty"`
}

// WithPaymentMethodType returns a copy with the payment method fields overridden. The
// metadata map is shared; inputs are read-only once built.
func (in BackendInput) WithPaymentMethodType(pm PaymentMethod, pmt PaymentMethodType) BackendInput {
	out := in
	out.PaymentMethod = PaymentMethodInput{PaymentMethod: pm, PaymentMethodType: pmt}
	return out
}
