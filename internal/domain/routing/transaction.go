package routing

import "strings"

// AttemptDetails are the attempt-level attributes of a payment.
type AttemptDetails struct {
	AttemptID          string
	Amount             int64
	Currency           Currency
	CaptureMethod      CaptureMethod
	AuthenticationType AuthenticationType
	PaymentMethod      PaymentMethod
	PaymentMethodType  PaymentMethodType
	CardNetwork        CardNetwork
	CardBin            string
	ExtendedCardBin    string
	MandateType        MandateType
	PaymentType        PaymentType
}

// IntentDetails are the intent-level attributes of a payment.
type IntentDetails struct {
	Amount                int64
	Currency              Currency
	CaptureMethod         CaptureMethod
	AuthenticationType    AuthenticationType
	BillingCountry        Country
	BusinessCountry       Country
	BusinessLabel         string
	SetupFutureUsage      SetupFutureUsage
	MandateAcceptanceType MandateAcceptanceType
	Metadata              map[string]string
	IssuerName            string
	IssuerCountry         Country
	AcquirerCountry       Country
	DevicePlatform        string
	DeviceType            string
}

// PayoutDetails are the attributes of a payout.
type PayoutDetails struct {
	PayoutID         string
	Amount           int64
	Currency         Currency
	PayoutMethod     PaymentMethod
	PayoutMethodType PaymentMethodType
	BillingCountry   Country
	BusinessCountry  Country
	BusinessLabel    string
	Metadata         map[string]string
}

// Transaction is the inbound payment or payout being routed.
type Transaction struct {
	Type      TransactionType
	PaymentID string
	Attempt   AttemptDetails
	Intent    IntentDetails
	Payout    *PayoutDetails
	// StraightThrough carries an algorithm supplied with the request, bypassing the
	// merchant-configured one.
	StraightThrough *RoutingAlgorithm
	// EligibleConnectors is an optional caller-supplied allow list.
	EligibleConnectors []Connector
}

// TransactionType returns the effective type, defaulting to payment.
func (t Transaction) TransactionType() TransactionType {
	if t.Type == "" {
		return TransactionPayment
	}
	return t.Type
}

// ReferenceID returns the payment or payout id used to correlate events.
func (t Transaction) ReferenceID() string {
	if t.TransactionType() == TransactionPayout && t.Payout != nil {
		return t.Payout.PayoutID
	}
	return t.PaymentID
}

const payoutKeyPrefix = "payout_"

// CacheKey composes the cache key for (merchant, profile, transaction type).
func CacheKey(merchantID, profileID string, txnType TransactionType) string {
	key := strings.TrimSpace(merchantID) + "_" + strings.TrimSpace(profileID)
	if txnType == TransactionPayout {
		return payoutKeyPrefix + key
	}
	return key
}
