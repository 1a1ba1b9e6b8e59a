package routing

import "strings"

// Enumerated transaction attributes. The zero value of every type means "absent".
type (
	// Currency is an ISO 4217 alphabetic code.
	Currency string
	// Country is an ISO 3166-1 alpha-2 code.
	Country string
	// PaymentMethod is the top-level payment method family.
	PaymentMethod string
	// PaymentMethodType is the concrete instrument inside a payment method family.
	PaymentMethodType string
	// CardNetwork is the card scheme.
	CardNetwork string
	// CaptureMethod controls when funds are captured.
	CaptureMethod string
	// AuthenticationType states whether 3DS is requested.
	AuthenticationType string
	// SetupFutureUsage states how a stored credential will be reused.
	SetupFutureUsage string
	// MandateAcceptanceType is how the customer accepted a mandate.
	MandateAcceptanceType string
	// MandateType distinguishes single and multi use mandates.
	MandateType string
	// PaymentType separates regular payments from mandate setup flows.
	PaymentType string
)

const (
	PaymentMethodCard         PaymentMethod = "card"
	PaymentMethodWallet       PaymentMethod = "wallet"
	PaymentMethodPayLater     PaymentMethod = "pay_later"
	PaymentMethodBankRedirect PaymentMethod = "bank_redirect"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodBankDebit    PaymentMethod = "bank_debit"
)

const (
	PaymentMethodTypeCredit       PaymentMethodType = "credit"
	PaymentMethodTypeDebit        PaymentMethodType = "debit"
	PaymentMethodTypeApplePay     PaymentMethodType = "apple_pay"
	PaymentMethodTypeGooglePay    PaymentMethodType = "google_pay"
	PaymentMethodTypePaypal       PaymentMethodType = "paypal"
	PaymentMethodTypeKlarna       PaymentMethodType = "klarna"
	PaymentMethodTypeIdeal        PaymentMethodType = "ideal"
	PaymentMethodTypeSofort       PaymentMethodType = "sofort"
	PaymentMethodTypeSepa         PaymentMethodType = "sepa"
	PaymentMethodTypeAch          PaymentMethodType = "ach"
	PaymentMethodTypeBacs         PaymentMethodType = "bacs"
	PaymentMethodTypePix          PaymentMethodType = "pix"
	PaymentMethodTypeAfterpayClrp PaymentMethodType = "afterpay_clearpay"
)

const (
	CardNetworkVisa       CardNetwork = "Visa"
	CardNetworkMastercard CardNetwork = "Mastercard"
	CardNetworkAmex       CardNetwork = "AmericanExpress"
	CardNetworkDiscover   CardNetwork = "Discover"
	CardNetworkJCB        CardNetwork = "JCB"
	CardNetworkDinersClub CardNetwork = "DinersClub"
	CardNetworkUnionPay   CardNetwork = "UnionPay"
	CardNetworkCartesBanc CardNetwork = "CartesBancaires"
)

const (
	CaptureMethodAutomatic      CaptureMethod = "automatic"
	CaptureMethodManual         CaptureMethod = "manual"
	CaptureMethodManualMultiple CaptureMethod = "manual_multiple"
	CaptureMethodScheduled      CaptureMethod = "scheduled"
)

const (
	AuthenticationThreeDS   AuthenticationType = "three_ds"
	AuthenticationNoThreeDS AuthenticationType = "no_three_ds"
)

const (
	SetupFutureUsageOnSession  SetupFutureUsage = "on_session"
	SetupFutureUsageOffSession SetupFutureUsage = "off_session"
)

const (
	MandateAcceptanceOnline  MandateAcceptanceType = "online"
	MandateAcceptanceOffline MandateAcceptanceType = "offline"
)

const (
	MandateTypeSingleUse MandateType = "single_use"
	MandateTypeMultiUse  MandateType = "multi_use"
)

const (
	PaymentTypeNormal                PaymentType = "normal"
	PaymentTypeSetupMandate          PaymentType = "setup_mandate"
	PaymentTypeProcessorTokenMandate PaymentType = "ppt_mandate"
)

// NormalizeCurrency uppercases and trims a currency code.
func NormalizeCurrency(code string) Currency {
	return Currency(strings.ToUpper(strings.TrimSpace(code)))
}

// NormalizeCountry uppercases and trims a country code.
func NormalizeCountry(code string) Country {
	return Country(strings.ToUpper(strings.TrimSpace(code)))
}

// TransactionType separates payment routing from payout routing.
type TransactionType string

const (
	TransactionPayment TransactionType = "payment"
	TransactionPayout  TransactionType = "payout"
)

// Valid reports whether the transaction type is supported.
func (t TransactionType) Valid() bool {
	return t == TransactionPayment || t == TransactionPayout
}
