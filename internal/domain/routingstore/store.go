// Package routingstore defines the persistence contracts the routing engine consumes.
package routingstore

import (
	"context"
	"errors"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/coachpo/payroute/internal/domain/routing"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("routingstore: not found")

// ConnectorType classifies what a merchant connector account is used for.
type ConnectorType string

const (
	ConnectorTypePaymentProcessor  ConnectorType = "payment_processor"
	ConnectorTypePayoutProcessor   ConnectorType = "payout_processor"
	ConnectorTypeAuthProcessor     ConnectorType = "authentication_processor"
	ConnectorTypePaymentMethodAuth ConnectorType = "payment_method_auth"
	ConnectorTypeTaxProcessor      ConnectorType = "tax_processor"
)

// ForTransaction returns the connector type that serves the transaction type.
func ForTransaction(txnType routing.TransactionType) ConnectorType {
	if txnType == routing.TransactionPayout {
		return ConnectorTypePayoutProcessor
	}
	return ConnectorTypePaymentProcessor
}

// PaymentMethodTypeConfig is one row of an account's feature matrix.
type PaymentMethodTypeConfig struct {
	Type               routing.PaymentMethodType `json:"payment_method_type"`
	CardNetworks       []routing.CardNetwork     `json:"card_networks,omitempty"`
	AcceptedCurrencies []routing.Currency        `json:"accepted_currencies,omitempty"`
	AcceptedCountries  []routing.Country         `json:"accepted_countries,omitempty"`
	MinimumAmount      *int64                    `json:"minimum_amount,omitempty"`
	MaximumAmount      *int64                    `json:"maximum_amount,omitempty"`
	RecurringEnabled   bool                      `json:"recurring_enabled"`
}

// PaymentMethodsEnabled groups the payment method types an account accepts under one method.
type PaymentMethodsEnabled struct {
	PaymentMethod routing.PaymentMethod     `json:"payment_method"`
	Types         []PaymentMethodTypeConfig `json:"payment_method_types,omitempty"`
}

// MerchantConnectorAccount is a merchant's configured account at one connector.
type MerchantConnectorAccount struct {
	ID             string
	MerchantID     string
	ProfileID      string
	Connector      routing.Connector
	ConnectorType  ConnectorType
	Disabled       bool
	PaymentMethods []PaymentMethodsEnabled
	CaptureMethods []routing.CaptureMethod
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Choice returns the routable choice addressing this account.
func (a MerchantConnectorAccount) Choice() routing.RoutableConnectorChoice {
	return routing.NewChoice(a.Connector, a.ID)
}

// Serves reports whether the account belongs to the profile and handles the transaction type.
func (a MerchantConnectorAccount) Serves(profileID string, txnType routing.TransactionType) bool {
	if strings.TrimSpace(a.ProfileID) != strings.TrimSpace(profileID) {
		return false
	}
	return a.ConnectorType == ForTransaction(txnType)
}

// AlgorithmRecord is the stored form of a routing algorithm.
type AlgorithmRecord struct {
	ID              string
	MerchantID      string
	ProfileID       string
	Name            string
	Kind            routing.AlgorithmKind
	TransactionType routing.TransactionType
	Document        []byte
	CreatedAt       time.Time
	ModifiedAt      time.Time
}

// SuccessRateConfig configures success-rate based dynamic routing.
type SuccessRateConfig struct {
	Enabled bool `json:"enabled"`
	// Params lists the BackendInput paths whose values form the service parameter blob.
	Params             []string `json:"params,omitempty"`
	MinAggregatesSize  uint32   `json:"min_aggregates_size,omitempty"`
	DefaultSuccessRate float64  `json:"default_success_rate,omitempty"`
	MaxAggregatesSize  uint32   `json:"max_aggregates_size,omitempty"`
}

// EliminationConfig configures elimination routing.
type EliminationConfig struct {
	Enabled            bool     `json:"enabled"`
	Params             []string `json:"params,omitempty"`
	BucketSize         uint64   `json:"bucket_size,omitempty"`
	BucketLeakInterval uint64   `json:"bucket_leak_interval_in_secs,omitempty"`
}

// ContractTarget is a per-connector contract volume target.
type ContractTarget struct {
	Connector   routing.RoutableConnectorChoice `json:"connector"`
	TargetCount uint64                          `json:"target_count"`
	TargetTime  uint64                          `json:"target_time"`
}

// ContractConfig configures contract based routing.
type ContractConfig struct {
	Enabled bool             `json:"enabled"`
	Params  []string         `json:"params,omitempty"`
	Targets []ContractTarget `json:"targets,omitempty"`
}

// OpenRouterConfig configures the unified decision service.
type OpenRouterConfig struct {
	Enabled            bool `json:"enabled"`
	EliminationEnabled bool `json:"elimination_enabled"`
}

// DynamicRoutingConfig holds the profile's dynamic routing features.
type DynamicRoutingConfig struct {
	SuccessRate SuccessRateConfig `json:"success_based"`
	Elimination EliminationConfig `json:"elimination"`
	Contract    ContractConfig    `json:"contract_based"`
	OpenRouter  OpenRouterConfig  `json:"open_router"`
	// VolumeSplit is the percentage of payments ranked dynamically; nil means all of them.
	VolumeSplit *uint8 `json:"dynamic_routing_volume_split,omitempty"`
}

// DynamicShare returns the percentage of payments that should be ranked dynamically.
func (c DynamicRoutingConfig) DynamicShare() uint8 {
	if c.VolumeSplit == nil {
		return 100
	}
	if *c.VolumeSplit > 100 {
		return 100
	}
	return *c.VolumeSplit
}

// Any reports whether at least one dynamic routing feature is enabled.
func (c DynamicRoutingConfig) Any() bool {
	return c.SuccessRate.Enabled || c.Elimination.Enabled || c.Contract.Enabled || c.OpenRouter.Enabled
}

// Profile is the routing-relevant part of a business profile.
type Profile struct {
	ID                string
	MerchantID        string
	AlgorithmID       string
	PayoutAlgorithmID string
	DynamicRouting    DynamicRoutingConfig
}

// ActiveAlgorithmID returns the algorithm id configured for the transaction type.
func (p Profile) ActiveAlgorithmID(txnType routing.TransactionType) string {
	if txnType == routing.TransactionPayout {
		return strings.TrimSpace(p.PayoutAlgorithmID)
	}
	return strings.TrimSpace(p.AlgorithmID)
}

// EncodeDynamicRouting renders the dynamic routing config for storage.
func EncodeDynamicRouting(cfg DynamicRoutingConfig) ([]byte, error) {
	return json.Marshal(cfg)
}

// DecodeDynamicRouting parses stored dynamic routing config; empty input yields the zero config.
func DecodeDynamicRouting(raw []byte) (DynamicRoutingConfig, error) {
	var cfg DynamicRoutingConfig
	if len(raw) == 0 {
		return cfg, nil
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return DynamicRoutingConfig{}, err
	}
	return cfg, nil
}

// AlgorithmStore reads stored routing algorithms.
type AlgorithmStore interface {
	FindAlgorithmByProfileAndID(ctx context.Context, profileID, algorithmID string) (AlgorithmRecord, error)
}

// AccountStore lists a merchant's connector accounts. Deleted accounts are never returned;
// disabled ones are, flagged through MerchantConnectorAccount.Disabled.
type AccountStore interface {
	ListActiveAccounts(ctx context.Context, merchantID string) ([]MerchantConnectorAccount, error)
}

// FallbackStore reads the merchant default connector list.
type FallbackStore interface {
	DefaultConnectors(ctx context.Context, profileID string, txnType routing.TransactionType) ([]routing.RoutableConnectorChoice, error)
}

// ProfileStore reads routing profiles.
type ProfileStore interface {
	RoutingProfile(ctx context.Context, merchantID, profileID string) (Profile, error)
}

// Store bundles every contract the routing engine consumes.
type Store interface {
	AlgorithmStore
	AccountStore
	FallbackStore
	ProfileStore
}
