// Package memory provides an in-process implementation of the routing store contracts, used by
// tests and the operator CLI.
package memory

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/coachpo/payroute/internal/domain/routing"
	"github.com/coachpo/payroute/internal/domain/routingstore"
)

type fallbackKey struct {
	profileID string
	txnType   routing.TransactionType
}

// Store keeps routing configuration in maps. It is safe for concurrent use; returned values
// are copies.
type Store struct {
	mu         sync.RWMutex
	algorithms map[string]routingstore.AlgorithmRecord
	accounts   map[string][]routingstore.MerchantConnectorAccount
	fallbacks  map[fallbackKey][]routing.RoutableConnectorChoice
	profiles   map[string]routingstore.Profile
}

var _ routingstore.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		algorithms: make(map[string]routingstore.AlgorithmRecord),
		accounts:   make(map[string][]routingstore.MerchantConnectorAccount),
		fallbacks:  make(map[fallbackKey][]routing.RoutableConnectorChoice),
		profiles:   make(map[string]routingstore.Profile),
	}
}

// PutAlgorithm stores or replaces an algorithm record.
func (s *Store) PutAlgorithm(record routingstore.AlgorithmRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record.Document = slices.Clone(record.Document)
	s.algorithms[strings.TrimSpace(record.ID)] = record
}

// PutAccount stores or replaces a connector account, keyed by merchant and account id.
func (s *Store) PutAccount(account routingstore.MerchantConnectorAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.accounts[account.MerchantID]
	for i := range list {
		if list[i].ID == account.ID {
			list[i] = account
			return
		}
	}
	s.accounts[account.MerchantID] = append(list, account)
}

// SetDefaultConnectors replaces the default connector list for the profile.
func (s *Store) SetDefaultConnectors(profileID string, txnType routing.TransactionType, connectors []routing.RoutableConnectorChoice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fallbacks[fallbackKey{profileID: profileID, txnType: txnType}] = slices.Clone(connectors)
}

// PutProfile stores or replaces a routing profile.
func (s *Store) PutProfile(profile routingstore.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[profile.ID] = profile
}

func (s *Store) FindAlgorithmByProfileAndID(_ context.Context, profileID, algorithmID string) (routingstore.AlgorithmRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.algorithms[strings.TrimSpace(algorithmID)]
	if !ok || record.ProfileID != profileID {
		return routingstore.AlgorithmRecord{}, fmt.Errorf("algorithm %s: %w", algorithmID, routingstore.ErrNotFound)
	}
	record.Document = slices.Clone(record.Document)
	return record, nil
}

func (s *Store) ListActiveAccounts(_ context.Context, merchantID string) ([]routingstore.MerchantConnectorAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.accounts[merchantID]), nil
}

func (s *Store) DefaultConnectors(_ context.Context, profileID string, txnType routing.TransactionType) ([]routing.RoutableConnectorChoice, error) {
	if txnType == "" {
		txnType = routing.TransactionPayment
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.fallbacks[fallbackKey{profileID: profileID, txnType: txnType}]), nil
}

func (s *Store) RoutingProfile(_ context.Context, merchantID, profileID string) (routingstore.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	profile, ok := s.profiles[profileID]
	if !ok || (profile.MerchantID != "" && profile.MerchantID != merchantID) {
		return routingstore.Profile{}, fmt.Errorf("profile %s: %w", profileID, routingstore.ErrNotFound)
	}
	return profile, nil
}

// Fixture is the JSON document accepted by Load.
type Fixture struct {
	Profiles   []FixtureProfile   `json:"profiles"`
	Accounts   []FixtureAccount   `json:"accounts"`
	Algorithms []FixtureAlgorithm `json:"algorithms"`
	Fallbacks  []FixtureFallback  `json:"fallbacks"`
}

type FixtureProfile struct {
	ID                string                            `json:"id"`
	MerchantID        string                            `json:"merchant_id"`
	AlgorithmID       string                            `json:"algorithm_id,omitempty"`
	PayoutAlgorithmID string                            `json:"payout_algorithm_id,omitempty"`
	DynamicRouting    routingstore.DynamicRoutingConfig `json:"dynamic_routing"`
}

type FixtureAccount struct {
	ID             string                               `json:"id"`
	MerchantID     string                               `json:"merchant_id"`
	ProfileID      string                               `json:"profile_id"`
	Connector      routing.Connector                    `json:"connector"`
	ConnectorType  routingstore.ConnectorType           `json:"connector_type"`
	Disabled       bool                                 `json:"disabled"`
	PaymentMethods []routingstore.PaymentMethodsEnabled `json:"payment_methods"`
	CaptureMethods []routing.CaptureMethod              `json:"capture_methods,omitempty"`
}

type FixtureAlgorithm struct {
	ID              string                  `json:"id"`
	MerchantID      string                  `json:"merchant_id"`
	ProfileID       string                  `json:"profile_id"`
	Name            string                  `json:"name"`
	TransactionType routing.TransactionType `json:"transaction_type,omitempty"`
	Algorithm       json.RawMessage         `json:"algorithm"`
}

type FixtureFallback struct {
	ProfileID       string                            `json:"profile_id"`
	TransactionType routing.TransactionType           `json:"transaction_type,omitempty"`
	Connectors      []routing.RoutableConnectorChoice `json:"connectors"`
}

// Load decodes a fixture document into a new store.
func Load(r io.Reader) (*Store, error) {
	var fixture Fixture
	if err := json.NewDecoder(r).Decode(&fixture); err != nil {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}
	return FromFixture(fixture)
}

// FromFixture builds a store from a decoded fixture, validating every algorithm.
func FromFixture(fixture Fixture) (*Store, error) {
	s := New()
	for _, p := range fixture.Profiles {
		s.PutProfile(routingstore.Profile{
			ID:                p.ID,
			MerchantID:        p.MerchantID,
			AlgorithmID:       p.AlgorithmID,
			PayoutAlgorithmID: p.PayoutAlgorithmID,
			DynamicRouting:    p.DynamicRouting,
		})
	}
	for _, a := range fixture.Accounts {
		connectorType := a.ConnectorType
		if connectorType == "" {
			connectorType = routingstore.ConnectorTypePaymentProcessor
		}
		s.PutAccount(routingstore.MerchantConnectorAccount{
			ID:             a.ID,
			MerchantID:     a.MerchantID,
			ProfileID:      a.ProfileID,
			Connector:      routing.NormalizeConnector(string(a.Connector)),
			ConnectorType:  connectorType,
			Disabled:       a.Disabled,
			PaymentMethods: a.PaymentMethods,
			CaptureMethods: a.CaptureMethods,
		})
	}
	for _, a := range fixture.Algorithms {
		algo, err := routing.ParseAlgorithm(a.Algorithm)
		if err != nil {
			return nil, fmt.Errorf("algorithm %s: %w", a.ID, err)
		}
		txnType := a.TransactionType
		if txnType == "" {
			txnType = routing.TransactionPayment
		}
		s.PutAlgorithm(routingstore.AlgorithmRecord{
			ID:              a.ID,
			MerchantID:      a.MerchantID,
			ProfileID:       a.ProfileID,
			Name:            a.Name,
			Kind:            algo.Kind,
			TransactionType: txnType,
			Document:        a.Algorithm,
		})
	}
	for _, f := range fixture.Fallbacks {
		txnType := f.TransactionType
		if txnType == "" {
			txnType = routing.TransactionPayment
		}
		s.SetDefaultConnectors(f.ProfileID, txnType, f.Connectors)
	}
	return s, nil
}

// Fallback is one stored default connector list.
type Fallback struct {
	ProfileID       string
	TransactionType routing.TransactionType
	Connectors      []routing.RoutableConnectorChoice
}

// Snapshot is a point-in-time copy of everything the store holds.
type Snapshot struct {
	Profiles   []routingstore.Profile
	Accounts   []routingstore.MerchantConnectorAccount
	Algorithms []routingstore.AlgorithmRecord
	Fallbacks  []Fallback
}

// Snapshot copies the store contents, ordered by id so exports are stable.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out Snapshot
	for _, p := range s.profiles {
		out.Profiles = append(out.Profiles, p)
	}
	slices.SortFunc(out.Profiles, func(a, b routingstore.Profile) int { return strings.Compare(a.ID, b.ID) })
	for _, list := range s.accounts {
		out.Accounts = append(out.Accounts, list...)
	}
	slices.SortFunc(out.Accounts, func(a, b routingstore.MerchantConnectorAccount) int { return strings.Compare(a.ID, b.ID) })
	for _, a := range s.algorithms {
		a.Document = slices.Clone(a.Document)
		out.Algorithms = append(out.Algorithms, a)
	}
	slices.SortFunc(out.Algorithms, func(a, b routingstore.AlgorithmRecord) int { return strings.Compare(a.ID, b.ID) })
	for key, connectors := range s.fallbacks {
		out.Fallbacks = append(out.Fallbacks, Fallback{
			ProfileID:       key.profileID,
			TransactionType: key.txnType,
			Connectors:      slices.Clone(connectors),
		})
	}
	slices.SortFunc(out.Fallbacks, func(a, b Fallback) int {
		if c := strings.Compare(a.ProfileID, b.ProfileID); c != 0 {
			return c
		}
		return strings.Compare(string(a.TransactionType), string(b.TransactionType))
	})
	return out
}
