package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coachpo/payroute/internal/domain/routing"
	"github.com/coachpo/payroute/internal/domain/routingstore"
)

// RoutingStore persists routing profiles, connector accounts, algorithms and default
// connector lists in PostgreSQL.
type RoutingStore struct {
	pool *pgxpool.Pool
}

var _ routingstore.Store = (*RoutingStore)(nil)

// NewRoutingStore constructs a RoutingStore backed by the provided pgx pool.
func NewRoutingStore(pool *pgxpool.Pool) *RoutingStore {
	return &RoutingStore{pool: pool}
}

var errNilPool = errors.New("routing store: nil pool")

const (
	algorithmSelectSQL = `
SELECT id, merchant_id, profile_id, name, kind, transaction_type, algorithm_data, created_at, modified_at
FROM routing_algorithms
WHERE id = $1 AND profile_id = $2;
`
	algorithmUpsertSQL = `
INSERT INTO routing_algorithms (
    id,
    merchant_id,
    profile_id,
    name,
    kind,
    transaction_type,
    algorithm_data,
    created_at,
    modified_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, NOW(), NOW())
ON CONFLICT (id) DO UPDATE SET
    merchant_id = EXCLUDED.merchant_id,
    profile_id = EXCLUDED.profile_id,
    name = EXCLUDED.name,
    kind = EXCLUDED.kind,
    transaction_type = EXCLUDED.transaction_type,
    algorithm_data = EXCLUDED.algorithm_data,
    modified_at = NOW();
`
	accountListSQL = `
SELECT id, merchant_id, profile_id, connector_name, connector_type, disabled,
       payment_methods_enabled, capture_methods, created_at, updated_at
FROM merchant_connector_accounts
WHERE merchant_id = $1 AND deleted_at IS NULL
ORDER BY created_at, id;
`
	accountUpsertSQL = `
INSERT INTO merchant_connector_accounts (
    id,
    merchant_id,
    profile_id,
    connector_name,
    connector_type,
    disabled,
    payment_methods_enabled,
    capture_methods,
    deleted_at,
    updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8::jsonb, NULL, NOW())
ON CONFLICT (id) DO UPDATE SET
    merchant_id = EXCLUDED.merchant_id,
    profile_id = EXCLUDED.profile_id,
    connector_name = EXCLUDED.connector_name,
    connector_type = EXCLUDED.connector_type,
    disabled = EXCLUDED.disabled,
    payment_methods_enabled = EXCLUDED.payment_methods_enabled,
    capture_methods = EXCLUDED.capture_methods,
    deleted_at = NULL,
    updated_at = NOW();
`
	accountDeleteSQL = `
UPDATE merchant_connector_accounts
SET deleted_at = NOW(), updated_at = NOW()
WHERE id = $1 AND merchant_id = $2 AND deleted_at IS NULL;
`
	defaultConnectorsSelectSQL = `
SELECT connectors
FROM default_connectors
WHERE profile_id = $1 AND transaction_type = $2;
`
	defaultConnectorsUpsertSQL = `
INSERT INTO default_connectors (profile_id, transaction_type, connectors, updated_at)
VALUES ($1, $2, $3::jsonb, NOW())
ON CONFLICT (profile_id, transaction_type) DO UPDATE SET
    connectors = EXCLUDED.connectors,
    updated_at = NOW();
`
	profileSelectSQL = `
SELECT id, merchant_id, COALESCE(routing_algorithm_id, ''), COALESCE(payout_routing_algorithm_id, ''), dynamic_routing
FROM routing_profiles
WHERE id = $1 AND merchant_id = $2;
`
	profileUpsertSQL = `
INSERT INTO routing_profiles (
    id,
    merchant_id,
    routing_algorithm_id,
    payout_routing_algorithm_id,
    dynamic_routing,
    updated_at
)
VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5::jsonb, NOW())
ON CONFLICT (id) DO UPDATE SET
    merchant_id = EXCLUDED.merchant_id,
    routing_algorithm_id = EXCLUDED.routing_algorithm_id,
    payout_routing_algorithm_id = EXCLUDED.payout_routing_algorithm_id,
    dynamic_routing = EXCLUDED.dynamic_routing,
    updated_at = NOW();
`
)

// FindAlgorithmByProfileAndID loads an algorithm owned by the profile.
func (s *RoutingStore) FindAlgorithmByProfileAndID(ctx context.Context, profileID, algorithmID string) (routingstore.AlgorithmRecord, error) {
	if s.pool == nil {
		return routingstore.AlgorithmRecord{}, errNilPool
	}
	id := strings.TrimSpace(algorithmID)
	var (
		record  routingstore.AlgorithmRecord
		kind    string
		txnType string
	)
	err := s.pool.QueryRow(ctx, algorithmSelectSQL, id, strings.TrimSpace(profileID)).Scan(
		&record.ID, &record.MerchantID, &record.ProfileID, &record.Name,
		&kind, &txnType, &record.Document, &record.CreatedAt, &record.ModifiedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return routingstore.AlgorithmRecord{}, fmt.Errorf("algorithm %s: %w", id, routingstore.ErrNotFound)
		}
		return routingstore.AlgorithmRecord{}, fmt.Errorf("load algorithm %s: %w", id, err)
	}
	record.Kind = routing.AlgorithmKind(kind)
	record.TransactionType = routing.TransactionType(txnType)
	return record, nil
}

// SaveAlgorithm validates and upserts an algorithm record. Kind is taken from the document.
func (s *RoutingStore) SaveAlgorithm(ctx context.Context, record routingstore.AlgorithmRecord) error {
	if s.pool == nil {
		return errNilPool
	}
	id := strings.TrimSpace(record.ID)
	if id == "" {
		return fmt.Errorf("routing store: algorithm id required")
	}
	if strings.TrimSpace(record.ProfileID) == "" {
		return fmt.Errorf("routing store: algorithm %s: profile id required", id)
	}
	algo, err := routing.ParseAlgorithm(record.Document)
	if err != nil {
		return fmt.Errorf("routing store: algorithm %s: %w", id, err)
	}
	txnType := record.TransactionType
	if txnType == "" {
		txnType = routing.TransactionPayment
	}
	if _, err := s.pool.Exec(ctx, algorithmUpsertSQL, id, record.MerchantID, record.ProfileID, record.Name,
		string(algo.Kind), string(txnType), record.Document); err != nil {
		return fmt.Errorf("upsert algorithm: %w", err)
	}
	return nil
}

// ListActiveAccounts returns the merchant's accounts that are not deleted, disabled ones included.
func (s *RoutingStore) ListActiveAccounts(ctx context.Context, merchantID string) ([]routingstore.MerchantConnectorAccount, error) {
	if s.pool == nil {
		return nil, errNilPool
	}
	rows, err := s.pool.Query(ctx, accountListSQL, strings.TrimSpace(merchantID))
	if err != nil {
		return nil, fmt.Errorf("list connector accounts: %w", err)
	}
	defer rows.Close()

	var accounts []routingstore.MerchantConnectorAccount
	for rows.Next() {
		var (
			account                 routingstore.MerchantConnectorAccount
			connector, connectorTyp string
			methods, captures       []byte
		)
		if err := rows.Scan(&account.ID, &account.MerchantID, &account.ProfileID, &connector, &connectorTyp,
			&account.Disabled, &methods, &captures, &account.CreatedAt, &account.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan connector account: %w", err)
		}
		account.Connector = routing.NormalizeConnector(connector)
		account.ConnectorType = routingstore.ConnectorType(connectorTyp)
		if err := decodeList(methods, &account.PaymentMethods); err != nil {
			return nil, fmt.Errorf("decode payment methods for %s: %w", account.ID, err)
		}
		if err := decodeList(captures, &account.CaptureMethods); err != nil {
			return nil, fmt.Errorf("decode capture methods for %s: %w", account.ID, err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate connector accounts: %w", err)
	}
	return accounts, nil
}

// UpsertAccount stores a connector account, restoring it if it was deleted.
func (s *RoutingStore) UpsertAccount(ctx context.Context, account routingstore.MerchantConnectorAccount) error {
	if s.pool == nil {
		return errNilPool
	}
	id := strings.TrimSpace(account.ID)
	if id == "" {
		return fmt.Errorf("routing store: account id required")
	}
	connector := routing.NormalizeConnector(string(account.Connector))
	if !connector.Valid() {
		return fmt.Errorf("routing store: account %s: unknown connector %q", id, account.Connector)
	}
	connectorType := account.ConnectorType
	if connectorType == "" {
		connectorType = routingstore.ConnectorTypePaymentProcessor
	}
	methods, err := encodeList(account.PaymentMethods)
	if err != nil {
		return fmt.Errorf("marshal payment methods: %w", err)
	}
	captures, err := encodeList(account.CaptureMethods)
	if err != nil {
		return fmt.Errorf("marshal capture methods: %w", err)
	}
	if _, err := s.pool.Exec(ctx, accountUpsertSQL, id, account.MerchantID, account.ProfileID, string(connector),
		string(connectorType), account.Disabled, methods, captures); err != nil {
		return fmt.Errorf("upsert connector account: %w", err)
	}
	return nil
}

// DeleteAccount soft-deletes a connector account so it no longer appears in listings.
func (s *RoutingStore) DeleteAccount(ctx context.Context, merchantID, accountID string) error {
	if s.pool == nil {
		return errNilPool
	}
	tag, err := s.pool.Exec(ctx, accountDeleteSQL, strings.TrimSpace(accountID), strings.TrimSpace(merchantID))
	if err != nil {
		return fmt.Errorf("delete connector account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account %s: %w", accountID, routingstore.ErrNotFound)
	}
	return nil
}

// DefaultConnectors returns the profile's default connector list; a missing list is empty.
func (s *RoutingStore) DefaultConnectors(ctx context.Context, profileID string, txnType routing.TransactionType) ([]routing.RoutableConnectorChoice, error) {
	if s.pool == nil {
		return nil, errNilPool
	}
	if txnType == "" {
		txnType = routing.TransactionPayment
	}
	var raw []byte
	err := s.pool.QueryRow(ctx, defaultConnectorsSelectSQL, strings.TrimSpace(profileID), string(txnType)).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load default connectors: %w", err)
	}
	var connectors []routing.RoutableConnectorChoice
	if err := decodeList(raw, &connectors); err != nil {
		return nil, fmt.Errorf("decode default connectors: %w", err)
	}
	return connectors, nil
}

// SetDefaultConnectors replaces the profile's default connector list.
func (s *RoutingStore) SetDefaultConnectors(ctx context.Context, profileID string, txnType routing.TransactionType, connectors []routing.RoutableConnectorChoice) error {
	if s.pool == nil {
		return errNilPool
	}
	if strings.TrimSpace(profileID) == "" {
		return fmt.Errorf("routing store: profile id required")
	}
	if txnType == "" {
		txnType = routing.TransactionPayment
	}
	payload, err := encodeList(connectors)
	if err != nil {
		return fmt.Errorf("marshal default connectors: %w", err)
	}
	if _, err := s.pool.Exec(ctx, defaultConnectorsUpsertSQL, strings.TrimSpace(profileID), string(txnType), payload); err != nil {
		return fmt.Errorf("upsert default connectors: %w", err)
	}
	return nil
}

// RoutingProfile loads the merchant's profile.
func (s *RoutingStore) RoutingProfile(ctx context.Context, merchantID, profileID string) (routingstore.Profile, error) {
	if s.pool == nil {
		return routingstore.Profile{}, errNilPool
	}
	var (
		profile routingstore.Profile
		dynamic []byte
	)
	err := s.pool.QueryRow(ctx, profileSelectSQL, strings.TrimSpace(profileID), strings.TrimSpace(merchantID)).Scan(
		&profile.ID, &profile.MerchantID, &profile.AlgorithmID, &profile.PayoutAlgorithmID, &dynamic,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return routingstore.Profile{}, fmt.Errorf("profile %s: %w", profileID, routingstore.ErrNotFound)
		}
		return routingstore.Profile{}, fmt.Errorf("load profile %s: %w", profileID, err)
	}
	cfg, err := routingstore.DecodeDynamicRouting(dynamic)
	if err != nil {
		return routingstore.Profile{}, fmt.Errorf("decode dynamic routing for %s: %w", profileID, err)
	}
	profile.DynamicRouting = cfg
	return profile, nil
}

// UpsertProfile stores the routing part of a business profile.
func (s *RoutingStore) UpsertProfile(ctx context.Context, profile routingstore.Profile) error {
	if s.pool == nil {
		return errNilPool
	}
	id := strings.TrimSpace(profile.ID)
	if id == "" {
		return fmt.Errorf("routing store: profile id required")
	}
	if strings.TrimSpace(profile.MerchantID) == "" {
		return fmt.Errorf("routing store: profile %s: merchant id required", id)
	}
	dynamic, err := routingstore.EncodeDynamicRouting(profile.DynamicRouting)
	if err != nil {
		return fmt.Errorf("marshal dynamic routing: %w", err)
	}
	if _, err := s.pool.Exec(ctx, profileUpsertSQL, id, strings.TrimSpace(profile.MerchantID),
		strings.TrimSpace(profile.AlgorithmID), strings.TrimSpace(profile.PayoutAlgorithmID), dynamic); err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

func encodeList[T any](values []T) ([]byte, error) {
	if len(values) == 0 {
		return []byte("[]"), nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("json marshal: %w", err)
	}
	return data, nil
}

func decodeList[T any](raw []byte, out *[]T) error {
	if len(raw) == 0 {
		*out = nil
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("json unmarshal: %w", err)
	}
	return nil
}
