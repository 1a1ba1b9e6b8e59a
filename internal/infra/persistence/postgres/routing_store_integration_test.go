package postgres_test

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/coachpo/payroute/internal/domain/routing"
	"github.com/coachpo/payroute/internal/domain/routingstore"
	"github.com/coachpo/payroute/internal/infra/persistence/migrations"
	pgstore "github.com/coachpo/payroute/internal/infra/persistence/postgres"
)

var (
	testPool    *pgxpool.Pool
	pgContainer testcontainers.Container
	setupErr    error
)

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}
	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		Env:          map[string]string{"POSTGRES_PASSWORD": "secret", "POSTGRES_USER": "postgres", "POSTGRES_DB": "payroute"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		setupErr = fmt.Errorf("start postgres container: %w", err)
	} else {
		pgContainer = container
		setupErr = initialiseDatabase(ctx)
	}
	if setupErr != nil {
		fmt.Fprintf(os.Stderr, "postgres integration tests skipped: %v\n", setupErr)
	}

	exitCode := m.Run()

	if testPool != nil {
		testPool.Close()
	}
	if pgContainer != nil {
		_ = pgContainer.Terminate(ctx)
	}
	os.Exit(exitCode)
}

func initialiseDatabase(ctx context.Context) error {
	host, err := pgContainer.Host(ctx)
	if err != nil {
		return fmt.Errorf("container host: %w", err)
	}
	port, err := pgContainer.MappedPort(ctx, "5432/tcp")
	if err != nil {
		return fmt.Errorf("container port: %w", err)
	}
	dsn := fmt.Sprintf("postgres://postgres:secret@%s:%s/payroute?sslmode=disable", host, port.Port())

	migrateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := migrations.Apply(migrateCtx, dsn, "", nil); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("pgx pool: %w", err)
	}
	testPool = pool
	return nil
}

func requireDatabase(t *testing.T) *pgstore.RoutingStore {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres integration tests disabled in short mode")
	}
	if setupErr != nil || testPool == nil {
		t.Skipf("postgres unavailable: %v", setupErr)
	}
	return pgstore.New(testPool).Routing
}

func newID(prefix string) string {
	return prefix + "_" + uuid.NewString()
}

func TestRoutingStoreProfileRoundTrip(t *testing.T) {
	store := requireDatabase(t)
	ctx := context.Background()
	merchant, profileID := newID("mer"), newID("pro")
	share := uint8(40)

	profile := routingstore.Profile{
		ID:          profileID,
		MerchantID:  merchant,
		AlgorithmID: "algo_1",
		DynamicRouting: routingstore.DynamicRoutingConfig{
			SuccessRate: routingstore.SuccessRateConfig{Enabled: true, Params: []string{"currency"}},
			VolumeSplit: &share,
		},
	}
	require.NoError(t, store.UpsertProfile(ctx, profile))

	got, err := store.RoutingProfile(ctx, merchant, profileID)
	require.NoError(t, err)
	require.Equal(t, "algo_1", got.AlgorithmID)
	require.Empty(t, got.PayoutAlgorithmID)
	require.True(t, got.DynamicRouting.SuccessRate.Enabled)
	require.Equal(t, uint8(40), got.DynamicRouting.DynamicShare())

	profile.AlgorithmID = ""
	profile.PayoutAlgorithmID = "algo_payout"
	require.NoError(t, store.UpsertProfile(ctx, profile))
	got, err = store.RoutingProfile(ctx, merchant, profileID)
	require.NoError(t, err)
	require.Empty(t, got.AlgorithmID)
	require.Equal(t, "algo_payout", got.ActiveAlgorithmID(routing.TransactionPayout))

	_, err = store.RoutingProfile(ctx, "other_merchant", profileID)
	require.True(t, errors.Is(err, routingstore.ErrNotFound))
}

func TestRoutingStoreAccountsExcludeDeleted(t *testing.T) {
	store := requireDatabase(t)
	ctx := context.Background()
	merchant, profileID := newID("mer"), newID("pro")
	minimum := int64(100)

	first := routingstore.MerchantConnectorAccount{
		ID:         newID("mca"),
		MerchantID: merchant,
		ProfileID:  profileID,
		Connector:  "Stripe",
		PaymentMethods: []routingstore.PaymentMethodsEnabled{{
			PaymentMethod: routing.PaymentMethodCard,
			Types: []routingstore.PaymentMethodTypeConfig{{
				Type:               routing.PaymentMethodTypeCredit,
				AcceptedCurrencies: []routing.Currency{"USD", "EUR"},
				MinimumAmount:      &minimum,
			}},
		}},
		CaptureMethods: []routing.CaptureMethod{routing.CaptureMethodAutomatic},
	}
	second := routingstore.MerchantConnectorAccount{
		ID:            newID("mca"),
		MerchantID:    merchant,
		ProfileID:     profileID,
		Connector:     routing.ConnectorAdyen,
		ConnectorType: routingstore.ConnectorTypePayoutProcessor,
		Disabled:      true,
	}
	require.NoError(t, store.UpsertAccount(ctx, first))
	require.NoError(t, store.UpsertAccount(ctx, second))

	accounts, err := store.ListActiveAccounts(ctx, merchant)
	require.NoError(t, err)
	require.Len(t, accounts, 2)

	byID := map[string]routingstore.MerchantConnectorAccount{}
	for _, a := range accounts {
		byID[a.ID] = a
	}
	stored := byID[first.ID]
	require.Equal(t, routing.ConnectorStripe, stored.Connector)
	require.Equal(t, routingstore.ConnectorTypePaymentProcessor, stored.ConnectorType)
	require.Len(t, stored.PaymentMethods, 1)
	require.Equal(t, []routing.Currency{"USD", "EUR"}, stored.PaymentMethods[0].Types[0].AcceptedCurrencies)
	require.Equal(t, int64(100), *stored.PaymentMethods[0].Types[0].MinimumAmount)
	require.True(t, byID[second.ID].Disabled)

	require.NoError(t, store.DeleteAccount(ctx, merchant, second.ID))
	require.True(t, errors.Is(store.DeleteAccount(ctx, merchant, second.ID), routingstore.ErrNotFound))

	accounts, err = store.ListActiveAccounts(ctx, merchant)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	require.Equal(t, first.ID, accounts[0].ID)

	require.NoError(t, store.UpsertAccount(ctx, second))
	accounts, err = store.ListActiveAccounts(ctx, merchant)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
}

func TestRoutingStoreAlgorithmScopedToProfile(t *testing.T) {
	store := requireDatabase(t)
	ctx := context.Background()
	merchant, profileID, algoID := newID("mer"), newID("pro"), newID("algo")

	record := routingstore.AlgorithmRecord{
		ID:         algoID,
		MerchantID: merchant,
		ProfileID:  profileID,
		Name:       "priority",
		Document:   []byte(`{"type":"priority","data":["stripe:mca_a","adyen:mca_b"]}`),
	}
	require.NoError(t, store.SaveAlgorithm(ctx, record))

	got, err := store.FindAlgorithmByProfileAndID(ctx, profileID, algoID)
	require.NoError(t, err)
	require.Equal(t, routing.AlgorithmPriority, got.Kind)
	require.Equal(t, routing.TransactionPayment, got.TransactionType)
	algo, err := routing.ParseAlgorithm(got.Document)
	require.NoError(t, err)
	require.Equal(t, []routing.RoutableConnectorChoice{
		routing.NewChoice(routing.ConnectorStripe, "mca_a"),
		routing.NewChoice(routing.ConnectorAdyen, "mca_b"),
	}, algo.Priority)
	require.False(t, got.CreatedAt.IsZero())

	_, err = store.FindAlgorithmByProfileAndID(ctx, "other_profile", algoID)
	require.True(t, errors.Is(err, routingstore.ErrNotFound))

	bad := record
	bad.Document = []byte(`{"type":"priority"}`)
	require.Error(t, store.SaveAlgorithm(ctx, bad))
}

func TestRoutingStoreDefaultConnectorsPerTransactionType(t *testing.T) {
	store := requireDatabase(t)
	ctx := context.Background()
	profileID := newID("pro")

	missing, err := store.DefaultConnectors(ctx, profileID, routing.TransactionPayment)
	require.NoError(t, err)
	require.Empty(t, missing)

	payments := []routing.RoutableConnectorChoice{
		routing.NewChoice(routing.ConnectorStripe, "mca_a"),
		routing.NewChoice(routing.ConnectorAdyen, "mca_b"),
	}
	payouts := []routing.RoutableConnectorChoice{routing.NewChoice(routing.ConnectorWise, "mca_p")}
	require.NoError(t, store.SetDefaultConnectors(ctx, profileID, "", payments))
	require.NoError(t, store.SetDefaultConnectors(ctx, profileID, routing.TransactionPayout, payouts))

	got, err := store.DefaultConnectors(ctx, profileID, routing.TransactionPayment)
	require.NoError(t, err)
	require.Equal(t, payments, got)

	got, err = store.DefaultConnectors(ctx, profileID, routing.TransactionPayout)
	require.NoError(t, err)
	require.Equal(t, payouts, got)

	require.NoError(t, store.SetDefaultConnectors(ctx, profileID, routing.TransactionPayment, payments[1:]))
	got, err = store.DefaultConnectors(ctx, profileID, "")
	require.NoError(t, err)
	require.Equal(t, payments[1:], got)
}
