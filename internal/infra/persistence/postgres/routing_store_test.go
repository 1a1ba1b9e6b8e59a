package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coachpo/payroute/internal/domain/routing"
	"github.com/coachpo/payroute/internal/domain/routingstore"
)

func TestRoutingStoreNilPool(t *testing.T) {
	store := NewRoutingStore(nil)
	ctx := context.Background()

	if _, err := store.FindAlgorithmByProfileAndID(ctx, "pro_1", "algo_1"); !errors.Is(err, errNilPool) {
		t.Fatalf("expected nil pool error, got %v", err)
	}
	if err := store.SaveAlgorithm(ctx, routingstore.AlgorithmRecord{ID: "algo_1"}); !errors.Is(err, errNilPool) {
		t.Fatalf("expected nil pool error, got %v", err)
	}
	if _, err := store.ListActiveAccounts(ctx, "mer_1"); !errors.Is(err, errNilPool) {
		t.Fatalf("expected nil pool error, got %v", err)
	}
	if err := store.UpsertAccount(ctx, routingstore.MerchantConnectorAccount{ID: "mca_1"}); !errors.Is(err, errNilPool) {
		t.Fatalf("expected nil pool error, got %v", err)
	}
	if err := store.DeleteAccount(ctx, "mer_1", "mca_1"); !errors.Is(err, errNilPool) {
		t.Fatalf("expected nil pool error, got %v", err)
	}
	if _, err := store.DefaultConnectors(ctx, "pro_1", routing.TransactionPayment); !errors.Is(err, errNilPool) {
		t.Fatalf("expected nil pool error, got %v", err)
	}
	if err := store.SetDefaultConnectors(ctx, "pro_1", routing.TransactionPayment, nil); !errors.Is(err, errNilPool) {
		t.Fatalf("expected nil pool error, got %v", err)
	}
	if _, err := store.RoutingProfile(ctx, "mer_1", "pro_1"); !errors.Is(err, errNilPool) {
		t.Fatalf("expected nil pool error, got %v", err)
	}
	if err := store.UpsertProfile(ctx, routingstore.Profile{ID: "pro_1"}); !errors.Is(err, errNilPool) {
		t.Fatalf("expected nil pool error, got %v", err)
	}
}

func TestEncodeListDefaultsToEmptyArray(t *testing.T) {
	raw, err := encodeList[routing.CaptureMethod](nil)
	require.NoError(t, err)
	require.Equal(t, "[]", string(raw))

	raw, err = encodeList([]routing.RoutableConnectorChoice{routing.NewChoice("stripe", "mca_1")})
	require.NoError(t, err)
	require.JSONEq(t, `[{"connector":"stripe","merchant_connector_id":"mca_1"}]`, string(raw))
}

func TestDecodeListAcceptsLabelsAndObjects(t *testing.T) {
	var choices []routing.RoutableConnectorChoice
	require.NoError(t, decodeList([]byte(`["stripe:mca_1",{"connector":"Adyen","merchant_connector_id":"mca_2"}]`), &choices))
	require.Equal(t, []routing.RoutableConnectorChoice{
		routing.NewChoice("stripe", "mca_1"),
		routing.NewChoice("adyen", "mca_2"),
	}, choices)

	choices = []routing.RoutableConnectorChoice{routing.NewChoice("stripe", "")}
	require.NoError(t, decodeList(nil, &choices))
	require.Nil(t, choices)

	require.Error(t, decodeList([]byte(`{`), &choices))
}
