package dynamicrouting

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/coachpo/payroute/errs"
)

func TestCalculateSuccessRateRoundTrip(t *testing.T) {
	var got CalculateSuccessRateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, PathCalculateSuccessRate, r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"labels_with_score":[{"label":"adyen:mca_2","score":0.97},{"label":"stripe:mca_1","score":0.81}],"routing_approach":"exploitation"}`))
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL+"/", time.Second)
	resp, err := client.CalculateSuccessRate(context.Background(), CalculateSuccessRateRequest{
		ID:     "pro_1",
		Params: "card:credit",
		Labels: []string{"stripe:mca_1", "adyen:mca_2"},
	})
	require.NoError(t, err)
	require.Equal(t, "pro_1", got.ID)
	require.Equal(t, []string{"stripe:mca_1", "adyen:mca_2"}, got.Labels)
	require.Len(t, resp.LabelsWithScore, 2)
	require.Equal(t, "adyen:mca_2", resp.LabelsWithScore[0].Label)
	require.Equal(t, ApproachExploitation, resp.RoutingApproach)
}

func TestNonSuccessStatusIsDynamicRoutingError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL, time.Second).PerformElimination(context.Background(), EliminationRequest{ID: "pro_1"})
	require.Error(t, err)
	require.True(t, errs.IsCanonical(err, errs.CanonicalDynamicRouting))
	require.Equal(t, http.StatusServiceUnavailable, StatusCode(err))
}

func TestContractNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL, time.Second).CalculateContractScore(context.Background(), ContractScoreRequest{ID: "pro_1"})
	require.Error(t, err)
	require.Equal(t, errs.CanonicalContractNotFound, errs.Canonical(err))
}

func TestMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"decided_gateway":`))
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL, time.Second).DecideGateway(context.Background(), DecideGatewayRequest{MerchantID: "m1"})
	require.Error(t, err)
	require.True(t, errs.IsCanonical(err, errs.CanonicalDynamicRouting))
}

func TestCallerDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := NewHTTPClient(srv.URL, time.Minute).UpdateGatewayScore(ctx, UpdateGatewayScoreRequest{Gateway: "stripe"})
	require.Error(t, err)
}

func TestEliminatedStatus(t *testing.T) {
	var resp EliminationResponse
	raw := `{"labels_with_status":[
		{"label":"a","elimination_information":{"entity":{"is_eliminated":true},"global":{"is_eliminated":false}}},
		{"label":"b","elimination_information":{"global":{"is_eliminated":false}}}
	]}`
	require.NoError(t, json.Unmarshal([]byte(raw), &resp))
	require.True(t, resp.LabelsWithStatus[0].Eliminated())
	require.False(t, resp.LabelsWithStatus[1].Eliminated())
}
