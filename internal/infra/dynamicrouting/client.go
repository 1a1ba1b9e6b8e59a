package dynamicrouting

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/coachpo/payroute/errs"
)

const component = "dynamicrouting"

// Service endpoints, relative to the base URL.
const (
	PathCalculateSuccessRate    = "/success-rate/calculate"
	PathUpdateSuccessRateWindow = "/success-rate/update-window"
	PathPerformElimination      = "/elimination/perform"
	PathUpdateEliminationBucket = "/elimination/update-bucket"
	PathCalculateContractScore  = "/contract/calculate"
	PathUpdateContracts         = "/contract/update"
	PathDecideGateway           = "/decide-gateway"
	PathUpdateGatewayScore      = "/update-gateway-score"
)

const maxErrorBody = 4 << 10

// StatusError is returned when the service answers with a non-2xx status.
type StatusError struct {
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s: status %d", e.Path, e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// StatusCode extracts the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}

// HTTPClient calls the statistical routing services over JSON/HTTP.
type HTTPClient struct {
	client  *http.Client
	baseURL string
}

// NewHTTPClient creates a client for the base URL. timeout bounds each request in addition to
// any deadline on the caller's context.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := new(http.Client)
	client.Timeout = timeout
	return &HTTPClient{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

func (c *HTTPClient) CalculateSuccessRate(ctx context.Context, req CalculateSuccessRateRequest) (CalculateSuccessRateResponse, error) {
	var resp CalculateSuccessRateResponse
	err := c.post(ctx, PathCalculateSuccessRate, req, &resp)
	return resp, err
}

func (c *HTTPClient) UpdateSuccessRateWindow(ctx context.Context, req UpdateSuccessRateWindowRequest) error {
	return c.post(ctx, PathUpdateSuccessRateWindow, req, nil)
}

func (c *HTTPClient) PerformElimination(ctx context.Context, req EliminationRequest) (EliminationResponse, error) {
	var resp EliminationResponse
	err := c.post(ctx, PathPerformElimination, req, &resp)
	return resp, err
}

func (c *HTTPClient) UpdateEliminationBucket(ctx context.Context, req UpdateEliminationBucketRequest) error {
	return c.post(ctx, PathUpdateEliminationBucket, req, nil)
}

// CalculateContractScore fails with CanonicalContractNotFound when the service has no contract
// for the id yet.
func (c *HTTPClient) CalculateContractScore(ctx context.Context, req ContractScoreRequest) (ContractScoreResponse, error) {
	var resp ContractScoreResponse
	err := c.post(ctx, PathCalculateContractScore, req, &resp)
	if StatusCode(err) == http.StatusNotFound {
		return resp, errs.New(component, errs.CodeNotFound,
			errs.WithCanonicalCode(errs.CanonicalContractNotFound),
			errs.WithMessage("contract not initialised"),
			errs.WithField("id", req.ID),
			errs.WithCause(err))
	}
	return resp, err
}

func (c *HTTPClient) UpdateContracts(ctx context.Context, req UpdateContractsRequest) error {
	return c.post(ctx, PathUpdateContracts, req, nil)
}

func (c *HTTPClient) DecideGateway(ctx context.Context, req DecideGatewayRequest) (DecideGatewayResponse, error) {
	var resp DecideGatewayResponse
	err := c.post(ctx, PathDecideGateway, req, &resp)
	return resp, err
}

func (c *HTTPClient) UpdateGatewayScore(ctx context.Context, req UpdateGatewayScoreRequest) error {
	return c.post(ctx, PathUpdateGatewayScore, req, nil)
}

func (c *HTTPClient) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return requestError(path, errs.CodeInvalid, fmt.Errorf("encode request: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return requestError(path, errs.CodeInvalid, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return requestError(path, errs.CodeNetwork, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return requestError(path, errs.CodeUnavailable, &StatusError{
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		})
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return requestError(path, errs.CodeInternal, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func requestError(path string, code errs.Code, cause error) error {
	opts := []errs.Option{
		errs.WithCanonicalCode(errs.CanonicalDynamicRouting),
		errs.WithMessage("dynamic routing request failed"),
		errs.WithField("path", path),
		errs.WithCause(cause),
	}
	if status := StatusCode(cause); status != 0 {
		opts = append(opts, errs.WithField("status", strconv.Itoa(status)))
	}
	return errs.New(component, code, opts...)
}
