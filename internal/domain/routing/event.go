package routing

import (
	"context"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

// RoutingEvent is the audit record of one routing decision or one external routing call.
type RoutingEvent struct {
	ID          string            `json:"id"`
	MerchantID  string            `json:"merchant_id"`
	ProfileID   string            `json:"profile_id"`
	ReferenceID string            `json:"reference_id"`
	Engine      RoutingEngine     `json:"routing_engine"`
	Flow        string            `json:"flow"`
	Request     json.RawMessage   `json:"request,omitempty"`
	Response    json.RawMessage   `json:"response,omitempty"`
	Connectors  []string          `json:"connectors,omitempty"`
	Approach    RoutingApproach   `json:"routing_approach,omitempty"`
	StatusCode  int               `json:"status_code,omitempty"`
	Error       string            `json:"error,omitempty"`
	Latency     time.Duration     `json:"latency"`
	CreatedAt   time.Time         `json:"created_at"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

// NewRoutingEvent constructs an event with a fresh id.
func NewRoutingEvent(merchantID, profileID, referenceID string, engine RoutingEngine, flow string, now time.Time) *RoutingEvent {
	return &RoutingEvent{
		ID:          uuid.NewString(),
		MerchantID:  merchantID,
		ProfileID:   profileID,
		ReferenceID: referenceID,
		Engine:      engine,
		Flow:        flow,
		CreatedAt:   now.UTC(),
	}
}

// SetRequest records the request payload, ignoring encoding failures.
func (e *RoutingEvent) SetRequest(v any) {
	if raw, err := json.Marshal(v); err == nil {
		e.Request = raw
	}
}

// SetResponse records the response payload, ignoring encoding failures.
func (e *RoutingEvent) SetResponse(v any) {
	if raw, err := json.Marshal(v); err == nil {
		e.Response = raw
	}
}

// SetConnectors records the connector ordering produced by the call.
func (e *RoutingEvent) SetConnectors(choices []RoutableConnectorChoice) {
	e.Connectors = Labels(choices)
}

// SetError records the failure, if any.
func (e *RoutingEvent) SetError(err error) {
	if err != nil {
		e.Error = err.Error()
	}
}

// EventSink receives routing events. Emit must not block the routing call for long and
// its failure never affects routing.
type EventSink interface {
	Emit(ctx context.Context, evt *RoutingEvent) error
}

// NopSink discards events.
type NopSink struct{}

// Emit implements EventSink.
func (NopSink) Emit(context.Context, *RoutingEvent) error { return nil }
