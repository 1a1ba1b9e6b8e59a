// Package routing defines the value types shared by the connector routing engine.
package routing

import (
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
)

// Connector identifies a downstream payment or payout processor.
type Connector string

// Known connectors. The list mirrors the processors the engine can route to.
const (
	ConnectorAdyen           Connector = "adyen"
	ConnectorAdyenPlatform   Connector = "adyenplatform"
	ConnectorAuthorizedotnet Connector = "authorizedotnet"
	ConnectorBluesnap        Connector = "bluesnap"
	ConnectorBraintree       Connector = "braintree"
	ConnectorCheckout        Connector = "checkout"
	ConnectorCybersource     Connector = "cybersource"
	ConnectorEbanx           Connector = "ebanx"
	ConnectorKlarna          Connector = "klarna"
	ConnectorNuvei           Connector = "nuvei"
	ConnectorPayone          Connector = "payone"
	ConnectorPaypal          Connector = "paypal"
	ConnectorStripe          Connector = "stripe"
	ConnectorWise            Connector = "wise"
	ConnectorWorldpay        Connector = "worldpay"
)

var knownConnectors = map[Connector]struct{}{
	ConnectorAdyen:           {},
	ConnectorAdyenPlatform:   {},
	ConnectorAuthorizedotnet: {},
	ConnectorBluesnap:        {},
	ConnectorBraintree:       {},
	ConnectorCheckout:        {},
	ConnectorCybersource:     {},
	ConnectorEbanx:           {},
	ConnectorKlarna:          {},
	ConnectorNuvei:           {},
	ConnectorPayone:          {},
	ConnectorPaypal:          {},
	ConnectorStripe:          {},
	ConnectorWise:            {},
	ConnectorWorldpay:        {},
}

// NormalizeConnector lowercases and trims a connector name.
func NormalizeConnector(name string) Connector {
	return Connector(strings.ToLower(strings.TrimSpace(name)))
}

// Valid reports whether the connector is one the engine knows about.
func (c Connector) Valid() bool {
	_, ok := knownConnectors[c]
	return ok
}

func (c Connector) String() string { return string(c) }

// RoutableConnectorChoice identifies one candidate destination. Values are compared by
// (connector, merchant connector account) equality.
type RoutableConnectorChoice struct {
	Connector           Connector `json:"connector"`
	MerchantConnectorID string    `json:"merchant_connector_id,omitempty"`
}

// NewChoice constructs a choice for the connector and optional account id.
func NewChoice(connector Connector, mcaID string) RoutableConnectorChoice {
	return RoutableConnectorChoice{Connector: connector, MerchantConnectorID: strings.TrimSpace(mcaID)}
}

const labelSeparator = ":"

// Label formats the choice as "connector:merchant_connector_id", the encoding used by the
// external statistical routing services. A choice without account reference renders as the
// bare connector name.
func (c RoutableConnectorChoice) Label() string {
	if c.MerchantConnectorID == "" {
		return string(c.Connector)
	}
	return string(c.Connector) + labelSeparator + c.MerchantConnectorID
}

func (c RoutableConnectorChoice) String() string { return c.Label() }

// ParseLabel parses the "connector:merchant_connector_id" encoding produced by Label.
func ParseLabel(label string) (RoutableConnectorChoice, error) {
	trimmed := strings.TrimSpace(label)
	if trimmed == "" {
		return RoutableConnectorChoice{}, fmt.Errorf("connector label empty")
	}
	name, mca, _ := strings.Cut(trimmed, labelSeparator)
	connector := NormalizeConnector(name)
	if !connector.Valid() {
		return RoutableConnectorChoice{}, fmt.Errorf("connector label %q: unknown connector %q", label, name)
	}
	return NewChoice(connector, mca), nil
}

// ParseLabels parses every label, failing on the first malformed entry.
func ParseLabels(labels []string) ([]RoutableConnectorChoice, error) {
	out := make([]RoutableConnectorChoice, 0, len(labels))
	for _, label := range labels {
		choice, err := ParseLabel(label)
		if err != nil {
			return nil, err
		}
		out = append(out, choice)
	}
	return out, nil
}

// Labels renders every choice with Label.
func Labels(choices []RoutableConnectorChoice) []string {
	out := make([]string, 0, len(choices))
	for _, choice := range choices {
		out = append(out, choice.Label())
	}
	return out
}

// UnmarshalJSON accepts either the object form or the label string form.
func (c *RoutableConnectorChoice) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "\"") {
		var label string
		if err := json.Unmarshal(data, &label); err != nil {
			return fmt.Errorf("decode connector label: %w", err)
		}
		parsed, err := ParseLabel(label)
		if err != nil {
			return err
		}
		*c = parsed
		return nil
	}
	type plain RoutableConnectorChoice
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return fmt.Errorf("decode connector choice: %w", err)
	}
	decoded.Connector = NormalizeConnector(string(decoded.Connector))
	if !decoded.Connector.Valid() {
		return fmt.Errorf("decode connector choice: unknown connector %q", decoded.Connector)
	}
	decoded.MerchantConnectorID = strings.TrimSpace(decoded.MerchantConnectorID)
	*c = RoutableConnectorChoice(decoded)
	return nil
}

// ContainsChoice reports whether the list holds the choice.
func ContainsChoice(list []RoutableConnectorChoice, choice RoutableConnectorChoice) bool {
	for _, candidate := range list {
		if candidate == choice {
			return true
		}
	}
	return false
}
