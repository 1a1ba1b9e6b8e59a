package routing

import (
	"bytes"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
)

// AlgorithmKind tags the active variant of a RoutingAlgorithm.
type AlgorithmKind string

const (
	AlgorithmSingle      AlgorithmKind = "single"
	AlgorithmPriority    AlgorithmKind = "priority"
	AlgorithmVolumeSplit AlgorithmKind = "volume_split"
	AlgorithmAdvanced    AlgorithmKind = "advanced"
	// AlgorithmThreeDsDecisionRule decodes but is never executed by the routing engine.
	AlgorithmThreeDsDecisionRule AlgorithmKind = "three_ds_decision_rule"
)

// VolumeSplitChoice pairs a connector with a weight in 0..255.
type VolumeSplitChoice struct {
	Split     uint8                   `json:"split"`
	Connector RoutableConnectorChoice `json:"connector"`
}

// RoutingAlgorithm is a tagged union; exactly one variant field is populated and Kind names it.
// Advanced carries the raw program document; it is compiled by the dsl package.
type RoutingAlgorithm struct {
	Kind        AlgorithmKind
	Single      *RoutableConnectorChoice
	Priority    []RoutableConnectorChoice
	VolumeSplit []VolumeSplitChoice
	Advanced    json.RawMessage
	ThreeDs     json.RawMessage
}

// Validate ensures exactly the variant named by Kind is populated.
func (a RoutingAlgorithm) Validate() error {
	populated := 0
	if a.Single != nil {
		populated++
	}
	if a.Priority != nil {
		populated++
	}
	if a.VolumeSplit != nil {
		populated++
	}
	if len(a.Advanced) > 0 {
		populated++
	}
	if len(a.ThreeDs) > 0 {
		populated++
	}
	if populated != 1 {
		return fmt.Errorf("routing algorithm: expected exactly one variant, found %d", populated)
	}
	switch a.Kind {
	case AlgorithmSingle:
		if a.Single == nil {
			return fmt.Errorf("routing algorithm: single variant missing connector")
		}
	case AlgorithmPriority:
		if len(a.Priority) == 0 {
			return fmt.Errorf("routing algorithm: priority list empty")
		}
	case AlgorithmVolumeSplit:
		if len(a.VolumeSplit) == 0 {
			return fmt.Errorf("routing algorithm: volume split list empty")
		}
	case AlgorithmAdvanced:
		if len(a.Advanced) == 0 {
			return fmt.Errorf("routing algorithm: advanced program missing")
		}
	case AlgorithmThreeDsDecisionRule:
		if len(a.ThreeDs) == 0 {
			return fmt.Errorf("routing algorithm: 3ds decision rule missing")
		}
	default:
		return fmt.Errorf("routing algorithm: unknown kind %q", a.Kind)
	}
	return nil
}

// Connectors lists the connectors referenced by the non-advanced variants.
func (a RoutingAlgorithm) Connectors() []RoutableConnectorChoice {
	switch a.Kind {
	case AlgorithmSingle:
		if a.Single != nil {
			return []RoutableConnectorChoice{*a.Single}
		}
	case AlgorithmPriority:
		return append([]RoutableConnectorChoice(nil), a.Priority...)
	case AlgorithmVolumeSplit:
		out := make([]RoutableConnectorChoice, 0, len(a.VolumeSplit))
		for _, vs := range a.VolumeSplit {
			out = append(out, vs.Connector)
		}
		return out
	}
	return nil
}

type algorithmEnvelope struct {
	Type AlgorithmKind   `json:"type"`
	Data json.RawMessage `json:"data"`
}

// MarshalJSON encodes the algorithm as {"type": kind, "data": payload}.
func (a RoutingAlgorithm) MarshalJSON() ([]byte, error) {
	var (
		data []byte
		err  error
	)
	switch a.Kind {
	case AlgorithmSingle:
		data, err = json.Marshal(a.Single)
	case AlgorithmPriority:
		data, err = json.Marshal(a.Priority)
	case AlgorithmVolumeSplit:
		data, err = json.Marshal(a.VolumeSplit)
	case AlgorithmAdvanced:
		data = a.Advanced
	case AlgorithmThreeDsDecisionRule:
		data = a.ThreeDs
	default:
		return nil, fmt.Errorf("routing algorithm: unknown kind %q", a.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s algorithm: %w", a.Kind, err)
	}
	return json.Marshal(algorithmEnvelope{Type: a.Kind, Data: data})
}

// UnmarshalJSON decodes the {"type", "data"} envelope.
func (a *RoutingAlgorithm) UnmarshalJSON(raw []byte) error {
	var env algorithmEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode routing algorithm envelope: %w", err)
	}
	kind := AlgorithmKind(strings.ToLower(strings.TrimSpace(string(env.Type))))
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return fmt.Errorf("routing algorithm %q: data missing", kind)
	}
	out := RoutingAlgorithm{Kind: kind}
	switch kind {
	case AlgorithmSingle:
		var choice RoutableConnectorChoice
		if err := json.Unmarshal(data, &choice); err != nil {
			return fmt.Errorf("decode single algorithm: %w", err)
		}
		out.Single = &choice
	case AlgorithmPriority:
		if err := json.Unmarshal(data, &out.Priority); err != nil {
			return fmt.Errorf("decode priority algorithm: %w", err)
		}
		if out.Priority == nil {
			out.Priority = []RoutableConnectorChoice{}
		}
	case AlgorithmVolumeSplit:
		if err := json.Unmarshal(data, &out.VolumeSplit); err != nil {
			return fmt.Errorf("decode volume split algorithm: %w", err)
		}
		if out.VolumeSplit == nil {
			out.VolumeSplit = []VolumeSplitChoice{}
		}
	case AlgorithmAdvanced:
		out.Advanced = append(json.RawMessage(nil), data...)
	case AlgorithmThreeDsDecisionRule:
		out.ThreeDs = append(json.RawMessage(nil), data...)
	default:
		return fmt.Errorf("routing algorithm: unknown kind %q", env.Type)
	}
	*a = out
	return nil
}

// ParseAlgorithm decodes and validates a stored algorithm document.
func ParseAlgorithm(document []byte) (RoutingAlgorithm, error) {
	var algo RoutingAlgorithm
	if err := json.Unmarshal(document, &algo); err != nil {
		return RoutingAlgorithm{}, err
	}
	if err := algo.Validate(); err != nil {
		return RoutingAlgorithm{}, err
	}
	return algo, nil
}
