// Package dsl implements the routing rule language: a program is an ordered list of rules,
// each pairing a boolean condition over BackendInput fields with a connector selection.
package dsl

import (
	"bytes"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/coachpo/payroute/internal/domain/routing"
)

// ComparisonOp is the comparator applied between a field and a literal.
type ComparisonOp string

const (
	OpEqual            ComparisonOp = "equal"
	OpNotEqual         ComparisonOp = "not_equal"
	OpLessThan         ComparisonOp = "less_than"
	OpLessThanEqual    ComparisonOp = "less_than_equal"
	OpGreaterThan      ComparisonOp = "greater_than"
	OpGreaterThanEqual ComparisonOp = "greater_than_equal"
	OpIn               ComparisonOp = "in"
	OpNotIn            ComparisonOp = "not_in"
)

// ValueType tags the literal on the right-hand side of a comparison.
type ValueType string

const (
	ValueNumber           ValueType = "number"
	ValueNumberArray      ValueType = "number_array"
	ValueEnumVariant      ValueType = "enum_variant"
	ValueEnumVariantArray ValueType = "enum_variant_array"
	ValueMetadataVariant  ValueType = "metadata_variant"
	ValueStr              ValueType = "str_value"
)

// MetadataValue matches one key of the free-form metadata map.
type MetadataValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Value is a typed literal.
type Value struct {
	Type     ValueType
	Number   int64
	Numbers  []int64
	Enum     string
	Enums    []string
	Metadata MetadataValue
	Str      string
}

type valueEnvelope struct {
	Type  ValueType       `json:"type"`
	Value json.RawMessage `json:"value"`
}

// MarshalJSON encodes the value as {"type", "value"}.
func (v Value) MarshalJSON() ([]byte, error) {
	var payload any
	switch v.Type {
	case ValueNumber:
		payload = v.Number
	case ValueNumberArray:
		payload = v.Numbers
	case ValueEnumVariant:
		payload = v.Enum
	case ValueEnumVariantArray:
		payload = v.Enums
	case ValueMetadataVariant:
		payload = v.Metadata
	case ValueStr:
		payload = v.Str
	default:
		return nil, fmt.Errorf("dsl value: unknown type %q", v.Type)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("dsl value: %w", err)
	}
	return json.Marshal(valueEnvelope{Type: v.Type, Value: raw})
}

// UnmarshalJSON decodes the {"type", "value"} envelope.
func (v *Value) UnmarshalJSON(data []byte) error {
	var env valueEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("dsl value: %w", err)
	}
	out := Value{Type: ValueType(strings.TrimSpace(string(env.Type)))}
	var err error
	switch out.Type {
	case ValueNumber:
		err = json.Unmarshal(env.Value, &out.Number)
	case ValueNumberArray:
		err = json.Unmarshal(env.Value, &out.Numbers)
	case ValueEnumVariant:
		err = json.Unmarshal(env.Value, &out.Enum)
	case ValueEnumVariantArray:
		err = json.Unmarshal(env.Value, &out.Enums)
	case ValueMetadataVariant:
		err = json.Unmarshal(env.Value, &out.Metadata)
	case ValueStr:
		err = json.Unmarshal(env.Value, &out.Str)
	default:
		return fmt.Errorf("dsl value: unknown type %q", env.Type)
	}
	if err != nil {
		return fmt.Errorf("dsl value %s: %w", out.Type, err)
	}
	*v = out
	return nil
}

// Comparison tests one field against a literal.
type Comparison struct {
	LHS   string       `json:"lhs"`
	Op    ComparisonOp `json:"op"`
	Value Value        `json:"value"`
}

// Expr is a condition tree node. Exactly one of All, Any, Not or Comparison is set.
type Expr struct {
	All        []Expr
	Any        []Expr
	Not        *Expr
	Comparison *Comparison
}

// Cmp builds a comparison expression.
func Cmp(lhs string, op ComparisonOp, value Value) Expr {
	return Expr{Comparison: &Comparison{LHS: lhs, Op: op, Value: value}}
}

// All builds a conjunction.
func All(children ...Expr) Expr { return Expr{All: children} }

// Any builds a disjunction.
func Any(children ...Expr) Expr { return Expr{Any: children} }

// Not negates a child expression.
func Not(child Expr) Expr { return Expr{Not: &child} }

// Enum builds an enum_variant literal.
func Enum(variant string) Value { return Value{Type: ValueEnumVariant, Enum: variant} }

// Enums builds an enum_variant_array literal.
func Enums(variants ...string) Value { return Value{Type: ValueEnumVariantArray, Enums: variants} }

// Number builds a number literal.
func Number(n int64) Value { return Value{Type: ValueNumber, Number: n} }

// Metadata builds a metadata_variant literal.
func Metadata(key, value string) Value {
	return Value{Type: ValueMetadataVariant, Metadata: MetadataValue{Key: key, Value: value}}
}

// Str builds a str_value literal.
func Str(s string) Value { return Value{Type: ValueStr, Str: s} }

func (e Expr) populated() int {
	n := 0
	if e.All != nil {
		n++
	}
	if e.Any != nil {
		n++
	}
	if e.Not != nil {
		n++
	}
	if e.Comparison != nil {
		n++
	}
	return n
}

// MarshalJSON encodes the expression in its tagged object form.
func (e Expr) MarshalJSON() ([]byte, error) {
	switch {
	case e.Comparison != nil:
		return json.Marshal(e.Comparison)
	case e.All != nil:
		return json.Marshal(map[string][]Expr{"all": e.All})
	case e.Any != nil:
		return json.Marshal(map[string][]Expr{"any": e.Any})
	case e.Not != nil:
		return json.Marshal(map[string]*Expr{"not": e.Not})
	default:
		return nil, fmt.Errorf("dsl expr: empty expression")
	}
}

// UnmarshalJSON decodes {"all": [...]}, {"any": [...]}, {"not": {...}} or a comparison.
func (e *Expr) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("dsl expr: %w", err)
	}
	var out Expr
	switch {
	case fields["all"] != nil:
		if err := json.Unmarshal(fields["all"], &out.All); err != nil {
			return fmt.Errorf("dsl expr all: %w", err)
		}
		if out.All == nil {
			out.All = []Expr{}
		}
	case fields["any"] != nil:
		if err := json.Unmarshal(fields["any"], &out.Any); err != nil {
			return fmt.Errorf("dsl expr any: %w", err)
		}
		if out.Any == nil {
			out.Any = []Expr{}
		}
	case fields["not"] != nil:
		var child Expr
		if err := json.Unmarshal(fields["not"], &child); err != nil {
			return fmt.Errorf("dsl expr not: %w", err)
		}
		out.Not = &child
	case fields["lhs"] != nil:
		var cmp Comparison
		if err := json.Unmarshal(data, &cmp); err != nil {
			return fmt.Errorf("dsl comparison: %w", err)
		}
		out.Comparison = &cmp
	default:
		return fmt.Errorf("dsl expr: expected one of all, any, not, lhs")
	}
	if len(fields) > 1 && out.Comparison == nil {
		return fmt.Errorf("dsl expr: multiple operators in one node")
	}
	*e = out
	return nil
}

// OutputKind tags the connector selection produced by a rule.
type OutputKind string

const (
	OutputPriority    OutputKind = "priority"
	OutputVolumeSplit OutputKind = "volume_split"
)

// Output is the connector selection of a rule or of the program default.
type Output struct {
	Kind        OutputKind
	Priority    []routing.RoutableConnectorChoice
	VolumeSplit []routing.VolumeSplitChoice
}

// IsZero reports whether no output was configured.
func (o Output) IsZero() bool { return o.Kind == "" }

// PriorityOutput builds a priority selection.
func PriorityOutput(choices ...routing.RoutableConnectorChoice) Output {
	return Output{Kind: OutputPriority, Priority: choices}
}

// VolumeSplitOutput builds a volume split selection.
func VolumeSplitOutput(choices ...routing.VolumeSplitChoice) Output {
	return Output{Kind: OutputVolumeSplit, VolumeSplit: choices}
}

// Connectors lists the connectors referenced by the output.
func (o Output) Connectors() []routing.RoutableConnectorChoice {
	if o.Kind == OutputVolumeSplit {
		out := make([]routing.RoutableConnectorChoice, 0, len(o.VolumeSplit))
		for _, vs := range o.VolumeSplit {
			out = append(out, vs.Connector)
		}
		return out
	}
	return append([]routing.RoutableConnectorChoice(nil), o.Priority...)
}

type outputEnvelope struct {
	Type OutputKind      `json:"type"`
	Data json.RawMessage `json:"data"`
}

// MarshalJSON encodes the output as {"type", "data"}.
func (o Output) MarshalJSON() ([]byte, error) {
	var (
		data []byte
		err  error
	)
	switch o.Kind {
	case OutputPriority:
		data, err = json.Marshal(o.Priority)
	case OutputVolumeSplit:
		data, err = json.Marshal(o.VolumeSplit)
	case "":
		return []byte("null"), nil
	default:
		return nil, fmt.Errorf("dsl output: unknown type %q", o.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("dsl output: %w", err)
	}
	return json.Marshal(outputEnvelope{Type: o.Kind, Data: data})
}

// UnmarshalJSON decodes the {"type", "data"} envelope; null leaves the output empty.
func (o *Output) UnmarshalJSON(raw []byte) error {
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		*o = Output{}
		return nil
	}
	var env outputEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("dsl output: %w", err)
	}
	out := Output{Kind: OutputKind(strings.TrimSpace(string(env.Type)))}
	switch out.Kind {
	case OutputPriority:
		if err := json.Unmarshal(env.Data, &out.Priority); err != nil {
			return fmt.Errorf("dsl priority output: %w", err)
		}
	case OutputVolumeSplit:
		if err := json.Unmarshal(env.Data, &out.VolumeSplit); err != nil {
			return fmt.Errorf("dsl volume split output: %w", err)
		}
	default:
		return fmt.Errorf("dsl output: unknown type %q", env.Type)
	}
	*o = out
	return nil
}

// Rule pairs a condition with the selection applied when it holds.
type Rule struct {
	Name      string `json:"name"`
	Selection Output `json:"connector_selection"`
	Condition Expr   `json:"condition"`
}

// Program is an ordered rule list with an optional default selection.
type Program struct {
	DefaultSelection Output         `json:"default_selection"`
	Rules            []Rule         `json:"rules"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// Connectors lists every connector referenced anywhere in the program, without duplicates.
func (p *Program) Connectors() []routing.RoutableConnectorChoice {
	seen := make(map[routing.RoutableConnectorChoice]struct{})
	var out []routing.RoutableConnectorChoice
	add := func(choices []routing.RoutableConnectorChoice) {
		for _, c := range choices {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	for _, rule := range p.Rules {
		add(rule.Selection.Connectors())
	}
	add(p.DefaultSelection.Connectors())
	return out
}
