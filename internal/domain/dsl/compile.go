package dsl

import (
	"fmt"
	"strconv"

	json "github.com/goccy/go-json"

	"github.com/coachpo/payroute/errs"
	"github.com/coachpo/payroute/internal/domain/routing"
)

const component = "dsl"

// Parse decodes a program document.
func Parse(document []byte) (*Program, error) {
	var program Program
	if err := json.Unmarshal(document, &program); err != nil {
		return nil, errs.New(component, errs.CodeInvalid,
			errs.WithCanonicalCode(errs.CanonicalDslParsing),
			errs.WithMessage("decode routing program"),
			errs.WithCause(err))
	}
	return &program, nil
}

// CompiledProgram is a type-checked program bound to the schema it was checked against.
// It is immutable after Compile returns and safe for concurrent use.
type CompiledProgram struct {
	program *Program
	schema  *Schema
}

// Program returns the underlying program. Callers must not mutate it.
func (c *CompiledProgram) Program() *Program { return c.program }

// Schema returns the schema the program was compiled against.
func (c *CompiledProgram) Schema() *Schema { return c.schema }

// Compile type-checks every rule of the program against the schema.
func Compile(program *Program, schema *Schema) (*CompiledProgram, error) {
	if program == nil {
		return nil, initError("program is nil", "")
	}
	if schema == nil {
		schema = BackendSchema()
	}
	if len(program.Rules) == 0 && program.DefaultSelection.IsZero() {
		return nil, initError("program has neither rules nor a default selection", "")
	}
	if !program.DefaultSelection.IsZero() {
		if err := checkOutput(program.DefaultSelection); err != nil {
			return nil, initError(err.Error(), "default_selection")
		}
	}
	for i, rule := range program.Rules {
		name := rule.Name
		if name == "" {
			name = "rule[" + strconv.Itoa(i) + "]"
		}
		if rule.Selection.IsZero() {
			return nil, initError("rule has no connector selection", name)
		}
		if err := checkOutput(rule.Selection); err != nil {
			return nil, initError(err.Error(), name)
		}
		if err := checkExpr(rule.Condition, schema); err != nil {
			return nil, initError(err.Error(), name)
		}
	}
	return &CompiledProgram{program: program, schema: schema}, nil
}

// ParseAndCompile decodes and type-checks a program document.
func ParseAndCompile(document []byte, schema *Schema) (*CompiledProgram, error) {
	program, err := Parse(document)
	if err != nil {
		return nil, err
	}
	return Compile(program, schema)
}

func initError(message, rule string) error {
	opts := []errs.Option{
		errs.WithCanonicalCode(errs.CanonicalDslBackendInit),
		errs.WithMessage(message),
	}
	if rule != "" {
		opts = append(opts, errs.WithField("rule", rule))
	}
	return errs.New(component, errs.CodeInvalid, opts...)
}

func checkOutput(out Output) error {
	switch out.Kind {
	case OutputPriority:
		if len(out.Priority) == 0 {
			return fmt.Errorf("priority selection is empty")
		}
		for _, choice := range out.Priority {
			if !choice.Connector.Valid() {
				return fmt.Errorf("unknown connector %q", choice.Connector)
			}
		}
	case OutputVolumeSplit:
		if len(out.VolumeSplit) == 0 {
			return fmt.Errorf("volume split selection is empty")
		}
		for _, vs := range out.VolumeSplit {
			if !vs.Connector.Connector.Valid() {
				return fmt.Errorf("unknown connector %q", vs.Connector.Connector)
			}
		}
	default:
		return fmt.Errorf("unknown selection type %q", out.Kind)
	}
	return nil
}

func checkExpr(e Expr, schema *Schema) error {
	if e.populated() != 1 {
		return fmt.Errorf("condition node must set exactly one of all, any, not, comparison")
	}
	switch {
	case e.All != nil:
		for _, child := range e.All {
			if err := checkExpr(child, schema); err != nil {
				return err
			}
		}
	case e.Any != nil:
		for _, child := range e.Any {
			if err := checkExpr(child, schema); err != nil {
				return err
			}
		}
	case e.Not != nil:
		return checkExpr(*e.Not, schema)
	default:
		return checkComparison(*e.Comparison, schema)
	}
	return nil
}

func checkComparison(c Comparison, schema *Schema) error {
	field, ok := schema.Field(c.LHS)
	if !ok {
		return fmt.Errorf("unknown field %q", c.LHS)
	}
	switch field.Kind {
	case KindNumber:
		switch c.Op {
		case OpEqual, OpNotEqual, OpLessThan, OpLessThanEqual, OpGreaterThan, OpGreaterThanEqual:
			return expectValue(c, ValueNumber)
		case OpIn, OpNotIn:
			if err := expectValue(c, ValueNumberArray); err != nil {
				return err
			}
			if len(c.Value.Numbers) == 0 {
				return fmt.Errorf("%s: empty number array", c.LHS)
			}
			return nil
		}
	case KindEnum:
		switch c.Op {
		case OpEqual, OpNotEqual:
			if err := expectValue(c, ValueEnumVariant); err != nil {
				return err
			}
			if !field.Allows(c.Value.Enum) {
				return fmt.Errorf("%s: variant %q not allowed", c.LHS, c.Value.Enum)
			}
			return nil
		case OpIn, OpNotIn:
			if err := expectValue(c, ValueEnumVariantArray); err != nil {
				return err
			}
			if len(c.Value.Enums) == 0 {
				return fmt.Errorf("%s: empty variant array", c.LHS)
			}
			for _, v := range c.Value.Enums {
				if !field.Allows(v) {
					return fmt.Errorf("%s: variant %q not allowed", c.LHS, v)
				}
			}
			return nil
		}
	case KindString:
		switch c.Op {
		case OpEqual, OpNotEqual:
			return expectValue(c, ValueStr)
		}
	case KindMetadata:
		switch c.Op {
		case OpEqual, OpNotEqual:
			if err := expectValue(c, ValueMetadataVariant); err != nil {
				return err
			}
			if c.Value.Metadata.Key == "" {
				return fmt.Errorf("%s: metadata key missing", c.LHS)
			}
			return nil
		}
	}
	return fmt.Errorf("%s: operator %q not supported on %s field", c.LHS, c.Op, field.Kind)
}

func expectValue(c Comparison, want ValueType) error {
	if c.Value.Type != want {
		return fmt.Errorf("%s: operator %q expects %s, got %s", c.LHS, c.Op, want, c.Value.Type)
	}
	return nil
}

// Connectors lists the connectors referenced by the compiled program.
func (c *CompiledProgram) Connectors() []routing.RoutableConnectorChoice {
	return c.program.Connectors()
}
