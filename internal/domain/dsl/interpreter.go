package dsl

import (
	"fmt"

	"github.com/coachpo/payroute/errs"
	"github.com/coachpo/payroute/internal/domain/routing"
)

// Result is the outcome of executing a program.
type Result struct {
	Output Output
	// Rule names the matching rule; empty when the default selection applied.
	Rule string
}

// Matched reports whether a rule (rather than the default) produced the output.
func (r Result) Matched() bool { return r.Rule != "" }

// Execute evaluates the compiled program against the input.
func (c *CompiledProgram) Execute(input routing.BackendInput) (Result, error) {
	return Execute(c.program, c.schema, input)
}

// Execute evaluates the rules in order and returns the output of the first one whose
// condition holds, or the default selection when none does. Absent input fields never
// satisfy a comparison. Unknown paths yield a DslExecutionError.
func Execute(program *Program, schema *Schema, input routing.BackendInput) (Result, error) {
	if program == nil {
		return Result{}, execError(fmt.Errorf("program is nil"), "")
	}
	if schema == nil {
		schema = BackendSchema()
	}
	for i, rule := range program.Rules {
		ok, err := eval(rule.Condition, schema, &input)
		if err != nil {
			name := rule.Name
			if name == "" {
				name = fmt.Sprintf("rule[%d]", i)
			}
			return Result{}, execError(err, name)
		}
		if ok {
			name := rule.Name
			if name == "" {
				name = fmt.Sprintf("rule[%d]", i)
			}
			return Result{Output: rule.Selection, Rule: name}, nil
		}
	}
	if program.DefaultSelection.IsZero() {
		return Result{}, execError(fmt.Errorf("no rule matched and no default selection"), "")
	}
	return Result{Output: program.DefaultSelection}, nil
}

func execError(cause error, rule string) error {
	opts := []errs.Option{
		errs.WithCanonicalCode(errs.CanonicalDslExecution),
		errs.WithMessage("execute routing program"),
		errs.WithCause(cause),
	}
	if rule != "" {
		opts = append(opts, errs.WithField("rule", rule))
	}
	return errs.New(component, errs.CodeInternal, opts...)
}

func eval(e Expr, schema *Schema, in *routing.BackendInput) (bool, error) {
	switch {
	case e.Comparison != nil:
		return compare(*e.Comparison, schema, in)
	case e.All != nil:
		for _, child := range e.All {
			ok, err := eval(child, schema, in)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case e.Any != nil:
		for _, child := range e.Any {
			ok, err := eval(child, schema, in)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case e.Not != nil:
		ok, err := eval(*e.Not, schema, in)
		return !ok, err
	default:
		return false, fmt.Errorf("empty condition")
	}
}

func compare(c Comparison, schema *Schema, in *routing.BackendInput) (bool, error) {
	field, ok := schema.Field(c.LHS)
	if !ok {
		return false, fmt.Errorf("unknown field %q", c.LHS)
	}
	got, present := field.resolve(in)
	if !present {
		return false, nil
	}
	switch field.Kind {
	case KindNumber:
		return compareNumber(c, got.num)
	case KindEnum:
		return compareEnum(c, got.str)
	case KindString:
		return compareString(c, got.str)
	case KindMetadata:
		return compareMetadata(c, got.meta)
	}
	return false, fmt.Errorf("%s: unsupported field kind", c.LHS)
}

func compareNumber(c Comparison, got int64) (bool, error) {
	switch c.Op {
	case OpIn, OpNotIn:
		if c.Value.Type != ValueNumberArray {
			return false, mismatch(c)
		}
		found := false
		for _, n := range c.Value.Numbers {
			if n == got {
				found = true
				break
			}
		}
		return found == (c.Op == OpIn), nil
	}
	if c.Value.Type != ValueNumber {
		return false, mismatch(c)
	}
	want := c.Value.Number
	switch c.Op {
	case OpEqual:
		return got == want, nil
	case OpNotEqual:
		return got != want, nil
	case OpLessThan:
		return got < want, nil
	case OpLessThanEqual:
		return got <= want, nil
	case OpGreaterThan:
		return got > want, nil
	case OpGreaterThanEqual:
		return got >= want, nil
	}
	return false, mismatch(c)
}

func compareEnum(c Comparison, got string) (bool, error) {
	switch c.Op {
	case OpEqual, OpNotEqual:
		if c.Value.Type != ValueEnumVariant {
			return false, mismatch(c)
		}
		return (got == c.Value.Enum) == (c.Op == OpEqual), nil
	case OpIn, OpNotIn:
		if c.Value.Type != ValueEnumVariantArray {
			return false, mismatch(c)
		}
		found := false
		for _, v := range c.Value.Enums {
			if v == got {
				found = true
				break
			}
		}
		return found == (c.Op == OpIn), nil
	}
	return false, mismatch(c)
}

func compareString(c Comparison, got string) (bool, error) {
	if c.Value.Type != ValueStr {
		return false, mismatch(c)
	}
	switch c.Op {
	case OpEqual:
		return got == c.Value.Str, nil
	case OpNotEqual:
		return got != c.Value.Str, nil
	}
	return false, mismatch(c)
}

func compareMetadata(c Comparison, meta map[string]string) (bool, error) {
	if c.Value.Type != ValueMetadataVariant {
		return false, mismatch(c)
	}
	got, ok := meta[c.Value.Metadata.Key]
	if !ok {
		return false, nil
	}
	switch c.Op {
	case OpEqual:
		return got == c.Value.Metadata.Value, nil
	case OpNotEqual:
		return got != c.Value.Metadata.Value, nil
	}
	return false, mismatch(c)
}

func mismatch(c Comparison) error {
	return fmt.Errorf("%s: operator %q cannot apply to %s literal", c.LHS, c.Op, c.Value.Type)
}
