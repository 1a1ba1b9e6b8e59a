// Package errs provides structured error types and helpers for the routing engine.
package errs

import (
	"errors"
	"sort"
	"strconv"
	"strings"
)

// Code identifies the broad error category.
type Code string

const (
	// CodeInvalid indicates invalid input or configuration.
	CodeInvalid Code = "invalid_request"
	// CodeNotFound indicates a missing resource.
	CodeNotFound Code = "not_found"
	// CodeInternal indicates a failure inside the engine.
	CodeInternal Code = "internal"
	// CodeNetwork indicates a network transport failure.
	CodeNetwork Code = "network"
	// CodeUnavailable indicates a dependency is temporarily unavailable.
	CodeUnavailable Code = "unavailable"
)

// CanonicalCode captures routing-specific failure families.
type CanonicalCode string

const (
	// CanonicalUnknown captures uncategorized failures.
	CanonicalUnknown CanonicalCode = "unknown"
	// CanonicalDslMissingInDB indicates the referenced algorithm is absent from storage.
	CanonicalDslMissingInDB CanonicalCode = "dsl_missing_in_db"
	// CanonicalDslParsing indicates a stored algorithm document could not be decoded.
	CanonicalDslParsing CanonicalCode = "dsl_parsing_error"
	// CanonicalDslBackendInit indicates a program failed type checking.
	CanonicalDslBackendInit CanonicalCode = "dsl_backend_init_error"
	// CanonicalDslExecution indicates a compiled program failed during evaluation.
	CanonicalDslExecution CanonicalCode = "dsl_execution_error"
	// CanonicalKgraphRefresh indicates the constraint graph could not be rebuilt.
	CanonicalKgraphRefresh CanonicalCode = "kgraph_cache_refresh_failed"
	// CanonicalKgraphAnalysis indicates a constraint graph query failed.
	CanonicalKgraphAnalysis CanonicalCode = "kgraph_analysis_error"
	// CanonicalVolumeSplitFailed indicates a volume split could not sample a connector.
	CanonicalVolumeSplitFailed CanonicalCode = "volume_split_failed"
	// CanonicalInvalidAlgorithm indicates an algorithm variant the engine cannot run.
	CanonicalInvalidAlgorithm CanonicalCode = "invalid_routing_algorithm_structure"
	// CanonicalProfileMissing indicates the request carried no profile id.
	CanonicalProfileMissing CanonicalCode = "profile_id_missing"
	// CanonicalFallbackUnavailable indicates not even the default connector list could be produced.
	CanonicalFallbackUnavailable CanonicalCode = "fallback_unavailable"
	// CanonicalDynamicRouting indicates an external statistical routing call failed.
	CanonicalDynamicRouting CanonicalCode = "dynamic_routing_failed"
	// CanonicalContractNotFound indicates the contract service has no contract for the profile.
	CanonicalContractNotFound CanonicalCode = "contract_not_found"
)

// E captures structured error information produced across the routing stack.
type E struct {
	Component string
	Code      Code
	Message   string
	Canonical CanonicalCode
	Fields    map[string]string

	cause error
}

// Option configures an error envelope.
type Option func(*E)

// New constructs an error envelope for the component and error code.
func New(component string, code Code, opts ...Option) *E {
	e := &E{
		Component: strings.TrimSpace(component),
		Code:      code,
		Canonical: CanonicalUnknown,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// WithMessage attaches a human-readable message to the error.
func WithMessage(message string) Option {
	trimmed := strings.TrimSpace(message)
	return func(e *E) {
		e.Message = trimmed
	}
}

// WithCause sets the underlying cause error.
func WithCause(err error) Option {
	return func(e *E) {
		e.cause = err
	}
}

// WithCanonicalCode sets the canonical error code describing the failure family.
func WithCanonicalCode(code CanonicalCode) Option {
	trimmed := strings.TrimSpace(string(code))
	return func(e *E) {
		if trimmed == "" {
			e.Canonical = CanonicalUnknown
			return
		}
		e.Canonical = CanonicalCode(trimmed)
	}
}

// WithField appends a single key/value pair of diagnostic context.
func WithField(key, value string) Option {
	return func(e *E) {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			return
		}
		if e.Fields == nil {
			e.Fields = make(map[string]string, 1)
		}
		e.Fields[trimmedKey] = strings.TrimSpace(value)
	}
}

func (e *E) Error() string {
	if e == nil {
		return "<nil>"
	}
	var parts []string

	component := strings.TrimSpace(e.Component)
	if component == "" {
		component = "unknown"
	}
	parts = append(parts, "component="+component)

	code := strings.TrimSpace(string(e.Code))
	if code == "" {
		code = "unknown"
	}
	parts = append(parts, "code="+code)

	if cc := strings.TrimSpace(string(e.Canonical)); cc != "" && cc != string(CanonicalUnknown) {
		parts = append(parts, "canonical="+cc)
	}
	if e.Message != "" {
		parts = append(parts, "message="+strconv.Quote(e.Message))
	}
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, k+"="+strconv.Quote(e.Fields[k]))
		}
		parts = append(parts, "fields="+strings.Join(pairs, ","))
	}
	if e.cause != nil {
		parts = append(parts, "cause="+strconv.Quote(e.cause.Error()))
	}

	return strings.Join(parts, " ")
}

func (e *E) Unwrap() error { return e.cause }

// Canonical returns the outermost canonical code found in the error chain.
func Canonical(err error) CanonicalCode {
	var target *E
	for err != nil {
		if !errors.As(err, &target) {
			return CanonicalUnknown
		}
		if target.Canonical != CanonicalUnknown && target.Canonical != "" {
			return target.Canonical
		}
		err = target.cause
	}
	return CanonicalUnknown
}

// IsCanonical reports whether any envelope in the chain carries the canonical code.
func IsCanonical(err error, code CanonicalCode) bool {
	var target *E
	for err != nil {
		if !errors.As(err, &target) {
			return false
		}
		if target.Canonical == code {
			return true
		}
		err = target.cause
	}
	return false
}
