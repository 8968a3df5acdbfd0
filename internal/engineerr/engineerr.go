// Package engineerr defines the closed set of stable error kinds the
// eligibility engine surfaces: a small fixed vocabulary of identifiers
// instead of ad hoc error strings, so callers can switch on them.
package engineerr

import "fmt"

// Kind is one of the stable error identifiers.
type Kind string

const (
	KindSchemaInvalid       Kind = "schema_invalid"
	KindLLMUnavailable      Kind = "llm_unavailable"
	KindLLMOutputMalformed  Kind = "llm_output_malformed"
	KindDepthExceeded       Kind = "depth_exceeded"
	KindQueryFailed         Kind = "query_failed"
	KindEvaluatorError      Kind = "evaluator_error"
	KindUnknownCategory     Kind = "unknown_category"
	KindUnknownOperator     Kind = "unknown_operator"
)

// QueryFailureKind is the `<kind>` suffix of a query_failed reason.
type QueryFailureKind string

const (
	QueryFailureNetwork QueryFailureKind = "network"
	QueryFailureTimeout QueryFailureKind = "timeout"
	QueryFailureHTTP4xx QueryFailureKind = "http_4xx"
	QueryFailureHTTP5xx QueryFailureKind = "http_5xx"
)

// EngineError is the typed error the engine raises at compile time and
// records (as a leaf/group reason) at evaluate time.
type EngineError struct {
	Kind   Kind
	Detail string
	Err    error
}

func New(kind Kind, detail string) *EngineError {
	return &EngineError{Kind: kind, Detail: detail}
}

func Wrap(kind Kind, detail string, err error) *EngineError {
	return &EngineError{Kind: kind, Detail: detail, Err: err}
}

func (e *EngineError) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s:%s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s:%s", e.Kind, e.Detail)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// Reason renders the error as the short string reports carry in their
// `reason` field, e.g. "query_failed:timeout" or "evaluator_error:condition".
func (e *EngineError) Reason() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s:%s", e.Kind, e.Detail)
}

// QueryFailed builds a query_failed reason string for leaf evaluators.
func QueryFailed(kind QueryFailureKind) string {
	return fmt.Sprintf("%s:%s", KindQueryFailed, kind)
}

// EvaluatorError builds an evaluator_error reason string for leaf evaluators.
func EvaluatorError(category string) string {
	return fmt.Sprintf("%s:%s", KindEvaluatorError, category)
}
