package inquiry

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by a status provider when no flight matches.
	ErrNotFound = errors.New("not found")

	// ErrNoData is returned by an analytics provider when the route has no rows.
	ErrNoData = errors.New("no data")
)

// FailureReason describes why the LLM classifier could not produce a result.
type FailureReason string

const (
	ReasonUnreachable     FailureReason = "unreachable"
	ReasonTimeout         FailureReason = "timeout"
	ReasonSchemaViolation FailureReason = "schema_violation"
	ReasonEmptyOutput     FailureReason = "empty_output"
	ReasonRateLimited     FailureReason = "rate_limited"
)

// ClassifierFailure means the LLM path is broken or unreachable, as opposed to
// the utterance being genuinely ambiguous. Callers fall back to rules.
type ClassifierFailure struct {
	Reason FailureReason
	Detail string
	Cause  error
}

func (e *ClassifierFailure) Error() string {
	msg := fmt.Sprintf("classifier failure (%s)", e.Reason)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ClassifierFailure) Unwrap() error {
	return e.Cause
}

// MissingEntityError means follow-up resolution could not fill a required field.
type MissingEntityError struct {
	Field string
}

func (e *MissingEntityError) Error() string {
	return fmt.Sprintf("missing entity: %s", e.Field)
}

// InvalidInputError means a parameter is malformed and must not reach a collaborator.
type InvalidInputError struct {
	Field string
	Value string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %q", e.Field, e.Value)
}

// FailureKind classifies a collaborator failure for reply wording and metrics.
type FailureKind string

const (
	FailureUnreachable FailureKind = "unreachable"
	FailureTimeout     FailureKind = "timeout"
	FailureNotFound    FailureKind = "not_found"
	FailureAmbiguous   FailureKind = "ambiguous"
	FailureNoData      FailureKind = "no_data"
	FailureUpstream    FailureKind = "upstream"
)

// CollaboratorFailure wraps an error from a flight-status or flight-analytics provider.
type CollaboratorFailure struct {
	Collaborator string
	Kind         FailureKind
	Cause        error
}

func (e *CollaboratorFailure) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s %s: %v", e.Collaborator, e.Kind, e.Cause)
	}
	return fmt.Sprintf("%s %s", e.Collaborator, e.Kind)
}

func (e *CollaboratorFailure) Unwrap() error {
	return e.Cause
}
