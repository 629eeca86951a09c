package errx

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies failures of external collaborators and handler stages.
type Kind string

const (
	KindSyntax                 Kind = "syntax"
	KindExecution              Kind = "execution"
	KindTimeout                Kind = "timeout"
	KindUnavailable            Kind = "unavailable"
	KindClassificationFallback Kind = "classification_fallback"
	KindUnknownIntent          Kind = "unknown_intent"
)

// ErrEmptyCompletion is returned when a completion service answers with no text.
var ErrEmptyCompletion = errors.New("empty completion")

// ServiceError is a failed call to an external service (completion, search).
type ServiceError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Kind, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Service wraps err from operation op, mapping deadline expiry to KindTimeout
// and everything else to KindUnavailable. Already classified errors pass through.
func Service(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *ServiceError
	if errors.As(err, &se) {
		return err
	}
	kind := KindUnavailable
	if errors.Is(err, context.DeadlineExceeded) {
		kind = KindTimeout
	}
	return &ServiceError{Kind: kind, Op: op, Err: err}
}

// ExecutionError is a failed structured-data query.
type ExecutionError struct {
	Kind  Kind
	Query string
	Err   error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s: %v", QueryErrorMessage, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Execution wraps a query failure, classifying syntax errors by message text.
func Execution(query string, err error) error {
	if err == nil {
		return nil
	}
	kind := KindExecution
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case IsSyntaxMessage(err.Error()):
		kind = KindSyntax
	}
	return &ExecutionError{Kind: kind, Query: query, Err: err}
}

// IsSyntaxMessage reports whether an error text belongs to the syntax-error class.
func IsSyntaxMessage(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "syntax error") || strings.Contains(msg, "incomplete input")
}

// KindOf returns the kind carried by the first classified error in the chain.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindExecution
}
