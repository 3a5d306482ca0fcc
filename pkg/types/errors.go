// ABOUTME: Closed error-kind taxonomy for the workflow engine
// ABOUTME: EngineError carries a classified kind, retryability, and diagnostic fields

package types

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind is the closed taxonomy of §7. It is a kind, not a Go type: every
// failure surfaced by the engine carries exactly one of these.
type ErrorKind string

const (
	ErrTimeout             ErrorKind = "Timeout"
	ErrHTTPError           ErrorKind = "HttpError"
	ErrNetworkError        ErrorKind = "NetworkError"
	ErrAuthenticationError ErrorKind = "AuthenticationError"
	ErrRateLimitError      ErrorKind = "RateLimitError"
	ErrValidationError     ErrorKind = "ValidationError"
	ErrConfigurationError  ErrorKind = "ConfigurationError"
	ErrCircuitOpen         ErrorKind = "CircuitOpen"
	ErrTemplateResolution  ErrorKind = "TemplateResolution"
	ErrCircularDependency  ErrorKind = "CircularDependency"
	ErrWorkflowCycle       ErrorKind = "WorkflowCycle"
	ErrDepthExceeded       ErrorKind = "DepthExceeded"
	ErrCancelled           ErrorKind = "Cancelled"
	ErrUnknownError        ErrorKind = "UnknownError"
)

// retryable is the per-kind retryability table from §7. HttpError is
// retryable only for specific status codes, so it is handled by Retryable()'s
// status-aware branch rather than this table alone; RateLimitError is always
// retryable.
var retryable = map[ErrorKind]bool{
	ErrTimeout:             true,
	ErrHTTPError:           true,
	ErrNetworkError:        true,
	ErrAuthenticationError: false,
	ErrRateLimitError:      true,
	ErrValidationError:     false,
	ErrConfigurationError:  false,
	ErrCircuitOpen:         false,
	ErrTemplateResolution:  false,
	ErrCircularDependency:  false,
	ErrWorkflowCycle:       false,
	ErrDepthExceeded:       false,
	ErrCancelled:           false,
	ErrUnknownError:        false,
}

// EngineError is the concrete error type behind every ErrorInfo produced by
// the engine. Grounded in the teacher's pkg/types/errors.go constructor
// pattern (WorkflowError/TaskError/RetryableError), generalized to the
// closed ErrorKind taxonomy.
type EngineError struct {
	Kind        ErrorKind
	Message     string
	Suggestion  string
	HTTPStatus  int
	ServiceHost string
	OccurredAt  time.Time
	Cause       error
}

func (e *EngineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *EngineError) Unwrap() error { return e.Cause }

// Retryable reports whether this error should trigger the retry wrapper (§4.5, §7).
func (e *EngineError) Retryable() bool {
	switch e.Kind {
	case ErrHTTPError:
		return e.HTTPStatus == 408 || e.HTTPStatus == 429 || e.HTTPStatus >= 500
	case ErrRateLimitError:
		return true
	default:
		return retryable[e.Kind]
	}
}

// ToErrorInfo converts an EngineError to the wire-shaped ErrorInfo (§3).
func (e *EngineError) ToErrorInfo(retryAttempts int, since time.Time) ErrorInfo {
	return ErrorInfo{
		Kind:                 e.Kind,
		Message:              e.Message,
		Suggestion:           e.Suggestion,
		RetryAttempts:        retryAttempts,
		HTTPStatus:           e.HTTPStatus,
		ServiceHost:          e.ServiceHost,
		OccurredAt:           e.OccurredAt,
		DurationUntilErrorMs: time.Since(since).Milliseconds(),
	}
}

func newErr(kind ErrorKind, msg string, cause error) *EngineError {
	return &EngineError{Kind: kind, Message: msg, Cause: cause, OccurredAt: time.Now()}
}

func NewTimeoutError(msg string) *EngineError {
	return newErr(ErrTimeout, msg, nil)
}

func NewHTTPError(status int, msg string, host string) *EngineError {
	e := newErr(ErrHTTPError, msg, nil)
	e.HTTPStatus = status
	e.ServiceHost = host
	return e
}

func NewNetworkError(msg string, cause error) *EngineError {
	return newErr(ErrNetworkError, msg, cause)
}

func NewAuthenticationError(status int, msg string) *EngineError {
	e := newErr(ErrAuthenticationError, msg, nil)
	e.HTTPStatus = status
	return e
}

func NewRateLimitError(msg string, host string) *EngineError {
	e := newErr(ErrRateLimitError, msg, nil)
	e.HTTPStatus = 429
	e.ServiceHost = host
	return e
}

func NewValidationError(msg string) *EngineError {
	return newErr(ErrValidationError, msg, nil)
}

func NewConfigurationError(msg string) *EngineError {
	return newErr(ErrConfigurationError, msg, nil)
}

func NewCircuitOpenError(taskRef string) *EngineError {
	e := newErr(ErrCircuitOpen, fmt.Sprintf("circuit open for task spec %q", taskRef), nil)
	e.Suggestion = "configure a fallback, or wait for the break duration to elapse"
	return e
}

func NewTemplateResolutionError(msg string) *EngineError {
	return newErr(ErrTemplateResolution, msg, nil)
}

func NewCircularDependencyError(cycle []string) *EngineError {
	return newErr(ErrCircularDependency, fmt.Sprintf("circular dependency: %v", cycle), nil)
}

func NewWorkflowCycleError(path []string) *EngineError {
	return newErr(ErrWorkflowCycle, fmt.Sprintf("sub-workflow cycle: %v", path), nil)
}

func NewDepthExceededError(maxDepth int) *EngineError {
	return newErr(ErrDepthExceeded, fmt.Sprintf("sub-workflow call stack exceeds max depth %d", maxDepth), nil)
}

func NewCancelledError(msg string) *EngineError {
	return newErr(ErrCancelled, msg, nil)
}

func NewUnknownError(cause error) *EngineError {
	return newErr(ErrUnknownError, "unexpected error", cause)
}

// AsEngineError unwraps err into an *EngineError, wrapping it as UnknownError
// if it isn't already one. Uses errors.As so an EngineError wrapped by an
// intermediate type (e.g. the retry wrapper's retry-count carrier) still
// classifies correctly. Mirrors the teacher's package-level IsRetryable helper.
func AsEngineError(err error) *EngineError {
	if err == nil {
		return nil
	}
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee
	}
	return NewUnknownError(err)
}
