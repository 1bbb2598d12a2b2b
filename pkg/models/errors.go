package models

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a failure for callers. Codes map one-to-one onto the
// response codes of the exposed operations.
type ErrorCode string

const (
	// CodeInvalidInput means the submission was malformed or could not be
	// classified with enough confidence.
	CodeInvalidInput ErrorCode = "invalid_input"
	// CodeQuotaExceeded means a grant's quota would be exceeded.
	CodeQuotaExceeded ErrorCode = "quota_exceeded"
	// CodeNoQualifiedWorker means no worker met the minimum selection score.
	CodeNoQualifiedWorker ErrorCode = "no_qualified_worker"
	// CodeNotFound means the referenced workflow or approval does not exist.
	CodeNotFound ErrorCode = "not_found"
	// CodeWrongState means the operation is not valid in the current state.
	CodeWrongState ErrorCode = "wrong_state"
	// CodeApprovalDenied means an approval request was explicitly rejected.
	CodeApprovalDenied ErrorCode = "approval_denied"
	// CodeApprovalExpired means an approval request expired unresolved.
	CodeApprovalExpired ErrorCode = "approval_expired"
	// CodeProviderUnavailable means all fallback providers were exhausted.
	CodeProviderUnavailable ErrorCode = "provider_unavailable"
	// CodeProviderCircuitOpen means a provider was skipped due to an open
	// circuit breaker.
	CodeProviderCircuitOpen ErrorCode = "provider_circuit_open"
	// CodeValidationFailed means the aggregated output failed validation.
	CodeValidationFailed ErrorCode = "validation_failed"
	// CodeCancelled means the workflow was cancelled.
	CodeCancelled ErrorCode = "cancelled"
	// CodeLowConfidence means classification confidence fell below the
	// human-escalation floor.
	CodeLowConfidence ErrorCode = "classification_low_confidence"
	// CodeInternal covers unexpected internal failures.
	CodeInternal ErrorCode = "internal"
)

// AppError is a typed domain error carrying a code for callers.
type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Cause)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// InvalidInput creates an invalid_input error.
func InvalidInput(message string) *AppError {
	return &AppError{Code: CodeInvalidInput, Message: message}
}

// QuotaExceeded creates a quota_exceeded error.
func QuotaExceeded(message string) *AppError {
	return &AppError{Code: CodeQuotaExceeded, Message: message}
}

// NoQualifiedWorker creates a no_qualified_worker error.
func NoQualifiedWorker(message string) *AppError {
	return &AppError{Code: CodeNoQualifiedWorker, Message: message}
}

// NotFound creates a not_found error.
func NotFound(message string) *AppError {
	return &AppError{Code: CodeNotFound, Message: message}
}

// WrongState creates a wrong_state error.
func WrongState(message string) *AppError {
	return &AppError{Code: CodeWrongState, Message: message}
}

// ErrApprovalDenied creates an approval_denied error. Named with an Err
// prefix because ApprovalDenied is the approval state constant.
func ErrApprovalDenied(message string) *AppError {
	return &AppError{Code: CodeApprovalDenied, Message: message}
}

// ErrApprovalExpired creates an approval_expired error. Named with an Err
// prefix because ApprovalExpired is the approval state constant.
func ErrApprovalExpired(message string) *AppError {
	return &AppError{Code: CodeApprovalExpired, Message: message}
}

// ProviderUnavailable creates a provider_unavailable error.
func ProviderUnavailable(message string, cause error) *AppError {
	return &AppError{Code: CodeProviderUnavailable, Message: message, Cause: cause}
}

// ProviderCircuitOpen creates a provider_circuit_open error.
func ProviderCircuitOpen(message string) *AppError {
	return &AppError{Code: CodeProviderCircuitOpen, Message: message}
}

// ValidationFailed creates a validation_failed error.
func ValidationFailed(message string) *AppError {
	return &AppError{Code: CodeValidationFailed, Message: message}
}

// Cancelled creates a cancelled error.
func Cancelled(message string) *AppError {
	return &AppError{Code: CodeCancelled, Message: message}
}

// LowConfidence creates a classification_low_confidence error.
func LowConfidence(message string) *AppError {
	return &AppError{Code: CodeLowConfidence, Message: message}
}

// Internal creates an internal error wrapping its cause.
func Internal(message string, cause error) *AppError {
	return &AppError{Code: CodeInternal, Message: message, Cause: cause}
}

// AsAppError extracts an AppError from anywhere in err's chain.
func AsAppError(err error) (*AppError, bool) {
	var typed *AppError
	if errors.As(err, &typed) {
		return typed, true
	}
	return nil, false
}

// CodeOf returns the error code of err, or CodeInternal for untyped errors.
func CodeOf(err error) ErrorCode {
	if typed, ok := AsAppError(err); ok {
		return typed.Code
	}
	return CodeInternal
}
