package errors

import (
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
)

// Sentinel errors for the billing core. Every error returned by a public
// operation is marked with exactly one of these.
var (
	ErrNotFound        = new(ErrCodeNotFound, "resource not found")
	ErrAlreadyExists   = new(ErrCodeAlreadyExists, "resource already exists")
	ErrVersionConflict = new(ErrCodeVersionConflict, "version conflict")
	ErrValidation      = new(ErrCodeValidation, "validation error")
	ErrTransient       = new(ErrCodeTransient, "transient store error")
	ErrPermanent       = new(ErrCodePermanent, "permanent error")
	ErrPaymentConflict = new(ErrCodePaymentConflict, "payment conflict")
	ErrPartialFailure  = new(ErrCodePartialFailure, "partial failure")
	ErrHTTPClient      = new(ErrCodeHTTPClient, "http client error")
	ErrSystem          = new(ErrCodeSystemError, "system error")

	// maps errors to http status codes
	statusCodeMap = map[error]int{
		ErrNotFound:        http.StatusNotFound,
		ErrAlreadyExists:   http.StatusConflict,
		ErrVersionConflict: http.StatusConflict,
		ErrValidation:      http.StatusBadRequest,
		ErrTransient:       http.StatusServiceUnavailable,
		ErrPermanent:       http.StatusInternalServerError,
		ErrPaymentConflict: http.StatusConflict,
		ErrPartialFailure:  http.StatusInternalServerError,
		ErrHTTPClient:      http.StatusInternalServerError,
		ErrSystem:          http.StatusInternalServerError,
	}
)

const (
	ErrCodeNotFound        = "not_found"
	ErrCodeAlreadyExists   = "already_exists"
	ErrCodeVersionConflict = "version_conflict"
	ErrCodeValidation      = "validation_error"
	ErrCodeTransient       = "transient_error"
	ErrCodePermanent       = "permanent_error"
	ErrCodePaymentConflict = "payment_conflict"
	ErrCodePartialFailure  = "partial_failure"
	ErrCodeHTTPClient      = "http_client_error"
	ErrCodeSystemError     = "system_error"
)

// InternalError represents a domain error
type InternalError struct {
	Code    string // Machine-readable error code
	Message string // Human-readable error message
	Op      string // Logical operation name
	Err     error  // Underlying error
}

func (e *InternalError) Error() string {
	if e.Err == nil {
		return e.DisplayError()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Err.Error())
}

func (e *InternalError) DisplayError() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

// Is implements error matching for wrapped errors
func (e *InternalError) Is(target error) bool {
	if target == nil {
		return false
	}

	t, ok := target.(*InternalError)
	if !ok {
		return errors.Is(e.Err, target)
	}

	return e.Code == t.Code
}

func new(code string, message string) *InternalError {
	return &InternalError{
		Code:    code,
		Message: message,
	}
}

// New creates a bare InternalError with the given code and message.
func New(code string, message string) *InternalError {
	return new(code, message)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if an error is an already exists error
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsVersionConflict checks if an error is an optimistic-concurrency conflict
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

// IsConflict matches both flavors of commit-time conflict
func IsConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict) || errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsTransient checks if an error is retryable at the store layer
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsPermanent checks if an error must never be retried
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}

// IsPaymentConflict checks if the payment distributor exhausted its retries
func IsPaymentConflict(err error) bool {
	return errors.Is(err, ErrPaymentConflict)
}

// IsPartialFailure checks if a scheduler run completed with failed tasks
func IsPartialFailure(err error) bool {
	return errors.Is(err, ErrPartialFailure)
}

func HTTPStatusFromErr(err error) int {
	for e, status := range statusCodeMap {
		if errors.Is(err, e) {
			return status
		}
	}
	return http.StatusInternalServerError
}
