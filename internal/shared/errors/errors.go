package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Common error types
var (
	ErrNotFound              = errors.New("resource not found")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrForbidden             = errors.New("forbidden")
	ErrBadRequest            = errors.New("bad request")
	ErrConflict              = errors.New("conflict")
	ErrInternal              = errors.New("internal error")
	ErrValidation            = errors.New("validation error")
	ErrOutOfRange            = errors.New("reading out of physiological range")
	ErrDependencyUnavailable = errors.New("dependency unavailable")
	ErrEscalationStep        = errors.New("escalation step failed")
)

// AppError represents an application error with context
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	Code       string            `json:"code"`
	HTTPStatus int               `json:"-"`
	Details    map[string]string `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound creates a not found error
func NotFound(resource string, id string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		Code:       "NOT_FOUND",
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]string{"resource": resource, "id": id},
	}
}

// Unauthorized creates an unauthorized error
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:        ErrUnauthorized,
		Message:    message,
		Code:       "UNAUTHORIZED",
		HTTPStatus: http.StatusUnauthorized,
	}
}

// Forbidden creates a forbidden error
func Forbidden(message string) *AppError {
	return &AppError{
		Err:        ErrForbidden,
		Message:    message,
		Code:       "FORBIDDEN",
		HTTPStatus: http.StatusForbidden,
	}
}

// BadRequest creates a bad request error
func BadRequest(message string) *AppError {
	return &AppError{
		Err:        ErrBadRequest,
		Message:    message,
		Code:       "BAD_REQUEST",
		HTTPStatus: http.StatusBadRequest,
	}
}

// Validation creates a validation error with field details
func Validation(message string, details map[string]string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Message:    message,
		Code:       "VALIDATION_ERROR",
		HTTPStatus: http.StatusBadRequest,
		Details:    details,
	}
}

// OutOfRange creates an error for a physiologically implausible reading.
// These are surfaced to the caller rather than clamped; silently accepting
// them could mask a sensor fault.
func OutOfRange(field string, value string) *AppError {
	return &AppError{
		Err:        ErrOutOfRange,
		Message:    fmt.Sprintf("%s is outside the plausible physiological range", field),
		Code:       "OUT_OF_RANGE",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]string{"field": field, "value": value},
	}
}

// DependencyUnavailable creates an error for an unreachable collaborator
// (remote analysis service, persistence, geolocation)
func DependencyUnavailable(dependency string, err error) *AppError {
	return &AppError{
		Err:        ErrDependencyUnavailable,
		Message:    fmt.Sprintf("%s is unavailable", dependency),
		Code:       "DEPENDENCY_UNAVAILABLE",
		HTTPStatus: http.StatusServiceUnavailable,
		Details:    map[string]string{"dependency": dependency, "cause": fmt.Sprint(err)},
	}
}

// EscalationStep creates an error for a single failed emergency step.
// The remaining steps are unaffected; the caller offers a retry per step.
func EscalationStep(step string, err error) *AppError {
	return &AppError{
		Err:        ErrEscalationStep,
		Message:    fmt.Sprintf("emergency step %q failed", step),
		Code:       "ESCALATION_STEP_FAILED",
		HTTPStatus: http.StatusBadGateway,
		Details:    map[string]string{"step": step, "cause": fmt.Sprint(err)},
	}
}

// Conflict creates a conflict error
func Conflict(message string) *AppError {
	return &AppError{
		Err:        ErrConflict,
		Message:    message,
		Code:       "CONFLICT",
		HTTPStatus: http.StatusConflict,
	}
}

// Internal creates an internal error
func Internal(err error) *AppError {
	return &AppError{
		Err:        err,
		Message:    "internal server error",
		Code:       "INTERNAL_ERROR",
		HTTPStatus: http.StatusInternalServerError,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) *AppError {
	if appErr, ok := err.(*AppError); ok {
		appErr.Message = fmt.Sprintf("%s: %s", message, appErr.Message)
		return appErr
	}
	return &AppError{
		Err:        err,
		Message:    message,
		Code:       "INTERNAL_ERROR",
		HTTPStatus: http.StatusInternalServerError,
	}
}
