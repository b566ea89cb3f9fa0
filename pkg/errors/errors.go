package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard error types
var (
	ErrNotFound               = errors.New("resource not found")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrForbidden              = errors.New("forbidden")
	ErrBadRequest             = errors.New("bad request")
	ErrConflict               = errors.New("resource conflict")
	ErrInternal               = errors.New("internal server error")
	ErrValidation             = errors.New("validation error")
	ErrInvalidFormat          = errors.New("invalid identifier format")
	ErrDuplicateUnit          = errors.New("duplicate serialized unit")
	ErrInsufficientInventory  = errors.New("insufficient inventory")
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrConcurrentModification = errors.New("concurrent modification")
)

// AppError represents an application error with context
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	Code       string            `json:"code"`
	StatusCode int               `json:"status_code"`
	Details    map[string]string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError
func New(code string, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, code string, message string, statusCode int) *AppError {
	return &AppError{
		Err:        err,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// WithDetails adds details to an AppError
func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

// Common error constructors

func NotFound(resource string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
	}
}

func Unauthorized(message string) *AppError {
	return &AppError{
		Err:        ErrUnauthorized,
		Code:       "UNAUTHORIZED",
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

func Forbidden(message string) *AppError {
	return &AppError{
		Err:        ErrForbidden,
		Code:       "FORBIDDEN",
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

func BadRequest(message string) *AppError {
	return &AppError{
		Err:        ErrBadRequest,
		Code:       "BAD_REQUEST",
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Err:        ErrConflict,
		Code:       "CONFLICT",
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func Internal(message string) *AppError {
	return &AppError{
		Err:        ErrInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

func Validation(details map[string]string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Code:       "VALIDATION_ERROR",
		Message:    "validation failed",
		StatusCode: http.StatusBadRequest,
		Details:    details,
	}
}

// Domain error constructors

// InvalidFormat reports a malformed GTIN/NDC or other identifier input.
func InvalidFormat(message string) *AppError {
	return &AppError{
		Err:        ErrInvalidFormat,
		Code:       "INVALID_FORMAT",
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

// DuplicateUnit reports receipt of an already-known (gtin, serial) unit.
func DuplicateUnit(gtin, serial string) *AppError {
	return &AppError{
		Err:        ErrDuplicateUnit,
		Code:       "DUPLICATE_UNIT",
		Message:    fmt.Sprintf("unit %s/%s already received", gtin, serial),
		StatusCode: http.StatusConflict,
		Details:    map[string]string{"gtin": gtin, "serial_number": serial},
	}
}

// InsufficientInventory reports allocation demand exceeding availability.
func InsufficientInventory(gtin string, requested, available int) *AppError {
	return &AppError{
		Err:        ErrInsufficientInventory,
		Code:       "INSUFFICIENT_INVENTORY",
		Message:    fmt.Sprintf("insufficient inventory for GTIN %s: requested %d, available %d", gtin, requested, available),
		StatusCode: http.StatusConflict,
		Details: map[string]string{
			"gtin":      gtin,
			"requested": fmt.Sprintf("%d", requested),
			"available": fmt.Sprintf("%d", available),
		},
	}
}

// InvalidTransition reports a status change that violates the inventory state machine.
func InvalidTransition(inventoryID, from, to string) *AppError {
	return &AppError{
		Err:        ErrInvalidTransition,
		Code:       "INVALID_TRANSITION",
		Message:    fmt.Sprintf("inventory %s cannot transition from %s to %s", inventoryID, from, to),
		StatusCode: http.StatusConflict,
		Details: map[string]string{
			"inventory_id": inventoryID,
			"from_status":  from,
			"to_status":    to,
		},
	}
}

// ConcurrentModification reports an optimistic-lock re-check failure: the row's
// current status no longer matches the transition's declared fromStatus.
func ConcurrentModification(inventoryID, expected string) *AppError {
	return &AppError{
		Err:        ErrConcurrentModification,
		Code:       "CONCURRENT_MODIFICATION",
		Message:    fmt.Sprintf("inventory %s was modified concurrently (expected status %s)", inventoryID, expected),
		StatusCode: http.StatusConflict,
		Details: map[string]string{
			"inventory_id":    inventoryID,
			"expected_status": expected,
		},
	}
}

// Is checks if the error matches a target error
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As attempts to convert an error to a specific type
func As(err error, target any) bool {
	return errors.As(err, target)
}
