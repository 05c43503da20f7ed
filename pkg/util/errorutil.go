package util

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/queue-service/internal/queue"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewConflict(code, message string) error {
	return NewDomainError(code, message, http.StatusConflict, nil)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// queueErrorMap translates queue core sentinels into transport-facing errors.
var queueErrorMap = []struct {
	target error
	code   string
	status int
}{
	{queue.ErrInvalidTransition, "INVALID_TRANSITION", http.StatusConflict},
	{queue.ErrCapacityExceeded, "CAPACITY_EXCEEDED", http.StatusConflict},
	{queue.ErrCounterBusy, "COUNTER_BUSY", http.StatusConflict},
	{queue.ErrCounterUnavailable, "COUNTER_UNAVAILABLE", http.StatusConflict},
	{queue.ErrNoTokensAvailable, "NO_TOKENS_AVAILABLE", http.StatusNotFound},
	{queue.ErrInvalidPriority, "INVALID_PRIORITY", http.StatusBadRequest},
	{queue.ErrInvalidReorder, "INVALID_REORDER", http.StatusBadRequest},
	{queue.ErrConcurrencyConflict, "CONCURRENCY_CONFLICT", http.StatusConflict},
	{queue.ErrDuplicateActiveToken, "DUPLICATE_ACTIVE_TOKEN", http.StatusConflict},
	{queue.ErrDepartmentClosed, "DEPARTMENT_CLOSED", http.StatusConflict},
	{queue.ErrTokenNotFound, "NOT_FOUND", http.StatusNotFound},
	{queue.ErrCounterNotFound, "NOT_FOUND", http.StatusNotFound},
	{queue.ErrDepartmentNotFound, "NOT_FOUND", http.StatusNotFound},
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	for _, mapping := range queueErrorMap {
		if errors.Is(err, mapping.target) {
			return &DomainError{
				Code:       mapping.code,
				Message:    err.Error(),
				HTTPStatus: mapping.status,
				Err:        err,
			}
		}
	}
	if errors.Is(err, pgx.ErrNoRows) {
		if de, ok := NewNotFound("resource", nil).(*DomainError); ok {
			return de
		}
	}
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}
