package queue

import (
	"errors"
	"fmt"

	"github.com/spec-kit/queue-service/internal/domain"
)

var (
	// ErrCapacityExceeded is returned when a department's daily token limit is reached.
	ErrCapacityExceeded = errors.New("daily token capacity exceeded")
	// ErrCounterBusy is returned when a counter requests a token while still serving one.
	ErrCounterBusy = errors.New("counter is already serving a token")
	// ErrCounterUnavailable is returned when an inactive, closed or on-break counter
	// requests a token.
	ErrCounterUnavailable = errors.New("counter is not available for calls")
	// ErrNoTokensAvailable is returned when no eligible waiting token exists.
	ErrNoTokensAvailable = errors.New("no tokens available")
	// ErrInvalidPriority is returned when a priority outside [1,10] is requested.
	ErrInvalidPriority = errors.New("priority must be between 1 and 10")
	// ErrInvalidReorder is returned when a reorder list does not match the waiting set.
	ErrInvalidReorder = errors.New("reorder list does not match current waiting set")
	// ErrConcurrencyConflict is returned after losing a reservation race on every retry.
	ErrConcurrencyConflict = errors.New("lost reservation race after retries")
	// ErrDuplicateActiveToken is returned when the customer already holds an active token.
	ErrDuplicateActiveToken = errors.New("customer already has an active token")
	// ErrDepartmentClosed is returned when issuance falls outside operating hours.
	ErrDepartmentClosed = errors.New("department is outside operating hours")
	// ErrTokenNotFound is returned when a token number resolves to nothing.
	ErrTokenNotFound = errors.New("token not found")
	// ErrCounterNotFound is returned when a counter id resolves to nothing.
	ErrCounterNotFound = errors.New("counter not found")
	// ErrDepartmentNotFound is returned when a department id resolves to nothing.
	ErrDepartmentNotFound = errors.New("department not found")
)

// InvalidTransitionError reports a lifecycle action applied in the wrong status.
type InvalidTransitionError struct {
	Status domain.TokenStatus
	Action string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s token in status %s", e.Action, e.Status)
}

// errInvalidTransition is the errors.Is target for all InvalidTransitionError values.
var errInvalidTransition = errors.New("invalid status transition")

// Is makes every InvalidTransitionError match ErrInvalidTransition.
func (e *InvalidTransitionError) Is(target error) bool {
	return target == errInvalidTransition
}

// ErrInvalidTransition matches any InvalidTransitionError via errors.Is.
var ErrInvalidTransition = errInvalidTransition
