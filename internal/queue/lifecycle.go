package queue

import (
	"time"

	"github.com/spec-kit/queue-service/internal/domain"
)

// Lifecycle actions, used in transition checks and error reporting.
const (
	ActionCall         = "call"
	ActionStartService = "start_service"
	ActionComplete     = "complete"
	ActionCancel       = "cancel"
	ActionNoShow       = "no_show"
	ActionTransfer     = "transfer"
)

// allowedFrom maps each action to the statuses it may be applied in.
var allowedFrom = map[string][]domain.TokenStatus{
	ActionCall:         {domain.TokenStatusWaiting},
	ActionStartService: {domain.TokenStatusCalled},
	ActionComplete:     {domain.TokenStatusInService},
	ActionCancel:       {domain.TokenStatusWaiting, domain.TokenStatusCalled},
	ActionNoShow:       {domain.TokenStatusWaiting, domain.TokenStatusCalled},
	ActionTransfer:     {domain.TokenStatusWaiting, domain.TokenStatusCalled, domain.TokenStatusInService},
}

// CanTransition reports whether the action is valid from the given status.
func CanTransition(action string, from domain.TokenStatus) bool {
	for _, status := range allowedFrom[action] {
		if status == from {
			return true
		}
	}
	return false
}

// checkTransition validates before any field is touched, so failed transitions leave
// the token unchanged.
func checkTransition(action string, t *domain.Token) error {
	if !CanTransition(action, t.Status) {
		return &InvalidTransitionError{Status: t.Status, Action: action}
	}
	return nil
}

// Call transitions a waiting token to CALLED at the given counter.
func Call(t *domain.Token, counterID string, at time.Time) error {
	if err := checkTransition(ActionCall, t); err != nil {
		return err
	}
	t.Status = domain.TokenStatusCalled
	t.CounterID = &counterID
	t.CalledAt = &at
	t.QueuePosition = nil
	return nil
}

// StartService transitions a called token to IN_SERVICE and fixes its wait time.
func StartService(t *domain.Token, at time.Time) error {
	if err := checkTransition(ActionStartService, t); err != nil {
		return err
	}
	t.Status = domain.TokenStatusInService
	t.ServiceStartedAt = &at
	waited := int(at.Sub(t.IssuedAt).Minutes())
	t.WaitTimeMinutes = &waited
	return nil
}

// Complete finishes service, recording notes, rating and the service duration.
func Complete(t *domain.Token, notes string, rating *int, at time.Time) error {
	if err := checkTransition(ActionComplete, t); err != nil {
		return err
	}
	t.Status = domain.TokenStatusCompleted
	t.CompletedAt = &at
	t.ServiceNotes = notes
	t.Rating = rating
	if t.ServiceStartedAt != nil {
		served := int(at.Sub(*t.ServiceStartedAt).Minutes())
		t.ServiceTimeMinutes = &served
	}
	return nil
}

// Cancel aborts a waiting or called token. The caller removes it from the waiting set
// under the same department lock when it is still waiting.
func Cancel(t *domain.Token, reason string, at time.Time) error {
	if err := checkTransition(ActionCancel, t); err != nil {
		return err
	}
	t.Status = domain.TokenStatusCancelled
	t.CompletedAt = &at
	t.ServiceNotes = reason
	t.QueuePosition = nil
	return nil
}

// MarkNoShow records that the customer did not appear within the grace period.
func MarkNoShow(t *domain.Token, at time.Time) error {
	if err := checkTransition(ActionNoShow, t); err != nil {
		return err
	}
	t.Status = domain.TokenStatusNoShow
	t.CompletedAt = &at
	t.QueuePosition = nil
	return nil
}

// Transfer moves a token to another department: it appends a transfer record, clears
// the counter assignment and resets the token to WAITING so the caller can re-enqueue
// it in the destination department.
func Transfer(t *domain.Token, toDepartmentID string, toCounterID *string, reason string, at time.Time) error {
	if err := checkTransition(ActionTransfer, t); err != nil {
		return err
	}
	t.TransferHistory = append(t.TransferHistory, domain.TransferRecord{
		FromDepartmentID: t.DepartmentID,
		ToDepartmentID:   toDepartmentID,
		FromCounterID:    t.CounterID,
		ToCounterID:      toCounterID,
		Reason:           reason,
		TransferredAt:    at,
	})
	t.DepartmentID = toDepartmentID
	t.CounterID = nil
	t.CalledAt = nil
	t.ServiceStartedAt = nil
	t.Status = domain.TokenStatusWaiting
	t.QueuePosition = nil
	return nil
}
