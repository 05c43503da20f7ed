package queue

import (
	"errors"
	"testing"
	"time"

	"github.com/spec-kit/queue-service/internal/domain"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		action string
		from   domain.TokenStatus
		valid  bool
	}{
		{ActionCall, domain.TokenStatusWaiting, true},
		{ActionCall, domain.TokenStatusCalled, false},
		{ActionCall, domain.TokenStatusInService, false},
		{ActionStartService, domain.TokenStatusCalled, true},
		{ActionStartService, domain.TokenStatusWaiting, false},
		{ActionComplete, domain.TokenStatusInService, true},
		{ActionComplete, domain.TokenStatusCalled, false},
		{ActionComplete, domain.TokenStatusWaiting, false},
		{ActionCancel, domain.TokenStatusWaiting, true},
		{ActionCancel, domain.TokenStatusCalled, true},
		{ActionCancel, domain.TokenStatusInService, false},
		{ActionCancel, domain.TokenStatusCompleted, false},
		{ActionNoShow, domain.TokenStatusWaiting, true},
		{ActionNoShow, domain.TokenStatusCalled, true},
		{ActionNoShow, domain.TokenStatusInService, false},
		{ActionTransfer, domain.TokenStatusWaiting, true},
		{ActionTransfer, domain.TokenStatusCalled, true},
		{ActionTransfer, domain.TokenStatusInService, true},
		{ActionTransfer, domain.TokenStatusCompleted, false},
		{ActionTransfer, domain.TokenStatusCancelled, false},
		{"unknown", domain.TokenStatusWaiting, false},
	}
	for _, tt := range cases {
		if got := CanTransition(tt.action, tt.from); got != tt.valid {
			t.Fatalf("CanTransition(%q, %q)=%v, want %v", tt.action, tt.from, got, tt.valid)
		}
	}
}

func TestCallSetsFields(t *testing.T) {
	tok := newTestToken("A", "d1", 5, 0)
	at := testBase.Add(10 * time.Minute)
	if err := Call(tok, "c1", at); err != nil {
		t.Fatalf("call: %v", err)
	}
	if tok.Status != domain.TokenStatusCalled {
		t.Fatalf("status = %s", tok.Status)
	}
	if tok.CounterID == nil || *tok.CounterID != "c1" {
		t.Fatalf("counter = %v", tok.CounterID)
	}
	if tok.CalledAt == nil || !tok.CalledAt.Equal(at) {
		t.Fatalf("calledAt = %v", tok.CalledAt)
	}
	if tok.QueuePosition != nil {
		t.Fatalf("called token kept queue position")
	}
	if tok.CalledAt.Before(tok.IssuedAt) {
		t.Fatalf("calledAt before issuedAt")
	}
}

func TestStartServiceComputesWaitTime(t *testing.T) {
	tok := newTestToken("A", "d1", 5, 0)
	if err := Call(tok, "c1", testBase.Add(5*time.Minute)); err != nil {
		t.Fatal(err)
	}
	if err := StartService(tok, testBase.Add(25*time.Minute)); err != nil {
		t.Fatalf("start: %v", err)
	}
	if tok.Status != domain.TokenStatusInService {
		t.Fatalf("status = %s", tok.Status)
	}
	if tok.WaitTimeMinutes == nil || *tok.WaitTimeMinutes != 25 {
		t.Fatalf("waitTimeMinutes = %v, want 25", tok.WaitTimeMinutes)
	}
}

func TestCompleteComputesServiceTime(t *testing.T) {
	tok := newTestToken("A", "d1", 5, 0)
	rating := 4
	if err := Call(tok, "c1", testBase.Add(5*time.Minute)); err != nil {
		t.Fatal(err)
	}
	if err := StartService(tok, testBase.Add(10*time.Minute)); err != nil {
		t.Fatal(err)
	}
	if err := Complete(tok, "done", &rating, testBase.Add(22*time.Minute)); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if tok.Status != domain.TokenStatusCompleted {
		t.Fatalf("status = %s", tok.Status)
	}
	if tok.ServiceTimeMinutes == nil || *tok.ServiceTimeMinutes != 12 {
		t.Fatalf("serviceTimeMinutes = %v, want 12", tok.ServiceTimeMinutes)
	}
	if tok.CompletedAt.Before(*tok.ServiceStartedAt) {
		t.Fatalf("completedAt before serviceStartedAt")
	}
}

func TestInvalidTransitionLeavesTokenUnchanged(t *testing.T) {
	tok := newTestToken("A", "d1", 5, 0)

	err := Complete(tok, "nope", nil, testBase)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want invalid transition", err)
	}
	var invalid *InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("err type = %T", err)
	}
	if invalid.Status != domain.TokenStatusWaiting || invalid.Action != ActionComplete {
		t.Fatalf("error detail = %+v", invalid)
	}
	if tok.Status != domain.TokenStatusWaiting {
		t.Fatalf("failed transition changed status to %s", tok.Status)
	}
	if tok.CompletedAt != nil || tok.ServiceTimeMinutes != nil || tok.ServiceNotes != "" {
		t.Fatalf("failed transition wrote fields: %+v", tok)
	}
}

func TestCancelFromCalled(t *testing.T) {
	tok := newTestToken("A", "d1", 5, 0)
	if err := Call(tok, "c1", testBase); err != nil {
		t.Fatal(err)
	}
	if err := Cancel(tok, "customer left", testBase.Add(time.Minute)); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if tok.Status != domain.TokenStatusCancelled {
		t.Fatalf("status = %s", tok.Status)
	}
}

func TestMarkNoShow(t *testing.T) {
	tok := newTestToken("A", "d1", 5, 0)
	if err := Call(tok, "c1", testBase); err != nil {
		t.Fatal(err)
	}
	if err := MarkNoShow(tok, testBase.Add(10*time.Minute)); err != nil {
		t.Fatalf("no show: %v", err)
	}
	if tok.Status != domain.TokenStatusNoShow {
		t.Fatalf("status = %s", tok.Status)
	}
	if err := MarkNoShow(tok, testBase.Add(11*time.Minute)); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("second no-show err = %v", err)
	}
}

func TestTransferResetsToWaiting(t *testing.T) {
	tok := newTestToken("A", "d1", 5, 0)
	if err := Call(tok, "c1", testBase.Add(time.Minute)); err != nil {
		t.Fatal(err)
	}
	counter := "c2"
	if err := Transfer(tok, "d2", &counter, "wrong desk", testBase.Add(2*time.Minute)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if tok.Status != domain.TokenStatusWaiting {
		t.Fatalf("status = %s, want WAITING", tok.Status)
	}
	if tok.DepartmentID != "d2" {
		t.Fatalf("department = %s", tok.DepartmentID)
	}
	if tok.CounterID != nil || tok.CalledAt != nil {
		t.Fatalf("counter assignment not cleared")
	}
	if len(tok.TransferHistory) != 1 {
		t.Fatalf("transfer history = %v", tok.TransferHistory)
	}
	rec := tok.TransferHistory[0]
	if rec.FromDepartmentID != "d1" || rec.ToDepartmentID != "d2" || rec.Reason != "wrong desk" {
		t.Fatalf("transfer record = %+v", rec)
	}
	if rec.FromCounterID == nil || *rec.FromCounterID != "c1" {
		t.Fatalf("transfer record from counter = %v", rec.FromCounterID)
	}
}

func TestTransferFromTerminalRejected(t *testing.T) {
	tok := newTestToken("A", "d1", 5, 0)
	if err := Cancel(tok, "x", testBase); err != nil {
		t.Fatal(err)
	}
	if err := Transfer(tok, "d2", nil, "late", testBase); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v", err)
	}
	if len(tok.TransferHistory) != 0 {
		t.Fatalf("failed transfer appended history")
	}
}
