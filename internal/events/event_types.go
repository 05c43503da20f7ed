package events

import (
	"time"

	"github.com/spec-kit/queue-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTokenIssued      EventType = "token_issued"
	EventTokenCalled      EventType = "token_called"
	EventServiceStarted   EventType = "service_started"
	EventTokenCompleted   EventType = "token_completed"
	EventTokenCancelled   EventType = "token_cancelled"
	EventTokenNoShow      EventType = "token_no_show"
	EventTokenTransferred EventType = "token_transferred"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID           string      `json:"id"`
	Type         EventType   `json:"type"`
	TokenNumber  string      `json:"token_number"`
	DepartmentID string      `json:"department_id"`
	Timestamp    time.Time   `json:"timestamp"`
	Payload      interface{} `json:"payload"`
}

// TokenIssuedPayload payload.
type TokenIssuedPayload struct {
	DisplayNumber string `json:"display_number"`
	CustomerID    string `json:"customer_id"`
	Priority      int    `json:"priority"`
	QueuePosition int    `json:"queue_position"`
	EstimatedWait int    `json:"estimated_wait_minutes"`
}

// TokenCalledPayload payload.
type TokenCalledPayload struct {
	DisplayNumber string `json:"display_number"`
	CounterID     string `json:"counter_id"`
}

// ServiceStartedPayload payload.
type ServiceStartedPayload struct {
	CounterID       string `json:"counter_id"`
	StaffID         string `json:"staff_id"`
	WaitTimeMinutes int    `json:"wait_time_minutes"`
}

// TokenCompletedPayload payload.
type TokenCompletedPayload struct {
	CounterID          string `json:"counter_id"`
	WaitTimeMinutes    int    `json:"wait_time_minutes"`
	ServiceTimeMinutes int    `json:"service_time_minutes"`
	Rating             *int   `json:"rating,omitempty"`
}

// TokenCancelledPayload payload.
type TokenCancelledPayload struct {
	Reason     string             `json:"reason"`
	FromStatus domain.TokenStatus `json:"from_status"`
}

// TokenNoShowPayload payload.
type TokenNoShowPayload struct {
	FromStatus domain.TokenStatus `json:"from_status"`
}

// TokenTransferredPayload payload.
type TokenTransferredPayload struct {
	FromDepartmentID string `json:"from_department_id"`
	ToDepartmentID   string `json:"to_department_id"`
	Reason           string `json:"reason"`
	NewQueuePosition int    `json:"new_queue_position"`
}
