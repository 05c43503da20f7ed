package dto

import (
	"time"

	"github.com/spec-kit/queue-service/internal/domain"
)

// IssueTokenRequest payload.
type IssueTokenRequest struct {
	CustomerID   string `json:"customer_id"`
	DepartmentID string `json:"department_id"`
	Priority     int    `json:"priority"`
}

// StartServiceRequest payload.
type StartServiceRequest struct {
	StaffID string `json:"staff_id"`
}

// CompleteServiceRequest payload.
type CompleteServiceRequest struct {
	Notes  string `json:"notes"`
	Rating *int   `json:"rating,omitempty"`
}

// CancelTokenRequest payload.
type CancelTokenRequest struct {
	Reason string `json:"reason"`
}

// TransferTokenRequest payload.
type TransferTokenRequest struct {
	NewDepartmentID string  `json:"new_department_id"`
	NewCounterID    *string `json:"new_counter_id,omitempty"`
	Reason          string  `json:"reason"`
}

// ReorderQueueRequest carries the full explicit ordering of a waiting queue.
type ReorderQueueRequest struct {
	Order []string `json:"order"`
}

// TokenResponse is the full token view.
type TokenResponse struct {
	ID                 string                  `json:"id"`
	TokenNumber        string                  `json:"token_number"`
	DisplayNumber      string                  `json:"display_number"`
	CustomerID         string                  `json:"customer_id"`
	DepartmentID       string                  `json:"department_id"`
	CounterID          *string                 `json:"counter_id,omitempty"`
	Priority           int                     `json:"priority"`
	QueuePosition      *int                    `json:"queue_position,omitempty"`
	Status             domain.TokenStatus      `json:"status"`
	BusinessDate       string                  `json:"business_date"`
	IssuedAt           time.Time               `json:"issued_at"`
	CalledAt           *time.Time              `json:"called_at,omitempty"`
	ServiceStartedAt   *time.Time              `json:"service_started_at,omitempty"`
	CompletedAt        *time.Time              `json:"completed_at,omitempty"`
	WaitTimeMinutes    *int                    `json:"wait_time_minutes,omitempty"`
	ServiceTimeMinutes *int                    `json:"service_time_minutes,omitempty"`
	ServiceNotes       string                  `json:"service_notes,omitempty"`
	Rating             *int                    `json:"rating,omitempty"`
	TransferHistory    []domain.TransferRecord `json:"transfer_history,omitempty"`
}

// TokenHistoryResponse is an audit trail entry.
type TokenHistoryResponse struct {
	ID          string                 `json:"id"`
	TokenNumber string                 `json:"token_number"`
	ChangeType  domain.TokenChangeType `json:"change_type"`
	OldValue    map[string]any         `json:"old_value,omitempty"`
	NewValue    map[string]any         `json:"new_value,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

// EstimateResponse is the advisory wait estimate for a prospective token.
type EstimateResponse struct {
	DepartmentID         string `json:"department_id"`
	Priority             int    `json:"priority"`
	EstimatedWaitMinutes int    `json:"estimated_wait_minutes"`
}

// QueueEntry is a waiting token as shown on queue listings.
type QueueEntry struct {
	TokenNumber   string    `json:"token_number"`
	DisplayNumber string    `json:"display_number"`
	Priority      int       `json:"priority"`
	QueuePosition int       `json:"queue_position"`
	IssuedAt      time.Time `json:"issued_at"`
}
