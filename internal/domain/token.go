package domain

import "time"

// TokenStatus enumerates lifecycle states for queue tokens.
type TokenStatus string

const (
	TokenStatusWaiting     TokenStatus = "WAITING"
	TokenStatusCalled      TokenStatus = "CALLED"
	TokenStatusInService   TokenStatus = "IN_SERVICE"
	TokenStatusCompleted   TokenStatus = "COMPLETED"
	TokenStatusCancelled   TokenStatus = "CANCELLED"
	TokenStatusNoShow      TokenStatus = "NO_SHOW"
	// TokenStatusTransferred stamps transfer hops in the audit trail. The live token
	// itself goes back to WAITING in the destination queue.
	TokenStatusTransferred TokenStatus = "TRANSFERRED"
)

// IsTerminal reports whether a token in this status can no longer change.
func (s TokenStatus) IsTerminal() bool {
	switch s {
	case TokenStatusCompleted, TokenStatusCancelled, TokenStatusNoShow:
		return true
	}
	return false
}

// IsActive reports whether the token counts against the one-active-token-per-customer
// rule for its business date.
func (s TokenStatus) IsActive() bool {
	switch s {
	case TokenStatusWaiting, TokenStatusCalled, TokenStatusInService:
		return true
	}
	return false
}

const (
	// MinPriority and MaxPriority bound the accepted priority range at issuance.
	MinPriority = 1
	MaxPriority = 10
)

// TransferRecord is one hop in a token's transfer history.
type TransferRecord struct {
	FromDepartmentID string     `json:"from_department_id"`
	ToDepartmentID   string     `json:"to_department_id"`
	FromCounterID    *string    `json:"from_counter_id,omitempty"`
	ToCounterID      *string    `json:"to_counter_id,omitempty"`
	Reason           string     `json:"reason"`
	TransferredAt    time.Time  `json:"transferred_at"`
}

// Token is the aggregate for one customer's place in line.
type Token struct {
	ID                 string
	TokenNumber        string // canonical, unique system-wide: DEPT-YYYYMMDD-NNN
	DisplayNumber      string // short board form: DEPTNNN, unique per department per day
	CustomerID         string
	DepartmentID       string
	CounterID          *string
	Priority           int
	QueuePosition      *int // defined iff Status == WAITING
	Status             TokenStatus
	BusinessDate       string // YYYY-MM-DD
	IssuedAt           time.Time
	CalledAt           *time.Time
	ServiceStartedAt   *time.Time
	CompletedAt        *time.Time
	WaitTimeMinutes    *int
	ServiceTimeMinutes *int
	ServiceNotes       string
	Rating             *int
	TransferHistory    []TransferRecord
}

// Position returns the queue position or 0 when the token is not waiting.
func (t *Token) Position() int {
	if t.QueuePosition == nil {
		return 0
	}
	return *t.QueuePosition
}
