package domain

import "time"

// CounterStatus enumerates service point availability.
type CounterStatus string

const (
	CounterStatusActive   CounterStatus = "ACTIVE"
	CounterStatusInactive CounterStatus = "INACTIVE"
	CounterStatusBusy     CounterStatus = "BUSY"
	CounterStatusBreak    CounterStatus = "BREAK"
	CounterStatusClosed   CounterStatus = "CLOSED"
)

// Counter is a physical or virtual service point within a department.
type Counter struct {
	ID             string
	DepartmentID   string
	Name           string
	Status         CounterStatus
	CurrentTokenID *string
	MinPriority    int // 0 means the counter serves every priority
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CanCall reports whether the counter may request a next token.
func (c *Counter) CanCall() bool {
	return c.Status == CounterStatusActive && c.CurrentTokenID == nil
}
