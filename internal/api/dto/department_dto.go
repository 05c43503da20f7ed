package dto

import (
	"time"

	"github.com/spec-kit/queue-service/internal/domain"
)

// CreateDepartmentRequest payload.
type CreateDepartmentRequest struct {
	Code                  string                 `json:"code"`
	Name                  string                 `json:"name"`
	QueueType             domain.QueueType       `json:"queue_type"`
	MaxTokensPerDay       int                    `json:"max_tokens_per_day"`
	AvgServiceTimeMinutes float64                `json:"avg_service_time_minutes"`
	OperatingHours        map[string]*dayHoursIn `json:"operating_hours,omitempty"`
}

type dayHoursIn struct {
	Open  string `json:"open"`
	Close string `json:"close"`
}

// DepartmentResponse view.
type DepartmentResponse struct {
	ID                    string           `json:"id"`
	Code                  string           `json:"code"`
	Name                  string           `json:"name"`
	QueueType             domain.QueueType `json:"queue_type"`
	MaxTokensPerDay       int              `json:"max_tokens_per_day"`
	AvgServiceTimeMinutes float64          `json:"avg_service_time_minutes"`
	IsActive              bool             `json:"is_active"`
	WaitingCount          int              `json:"waiting_count"`
	CreatedAt             time.Time        `json:"created_at"`
}

// CreateCounterRequest payload.
type CreateCounterRequest struct {
	DepartmentID string `json:"department_id"`
	Name         string `json:"name"`
	// MinPriority restricts the counter to tokens at or above this priority. Zero
	// means no restriction.
	MinPriority int `json:"min_priority"`
}

// CounterResponse view.
type CounterResponse struct {
	ID             string               `json:"id"`
	DepartmentID   string               `json:"department_id"`
	Name           string               `json:"name"`
	Status         domain.CounterStatus `json:"status"`
	CurrentTokenID *string              `json:"current_token_id,omitempty"`
	MinPriority    int                  `json:"min_priority"`
}

// DomainOperatingHours converts the wire representation into the domain type. Day
// names follow time.Weekday strings ("Monday", ...).
func (r CreateDepartmentRequest) DomainOperatingHours() domain.OperatingHours {
	if len(r.OperatingHours) == 0 {
		return nil
	}
	names := map[string]time.Weekday{
		"Sunday": time.Sunday, "Monday": time.Monday, "Tuesday": time.Tuesday,
		"Wednesday": time.Wednesday, "Thursday": time.Thursday,
		"Friday": time.Friday, "Saturday": time.Saturday,
	}
	hours := make(domain.OperatingHours, len(r.OperatingHours))
	for name, h := range r.OperatingHours {
		day, ok := names[name]
		if !ok || h == nil {
			continue
		}
		hours[day] = &domain.DayHours{Open: h.Open, Close: h.Close}
	}
	return hours
}
