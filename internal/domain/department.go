package domain

import "time"

// QueueType selects the ordering policy for a department's waiting set.
type QueueType string

const (
	QueueTypeFIFO       QueueType = "FIFO"
	QueueTypeLIFO       QueueType = "LIFO"
	QueueTypePriority   QueueType = "PRIORITY"
	QueueTypeWeighted   QueueType = "WEIGHTED"
	QueueTypeRoundRobin QueueType = "ROUND_ROBIN"
)

// Valid reports whether the queue type is one of the supported policies.
func (q QueueType) Valid() bool {
	switch q {
	case QueueTypeFIFO, QueueTypeLIFO, QueueTypePriority, QueueTypeWeighted, QueueTypeRoundRobin:
		return true
	}
	return false
}

// DayHours describes opening hours for one weekday. A nil entry means closed all day.
type DayHours struct {
	Open  string `json:"open"`  // "HH:MM"
	Close string `json:"close"` // "HH:MM"
}

// OperatingHours maps time.Weekday to that day's hours.
type OperatingHours map[time.Weekday]*DayHours

// Department is a long-lived configuration entity read by the queue core.
type Department struct {
	ID                    string
	Code                  string
	Name                  string
	QueueType             QueueType
	MaxTokensPerDay       int
	AvgServiceTimeMinutes float64
	OperatingHours        OperatingHours
	IsActive              bool
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// OpenAt reports whether the department accepts issuance at the given instant.
// Departments with no configured hours are treated as always open.
func (d *Department) OpenAt(at time.Time) bool {
	if len(d.OperatingHours) == 0 {
		return true
	}
	day, ok := d.OperatingHours[at.Weekday()]
	if !ok || day == nil {
		return false
	}
	hhmm := at.Format("15:04")
	return hhmm >= day.Open && hhmm < day.Close
}
