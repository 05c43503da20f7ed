package domain

import "time"

// TokenChangeType captures what changed in a history entry.
type TokenChangeType string

const (
	ChangeTypeStatus   TokenChangeType = "STATUS_CHANGE"
	ChangeTypeTransfer TokenChangeType = "TRANSFER"
	ChangeTypePosition TokenChangeType = "POSITION_CHANGE"
)

// TokenHistory is an immutable audit trail entry for a token.
type TokenHistory struct {
	ID          string
	TokenNumber string
	ChangeType  TokenChangeType
	OldValue    map[string]any
	NewValue    map[string]any
	CreatedAt   time.Time
}
