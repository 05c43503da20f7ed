package queue

import (
	"time"

	"github.com/spec-kit/queue-service/internal/domain"
)

// AgingFunc computes effective priority for weighted ordering from the raw priority
// and how long the token has waited. Older low-priority tokens surface as their
// effective priority grows.
type AgingFunc func(priority int, waited time.Duration) float64

// DefaultAging grants one effective priority point per minutesPerPoint of waiting.
func DefaultAging(minutesPerPoint float64) AgingFunc {
	if minutesPerPoint <= 0 {
		minutesPerPoint = 15
	}
	return func(priority int, waited time.Duration) float64 {
		return float64(priority) + waited.Minutes()/minutesPerPoint
	}
}

// Policy bundles the configuration points of the ordering engine.
type Policy struct {
	Aging AgingFunc
}

// effectivePriority is what ordering decisions compare. Plain priority queues use
// the raw value; weighted queues apply the aging function.
func (p Policy) effectivePriority(qt domain.QueueType, t *domain.Token, now time.Time) float64 {
	if qt == domain.QueueTypeWeighted && p.Aging != nil {
		return p.Aging(t.Priority, now.Sub(t.IssuedAt))
	}
	return float64(t.Priority)
}

// before is the stable tie-break used everywhere ordering must be deterministic:
// issuedAt ascending, then tokenNumber.
func before(a, b *domain.Token) bool {
	if !a.IssuedAt.Equal(b.IssuedAt) {
		return a.IssuedAt.Before(b.IssuedAt)
	}
	return a.TokenNumber < b.TokenNumber
}
