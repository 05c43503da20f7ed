package queue

import (
	"math"
	"time"

	"github.com/spec-kit/queue-service/internal/domain"
)

// Estimator derives advisory wait estimates from queue depth and the department's
// rolling average service time. It reads snapshots only and never gates ordering.
type Estimator struct {
	engine            *Engine
	policy            Policy
	defaultAvgMinutes float64
	clock             func() time.Time
}

// NewEstimator constructs an estimator. defaultAvgMinutes substitutes for the rolling
// average when a department has no completed-service history yet.
func NewEstimator(engine *Engine, policy Policy, defaultAvgMinutes float64) *Estimator {
	if defaultAvgMinutes <= 0 {
		defaultAvgMinutes = 10
	}
	return &Estimator{
		engine:            engine,
		policy:            policy,
		defaultAvgMinutes: defaultAvgMinutes,
		clock:             time.Now,
	}
}

// WithClock overrides the time source for tests.
func (e *Estimator) WithClock(clock func() time.Time) *Estimator {
	e.clock = clock
	return e
}

// Estimate returns the expected wait in minutes for a prospective token of the given
// priority: tokens ahead of it (equal or higher effective priority) times the
// department's average service minutes.
func (e *Estimator) Estimate(dept *domain.Department, priority int) int {
	now := e.clock()
	prospective := &domain.Token{Priority: priority, IssuedAt: now}
	incoming := e.policy.effectivePriority(dept.QueueType, prospective, now)

	ahead := 0
	for _, t := range e.engine.Snapshot(dept.ID) {
		switch dept.QueueType {
		case domain.QueueTypePriority, domain.QueueTypeWeighted:
			if e.policy.effectivePriority(dept.QueueType, t, now) >= incoming {
				ahead++
			}
		default:
			ahead++
		}
	}

	avg := dept.AvgServiceTimeMinutes
	if avg <= 0 {
		avg = e.defaultAvgMinutes
	}
	return int(math.Ceil(float64(ahead) * avg))
}
