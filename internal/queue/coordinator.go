package queue

import (
	"context"
	"errors"
	"time"

	"github.com/spec-kit/queue-service/internal/domain"
)

// ReserveFunc persists a claim: a compare-and-set transition of the token from
// WAITING to CALLED plus the counter assignment, as one storage unit. Returning
// ErrConcurrencyConflict signals a lost race (another instance reserved the token
// first) and triggers a bounded retry.
type ReserveFunc func(ctx context.Context, token *domain.Token, counter *domain.Counter) error

// Coordinator serializes call-next requests so two counters never call the same
// waiting token and a busy counter cannot call another. Selection, the call
// transition and the reservation all run inside the engine's department critical
// section, so no other writer can touch the token mid-call.
type Coordinator struct {
	engine      *Engine
	maxAttempts int
	clock       func() time.Time
}

// NewCoordinator constructs a coordinator. maxAttempts bounds reservation retries
// after lost races before giving up with ErrConcurrencyConflict.
func NewCoordinator(engine *Engine, maxAttempts int) *Coordinator {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Coordinator{engine: engine, maxAttempts: maxAttempts, clock: time.Now}
}

// WithClock overrides the time source for tests.
func (c *Coordinator) WithClock(clock func() time.Time) *Coordinator {
	c.clock = clock
	return c
}

// Eligibility returns the counter's token predicate. Counters with a minimum
// priority only serve tokens at or above it; others serve everything.
func Eligibility(counter *domain.Counter) func(*domain.Token) bool {
	if counter.MinPriority <= 0 {
		return nil
	}
	min := counter.MinPriority
	return func(t *domain.Token) bool {
		return t.Priority >= min
	}
}

// RequestNext picks, calls and reserves the next eligible token for the counter.
// Fails with ErrCounterBusy when the counter still holds a token, with
// ErrCounterUnavailable when the counter is inactive or on break, with
// ErrNoTokensAvailable when the queue has nothing eligible, and with
// ErrConcurrencyConflict after exhausting reservation retries. On success the
// counter's CurrentTokenID and the token's CounterID are mutually consistent.
func (c *Coordinator) RequestNext(ctx context.Context, counter *domain.Counter, reserve ReserveFunc) (*domain.Token, error) {
	if counter.CurrentTokenID != nil {
		return nil, ErrCounterBusy
	}
	if !counter.CanCall() {
		return nil, ErrCounterUnavailable
	}

	eligible := Eligibility(counter)
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		token, err := c.engine.ClaimWith(counter.DepartmentID, eligible, func(t *domain.Token) error {
			position := t.Position()
			if err := Call(t, counter.ID, c.clock()); err != nil {
				return err
			}
			if reserve != nil {
				if err := reserve(ctx, t, counter); err != nil {
					revertCall(t, position)
					return err
				}
			}
			return nil
		})
		if err != nil {
			if errors.Is(err, ErrConcurrencyConflict) {
				continue
			}
			return nil, err
		}

		counter.CurrentTokenID = &token.ID
		counter.Status = domain.CounterStatusBusy
		return token, nil
	}
	return nil, ErrConcurrencyConflict
}

// Release clears the counter after its token left service, restoring availability.
func (c *Coordinator) Release(counter *domain.Counter) {
	counter.CurrentTokenID = nil
	if counter.Status == domain.CounterStatusBusy {
		counter.Status = domain.CounterStatusActive
	}
}

// revertCall undoes a call whose reservation failed, while the department lock is
// still held, so the mutation is never observable as committed. The token was never
// removed from the waiting set; only its fields need restoring.
func revertCall(t *domain.Token, position int) {
	t.Status = domain.TokenStatusWaiting
	t.CounterID = nil
	t.CalledAt = nil
	t.QueuePosition = &position
}
