package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/spec-kit/queue-service/internal/domain"
)

func newTestCounter(id, dept string) *domain.Counter {
	return &domain.Counter{
		ID:           id,
		DepartmentID: dept,
		Status:       domain.CounterStatusActive,
	}
}

func TestRequestNextHappyPath(t *testing.T) {
	e := NewEngine(Policy{})
	c := NewCoordinator(e, 3)
	if err := e.Enqueue(domain.QueueTypeFIFO, newTestToken("A", "d1", 5, 0)); err != nil {
		t.Fatal(err)
	}
	counter := newTestCounter("c1", "d1")

	token, err := c.RequestNext(context.Background(), counter, nil)
	if err != nil {
		t.Fatalf("request next: %v", err)
	}
	if token.TokenNumber != "A" || token.Status != domain.TokenStatusCalled {
		t.Fatalf("token = %+v", token)
	}
	if counter.CurrentTokenID == nil || *counter.CurrentTokenID != token.ID {
		t.Fatalf("counter token = %v", counter.CurrentTokenID)
	}
	if token.CounterID == nil || *token.CounterID != counter.ID {
		t.Fatalf("token counter = %v", token.CounterID)
	}
	if counter.Status != domain.CounterStatusBusy {
		t.Fatalf("counter status = %s", counter.Status)
	}
	if e.WaitingCount("d1") != 0 {
		t.Fatalf("token still waiting after call")
	}
}

func TestRequestNextCounterBusy(t *testing.T) {
	e := NewEngine(Policy{})
	c := NewCoordinator(e, 3)
	counter := newTestCounter("c1", "d1")
	held := "tok-1"
	counter.CurrentTokenID = &held

	if _, err := c.RequestNext(context.Background(), counter, nil); !errors.Is(err, ErrCounterBusy) {
		t.Fatalf("err = %v, want ErrCounterBusy", err)
	}
}

func TestRequestNextCounterOnBreak(t *testing.T) {
	e := NewEngine(Policy{})
	c := NewCoordinator(e, 3)
	if err := e.Enqueue(domain.QueueTypeFIFO, newTestToken("A", "d1", 5, 0)); err != nil {
		t.Fatal(err)
	}
	counter := newTestCounter("c1", "d1")
	counter.Status = domain.CounterStatusBreak

	if _, err := c.RequestNext(context.Background(), counter, nil); !errors.Is(err, ErrCounterUnavailable) {
		t.Fatalf("err = %v, want ErrCounterUnavailable", err)
	}
	if e.WaitingCount("d1") != 1 {
		t.Fatal("waiting set mutated by unavailable counter")
	}
}

func TestRequestNextEmptyQueue(t *testing.T) {
	e := NewEngine(Policy{})
	c := NewCoordinator(e, 3)
	counter := newTestCounter("c1", "d1")

	if _, err := c.RequestNext(context.Background(), counter, nil); !errors.Is(err, ErrNoTokensAvailable) {
		t.Fatalf("err = %v, want ErrNoTokensAvailable", err)
	}
}

func TestRequestNextNoDoubleCall(t *testing.T) {
	e := NewEngine(Policy{})
	c := NewCoordinator(e, 3)
	if err := e.Enqueue(domain.QueueTypeFIFO, newTestToken("ONLY", "d1", 5, 0)); err != nil {
		t.Fatal(err)
	}

	counters := []*domain.Counter{newTestCounter("c1", "d1"), newTestCounter("c2", "d1")}
	results := make([]error, len(counters))
	tokens := make([]*domain.Token, len(counters))

	var wg sync.WaitGroup
	for i, counter := range counters {
		wg.Add(1)
		go func(i int, counter *domain.Counter) {
			defer wg.Done()
			tokens[i], results[i] = c.RequestNext(context.Background(), counter, nil)
		}(i, counter)
	}
	wg.Wait()

	var won, lost int
	for i := range counters {
		switch {
		case results[i] == nil:
			won++
			if tokens[i].TokenNumber != "ONLY" {
				t.Fatalf("winner got %s", tokens[i].TokenNumber)
			}
		case errors.Is(results[i], ErrNoTokensAvailable):
			lost++
		default:
			t.Fatalf("unexpected error: %v", results[i])
		}
	}
	if won != 1 || lost != 1 {
		t.Fatalf("won=%d lost=%d, want exactly one of each", won, lost)
	}
}

func TestRequestNextReservationConflictRetries(t *testing.T) {
	e := NewEngine(Policy{})
	c := NewCoordinator(e, 3)
	for i, number := range []string{"A", "B"} {
		if err := e.Enqueue(domain.QueueTypeFIFO, newTestToken(number, "d1", 5, time.Duration(i)*time.Minute)); err != nil {
			t.Fatal(err)
		}
	}
	counter := newTestCounter("c1", "d1")

	// First reservation attempt loses the race; the retry should pick A again
	// because the conflict rolled it back to the front of the queue.
	calls := 0
	reserve := func(ctx context.Context, token *domain.Token, counter *domain.Counter) error {
		calls++
		if calls == 1 {
			return ErrConcurrencyConflict
		}
		return nil
	}

	token, err := c.RequestNext(context.Background(), counter, reserve)
	if err != nil {
		t.Fatalf("request next: %v", err)
	}
	if token.TokenNumber != "A" {
		t.Fatalf("token = %s, want A", token.TokenNumber)
	}
	if calls != 2 {
		t.Fatalf("reserve calls = %d, want 2", calls)
	}
	if got := e.WaitingCount("d1"); got != 1 {
		t.Fatalf("waiting count = %d, want 1", got)
	}
}

func TestRequestNextGivesUpAfterBoundedRetries(t *testing.T) {
	e := NewEngine(Policy{})
	c := NewCoordinator(e, 2)
	if err := e.Enqueue(domain.QueueTypeFIFO, newTestToken("A", "d1", 5, 0)); err != nil {
		t.Fatal(err)
	}
	counter := newTestCounter("c1", "d1")

	calls := 0
	reserve := func(ctx context.Context, token *domain.Token, counter *domain.Counter) error {
		calls++
		return ErrConcurrencyConflict
	}

	_, err := c.RequestNext(context.Background(), counter, reserve)
	if !errors.Is(err, ErrConcurrencyConflict) {
		t.Fatalf("err = %v, want ErrConcurrencyConflict", err)
	}
	if calls != 2 {
		t.Fatalf("reserve calls = %d, want 2", calls)
	}
	// The token is back in the queue, still waiting, position intact.
	tok := e.PeekNext("d1", nil)
	if tok == nil || tok.Status != domain.TokenStatusWaiting || tok.Position() != 1 {
		t.Fatalf("token after failed reservation = %+v", tok)
	}
	if counter.CurrentTokenID != nil {
		t.Fatalf("counter assigned after failed reservation")
	}
}

func TestRequestNextReservationHardFailureRollsBack(t *testing.T) {
	e := NewEngine(Policy{})
	c := NewCoordinator(e, 3)
	if err := e.Enqueue(domain.QueueTypeFIFO, newTestToken("A", "d1", 5, 0)); err != nil {
		t.Fatal(err)
	}
	counter := newTestCounter("c1", "d1")

	boom := errors.New("store down")
	reserve := func(ctx context.Context, token *domain.Token, counter *domain.Counter) error {
		return boom
	}

	if _, err := c.RequestNext(context.Background(), counter, reserve); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want store failure", err)
	}
	tok := e.PeekNext("d1", nil)
	if tok == nil || tok.Status != domain.TokenStatusWaiting {
		t.Fatalf("token not rolled back: %+v", tok)
	}
}

func TestRequestNextEligibilitySkipsLowPriority(t *testing.T) {
	e := NewEngine(Policy{})
	c := NewCoordinator(e, 3)
	if err := e.Enqueue(domain.QueueTypeFIFO, newTestToken("LOW", "d1", 2, 0)); err != nil {
		t.Fatal(err)
	}
	counter := newTestCounter("c1", "d1")
	counter.MinPriority = 5

	if _, err := c.RequestNext(context.Background(), counter, nil); !errors.Is(err, ErrNoTokensAvailable) {
		t.Fatalf("err = %v, want ErrNoTokensAvailable", err)
	}
	if err := e.Enqueue(domain.QueueTypeFIFO, newTestToken("HIGH", "d1", 7, time.Minute)); err != nil {
		t.Fatal(err)
	}
	token, err := c.RequestNext(context.Background(), counter, nil)
	if err != nil {
		t.Fatal(err)
	}
	if token.TokenNumber != "HIGH" {
		t.Fatalf("token = %s, want HIGH", token.TokenNumber)
	}
}

func TestRelease(t *testing.T) {
	e := NewEngine(Policy{})
	c := NewCoordinator(e, 3)
	counter := newTestCounter("c1", "d1")
	held := "tok-1"
	counter.CurrentTokenID = &held
	counter.Status = domain.CounterStatusBusy

	c.Release(counter)
	if counter.CurrentTokenID != nil || counter.Status != domain.CounterStatusActive {
		t.Fatalf("counter after release = %+v", counter)
	}
}
