package queue

import (
	"testing"
	"time"

	"github.com/spec-kit/queue-service/internal/domain"
)

func TestEstimateFIFOCountsWholeQueue(t *testing.T) {
	e := NewEngine(Policy{})
	est := NewEstimator(e, Policy{}, 10).WithClock(func() time.Time { return testBase })
	dept := testDept(0)
	dept.AvgServiceTimeMinutes = 4

	for i, number := range []string{"A", "B", "C"} {
		if err := e.Enqueue(domain.QueueTypeFIFO, newTestToken(number, "d1", 5, time.Duration(i)*time.Minute)); err != nil {
			t.Fatal(err)
		}
	}
	if got := est.Estimate(dept, 5); got != 12 {
		t.Fatalf("estimate = %d, want 12", got)
	}
}

func TestEstimateEmptyQueueIsZero(t *testing.T) {
	e := NewEngine(Policy{})
	est := NewEstimator(e, Policy{}, 10)
	dept := testDept(0)
	dept.AvgServiceTimeMinutes = 4
	if got := est.Estimate(dept, 5); got != 0 {
		t.Fatalf("estimate = %d, want 0", got)
	}
}

func TestEstimateDefaultWhenNoHistory(t *testing.T) {
	e := NewEngine(Policy{})
	est := NewEstimator(e, Policy{}, 10).WithClock(func() time.Time { return testBase })
	dept := testDept(0) // AvgServiceTimeMinutes zero: no completions yet

	if err := e.Enqueue(domain.QueueTypeFIFO, newTestToken("A", "d1", 5, 0)); err != nil {
		t.Fatal(err)
	}
	if got := est.Estimate(dept, 5); got != 10 {
		t.Fatalf("estimate = %d, want default 10", got)
	}
}

func TestEstimatePriorityCountsOnlyAhead(t *testing.T) {
	e := NewEngine(Policy{})
	est := NewEstimator(e, Policy{}, 10).WithClock(func() time.Time { return testBase })
	dept := testDept(0)
	dept.QueueType = domain.QueueTypePriority
	dept.AvgServiceTimeMinutes = 5

	if err := e.Enqueue(domain.QueueTypePriority, newTestToken("LOW", "d1", 2, 0)); err != nil {
		t.Fatal(err)
	}
	if err := e.Enqueue(domain.QueueTypePriority, newTestToken("MID", "d1", 5, time.Minute)); err != nil {
		t.Fatal(err)
	}
	if err := e.Enqueue(domain.QueueTypePriority, newTestToken("HIGH", "d1", 9, 2*time.Minute)); err != nil {
		t.Fatal(err)
	}

	// A prospective priority-5 token queues behind HIGH and MID but ahead of LOW.
	if got := est.Estimate(dept, 5); got != 10 {
		t.Fatalf("estimate = %d, want 10", got)
	}
	// A prospective priority-10 token has nothing ahead.
	if got := est.Estimate(dept, 10); got != 0 {
		t.Fatalf("top priority estimate = %d, want 0", got)
	}
}

func TestEstimateWeightedUsesAging(t *testing.T) {
	now := testBase.Add(time.Hour)
	policy := Policy{Aging: DefaultAging(15)}
	e := NewEngine(policy).WithClock(func() time.Time { return now })
	est := NewEstimator(e, policy, 10).WithClock(func() time.Time { return now })
	dept := testDept(0)
	dept.QueueType = domain.QueueTypeWeighted
	dept.AvgServiceTimeMinutes = 6

	// Priority 2 but an hour old: effective 2 + 60/15 = 6, ahead of a fresh 5.
	if err := e.Enqueue(domain.QueueTypeWeighted, newTestToken("OLD", "d1", 2, 0)); err != nil {
		t.Fatal(err)
	}
	if got := est.Estimate(dept, 5); got != 6 {
		t.Fatalf("estimate = %d, want 6", got)
	}
}
