package queue

import (
	"sort"
	"sync"
	"time"

	"github.com/spec-kit/queue-service/internal/domain"
)

// Engine maintains the ordered waiting set of every department. Each department is
// guarded by its own lock so departments queue and serve fully in parallel, while all
// mutations of a single department's waiting set are serialized. The waiting slice is
// the ordering truth: index i holds queue position i+1, so positions are contiguous
// 1..N by construction.
type Engine struct {
	mu     sync.Mutex
	queues map[string]*departmentQueue

	policy Policy
	clock  func() time.Time
}

type departmentQueue struct {
	mu      sync.Mutex
	waiting []*domain.Token
}

// NewEngine constructs an ordering engine with the given policy configuration.
func NewEngine(policy Policy) *Engine {
	return &Engine{
		queues: make(map[string]*departmentQueue),
		policy: policy,
		clock:  time.Now,
	}
}

// WithClock overrides the time source, used by tests and the weighted policy.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

func (e *Engine) queueFor(departmentID string) *departmentQueue {
	e.mu.Lock()
	defer e.mu.Unlock()
	dq, ok := e.queues[departmentID]
	if !ok {
		dq = &departmentQueue{}
		e.queues[departmentID] = dq
	}
	return dq
}

// Rebuild replaces a department's waiting set, ordering the given tokens by their
// persisted positions. Used at startup to restore state from the token store.
func (e *Engine) Rebuild(departmentID string, tokens []*domain.Token) {
	dq := e.queueFor(departmentID)
	dq.mu.Lock()
	defer dq.mu.Unlock()

	dq.waiting = dq.waiting[:0]
	dq.waiting = append(dq.waiting, tokens...)
	sort.SliceStable(dq.waiting, func(i, j int) bool {
		a, b := dq.waiting[i], dq.waiting[j]
		if a.Position() != b.Position() {
			return a.Position() < b.Position()
		}
		return before(a, b)
	})
	dq.renumber()
}

// Enqueue inserts a newly issued token into its department's waiting set and assigns
// its queue position according to the queue type. The queue type is read per call, so
// changing a department's policy affects the next enqueue without reordering tokens
// already waiting.
func (e *Engine) Enqueue(queueType domain.QueueType, token *domain.Token) error {
	if token.Priority < domain.MinPriority || token.Priority > domain.MaxPriority {
		return ErrInvalidPriority
	}

	dq := e.queueFor(token.DepartmentID)
	dq.mu.Lock()
	defer dq.mu.Unlock()

	idx := e.insertIndex(dq.waiting, queueType, token)
	dq.waiting = append(dq.waiting, nil)
	copy(dq.waiting[idx+1:], dq.waiting[idx:])
	dq.waiting[idx] = token
	dq.renumber()
	return nil
}

func (e *Engine) insertIndex(waiting []*domain.Token, queueType domain.QueueType, token *domain.Token) int {
	switch queueType {
	case domain.QueueTypeLIFO:
		return 0
	case domain.QueueTypePriority, domain.QueueTypeWeighted:
		now := e.clock()
		incoming := e.policy.effectivePriority(queueType, token, now)
		for i, t := range waiting {
			if e.policy.effectivePriority(queueType, t, now) < incoming {
				return i
			}
		}
		return len(waiting)
	case domain.QueueTypeRoundRobin:
		return roundRobinIndex(waiting, token)
	default: // FIFO
		return len(waiting)
	}
}

// roundRobinIndex interleaves priority classes in rounds: the k-th token of a class
// queues behind every class's (k-1)-th token. Within a round the tie-break is
// issuedAt ascending, which an arriving token always loses.
func roundRobinIndex(waiting []*domain.Token, token *domain.Token) int {
	ordinal := 1
	for _, t := range waiting {
		if t.Priority == token.Priority {
			ordinal++
		}
	}
	seen := make(map[int]int, domain.MaxPriority)
	for i, t := range waiting {
		seen[t.Priority]++
		if seen[t.Priority] > ordinal {
			return i
		}
	}
	return len(waiting)
}

// PeekNext returns the waiting token that would be called next by a counter whose
// eligibility predicate matches, without mutating the queue. A nil predicate matches
// every token. Returns nil when no eligible token is waiting.
func (e *Engine) PeekNext(departmentID string, eligible func(*domain.Token) bool) *domain.Token {
	dq := e.queueFor(departmentID)
	dq.mu.Lock()
	defer dq.mu.Unlock()
	return firstEligible(dq.waiting, eligible)
}

// ClaimWith selects the next eligible waiting token, applies the given mutation and
// removes the token from the waiting set, all under the department lock. The hook
// covers the lifecycle transition and any storage reservation, so the whole call-next
// unit is serialized against enqueues, cancels and competing claims. When the hook
// fails the waiting set is left untouched and the hook is responsible for reverting
// its own token mutations. Returns ErrNoTokensAvailable when nothing matches.
func (e *Engine) ClaimWith(departmentID string, eligible func(*domain.Token) bool, apply func(*domain.Token) error) (*domain.Token, error) {
	dq := e.queueFor(departmentID)
	dq.mu.Lock()
	defer dq.mu.Unlock()

	token := firstEligible(dq.waiting, eligible)
	if token == nil {
		return nil, ErrNoTokensAvailable
	}
	if apply != nil {
		if err := apply(token); err != nil {
			return nil, err
		}
	}
	dq.removeLocked(token.TokenNumber)
	return token, nil
}

// Claim atomically selects and removes the next eligible waiting token, compacting
// the remaining positions. The claimed token's former position is returned for use
// with Unclaim. Returns ErrNoTokensAvailable when nothing matches.
func (e *Engine) Claim(departmentID string, eligible func(*domain.Token) bool) (*domain.Token, int, error) {
	position := 0
	token, err := e.ClaimWith(departmentID, eligible, func(t *domain.Token) error {
		position = t.Position()
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return token, position, nil
}

// Transition applies a lifecycle mutation to a token under its department's lock.
// When the token is still waiting, the mutation and its removal from the waiting set
// happen as one unit, so a concurrent claim can never observe a half-applied
// transition. A failed mutation leaves the waiting set untouched. The returned flag
// and former position feed Unclaim when a downstream persist fails.
func (e *Engine) Transition(departmentID string, token *domain.Token, mutate func(*domain.Token) error) (bool, int, error) {
	dq := e.queueFor(departmentID)
	dq.mu.Lock()
	defer dq.mu.Unlock()

	waiting := false
	position := 0
	for _, t := range dq.waiting {
		if t == token {
			waiting = true
			position = t.Position()
			break
		}
	}
	if err := mutate(token); err != nil {
		return waiting, position, err
	}
	if waiting {
		dq.removeLocked(token.TokenNumber)
	}
	return waiting, position, nil
}

// Unclaim reinserts a claimed token at its former position. Used to roll back a claim
// whose downstream persistence failed, so the in-memory mutation is never visible as
// committed.
func (e *Engine) Unclaim(departmentID string, token *domain.Token, position int) {
	dq := e.queueFor(departmentID)
	dq.mu.Lock()
	defer dq.mu.Unlock()

	idx := position - 1
	if idx < 0 {
		idx = 0
	}
	if idx > len(dq.waiting) {
		idx = len(dq.waiting)
	}
	dq.waiting = append(dq.waiting, nil)
	copy(dq.waiting[idx+1:], dq.waiting[idx:])
	dq.waiting[idx] = token
	dq.renumber()
}

// Remove takes a token out of the waiting set for any reason (cancelled, transferred,
// no-show while waiting) and shifts the tokens behind it down by one.
func (e *Engine) Remove(departmentID, tokenNumber string) (*domain.Token, error) {
	dq := e.queueFor(departmentID)
	dq.mu.Lock()
	defer dq.mu.Unlock()

	token := dq.removeLocked(tokenNumber)
	if token == nil {
		return nil, ErrTokenNotFound
	}
	return token, nil
}

// Reorder applies an administrative explicit ordering. The list must contain exactly
// the department's current waiting token numbers, else ErrInvalidReorder. The
// returned copies are taken inside the critical section, so callers persist the
// positions this reorder assigned rather than whatever a later mutation left behind.
func (e *Engine) Reorder(departmentID string, order []string) ([]*domain.Token, error) {
	dq := e.queueFor(departmentID)
	dq.mu.Lock()
	defer dq.mu.Unlock()

	if len(order) != len(dq.waiting) {
		return nil, ErrInvalidReorder
	}
	byNumber := make(map[string]*domain.Token, len(dq.waiting))
	for _, t := range dq.waiting {
		byNumber[t.TokenNumber] = t
	}
	reordered := make([]*domain.Token, 0, len(order))
	for _, number := range order {
		t, ok := byNumber[number]
		if !ok {
			return nil, ErrInvalidReorder
		}
		delete(byNumber, number)
		reordered = append(reordered, t)
	}
	dq.waiting = reordered
	dq.renumber()

	snapshot := make([]*domain.Token, len(reordered))
	for i, t := range reordered {
		copied := *t
		position := i + 1
		copied.QueuePosition = &position
		snapshot[i] = &copied
	}
	return snapshot, nil
}

// WaitingCount returns the size of a department's waiting set.
func (e *Engine) WaitingCount(departmentID string) int {
	dq := e.queueFor(departmentID)
	dq.mu.Lock()
	defer dq.mu.Unlock()
	return len(dq.waiting)
}

// Snapshot returns a copy of the waiting set in queue order. Estimators and display
// boards read snapshots so they never hold the department lock across their work.
func (e *Engine) Snapshot(departmentID string) []*domain.Token {
	dq := e.queueFor(departmentID)
	dq.mu.Lock()
	defer dq.mu.Unlock()

	out := make([]*domain.Token, len(dq.waiting))
	copy(out, dq.waiting)
	return out
}

func firstEligible(waiting []*domain.Token, eligible func(*domain.Token) bool) *domain.Token {
	for _, t := range waiting {
		if eligible == nil || eligible(t) {
			return t
		}
	}
	return nil
}

func (dq *departmentQueue) removeLocked(tokenNumber string) *domain.Token {
	for i, t := range dq.waiting {
		if t.TokenNumber == tokenNumber {
			dq.waiting = append(dq.waiting[:i], dq.waiting[i+1:]...)
			t.QueuePosition = nil
			dq.renumber()
			return t
		}
	}
	return nil
}

func (dq *departmentQueue) renumber() {
	for i, t := range dq.waiting {
		pos := i + 1
		t.QueuePosition = &pos
	}
}
