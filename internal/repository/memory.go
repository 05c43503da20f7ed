package repository

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/queue"
)

// In-memory repository implementations backing development mode, where no Postgres
// DSN is configured. They honor the same semantics the SQL implementations do,
// including the compare-and-set on status transitions and the call-next reservation.

type memoryStore struct {
	mu          sync.Mutex
	tokens      map[string]domain.Token // by token number
	departments map[string]domain.Department
	counters    map[string]domain.Counter
	history     []domain.TokenHistory
}

// NewMemoryStore creates the shared backing store for the in-memory repositories.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{store: &memoryStore{
		tokens:      make(map[string]domain.Token),
		departments: make(map[string]domain.Department),
		counters:    make(map[string]domain.Counter),
	}}
}

// MemoryStore hands out repository views over one shared state.
type MemoryStore struct {
	store *memoryStore
}

func (m *MemoryStore) Tokens() TokenRepository           { return &memoryTokenRepo{m.store} }
func (m *MemoryStore) Departments() DepartmentRepository { return &memoryDeptRepo{m.store} }
func (m *MemoryStore) Counters() CounterRepository       { return &memoryCounterRepo{m.store} }
func (m *MemoryStore) History() TokenHistoryRepository   { return &memoryHistoryRepo{m.store} }

type memoryTokenRepo struct{ s *memoryStore }

func (r *memoryTokenRepo) Create(ctx context.Context, token *domain.Token) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.tokens[token.TokenNumber] = *token
	return nil
}

func (r *memoryTokenRepo) Update(ctx context.Context, token *domain.Token) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.tokens[token.TokenNumber]; !ok {
		return queue.ErrTokenNotFound
	}
	r.s.tokens[token.TokenNumber] = *token
	return nil
}

func (r *memoryTokenRepo) UpdateWithStatusCheck(ctx context.Context, token *domain.Token, expected domain.TokenStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.tokens[token.TokenNumber]
	if !ok {
		return queue.ErrTokenNotFound
	}
	if stored.Status != expected {
		return queue.ErrConcurrencyConflict
	}
	r.s.tokens[token.TokenNumber] = *token
	return nil
}

func (r *memoryTokenRepo) Reserve(ctx context.Context, token *domain.Token, counter *domain.Counter) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.tokens[token.TokenNumber]
	if !ok {
		return queue.ErrTokenNotFound
	}
	if stored.Status != domain.TokenStatusWaiting {
		return queue.ErrConcurrencyConflict
	}
	if c, ok := r.s.counters[counter.ID]; ok && c.CurrentTokenID != nil {
		return queue.ErrConcurrencyConflict
	}
	r.s.tokens[token.TokenNumber] = *token
	if c, ok := r.s.counters[counter.ID]; ok {
		c.CurrentTokenID = &stored.ID
		c.Status = domain.CounterStatusBusy
		r.s.counters[counter.ID] = c
	}
	return nil
}

func (r *memoryTokenRepo) GetByNumber(ctx context.Context, tokenNumber string) (*domain.Token, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.tokens[tokenNumber]
	if !ok {
		return nil, queue.ErrTokenNotFound
	}
	token := stored
	return &token, nil
}

func (r *memoryTokenRepo) ListWaitingByDepartment(ctx context.Context, departmentID string) ([]*domain.Token, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var result []*domain.Token
	for number := range r.s.tokens {
		stored := r.s.tokens[number]
		if stored.DepartmentID == departmentID && stored.Status == domain.TokenStatusWaiting {
			token := stored
			result = append(result, &token)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Position() < result[j].Position()
	})
	return result, nil
}

func (r *memoryTokenRepo) HasActiveToken(ctx context.Context, customerID, businessDate string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, stored := range r.s.tokens {
		if stored.CustomerID == customerID && stored.BusinessDate == businessDate && stored.Status.IsActive() {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryTokenRepo) MaxSequence(ctx context.Context, departmentID, businessDate string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	max := 0
	for number, stored := range r.s.tokens {
		if stored.DepartmentID != departmentID || stored.BusinessDate != businessDate {
			continue
		}
		parts := strings.Split(number, "-")
		seq, err := strconv.Atoi(parts[len(parts)-1])
		if err != nil {
			continue
		}
		if seq > max {
			max = seq
		}
	}
	return max, nil
}

func (r *memoryTokenRepo) AvgServiceMinutes(ctx context.Context, departmentID string, recent int) (float64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var completed []domain.Token
	for _, stored := range r.s.tokens {
		if stored.DepartmentID == departmentID && stored.Status == domain.TokenStatusCompleted && stored.ServiceTimeMinutes != nil {
			completed = append(completed, stored)
		}
	}
	sort.Slice(completed, func(i, j int) bool {
		return completionTime(completed[i]).After(completionTime(completed[j]))
	})
	if recent > 0 && len(completed) > recent {
		completed = completed[:recent]
	}
	if len(completed) == 0 {
		return 0, nil
	}
	sum := 0
	for _, token := range completed {
		sum += *token.ServiceTimeMinutes
	}
	return float64(sum) / float64(len(completed)), nil
}

func completionTime(t domain.Token) time.Time {
	if t.CompletedAt != nil {
		return *t.CompletedAt
	}
	return t.IssuedAt
}

type memoryDeptRepo struct{ s *memoryStore }

func (r *memoryDeptRepo) Create(ctx context.Context, dept *domain.Department) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := time.Now()
	dept.CreatedAt = now
	dept.UpdatedAt = now
	r.s.departments[dept.ID] = *dept
	return nil
}

func (r *memoryDeptRepo) Update(ctx context.Context, dept *domain.Department) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.departments[dept.ID]; !ok {
		return queue.ErrDepartmentNotFound
	}
	dept.UpdatedAt = time.Now()
	r.s.departments[dept.ID] = *dept
	return nil
}

func (r *memoryDeptRepo) UpdateAvgServiceTime(ctx context.Context, id string, avgMinutes float64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	dept, ok := r.s.departments[id]
	if !ok {
		return queue.ErrDepartmentNotFound
	}
	dept.AvgServiceTimeMinutes = avgMinutes
	dept.UpdatedAt = time.Now()
	r.s.departments[id] = dept
	return nil
}

func (r *memoryDeptRepo) GetByID(ctx context.Context, id string) (*domain.Department, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.departments[id]
	if !ok {
		return nil, queue.ErrDepartmentNotFound
	}
	dept := stored
	return &dept, nil
}

func (r *memoryDeptRepo) ListActive(ctx context.Context) ([]domain.Department, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var result []domain.Department
	for _, dept := range r.s.departments {
		if dept.IsActive {
			result = append(result, dept)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Code < result[j].Code })
	return result, nil
}

type memoryCounterRepo struct{ s *memoryStore }

func (r *memoryCounterRepo) Create(ctx context.Context, counter *domain.Counter) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if counter.ID == "" {
		counter.ID = uuid.NewString()
	}
	now := time.Now()
	counter.CreatedAt = now
	counter.UpdatedAt = now
	r.s.counters[counter.ID] = *counter
	return nil
}

func (r *memoryCounterRepo) Update(ctx context.Context, counter *domain.Counter) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.counters[counter.ID]; !ok {
		return queue.ErrCounterNotFound
	}
	counter.UpdatedAt = time.Now()
	r.s.counters[counter.ID] = *counter
	return nil
}

func (r *memoryCounterRepo) GetByID(ctx context.Context, id string) (*domain.Counter, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.counters[id]
	if !ok {
		return nil, queue.ErrCounterNotFound
	}
	counter := stored
	return &counter, nil
}

func (r *memoryCounterRepo) ListByDepartment(ctx context.Context, departmentID string) ([]domain.Counter, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var result []domain.Counter
	for _, counter := range r.s.counters {
		if counter.DepartmentID == departmentID {
			result = append(result, counter)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (r *memoryCounterRepo) ClearToken(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	counter, ok := r.s.counters[id]
	if !ok {
		return nil
	}
	if counter.Status == domain.CounterStatusBusy {
		counter.Status = domain.CounterStatusActive
	}
	counter.CurrentTokenID = nil
	r.s.counters[id] = counter
	return nil
}

type memoryHistoryRepo struct{ s *memoryStore }

func (r *memoryHistoryRepo) Create(ctx context.Context, history *domain.TokenHistory) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	history.ID = uuid.NewString()
	history.CreatedAt = time.Now()
	r.s.history = append(r.s.history, *history)
	return nil
}

func (r *memoryHistoryRepo) ListByToken(ctx context.Context, tokenNumber string) ([]domain.TokenHistory, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var result []domain.TokenHistory
	for _, entry := range r.s.history {
		if entry.TokenNumber == tokenNumber {
			result = append(result, entry)
		}
	}
	return result, nil
}
