package queue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/queue-service/internal/domain"
)

// Sequencer produces the next token sequence number for a department on a business
// date, monotonic per department per day and safe under concurrent issuance.
type Sequencer interface {
	Next(ctx context.Context, dept *domain.Department, businessDate string) (int, error)
}

// FormatTokenNumber renders the canonical token number, DEPT-YYYYMMDD-NNN. Sequences
// beyond 999 widen to four or more digits rather than wrapping, so numbers never
// collide within a day.
func FormatTokenNumber(deptCode, businessDate string, seq int) string {
	return fmt.Sprintf("%s-%s-%03d", deptCode, strings.ReplaceAll(businessDate, "-", ""), seq)
}

// FormatDisplayNumber renders the short board form, DEPTNNN.
func FormatDisplayNumber(deptCode string, seq int) string {
	return fmt.Sprintf("%s%03d", deptCode, seq)
}

// BusinessDate returns the calendar day a token issued at the given instant belongs to.
func BusinessDate(at time.Time) string {
	return at.Format("2006-01-02")
}

// MemorySequencer is a process-local sequencer. The single mutex makes the
// check-then-increment atomic, so two concurrent issuances can never read the same
// last number. Used when Redis is not configured and in tests.
type MemorySequencer struct {
	mu       sync.Mutex
	counters map[string]int
}

// NewMemorySequencer constructs an empty in-memory sequencer.
func NewMemorySequencer() *MemorySequencer {
	return &MemorySequencer{counters: make(map[string]int)}
}

// Seed sets the current counter for a department/date, used when rebuilding state
// from the token store at startup.
func (s *MemorySequencer) Seed(departmentID, businessDate string, last int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := departmentID + ":" + businessDate
	if last > s.counters[key] {
		s.counters[key] = last
	}
}

func (s *MemorySequencer) Next(_ context.Context, dept *domain.Department, businessDate string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := dept.ID + ":" + businessDate
	current := s.counters[key]
	if dept.MaxTokensPerDay > 0 && current >= dept.MaxTokensPerDay {
		return 0, ErrCapacityExceeded
	}
	current++
	s.counters[key] = current
	return current, nil
}

// RedisSequencer implements the sequence as an atomic INCR on a per-department
// per-day key, giving the compare-and-swap discipline across service instances.
type RedisSequencer struct {
	client *redis.Client
}

// NewRedisSequencer wraps a Redis client.
func NewRedisSequencer(client *redis.Client) *RedisSequencer {
	return &RedisSequencer{client: client}
}

func (s *RedisSequencer) key(departmentID, businessDate string) string {
	return fmt.Sprintf("seq:%s:%s", departmentID, businessDate)
}

func (s *RedisSequencer) Next(ctx context.Context, dept *domain.Department, businessDate string) (int, error) {
	key := s.key(dept.ID, businessDate)
	seq, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis sequence incr: %w", err)
	}
	if seq == 1 {
		// First token of the day; let the key expire well after the business day ends.
		s.client.Expire(ctx, key, 48*time.Hour)
	}
	if dept.MaxTokensPerDay > 0 && int(seq) > dept.MaxTokensPerDay {
		// Give the slot back so capacity errors stay stable across retries.
		s.client.Decr(ctx, key)
		return 0, ErrCapacityExceeded
	}
	return int(seq), nil
}
