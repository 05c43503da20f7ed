package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/spec-kit/queue-service/internal/domain"
)

func testDept(max int) *domain.Department {
	return &domain.Department{
		ID:              "d1",
		Code:            "BILL",
		MaxTokensPerDay: max,
		QueueType:       domain.QueueTypeFIFO,
	}
}

func TestMemorySequencerMonotonic(t *testing.T) {
	s := NewMemorySequencer()
	dept := testDept(0)
	for want := 1; want <= 5; want++ {
		got, err := s.Next(context.Background(), dept, "2026-03-02")
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if got != want {
			t.Fatalf("seq = %d, want %d", got, want)
		}
	}
}

func TestMemorySequencerIndependentPerDeptAndDate(t *testing.T) {
	s := NewMemorySequencer()
	d1, d2 := testDept(0), testDept(0)
	d2.ID = "d2"

	if got, _ := s.Next(context.Background(), d1, "2026-03-02"); got != 1 {
		t.Fatalf("d1 first = %d", got)
	}
	if got, _ := s.Next(context.Background(), d2, "2026-03-02"); got != 1 {
		t.Fatalf("d2 first = %d", got)
	}
	if got, _ := s.Next(context.Background(), d1, "2026-03-03"); got != 1 {
		t.Fatalf("next day first = %d", got)
	}
	if got, _ := s.Next(context.Background(), d1, "2026-03-02"); got != 2 {
		t.Fatalf("d1 second = %d", got)
	}
}

func TestMemorySequencerCapacity(t *testing.T) {
	s := NewMemorySequencer()
	dept := testDept(2)
	ctx := context.Background()
	if _, err := s.Next(ctx, dept, "2026-03-02"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Next(ctx, dept, "2026-03-02"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Next(ctx, dept, "2026-03-02"); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("err = %v, want ErrCapacityExceeded", err)
	}
	// Capacity errors are stable: retrying still fails.
	if _, err := s.Next(ctx, dept, "2026-03-02"); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("retry err = %v", err)
	}
}

func TestMemorySequencerConcurrentIssuanceUnique(t *testing.T) {
	s := NewMemorySequencer()
	dept := testDept(0)
	const n = 64

	results := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			seq, err := s.Next(context.Background(), dept, "2026-03-02")
			if err != nil {
				t.Errorf("next: %v", err)
				return
			}
			results[i] = seq
		}(i)
	}
	wg.Wait()

	seen := make(map[int]bool, n)
	for _, seq := range results {
		if seen[seq] {
			t.Fatalf("duplicate sequence %d", seq)
		}
		seen[seq] = true
	}
	if len(seen) != n {
		t.Fatalf("got %d unique sequences, want %d", len(seen), n)
	}
}

func TestMemorySequencerSeed(t *testing.T) {
	s := NewMemorySequencer()
	dept := testDept(0)
	s.Seed(dept.ID, "2026-03-02", 41)
	got, err := s.Next(context.Background(), dept, "2026-03-02")
	if err != nil {
		t.Fatal(err)
	}
	if got != 42 {
		t.Fatalf("seq after seed = %d, want 42", got)
	}
	// Seeding backwards never rewinds the counter.
	s.Seed(dept.ID, "2026-03-02", 10)
	if got, _ = s.Next(context.Background(), dept, "2026-03-02"); got != 43 {
		t.Fatalf("seq after stale seed = %d, want 43", got)
	}
}

func TestTokenNumberFormats(t *testing.T) {
	cases := []struct {
		seq         int
		wantNumber  string
		wantDisplay string
	}{
		{1, "BILL-20260302-001", "BILL001"},
		{42, "BILL-20260302-042", "BILL042"},
		{999, "BILL-20260302-999", "BILL999"},
		// Beyond three digits the number widens instead of wrapping.
		{1000, "BILL-20260302-1000", "BILL1000"},
		{12345, "BILL-20260302-12345", "BILL12345"},
	}
	for _, tt := range cases {
		if got := FormatTokenNumber("BILL", "2026-03-02", tt.seq); got != tt.wantNumber {
			t.Fatalf("FormatTokenNumber(%d) = %q, want %q", tt.seq, got, tt.wantNumber)
		}
		if got := FormatDisplayNumber("BILL", tt.seq); got != tt.wantDisplay {
			t.Fatalf("FormatDisplayNumber(%d) = %q, want %q", tt.seq, got, tt.wantDisplay)
		}
	}
}

func TestTokenNumbersUniqueAcrossDay(t *testing.T) {
	seen := map[string]bool{}
	for seq := 990; seq <= 1010; seq++ {
		number := FormatTokenNumber("GEN", "2026-03-02", seq)
		if seen[number] {
			t.Fatalf("collision at %s", number)
		}
		seen[number] = true
	}
	if len(seen) != 21 {
		t.Fatalf("unique numbers = %d, want 21", len(seen))
	}
}

func TestBusinessDate(t *testing.T) {
	if got := BusinessDate(testBase); got != "2026-03-02" {
		t.Fatalf("business date = %s", got)
	}
	if got := BusinessDate(testBase.Add(24 * time.Hour)); got != "2026-03-03" {
		t.Fatalf("next day = %s", got)
	}
}
