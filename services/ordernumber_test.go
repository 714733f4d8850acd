package services

import (
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

var orderNumberPattern = regexp.MustCompile(`^R-\d{6}-[A-Z0-9]{6}$`)

func TestGenerateOrderNumberFormat(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 19, 23, 59, 0, 0, time.UTC)
	got, err := GenerateOrderNumber(now, 3, func(string) (bool, error) { return false, nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !orderNumberPattern.MatchString(got) {
		t.Fatalf("unexpected format %q", got)
	}
	if got[:9] != "R-261019-" {
		t.Fatalf("expected date prefix R-261019-, got %q", got)
	}
}

func TestGenerateOrderNumberRetriesOnCollision(t *testing.T) {
	t.Parallel()

	calls := 0
	got, err := GenerateOrderNumber(testStart, 5, func(string) (bool, error) {
		calls++
		return calls < 3, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 || got == "" {
		t.Fatalf("expected success on third attempt, calls=%d got=%q", calls, got)
	}
}

func TestGenerateOrderNumberExhausted(t *testing.T) {
	t.Parallel()

	calls := 0
	_, err := GenerateOrderNumber(testStart, 4, func(string) (bool, error) {
		calls++
		return true, nil
	})
	if !errors.Is(err, ErrOrderNumberExhausted) {
		t.Fatalf("expected ErrOrderNumberExhausted, got %v", err)
	}
	if calls != 4 {
		t.Fatalf("expected 4 attempts, got %d", calls)
	}
}

func TestGenerateOrderNumberLookupError(t *testing.T) {
	t.Parallel()

	boom := errors.New("db down")
	_, err := GenerateOrderNumber(testStart, 4, func(string) (bool, error) { return false, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected lookup error to propagate, got %v", err)
	}
}

// 1000 並行生成しても番号が重複しない
func TestGenerateOrderNumberConcurrentUnique(t *testing.T) {
	t.Parallel()

	const n = 1000
	var mu sync.Mutex
	reserved := make(map[string]bool, n)
	reserve := func(candidate string) (bool, error) {
		mu.Lock()
		defer mu.Unlock()
		if reserved[candidate] {
			return true, nil
		}
		reserved[candidate] = true
		return false, nil
	}

	results := make([]string, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			number, err := GenerateOrderNumber(testStart, 10, reserve)
			results[i] = number
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("generation failed: %v", err)
	}

	seen := make(map[string]bool, n)
	for _, number := range results {
		if !orderNumberPattern.MatchString(number) {
			t.Fatalf("unexpected format %q", number)
		}
		if seen[number] {
			t.Fatalf("duplicate order number %q", number)
		}
		seen[number] = true
	}
	if len(seen) != n {
		t.Fatalf("expected %d unique numbers, got %d", n, len(seen))
	}
}
