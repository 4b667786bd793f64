package ids

import (
	"context"
	"errors"
	"regexp"
	"testing"
)

var refPattern = regexp.MustCompile(`^[A-Z]{2}\d{6}$`)

func TestAllocateFirstAttempt(t *testing.T) {
	alloc, err := NewOrderRefAllocator("SP")
	if err != nil {
		t.Fatalf("NewOrderRefAllocator: %v", err)
	}

	calls := 0
	ref, err := alloc.Allocate(context.Background(), func(ctx context.Context, ref string) (bool, error) {
		calls++
		return false, nil
	})
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single existence check, got %d", calls)
	}
	if !refPattern.MatchString(ref) {
		t.Fatalf("reference %q does not match ^[A-Z]{2}\\d{6}$", ref)
	}
	if ref == alloc.Sentinel {
		t.Fatalf("fresh allocation must not be the sentinel")
	}
}

func TestAllocateRetriesOnCollision(t *testing.T) {
	alloc, err := NewOrderRefAllocator("SP")
	if err != nil {
		t.Fatalf("NewOrderRefAllocator: %v", err)
	}

	calls := 0
	ref, err := alloc.Allocate(context.Background(), func(ctx context.Context, ref string) (bool, error) {
		calls++
		return calls < 4, nil
	})
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if calls != 4 {
		t.Fatalf("expected 4 attempts, got %d", calls)
	}
	if !refPattern.MatchString(ref) {
		t.Fatalf("reference %q does not match format", ref)
	}
}

func TestAllocateExhaustionIsReportable(t *testing.T) {
	alloc, err := NewOrderRefAllocator("SP")
	if err != nil {
		t.Fatalf("NewOrderRefAllocator: %v", err)
	}

	calls := 0
	ref, err := alloc.Allocate(context.Background(), func(ctx context.Context, ref string) (bool, error) {
		calls++
		return true, nil
	})
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
	if calls != DefaultMaxAttempts {
		t.Fatalf("expected %d attempts, got %d", DefaultMaxAttempts, calls)
	}
	if ref != "SP000000" {
		t.Fatalf("expected sentinel SP000000, got %q", ref)
	}
}

func TestAllocatePropagatesCheckError(t *testing.T) {
	alloc, err := NewOrderRefAllocator("SP")
	if err != nil {
		t.Fatalf("NewOrderRefAllocator: %v", err)
	}

	checkErr := errors.New("connection reset")
	if _, err := alloc.Allocate(context.Background(), func(ctx context.Context, ref string) (bool, error) {
		return false, checkErr
	}); !errors.Is(err, checkErr) {
		t.Fatalf("expected the check error, got %v", err)
	}
}

func TestAllocateHonorsContext(t *testing.T) {
	alloc, err := NewOrderRefAllocator("SP")
	if err != nil {
		t.Fatalf("NewOrderRefAllocator: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := alloc.Allocate(ctx, func(ctx context.Context, ref string) (bool, error) {
		return true, nil
	}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewOrderRefAllocatorRejectsBadPrefix(t *testing.T) {
	for _, prefix := range []string{"", "S", "sp", "SPX", "S1"} {
		if _, err := NewOrderRefAllocator(prefix); err == nil {
			t.Fatalf("expected error for prefix %q", prefix)
		}
	}
}
