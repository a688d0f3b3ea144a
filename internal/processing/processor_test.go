package processing

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLimiterBoundsConcurrency(t *testing.T) {
	l := New(1)
	release, err := l.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if l.InUse() != 1 || l.Capacity() != 1 {
		t.Fatalf("in use = %d capacity = %d", l.InUse(), l.Capacity())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := l.Acquire(ctx); !errors.Is(err, ErrBusy) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Acquire() error = %v, want ErrBusy wrapping deadline", err)
	}

	release()
	release2, err := l.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() after release error = %v", err)
	}
	release2()
	if l.InUse() != 0 {
		t.Fatalf("in use = %d, want 0", l.InUse())
	}
}

func TestNewClampsWorkers(t *testing.T) {
	if New(0).Capacity() != 1 {
		t.Fatalf("expected minimum capacity of 1")
	}
}
