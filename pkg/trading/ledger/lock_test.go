package ledger

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestUserLockSerializesPerUser(t *testing.T) {
	locks := NewUserLock()
	ctx := context.Background()

	unlock, err := locks.Lock(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}

	// another user is not blocked
	other, err := locks.Lock(ctx, "u2")
	if err != nil {
		t.Fatal(err)
	}
	other()

	timeout, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, err := locks.Lock(timeout, "u1"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded while held, got %v", err)
	}

	unlock()
	unlock() // second release is a no-op

	again, err := locks.Lock(ctx, "u1")
	if err != nil {
		t.Fatalf("expected lock after release, got %v", err)
	}
	again()

	if locks.Held() != 0 {
		t.Errorf("expected no slots left, got %d", locks.Held())
	}
}
