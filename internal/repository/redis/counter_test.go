package redis

import (
	"context"
	"testing"
	"time"
)

func TestCounterRepository_IncrementAndPeek(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewCounterRepository(client, "auth:counter")

	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		count, _, err := repo.Increment(ctx, "login:192.0.2.1", 5*time.Minute)
		if err != nil {
			t.Fatalf("Increment returned error: %v", err)
		}
		if count != i {
			t.Fatalf("expected count %d, got %d", i, count)
		}
	}

	count, windowEnd, err := repo.Peek(ctx, "login:192.0.2.1")
	if err != nil {
		t.Fatalf("Peek returned error: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected count 3, got %d", count)
	}
	if windowEnd.IsZero() {
		t.Fatal("expected a window end for an active counter")
	}
}

func TestCounterRepository_PeekMissingKey(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewCounterRepository(client, "auth:counter")

	count, windowEnd, err := repo.Peek(context.Background(), "absent")
	if err != nil {
		t.Fatalf("Peek returned error: %v", err)
	}
	if count != 0 || !windowEnd.IsZero() {
		t.Fatalf("expected empty result, got count=%d windowEnd=%v", count, windowEnd)
	}
}

func TestCounterRepository_WindowExpires(t *testing.T) {
	client, server := newTestRedis(t)
	repo := NewCounterRepository(client, "auth:counter")

	ctx := context.Background()

	if _, _, err := repo.Increment(ctx, "k", time.Minute); err != nil {
		t.Fatalf("Increment returned error: %v", err)
	}

	server.FastForward(2 * time.Minute)

	count, _, err := repo.Peek(ctx, "k")
	if err != nil {
		t.Fatalf("Peek returned error: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected counter to vanish with the window, got %d", count)
	}

	count, _, err = repo.Increment(ctx, "k", time.Minute)
	if err != nil {
		t.Fatalf("Increment returned error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected fresh window to start at 1, got %d", count)
	}
}

func TestCounterRepository_WindowNotExtendedByLaterHits(t *testing.T) {
	client, server := newTestRedis(t)
	repo := NewCounterRepository(client, "auth:counter")

	ctx := context.Background()

	if _, _, err := repo.Increment(ctx, "k", time.Minute); err != nil {
		t.Fatalf("Increment returned error: %v", err)
	}

	server.FastForward(30 * time.Second)

	if _, _, err := repo.Increment(ctx, "k", time.Minute); err != nil {
		t.Fatalf("Increment returned error: %v", err)
	}

	remaining := server.TTL("auth:counter:k")
	if remaining <= 0 || remaining > 30*time.Second {
		t.Fatalf("expected remaining window within (0, 30s], got %v", remaining)
	}
}
