package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	red "github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*red.Client, *miniredis.Miniredis) {
	t.Helper()

	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := red.NewClient(&red.Options{Addr: server.Addr()})

	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})

	return client, server
}

func TestRevocationRepository_RevokeAndCheck(t *testing.T) {
	client, _ := newTestRedis(t)

	now := time.Date(2025, 10, 12, 10, 0, 0, 0, time.UTC)
	repo := NewRevocationRepository(client, "auth:blacklist").
		WithClock(func() time.Time { return now })

	ctx := context.Background()

	if err := repo.Revoke(ctx, "token-abc", now.Add(time.Hour)); err != nil {
		t.Fatalf("Revoke returned error: %v", err)
	}

	revoked, err := repo.IsRevoked(ctx, "token-abc")
	if err != nil {
		t.Fatalf("IsRevoked returned error: %v", err)
	}
	if !revoked {
		t.Fatal("expected token to be revoked")
	}
}

func TestRevocationRepository_Miss(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewRevocationRepository(client, "auth:blacklist")

	revoked, err := repo.IsRevoked(context.Background(), "unknown-token")
	if err != nil {
		t.Fatalf("IsRevoked returned error: %v", err)
	}
	if revoked {
		t.Fatal("expected unknown token to not be revoked")
	}
}

func TestRevocationRepository_ExpiredTokenIsNoop(t *testing.T) {
	client, server := newTestRedis(t)

	now := time.Date(2025, 10, 12, 10, 0, 0, 0, time.UTC)
	repo := NewRevocationRepository(client, "auth:blacklist").
		WithClock(func() time.Time { return now })

	ctx := context.Background()

	if err := repo.Revoke(ctx, "stale-token", now.Add(-time.Minute)); err != nil {
		t.Fatalf("Revoke returned error: %v", err)
	}

	if got := len(server.Keys()); got != 0 {
		t.Fatalf("expected no keys stored for an expired token, got %d", got)
	}
}

func TestRevocationRepository_EntryExpiresWithToken(t *testing.T) {
	client, server := newTestRedis(t)

	now := time.Now().UTC()
	repo := NewRevocationRepository(client, "auth:blacklist").
		WithClock(func() time.Time { return now })

	ctx := context.Background()

	if err := repo.Revoke(ctx, "short-token", now.Add(time.Minute)); err != nil {
		t.Fatalf("Revoke returned error: %v", err)
	}

	server.FastForward(2 * time.Minute)

	revoked, err := repo.IsRevoked(ctx, "short-token")
	if err != nil {
		t.Fatalf("IsRevoked returned error: %v", err)
	}
	if revoked {
		t.Fatal("expected revocation entry to lapse with the token expiry")
	}
}

func TestRevocationRepository_EmptyToken(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewRevocationRepository(client, "")

	if err := repo.Revoke(context.Background(), " ", time.Now().Add(time.Hour)); err == nil {
		t.Fatal("expected error for empty token")
	}
	if _, err := repo.IsRevoked(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty token")
	}
}
