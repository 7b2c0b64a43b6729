package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/dealsbasket/marketplace-auth/internal/core/port"
)

const defaultRevocationPrefix = "auth:blacklist"

// RevocationRepository is a Redis-backed revocation store for multi-instance
// deployments. Tokens are stored under a digest of the raw token string with a
// TTL matching the token's remaining lifetime, so Redis itself handles the
// expiry sweep.
type RevocationRepository struct {
	client *red.Client
	prefix string
	now    func() time.Time
}

// NewRevocationRepository wires a Redis client into a revocation repository.
func NewRevocationRepository(client *red.Client, keyPrefix string) *RevocationRepository {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultRevocationPrefix
	}

	return &RevocationRepository{
		client: client,
		prefix: prefix,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic testing.
func (r *RevocationRepository) WithClock(clock func() time.Time) *RevocationRepository {
	if clock != nil {
		r.now = clock
	}
	return r
}

// Revoke stores the token until its natural expiry. A token already past its
// expiry is dropped silently, matching the in-memory store's sweep behaviour.
func (r *RevocationRepository) Revoke(ctx context.Context, token string, expiresAt time.Time) error {
	key, err := r.key(token)
	if err != nil {
		return err
	}

	ttl := expiresAt.Sub(r.now())
	if ttl <= 0 {
		return nil
	}

	if err := r.client.Set(ctx, key, expiresAt.UTC().Unix(), ttl).Err(); err != nil {
		return fmt.Errorf("redis set revoked token: %w", err)
	}

	return nil
}

// IsRevoked reports whether the token has an unexpired revocation entry.
func (r *RevocationRepository) IsRevoked(ctx context.Context, token string) (bool, error) {
	key, err := r.key(token)
	if err != nil {
		return false, err
	}

	if err := r.client.Get(ctx, key).Err(); err != nil {
		if errors.Is(err, red.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis get revoked token: %w", err)
	}

	return true, nil
}

func (r *RevocationRepository) key(token string) (string, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return "", errors.New("token must not be empty")
	}

	sum := sha256.Sum256([]byte(trimmed))
	return fmt.Sprintf("%s:%s", r.prefix, hex.EncodeToString(sum[:])), nil
}

var _ port.RevocationStore = (*RevocationRepository)(nil)
