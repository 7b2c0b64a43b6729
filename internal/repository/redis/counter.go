package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/dealsbasket/marketplace-auth/internal/core/port"
)

const defaultCounterPrefix = "auth:counter"

// CounterRepository implements fixed-window counters on Redis. INCR opens the
// window on the first hit; EXPIRE NX pins the window end so later increments
// within the same window never extend it.
type CounterRepository struct {
	client *red.Client
	prefix string
	now    func() time.Time
}

// NewCounterRepository wires a Redis client into a counter repository.
func NewCounterRepository(client *red.Client, keyPrefix string) *CounterRepository {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultCounterPrefix
	}

	return &CounterRepository{
		client: client,
		prefix: prefix,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic testing.
func (r *CounterRepository) WithClock(clock func() time.Time) *CounterRepository {
	if clock != nil {
		r.now = clock
	}
	return r
}

// Peek returns the current count and the window end for the key.
func (r *CounterRepository) Peek(ctx context.Context, key string) (int, time.Time, error) {
	storageKey, err := r.key(key)
	if err != nil {
		return 0, time.Time{}, err
	}

	pipe := r.client.Pipeline()
	getCmd := pipe.Get(ctx, storageKey)
	ttlCmd := pipe.TTL(ctx, storageKey)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, red.Nil) {
		return 0, time.Time{}, fmt.Errorf("redis peek counter: %w", err)
	}

	count, err := getCmd.Int()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return 0, time.Time{}, nil
		}
		return 0, time.Time{}, fmt.Errorf("redis counter value: %w", err)
	}

	windowEnd := time.Time{}
	if ttl, err := ttlCmd.Result(); err == nil && ttl > 0 {
		windowEnd = r.now().Add(ttl)
	}

	return count, windowEnd, nil
}

// Increment adds one to the counter, starting the window TTL only when the
// key is created.
func (r *CounterRepository) Increment(ctx context.Context, key string, window time.Duration) (int, time.Time, error) {
	if window <= 0 {
		return 0, time.Time{}, errors.New("window must be positive")
	}

	storageKey, err := r.key(key)
	if err != nil {
		return 0, time.Time{}, err
	}

	pipe := r.client.Pipeline()
	incrCmd := pipe.Incr(ctx, storageKey)
	pipe.ExpireNX(ctx, storageKey, window)
	ttlCmd := pipe.TTL(ctx, storageKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, time.Time{}, fmt.Errorf("redis increment counter: %w", err)
	}

	count := int(incrCmd.Val())

	windowEnd := r.now().Add(window)
	if ttl, err := ttlCmd.Result(); err == nil && ttl > 0 {
		windowEnd = r.now().Add(ttl)
	}

	return count, windowEnd, nil
}

func (r *CounterRepository) key(key string) (string, error) {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return "", errors.New("key must not be empty")
	}
	return fmt.Sprintf("%s:%s", r.prefix, trimmed), nil
}

var _ port.CounterStore = (*CounterRepository)(nil)
