package security

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dealsbasket/marketplace-auth/internal/core/port"
)

type counterEntry struct {
	count     int
	windowEnd time.Time
}

// FixedWindowCounter is an in-process fixed-window counter store used for
// rate limiting and failed-login tracking. A key's window opens on its first
// increment and the counter disappears once the window elapses; stale entries
// are swept opportunistically on access.
type FixedWindowCounter struct {
	mu      sync.Mutex
	entries map[string]counterEntry
	now     func() time.Time
}

// NewFixedWindowCounter constructs an empty counter store.
func NewFixedWindowCounter() *FixedWindowCounter {
	return &FixedWindowCounter{
		entries: make(map[string]counterEntry),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic testing.
func (c *FixedWindowCounter) WithClock(clock func() time.Time) *FixedWindowCounter {
	if clock != nil {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.now = clock
	}
	return c
}

// Peek returns the current count and window end for the key without mutating it.
func (c *FixedWindowCounter) Peek(_ context.Context, key string) (int, time.Time, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return 0, time.Time{}, fmt.Errorf("counter: key is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.sweepLocked()
	entry, ok := c.entries[key]
	if !ok {
		return 0, time.Time{}, nil
	}
	return entry.count, entry.windowEnd, nil
}

// Increment adds one to the counter for key, opening a fresh window when the
// key is absent or its previous window elapsed.
func (c *FixedWindowCounter) Increment(_ context.Context, key string, window time.Duration) (int, time.Time, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return 0, time.Time{}, fmt.Errorf("counter: key is required")
	}
	if window <= 0 {
		return 0, time.Time{}, fmt.Errorf("counter: window must be positive")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.sweepLocked()

	entry, ok := c.entries[key]
	if !ok || !entry.windowEnd.After(now) {
		entry = counterEntry{count: 0, windowEnd: now.Add(window)}
	}
	entry.count++
	c.entries[key] = entry

	return entry.count, entry.windowEnd, nil
}

func (c *FixedWindowCounter) sweepLocked() {
	now := c.now()
	for key, entry := range c.entries {
		if !entry.windowEnd.After(now) {
			delete(c.entries, key)
		}
	}
}

var _ port.CounterStore = (*FixedWindowCounter)(nil)
