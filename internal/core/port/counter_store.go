package port

import (
	"context"
	"time"
)

// CounterStore maintains fixed-window counters keyed by arbitrary strings.
// The window for a key starts on its first increment and the counter vanishes
// once the window elapses. Concurrent increments to the same key must not lose
// updates.
type CounterStore interface {
	// Peek returns the current count and the moment the active window ends.
	// A missing key reports zero with a zero expiry.
	Peek(ctx context.Context, key string) (int, time.Time, error)
	// Increment adds one to the counter, starting a new window when the key is
	// absent, and returns the post-increment count and window end.
	Increment(ctx context.Context, key string, window time.Duration) (int, time.Time, error)
}
