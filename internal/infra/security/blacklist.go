package security

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dealsbasket/marketplace-auth/internal/core/port"
)

// Blacklist is an in-process revocation store mapping raw token strings to
// their original expiry. Entries past their expiry are swept opportunistically
// on every Revoke and IsRevoked call, so the map never grows unbounded from
// naturally-expired tokens.
//
// State is process-local; every instance of the service sees its own
// blacklist. See port.RevocationStore for the shared-store alternative.
type Blacklist struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewBlacklist constructs an empty in-memory blacklist.
func NewBlacklist() *Blacklist {
	return &Blacklist{
		entries: make(map[string]time.Time),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic testing.
func (b *Blacklist) WithClock(clock func() time.Time) *Blacklist {
	if clock != nil {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.now = clock
	}
	return b
}

// Revoke records the token until expiresAt. Revoking an already-revoked token
// is a no-op.
func (b *Blacklist) Revoke(_ context.Context, token string, expiresAt time.Time) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("blacklist: token is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[token] = expiresAt.UTC()
	b.sweepLocked()
	return nil
}

// IsRevoked reports whether the token has been revoked and has not yet passed
// its natural expiry.
func (b *Blacklist) IsRevoked(_ context.Context, token string) (bool, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return false, fmt.Errorf("blacklist: token is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.sweepLocked()
	_, revoked := b.entries[token]
	return revoked, nil
}

// Len reports the number of live entries, for observability.
func (b *Blacklist) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

func (b *Blacklist) sweepLocked() {
	now := b.now()
	for token, expiresAt := range b.entries {
		if !expiresAt.After(now) {
			delete(b.entries, token)
		}
	}
}

var _ port.RevocationStore = (*Blacklist)(nil)
