package port

import (
	"context"
	"time"
)

// RevocationStore tracks revoked tokens until their natural expiry. Revoking an
// already-revoked token is a no-op; a Revoke followed by IsRevoked from any
// concurrent caller must observe the revocation.
//
// The default implementation is an in-process map, which does not share state
// across instances. Multi-instance deployments should swap in the Redis-backed
// implementation.
type RevocationStore interface {
	Revoke(ctx context.Context, token string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, token string) (bool, error)
}
