package port

import (
	"context"

	"github.com/dealsbasket/marketplace-auth/internal/core/domain"
)

// UserStore exposes the identity lookups the authentication core depends on.
// The user-management subsystem owns the schema; this core only reads.
type UserStore interface {
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	GetByIdentifier(ctx context.Context, identifier string) (*domain.User, error)
}
