package port

import (
	"context"

	"github.com/dealsbasket/marketplace-auth/internal/core/domain"
)

// EventPublisher emits authentication events for downstream consumers.
// Publishing is best-effort; callers must not fail the request path on error.
type EventPublisher interface {
	PublishLoginSucceeded(ctx context.Context, event domain.LoginSucceededEvent) error
	PublishLoginFailed(ctx context.Context, event domain.LoginFailedEvent) error
	PublishTokenRevoked(ctx context.Context, event domain.TokenRevokedEvent) error
}
