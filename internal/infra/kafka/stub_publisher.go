package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dealsbasket/marketplace-auth/internal/core/domain"
	"github.com/dealsbasket/marketplace-auth/internal/core/port"
	"github.com/dealsbasket/marketplace-auth/internal/infra/logger"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for development environments.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(log *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: log}
}

func (p *StubPublisher) logEvent(eventType string, userID int64, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("Stub event published",
		zap.String("event_type", eventType),
		zap.Int64("user_id", userID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishLoginSucceeded logs auth.login.succeeded events.
func (p *StubPublisher) PublishLoginSucceeded(_ context.Context, event domain.LoginSucceededEvent) error {
	payload := map[string]any{
		"username":   event.Username,
		"role":       event.Role,
		"ip":         logger.MaskIP(event.IP),
		"user_agent": event.UserAgent,
	}
	p.logEvent("auth.login.succeeded", event.UserID, event.At, payload)
	return nil
}

// PublishLoginFailed logs auth.login.failed events.
func (p *StubPublisher) PublishLoginFailed(_ context.Context, event domain.LoginFailedEvent) error {
	payload := map[string]any{
		"identifier": logger.MaskEmail(event.Identifier),
		"reason":     event.Reason,
		"ip":         logger.MaskIP(event.IP),
		"user_agent": event.UserAgent,
	}
	p.logEvent("auth.login.failed", 0, event.At, payload)
	return nil
}

// PublishTokenRevoked logs auth.token.revoked events.
func (p *StubPublisher) PublishTokenRevoked(_ context.Context, event domain.TokenRevokedEvent) error {
	payload := map[string]any{
		"token_kind": event.Kind,
		"reason":     event.Reason,
	}
	p.logEvent("auth.token.revoked", event.UserID, event.At, payload)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
