package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dealsbasket/marketplace-auth/internal/core/domain"
	"github.com/dealsbasket/marketplace-auth/internal/core/port"
	"github.com/dealsbasket/marketplace-auth/internal/infra/config"
	"github.com/dealsbasket/marketplace-auth/internal/infra/logger"
)

const schemaVersion = "1.0"

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, log *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: log}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	UserID    string           `json:"user_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType string, userID int64, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	if reqID, ok := ctx.Value(logger.RequestIDKey{}).(string); ok && reqID != "" {
		metadata["request_id"] = reqID
	}

	subject := ""
	if userID > 0 {
		subject = strconv.FormatInt(userID, 10)
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: eventType,
		UserID:    subject,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishLoginSucceeded publishes auth.login.succeeded events.
func (p *EventPublisher) PublishLoginSucceeded(ctx context.Context, event domain.LoginSucceededEvent) error {
	payload := struct {
		UserID    int64       `json:"user_id"`
		Username  string      `json:"username"`
		Role      domain.Role `json:"role"`
		IP        string      `json:"ip,omitempty"`
		UserAgent string      `json:"user_agent,omitempty"`
		At        time.Time   `json:"at"`
	}{
		UserID:    event.UserID,
		Username:  event.Username,
		Role:      event.Role,
		IP:        event.IP,
		UserAgent: event.UserAgent,
		At:        eventTime(event.At),
	}

	return p.publish(ctx, event.EventID, "auth.login.succeeded", event.UserID, event.At, payload)
}

// PublishLoginFailed publishes auth.login.failed events. The identifier is
// masked before it leaves the process.
func (p *EventPublisher) PublishLoginFailed(ctx context.Context, event domain.LoginFailedEvent) error {
	payload := struct {
		Identifier string    `json:"identifier"`
		Reason     string    `json:"reason"`
		IP         string    `json:"ip,omitempty"`
		UserAgent  string    `json:"user_agent,omitempty"`
		At         time.Time `json:"at"`
	}{
		Identifier: logger.MaskEmail(event.Identifier),
		Reason:     event.Reason,
		IP:         event.IP,
		UserAgent:  event.UserAgent,
		At:         eventTime(event.At),
	}

	return p.publish(ctx, event.EventID, "auth.login.failed", 0, event.At, payload)
}

// PublishTokenRevoked publishes auth.token.revoked events.
func (p *EventPublisher) PublishTokenRevoked(ctx context.Context, event domain.TokenRevokedEvent) error {
	payload := struct {
		UserID int64            `json:"user_id"`
		Kind   domain.TokenKind `json:"token_kind"`
		Reason string           `json:"reason"`
		At     time.Time        `json:"at"`
	}{
		UserID: event.UserID,
		Kind:   event.Kind,
		Reason: event.Reason,
		At:     eventTime(event.At),
	}

	return p.publish(ctx, event.EventID, "auth.token.revoked", event.UserID, event.At, payload)
}

func eventTime(at time.Time) time.Time {
	if at.IsZero() {
		return time.Now().UTC()
	}
	return at.UTC()
}

var _ port.EventPublisher = (*EventPublisher)(nil)
