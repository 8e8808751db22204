package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/modmarket/auth-service/internal/core/domain"
	"github.com/modmarket/auth-service/internal/core/port"
	"github.com/modmarket/auth-service/internal/infra/config"
)

const schemaVersion = "1.0"

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
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

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, userID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: eventType,
		UserID:    userID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata: envelopeMetadata{
			"service":     p.appCfg.Name,
			"environment": p.appCfg.Env,
		},
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Key:   sarama.StringEncoder(userID),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishUserRegistered publishes user.registered events.
func (p *EventPublisher) PublishUserRegistered(ctx context.Context, event domain.UserRegisteredEvent) error {
	payload := struct {
		UserID       string         `json:"user_id"`
		Username     string         `json:"username"`
		Email        string         `json:"email"`
		RegisteredAt time.Time      `json:"registered_at"`
		Metadata     map[string]any `json:"metadata,omitempty"`
	}{
		UserID:       event.UserID,
		Username:     event.Username,
		Email:        event.Email,
		RegisteredAt: event.RegisteredAt.UTC(),
		Metadata:     event.Metadata,
	}

	return p.publish(ctx, event.EventID, "user.registered", event.UserID, event.RegisteredAt, payload)
}

// PublishPasswordChanged publishes user.password.changed events.
func (p *EventPublisher) PublishPasswordChanged(ctx context.Context, event domain.PasswordChangedEvent) error {
	payload := struct {
		UserID        string         `json:"user_id"`
		ChangedAt     time.Time      `json:"changed_at"`
		ChangedBy     string         `json:"changed_by"`
		TokensRevoked int            `json:"tokens_revoked"`
		Metadata      map[string]any `json:"metadata,omitempty"`
	}{
		UserID:        event.UserID,
		ChangedAt:     event.ChangedAt.UTC(),
		ChangedBy:     event.ChangedBy,
		TokensRevoked: event.TokensRevoked,
		Metadata:      event.Metadata,
	}

	return p.publish(ctx, event.EventID, "user.password.changed", event.UserID, event.ChangedAt, payload)
}

// PublishReplayDetected publishes token.replay.detected events.
func (p *EventPublisher) PublishReplayDetected(ctx context.Context, event domain.ReplayDetectedEvent) error {
	payload := struct {
		UserID       string         `json:"user_id"`
		TokenID      string         `json:"token_id"`
		DetectedAt   time.Time      `json:"detected_at"`
		LinksRevoked int            `json:"links_revoked"`
		IPAddress    *string        `json:"ip_address,omitempty"`
		Metadata     map[string]any `json:"metadata,omitempty"`
	}{
		UserID:       event.UserID,
		TokenID:      event.TokenID,
		DetectedAt:   event.DetectedAt.UTC(),
		LinksRevoked: event.LinksRevoked,
		IPAddress:    event.IPAddress,
		Metadata:     event.Metadata,
	}

	return p.publish(ctx, event.EventID, "token.replay.detected", event.UserID, event.DetectedAt, payload)
}

// PublishUserDeactivated publishes user.deactivated events.
func (p *EventPublisher) PublishUserDeactivated(ctx context.Context, event domain.UserDeactivatedEvent) error {
	payload := struct {
		UserID        string         `json:"user_id"`
		DeactivatedBy string         `json:"deactivated_by"`
		DeactivatedAt time.Time      `json:"deactivated_at"`
		Metadata      map[string]any `json:"metadata,omitempty"`
	}{
		UserID:        event.UserID,
		DeactivatedBy: event.DeactivatedBy,
		DeactivatedAt: event.DeactivatedAt.UTC(),
		Metadata:      event.Metadata,
	}

	return p.publish(ctx, event.EventID, "user.deactivated", event.UserID, event.DeactivatedAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
