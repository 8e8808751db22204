package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/modmarket/auth-service/internal/core/domain"
	"github.com/modmarket/auth-service/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for
// development environments without a broker.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, userID string, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("Stub event published",
		zap.String("event_type", eventType),
		zap.String("user_id", userID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishUserRegistered logs user.registered events.
func (p *StubPublisher) PublishUserRegistered(_ context.Context, event domain.UserRegisteredEvent) error {
	payload := map[string]any{
		"user_id":       event.UserID,
		"username":      event.Username,
		"email":         event.Email,
		"registered_at": event.RegisteredAt,
		"metadata":      event.Metadata,
	}
	p.logEvent("user.registered", event.UserID, event.RegisteredAt, payload)
	return nil
}

// PublishPasswordChanged logs user.password.changed events.
func (p *StubPublisher) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	payload := map[string]any{
		"user_id":        event.UserID,
		"changed_at":     event.ChangedAt,
		"changed_by":     event.ChangedBy,
		"tokens_revoked": event.TokensRevoked,
		"metadata":       event.Metadata,
	}
	p.logEvent("user.password.changed", event.UserID, event.ChangedAt, payload)
	return nil
}

// PublishReplayDetected logs token.replay.detected events.
func (p *StubPublisher) PublishReplayDetected(_ context.Context, event domain.ReplayDetectedEvent) error {
	payload := map[string]any{
		"user_id":       event.UserID,
		"token_id":      event.TokenID,
		"detected_at":   event.DetectedAt,
		"links_revoked": event.LinksRevoked,
		"ip_address":    event.IPAddress,
		"metadata":      event.Metadata,
	}
	p.logEvent("token.replay.detected", event.UserID, event.DetectedAt, payload)
	return nil
}

// PublishUserDeactivated logs user.deactivated events.
func (p *StubPublisher) PublishUserDeactivated(_ context.Context, event domain.UserDeactivatedEvent) error {
	payload := map[string]any{
		"user_id":        event.UserID,
		"deactivated_by": event.DeactivatedBy,
		"deactivated_at": event.DeactivatedAt,
		"metadata":       event.Metadata,
	}
	p.logEvent("user.deactivated", event.UserID, event.DeactivatedAt, payload)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
