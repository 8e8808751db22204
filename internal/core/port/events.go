package port

import (
	"context"

	"github.com/modmarket/auth-service/internal/core/domain"
)

// EventPublisher emits authentication lifecycle events for downstream
// consumers (notification service, fraud monitoring).
type EventPublisher interface {
	PublishUserRegistered(ctx context.Context, event domain.UserRegisteredEvent) error
	PublishPasswordChanged(ctx context.Context, event domain.PasswordChangedEvent) error
	PublishReplayDetected(ctx context.Context, event domain.ReplayDetectedEvent) error
	PublishUserDeactivated(ctx context.Context, event domain.UserDeactivatedEvent) error
}
