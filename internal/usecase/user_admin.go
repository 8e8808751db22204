package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/modmarket/auth-service/internal/core/domain"
	"github.com/modmarket/auth-service/internal/core/port"
	"github.com/modmarket/auth-service/internal/repository"
)

var (
	// ErrInvalidRole indicates an unrecognised role value.
	ErrInvalidRole = errors.New("invalid role")
	// ErrSelfDeletion indicates an administrator attempted to delete their own account.
	ErrSelfDeletion = errors.New("cannot delete own account")
)

// UserService covers the administrative account operations.
type UserService struct {
	users     port.UserRepository
	tokens    port.TokenRepository
	publisher port.EventPublisher
	log       *zap.Logger
	now       func() time.Time
}

// NewUserService constructs a user administration service.
func NewUserService(users port.UserRepository, tokens port.TokenRepository, publisher port.EventPublisher, log *zap.Logger) *UserService {
	if log == nil {
		log = zap.NewNop()
	}
	return &UserService{
		users:     users,
		tokens:    tokens,
		publisher: publisher,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the service clock for deterministic tests.
func (s *UserService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// GetUser returns a single account without credential material.
func (s *UserService) GetUser(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	sanitized := user.Sanitized()
	return &sanitized, nil
}

// ListUsers returns a page of accounts plus the unpaged total.
func (s *UserService) ListUsers(ctx context.Context, filter port.UserFilter) ([]domain.User, int, error) {
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	users, err := s.users.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}

	total, err := s.users.Count(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	for i := range users {
		users[i] = users[i].Sanitized()
	}

	return users, total, nil
}

// ActivateUser re-enables a deactivated account. Existing sessions are not
// restored; the user must log in again.
func (s *UserService) ActivateUser(ctx context.Context, id string) error {
	if err := s.users.SetActive(ctx, id, true); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("activate user: %w", err)
	}
	return nil
}

// DeactivateUser disables an account and revokes every live session.
func (s *UserService) DeactivateUser(ctx context.Context, actorID, id string) error {
	if err := s.users.SetActive(ctx, id, false); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("deactivate user: %w", err)
	}

	now := s.now()
	revoked, err := s.tokens.RevokeRefreshTokensForUser(ctx, id, now)
	if err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}

	s.log.Info("user deactivated",
		zap.String("user_id", id),
		zap.String("actor_id", actorID),
		zap.Int("sessions_revoked", revoked),
	)

	s.publishDeactivated(ctx, id, actorID, now)

	return nil
}

// ChangeRole updates the account's authority level. Access tokens issued
// before the change keep carrying only identity, so the new role takes
// effect on the next guarded request.
func (s *UserService) ChangeRole(ctx context.Context, id string, role domain.Role) error {
	if !role.Valid() {
		return ErrInvalidRole
	}

	if err := s.users.UpdateRole(ctx, id, role); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("update role: %w", err)
	}

	return nil
}

// DeleteUser removes an account after revoking its sessions. Administrators
// cannot delete themselves.
func (s *UserService) DeleteUser(ctx context.Context, actorID, id string) error {
	if actorID != "" && actorID == id {
		return ErrSelfDeletion
	}

	if _, err := s.tokens.RevokeRefreshTokensForUser(ctx, id, s.now()); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}

	if err := s.users.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("delete user: %w", err)
	}

	return nil
}

func (s *UserService) publishDeactivated(ctx context.Context, userID, actorID string, at time.Time) {
	if s.publisher == nil {
		return
	}
	event := domain.UserDeactivatedEvent{
		EventID:       uuid.NewString(),
		UserID:        userID,
		DeactivatedBy: actorID,
		DeactivatedAt: at,
	}
	if err := s.publisher.PublishUserDeactivated(ctx, event); err != nil {
		s.log.Warn("publish user deactivated event",
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}
}
