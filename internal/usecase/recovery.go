package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/modmarket/auth-service/internal/core/domain"
	"github.com/modmarket/auth-service/internal/core/port"
	"github.com/modmarket/auth-service/internal/infra/config"
	"github.com/modmarket/auth-service/internal/infra/security"
	"github.com/modmarket/auth-service/internal/repository"
)

var (
	// ErrUserNotFound indicates no account matches the supplied username.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidRecoveryAnswer indicates the recovery answer does not match.
	ErrInvalidRecoveryAnswer = errors.New("invalid recovery answer")
)

// RecoveryService drives the recovery-question password reset flow.
type RecoveryService struct {
	cfg               *config.AppConfig
	users             port.UserRepository
	tokens            port.TokenRepository
	tx                port.Transactor
	publisher         port.EventPublisher
	passwordValidator *security.PasswordValidator
	log               *zap.Logger
	now               func() time.Time
}

// NewRecoveryService constructs a recovery service.
func NewRecoveryService(
	cfg *config.AppConfig,
	users port.UserRepository,
	tokens port.TokenRepository,
	tx port.Transactor,
	publisher port.EventPublisher,
	validator *security.PasswordValidator,
	log *zap.Logger,
) *RecoveryService {
	if validator == nil {
		validator = security.DefaultPasswordValidator()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RecoveryService{
		cfg:               cfg,
		users:             users,
		tokens:            tokens,
		tx:                tx,
		publisher:         publisher,
		passwordValidator: validator,
		log:               log,
		now:               func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the service clock for deterministic tests.
func (s *RecoveryService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// GetRecoveryQuestion returns the recovery question for a username.
func (s *RecoveryService) GetRecoveryQuestion(ctx context.Context, username string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", ErrUserNotFound
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrUserNotFound
		}
		return "", fmt.Errorf("lookup user: %w", err)
	}

	return user.RecoveryQuestion, nil
}

// VerifyRecoveryAnswer checks the recovery answer and, when it matches,
// issues a single-use password reset token.
func (s *RecoveryService) VerifyRecoveryAnswer(ctx context.Context, username, answer string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", ErrUserNotFound
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrUserNotFound
		}
		return "", fmt.Errorf("lookup user: %w", err)
	}

	if !security.VerifyAnswer(answer, user.RecoveryAnswerHash) {
		return "", ErrInvalidRecoveryAnswer
	}

	plaintext, err := security.GenerateSecureToken(32)
	if err != nil {
		return "", fmt.Errorf("generate reset token: %w", err)
	}

	now := s.now()
	token := domain.OneTimeToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: security.HashToken(plaintext),
		Purpose:   domain.PurposePasswordReset,
		CreatedAt: now,
		ExpiresAt: now.Add(s.passwordResetTTL()),
	}
	if err := s.tokens.CreateOneTimeToken(ctx, token); err != nil {
		return "", fmt.Errorf("store reset token: %w", err)
	}

	return plaintext, nil
}

// ResetPassword redeems a reset token and replaces the password. Consuming
// the token, updating the hash, and revoking every session commit together;
// a reset must never leave an old session alive.
func (s *RecoveryService) ResetPassword(ctx context.Context, plaintext, newPassword string) error {
	plaintext = strings.TrimSpace(plaintext)
	if plaintext == "" {
		return ErrInvalidOneTimeToken
	}

	now := s.now()
	hash := security.HashToken(plaintext)
	token, err := s.tokens.GetOneTimeTokenByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidOneTimeToken
		}
		return fmt.Errorf("lookup reset token: %w", err)
	}

	if token.Purpose != domain.PurposePasswordReset {
		return ErrInvalidOneTimeToken
	}
	if token.ConsumedAt != nil {
		return ErrOneTimeTokenUsed
	}
	if token.IsExpired(now) {
		return ErrOneTimeTokenExpired
	}

	user, err := s.users.GetByID(ctx, token.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidOneTimeToken
		}
		return fmt.Errorf("lookup user: %w", err)
	}
	if !user.IsActive {
		return ErrInactiveAccount
	}

	if err := s.passwordValidator.Validate(newPassword); err != nil {
		return fmt.Errorf("%w: %v", ErrPasswordPolicyViolation, err)
	}

	passwordHash, err := security.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	var revoked int
	err = s.tx.WithinTx(ctx, func(users port.UserRepository, tokens port.TokenRepository) error {
		if err := tokens.ConsumeOneTimeToken(ctx, token.ID, now); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrOneTimeTokenUsed
			}
			return fmt.Errorf("consume reset token: %w", err)
		}
		if err := users.UpdatePassword(ctx, user.ID, passwordHash, now); err != nil {
			return fmt.Errorf("update password: %w", err)
		}
		count, err := tokens.RevokeRefreshTokensForUser(ctx, user.ID, now)
		if err != nil {
			return fmt.Errorf("revoke sessions: %w", err)
		}
		revoked = count
		return nil
	})
	if err != nil {
		return err
	}

	s.publishPasswordChanged(ctx, user.ID, revoked, now)

	return nil
}

func (s *RecoveryService) publishPasswordChanged(ctx context.Context, userID string, revoked int, at time.Time) {
	if s.publisher == nil {
		return
	}
	event := domain.PasswordChangedEvent{
		EventID:       uuid.NewString(),
		UserID:        userID,
		ChangedAt:     at,
		ChangedBy:     userID,
		TokensRevoked: revoked,
	}
	if err := s.publisher.PublishPasswordChanged(ctx, event); err != nil {
		s.log.Warn("publish password changed event",
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}
}

func (s *RecoveryService) passwordResetTTL() time.Duration {
	ttl := s.cfg.Tokens.PasswordResetTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return ttl
}
