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
	// ErrUserAlreadyExists indicates the username or email is taken.
	ErrUserAlreadyExists = errors.New("username or email already registered")
	// ErrPasswordPolicyViolation indicates the password does not satisfy complexity requirements.
	ErrPasswordPolicyViolation = errors.New("password does not meet complexity requirements")
)

// RegistrationService handles new account onboarding.
type RegistrationService struct {
	cfg               *config.AppConfig
	users             port.UserRepository
	tokens            port.TokenRepository
	publisher         port.EventPublisher
	passwordValidator *security.PasswordValidator
	log               *zap.Logger
	now               func() time.Time
}

// NewRegistrationService constructs a registration service.
func NewRegistrationService(
	cfg *config.AppConfig,
	users port.UserRepository,
	tokens port.TokenRepository,
	publisher port.EventPublisher,
	validator *security.PasswordValidator,
	log *zap.Logger,
) *RegistrationService {
	if validator == nil {
		validator = security.DefaultPasswordValidator()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RegistrationService{
		cfg:               cfg,
		users:             users,
		tokens:            tokens,
		publisher:         publisher,
		passwordValidator: validator,
		log:               log,
		now:               func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the service clock for deterministic tests.
func (s *RegistrationService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// RegisterInput carries the fields collected at sign-up.
type RegisterInput struct {
	Username         string
	Email            string
	Password         string
	RecoveryQuestion string
	RecoveryAnswer   string
}

// RegisterResult returns the created account and its verification artifact.
// The verification token plaintext is handed to the mail delivery path and
// never persisted.
type RegisterResult struct {
	User                       domain.User
	VerificationToken          string
	VerificationTokenExpiresAt time.Time
}

// Register creates the account and issues its email verification token.
func (s *RegistrationService) Register(ctx context.Context, input RegisterInput) (*RegisterResult, error) {
	input.Username = strings.TrimSpace(input.Username)
	input.Email = strings.TrimSpace(strings.ToLower(input.Email))
	input.RecoveryQuestion = strings.TrimSpace(input.RecoveryQuestion)

	if input.Username == "" {
		return nil, fmt.Errorf("username is required")
	}
	if input.Email == "" {
		return nil, fmt.Errorf("email is required")
	}
	if input.RecoveryQuestion == "" {
		return nil, fmt.Errorf("recovery question is required")
	}
	if strings.TrimSpace(input.RecoveryAnswer) == "" {
		return nil, fmt.Errorf("recovery answer is required")
	}

	if err := s.passwordValidator.Validate(input.Password); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPasswordPolicyViolation, err)
	}

	passwordHash, err := security.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	answerHash, err := security.HashAnswer(input.RecoveryAnswer)
	if err != nil {
		return nil, fmt.Errorf("hash recovery answer: %w", err)
	}

	now := s.now()
	user := domain.User{
		ID:                 uuid.NewString(),
		Username:           input.Username,
		Email:              input.Email,
		PasswordHash:       passwordHash,
		RecoveryQuestion:   input.RecoveryQuestion,
		RecoveryAnswerHash: answerHash,
		Role:               domain.RoleUser,
		IsActive:           true,
		CreatedAt:          now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrUserAlreadyExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	plaintext, err := security.GenerateSecureToken(32)
	if err != nil {
		return nil, fmt.Errorf("generate verification token: %w", err)
	}

	expiresAt := now.Add(s.emailVerifyTTL())
	token := domain.OneTimeToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: security.HashToken(plaintext),
		Purpose:   domain.PurposeEmailVerify,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}
	if err := s.tokens.CreateOneTimeToken(ctx, token); err != nil {
		return nil, fmt.Errorf("store verification token: %w", err)
	}

	s.publishRegistered(ctx, user, now)

	return &RegisterResult{
		User:                       user.Sanitized(),
		VerificationToken:          plaintext,
		VerificationTokenExpiresAt: expiresAt,
	}, nil
}

func (s *RegistrationService) publishRegistered(ctx context.Context, user domain.User, at time.Time) {
	if s.publisher == nil {
		return
	}
	event := domain.UserRegisteredEvent{
		EventID:      uuid.NewString(),
		UserID:       user.ID,
		Username:     user.Username,
		Email:        user.Email,
		RegisteredAt: at,
	}
	if err := s.publisher.PublishUserRegistered(ctx, event); err != nil {
		s.log.Warn("publish user registered event",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
	}
}

func (s *RegistrationService) emailVerifyTTL() time.Duration {
	ttl := s.cfg.Tokens.EmailVerifyTTL
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	return ttl
}
