package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modmarket/auth-service/internal/core/domain"
	"github.com/modmarket/auth-service/internal/core/port"
	"github.com/modmarket/auth-service/internal/infra/security"
	"github.com/modmarket/auth-service/internal/repository"
)

var (
	// ErrInvalidOneTimeToken indicates the token does not exist or its purpose
	// does not match. The two cases are indistinguishable to the caller so
	// valid tokens cannot be enumerated.
	ErrInvalidOneTimeToken = errors.New("invalid one-time token")
	// ErrOneTimeTokenUsed indicates the token was already consumed.
	ErrOneTimeTokenUsed = errors.New("one-time token already used")
	// ErrOneTimeTokenExpired indicates the token elapsed its validity window.
	ErrOneTimeTokenExpired = errors.New("one-time token expired")
	// ErrEmailAlreadyVerified indicates the account completed verification earlier.
	ErrEmailAlreadyVerified = errors.New("email already verified")
)

// VerificationService redeems email verification tokens.
type VerificationService struct {
	users  port.UserRepository
	tokens port.TokenRepository
	now    func() time.Time
}

// NewVerificationService constructs a verification service.
func NewVerificationService(users port.UserRepository, tokens port.TokenRepository) *VerificationService {
	return &VerificationService{
		users:  users,
		tokens: tokens,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the service clock for deterministic tests.
func (s *VerificationService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// VerifyEmail consumes the token and marks the owning account verified.
// Verifying an already-verified account is an error, not an idempotent
// success.
func (s *VerificationService) VerifyEmail(ctx context.Context, plaintext string) (*domain.User, error) {
	now := s.now()
	token, err := consumeOneTimeToken(ctx, s.tokens, plaintext, domain.PurposeEmailVerify, now, func(user *domain.User) error {
		if user.IsEmailVerified() {
			return ErrEmailAlreadyVerified
		}
		return nil
	}, s.users)
	if err != nil {
		return nil, err
	}

	if err := s.users.SetEmailVerified(ctx, token.UserID, now); err != nil {
		return nil, fmt.Errorf("mark email verified: %w", err)
	}

	user, err := s.users.GetByID(ctx, token.UserID)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	sanitized := user.Sanitized()
	return &sanitized, nil
}

// consumeOneTimeToken validates and consumes a one-time token of the expected
// purpose, running precheck against the owning user before consumption.
func consumeOneTimeToken(
	ctx context.Context,
	tokens port.TokenRepository,
	plaintext string,
	purpose domain.TokenPurpose,
	now time.Time,
	precheck func(*domain.User) error,
	users port.UserRepository,
) (*domain.OneTimeToken, error) {
	plaintext = strings.TrimSpace(plaintext)
	if plaintext == "" {
		return nil, ErrInvalidOneTimeToken
	}

	hash := security.HashToken(plaintext)
	token, err := tokens.GetOneTimeTokenByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidOneTimeToken
		}
		return nil, fmt.Errorf("lookup one-time token: %w", err)
	}

	if token.Purpose != purpose {
		return nil, ErrInvalidOneTimeToken
	}
	if token.ConsumedAt != nil {
		return nil, ErrOneTimeTokenUsed
	}
	if token.IsExpired(now) {
		return nil, ErrOneTimeTokenExpired
	}

	if precheck != nil {
		user, err := users.GetByID(ctx, token.UserID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrInvalidOneTimeToken
			}
			return nil, fmt.Errorf("lookup user: %w", err)
		}
		if err := precheck(user); err != nil {
			return nil, err
		}
	}

	if err := tokens.ConsumeOneTimeToken(ctx, token.ID, now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Lost a race against a concurrent consumption.
			return nil, ErrOneTimeTokenUsed
		}
		return nil, fmt.Errorf("consume one-time token: %w", err)
	}

	return token, nil
}
