package port

import (
	"context"
	"time"

	"github.com/modmarket/auth-service/internal/core/domain"
)

// TokenRepository persists refresh token chains and one-time tokens.
type TokenRepository interface {
	CreateRefreshToken(ctx context.Context, token domain.RefreshToken) error
	GetRefreshTokenByHash(ctx context.Context, hash string) (*domain.RefreshToken, error)
	// ListRefreshTokensByPrevHash returns the successors of the token with
	// the supplied hash. The chain grows strictly forward, so in practice
	// the result holds at most one row.
	ListRefreshTokensByPrevHash(ctx context.Context, prevHash string) ([]domain.RefreshToken, error)
	// Rotate consumes the presented token and inserts its successor inside a
	// single transaction. Returns repository.ErrTokenConsumed when the
	// presented token was consumed by a concurrent rotation.
	Rotate(ctx context.Context, presentedHash string, consumedAt time.Time, successor domain.RefreshToken) error
	RevokeRefreshTokenByHash(ctx context.Context, hash string, at time.Time) error
	RevokeRefreshTokensForUser(ctx context.Context, userID string, at time.Time) (int, error)

	CreateOneTimeToken(ctx context.Context, token domain.OneTimeToken) error
	GetOneTimeTokenByHash(ctx context.Context, hash string) (*domain.OneTimeToken, error)
	ConsumeOneTimeToken(ctx context.Context, id string, at time.Time) error
}
