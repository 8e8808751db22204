package port

import (
	"context"
	"time"

	"github.com/modmarket/auth-service/internal/core/domain"
)

// UserFilter narrows admin user listings.
type UserFilter struct {
	Role     *domain.Role
	IsActive *bool
	Search   string
	Limit    int
	Offset   int
}

// UserRepository persists marketplace identities.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	List(ctx context.Context, filter UserFilter) ([]domain.User, error)
	Count(ctx context.Context, filter UserFilter) (int, error)
	UpdatePassword(ctx context.Context, id, passwordHash string, changedAt time.Time) error
	UpdateRole(ctx context.Context, id string, role domain.Role) error
	SetActive(ctx context.Context, id string, active bool) error
	SetLastLogin(ctx context.Context, id string, at time.Time) error
	SetEmailVerified(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
}
