package postgres

import (
	"context"
	"fmt"

	"github.com/modmarket/auth-service/internal/core/port"
)

// Repositories bundles the PostgreSQL-backed repositories sharing one pool
// and provides transactional execution across them.
type Repositories struct {
	db     pgPool
	Users  *UserRepository
	Tokens *TokenRepository
}

// NewRepositories constructs the repository set over a shared pool.
func NewRepositories(db pgPool) *Repositories {
	return &Repositories{
		db:     db,
		Users:  NewUserRepository(db),
		Tokens: NewTokenRepository(db),
	}
}

// WithinTx runs fn with repository instances bound to a single transaction.
// The transaction commits only when fn returns nil.
func (r *Repositories) WithinTx(ctx context.Context, fn func(users port.UserRepository, tokens port.TokenRepository) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(r.Users.WithTx(tx), r.Tokens.WithTx(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

var _ port.Transactor = (*Repositories)(nil)
