package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/modmarket/auth-service/internal/core/domain"
	"github.com/modmarket/auth-service/internal/core/port"
	"github.com/modmarket/auth-service/internal/repository"
)

// TokenRepository implements port.TokenRepository using PostgreSQL tables.
type TokenRepository struct {
	db      pgPool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewTokenRepository constructs a token repository backed by any executor
// that satisfies pgPool.
func NewTokenRepository(db pgPool) *TokenRepository {
	return &TokenRepository{
		db:      db,
		exec:    db,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a repository instance executing within the provided transaction.
func (r *TokenRepository) WithTx(tx pgx.Tx) *TokenRepository {
	if tx == nil {
		return r
	}
	return &TokenRepository{
		db:      r.db,
		exec:    tx,
		builder: r.builder,
	}
}

// CreateRefreshToken inserts a refresh token hash for a user.
func (r *TokenRepository) CreateRefreshToken(ctx context.Context, token domain.RefreshToken) error {
	stmt, args, err := r.insertRefreshTokenSQL(token)
	if err != nil {
		return fmt.Errorf("build insert refresh token sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}

	return nil
}

func (r *TokenRepository) insertRefreshTokenSQL(token domain.RefreshToken) (string, []any, error) {
	return r.builder.Insert("auth.refresh_tokens").
		Columns(
			"id",
			"user_id",
			"token_hash",
			"prev_token_hash",
			"ip",
			"user_agent",
			"created_at",
			"expires_at",
			"consumed_at",
			"revoked_at",
		).
		Values(
			token.ID,
			token.UserID,
			token.TokenHash,
			optionalString(token.PrevTokenHash),
			optionalString(token.IP),
			optionalString(token.UserAgent),
			token.CreatedAt,
			token.ExpiresAt,
			optionalTime(token.ConsumedAt),
			optionalTime(token.RevokedAt),
		).
		ToSql()
}

// GetRefreshTokenByHash retrieves a refresh token record by its hashed value.
func (r *TokenRepository) GetRefreshTokenByHash(ctx context.Context, hash string) (*domain.RefreshToken, error) {
	stmt, args, err := r.selectRefreshTokens().
		Where(squirrel.Eq{"token_hash": hash}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select refresh token sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, stmt, args...)
	token, err := scanRefreshToken(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan refresh token: %w", err)
	}

	return token, nil
}

// ListRefreshTokensByPrevHash returns the successors of the token with the
// supplied hash.
func (r *TokenRepository) ListRefreshTokensByPrevHash(ctx context.Context, prevHash string) ([]domain.RefreshToken, error) {
	stmt, args, err := r.selectRefreshTokens().
		Where(squirrel.Eq{"prev_token_hash": prevHash}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select successors sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query successors: %w", err)
	}
	defer rows.Close()

	var tokens []domain.RefreshToken
	for rows.Next() {
		token, err := scanRefreshToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scan successor: %w", err)
		}
		tokens = append(tokens, *token)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate successors: %w", err)
	}

	return tokens, nil
}

// Rotate consumes the presented token and inserts its successor inside a
// single transaction. The conditional update serialises concurrent rotations
// of the same token: the loser observes zero affected rows and receives
// repository.ErrTokenConsumed.
func (r *TokenRepository) Rotate(ctx context.Context, presentedHash string, consumedAt time.Time, successor domain.RefreshToken) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin rotation: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	consumeStmt, consumeArgs, err := r.builder.Update("auth.refresh_tokens").
		Set("consumed_at", consumedAt.UTC()).
		Where(squirrel.Eq{"token_hash": presentedHash}).
		Where("consumed_at IS NULL").
		Where("revoked_at IS NULL").
		ToSql()
	if err != nil {
		return fmt.Errorf("build consume refresh token sql: %w", err)
	}

	ct, err := tx.Exec(ctx, consumeStmt, consumeArgs...)
	if err != nil {
		return fmt.Errorf("consume refresh token: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrTokenConsumed
	}

	insertStmt, insertArgs, err := r.insertRefreshTokenSQL(successor)
	if err != nil {
		return fmt.Errorf("build insert successor sql: %w", err)
	}
	if _, err := tx.Exec(ctx, insertStmt, insertArgs...); err != nil {
		return fmt.Errorf("insert successor: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit rotation: %w", err)
	}

	return nil
}

// RevokeRefreshTokenByHash marks a single refresh token as revoked. Missing
// or already-revoked tokens are not an error; logout must be idempotent.
func (r *TokenRepository) RevokeRefreshTokenByHash(ctx context.Context, hash string, at time.Time) error {
	stmt, args, err := r.builder.Update("auth.refresh_tokens").
		Set("revoked_at", at.UTC()).
		Where(squirrel.Eq{"token_hash": hash}).
		Where("revoked_at IS NULL").
		ToSql()
	if err != nil {
		return fmt.Errorf("build revoke refresh token sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}

	return nil
}

// RevokeRefreshTokensForUser revokes all active refresh tokens for a user
// and returns the number of tokens revoked.
func (r *TokenRepository) RevokeRefreshTokensForUser(ctx context.Context, userID string, at time.Time) (int, error) {
	stmt, args, err := r.builder.Update("auth.refresh_tokens").
		Set("revoked_at", at.UTC()).
		Where(squirrel.Eq{"user_id": userID}).
		Where("revoked_at IS NULL").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build revoke refresh tokens sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("revoke refresh tokens: %w", err)
	}

	return int(ct.RowsAffected()), nil
}

// CreateOneTimeToken inserts a one-time token record.
func (r *TokenRepository) CreateOneTimeToken(ctx context.Context, token domain.OneTimeToken) error {
	stmt, args, err := r.builder.Insert("auth.one_time_tokens").
		Columns(
			"id",
			"user_id",
			"token_hash",
			"purpose",
			"created_at",
			"expires_at",
			"consumed_at",
		).
		Values(
			token.ID,
			token.UserID,
			token.TokenHash,
			string(token.Purpose),
			token.CreatedAt,
			token.ExpiresAt,
			optionalTime(token.ConsumedAt),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert one-time token sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert one-time token: %w", err)
	}

	return nil
}

// GetOneTimeTokenByHash retrieves a one-time token by its hashed value.
func (r *TokenRepository) GetOneTimeTokenByHash(ctx context.Context, hash string) (*domain.OneTimeToken, error) {
	stmt, args, err := r.builder.Select(
		"id",
		"user_id",
		"token_hash",
		"purpose",
		"created_at",
		"expires_at",
		"consumed_at",
	).
		From("auth.one_time_tokens").
		Where(squirrel.Eq{"token_hash": hash}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select one-time token sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, stmt, args...)

	var (
		token      domain.OneTimeToken
		purpose    string
		consumedAt sql.NullTime
	)

	if err := row.Scan(
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&purpose,
		&token.CreatedAt,
		&token.ExpiresAt,
		&consumedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan one-time token: %w", err)
	}

	token.Purpose = domain.TokenPurpose(purpose)
	token.ConsumedAt = nullableTimePtr(consumedAt)

	return &token, nil
}

// ConsumeOneTimeToken marks a one-time token as used. The conditional update
// guarantees exactly-once consumption under concurrent requests.
func (r *TokenRepository) ConsumeOneTimeToken(ctx context.Context, id string, at time.Time) error {
	stmt, args, err := r.builder.Update("auth.one_time_tokens").
		Set("consumed_at", at.UTC()).
		Where(squirrel.Eq{"id": id}).
		Where("consumed_at IS NULL").
		ToSql()
	if err != nil {
		return fmt.Errorf("build consume one-time token sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("consume one-time token: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *TokenRepository) selectRefreshTokens() squirrel.SelectBuilder {
	return r.builder.Select(
		"id",
		"user_id",
		"token_hash",
		"prev_token_hash",
		"ip",
		"user_agent",
		"created_at",
		"expires_at",
		"consumed_at",
		"revoked_at",
	).From("auth.refresh_tokens")
}

func scanRefreshToken(row rowScanner) (*domain.RefreshToken, error) {
	var (
		token         domain.RefreshToken
		prevTokenHash sql.NullString
		ip            sql.NullString
		userAgent     sql.NullString
		consumedAt    sql.NullTime
		revokedAt     sql.NullTime
	)

	if err := row.Scan(
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&prevTokenHash,
		&ip,
		&userAgent,
		&token.CreatedAt,
		&token.ExpiresAt,
		&consumedAt,
		&revokedAt,
	); err != nil {
		return nil, err
	}

	token.PrevTokenHash = nullableStringPtr(prevTokenHash)
	token.IP = nullableStringPtr(ip)
	token.UserAgent = nullableStringPtr(userAgent)
	token.ConsumedAt = nullableTimePtr(consumedAt)
	token.RevokedAt = nullableTimePtr(revokedAt)

	return &token, nil
}

var _ port.TokenRepository = (*TokenRepository)(nil)
