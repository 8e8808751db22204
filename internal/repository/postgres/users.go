package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/modmarket/auth-service/internal/core/domain"
	"github.com/modmarket/auth-service/internal/core/port"
	"github.com/modmarket/auth-service/internal/repository"
)

// UserRepository implements port.UserRepository using PostgreSQL.
type UserRepository struct {
	db      pgPool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewUserRepository constructs a user repository.
func NewUserRepository(db pgPool) *UserRepository {
	return &UserRepository{
		db:      db,
		exec:    db,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a repository instance executing within the provided transaction.
func (r *UserRepository) WithTx(tx pgx.Tx) *UserRepository {
	if tx == nil {
		return r
	}
	return &UserRepository{
		db:      r.db,
		exec:    tx,
		builder: r.builder,
	}
}

// Create inserts a new user record.
func (r *UserRepository) Create(ctx context.Context, user domain.User) error {
	stmt, args, err := r.builder.Insert("auth.users").
		Columns(
			"id",
			"username",
			"email",
			"password_hash",
			"recovery_question",
			"recovery_answer_hash",
			"role",
			"is_active",
			"email_verified_at",
			"last_login_at",
			"created_at",
		).
		Values(
			user.ID,
			user.Username,
			user.Email,
			user.PasswordHash,
			user.RecoveryQuestion,
			user.RecoveryAnswerHash,
			string(user.Role),
			user.IsActive,
			optionalTime(user.EmailVerifiedAt),
			optionalTime(user.LastLoginAt),
			user.CreatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert user sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// GetByID retrieves a user by primary key.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, squirrel.Eq{"id": id})
}

// GetByUsername retrieves a user by username.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.getOne(ctx, squirrel.Eq{"username": username})
}

func (r *UserRepository) getOne(ctx context.Context, pred any) (*domain.User, error) {
	stmt, args, err := r.selectUsers().Where(pred).Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, stmt, args...)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	return user, nil
}

// List returns users matching the filter, newest first.
func (r *UserRepository) List(ctx context.Context, filter port.UserFilter) ([]domain.User, error) {
	qb := applyUserFilter(r.selectUsers(), filter).OrderBy("created_at DESC")

	if filter.Limit > 0 {
		qb = qb.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		qb = qb.Offset(uint64(filter.Offset))
	}

	stmt, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list users sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user row: %w", err)
		}
		users = append(users, *user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}

	return users, nil
}

// Count returns the number of users matching the filter.
func (r *UserRepository) Count(ctx context.Context, filter port.UserFilter) (int, error) {
	qb := r.builder.Select("COUNT(*)").From("auth.users")
	qb = applyUserFilter(qb, filter)

	stmt, args, err := qb.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count users sql: %w", err)
	}

	var count int
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}

	return count, nil
}

// UpdatePassword replaces the credential hash and records when it changed.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string, changedAt time.Time) error {
	return r.updateOne(ctx, id, map[string]any{
		"password_hash":       passwordHash,
		"password_changed_at": changedAt.UTC(),
	})
}

// UpdateRole changes the user's authority level.
func (r *UserRepository) UpdateRole(ctx context.Context, id string, role domain.Role) error {
	return r.updateOne(ctx, id, map[string]any{"role": string(role)})
}

// SetActive toggles the account's active flag.
func (r *UserRepository) SetActive(ctx context.Context, id string, active bool) error {
	return r.updateOne(ctx, id, map[string]any{"is_active": active})
}

// SetLastLogin records a successful login time.
func (r *UserRepository) SetLastLogin(ctx context.Context, id string, at time.Time) error {
	return r.updateOne(ctx, id, map[string]any{"last_login_at": at.UTC()})
}

// SetEmailVerified records when email verification completed.
func (r *UserRepository) SetEmailVerified(ctx context.Context, id string, at time.Time) error {
	return r.updateOne(ctx, id, map[string]any{"email_verified_at": at.UTC()})
}

func (r *UserRepository) updateOne(ctx context.Context, id string, values map[string]any) error {
	stmt, args, err := r.builder.Update("auth.users").
		SetMap(values).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update user sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// Delete removes a user row permanently.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Delete("auth.users").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete user sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

func (r *UserRepository) selectUsers() squirrel.SelectBuilder {
	return r.builder.Select(
		"id",
		"username",
		"email",
		"password_hash",
		"recovery_question",
		"recovery_answer_hash",
		"role",
		"is_active",
		"email_verified_at",
		"last_login_at",
		"created_at",
	).From("auth.users")
}

func applyUserFilter(qb squirrel.SelectBuilder, filter port.UserFilter) squirrel.SelectBuilder {
	if filter.Role != nil {
		qb = qb.Where(squirrel.Eq{"role": string(*filter.Role)})
	}
	if filter.IsActive != nil {
		qb = qb.Where(squirrel.Eq{"is_active": *filter.IsActive})
	}
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		qb = qb.Where(squirrel.Or{
			squirrel.ILike{"username": pattern},
			squirrel.ILike{"email": pattern},
		})
	}
	return qb
}

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		user            domain.User
		role            string
		emailVerifiedAt sql.NullTime
		lastLoginAt     sql.NullTime
	)

	if err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.RecoveryQuestion,
		&user.RecoveryAnswerHash,
		&role,
		&user.IsActive,
		&emailVerifiedAt,
		&lastLoginAt,
		&user.CreatedAt,
	); err != nil {
		return nil, err
	}

	user.Role = domain.Role(role)
	user.EmailVerifiedAt = nullableTimePtr(emailVerifiedAt)
	user.LastLoginAt = nullableTimePtr(lastLoginAt)

	return &user, nil
}

var _ port.UserRepository = (*UserRepository)(nil)
