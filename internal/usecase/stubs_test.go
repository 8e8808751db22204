package usecase

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/modmarket/auth-service/internal/core/domain"
	"github.com/modmarket/auth-service/internal/core/port"
	"github.com/modmarket/auth-service/internal/repository"
)

// memoryUserRepository is an in-memory port.UserRepository used across the
// usecase tests.
type memoryUserRepository struct {
	users map[string]domain.User
}

func newMemoryUserRepository(users ...domain.User) *memoryUserRepository {
	repo := &memoryUserRepository{users: make(map[string]domain.User)}
	for _, user := range users {
		repo.users[user.ID] = user
	}
	return repo
}

func (r *memoryUserRepository) Create(_ context.Context, user domain.User) error {
	for _, existing := range r.users {
		if existing.Username == user.Username || existing.Email == user.Email {
			return repository.ErrDuplicate
		}
	}
	r.users[user.ID] = user
	return nil
}

func (r *memoryUserRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	user, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := user
	return &copied, nil
}

func (r *memoryUserRepository) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	for _, user := range r.users {
		if user.Username == username {
			copied := user
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memoryUserRepository) List(_ context.Context, filter port.UserFilter) ([]domain.User, error) {
	matched := r.filtered(filter)
	if filter.Offset >= len(matched) {
		return nil, nil
	}
	matched = matched[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func (r *memoryUserRepository) Count(_ context.Context, filter port.UserFilter) (int, error) {
	return len(r.filtered(filter)), nil
}

func (r *memoryUserRepository) filtered(filter port.UserFilter) []domain.User {
	var matched []domain.User
	for _, user := range r.users {
		if filter.Role != nil && user.Role != *filter.Role {
			continue
		}
		if filter.IsActive != nil && user.IsActive != *filter.IsActive {
			continue
		}
		if filter.Search != "" {
			needle := strings.ToLower(filter.Search)
			if !strings.Contains(strings.ToLower(user.Username), needle) &&
				!strings.Contains(strings.ToLower(user.Email), needle) {
				continue
			}
		}
		matched = append(matched, user)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	return matched
}

func (r *memoryUserRepository) UpdatePassword(_ context.Context, id, passwordHash string, _ time.Time) error {
	user, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.PasswordHash = passwordHash
	r.users[id] = user
	return nil
}

func (r *memoryUserRepository) UpdateRole(_ context.Context, id string, role domain.Role) error {
	user, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.Role = role
	r.users[id] = user
	return nil
}

func (r *memoryUserRepository) SetActive(_ context.Context, id string, active bool) error {
	user, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.IsActive = active
	r.users[id] = user
	return nil
}

func (r *memoryUserRepository) SetLastLogin(_ context.Context, id string, at time.Time) error {
	user, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.LastLoginAt = &at
	r.users[id] = user
	return nil
}

func (r *memoryUserRepository) SetEmailVerified(_ context.Context, id string, at time.Time) error {
	user, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.EmailVerifiedAt = &at
	r.users[id] = user
	return nil
}

func (r *memoryUserRepository) Delete(_ context.Context, id string) error {
	if _, ok := r.users[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.users, id)
	return nil
}

// memoryTokenRepository is an in-memory port.TokenRepository mirroring the
// rotation and consumption semantics of the SQL implementation.
type memoryTokenRepository struct {
	refresh map[string]domain.RefreshToken
	oneTime map[string]domain.OneTimeToken

	rotateErr error
}

func newMemoryTokenRepository() *memoryTokenRepository {
	return &memoryTokenRepository{
		refresh: make(map[string]domain.RefreshToken),
		oneTime: make(map[string]domain.OneTimeToken),
	}
}

func (r *memoryTokenRepository) CreateRefreshToken(_ context.Context, token domain.RefreshToken) error {
	r.refresh[token.TokenHash] = token
	return nil
}

func (r *memoryTokenRepository) GetRefreshTokenByHash(_ context.Context, hash string) (*domain.RefreshToken, error) {
	token, ok := r.refresh[hash]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := token
	return &copied, nil
}

func (r *memoryTokenRepository) ListRefreshTokensByPrevHash(_ context.Context, prevHash string) ([]domain.RefreshToken, error) {
	var successors []domain.RefreshToken
	for _, token := range r.refresh {
		if token.PrevTokenHash != nil && *token.PrevTokenHash == prevHash {
			successors = append(successors, token)
		}
	}
	return successors, nil
}

func (r *memoryTokenRepository) Rotate(_ context.Context, presentedHash string, consumedAt time.Time, successor domain.RefreshToken) error {
	if r.rotateErr != nil {
		return r.rotateErr
	}
	token, ok := r.refresh[presentedHash]
	if !ok || token.ConsumedAt != nil || token.RevokedAt != nil {
		return repository.ErrTokenConsumed
	}
	token.ConsumedAt = &consumedAt
	r.refresh[presentedHash] = token
	r.refresh[successor.TokenHash] = successor
	return nil
}

func (r *memoryTokenRepository) RevokeRefreshTokenByHash(_ context.Context, hash string, at time.Time) error {
	token, ok := r.refresh[hash]
	if !ok {
		return repository.ErrNotFound
	}
	if token.RevokedAt == nil {
		token.RevokedAt = &at
		r.refresh[hash] = token
	}
	return nil
}

func (r *memoryTokenRepository) RevokeRefreshTokensForUser(_ context.Context, userID string, at time.Time) (int, error) {
	revoked := 0
	for hash, token := range r.refresh {
		if token.UserID == userID && token.RevokedAt == nil {
			token.RevokedAt = &at
			r.refresh[hash] = token
			revoked++
		}
	}
	return revoked, nil
}

func (r *memoryTokenRepository) CreateOneTimeToken(_ context.Context, token domain.OneTimeToken) error {
	r.oneTime[token.TokenHash] = token
	return nil
}

func (r *memoryTokenRepository) GetOneTimeTokenByHash(_ context.Context, hash string) (*domain.OneTimeToken, error) {
	token, ok := r.oneTime[hash]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := token
	return &copied, nil
}

func (r *memoryTokenRepository) ConsumeOneTimeToken(_ context.Context, id string, at time.Time) error {
	for hash, token := range r.oneTime {
		if token.ID == id {
			if token.ConsumedAt != nil {
				return repository.ErrNotFound
			}
			token.ConsumedAt = &at
			r.oneTime[hash] = token
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *memoryTokenRepository) activeTokensForUser(userID string) int {
	active := 0
	for _, token := range r.refresh {
		if token.UserID == userID && token.RevokedAt == nil && token.ConsumedAt == nil {
			active++
		}
	}
	return active
}

// recordingPublisher captures published events for assertions.
type recordingPublisher struct {
	registered  []domain.UserRegisteredEvent
	passwords   []domain.PasswordChangedEvent
	replays     []domain.ReplayDetectedEvent
	deactivated []domain.UserDeactivatedEvent

	err error
}

func (p *recordingPublisher) PublishUserRegistered(_ context.Context, event domain.UserRegisteredEvent) error {
	p.registered = append(p.registered, event)
	return p.err
}

func (p *recordingPublisher) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	p.passwords = append(p.passwords, event)
	return p.err
}

func (p *recordingPublisher) PublishReplayDetected(_ context.Context, event domain.ReplayDetectedEvent) error {
	p.replays = append(p.replays, event)
	return p.err
}

func (p *recordingPublisher) PublishUserDeactivated(_ context.Context, event domain.UserDeactivatedEvent) error {
	p.deactivated = append(p.deactivated, event)
	return p.err
}

// passthroughTransactor runs the callback against the supplied repositories
// without transactional scoping.
type passthroughTransactor struct {
	users  port.UserRepository
	tokens port.TokenRepository
	err    error
}

func (t *passthroughTransactor) WithinTx(_ context.Context, fn func(users port.UserRepository, tokens port.TokenRepository) error) error {
	if t.err != nil {
		return t.err
	}
	return fn(t.users, t.tokens)
}

var errStubFailure = errors.New("stub failure")
