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
	"github.com/modmarket/auth-service/internal/infra/logger"
	"github.com/modmarket/auth-service/internal/infra/security"
	"github.com/modmarket/auth-service/internal/repository"
)

var (
	// ErrInvalidCredentials indicates the provided username or password are incorrect.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInactiveAccount indicates the account is deactivated.
	ErrInactiveAccount = errors.New("account is not active")
	// ErrInvalidRefreshToken indicates the presented refresh token does not exist.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	// ErrRevokedRefreshToken indicates the presented refresh token was revoked.
	ErrRevokedRefreshToken = errors.New("refresh token revoked")
	// ErrExpiredRefreshToken indicates the presented refresh token elapsed its TTL.
	ErrExpiredRefreshToken = errors.New("refresh token expired")
	// ErrRefreshTokenReplay indicates an already-consumed refresh token was
	// presented again. The owning chain is revoked before this is returned.
	ErrRefreshTokenReplay = errors.New("refresh token replay detected")
)

// maxChainWalk bounds the revocation traversal. Chains grow one link per
// rotation, so this is far beyond any legitimate session lineage.
const maxChainWalk = 4096

// ClientMeta carries request attribution recorded alongside refresh tokens.
type ClientMeta struct {
	IP        string
	UserAgent string
}

// TokenPair is the credential set returned by login and refresh.
type TokenPair struct {
	AccessToken     string
	RefreshToken    string
	RefreshTokenTTL time.Duration
	User            domain.User
}

// AuthService coordinates login, refresh token rotation, and logout.
type AuthService struct {
	cfg       *config.AppConfig
	users     port.UserRepository
	tokens    port.TokenRepository
	publisher port.EventPublisher
	jwt       *security.JWTManager
	log       *zap.Logger
	now       func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(
	cfg *config.AppConfig,
	users port.UserRepository,
	tokens port.TokenRepository,
	publisher port.EventPublisher,
	jwtManager *security.JWTManager,
	log *zap.Logger,
) *AuthService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthService{
		cfg:       cfg,
		users:     users,
		tokens:    tokens,
		publisher: publisher,
		jwt:       jwtManager,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the service clock for deterministic tests.
func (s *AuthService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// AccessTokenTTL exposes the configured access token lifetime.
func (s *AuthService) AccessTokenTTL() time.Duration {
	return s.jwt.AccessTokenTTL()
}

// Login validates credentials and issues an access token plus the first link
// of a fresh refresh token chain.
func (s *AuthService) Login(ctx context.Context, username, password string, meta ClientMeta) (*TokenPair, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if !security.VerifyPassword(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		return nil, ErrInactiveAccount
	}

	now := s.now()
	if err := s.users.SetLastLogin(ctx, user.ID, now); err != nil {
		s.log.Warn("record last login",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
	}

	plaintext, record, err := s.issueRefreshToken(*user, nil, meta, now)
	if err != nil {
		return nil, err
	}
	if err := s.tokens.CreateRefreshToken(ctx, *record); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	accessToken, err := s.jwt.Issue(user.ID, user.Username)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	return &TokenPair{
		AccessToken:     accessToken,
		RefreshToken:    plaintext,
		RefreshTokenTTL: s.refreshTokenTTL(),
		User:            user.Sanitized(),
	}, nil
}

// Refresh rotates the presented refresh token and issues a new access token.
// Presenting a consumed token is treated as theft: the whole chain is revoked
// before the generic replay error is returned.
func (s *AuthService) Refresh(ctx context.Context, presented string, meta ClientMeta) (*TokenPair, error) {
	presented = strings.TrimSpace(presented)
	if presented == "" {
		return nil, ErrInvalidRefreshToken
	}

	hash := security.HashToken(presented)
	record, err := s.tokens.GetRefreshTokenByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("lookup refresh token: %w", err)
	}

	if record.IsRevoked() {
		return nil, ErrRevokedRefreshToken
	}

	now := s.now()

	if record.IsConsumed() {
		s.containReplay(ctx, record, meta, now)
		return nil, ErrRefreshTokenReplay
	}

	if record.IsExpired(now) {
		return nil, ErrExpiredRefreshToken
	}

	user, err := s.users.GetByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if !user.IsActive {
		return nil, ErrInactiveAccount
	}

	plaintext, successor, err := s.issueRefreshToken(*user, &record.TokenHash, meta, now)
	if err != nil {
		return nil, err
	}

	if err := s.tokens.Rotate(ctx, record.TokenHash, now, *successor); err != nil {
		if errors.Is(err, repository.ErrTokenConsumed) {
			// Lost the race against a concurrent refresh of the same token.
			s.containReplay(ctx, record, meta, now)
			return nil, ErrRefreshTokenReplay
		}
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}

	accessToken, err := s.jwt.Issue(user.ID, user.Username)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	return &TokenPair{
		AccessToken:     accessToken,
		RefreshToken:    plaintext,
		RefreshTokenTTL: s.refreshTokenTTL(),
		User:            user.Sanitized(),
	}, nil
}

// Logout revokes the single presented refresh token. A missing or unknown
// token is not an error; logout only ends one session and must be idempotent.
func (s *AuthService) Logout(ctx context.Context, presented string) error {
	presented = strings.TrimSpace(presented)
	if presented == "" {
		return nil
	}

	hash := security.HashToken(presented)
	if err := s.tokens.RevokeRefreshTokenByHash(ctx, hash, s.now()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("revoke refresh token: %w", err)
	}

	return nil
}

// RevokeChain revokes every token reachable from startHash, walking the
// chain in both directions. Per-link failures are logged and skipped; replay
// containment must not abort on partial errors. Returns the number of links
// revoked.
func (s *AuthService) RevokeChain(ctx context.Context, startHash string, at time.Time) int {
	visited := make(map[string]bool)
	queue := []string{startHash}
	revoked := 0

	for len(queue) > 0 && len(visited) < maxChainWalk {
		hash := queue[0]
		queue = queue[1:]
		if visited[hash] {
			continue
		}
		visited[hash] = true

		token, err := s.tokens.GetRefreshTokenByHash(ctx, hash)
		if err != nil {
			if !errors.Is(err, repository.ErrNotFound) {
				s.log.Warn("chain revocation: lookup link failed",
					zap.String("token_hash", logger.MaskString(hash)),
					zap.Error(err),
				)
			}
		} else {
			if !token.IsRevoked() {
				if err := s.tokens.RevokeRefreshTokenByHash(ctx, hash, at); err != nil {
					s.log.Warn("chain revocation: revoke link failed",
						zap.String("token_hash", logger.MaskString(hash)),
						zap.Error(err),
					)
				} else {
					revoked++
				}
			}
			if token.PrevTokenHash != nil && !visited[*token.PrevTokenHash] {
				queue = append(queue, *token.PrevTokenHash)
			}
		}

		successors, err := s.tokens.ListRefreshTokensByPrevHash(ctx, hash)
		if err != nil {
			s.log.Warn("chain revocation: list successors failed",
				zap.String("token_hash", logger.MaskString(hash)),
				zap.Error(err),
			)
			continue
		}
		for _, successor := range successors {
			if !visited[successor.TokenHash] {
				queue = append(queue, successor.TokenHash)
			}
		}
	}

	return revoked
}

func (s *AuthService) containReplay(ctx context.Context, record *domain.RefreshToken, meta ClientMeta, at time.Time) {
	revoked := s.RevokeChain(ctx, record.TokenHash, at)

	s.log.Warn("refresh token replay detected",
		zap.String("user_id", record.UserID),
		zap.String("token_id", record.ID),
		zap.String("ip", logger.MaskIP(meta.IP)),
		zap.Int("links_revoked", revoked),
	)

	if s.publisher == nil {
		return
	}
	event := domain.ReplayDetectedEvent{
		EventID:      uuid.NewString(),
		UserID:       record.UserID,
		TokenID:      record.ID,
		DetectedAt:   at,
		LinksRevoked: revoked,
		IPAddress:    optionalMeta(meta.IP),
	}
	if err := s.publisher.PublishReplayDetected(ctx, event); err != nil {
		s.log.Warn("publish replay event", zap.Error(err))
	}
}

func (s *AuthService) issueRefreshToken(user domain.User, prevHash *string, meta ClientMeta, now time.Time) (string, *domain.RefreshToken, error) {
	plaintext, err := security.GenerateSecureToken(32)
	if err != nil {
		return "", nil, fmt.Errorf("generate refresh token: %w", err)
	}

	record := domain.RefreshToken{
		ID:            uuid.NewString(),
		UserID:        user.ID,
		TokenHash:     security.HashToken(plaintext),
		PrevTokenHash: prevHash,
		IP:            optionalMeta(meta.IP),
		UserAgent:     optionalMeta(meta.UserAgent),
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.refreshTokenTTL()),
	}

	return plaintext, &record, nil
}

func (s *AuthService) refreshTokenTTL() time.Duration {
	ttl := s.cfg.JWT.RefreshTokenTTL
	if ttl <= 0 {
		ttl = 14 * 24 * time.Hour
	}
	return ttl
}

func optionalMeta(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
