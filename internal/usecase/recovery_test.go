package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/modmarket/auth-service/internal/core/domain"
	"github.com/modmarket/auth-service/internal/infra/security"
)

func recoveryFixture(t *testing.T) (domain.User, *memoryUserRepository, *memoryTokenRepository, *RecoveryService, *recordingPublisher) {
	t.Helper()

	answerHash, err := security.HashAnswer("Civic EK9")
	if err != nil {
		t.Fatalf("HashAnswer: %v", err)
	}
	user := domain.User{
		ID:                 "user-1",
		Username:           "garage_pilot",
		Email:              "pilot@example.com",
		PasswordHash:       hashTestPassword(t, "Old-Passw0rd!Here"),
		RecoveryQuestion:   "First car you modified?",
		RecoveryAnswerHash: answerHash,
		Role:               domain.RoleUser,
		IsActive:           true,
	}

	userRepo := newMemoryUserRepository(user)
	tokenRepo := newMemoryTokenRepository()
	publisher := &recordingPublisher{}
	tx := &passthroughTransactor{users: userRepo, tokens: tokenRepo}
	service := NewRecoveryService(testConfig(), userRepo, tokenRepo, tx, publisher, nil, nil)

	return user, userRepo, tokenRepo, service, publisher
}

func TestRecoveryService_GetRecoveryQuestion(t *testing.T) {
	user, _, _, service, _ := recoveryFixture(t)

	question, err := service.GetRecoveryQuestion(context.Background(), user.Username)
	if err != nil {
		t.Fatalf("GetRecoveryQuestion returned error: %v", err)
	}
	if question != user.RecoveryQuestion {
		t.Fatalf("expected question %q, got %q", user.RecoveryQuestion, question)
	}

	if _, err := service.GetRecoveryQuestion(context.Background(), "nobody"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if _, err := service.GetRecoveryQuestion(context.Background(), "  "); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound for blank username, got %v", err)
	}
}

func TestRecoveryService_VerifyRecoveryAnswer_IssuesResetToken(t *testing.T) {
	user, _, tokenRepo, service, _ := recoveryFixture(t)

	plaintext, err := service.VerifyRecoveryAnswer(context.Background(), user.Username, "civic ek9")
	if err != nil {
		t.Fatalf("VerifyRecoveryAnswer returned error: %v", err)
	}
	if plaintext == "" {
		t.Fatalf("expected a reset token")
	}

	token, err := tokenRepo.GetOneTimeTokenByHash(context.Background(), security.HashToken(plaintext))
	if err != nil {
		t.Fatalf("expected reset token to be stored by hash: %v", err)
	}
	if token.Purpose != domain.PurposePasswordReset {
		t.Fatalf("expected PASSWORD_RESET purpose, got %s", token.Purpose)
	}
	if token.UserID != user.ID {
		t.Fatalf("expected token bound to user %s", user.ID)
	}
}

func TestRecoveryService_VerifyRecoveryAnswer_RejectsWrongAnswer(t *testing.T) {
	user, _, tokenRepo, service, _ := recoveryFixture(t)

	if _, err := service.VerifyRecoveryAnswer(context.Background(), user.Username, "S2000"); !errors.Is(err, ErrInvalidRecoveryAnswer) {
		t.Fatalf("expected ErrInvalidRecoveryAnswer, got %v", err)
	}
	if len(tokenRepo.oneTime) != 0 {
		t.Fatalf("expected no reset token on answer mismatch")
	}
}

func TestRecoveryService_ResetPassword_ReplacesPasswordAndRevokesSessions(t *testing.T) {
	user, userRepo, tokenRepo, service, publisher := recoveryFixture(t)

	// Two live sessions that must not survive the reset.
	seedRefreshToken(tokenRepo, user.ID, "session-a", time.Now().Add(time.Hour))
	seedRefreshToken(tokenRepo, user.ID, "session-b", time.Now().Add(time.Hour))

	plaintext, err := service.VerifyRecoveryAnswer(context.Background(), user.Username, "Civic EK9")
	if err != nil {
		t.Fatalf("VerifyRecoveryAnswer: %v", err)
	}

	newPassword := "Fresh-Passw0rd!2024"
	if err := service.ResetPassword(context.Background(), plaintext, newPassword); err != nil {
		t.Fatalf("ResetPassword returned error: %v", err)
	}

	stored, _ := userRepo.GetByID(context.Background(), user.ID)
	if !security.VerifyPassword(newPassword, stored.PasswordHash) {
		t.Fatalf("expected stored hash to verify the new password")
	}
	if security.VerifyPassword("Old-Passw0rd!Here", stored.PasswordHash) {
		t.Fatalf("expected old password to stop verifying")
	}

	if active := tokenRepo.activeTokensForUser(user.ID); active != 0 {
		t.Fatalf("expected every session to be revoked, %d still active", active)
	}

	if len(publisher.passwords) != 1 {
		t.Fatalf("expected one password changed event, got %d", len(publisher.passwords))
	}
	if publisher.passwords[0].TokensRevoked != 2 {
		t.Fatalf("expected 2 revoked tokens in event, got %d", publisher.passwords[0].TokensRevoked)
	}

	// The reset token is single use.
	if err := service.ResetPassword(context.Background(), plaintext, "An0ther-Passw0rd!"); !errors.Is(err, ErrOneTimeTokenUsed) {
		t.Fatalf("expected ErrOneTimeTokenUsed on reuse, got %v", err)
	}
}

func TestRecoveryService_ResetPassword_WeakPasswordLeavesTokenLive(t *testing.T) {
	user, _, tokenRepo, service, _ := recoveryFixture(t)

	plaintext, err := service.VerifyRecoveryAnswer(context.Background(), user.Username, "Civic EK9")
	if err != nil {
		t.Fatalf("VerifyRecoveryAnswer: %v", err)
	}

	if err := service.ResetPassword(context.Background(), plaintext, "weak"); !errors.Is(err, ErrPasswordPolicyViolation) {
		t.Fatalf("expected ErrPasswordPolicyViolation, got %v", err)
	}

	token, err := tokenRepo.GetOneTimeTokenByHash(context.Background(), security.HashToken(plaintext))
	if err != nil {
		t.Fatalf("lookup reset token: %v", err)
	}
	if token.ConsumedAt != nil {
		t.Fatalf("policy rejection must not burn the reset token")
	}
}

func TestRecoveryService_ResetPassword_RejectsExpiredToken(t *testing.T) {
	user, _, tokenRepo, service, _ := recoveryFixture(t)
	plaintext := "expired-reset"
	seedOneTimeToken(tokenRepo, user.ID, plaintext, domain.PurposePasswordReset, time.Now().Add(-time.Minute))

	if err := service.ResetPassword(context.Background(), plaintext, "Fresh-Passw0rd!2024"); !errors.Is(err, ErrOneTimeTokenExpired) {
		t.Fatalf("expected ErrOneTimeTokenExpired, got %v", err)
	}
}

func TestRecoveryService_ResetPassword_RejectsWrongPurpose(t *testing.T) {
	user, _, tokenRepo, service, _ := recoveryFixture(t)
	plaintext := "verify-not-reset"
	seedOneTimeToken(tokenRepo, user.ID, plaintext, domain.PurposeEmailVerify, time.Now().Add(time.Hour))

	if err := service.ResetPassword(context.Background(), plaintext, "Fresh-Passw0rd!2024"); !errors.Is(err, ErrInvalidOneTimeToken) {
		t.Fatalf("expected ErrInvalidOneTimeToken, got %v", err)
	}
}

func TestRecoveryService_ResetPassword_RejectsInactiveAccount(t *testing.T) {
	user, userRepo, tokenRepo, service, _ := recoveryFixture(t)
	if err := userRepo.SetActive(context.Background(), user.ID, false); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	plaintext := "reset-inactive"
	seedOneTimeToken(tokenRepo, user.ID, plaintext, domain.PurposePasswordReset, time.Now().Add(time.Hour))

	if err := service.ResetPassword(context.Background(), plaintext, "Fresh-Passw0rd!2024"); !errors.Is(err, ErrInactiveAccount) {
		t.Fatalf("expected ErrInactiveAccount, got %v", err)
	}
}
