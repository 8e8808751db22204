package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/modmarket/auth-service/internal/core/domain"
	"github.com/modmarket/auth-service/internal/core/port"
)

func TestUserService_DeactivateUser_RevokesSessions(t *testing.T) {
	user := domain.User{ID: "user-1", Username: "garage_pilot", Role: domain.RoleUser, IsActive: true}
	userRepo := newMemoryUserRepository(user)
	tokenRepo := newMemoryTokenRepository()
	publisher := &recordingPublisher{}
	seedRefreshToken(tokenRepo, user.ID, "session-a", time.Now().Add(time.Hour))
	seedRefreshToken(tokenRepo, user.ID, "session-b", time.Now().Add(time.Hour))

	service := NewUserService(userRepo, tokenRepo, publisher, nil)

	if err := service.DeactivateUser(context.Background(), "admin-1", user.ID); err != nil {
		t.Fatalf("DeactivateUser returned error: %v", err)
	}

	stored, _ := userRepo.GetByID(context.Background(), user.ID)
	if stored.IsActive {
		t.Fatalf("expected account to be inactive")
	}
	if active := tokenRepo.activeTokensForUser(user.ID); active != 0 {
		t.Fatalf("expected every session revoked, %d still active", active)
	}
	if len(publisher.deactivated) != 1 {
		t.Fatalf("expected one deactivation event, got %d", len(publisher.deactivated))
	}
	if publisher.deactivated[0].DeactivatedBy != "admin-1" {
		t.Fatalf("expected deactivation attributed to admin-1")
	}
}

func TestUserService_ActivateUser_DoesNotRestoreSessions(t *testing.T) {
	user := domain.User{ID: "user-1", Username: "garage_pilot", Role: domain.RoleUser, IsActive: false}
	userRepo := newMemoryUserRepository(user)
	tokenRepo := newMemoryTokenRepository()
	record := seedRefreshToken(tokenRepo, user.ID, "old-session", time.Now().Add(time.Hour))
	at := time.Now()
	record.RevokedAt = &at
	tokenRepo.refresh[record.TokenHash] = record

	service := NewUserService(userRepo, tokenRepo, nil, nil)

	if err := service.ActivateUser(context.Background(), user.ID); err != nil {
		t.Fatalf("ActivateUser returned error: %v", err)
	}
	stored, _ := userRepo.GetByID(context.Background(), user.ID)
	if !stored.IsActive {
		t.Fatalf("expected account to be active")
	}
	if tokenRepo.refresh[record.TokenHash].RevokedAt == nil {
		t.Fatalf("reactivation must not resurrect revoked sessions")
	}
}

func TestUserService_ChangeRole(t *testing.T) {
	user := domain.User{ID: "user-1", Username: "garage_pilot", Role: domain.RoleUser, IsActive: true}
	userRepo := newMemoryUserRepository(user)
	service := NewUserService(userRepo, newMemoryTokenRepository(), nil, nil)

	if err := service.ChangeRole(context.Background(), user.ID, domain.RoleModerator); err != nil {
		t.Fatalf("ChangeRole returned error: %v", err)
	}
	stored, _ := userRepo.GetByID(context.Background(), user.ID)
	if stored.Role != domain.RoleModerator {
		t.Fatalf("expected role MODERATOR, got %s", stored.Role)
	}

	if err := service.ChangeRole(context.Background(), user.ID, domain.Role("SUPERUSER")); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
	if err := service.ChangeRole(context.Background(), "nobody", domain.RoleAdmin); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestUserService_DeleteUser(t *testing.T) {
	user := domain.User{ID: "user-1", Username: "garage_pilot", Role: domain.RoleUser, IsActive: true}
	userRepo := newMemoryUserRepository(user)
	tokenRepo := newMemoryTokenRepository()
	seedRefreshToken(tokenRepo, user.ID, "session-a", time.Now().Add(time.Hour))

	service := NewUserService(userRepo, tokenRepo, nil, nil)

	if err := service.DeleteUser(context.Background(), user.ID, user.ID); !errors.Is(err, ErrSelfDeletion) {
		t.Fatalf("expected ErrSelfDeletion, got %v", err)
	}

	if err := service.DeleteUser(context.Background(), "admin-1", user.ID); err != nil {
		t.Fatalf("DeleteUser returned error: %v", err)
	}
	if _, err := userRepo.GetByID(context.Background(), user.ID); err == nil {
		t.Fatalf("expected user to be removed")
	}
	if active := tokenRepo.activeTokensForUser(user.ID); active != 0 {
		t.Fatalf("expected sessions revoked before deletion")
	}
}

func TestUserService_ListUsers_ClampsLimit(t *testing.T) {
	users := make([]domain.User, 0, 60)
	for i := 0; i < 60; i++ {
		users = append(users, domain.User{
			ID:       "user-" + string(rune('a'+i/26)) + string(rune('a'+i%26)),
			Username: "pilot",
			Role:     domain.RoleUser,
			IsActive: true,
		})
	}
	userRepo := newMemoryUserRepository(users...)
	service := NewUserService(userRepo, newMemoryTokenRepository(), nil, nil)

	page, total, err := service.ListUsers(context.Background(), port.UserFilter{})
	if err != nil {
		t.Fatalf("ListUsers returned error: %v", err)
	}
	if len(page) != 50 {
		t.Fatalf("expected default page size 50, got %d", len(page))
	}
	if total != 60 {
		t.Fatalf("expected unpaged total 60, got %d", total)
	}
	for _, user := range page {
		if user.PasswordHash != "" || user.RecoveryAnswerHash != "" {
			t.Fatalf("expected sanitized listing")
		}
	}

	page, _, err = service.ListUsers(context.Background(), port.UserFilter{Limit: 500})
	if err != nil {
		t.Fatalf("ListUsers returned error: %v", err)
	}
	if len(page) != 50 {
		t.Fatalf("expected oversized limit to clamp to 50, got %d", len(page))
	}
}

func TestUserService_GetUser(t *testing.T) {
	user := domain.User{ID: "user-1", Username: "garage_pilot", PasswordHash: "secret", Role: domain.RoleUser, IsActive: true}
	service := NewUserService(newMemoryUserRepository(user), newMemoryTokenRepository(), nil, nil)

	found, err := service.GetUser(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("GetUser returned error: %v", err)
	}
	if found.PasswordHash != "" {
		t.Fatalf("expected sanitized user")
	}

	if _, err := service.GetUser(context.Background(), "nobody"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}
