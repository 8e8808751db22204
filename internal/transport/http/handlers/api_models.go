package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/modmarket/auth-service/internal/core/domain"
	"github.com/modmarket/auth-service/internal/transport/http/middleware"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context.
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		TraceID: middleware.GetTraceID(c),
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// UserSummary describes a minimal view of a user returned by the API.
type UserSummary struct {
	ID            string      `json:"id"`
	Username      string      `json:"username"`
	Email         string      `json:"email"`
	Role          domain.Role `json:"role"`
	IsActive      bool        `json:"is_active"`
	EmailVerified bool        `json:"email_verified"`
	LastLoginAt   *time.Time  `json:"last_login_at,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
}

func newUserSummary(user domain.User) UserSummary {
	return UserSummary{
		ID:            user.ID,
		Username:      user.Username,
		Email:         user.Email,
		Role:          user.Role,
		IsActive:      user.IsActive,
		EmailVerified: user.IsEmailVerified(),
		LastLoginAt:   user.LastLoginAt,
		CreatedAt:     user.CreatedAt,
	}
}

// LoginRequest defines the payload for the login endpoint.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse describes the response returned for a successful login. The
// refresh token travels only in the HTTP-only cookie, never in the body.
type LoginResponse struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	ExpiresIn   int         `json:"expires_in"`
	User        UserSummary `json:"user"`
}

// RegistrationRequest defines the account registration payload.
type RegistrationRequest struct {
	Username         string `json:"username" binding:"required"`
	Email            string `json:"email" binding:"required,email"`
	Password         string `json:"password" binding:"required"`
	RecoveryQuestion string `json:"recovery_question" binding:"required"`
	RecoveryAnswer   string `json:"recovery_answer" binding:"required"`
}

// RegistrationResponse contains registration results and next steps.
type RegistrationResponse struct {
	User    UserSummary `json:"user"`
	Message string      `json:"message"`
	// DevVerificationToken is only exposed in development mode; production
	// delivers the token via email.
	DevVerificationToken *string `json:"dev_verification_token,omitempty"`
}

// RecoveryQuestionResponse returns the recovery question for a username.
type RecoveryQuestionResponse struct {
	Question string `json:"question"`
}

// RecoveryAnswerRequest holds the recovery answer payload.
type RecoveryAnswerRequest struct {
	Username string `json:"username" binding:"required"`
	Answer   string `json:"answer" binding:"required"`
}

// RecoveryAnswerResponse carries the single-use reset token.
type RecoveryAnswerResponse struct {
	ResetToken string `json:"reset_token"`
}

// PasswordResetRequest holds the final reset payload.
type PasswordResetRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// UserListResponse is the paged admin listing payload.
type UserListResponse struct {
	Users  []UserSummary `json:"users"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// RoleChangeRequest updates a user's role.
type RoleChangeRequest struct {
	Role string `json:"role" binding:"required"`
}

// HealthResponse reports liveness information.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}
