package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/modmarket/auth-service/internal/usecase"
)

// VerificationHandler exposes the email verification endpoint.
type VerificationHandler struct {
	verification *usecase.VerificationService
}

// NewVerificationHandler constructs VerificationHandler.
func NewVerificationHandler(verification *usecase.VerificationService) *VerificationHandler {
	return &VerificationHandler{verification: verification}
}

// RegisterRoutes binds the verification routes.
func (h *VerificationHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/verify-email", h.verifyEmail)
}

// verifyEmail consumes the token delivered by the verification email link.
func (h *VerificationHandler) verifyEmail(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "token is required"))
		return
	}

	if _, err := h.verification.VerifyEmail(c.Request.Context(), token); err != nil {
		switch {
		case errors.Is(err, usecase.ErrInvalidOneTimeToken),
			errors.Is(err, usecase.ErrOneTimeTokenUsed),
			errors.Is(err, usecase.ErrOneTimeTokenExpired):
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid or expired token"))
		case errors.Is(err, usecase.ErrEmailAlreadyVerified):
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "email already verified"))
		default:
			c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to verify email"))
		}
		return
	}

	c.Status(http.StatusNoContent)
}
