package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/modmarket/auth-service/internal/usecase"
)

// RecoveryHandler exposes the recovery-question password reset flow.
type RecoveryHandler struct {
	recovery *usecase.RecoveryService
}

// NewRecoveryHandler constructs RecoveryHandler.
func NewRecoveryHandler(recovery *usecase.RecoveryService) *RecoveryHandler {
	return &RecoveryHandler{recovery: recovery}
}

// RegisterRoutes binds the recovery routes, applying the optional rate
// limiter ahead of the answer verification step.
func (h *RecoveryHandler) RegisterRoutes(r *gin.RouterGroup, limiter gin.HandlerFunc) {
	r.GET("/recovery/:username", h.question)
	if limiter != nil {
		r.POST("/recovery/verify", limiter, h.verifyAnswer)
	} else {
		r.POST("/recovery/verify", h.verifyAnswer)
	}
	r.POST("/recovery/reset", h.resetPassword)
}

// question returns the recovery question for step one of the flow.
func (h *RecoveryHandler) question(c *gin.Context) {
	username := c.Param("username")

	question, err := h.recovery.GetRecoveryQuestion(c.Request.Context(), username)
	if err != nil {
		if errors.Is(err, usecase.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, NewErrorResponse(c, "user not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to fetch recovery question"))
		return
	}

	c.JSON(http.StatusOK, RecoveryQuestionResponse{Question: question})
}

// verifyAnswer checks the recovery answer and returns a single-use reset token.
func (h *RecoveryHandler) verifyAnswer(c *gin.Context) {
	var req RecoveryAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid recovery payload"))
		return
	}

	token, err := h.recovery.VerifyRecoveryAnswer(c.Request.Context(), req.Username, req.Answer)
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrUserNotFound):
			c.JSON(http.StatusNotFound, NewErrorResponse(c, "user not found"))
		case errors.Is(err, usecase.ErrInvalidRecoveryAnswer):
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid answer"))
		default:
			c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to verify answer"))
		}
		return
	}

	c.JSON(http.StatusOK, RecoveryAnswerResponse{ResetToken: token})
}

// resetPassword redeems the reset token and replaces the password. Every
// existing session for the account is revoked as part of the reset.
func (h *RecoveryHandler) resetPassword(c *gin.Context) {
	var req PasswordResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid reset payload"))
		return
	}

	if err := h.recovery.ResetPassword(c.Request.Context(), req.Token, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, usecase.ErrInvalidOneTimeToken),
			errors.Is(err, usecase.ErrOneTimeTokenUsed),
			errors.Is(err, usecase.ErrOneTimeTokenExpired):
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid or expired token"))
		case errors.Is(err, usecase.ErrInactiveAccount):
			c.JSON(http.StatusForbidden, NewErrorResponse(c, "account inactive"))
		case errors.Is(err, usecase.ErrPasswordPolicyViolation):
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "password does not meet requirements"))
		default:
			c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to reset password"))
		}
		return
	}

	c.Status(http.StatusNoContent)
}
