package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/modmarket/auth-service/internal/usecase"
)

// RegistrationHandler exposes the sign-up endpoint.
type RegistrationHandler struct {
	registration *usecase.RegistrationService
	isDev        bool
}

// NewRegistrationHandler constructs RegistrationHandler. In development mode
// the verification token is returned in the response body instead of being
// delivered out of band.
func NewRegistrationHandler(registration *usecase.RegistrationService, isDev bool) *RegistrationHandler {
	return &RegistrationHandler{registration: registration, isDev: isDev}
}

// RegisterRoutes binds the registration routes.
func (h *RegistrationHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/register", h.register)
}

func (h *RegistrationHandler) register(c *gin.Context) {
	var req RegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid registration payload"))
		return
	}

	result, err := h.registration.Register(c.Request.Context(), usecase.RegisterInput{
		Username:         req.Username,
		Email:            req.Email,
		Password:         req.Password,
		RecoveryQuestion: req.RecoveryQuestion,
		RecoveryAnswer:   req.RecoveryAnswer,
	})
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrUserAlreadyExists):
			c.JSON(http.StatusConflict, NewErrorResponse(c, "username or email already registered"))
		case errors.Is(err, usecase.ErrPasswordPolicyViolation):
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "password does not meet requirements"))
		default:
			c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to register user"))
		}
		return
	}

	resp := RegistrationResponse{
		User:    newUserSummary(result.User),
		Message: "verification email sent",
	}

	if h.isDev {
		if token := strings.TrimSpace(result.VerificationToken); token != "" {
			resp.DevVerificationToken = &token
		}
	}

	c.JSON(http.StatusCreated, resp)
}
