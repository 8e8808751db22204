package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/modmarket/auth-service/internal/infra/config"
	"github.com/modmarket/auth-service/internal/usecase"
)

// AuthHandler exposes login, refresh, and logout endpoints. The refresh token
// is delivered exclusively as an HTTP-only cookie scoped to the auth subtree.
type AuthHandler struct {
	auth   *usecase.AuthService
	cookie config.CookieSettings
	secure bool
	ttl    int
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(auth *usecase.AuthService, cfg *config.AppConfig) *AuthHandler {
	return &AuthHandler{
		auth:   auth,
		cookie: cfg.Cookie,
		secure: cfg.IsProduction(),
		ttl:    int(cfg.JWT.RefreshTokenTTL.Seconds()),
	}
}

// RegisterRoutes binds authentication routes, applying optional middleware
// ahead of the login and refresh handlers.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup, loginLimiter, refreshLimiter gin.HandlerFunc) {
	if loginLimiter != nil {
		r.POST("/login", loginLimiter, h.login)
	} else {
		r.POST("/login", h.login)
	}
	if refreshLimiter != nil {
		r.POST("/refresh", refreshLimiter, h.refresh)
	} else {
		r.POST("/refresh", h.refresh)
	}
	r.POST("/logout", h.logout)
}

func (h *AuthHandler) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid login payload"))
		return
	}

	meta := usecase.ClientMeta{
		IP:        strings.TrimSpace(c.ClientIP()),
		UserAgent: strings.TrimSpace(c.Request.UserAgent()),
	}

	result, err := h.auth.Login(c.Request.Context(), req.Username, req.Password, meta)
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid credentials"))
		case errors.Is(err, usecase.ErrInactiveAccount):
			c.JSON(http.StatusForbidden, NewErrorResponse(c, "account inactive"))
		default:
			c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "authentication failed"))
		}
		return
	}

	h.setRefreshCookie(c, result.RefreshToken)

	c.JSON(http.StatusOK, LoginResponse{
		AccessToken: result.AccessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int(h.auth.AccessTokenTTL().Seconds()),
		User:        newUserSummary(result.User),
	})
}

func (h *AuthHandler) refresh(c *gin.Context) {
	presented, err := c.Cookie(h.cookie.Name)
	if err != nil || strings.TrimSpace(presented) == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "missing refresh token"))
		return
	}

	meta := usecase.ClientMeta{
		IP:        strings.TrimSpace(c.ClientIP()),
		UserAgent: strings.TrimSpace(c.Request.UserAgent()),
	}

	result, err := h.auth.Refresh(c.Request.Context(), presented, meta)
	if err != nil {
		h.clearRefreshCookie(c)
		switch {
		case errors.Is(err, usecase.ErrInvalidRefreshToken),
			errors.Is(err, usecase.ErrRevokedRefreshToken),
			errors.Is(err, usecase.ErrExpiredRefreshToken),
			errors.Is(err, usecase.ErrRefreshTokenReplay):
			// Deliberately coarse: the distinct failure causes are logged
			// server-side but never leaked to the client.
			c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid or expired refresh token"))
		case errors.Is(err, usecase.ErrInactiveAccount):
			c.JSON(http.StatusForbidden, NewErrorResponse(c, "account inactive"))
		default:
			c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to refresh token"))
		}
		return
	}

	h.setRefreshCookie(c, result.RefreshToken)

	c.JSON(http.StatusOK, LoginResponse{
		AccessToken: result.AccessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int(h.auth.AccessTokenTTL().Seconds()),
		User:        newUserSummary(result.User),
	})
}

// logout revokes the presented session and always clears the cookie. The
// client-visible outcome never fails, even when no token was presented.
func (h *AuthHandler) logout(c *gin.Context) {
	presented, _ := c.Cookie(h.cookie.Name)

	if err := h.auth.Logout(c.Request.Context(), presented); err != nil {
		// Logged at the usecase level; logout still succeeds for the client.
		_ = c.Error(err)
	}

	h.clearRefreshCookie(c)
	c.Status(http.StatusNoContent)
}

func (h *AuthHandler) setRefreshCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, token, h.ttl, h.cookie.Path, h.cookie.Domain, h.secure, true)
}

func (h *AuthHandler) clearRefreshCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, "", -1, h.cookie.Path, h.cookie.Domain, h.secure, true)
}
