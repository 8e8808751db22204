package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/modmarket/auth-service/internal/core/domain"
	"github.com/modmarket/auth-service/internal/core/port"
	"github.com/modmarket/auth-service/internal/transport/http/middleware"
	"github.com/modmarket/auth-service/internal/usecase"
)

// AdminUsersHandler exposes the administrative account endpoints.
type AdminUsersHandler struct {
	users *usecase.UserService
}

// NewAdminUsersHandler constructs AdminUsersHandler.
func NewAdminUsersHandler(users *usecase.UserService) *AdminUsersHandler {
	return &AdminUsersHandler{users: users}
}

// RegisterRoutes binds the admin user routes. The caller is expected to have
// applied RequireAuth and RequireRole ahead of this group.
func (h *AdminUsersHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/users", h.list)
	r.GET("/users/:id", h.get)
	r.POST("/users/:id/activate", h.activate)
	r.POST("/users/:id/deactivate", h.deactivate)
	r.PUT("/users/:id/role", h.changeRole)
	r.DELETE("/users/:id", h.delete)
}

func (h *AdminUsersHandler) list(c *gin.Context) {
	filter := port.UserFilter{
		Search: c.Query("search"),
	}

	if role := c.Query("role"); role != "" {
		parsed := domain.Role(role)
		if !parsed.Valid() {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid role filter"))
			return
		}
		filter.Role = &parsed
	}

	if active := c.Query("is_active"); active != "" {
		parsed, err := strconv.ParseBool(active)
		if err != nil {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid is_active filter"))
			return
		}
		filter.IsActive = &parsed
	}

	filter.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	filter.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))

	users, total, err := h.users.ListUsers(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to list users"))
		return
	}

	summaries := make([]UserSummary, 0, len(users))
	for _, user := range users {
		summaries = append(summaries, newUserSummary(user))
	}

	c.JSON(http.StatusOK, UserListResponse{
		Users:  summaries,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	})
}

func (h *AdminUsersHandler) get(c *gin.Context) {
	user, err := h.users.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, usecase.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, NewErrorResponse(c, "user not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to fetch user"))
		return
	}

	c.JSON(http.StatusOK, newUserSummary(*user))
}

func (h *AdminUsersHandler) activate(c *gin.Context) {
	if err := h.users.ActivateUser(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, usecase.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, NewErrorResponse(c, "user not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to activate user"))
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *AdminUsersHandler) deactivate(c *gin.Context) {
	actorID, _ := middleware.GetAuthenticatedUserID(c)

	if err := h.users.DeactivateUser(c.Request.Context(), actorID, c.Param("id")); err != nil {
		if errors.Is(err, usecase.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, NewErrorResponse(c, "user not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to deactivate user"))
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *AdminUsersHandler) changeRole(c *gin.Context) {
	var req RoleChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid role payload"))
		return
	}

	if err := h.users.ChangeRole(c.Request.Context(), c.Param("id"), domain.Role(req.Role)); err != nil {
		switch {
		case errors.Is(err, usecase.ErrInvalidRole):
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid role"))
		case errors.Is(err, usecase.ErrUserNotFound):
			c.JSON(http.StatusNotFound, NewErrorResponse(c, "user not found"))
		default:
			c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to update role"))
		}
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *AdminUsersHandler) delete(c *gin.Context) {
	actorID, _ := middleware.GetAuthenticatedUserID(c)

	if err := h.users.DeleteUser(c.Request.Context(), actorID, c.Param("id")); err != nil {
		switch {
		case errors.Is(err, usecase.ErrSelfDeletion):
			c.JSON(http.StatusForbidden, NewErrorResponse(c, "cannot delete own account"))
		case errors.Is(err, usecase.ErrUserNotFound):
			c.JSON(http.StatusNotFound, NewErrorResponse(c, "user not found"))
		default:
			c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to delete user"))
		}
		return
	}

	c.Status(http.StatusNoContent)
}
