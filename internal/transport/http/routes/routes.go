package routes

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/modmarket/auth-service/internal/core/domain"
	"github.com/modmarket/auth-service/internal/core/port"
	"github.com/modmarket/auth-service/internal/infra/config"
	"github.com/modmarket/auth-service/internal/infra/security"
	"github.com/modmarket/auth-service/internal/transport/http/handlers"
	"github.com/modmarket/auth-service/internal/transport/http/middleware"
	"github.com/modmarket/auth-service/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Auth         *usecase.AuthService
	Registration *usecase.RegistrationService
	Verification *usecase.VerificationService
	Recovery     *usecase.RecoveryService
	Users        *usecase.UserService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	RateLimiter *middleware.RateLimiter
	Services    ServiceSet
	JWTManager  *security.JWTManager
	UserRepo    port.UserRepository
	Metrics     *middleware.HTTPMetrics
	Database    DatabaseChecker
	Cache       CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Handler())
	}

	authMiddleware := middleware.RequireAuth(deps.JWTManager)
	adminOnly := middleware.RequireRole(deps.UserRepo, domain.RoleAdmin)

	healthOptions := make([]handlers.HealthOption, 0, 2)
	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}
	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}

	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		isDev := !deps.Config.IsProduction()

		authGroup := api.Group("/auth")

		authHandler := handlers.NewAuthHandler(deps.Services.Auth, deps.Config)
		authHandler.RegisterRoutes(authGroup,
			buildRateLimit(deps, "auth_login_ip", deps.Config.RateLimit.LoginMaxAttempts),
			buildRateLimit(deps, "auth_refresh_ip", deps.Config.RateLimit.RefreshMaxAttempts),
		)

		registrationHandler := handlers.NewRegistrationHandler(deps.Services.Registration, isDev)
		registrationHandler.RegisterRoutes(authGroup)

		verificationHandler := handlers.NewVerificationHandler(deps.Services.Verification)
		verificationHandler.RegisterRoutes(authGroup)

		recoveryHandler := handlers.NewRecoveryHandler(deps.Services.Recovery)
		recoveryHandler.RegisterRoutes(authGroup,
			buildRateLimit(deps, "auth_recovery_ip", deps.Config.RateLimit.RecoveryMaxAttempts))

		adminGroup := api.Group("/admin")
		adminGroup.Use(authMiddleware, adminOnly)
		adminHandler := handlers.NewAdminUsersHandler(deps.Services.Users)
		adminHandler.RegisterRoutes(adminGroup)
	}

	return r
}

func buildRateLimit(deps Dependencies, name string, limit int) gin.HandlerFunc {
	if deps.RateLimiter == nil || deps.Config == nil || limit <= 0 {
		return nil
	}

	window := deps.Config.RateLimit.WindowDuration
	if window <= 0 {
		window = time.Minute
	}

	rule := middleware.RateLimitRule{
		Name:       name,
		Limit:      limit,
		Window:     window,
		Identifier: middleware.ClientIPIdentifier(),
	}

	return deps.RateLimiter.RateLimit(rule)
}
