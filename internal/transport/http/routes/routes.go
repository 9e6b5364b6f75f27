package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/arklim/accounts-iam/internal/infra/config"
	"github.com/arklim/accounts-iam/internal/infra/security"
	"github.com/arklim/accounts-iam/internal/transport/http/handlers"
	"github.com/arklim/accounts-iam/internal/transport/http/middleware"
	"github.com/arklim/accounts-iam/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Auth        *usecase.AuthService
	Users       *usecase.UserService
	Roles       *usecase.RoleService
	Permissions *usecase.PermissionService
}

// PolicySet groups the authorization policies enforced by the handlers.
type PolicySet struct {
	Users       *usecase.UserPolicy
	Roles       *usecase.CatalogPolicy
	Permissions *usecase.CatalogPolicy
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	RateLimiter *middleware.RateLimiter
	Metrics     *middleware.HTTPMetrics
	Gatherer    prometheus.Gatherer
	Services    ServiceSet
	Policies    PolicySet
	JWTManager  *security.JWTManager
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
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(deps.Config.Telemetry.ServiceName))
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(deps.Metrics.Handler())
	r.Use(middleware.CORS(deps.Config.App.CORSAllowedOrigins))

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, handlers.NewErrorResponse(c, "route not found"))
	})

	var healthOptions []handlers.HealthOption
	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}
	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}
	health := handlers.NewHealthHandler(healthOptions...)
	r.GET("/healthz", health.Status)
	r.GET("/readyz", health.Readiness)

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	r.GET("/.well-known/jwks.json", handlers.NewJWKSHandler(deps.JWTManager).Keys)

	if deps.Services.Auth != nil {
		requireAuth := middleware.RequireAuth(deps.Services.Auth)
		api := r.Group("/api/v1")

		handlers.NewAuthHandler(deps.Services.Auth, deps.Services.Users).
			RegisterRoutes(api.Group("/auth"), requireAuth, limit(deps, "auth_register_ip", deps.Config.RateLimit.RegisterMaxAttempts), limit(deps, "auth_login_ip", deps.Config.RateLimit.LoginMaxAttempts))

		users := api.Group("/users", requireAuth)
		handlers.NewUserHandler(deps.Services.Users, deps.Policies.Users, deps.Policies.Roles, deps.Policies.Permissions).RegisterRoutes(users)

		roles := api.Group("/roles", requireAuth)
		handlers.NewRoleHandler(deps.Services.Roles, deps.Policies.Roles).RegisterRoutes(roles)

		permissions := api.Group("/permissions", requireAuth)
		handlers.NewPermissionHandler(deps.Services.Permissions, deps.Policies.Permissions).RegisterRoutes(permissions)
	}

	handlers.RegisterSwagger(r, deps.Config.App.Env)

	return r
}

func limit(deps Dependencies, name string, attempts int) []gin.HandlerFunc {
	if deps.RateLimiter == nil || attempts <= 0 {
		return nil
	}

	window := deps.Config.RateLimit.WindowDuration
	if window <= 0 {
		window = time.Minute
	}

	return []gin.HandlerFunc{deps.RateLimiter.RateLimit(middleware.RateLimitRule{
		Name:       name,
		Limit:      attempts,
		Window:     window,
		Identifier: middleware.ClientIPIdentifier(),
	})}
}
