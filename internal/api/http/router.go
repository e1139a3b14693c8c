package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/gymcore/access-service/internal/api/http/handlers"
	"github.com/gymcore/access-service/internal/auth"
	"github.com/gymcore/access-service/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Access         *handlers.AccessHandler
	AuthMiddleware *auth.AuthMiddleware
	Policy         *auth.PolicyTable
	LoginLimiter   *auth.LoginLimiter
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	policy := cfg.Policy
	if policy == nil {
		policy = auth.DefaultPolicyTable()
	}

	authGroup := app.Group("/auth")
	if cfg.LoginLimiter != nil {
		authGroup.Use(cfg.LoginLimiter.Handler())
	}
	authGroup.Post("/members/register", cfg.Auth.RegisterMember)
	authGroup.Post("/members/login", cfg.Auth.LoginMember)
	authGroup.Post("/staff/login", cfg.Auth.LoginStaff)

	access := app.Group("/access", cfg.AuthMiddleware.Handle, policy.Enforce())
	access.Get("/credential", cfg.Access.Credential)
	access.Post("/validate", cfg.Access.Validate)
	access.Post("/manual-entry", cfg.Access.ManualEntry)
	access.Get("/records", cfg.Access.Records)
	access.Get("/stats", cfg.Access.Stats)

	admin := app.Group("/admin", cfg.AuthMiddleware.Handle, policy.Enforce())
	admin.Post("/staff", cfg.Auth.CreateStaff)
}
