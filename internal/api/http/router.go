package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/identity-service/internal/api/http/handlers"
	"github.com/spec-kit/identity-service/internal/auth"
	"github.com/spec-kit/identity-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Agents         *handlers.AgentsHandler
	Identity       *handlers.IdentityHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/agents/register", cfg.Agents.Register)
	authGroup.Post("/agents/login", cfg.Agents.Login)
	authGroup.Get("/agents/me", cfg.AuthMiddleware.Handle, cfg.Agents.Me)

	identityGroup := app.Group("/identity", cfg.AuthMiddleware.Handle, auth.RequireAgent())
	identityGroup.Post("/resolve", cfg.Identity.Resolve)
	identityGroup.Post("/profile", cfg.Identity.Profile)
	identityGroup.Get("/stats", cfg.Identity.Stats)
	identityGroup.Get("/:id/profile", cfg.Identity.ProfileByID)
	identityGroup.Get("/:id/links", auth.RequireRole(domain.AgentRoleAdmin), cfg.Identity.ListLinks)
	identityGroup.Post("/:id/links", auth.RequireRole(domain.AgentRoleAdmin), cfg.Identity.AddLink)
	identityGroup.Get("/:id/audit", auth.RequireRole(domain.AgentRoleAdmin), cfg.Identity.AuditLog)
}
