package http

import (
	nethttp "net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/helpdesk-core/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-core/internal/auth"
	"github.com/spec-kit/helpdesk-core/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Tickets        *handlers.TicketsHandler
	Assignment     *handlers.AssignmentHandler
	Notifications  *handlers.NotificationsHandler
	AuthMiddleware *auth.Middleware
	MetricsHandler nethttp.Handler
	WS             fiber.Handler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", adaptor.HTTPHandler(cfg.MetricsHandler))

	app.Post("/auth/login", cfg.Auth.Login)
	app.Get("/ws", cfg.WS)

	authed := app.Group("", cfg.AuthMiddleware.Handle)
	authed.Post("/auth/logout", cfg.Auth.Logout)
	authed.Post("/auth/password/change", cfg.Auth.ChangePassword)
	authed.Get("/auth/revocations/stats", auth.RequireRole(domain.RoleAdmin), cfg.Auth.RevocationStats)
	authed.Post("/principals/:id/deactivate", auth.RequireRole(domain.RoleAdmin), cfg.Auth.Deactivate)

	authed.Post("/tickets", cfg.Tickets.Create)
	authed.Post("/tickets/:id/status", auth.RequireRole(domain.RoleWorker, domain.RoleAdmin), cfg.Tickets.Transition)
	authed.Post("/tickets/:id/auto-assign", auth.RequireRole(domain.RoleAdmin), cfg.Tickets.AutoAssign)
	authed.Post("/tickets/:id/assign", auth.RequireRole(domain.RoleAdmin), cfg.Tickets.ManualAssign)

	authed.Post("/assignment/toggle-requests", auth.RequireRole(domain.RoleWorker), cfg.Assignment.RequestToggle)
	authed.Post("/assignment/toggle-requests/:id/decision", auth.RequireRole(domain.RoleAdmin), cfg.Assignment.Decide)
	authed.Get("/assignment/stats", auth.RequireRole(domain.RoleAdmin), cfg.Assignment.Stats)

	authed.Get("/notifications", cfg.Notifications.List)
	authed.Post("/notifications/:id/read", cfg.Notifications.MarkRead)
}
