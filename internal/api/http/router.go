package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-workflow/internal/api/http/handlers"
	"github.com/spec-kit/ticket-workflow/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Assignment     *handlers.AssignmentHandler
	Reopen         *handlers.ReopenHandler
	Notifications  *handlers.NotificationsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	health := app.Group("/health")
	health.Get("/live", cfg.Health.Live)
	health.Get("/ready", cfg.Health.Ready)
	health.Get("/metrics", cfg.Health.Metrics)

	api := app.Group("/api", cfg.AuthMiddleware.Handle, auth.RequireRole())

	tickets := api.Group("/tickets/:id")
	tickets.Get("/", cfg.Tickets.GetTicket)
	tickets.Get("/activity", cfg.Tickets.Activity)
	tickets.Get("/sla", cfg.Tickets.SLA)
	tickets.Post("/transitions", auth.RequireStaff(), cfg.Tickets.Transition)

	tickets.Post("/assignment/self", auth.RequireStaff(), cfg.Assignment.SelfAssign)
	tickets.Post("/assignment/transfer", auth.RequireStaff(), cfg.Assignment.Transfer)
	tickets.Delete("/assignment", auth.RequireStaff(), cfg.Assignment.Unassign)

	tickets.Post("/reopen-requests", cfg.Reopen.Create)
	tickets.Get("/reopen-requests", cfg.Reopen.List)
	api.Post("/reopen-requests/:id/review", auth.RequireStaff(), cfg.Reopen.Review)

	api.Get("/notifications", cfg.Notifications.List)
	api.Post("/notifications/:id/read", cfg.Notifications.MarkRead)
}
