package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/unidesk/request-service/internal/api/http/handlers"
	"github.com/unidesk/request-service/internal/auth"
	"github.com/unidesk/request-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Tickets        *handlers.TicketsHandler
	Notifications  *handlers.NotificationsHandler
	Reports        *handlers.ReportsHandler
	Departments    *handlers.DepartmentsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/login", cfg.Auth.Login)
	authGroup.Post("/password/reset/request", cfg.Auth.RequestPasswordReset)
	authGroup.Post("/password/reset/confirm", cfg.Auth.ConfirmPasswordReset)

	authProtected := authGroup.Group("", cfg.AuthMiddleware.Handle)
	authProtected.Post("/logout", cfg.Auth.Logout)
	authProtected.Get("/me", cfg.Auth.Me)
	authProtected.Get("/sessions", cfg.Auth.LoginHistory)
	authProtected.Post("/password/change", cfg.Auth.ChangePassword)
	authProtected.Post("/register", auth.RequireRole(domain.RoleAdmin), cfg.Auth.Register)

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle)
	tickets.Post("", cfg.Tickets.CreateTicket)
	tickets.Get("", cfg.Tickets.ListTickets)
	tickets.Get("/pending-acks", cfg.Tickets.PendingAcks)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Post("/:id/acknowledge", cfg.Tickets.Acknowledge)
	tickets.Post("/:id/comments", cfg.Tickets.Comment)
	tickets.Post("/:id/resolve", cfg.Tickets.Resolve)
	tickets.Post("/:id/close", cfg.Tickets.Close)
	tickets.Post("/:id/return", cfg.Tickets.Return)
	tickets.Post("/:id/reassign", cfg.Tickets.Reassign)
	tickets.Post("/:id/violation",
		auth.RequireRole(domain.RoleAdmin, domain.RolePresident), cfg.Tickets.MarkViolation)

	notifications := app.Group("/notifications", cfg.AuthMiddleware.Handle)
	notifications.Get("", cfg.Notifications.List)
	notifications.Get("/unread-count", cfg.Notifications.UnreadCount)
	notifications.Post("/read", cfg.Notifications.MarkRead)
	notifications.Post("/read-all", cfg.Notifications.MarkAllRead)

	reports := app.Group("/reports", cfg.AuthMiddleware.Handle, auth.RequireUpperManagement())
	reports.Get("/stats", cfg.Reports.Stats)
	reports.Get("/departments", cfg.Reports.DepartmentPerformance)
	reports.Get("/penalties/users", cfg.Reports.UserLeaderboard)
	reports.Get("/penalties/departments", cfg.Reports.DepartmentLeaderboard)
	reports.Get("/tickets/export.csv", cfg.Reports.ExportCSV)
	reports.Get("/tickets/export.xlsx", cfg.Reports.ExportExcel)

	departments := app.Group("/departments", cfg.AuthMiddleware.Handle)
	departments.Get("", cfg.Departments.List)
	departments.Post("", auth.RequireRole(domain.RoleAdmin), cfg.Departments.Create)
}
