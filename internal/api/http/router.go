package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/queue-service/internal/api/http/handlers"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health      *handlers.HealthHandler
	Tokens      *handlers.TokensHandler
	Departments *handlers.DepartmentsHandler
	Counters    *handlers.CountersHandler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	api := app.Group("/api/v1")

	api.Post("/tokens", cfg.Tokens.IssueToken)
	api.Get("/tokens/:number", cfg.Tokens.GetToken)
	api.Get("/tokens/:number/history", cfg.Tokens.GetHistory)
	api.Post("/tokens/:number/start", cfg.Tokens.StartService)
	api.Post("/tokens/:number/complete", cfg.Tokens.CompleteService)
	api.Post("/tokens/:number/cancel", cfg.Tokens.CancelToken)
	api.Post("/tokens/:number/transfer", cfg.Tokens.TransferToken)

	api.Post("/departments", cfg.Departments.CreateDepartment)
	api.Get("/departments", cfg.Departments.ListDepartments)
	api.Get("/departments/:id", cfg.Departments.GetDepartment)
	api.Get("/departments/:id/queue", cfg.Departments.GetQueue)
	api.Put("/departments/:id/queue/order", cfg.Departments.ReorderQueue)
	api.Get("/departments/:id/estimate", cfg.Departments.EstimateWait)
	api.Get("/departments/:id/counters", cfg.Counters.ListCounters)

	api.Post("/counters", cfg.Counters.CreateCounter)
	api.Post("/counters/:id/call-next", cfg.Counters.CallNext)
}
