package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/acadex/acadex-api/internal/config"
	"github.com/acadex/acadex-api/internal/handler"
	"github.com/acadex/acadex-api/internal/middleware"
	"github.com/acadex/acadex-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	UploadHandler     *handler.UploadHandler
	EvaluationHandler *handler.EvaluationHandler
	DebugHandler      *handler.DebugHandler
	JWTMiddleware     fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	// Common v1 group for health & headers
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))

	app.Get("/metrics", observability.MetricsHandler())

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	if deps.UploadHandler != nil {
		uploads := api.Group("/uploads", jwtMiddleware)
		deps.UploadHandler.Register(uploads)
	}

	if deps.EvaluationHandler != nil {
		evaluations := api.Group("", jwtMiddleware,
			middleware.RateLimit("evaluate", 30, time.Minute))
		deps.EvaluationHandler.Register(evaluations)
	}

	if deps.DebugHandler != nil {
		debug := api.Group("/debug", jwtMiddleware)
		deps.DebugHandler.Register(debug)
	}
}
