package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/ctf-go-api/internal/config"
	"github.com/noah-isme/ctf-go-api/internal/handler"
	"github.com/noah-isme/ctf-go-api/internal/middleware"
	"github.com/noah-isme/ctf-go-api/internal/models"
	"github.com/noah-isme/ctf-go-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	AuthHandler           *handler.AuthHandler
	ChallengeHandler      *handler.ChallengeHandler
	InstanceHandler       *handler.InstanceHandler
	AdminChallengeHandler *handler.AdminChallengeHandler
	HealthProbes          map[string]handler.HealthProbe
	JWTMiddleware         fiber.Handler
	SubmitLimiter         fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes))
	app.Get("/metrics", observability.MetricsHandler())

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = middleware.JWTProtected(cfg.JWTSecret)
	}

	if deps.AuthHandler != nil {
		deps.AuthHandler.Register(api.Group("/accounts"))
	}

	if deps.ChallengeHandler != nil {
		var guards []fiber.Handler
		if deps.SubmitLimiter != nil {
			guards = append(guards, deps.SubmitLimiter)
		}
		deps.ChallengeHandler.Register(api.Group("/challenges", jwtMiddleware), guards...)
	}

	if deps.InstanceHandler != nil {
		deps.InstanceHandler.Register(api.Group("/instances", jwtMiddleware))
	}

	if deps.AdminChallengeHandler != nil {
		admin := api.Group("/admin", jwtMiddleware, middleware.RequireRole(models.RoleAdmin))
		deps.AdminChallengeHandler.Register(admin.Group("/challenges"))
	}
}
