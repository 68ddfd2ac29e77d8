package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-livechat/internal/config"
	"github.com/noah-isme/gema-livechat/internal/handler"
	"github.com/noah-isme/gema-livechat/internal/middleware"
	"github.com/noah-isme/gema-livechat/internal/models"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	TokenHandler         *handler.TokenHandler
	SyncHandler          *handler.SyncHandler
	EventHandler         *handler.EventHandler
	BlockedWordHandler   *handler.BlockedWordHandler
	ModerationLogHandler *handler.ModerationLogHandler
	JWTMiddleware        fiber.Handler
	PublisherMode        string
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	// Common v1 group for health & headers
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.PublisherMode))

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	// Sync: the token route uses the session, push/pull/poke use sync tokens.
	sync := api.Group("/sync")
	if deps.TokenHandler != nil {
		deps.TokenHandler.Register(sync, jwtMiddleware, middleware.RateLimit("sync-token", 30, time.Minute))
	}
	if deps.SyncHandler != nil {
		deps.SyncHandler.Register(sync)
	}

	if deps.EventHandler != nil {
		events := api.Group("/events", jwtMiddleware)
		deps.EventHandler.Register(events)
	}

	admin := api.Group("/admin", jwtMiddleware, middleware.RequireRole(string(models.RoleAdmin)))
	if deps.BlockedWordHandler != nil {
		deps.BlockedWordHandler.Register(admin.Group("/blocked-words"))
	}
	if deps.ModerationLogHandler != nil {
		deps.ModerationLogHandler.Register(admin.Group("/moderation-logs"))
	}
}
