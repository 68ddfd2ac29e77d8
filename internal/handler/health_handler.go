package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-livechat/internal/config"
	"github.com/noah-isme/gema-livechat/internal/utils"
)

// HealthResponse represents the payload returned by the health endpoint.
type HealthResponse struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Service     string    `json:"service"`
	Environment string    `json:"environment"`
	Publisher   string    `json:"publisher,omitempty"`
}

// HealthCheck returns a handler that reports application health information. publisherMode
// names the side-effect dispatcher in use ("amqp" or "noop").
func HealthCheck(cfg config.Config, publisherMode string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		payload := HealthResponse{
			Status:      "ok",
			Timestamp:   time.Now().UTC(),
			Service:     cfg.AppName,
			Environment: cfg.AppEnv,
			Publisher:   publisherMode,
		}

		return utils.SendSuccess(c, "service healthy", payload)
	}
}
