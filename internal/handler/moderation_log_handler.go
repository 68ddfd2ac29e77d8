package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-livechat/internal/dto"
	"github.com/noah-isme/gema-livechat/internal/middleware"
	"github.com/noah-isme/gema-livechat/internal/service"
	"github.com/noah-isme/gema-livechat/internal/utils"
)

// ModerationLogHandler exposes the moderation audit trail.
type ModerationLogHandler struct {
	service service.ModerationLogService
	logger  zerolog.Logger
}

// NewModerationLogHandler constructs a ModerationLogHandler.
func NewModerationLogHandler(service service.ModerationLogService, logger zerolog.Logger) *ModerationLogHandler {
	return &ModerationLogHandler{
		service: service,
		logger:  logger.With().Str("component", "moderation_log_handler").Logger(),
	}
}

// Register binds the route; the router is expected to be admin-only.
func (h *ModerationLogHandler) Register(router fiber.Router) {
	router.Get("/", h.List)
}

func (h *ModerationLogHandler) List(c *fiber.Ctx) error {
	var req dto.ModerationLogListRequest
	if err := c.QueryParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid query parameters")
	}

	result, err := h.service.List(middleware.RequestContext(c), req)
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to list moderation logs")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to list moderation logs")
	}

	return utils.OK(c, result.Items, "moderation logs retrieved", result.Pagination)
}
