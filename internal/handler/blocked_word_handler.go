package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-livechat/internal/dto"
	"github.com/noah-isme/gema-livechat/internal/middleware"
	"github.com/noah-isme/gema-livechat/internal/service"
	"github.com/noah-isme/gema-livechat/internal/utils"
)

// BlockedWordHandler exposes the admin word filter endpoints.
type BlockedWordHandler struct {
	service service.BlockedWordService
	logger  zerolog.Logger
}

// NewBlockedWordHandler constructs a BlockedWordHandler.
func NewBlockedWordHandler(service service.BlockedWordService, logger zerolog.Logger) *BlockedWordHandler {
	return &BlockedWordHandler{
		service: service,
		logger:  logger.With().Str("component", "blocked_word_handler").Logger(),
	}
}

// Register binds the routes; the router is expected to be admin-only.
func (h *BlockedWordHandler) Register(router fiber.Router) {
	router.Get("/", h.List)
	router.Post("/", h.Create)
	router.Delete("/:id", h.Delete)
}

func (h *BlockedWordHandler) List(c *fiber.Ctx) error {
	words, err := h.service.List(middleware.RequestContext(c))
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to list blocked words")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to list blocked words")
	}
	return utils.SendSuccess(c, "blocked words retrieved", words)
}

func (h *BlockedWordHandler) Create(c *fiber.Ctx) error {
	var req dto.BlockedWordCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	word, err := h.service.Add(middleware.RequestContext(c), sessionIdentity(c), req)
	switch {
	case isValidationError(err):
		return utils.Fail(c, fiber.StatusBadRequest, "invalid blocked word", validationDetails(err))
	case errors.Is(err, service.ErrBlockedWordExists):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	case err != nil:
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to add blocked word")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to add blocked word")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "blocked word added", word)
}

func (h *BlockedWordHandler) Delete(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	err = h.service.Delete(middleware.RequestContext(c), sessionIdentity(c), id)
	if errors.Is(err, service.ErrBlockedWordNotFound) {
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	}
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Uint("id", id).Msg("failed to delete blocked word")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to delete blocked word")
	}

	return utils.SendSuccess(c, "blocked word removed", nil)
}
