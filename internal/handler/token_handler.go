package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-livechat/internal/service"
	"github.com/noah-isme/gema-livechat/internal/utils"
)

// TokenHandler exchanges an authenticated session for a sync token.
type TokenHandler struct {
	service service.TokenService
	logger  zerolog.Logger
}

// NewTokenHandler constructs a TokenHandler.
func NewTokenHandler(service service.TokenService, logger zerolog.Logger) *TokenHandler {
	return &TokenHandler{
		service: service,
		logger:  logger.With().Str("component", "token_handler").Logger(),
	}
}

// Register binds the token route behind guards, which must include the session middleware.
// Guards are per route because the sibling push and pull routes authenticate differently.
func (h *TokenHandler) Register(router fiber.Router, guards ...fiber.Handler) {
	handlers := append(append([]fiber.Handler{}, guards...), h.Issue)
	router.Get("/token", handlers...)
}

// Issue returns a signed sync token for the session user.
func (h *TokenHandler) Issue(c *fiber.Ctx) error {
	identity := sessionIdentity(c)
	if identity.UserID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	token, err := h.service.Issue(c.UserContext(), identity)
	if err != nil {
		logger := requestLogger(h.logger, c)
		if errors.Is(err, service.ErrSyncSecretMissing) {
			logger.Error().Msg("sync token requested but signing key is not configured")
			return utils.SendError(c, fiber.StatusInternalServerError, "sync token unavailable")
		}
		logger.Error().Err(err).Str("user_id", identity.UserID).Msg("failed to issue sync token")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to issue sync token")
	}

	return utils.SendSuccess(c, "sync token issued", token)
}
