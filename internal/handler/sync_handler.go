package handler

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-livechat/internal/middleware"
	"github.com/noah-isme/gema-livechat/internal/service"
	"github.com/noah-isme/gema-livechat/internal/utils"
	"github.com/noah-isme/gema-livechat/pkg/syncproto"
)

var (
	pushSchema = mustLoadBodySchema("push.json")
	pullSchema = mustLoadBodySchema("pull.json")
)

// SyncHandler serves the push, pull and poke endpoints used by client engines.
type SyncHandler struct {
	tokens    service.TokenService
	mutations service.MutationService
	sync      service.SyncService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewSyncHandler constructs a SyncHandler.
func NewSyncHandler(tokens service.TokenService, mutations service.MutationService, sync service.SyncService, validate *validator.Validate, logger zerolog.Logger) *SyncHandler {
	return &SyncHandler{
		tokens:    tokens,
		mutations: mutations,
		sync:      sync,
		validator: validate,
		logger:    logger.With().Str("component", "sync_handler").Logger(),
	}
}

// Register binds the sync routes. They authenticate with sync tokens, not sessions.
func (h *SyncHandler) Register(router fiber.Router) {
	router.Post("/push", h.Push)
	router.Post("/pull", h.Pull)

	router.Use("/poke", h.upgrade)
	router.Get("/poke", websocket.New(h.handlePoke))
}

// Push applies a batch of mutations for one client group.
func (h *SyncHandler) Push(c *fiber.Ctx) error {
	if err := pushSchema.check(c.Body()); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid push body", err.Error())
	}

	var req syncproto.PushRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid push body")
	}
	if err := h.validator.Struct(req); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid push body", validationDetails(err))
	}
	if req.PushVersion != syncproto.PushVersion {
		return utils.SendError(c, fiber.StatusBadRequest, "unsupported push version")
	}

	logger := requestLogger(h.logger, c)

	identity, err := h.verify(c.Get(fiber.HeaderAuthorization))
	if err != nil {
		if errors.Is(err, service.ErrSyncSecretMissing) {
			logger.Error().Msg("push rejected: sync signing key is not configured")
			return c.Status(fiber.StatusInternalServerError).JSON(failAll(req.Mutations, syncproto.ErrInternal, syncproto.InternalErrorMessage))
		}
		return c.Status(fiber.StatusUnauthorized).JSON(failAll(req.Mutations, syncproto.ErrAuthenticationRequired, "authentication required"))
	}

	resp, err := h.mutations.Push(middleware.RequestContext(c), identity, req)
	if err != nil {
		if errors.Is(err, service.ErrPushFailed) {
			return c.Status(fiber.StatusInternalServerError).JSON(resp)
		}
		logger.Error().Err(err).Str("client_group_id", req.ClientGroupID).Msg("push failed")
		return c.Status(fiber.StatusInternalServerError).JSON(failAll(req.Mutations, syncproto.ErrInternal, syncproto.InternalErrorMessage))
	}

	return c.Status(fiber.StatusOK).JSON(resp)
}

// Pull returns the patches after the client's cookie.
func (h *SyncHandler) Pull(c *fiber.Ctx) error {
	if err := pullSchema.check(c.Body()); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid pull body", err.Error())
	}

	var req syncproto.PullRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid pull body")
	}
	req.EventID = strings.TrimSpace(req.EventID)
	if err := h.validator.Struct(req); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid pull body", validationDetails(err))
	}

	identity, err := h.verify(c.Get(fiber.HeaderAuthorization))
	if err != nil {
		if errors.Is(err, service.ErrSyncSecretMissing) {
			return utils.SendError(c, fiber.StatusInternalServerError, "sync unavailable")
		}
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	resp, err := h.sync.Pull(middleware.RequestContext(c), identity, req)
	switch {
	case errors.Is(err, service.ErrClientGroupForbidden):
		return utils.SendError(c, fiber.StatusForbidden, err.Error())
	case err != nil:
		requestLogger(h.logger, c).Error().Err(err).Str("client_group_id", req.ClientGroupID).Msg("pull failed")
		return utils.SendError(c, fiber.StatusInternalServerError, syncproto.InternalErrorMessage)
	}

	return c.Status(fiber.StatusOK).JSON(resp)
}

// upgrade authenticates the poke websocket. Browsers cannot set headers on upgrades, so the
// token may also travel as a query parameter.
func (h *SyncHandler) upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		token, _ = middleware.BearerToken(c.Get(fiber.HeaderAuthorization))
	}
	identity, err := h.tokens.Verify(token)
	if err != nil {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	c.Locals("sync_identity", identity)
	c.Locals("request_ctx", middleware.RequestContext(c))
	return c.Next()
}

func (h *SyncHandler) handlePoke(conn *websocket.Conn) {
	identity, _ := conn.Locals("sync_identity").(service.Identity)
	correlation, _ := conn.Locals("correlation_id").(string)
	baseCtx, _ := conn.Locals("request_ctx").(context.Context)

	opts := service.PokeConnectionOptions{
		Identity:      identity,
		EventID:       strings.TrimSpace(conn.Query("eventID")),
		CorrelationID: correlation,
		Context:       baseCtx,
	}

	h.logger.Info().Str("user_id", identity.UserID).Str("event_id", opts.EventID).Msg("poke websocket connected")
	h.sync.ServeConnection(conn, opts)
	h.logger.Info().Str("user_id", identity.UserID).Str("event_id", opts.EventID).Msg("poke websocket disconnected")
}

func (h *SyncHandler) verify(authorization string) (service.Identity, error) {
	token, ok := middleware.BearerToken(strings.TrimSpace(authorization))
	if !ok {
		return service.Identity{}, service.ErrInvalidToken
	}
	return h.tokens.Verify(token)
}

func failAll(mutations []syncproto.Mutation, kind syncproto.ErrorKind, message string) syncproto.PushResponse {
	resp := syncproto.PushResponse{Mutations: make([]syncproto.MutationResult, 0, len(mutations))}
	for _, m := range mutations {
		resp.Mutations = append(resp.Mutations, syncproto.MutationResult{
			ID:    m.ID,
			Error: &syncproto.MutationError{Kind: kind, Message: message},
		})
	}
	return resp
}
