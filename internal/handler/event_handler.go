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

// EventHandler exposes event listing and activation.
type EventHandler struct {
	events       service.EventService
	participants service.ParticipantService
	logger       zerolog.Logger
}

// NewEventHandler constructs an EventHandler.
func NewEventHandler(events service.EventService, participants service.ParticipantService, logger zerolog.Logger) *EventHandler {
	return &EventHandler{
		events:       events,
		participants: participants,
		logger:       logger.With().Str("component", "event_handler").Logger(),
	}
}

// Register binds event routes. The router must run the session middleware first.
func (h *EventHandler) Register(router fiber.Router) {
	router.Get("/", middleware.WithAuth(h.List, middleware.AuthOptions{}))
	router.Get("/active", middleware.WithAuth(h.Active, middleware.AuthOptions{}))
	router.Post("/", middleware.WithAuth(h.Create, middleware.AuthOptions{Role: middleware.AuthRoleAdmin}))
	router.Get("/:id/participants", middleware.WithAuth(h.Participants, middleware.AuthOptions{Role: middleware.AuthRoleAdmin}))
}

// List returns every event, newest first.
func (h *EventHandler) List(c *fiber.Ctx) error {
	events, err := h.events.List(middleware.RequestContext(c))
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to list events")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to list events")
	}
	return utils.SendSuccess(c, "events retrieved", events)
}

// Active returns the active event or 404 when none is active.
func (h *EventHandler) Active(c *fiber.Ctx) error {
	event, err := h.events.Active(middleware.RequestContext(c))
	if errors.Is(err, service.ErrNoActiveEvent) {
		return utils.SendError(c, fiber.StatusNotFound, "no active event")
	}
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to load active event")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to load active event")
	}
	return utils.SendSuccess(c, "active event retrieved", event)
}

// Create activates a new event, deactivating the current one.
func (h *EventHandler) Create(c *fiber.Ctx) error {
	var req dto.EventCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	event, err := h.events.Create(middleware.RequestContext(c), sessionIdentity(c), req)
	switch {
	case isValidationError(err):
		return utils.Fail(c, fiber.StatusBadRequest, "invalid event", validationDetails(err))
	case errors.Is(err, service.ErrEventExists):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	case err != nil:
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to create event")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to create event")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "event created", event)
}

// Participants lists an event's participants grouped by moderation state.
func (h *EventHandler) Participants(c *fiber.Ctx) error {
	result, err := h.participants.List(middleware.RequestContext(c), c.Params("id"))
	if errors.Is(err, service.ErrEventNotFound) {
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	}
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to list participants")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to list participants")
	}
	return utils.SendSuccess(c, "participants retrieved", result)
}
