package handler

import (
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-livechat/internal/middleware"
	"github.com/noah-isme/gema-livechat/internal/models"
	"github.com/noah-isme/gema-livechat/internal/service"
)

func parseUintParam(c *fiber.Ctx, key string) (uint, error) {
	parsed, err := strconv.ParseUint(strings.TrimSpace(c.Params(key)), 10, 64)
	if err != nil || parsed == 0 {
		return 0, errors.New("invalid id")
	}
	return uint(parsed), nil
}

// sessionIdentity builds the caller identity from the locals set by the session middleware.
func sessionIdentity(c *fiber.Ctx) service.Identity {
	identity := service.Identity{Role: models.RoleUser}
	if id, ok := c.Locals(middleware.LocalUserID).(string); ok {
		identity.UserID = strings.TrimSpace(id)
	}
	if role, ok := c.Locals(middleware.LocalUserRole).(string); ok {
		identity.Role = models.ParseRole(role)
	}
	if username, ok := c.Locals(middleware.LocalUsername).(string); ok {
		identity.Username = username
	}
	if name, ok := c.Locals(middleware.LocalDisplayName).(string); ok {
		identity.DisplayName = name
	}
	return identity
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

func isValidationError(err error) bool {
	var validationErrors validator.ValidationErrors
	return errors.As(err, &validationErrors)
}

// validationDetails maps each failing field to the rule it broke.
func validationDetails(err error) map[string]string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return nil
	}
	details := make(map[string]string, len(validationErrors))
	for _, fieldErr := range validationErrors {
		details[strings.ToLower(fieldErr.Field())] = fieldErr.Tag()
	}
	return details
}
