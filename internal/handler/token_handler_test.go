package handler_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-livechat/internal/dto"
	"github.com/noah-isme/gema-livechat/internal/handler"
	"github.com/noah-isme/gema-livechat/internal/models"
	"github.com/noah-isme/gema-livechat/internal/service"
)

func tokenApp(tokens service.TokenService, identity service.Identity) *fiber.App {
	app := fiber.New()
	handler.NewTokenHandler(tokens, noopLogger()).Register(app.Group("/api/v1/sync"), asSession(identity))
	return app
}

func TestTokenHandlerIssuesVerifiableToken(t *testing.T) {
	env := newTestEnv(t)
	app := tokenApp(env.tokens, root)

	resp := doJSON(t, app, http.MethodGet, "/api/v1/sync/token", nil, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var payload envelope[dto.SyncTokenResponse]
	decodeResponse(t, resp, &payload)
	require.True(t, payload.Success)
	require.Equal(t, "root", payload.Data.UserID)
	require.Equal(t, "admin", payload.Data.Role)
	require.WithinDuration(t, time.Now().Add(time.Hour), payload.Data.ExpiresAt, time.Minute)

	identity, err := env.tokens.Verify(payload.Data.Token)
	require.NoError(t, err)
	require.Equal(t, models.RoleAdmin, identity.Role)
	require.Equal(t, "Root", identity.DisplayName)

	var user models.User
	require.NoError(t, env.db.First(&user, "id = ?", "root").Error)
	require.Equal(t, "root", user.Username)
}

func TestTokenHandlerRequiresSession(t *testing.T) {
	env := newTestEnv(t)
	resp := doJSON(t, tokenApp(env.tokens, service.Identity{}), http.MethodGet, "/api/v1/sync/token", nil, nil)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestTokenHandlerReportsMissingSecret(t *testing.T) {
	tokens := service.NewTokenService(nil, "", time.Hour, "test", noopLogger())
	resp := doJSON(t, tokenApp(tokens, alice), http.MethodGet, "/api/v1/sync/token", nil, nil)
	require.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}
