package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-livechat/internal/middleware"
)

func TestCorrelationIDPropagatesIncomingValue(t *testing.T) {
	app := fiber.New()
	app.Use(middleware.CorrelationID())
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(middleware.CorrelationIDFromContext(middleware.RequestContext(c)))
	})

	req := httptest.NewRequest(http.MethodGet, "/?correlation_id=ws-1", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, "ws-1", resp.Header.Get(middleware.CorrelationHeader))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(middleware.CorrelationHeader, "abc")
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, "abc", resp.Header.Get(middleware.CorrelationHeader))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	require.Len(t, resp.Header.Get(middleware.CorrelationHeader), 36)
}
