package syncclient

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-livechat/pkg/syncproto"
)

func serveSyncApp(t *testing.T) string {
	t.Helper()
	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	app.Post("/api/v1/sync/push", func(c *fiber.Ctx) error {
		var req syncproto.PushRequest
		if err := c.BodyParser(&req); err != nil {
			return c.SendStatus(fiber.StatusBadRequest)
		}
		if c.Get(fiber.HeaderAuthorization) != "Bearer good" {
			resp := syncproto.PushResponse{}
			for _, m := range req.Mutations {
				resp.Mutations = append(resp.Mutations, syncproto.MutationResult{ID: m.ID, Error: &syncproto.MutationError{Kind: syncproto.ErrAuthenticationRequired, Message: "authentication required"}})
			}
			return c.Status(fiber.StatusUnauthorized).JSON(resp)
		}
		return c.JSON(acceptAll(req))
	})
	app.Post("/api/v1/sync/pull", func(c *fiber.Ctx) error {
		var req syncproto.PullRequest
		if err := c.BodyParser(&req); err != nil {
			return c.SendStatus(fiber.StatusBadRequest)
		}
		if req.ClientGroupID == "foreign" {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"success": false, "message": "client group belongs to another user"})
		}
		return c.JSON(syncproto.PullResponse{Cookie: req.Cookie + 1, LastMutationID: 4, Complete: true})
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	return "http://" + ln.Addr().String()
}

func TestHTTPTransportPushAndPull(t *testing.T) {
	transport := NewHTTPTransport(serveSyncApp(t)+"/", time.Second)
	ctx := context.Background()

	resp, err := transport.Push(ctx, "good", syncproto.PushRequest{
		ClientGroupID: "cg-1",
		PushVersion:   syncproto.PushVersion,
		Mutations:     []syncproto.Mutation{{ID: 1, Name: syncproto.MutationAddMessage}, {ID: 2, Name: syncproto.MutationAddMessage}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Mutations, 2)
	require.Nil(t, resp.Mutations[1].Error)

	pulled, err := transport.Pull(ctx, "good", syncproto.PullRequest{ClientGroupID: "cg-1", Cookie: 7})
	require.NoError(t, err)
	require.Equal(t, int64(8), pulled.Cookie)
	require.Equal(t, int64(4), pulled.LastMutationID)
	require.True(t, pulled.Complete)
}

func TestHTTPTransportReportsFailures(t *testing.T) {
	transport := NewHTTPTransport(serveSyncApp(t), time.Second)
	ctx := context.Background()

	resp, err := transport.Push(ctx, "bad", syncproto.PushRequest{
		ClientGroupID: "cg-1",
		PushVersion:   syncproto.PushVersion,
		Mutations:     []syncproto.Mutation{{ID: 1, Name: syncproto.MutationAddMessage}},
	})
	require.ErrorIs(t, err, ErrUnauthorized)
	require.Len(t, resp.Mutations, 1)
	require.Equal(t, syncproto.ErrAuthenticationRequired, resp.Mutations[0].Error.Kind)

	_, err = transport.Pull(ctx, "good", syncproto.PullRequest{ClientGroupID: "foreign"})
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	require.Equal(t, fiber.StatusForbidden, httpErr.StatusCode)
	require.Equal(t, "client group belongs to another user", httpErr.Message)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = transport.Pull(cancelled, "good", syncproto.PullRequest{ClientGroupID: "cg-1"})
	require.ErrorIs(t, err, context.Canceled)
}
