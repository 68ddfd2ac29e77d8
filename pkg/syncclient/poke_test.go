package syncclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-livechat/pkg/syncproto"
)

func servePokes(t *testing.T, versions ...int64) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"hello"}`))
		for _, version := range versions {
			if err := conn.WriteJSON(syncproto.Poke{Type: syncproto.PokeType, Version: version}); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestListenPokesDeliversPokeFrames(t *testing.T) {
	url := servePokes(t, 3, 4)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	received := make(chan int64, 4)
	done := make(chan error, 1)
	go func() {
		done <- ListenPokes(ctx, url, "good", "evt-1", func(p syncproto.Poke) { received <- p.Version })
	}()

	require.Equal(t, int64(3), <-received)
	require.Equal(t, int64(4), <-received)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestListenPokesRejectsBadToken(t *testing.T) {
	url := servePokes(t)
	err := ListenPokes(context.Background(), url, "bad", "", func(syncproto.Poke) {})
	require.ErrorIs(t, err, ErrUnauthorized)
}
