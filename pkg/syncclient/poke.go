package syncclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/gorilla/websocket"

	"github.com/noah-isme/gema-livechat/pkg/syncproto"
)

// ListenPokes connects to the poke websocket at wsURL and calls onPoke for every poke frame
// until ctx is cancelled or the connection drops.
func ListenPokes(ctx context.Context, wsURL, token, eventID string, onPoke func(syncproto.Poke)) error {
	target, err := url.Parse(wsURL)
	if err != nil {
		return err
	}
	query := target.Query()
	query.Set("token", token)
	if eventID != "" {
		query.Set("eventID", eventID)
	}
	target.RawQuery = query.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, target.String(), http.Header{})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return ErrUnauthorized
		}
		return err
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		var poke syncproto.Poke
		if err := json.Unmarshal(data, &poke); err != nil || poke.Type != syncproto.PokeType {
			continue
		}
		onPoke(poke)
	}
}
