package chatstream

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"ai-chat-gateway/pkg/session"

	"github.com/gorilla/websocket"
)

const dialTimeout = 15 * time.Second

// wsConn adapts a gorilla websocket to the Conn interface.
type wsConn struct {
	ws *websocket.Conn
}

func (c *wsConn) ReadEvent() (*Event, error) {
	var ev Event
	if err := c.ws.ReadJSON(&ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

func (c *wsConn) WriteCancel() error {
	return c.ws.WriteJSON(map[string]string{"type": "cancel"})
}

func (c *wsConn) Close() error {
	return c.ws.Close()
}

// Dial opens the streaming connection for a conversation. The session must
// be valid; when the access token is near expiry the refresher rotates the
// pair first, so the handshake never goes out with a token about to die
// mid-stream.
func Dial(ctx context.Context, streamURL string, store *session.Store, refresher *session.Refresher) (Conn, error) {
	if err := refresher.EnsureValid(ctx, 30*time.Second); err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+store.AccessToken())

	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	ws, resp, err := dialer.DialContext(ctx, streamURL, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			// The edge rejected the token; one rotation attempt, then retry.
			if !refresher.Refresh(ctx) {
				return nil, session.ErrUnauthenticated
			}
			header.Set("Authorization", "Bearer "+store.AccessToken())
			ws, _, err = dialer.DialContext(ctx, streamURL, header)
			if err != nil {
				return nil, fmt.Errorf("dial stream after refresh: %w", err)
			}
			return &wsConn{ws: ws}, nil
		}
		return nil, fmt.Errorf("dial stream: %w", err)
	}

	return &wsConn{ws: ws}, nil
}
