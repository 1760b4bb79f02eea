package attunesdk

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
)

// ProgressEvent is one message on the agent progress stream.
type ProgressEvent struct {
	Type    string `json:"type"`
	Agent   string `json:"agent,omitempty"`
	Tool    string `json:"tool,omitempty"`
	Message string `json:"message"`
}

// Close codes the server uses to refuse a stream.
const (
	CloseMissingToken = 4001
	CloseInvalidToken = 4003
)

// ErrStreamRefused is returned when the server closes the stream during the handshake.
var ErrStreamRefused = errors.New("progress stream refused")

// StreamProgress delivers progress events for the client's user to fn until
// ctx ends, the server closes the stream or fn returns an error. Heartbeats
// are delivered too.
func (c *Client) StreamProgress(ctx context.Context, fn func(ProgressEvent) error) error {
	u, err := url.Parse(c.base())
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/agent-progress/" + url.PathEscape(c.UserID)
	u.RawQuery = url.Values{"token": {c.BearerToken}}.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		var ev ProgressEvent
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				switch ce.Code {
				case CloseMissingToken, CloseInvalidToken:
					return errors.Join(ErrStreamRefused, err)
				case websocket.CloseNormalClosure, websocket.CloseGoingAway:
					return nil
				}
			}
			return err
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
}
