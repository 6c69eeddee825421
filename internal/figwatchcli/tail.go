package figwatchcli

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
)

// Tail streams notification frames from the daemon's WebSocket endpoint
// and passes each raw payload to handle. An empty subscriber tails every
// delivery; otherwise only that subscriber's frames arrive. Tail blocks
// until the context is cancelled, the connection drops, or handle
// returns an error.
func (c *Client) Tail(ctx context.Context, subscriber string, handle func(payload []byte) error) error {
	wsURL, err := c.websocketURL(subscriber)
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", wsURL, err)
	}
	defer conn.Close()

	// ReadMessage does not honour the context on its own; closing the
	// connection is what unblocks it.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read stream: %w", err)
		}
		if err := handle(payload); err != nil {
			return err
		}
	}
}

func (c *Client) websocketURL(subscriber string) (string, error) {
	base := normalizeAPIBaseURL(c.BaseURL)
	if base == "" {
		return "", errors.New("missing API base URL")
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse API base URL: %w", err)
	}
	switch parsed.Scheme {
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q in API base URL", parsed.Scheme)
	}
	parsed.Path = strings.TrimRight(parsed.Path, "/") + "/api/ws"
	if subscriber = strings.TrimSpace(subscriber); subscriber != "" {
		query := url.Values{}
		query.Set("subscriber", subscriber)
		parsed.RawQuery = query.Encode()
	}
	return parsed.String(), nil
}
