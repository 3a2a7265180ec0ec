package ws

import (
	"log/slog"

	"github.com/gorilla/websocket"
)

// Client adapts a websocket connection to the chat hub's Subscriber
// interface.
type Client struct {
	conn *websocket.Conn
	log  *slog.Logger
}

// NewClient wraps an upgraded chat connection.
func NewClient(conn *websocket.Conn, logger *slog.Logger) *Client {
	return &Client{conn: conn, log: logger}
}

// Send pushes one chat payload to the peer. A failed write tears the
// connection down so the hub drops this subscriber.
func (c *Client) Send(payload []byte) error {
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.log.Warn("chat websocket send failed", "error", err)
		_ = c.conn.Close()
		return err
	}
	return nil
}

// Close terminates the underlying connection.
func (c *Client) Close() {
	_ = c.conn.Close()
}
