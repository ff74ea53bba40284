package nats

import (
	"context"
	"time"

	natsio "github.com/nats-io/nats.go"
)

// Client is a thin wrapper around a NATS connection used for fire-and-forget
// notification publishing.
type Client struct {
	conn *natsio.Conn
}

// Connect dials the NATS server. Reconnection is handled by the client
// library; publishes during a disconnect are buffered.
func Connect(url string) (*Client, error) {
	conn, err := natsio.Connect(url,
		natsio.MaxReconnects(-1),
		natsio.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// Publish sends a message to the given subject.
func (c *Client) Publish(_ context.Context, subject string, data []byte) error {
	return c.conn.Publish(subject, data)
}

// Close drains and closes the connection.
func (c *Client) Close() {
	if c.conn != nil {
		_ = c.conn.Drain()
	}
}
