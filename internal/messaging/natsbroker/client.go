// Package natsbroker provides a NATS implementation of the messaging
// interfaces, selected by the broker.driver configuration.
package natsbroker

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/mcfalli/TickSTockAppV2-sub016/internal/messaging"
)

// Client implements messaging.Client using NATS.
type Client struct {
	conn *nats.Conn
}

// New connects to a NATS server.
func New(url string) (*Client, error) {
	opts := []nats.Option{
		nats.Name("tickstream"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.Timeout(5 * time.Second),
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Publish sends a message to the specified subject.
func (c *Client) Publish(ctx context.Context, channel string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.conn.Publish(channel, data)
}

// Subscribe establishes channel-based subscriptions over the given
// subjects, merging all deliveries into one ordered stream per subject.
func (c *Client) Subscribe(ctx context.Context, channels ...string) (messaging.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	msgs := make(chan *nats.Msg, 1024)
	subs := make([]*nats.Subscription, 0, len(channels))
	for _, ch := range channels {
		sub, err := c.conn.ChanSubscribe(ch, msgs)
		if err != nil {
			for _, s := range subs {
				_ = s.Unsubscribe()
			}
			return nil, fmt.Errorf("subscribe %s: %w", ch, err)
		}
		subs = append(subs, sub)
	}

	return &subscription{subs: subs, msgs: msgs, channels: channels}, nil
}

// IsConnected returns true if connected to NATS.
func (c *Client) IsConnected() bool {
	return c.conn.IsConnected()
}

// Close drains and closes the connection.
func (c *Client) Close() error {
	if err := c.conn.Drain(); err != nil {
		c.conn.Close()
		return err
	}
	return nil
}

type subscription struct {
	subs     []*nats.Subscription
	msgs     chan *nats.Msg
	channels []string
}

func (s *subscription) Next(ctx context.Context) (*messaging.Message, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case msg, ok := <-s.msgs:
		if !ok {
			return nil, nats.ErrConnectionClosed
		}
		return &messaging.Message{
			Channel:    msg.Subject,
			Data:       msg.Data,
			ReceivedAt: time.Now(),
		}, nil
	}
}

func (s *subscription) Channels() []string {
	return s.channels
}

func (s *subscription) Close() error {
	var firstErr error
	for _, sub := range s.subs {
		if err := sub.Unsubscribe(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
