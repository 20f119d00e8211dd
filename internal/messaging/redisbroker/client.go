// Package redisbroker provides a Redis pub/sub implementation of the
// messaging interfaces. Redis is the primary transport the upstream
// producer publishes on.
package redisbroker

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcfalli/TickSTockAppV2-sub016/internal/messaging"
)

// Client implements messaging.Client using Redis pub/sub.
type Client struct {
	rdb *redis.Client
}

// New creates a Redis broker client from a redis:// URL.
func New(url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &Client{rdb: redis.NewClient(opts)}, nil
}

// NewFromClient wraps an existing go-redis client. Used by tests that
// point at an in-process Redis.
func NewFromClient(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

// Publish sends a message to the specified channel.
func (c *Client) Publish(ctx context.Context, channel string, data []byte) error {
	return c.rdb.Publish(ctx, channel, data).Err()
}

// Subscribe establishes a pub/sub subscription over the given channels.
// It waits for the subscription confirmation so that connection failures
// surface here rather than on the first Next call.
func (c *Client) Subscribe(ctx context.Context, channels ...string) (messaging.Subscription, error) {
	ps := c.rdb.Subscribe(ctx, channels...)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %v: %w", channels, err)
	}
	return &subscription{ps: ps, channels: channels}, nil
}

// IsConnected reports whether the Redis connection answers a ping.
func (c *Client) IsConnected() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return c.rdb.Ping(ctx).Err() == nil
}

// Close releases the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

type subscription struct {
	ps       *redis.PubSub
	channels []string
}

// Next blocks until a message is published on one of the subscribed
// channels. ReceiveMessage skips subscription confirmations and pongs.
func (s *subscription) Next(ctx context.Context) (*messaging.Message, error) {
	msg, err := s.ps.ReceiveMessage(ctx)
	if err != nil {
		return nil, err
	}
	return &messaging.Message{
		Channel:    msg.Channel,
		Data:       []byte(msg.Payload),
		ReceivedAt: time.Now(),
	}, nil
}

func (s *subscription) Channels() []string {
	return s.channels
}

func (s *subscription) Close() error {
	return s.ps.Close()
}
