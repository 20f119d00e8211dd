package subscriber

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcfalli/TickSTockAppV2-sub016/internal/logging"
	"github.com/mcfalli/TickSTockAppV2-sub016/internal/messaging"
	"github.com/mcfalli/TickSTockAppV2-sub016/internal/messaging/redisbroker"
	"github.com/mcfalli/TickSTockAppV2-sub016/internal/models"
)

func testLogger() *logging.Logger {
	return logging.New(slog.LevelError, "text")
}

type capture struct {
	mu   sync.Mutex
	msgs []models.RawMessage
}

func (c *capture) handle(_ context.Context, msg models.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
}

func (c *capture) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func (c *capture) all() []models.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.RawMessage(nil), c.msgs...)
}

func TestReceivesPublishedMessages(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redisbroker.NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	defer client.Close()

	got := &capture{}
	sub := New(client, Config{
		Channels:       []string{messaging.ChannelPatterns},
		InitialBackoff: 10 * time.Millisecond,
	}, got.handle, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sub.Run(ctx)
	}()

	// Publish until the subscription is live; miniredis reports receivers.
	require.Eventually(t, func() bool {
		return mr.Publish(messaging.ChannelPatterns, `{"event_type":"pattern_detected"}`) > 0
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool { return got.count() >= 1 }, 2*time.Second, 10*time.Millisecond)
	msg := got.all()[0]
	assert.Equal(t, messaging.ChannelPatterns, msg.Channel)
	assert.JSONEq(t, `{"event_type":"pattern_detected"}`, string(msg.Data))
	assert.False(t, msg.ReceivedAt.IsZero())

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not stop on context cancel")
	}
}

type failingBroker struct {
	mu       sync.Mutex
	attempts int
}

func (f *failingBroker) Subscribe(context.Context, ...string) (messaging.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	return nil, errors.New("connection refused")
}

func (f *failingBroker) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

func TestDegradedAfterRetryCeiling(t *testing.T) {
	broker := &failingBroker{}
	sub := New(broker, Config{
		Channels:       []string{messaging.ChannelPatterns},
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		RetryCeiling:   3,
	}, func(context.Context, models.RawMessage) {}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = sub.Run(ctx) }()

	require.Eventually(t, sub.Degraded, 2*time.Second, 5*time.Millisecond)
	// Degraded mode keeps retrying rather than giving up.
	before := broker.count()
	require.Eventually(t, func() bool { return broker.count() > before }, 2*time.Second, 5*time.Millisecond)
}

func TestReconnectAfterBrokerRestart(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redisbroker.NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	defer client.Close()

	got := &capture{}
	sub := New(client, Config{
		Channels:       []string{messaging.ChannelPatterns, messaging.ChannelIndicators},
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     50 * time.Millisecond,
	}, got.handle, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = sub.Run(ctx) }()

	require.Eventually(t, func() bool {
		return mr.Publish(messaging.ChannelPatterns, `{"a":1}`) > 0
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return got.count() >= 1 }, 2*time.Second, 10*time.Millisecond)

	// Kill the broker and bring it back on the same port; the subscriber
	// must re-subscribe to the full channel set on its own.
	mr.Close()
	require.NoError(t, mr.Restart())

	require.Eventually(t, func() bool {
		return mr.Publish(messaging.ChannelIndicators, `{"b":2}`) > 0
	}, 5*time.Second, 20*time.Millisecond)
	require.Eventually(t, func() bool {
		for _, m := range got.all() {
			if m.Channel == messaging.ChannelIndicators {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
	assert.False(t, sub.Degraded())
}
