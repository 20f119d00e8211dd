// Package subscriber maintains the persistent broker subscription that
// feeds the pipeline. One goroutine owns the broker connection, which
// preserves per-channel arrival order.
package subscriber

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/mcfalli/TickSTockAppV2-sub016/internal/logging"
	"github.com/mcfalli/TickSTockAppV2-sub016/internal/messaging"
	"github.com/mcfalli/TickSTockAppV2-sub016/internal/metrics"
	"github.com/mcfalli/TickSTockAppV2-sub016/internal/models"
)

// Handler receives every message published on the subscribed channels in
// per-channel arrival order.
type Handler func(ctx context.Context, msg models.RawMessage)

// Config holds subscriber behavior parameters.
type Config struct {
	Channels       []string
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// RetryCeiling is the consecutive connect-failure count after which
	// the subscriber reports degraded mode. Retries continue at the max
	// backoff; broker loss is never fatal to the process.
	RetryCeiling int
}

// Subscriber consumes broker channels and hands raw messages to the
// pipeline. On disconnect it retries with exponential backoff and
// re-subscribes to the full channel set. Delivery is at-most-once: no
// durability is offered across a broker outage.
type Subscriber struct {
	broker   messaging.Subscriber
	cfg      Config
	handler  Handler
	log      *logging.Logger
	degraded atomic.Bool
}

// New creates a subscriber.
func New(broker messaging.Subscriber, cfg Config, handler Handler, log *logging.Logger) *Subscriber {
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = 60 * time.Second
	}
	return &Subscriber{
		broker:  broker,
		cfg:     cfg,
		handler: handler,
		log:     log,
	}
}

// Run consumes until ctx is cancelled. It owns the broker subscription
// for its whole lifetime and must be the only consumer of it.
func (s *Subscriber) Run(ctx context.Context) error {
	backoff := s.cfg.InitialBackoff
	failures := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		sub, err := s.broker.Subscribe(ctx, s.cfg.Channels...)
		if err != nil {
			failures++
			metrics.BrokerReconnects.Inc()
			if s.cfg.RetryCeiling > 0 && failures >= s.cfg.RetryCeiling && !s.degraded.Load() {
				s.degraded.Store(true)
				s.log.Error("broker retry ceiling reached, entering degraded mode",
					"failures", failures)
			}
			s.log.Warn("broker subscribe failed, retrying",
				"error", err, "backoff", backoff.String(), "failures", failures)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, s.cfg.MaxBackoff)
			continue
		}

		if failures > 0 {
			s.log.Info("broker reconnected, re-subscribed to full channel set",
				"channels", s.cfg.Channels)
		}
		failures = 0
		backoff = s.cfg.InitialBackoff
		s.degraded.Store(false)

		err = s.consume(ctx, sub)
		_ = sub.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.log.Warn("broker connection lost", "error", err)
	}
}

// Degraded reports whether the retry ceiling was exhausted. Surfaced on
// the operator-facing health endpoint.
func (s *Subscriber) Degraded() bool {
	return s.degraded.Load()
}

func (s *Subscriber) consume(ctx context.Context, sub messaging.Subscription) error {
	for {
		msg, err := sub.Next(ctx)
		if err != nil {
			return err
		}
		metrics.MessagesReceived.WithLabelValues(msg.Channel).Inc()
		s.handler(ctx, models.RawMessage{
			Channel:    msg.Channel,
			Data:       msg.Data,
			ReceivedAt: msg.ReceivedAt,
		})
	}
}
