package broadcaster

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcfalli/TickSTockAppV2-sub016/internal/logging"
	"github.com/mcfalli/TickSTockAppV2-sub016/internal/metrics"
	"github.com/mcfalli/TickSTockAppV2-sub016/internal/models"
	"github.com/mcfalli/TickSTockAppV2-sub016/internal/registry"
	"github.com/mcfalli/TickSTockAppV2-sub016/internal/tracer"
)

type captureSink struct {
	mu   sync.Mutex
	got  []*models.Outbound
	fail error
}

func (s *captureSink) Send(msg *models.Outbound) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.got = append(s.got, msg)
	return nil
}

func (s *captureSink) messages() []*models.Outbound {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.Outbound(nil), s.got...)
}

func conf(v float64) *float64 { return &v }

func newTestBroadcaster() (*Broadcaster, *registry.Registry) {
	reg := registry.New()
	tr := tracer.New(64, 100)
	log := logging.New(slog.LevelError, "text")
	return New(reg, tr, log), reg
}

func TestDeliverOnlyToMatchingFilters(t *testing.T) {
	b, reg := newTestBroadcaster()

	aapl := &captureSink{}
	msft := &captureSink{}
	reg.Register(models.NewSubscription("conn-aapl", []string{"AAPL"}, nil, nil, 0))
	reg.Register(models.NewSubscription("conn-msft", []string{"MSFT"}, nil, nil, 0))
	b.AttachSink("conn-aapl", aapl)
	b.AttachSink("conn-msft", msft)

	ev := &models.NormalizedEvent{
		FlowID: "f1", Symbol: "MSFT", Kind: models.KindPattern, TypeName: "Hammer",
	}
	n := b.Deliver(context.Background(), ev, models.TierHigh)

	assert.Equal(t, 1, n)
	assert.Empty(t, aapl.messages(), "AAPL-filtered connection must not receive MSFT events")
	require.Len(t, msft.messages(), 1)
	assert.Equal(t, models.OutboundAlert, msft.messages()[0].Type)
	assert.Equal(t, "Hammer", msft.messages()[0].Alert.TypeName)
	assert.Equal(t, "high", msft.messages()[0].Alert.Tier)
}

func TestNotReadyConnectionSkippedWithoutError(t *testing.T) {
	b, reg := newTestBroadcaster()

	// Filter registered, but no sink attached yet: the startup race.
	reg.Register(models.NewSubscription("conn-1", []string{"AAPL"}, nil, nil, 0))

	ev := &models.NormalizedEvent{FlowID: "f1", Symbol: "AAPL", Kind: models.KindPattern, TypeName: "Doji"}

	assert.NotPanics(t, func() {
		n := b.Deliver(context.Background(), ev, models.TierNormal)
		assert.Equal(t, 0, n)
	})

	// Once the delivery service initializes, subsequent events arrive.
	sink := &captureSink{}
	b.AttachSink("conn-1", sink)

	n := b.Deliver(context.Background(), ev, models.TierNormal)
	assert.Equal(t, 1, n)
	assert.Len(t, sink.messages(), 1)
}

func TestSlowConsumerDoesNotBlockOthers(t *testing.T) {
	b, reg := newTestBroadcaster()

	slow := &captureSink{fail: ErrSlowConsumer}
	healthy := &captureSink{}
	reg.Register(models.NewSubscription("slow", nil, nil, nil, 0))
	reg.Register(models.NewSubscription("healthy", nil, nil, nil, 0))
	b.AttachSink("slow", slow)
	b.AttachSink("healthy", healthy)

	ev := &models.NormalizedEvent{FlowID: "f1", Symbol: "AAPL", Kind: models.KindPattern, TypeName: "Hammer"}
	n := b.Deliver(context.Background(), ev, models.TierNormal)

	assert.Equal(t, 1, n)
	assert.Len(t, healthy.messages(), 1)
}

func TestConfidenceThresholdFanOut(t *testing.T) {
	b, reg := newTestBroadcaster()

	strict := &captureSink{}
	loose := &captureSink{}
	reg.Register(models.NewSubscription("strict", []string{"AAPL"}, nil, nil, 0.9))
	reg.Register(models.NewSubscription("loose", []string{"AAPL"}, nil, nil, 0))
	b.AttachSink("strict", strict)
	b.AttachSink("loose", loose)

	weak := &models.NormalizedEvent{FlowID: "f1", Symbol: "AAPL", Kind: models.KindPattern, TypeName: "Doji", Confidence: conf(0.6)}
	strong := &models.NormalizedEvent{FlowID: "f2", Symbol: "AAPL", Kind: models.KindPattern, TypeName: "Hammer", Confidence: conf(0.95)}

	assert.Equal(t, 1, b.Deliver(context.Background(), weak, models.TierNormal))
	assert.Equal(t, 2, b.Deliver(context.Background(), strong, models.TierCritical))

	assert.Len(t, strict.messages(), 1)
	assert.Len(t, loose.messages(), 2)
}

func TestClosedSessionSkipCountedSeparately(t *testing.T) {
	b, reg := newTestBroadcaster()

	closed := &captureSink{fail: ErrSessionClosed}
	reg.Register(models.NewSubscription("closing", nil, nil, nil, 0))
	b.AttachSink("closing", closed)

	slowBefore := testutil.ToFloat64(metrics.DeliveriesSkipped.WithLabelValues("slow_consumer"))
	closedBefore := testutil.ToFloat64(metrics.DeliveriesSkipped.WithLabelValues("session_closed"))

	ev := &models.NormalizedEvent{FlowID: "f1", Symbol: "AAPL", Kind: models.KindPattern}
	assert.Equal(t, 0, b.Deliver(context.Background(), ev, models.TierNormal))

	assert.Equal(t, closedBefore+1,
		testutil.ToFloat64(metrics.DeliveriesSkipped.WithLabelValues("session_closed")))
	assert.Equal(t, slowBefore,
		testutil.ToFloat64(metrics.DeliveriesSkipped.WithLabelValues("slow_consumer")),
		"a delivery racing a disconnect must not count as a slow consumer")
}

func TestDetachSinkReturnsToNotReady(t *testing.T) {
	b, reg := newTestBroadcaster()

	sink := &captureSink{}
	reg.Register(models.NewSubscription("conn-1", nil, nil, nil, 0))
	b.AttachSink("conn-1", sink)
	b.DetachSink("conn-1")

	ev := &models.NormalizedEvent{FlowID: "f1", Symbol: "AAPL", Kind: models.KindPattern}
	assert.Equal(t, 0, b.Deliver(context.Background(), ev, models.TierNormal))
	assert.Empty(t, sink.messages())
}
