package worker

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcfalli/TickSTockAppV2-sub016/internal/broadcaster"
	"github.com/mcfalli/TickSTockAppV2-sub016/internal/dispatch"
	"github.com/mcfalli/TickSTockAppV2-sub016/internal/logging"
	"github.com/mcfalli/TickSTockAppV2-sub016/internal/models"
	"github.com/mcfalli/TickSTockAppV2-sub016/internal/registry"
	"github.com/mcfalli/TickSTockAppV2-sub016/internal/router"
	"github.com/mcfalli/TickSTockAppV2-sub016/internal/tracer"
)

type captureSink struct {
	mu    sync.Mutex
	got   []*models.Outbound
	panic bool
}

func (s *captureSink) Send(msg *models.Outbound) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panic {
		panic("sink exploded")
	}
	s.got = append(s.got, msg)
	return nil
}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.got)
}

func (s *captureSink) setPanic(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.panic = v
}

type fixture struct {
	queue  *dispatch.Queue
	routes *router.Router
	reg    *registry.Registry
	bc     *broadcaster.Broadcaster
	pool   *Pool
}

func newFixture(t *testing.T, workers int) *fixture {
	t.Helper()
	log := logging.New(slog.LevelError, "text")
	tr := tracer.New(256, 1000)
	reg := registry.New()
	bc := broadcaster.New(reg, tr, log)
	rt := router.New(router.Config{DegradeAfter: 2, FailAfter: 3, Cooldown: time.Minute}, log)
	q := dispatch.New([models.TierCount]int{16, 16, 16, 16})
	return &fixture{
		queue:  q,
		routes: rt,
		reg:    reg,
		bc:     bc,
		pool:   New(workers, q, rt, bc, tr, log),
	}
}

func item(flowID, symbol string, tier models.Tier) *models.PriorityItem {
	return &models.PriorityItem{
		Event: &models.NormalizedEvent{
			FlowID: flowID, Symbol: symbol,
			Kind: models.KindPattern, TypeName: "Hammer",
		},
		Tier:       tier,
		RouteID:    router.PrimaryRoute(models.KindPattern),
		EnqueuedAt: time.Now(),
	}
}

func TestPoolDeliversQueuedEvents(t *testing.T) {
	f := newFixture(t, 2)
	sink := &captureSink{}
	f.reg.Register(models.NewSubscription("conn-1", []string{"AAPL"}, nil, nil, 0))
	f.bc.AttachSink("conn-1", sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.pool.Start(ctx)

	for i := 0; i < 5; i++ {
		require.NoError(t, f.queue.Enqueue(item("f", "AAPL", models.TierNormal)))
	}

	require.Eventually(t, func() bool { return sink.count() == 5 }, 2*time.Second, 10*time.Millisecond)
}

func TestEnrichmentAttached(t *testing.T) {
	f := newFixture(t, 1)
	sink := &captureSink{}
	f.reg.Register(models.NewSubscription("conn-1", nil, nil, nil, 0))
	f.bc.AttachSink("conn-1", sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.pool.Start(ctx)

	it := item("f1", "AAPL", models.TierCritical)
	c := 0.95
	it.Event.Confidence = &c
	require.NoError(t, f.queue.Enqueue(it))

	require.Eventually(t, func() bool { return sink.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "critical", it.Event.Enrichment["priority"])
	assert.Equal(t, "very_high", it.Event.Enrichment["confidence_band"])
	assert.Contains(t, it.Event.Enrichment, "queue_wait_ms")
}

func TestWorkerSurvivesPanic(t *testing.T) {
	f := newFixture(t, 1)
	sink := &captureSink{panic: true}
	f.reg.Register(models.NewSubscription("conn-1", nil, nil, nil, 0))
	f.bc.AttachSink("conn-1", sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.pool.Start(ctx)

	require.NoError(t, f.queue.Enqueue(item("boom", "AAPL", models.TierNormal)))

	// Let the poison event go through, then verify the worker still serves.
	time.Sleep(50 * time.Millisecond)
	sink.setPanic(false)
	require.NoError(t, f.queue.Enqueue(item("ok", "AAPL", models.TierNormal)))

	require.Eventually(t, func() bool { return sink.count() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestPanicCountsAsRouteFailure(t *testing.T) {
	f := newFixture(t, 1)
	sink := &captureSink{panic: true}
	f.reg.Register(models.NewSubscription("conn-1", nil, nil, nil, 0))
	f.bc.AttachSink("conn-1", sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.pool.Start(ctx)

	for i := 0; i < 3; i++ {
		require.NoError(t, f.queue.Enqueue(item("boom", "AAPL", models.TierNormal)))
	}

	primary := router.PrimaryRoute(models.KindPattern)
	require.Eventually(t, func() bool {
		return f.routes.Health()[primary].Status == router.StatusFailed
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPoolStopsOnQueueClose(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	f.pool.Start(ctx)

	f.queue.Close()

	done := make(chan struct{})
	go func() {
		f.pool.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("workers did not exit after queue close")
	}
}
