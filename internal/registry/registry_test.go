package registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcfalli/TickSTockAppV2-sub016/internal/models"
)

func conf(v float64) *float64 { return &v }

func TestRegisterAndMatch(t *testing.T) {
	r := New()
	r.Register(models.NewSubscription("conn-1", []string{"AAPL"}, nil, nil, 0))
	r.Register(models.NewSubscription("conn-2", []string{"MSFT"}, nil, nil, 0))
	r.Register(models.NewSubscription("conn-3", nil, nil, nil, 0)) // no restriction

	ev := &models.NormalizedEvent{Symbol: "AAPL", Kind: models.KindPattern, TypeName: "Hammer"}
	matched := r.Match(ev)

	assert.ElementsMatch(t, []string{"conn-1", "conn-3"}, matched)
}

func TestLatestFilterReplacesPrior(t *testing.T) {
	r := New()
	r.Register(models.NewSubscription("conn-1", []string{"AAPL"}, nil, nil, 0))
	first, ok := r.Get("conn-1")
	require.True(t, ok)

	r.UpdateFilter(models.NewSubscription("conn-1", []string{"MSFT"}, nil, nil, 0))

	updated, ok := r.Get("conn-1")
	require.True(t, ok)
	_, hasMSFT := updated.Symbols["MSFT"]
	assert.True(t, hasMSFT)
	_, hasAAPL := updated.Symbols["AAPL"]
	assert.False(t, hasAAPL)
	assert.Equal(t, first.CreatedAt, updated.CreatedAt, "connect time survives filter updates")

	ev := &models.NormalizedEvent{Symbol: "AAPL", Kind: models.KindPattern}
	assert.Empty(t, r.Match(ev))
}

func TestUnregister(t *testing.T) {
	r := New()
	r.Register(models.NewSubscription("conn-1", nil, nil, nil, 0))
	require.Equal(t, 1, r.Count())

	r.Unregister("conn-1")
	assert.Equal(t, 0, r.Count())
	_, ok := r.Get("conn-1")
	assert.False(t, ok)
}

func TestMinConfidenceFilter(t *testing.T) {
	r := New()
	r.Register(models.NewSubscription("strict", nil, nil, nil, 0.9))

	low := &models.NormalizedEvent{Symbol: "AAPL", Kind: models.KindPattern, Confidence: conf(0.5)}
	high := &models.NormalizedEvent{Symbol: "AAPL", Kind: models.KindPattern, Confidence: conf(0.95)}
	absent := &models.NormalizedEvent{Symbol: "AAPL", Kind: models.KindPattern}

	assert.Empty(t, r.Match(low))
	assert.Equal(t, []string{"strict"}, r.Match(high))
	// Absent confidence passes the threshold; absence is not zero.
	assert.Equal(t, []string{"strict"}, r.Match(absent))
}

func TestKindAndPatternTypeFilters(t *testing.T) {
	r := New()
	r.Register(models.NewSubscription("patterns-only", nil, []string{"pattern"}, nil, 0))
	r.Register(models.NewSubscription("hammer-only", nil, nil, []string{"Hammer"}, 0))

	hammer := &models.NormalizedEvent{Symbol: "AAPL", Kind: models.KindPattern, TypeName: "Hammer"}
	doji := &models.NormalizedEvent{Symbol: "AAPL", Kind: models.KindPattern, TypeName: "Doji"}
	tick := &models.NormalizedEvent{Symbol: "AAPL", Kind: models.KindTick}

	assert.ElementsMatch(t, []string{"patterns-only", "hammer-only"}, r.Match(hammer))
	assert.ElementsMatch(t, []string{"patterns-only"}, r.Match(doji))
	assert.Empty(t, r.Match(tick))
}

func TestConcurrentAccess(t *testing.T) {
	r := New()
	ev := &models.NormalizedEvent{Symbol: "AAPL", Kind: models.KindPattern}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i))
			for j := 0; j < 100; j++ {
				r.Register(models.NewSubscription(id, []string{"AAPL"}, nil, nil, 0))
				r.Unregister(id)
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.Match(ev)
			}
		}()
	}
	wg.Wait()
}
