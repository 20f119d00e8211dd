package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mcfalli/TickSTockAppV2-sub016/internal/config"
	"github.com/mcfalli/TickSTockAppV2-sub016/internal/messaging"
)

var (
	seedCount    int
	seedInterval time.Duration
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Publish synthetic events to the broker",
	Long: `Generate realistic pattern, indicator, and tick events and publish
them on the producer channels. Intended for local development and load
testing against a running serve instance.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSeed(cmd.Context())
	},
}

func init() {
	seedCmd.Flags().IntVar(&seedCount, "count", 100, "number of events to publish")
	seedCmd.Flags().DurationVar(&seedInterval, "interval", 10*time.Millisecond, "delay between events")
	rootCmd.AddCommand(seedCmd)
}

var seedPatterns = []string{
	"Hammer", "Doji", "Engulfing", "MorningStar", "ShootingStar",
	"ThreeWhiteSoldiers", "HeadAndShoulders", "DoubleBottom",
}

var seedIndicators = []string{"RSI", "MACD", "SMA50", "EMA20", "BollingerBands"}

var seedChannels = []string{
	messaging.ChannelPatterns,
	messaging.ChannelPatternsDaily,
	messaging.ChannelPatternsIntraday,
}

func runSeed(ctx context.Context) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	broker, err := newBroker(cfg)
	if err != nil {
		return fmt.Errorf("connect broker: %w", err)
	}
	defer broker.Close()

	published := 0
	for i := 0; i < seedCount; i++ {
		channel, payload := syntheticEvent()
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		if err := broker.Publish(ctx, channel, data); err != nil {
			return fmt.Errorf("publish after %d events: %w", published, err)
		}
		published++

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(seedInterval):
		}
	}

	fmt.Printf("published %d events\n", published)
	return nil
}

// syntheticEvent builds one event in the producer's envelope format.
func syntheticEvent() (string, map[string]any) {
	symbol := gofakeit.RandomString([]string{
		"AAPL", "MSFT", "NVDA", "TSLA", "AMZN", "GOOG", "META", "AMD",
	})
	now := float64(time.Now().UnixNano()) / 1e9

	switch rand.Intn(3) {
	case 0:
		return gofakeit.RandomString(seedChannels), map[string]any{
			"event_type": "pattern_detected",
			"source":     "seeder",
			"timestamp":  now,
			"flow_id":    uuid.New().String(),
			"data": map[string]any{
				"symbol":     symbol,
				"pattern":    gofakeit.RandomString(seedPatterns),
				"confidence": gofakeit.Float64Range(0.4, 0.99),
				"price":      gofakeit.Float64Range(10, 900),
			},
		}
	case 1:
		return messaging.ChannelIndicators, map[string]any{
			"event_type": "indicator_update",
			"source":     "seeder",
			"timestamp":  now,
			"flow_id":    uuid.New().String(),
			"data": map[string]any{
				"symbol":    symbol,
				"indicator": gofakeit.RandomString(seedIndicators),
				"value":     gofakeit.Float64Range(0, 100),
			},
		}
	default:
		return messaging.ChannelTicks, map[string]any{
			"symbol":    symbol,
			"price":     gofakeit.Float64Range(10, 900),
			"volume":    float64(gofakeit.Number(100, 1_000_000)),
			"timestamp": now,
		}
	}
}
