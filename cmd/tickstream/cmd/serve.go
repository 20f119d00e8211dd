package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mcfalli/TickSTockAppV2-sub016/internal/config"
	"github.com/mcfalli/TickSTockAppV2-sub016/internal/logging"
	"github.com/mcfalli/TickSTockAppV2-sub016/internal/messaging"
	"github.com/mcfalli/TickSTockAppV2-sub016/internal/messaging/natsbroker"
	"github.com/mcfalli/TickSTockAppV2-sub016/internal/messaging/redisbroker"
	"github.com/mcfalli/TickSTockAppV2-sub016/internal/pipeline"
	"github.com/mcfalli/TickSTockAppV2-sub016/internal/server"
	"github.com/mcfalli/TickSTockAppV2-sub016/internal/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the fan-out service",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func newBroker(cfg *config.Config) (messaging.Client, error) {
	switch cfg.Broker.Driver {
	case "nats":
		return natsbroker.New(cfg.Broker.URL)
	default:
		return redisbroker.New(cfg.Broker.URL)
	}
}

func runServe() error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format).
		With("service", "tickstream")
	logging.SetDefault(logger)

	logger.Info("starting tickstream",
		"port", cfg.Server.Port,
		"broker", cfg.Broker.Driver,
		"channels", len(cfg.Broker.Channels),
		"workers", cfg.Workers.Count)

	broker, err := newBroker(cfg)
	if err != nil {
		return fmt.Errorf("connect broker: %w", err)
	}
	defer broker.Close()

	p := pipeline.New(cfg, broker, logger)

	hub := session.NewHub(p.Registry(), p.Broadcaster(), p.Tracer(), func() map[string]any {
		st := p.Stats()
		return map[string]any{
			"events_received": st.EventsReceived,
			"events_dropped":  st.EventsDropped,
			"queue_depth":     st.QueueDepth,
			"connections":     st.Connections,
			"broker_degraded": st.BrokerDegraded,
		}
	}, session.NoPreferences{}, cfg.Session, logger)

	handler := server.NewHandler(p.Stats, broker.IsConnected, p.Tracer(), logger)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.NewRouter(handler, hub),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	go func() {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	// Order matters: stop intake and drain the queue first, then close
	// the websocket sessions, then stop accepting HTTP.
	p.Shutdown()
	hub.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Shutdown.GracePeriod)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("stopped")
	return nil
}
