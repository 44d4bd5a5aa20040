// Package runtime composes the kavachd subsystems: telemetry, the optional
// message bus, the history store, the classification pipelines, the badge
// notifier and the HTTP server.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kavachlabs/kavach/internal/bus"
	"github.com/kavachlabs/kavach/internal/config"
	"github.com/kavachlabs/kavach/internal/history"
	"github.com/kavachlabs/kavach/internal/natsserver"
	"github.com/kavachlabs/kavach/internal/notify"
	"github.com/kavachlabs/kavach/internal/pipeline"
	"github.com/kavachlabs/kavach/internal/server"
)

type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error
	ready       atomic.Bool
	wg          sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start brings every subsystem up and blocks until ctx is cancelled.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	var (
		embedded  *natsserver.EmbeddedServer
		busClient *bus.Client
	)
	if r.cfg.Bus.Enabled {
		embedded, err = natsserver.Start(r.cfg.Bus, r.logger)
		if err != nil {
			return fmt.Errorf("failed to start embedded bus: %w", err)
		}
		defer embedded.Shutdown()

		busCfg := r.cfg.Bus
		if url := embedded.ClientURL(); url != "" {
			busCfg.Servers = []string{url}
		}
		busClient, err = bus.Connect(busCfg, r.logger)
		if err != nil {
			return fmt.Errorf("failed to connect to bus: %w", err)
		}
		defer busClient.Close()
	}

	store, err := history.Open(ctx, r.cfg.History, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open history store: %w", err)
	}
	defer store.Close()

	pipelines, err := pipeline.NewSet(r.cfg.Pipelines, r.logger)
	if err != nil {
		return fmt.Errorf("failed to build pipelines: %w", err)
	}
	defer pipelines.Close()

	var badge server.Badge
	if r.cfg.Notifier.Enabled {
		badge = notify.New(r.cfg.Notifier, r.logger)
	}

	var publisher server.Publisher
	if busClient != nil {
		publisher = busClient
	}

	srv, err := server.New(r.cfg.HTTP, pipelines, store, publisher, badge, metricsHandler, &r.ready, r.logger)
	if err != nil {
		return fmt.Errorf("failed to build http server: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", addr),
		slog.Any("pipelines", pipelines.Names()),
		slog.String("default_pipeline", pipelines.Default()),
		slog.Bool("bus", busClient != nil),
		slog.Bool("notifier", badge != nil))

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}
