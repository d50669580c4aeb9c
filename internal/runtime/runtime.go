// Package runtime assembles the talkspotd daemon: telemetry, bus,
// event store, destination clients, dispatcher, and the spotter service.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spotterlabs/talkspot/internal/bus"
	"github.com/spotterlabs/talkspot/internal/clients/dxcluster"
	"github.com/spotterlabs/talkspot/internal/clients/pota"
	"github.com/spotterlabs/talkspot/internal/clients/sota"
	"github.com/spotterlabs/talkspot/internal/config"
	"github.com/spotterlabs/talkspot/internal/dispatch"
	"github.com/spotterlabs/talkspot/internal/eventstore"
	"github.com/spotterlabs/talkspot/internal/natsserver"
	"github.com/spotterlabs/talkspot/internal/spot"
	"github.com/spotterlabs/talkspot/internal/spotter"
)

type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error
	ready       atomic.Bool
	wg          sync.WaitGroup

	busClient *bus.Client
	service   *spotter.Service
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to start embedded NATS: %w", err)
	}
	defer embedded.Shutdown()

	busCfg := r.cfg.Bus
	if embedded != nil {
		busCfg.Servers = []string{embedded.ClientURL()}
	}
	busClient, err := bus.Connect(ctx, busCfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer busClient.Close()
	r.busClient = busClient

	store, err := eventstore.Open(ctx, r.cfg.EventStore, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open event store: %w", err)
	}
	defer store.Close()

	dispatcher := r.buildDispatcher()

	service := spotter.NewService(ctx, r.cfg, busClient, store, dispatcher, r.logger)
	if err := service.Start(); err != nil {
		return fmt.Errorf("failed to start spotter service: %w", err)
	}
	defer service.Close()
	r.service = service

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metricHandler != nil {
		mux.Handle("/metrics", metricHandler)
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
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
	r.logger.Info("runtime started", slog.String("addr", addr))

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

// buildDispatcher wires each enabled destination into the dispatch table.
// A destination that is disabled, or whose client cannot be constructed,
// is marked unavailable so delivery reports say why it was skipped
// rather than failing the spot.
func (r *Runtime) buildDispatcher() *dispatch.Dispatcher {
	dispatcher := dispatch.New(dispatch.Options{
		Timeout: time.Duration(r.cfg.Spotter.DispatchTimeoutSec) * time.Second,
		DryRun:  r.cfg.Spotter.DryRun,
	}, r.logger)

	if r.cfg.DXCluster.Enabled {
		client := dxcluster.New(r.cfg.DXCluster, r.cfg.Spotter.Callsign, r.cfg.Spotter.Comment, r.logger)
		dispatcher.Register(spot.DXCluster, client)
	} else {
		dispatcher.MarkUnavailable(spot.DXCluster, dispatch.ReasonDisabled)
	}

	if r.cfg.POTA.Enabled {
		client := pota.New(r.cfg.POTA, r.cfg.Spotter.Callsign, r.cfg.Spotter.Comment, r.logger)
		dispatcher.Register(spot.POTA, client)
	} else {
		dispatcher.MarkUnavailable(spot.POTA, dispatch.ReasonDisabled)
	}

	if r.cfg.SOTA.Enabled {
		auth, err := sota.NewAuth(r.cfg.SOTA)
		if err != nil {
			r.logger.Warn("sota client unavailable", slog.String("error", err.Error()))
			dispatcher.MarkUnavailable(spot.SOTA, "configuration error: "+err.Error())
		} else {
			client := sota.New(r.cfg.SOTA, r.cfg.Spotter.Comment, auth, r.logger)
			dispatcher.Register(spot.SOTA, client)
		}
	} else {
		dispatcher.MarkUnavailable(spot.SOTA, dispatch.ReasonDisabled)
	}

	return dispatcher
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && r.busClient.Healthy() && r.service.Healthy() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
