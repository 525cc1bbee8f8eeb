package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/your-org/embarque/internal/api"
	"github.com/your-org/embarque/internal/api/handlers"
	"github.com/your-org/embarque/internal/api/ws"
	"github.com/your-org/embarque/internal/config"
	"github.com/your-org/embarque/internal/eventbus"
	"github.com/your-org/embarque/internal/ledger"
	"github.com/your-org/embarque/internal/models"
	"github.com/your-org/embarque/internal/observability"
	"github.com/your-org/embarque/internal/photostore"
	"github.com/your-org/embarque/internal/recordstore"
	"github.com/your-org/embarque/internal/trip"
	"github.com/your-org/embarque/pkg/dto"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting embarque sync service", "port", cfg.Server.Port)

	// Connect to Postgres
	store, err := recordstore.NewPostgresStore(cfg.Database, cfg.Sync.EmbeddingDim)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := store.EnsureSchema(context.Background()); err != nil {
		slog.Error("ensure schema", "error", err)
		os.Exit(1)
	}

	// Connect to MinIO
	photos, err := photostore.New(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}
	if err := photos.EnsureBucket(context.Background()); err != nil {
		slog.Warn("ensure minio bucket", "error", err)
	}

	// Connect to NATS
	notifier, err := eventbus.NewNotifier(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer notifier.Close()

	if err := notifier.EnsureStream(context.Background()); err != nil {
		slog.Warn("ensure nats stream", "error", err)
	}

	// WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Bridge mirrored events to connected WebSocket clients
	listener, err := eventbus.NewListener(cfg.NATS.URL)
	if err != nil {
		slog.Error("create event listener", "error", err)
		os.Exit(1)
	}
	defer listener.Close()

	err = listener.Listen(ctx, "api-events", func(ctx context.Context, ev models.Event) error {
		hub.BroadcastEvent(&dto.WSEvent{
			Type:  ev.TipoEvento,
			Event: ev,
		})
		return nil
	})
	if err != nil {
		slog.Warn("start event listener", "error", err)
	}

	// Wire the protocol components
	bus := eventbus.New(store, notifier)
	dispatcher := handlers.NewDispatcher(handlers.DispatcherConfig{
		Store:             store,
		Ledger:            ledger.New(store, bus),
		Bus:               bus,
		Trips:             trip.New(store, bus),
		Searcher:          store,
		EmbeddingDim:      cfg.Sync.EmbeddingDim,
		IdentifyThreshold: cfg.Sync.IdentifyThreshold,
		IdentifyLimit:     cfg.Sync.IdentifyLimit,
	})

	// Face capture runs as an external collaborator; the photo route
	// answers 503 until one is plugged in here.
	faces := handlers.NewFaceHandler(store, store, photos, nil, cfg.Sync.EmbeddingDim)

	router := api.NewRouter(api.RouterConfig{
		APIKey:     cfg.Server.APIKey,
		Dispatcher: dispatcher,
		Faces:      faces,
		System:     handlers.NewSystemHandler(store, photos, notifier),
		Hub:        hub,
	})

	// Start HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("API server stopped")
}
