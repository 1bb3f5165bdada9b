// Package app wires together configuration, persistence, the room
// registry, the router and the HTTP surface into a runnable Server.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"whiteboard-server/internal/config"
	"whiteboard-server/internal/httpapi"
	"whiteboard-server/internal/logging"
	"whiteboard-server/internal/metrics"
	"whiteboard-server/internal/persistence"
	"whiteboard-server/internal/persistence/memory"
	"whiteboard-server/internal/persistence/postgres"
	"whiteboard-server/internal/room"
	"whiteboard-server/internal/router"
)

// Server bundles the whole running process: the HTTP listener, the
// room registry's background save ticker, and whatever persistence
// adapter the configuration selected.
type Server struct {
	cfg      config.Config
	logger   *zap.Logger
	registry *room.Registry
	http     *httpapi.Server
	closer   func() error

	cancel context.CancelFunc
}

// New constructs a Server from cfg. It does not start listening —
// call Start.
func New(cfg config.Config) (*Server, error) {
	logger := logging.New(cfg.Debug)
	rec := metrics.New()

	store, closer, err := buildStore(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("app: building persistence store: %w", err)
	}

	saver := persistence.NewCoalescer(store, logger, cfg.SaveTimeout, func(roomID string) {
		rec.SaveFailure()
	})

	registry := room.NewRegistry(store, saver, logger, rec, cfg.HistoryMax, cfg.LoadTimeout, cfg.SaveTimeout)

	rtr := router.New(registry, logger, rec)

	httpSrv := httpapi.New(httpapi.Config{
		AllowedOrigins:    cfg.AllowedOrigins,
		OutboundQueueSize: cfg.OutboundQueueSize,
		RateLimitPerSec:   cfg.RateLimitPerSec,
	}, rtr, logger, rec, registry.RoomCount)

	ctx, cancel := context.WithCancel(context.Background())
	go registry.RunSaveTicker(ctx, cfg.SaveInterval)

	if ds, ok := store.(persistence.DeletionSource); ok {
		go registry.RunDeletionForwarder(ctx, ds)
	}

	return &Server{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		http:     httpSrv,
		closer:   closer,
		cancel:   cancel,
	}, nil
}

func buildStore(cfg config.Config, logger *zap.Logger) (persistence.Store, func() error, error) {
	switch cfg.PersistenceDriver {
	case "postgres":
		store, err := postgres.New(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		logger.Info("using in-memory persistence adapter")
		store := memory.New()
		return store, func() error { return nil }, nil
	}
}

// Start runs the HTTP listener. It blocks until the listener fails.
func (s *Server) Start() error {
	s.logger.Info("starting whiteboard realtime session server", zap.String("addr", s.cfg.ListenAddr))
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.http.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return srv.ListenAndServe()
}

// Close stops the background save ticker and closes the persistence
// adapter's connection, if any.
func (s *Server) Close() error {
	s.cancel()
	return s.closer()
}
