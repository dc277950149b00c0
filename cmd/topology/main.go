package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"line-topology/internal/config"
	"line-topology/internal/db"
	"line-topology/internal/logging"
	"line-topology/internal/memstore"
	"line-topology/internal/metrics"
	"line-topology/internal/publisher"
	"line-topology/internal/seed"
	"line-topology/internal/server"
	"line-topology/internal/service"
	"line-topology/internal/topology"
)

func main() {
	// Load configuration from .env and environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("store error: %v", err)
	}
	defer closeStore()

	// Metrics setup
	var mcol *metrics.Collector
	if cfg.MetricsAddr != "" {
		mcol = metrics.NewCollector()
		srv := mcol.Serve(cfg.MetricsAddr, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	// Change events are optional; without NATS_URL mutations are only persisted.
	var notifier service.Notifier
	if cfg.NATSURL != "" {
		pub, err := publisher.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubjectPrefix, cfg.LogNATSSubjects, logger, wrapPublisherMetrics(mcol))
		if err != nil {
			log.Fatalf("nats error: %v", err)
		}
		defer pub.Close()
		notifier = pub
	}

	paths := topology.NewManager(store, store, store, wrapTopologyMetrics(mcol))
	svc := service.NewNetworkService(store, paths, notifier, logger)
	if err := svc.Restore(ctx); err != nil {
		log.Fatalf("restore line paths: %v", err)
	}
	if cfg.SeedFile != "" {
		if err := applySeed(ctx, svc, cfg.SeedFile, logger); err != nil {
			log.Fatalf("seed %s: %v", cfg.SeedFile, err)
		}
	}

	router := server.NewRouter(logger, server.RouterDependencies{
		Health: svc,
		API:    server.NewAPIHandlers(logger, svc),
	})
	srv := server.New(logger, cfg.HTTPAddr, router)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("server stopped unexpectedly", "error", err)
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	logger.Info("shutdown complete")
}

// openStore returns the configured record store and its release func.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (service.Store, func(), error) {
	if cfg.Store == config.StoreMemory {
		logger.Warn("using in-memory store; topology is lost on restart")
		return memstore.New(), func() {}, nil
	}

	finalDSN := cfg.DatabaseURL
	if name := cfg.NetworkDatabase(); name != "" {
		// Connect to the cluster's 'postgres' database to provision the network database
		rootDSN, err := db.WithDBName(cfg.DatabaseURL, "postgres")
		if err != nil {
			return nil, nil, err
		}
		metaDB, err := db.Open(rootDSN)
		if err != nil {
			return nil, nil, err
		}
		defer metaDB.Close()
		if err := db.Ping(ctx, metaDB); err != nil {
			return nil, nil, err
		}
		if _, err := db.EnsureNetworkDB(ctx, metaDB, name); err != nil {
			return nil, nil, err
		}
		finalDSN, err = db.WithDBName(cfg.DatabaseURL, name)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using network database", "database", name, "network", cfg.Network)
	}

	sqlDB, err := db.Open(finalDSN)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Ping(ctx, sqlDB); err != nil {
		sqlDB.Close()
		return nil, nil, err
	}
	store := db.NewStore(sqlDB)
	if err := store.Migrate(ctx); err != nil {
		sqlDB.Close()
		return nil, nil, err
	}
	return store, func() { sqlDB.Close() }, nil
}

// applySeed loads the seed network into an empty store only.
func applySeed(ctx context.Context, svc *service.NetworkService, path string, logger *slog.Logger) error {
	stations, err := svc.ListStations(ctx)
	if err != nil {
		return err
	}
	lines, err := svc.ListLines(ctx)
	if err != nil {
		return err
	}
	if len(stations) > 0 || len(lines) > 0 {
		logger.Info("store not empty, skipping seed", "file", path)
		return nil
	}
	n, err := seed.LoadFile(path)
	if err != nil {
		return err
	}
	ids, err := n.Apply(ctx, svc)
	if err != nil {
		return err
	}
	logger.Info("seed applied", "file", path, "stations", len(ids), "lines", len(n.Lines))
	return nil
}
