package tracker

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"fulfillment-tracker/internal/common/httpx"
	"fulfillment-tracker/internal/common/logger"
	"fulfillment-tracker/internal/config"
	"fulfillment-tracker/internal/connections/database"
	"fulfillment-tracker/internal/connections/rabbitmq"
	cataloghandler "fulfillment-tracker/internal/microservices/catalog/handler"
	catalogrepo "fulfillment-tracker/internal/microservices/catalog/repository"
	catalogservice "fulfillment-tracker/internal/microservices/catalog/service"
	"fulfillment-tracker/internal/microservices/notificator/gateway"
	streamhandler "fulfillment-tracker/internal/microservices/notificator/handler"
	notifservice "fulfillment-tracker/internal/microservices/notificator/service"
	"fulfillment-tracker/internal/microservices/tracker/handler"
	"fulfillment-tracker/internal/microservices/tracker/repository"
	"fulfillment-tracker/internal/microservices/tracker/service"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Start runs the tracking service until ctx is cancelled. The memory store keeps
// everything in-process: no database, no broker, realtime events stay local.
func Start(ctx context.Context, cfg *config.Config, storeKind string, lg *logger.Logger) error {
	mgr := gateway.NewManager(lg)
	defer mgr.Close()

	var (
		store   repository.Store
		entries catalogrepo.Repository
		fan     gateway.Fanout
		checks  []handler.HealthCheck
		workers []func(context.Context) error
	)
	switch storeKind {
	case StoreMemory:
		store = repository.NewMemoryStore()
		entries = catalogrepo.NewMemoryRepository()
		fan = gateway.NewLocalFanout(mgr)

	case StorePostgres:
		pool, err := database.ConnectDB(ctx, cfg.Database)
		if err != nil {
			lg.Error("db_connect_failed", err, map[string]any{"host": cfg.Database.Host})
			return err
		}
		defer pool.Close()
		if err := repository.Migrate(ctx, pool); err != nil {
			return err
		}
		store = repository.NewPostgresStore(pool)
		checks = append(checks, handler.HealthCheck{Name: "postgres", Ping: pool.Ping})

		gdb, err := database.OpenGorm(cfg.Database)
		if err != nil {
			return err
		}
		if sqlDB, err := gdb.DB(); err == nil {
			defer sqlDB.Close()
		}
		gr := catalogrepo.NewGormRepository(gdb)
		if err := gr.Migrate(ctx); err != nil {
			return err
		}
		entries = gr

		rmq, err := rabbitmq.Dial(cfg.RabbitMQ)
		if err != nil {
			lg.Error("rabbitmq_connect_failed", err, map[string]any{"host": cfg.RabbitMQ.Host})
			return err
		}
		defer rmq.Close()
		if err := rmq.DeclareRealtime(cfg.Realtime.Exchange); err != nil {
			return err
		}
		fan = gateway.NewAMQPFanout(rmq, cfg.Realtime.Exchange)
		checks = append(checks, handler.HealthCheck{Name: "rabbitmq", Ping: func(context.Context) error { return rmq.Ping() }})

		relay := notifservice.NewRelay(rmq, cfg.Realtime.Exchange, mgr, lg)
		workers = append(workers, func(ctx context.Context) error {
			if err := relay.Run(ctx); err != nil {
				return fmt.Errorf("realtime relay: %w", err)
			}
			return nil
		})

	default:
		return fmt.Errorf("unknown store %q: want %s or %s", storeKind, StorePostgres, StoreMemory)
	}

	catalog := catalogservice.NewCatalogService(entries, lg)
	svc := service.NewTrackerService(store, gateway.New(fan, lg), catalog, lg)
	if cfg.Ledger.PurgeEnabled {
		workers = append(workers, func(ctx context.Context) error {
			svc.RunLedgerJanitor(ctx, cfg.Ledger.PurgeEvery, cfg.Ledger.TTL)
			return nil
		})
	}

	h := handler.New(svc, checks,
		cataloghandler.NewCatalogHandler(catalog),
		streamhandler.NewStreamHandler(mgr, lg, cfg.Realtime.SessionBuffer, cfg.Realtime.Heartbeat),
	)
	srv := httpx.New(fmt.Sprintf(":%d", cfg.HTTP.Port), handler.Router(h, lg), cfg.HTTP.ReadTimeout, cfg.HTTP.ShutdownTimeout)
	// open streams never go idle on their own
	srv.RegisterOnShutdown(mgr.Close)

	lg.Info("service_started", map[string]any{"mode": "tracking-service", "port": cfg.HTTP.Port, "store": storeKind})
	if err := run(ctx, srv.Run, workers...); err != nil {
		lg.Error("service_failed", err, map[string]any{"mode": "tracking-service"})
		return err
	}
	lg.Info("service_stopped", map[string]any{"mode": "tracking-service"})
	return nil
}

// run serves until ctx ends or any worker fails. A failed worker stops the
// server and its error is returned.
func run(ctx context.Context, serve func(context.Context) error, workers ...func(context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, w := range workers {
		g.Go(func() error { return w(gctx) })
	}
	g.Go(func() error { return serve(gctx) })
	return g.Wait()
}

// Migrate applies the tracker schema and the catalog tables, then returns.
func Migrate(ctx context.Context, cfg *config.Config, lg *logger.Logger) error {
	pool, err := database.ConnectDB(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := repository.Migrate(ctx, pool); err != nil {
		return err
	}

	gdb, err := database.OpenGorm(cfg.Database)
	if err != nil {
		return err
	}
	if sqlDB, err := gdb.DB(); err == nil {
		defer sqlDB.Close()
	}
	if err := catalogrepo.NewGormRepository(gdb).Migrate(ctx); err != nil {
		return err
	}
	lg.Info("migrations_applied", map[string]any{"database": cfg.Database.Database})
	return nil
}
