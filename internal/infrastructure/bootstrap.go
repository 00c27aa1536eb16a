package infrastructure

import (
	"context"
	"fmt"
	"log/slog"

	"chargeledger/internal/config"
	"chargeledger/internal/coordinator"
	"chargeledger/internal/repository"
	"chargeledger/internal/service"
	transportGRPC "chargeledger/internal/transport/grpc"
	transportHTTP "chargeledger/internal/transport/http"
	transportKafka "chargeledger/internal/transport/kafka"
	transportNATS "chargeledger/internal/transport/nats"

	"github.com/nats-io/nats.go"
)

// Bootstrap initialises all dependencies from config and wires up the application.
// Returns the App, a cleanup function, or an error.
func Bootstrap(ctx context.Context) (*App, func(), error) {
	cfg, err := config.New()
	if err != nil {
		return nil, nil, err
	}
	logger := NewLogger(cfg.LogLevel)

	var cleanupFns []func()

	// ── Balance store ─────────────────────────────────────────────────────────
	store, err := openStore(ctx, cfg, logger, &cleanupFns)
	if err != nil {
		return nil, runCleanup(cleanupFns), fmt.Errorf("open %s store: %w", cfg.StoreProvider, err)
	}

	coord, err := newCoordinator(cfg, store)
	if err != nil {
		return nil, runCleanup(cleanupFns), err
	}
	cleanupFns = append(cleanupFns, func() { _ = coord.Close() })

	// ── Event bus ─────────────────────────────────────────────────────────────
	var bus repository.MessageBus = repository.NopBus{}
	var nc *nats.Conn

	switch cfg.BusProvider {
	case config.BusNats:
		nc, err = connectNats(cfg.NatsAddr(), logger)
		if err != nil {
			return nil, runCleanup(cleanupFns), fmt.Errorf("connect nats: %w", err)
		}
		cleanupFns = append(cleanupFns, nc.Close)
		bus = transportNATS.NewBus(nc)

	case config.BusKafka:
		kb := transportKafka.NewBus(cfg.KafkaBrokers)
		cleanupFns = append(cleanupFns, func() { _ = kb.Close() })
		bus = kb
	}

	svc := service.NewLedger(store, coord, bus, cfg.DefaultBalance, logger)

	// ── Transports ────────────────────────────────────────────────────────────
	servers := []Server{transportHTTP.NewServer(cfg.ApiAddr(), svc, logger)}
	if addr := cfg.GRPCAddr(); addr != "" {
		servers = append(servers, transportGRPC.NewServer(addr, svc, cfg.HealthCheckInterval, logger))
	}
	if nc != nil {
		// NATS also carries ledger commands.
		servers = append(servers, transportNATS.NewHandler(svc, nc, logger))
	}

	logger.Info("ledger configured",
		"store", cfg.StoreProvider,
		"coordinator", cfg.Coordinator,
		"bus", cfg.BusProvider,
	)

	return NewApp(servers, logger), runCleanup(cleanupFns), nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger, cleanupFns *[]func()) (repository.ConditionalStore, error) {
	switch cfg.StoreProvider {
	case config.StoreRedis:
		rdb, err := connectRedis(cfg)
		if err != nil {
			return nil, err
		}
		*cleanupFns = append(*cleanupFns, func() { _ = rdb.Close() })
		return repository.NewRedisStore(rdb, cfg.StoreTimeout, logger), nil

	case config.StorePostgres:
		if cfg.AutoMigrate {
			if err := repository.RunMigrations(ctx, cfg.DSN(), "up", logger); err != nil {
				return nil, err
			}
		}
		db, err := connectPostgres(cfg.DSN())
		if err != nil {
			return nil, err
		}
		*cleanupFns = append(*cleanupFns, db.Close)
		return repository.NewPostgresStore(db, cfg.StoreTimeout, logger), nil

	case config.StoreMemory:
		return repository.NewMemoryStore(logger), nil
	}
	return nil, fmt.Errorf("unknown store provider %q", cfg.StoreProvider)
}

func newCoordinator(cfg *config.Config, store repository.ConditionalStore) (coordinator.Coordinator, error) {
	switch cfg.Coordinator {
	case coordinator.StrategyLock:
		return coordinator.NewLocking(coordinator.NewLockTable(), store), nil
	case coordinator.StrategyOptimistic:
		return coordinator.NewOptimistic(store, uint64(cfg.CASMaxRetries), cfg.CASBaseDelay), nil
	}
	return nil, fmt.Errorf("unknown coordinator %q", cfg.Coordinator)
}

// runCleanup returns a single function that calls all cleanup functions in reverse order.
func runCleanup(fns []func()) func() {
	return func() {
		for i := len(fns) - 1; i >= 0; i-- {
			fns[i]()
		}
	}
}
