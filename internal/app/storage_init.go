package app

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/delivery/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/delivery/internal/health"
	"github.com/vladislavdragonenkov/delivery/internal/storage/memory"
	"github.com/vladislavdragonenkov/delivery/internal/storage/postgres"
)

// runtimeDependencies — хранилища, выбранные по StorageDriver.
type runtimeDependencies struct {
	repo           domain.OrderRepository
	sequences      domain.SequenceRepository
	outboxRepo     domain.OutboxRepository
	storageChecker healthcheck.Checker
	closeFn        func() error
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (runtimeDependencies, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.StorageDriver))
	if driver == "" {
		driver = StorageDriverMemory
	}

	switch driver {
	case StorageDriverMemory:
		logger.Info("using in-memory order storage")
		return runtimeDependencies{
			repo:       memory.NewOrderRepository(),
			sequences:  memory.NewSequenceRepository(),
			outboxRepo: memory.NewOutboxRepository(),
			storageChecker: healthcheck.NewSimpleChecker("storage", func() error {
				return nil
			}),
		}, nil

	case StorageDriverPostgres:
		if strings.TrimSpace(cfg.PostgresDSN) == "" {
			return runtimeDependencies{}, fmt.Errorf("postgres storage requires DELIVERY_POSTGRES_DSN")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return runtimeDependencies{}, fmt.Errorf("open postgres: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			if err := store.MigrateUp(ctx, 0); err != nil {
				_ = store.Close()
				return runtimeDependencies{}, fmt.Errorf("apply migrations: %w", err)
			}
			logger.Info("postgres migrations applied")
		}
		logger.Info("using postgres order storage")
		return runtimeDependencies{
			repo:           postgres.NewOrderRepository(store),
			sequences:      postgres.NewSequenceRepository(store),
			outboxRepo:     postgres.NewOutboxRepository(store),
			storageChecker: healthcheck.NewProbeChecker("storage", 0, true, store.Ping),
			closeFn:        store.Close,
		}, nil

	default:
		return runtimeDependencies{}, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}
