package app

import (
	"context"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/microcommerce/internal/domain"
	"github.com/vladislavdragonenkov/microcommerce/internal/storage/memory"
	"github.com/vladislavdragonenkov/microcommerce/internal/storage/postgres"
	redisstore "github.com/vladislavdragonenkov/microcommerce/internal/storage/redis"
)

// Dependencies содержит хранилища, от которых зависят сага и обработчики.
type Dependencies struct {
	Orders    domain.OrderRepository
	Stock     domain.StockRepository
	Checkouts domain.CheckoutRepository
	Carts     domain.CartStore
	Outbox    domain.OutboxRepository
	Timeline  domain.TimelineRepository
	Logger    *log.Entry

	store       *postgres.Store
	redisClient *goredis.Client
}

// NewDependencies создаёт зависимости целиком в памяти (для тестов и
// локального запуска без инфраструктуры).
func NewDependencies(logger *log.Entry) *Dependencies {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	return &Dependencies{
		Orders:    memory.NewOrderRepository(),
		Stock:     memory.NewStockRepository(),
		Checkouts: memory.NewCheckoutRepository(),
		Carts:     memory.NewCartStore(),
		Outbox:    memory.NewOutboxRepository(),
		Timeline:  memory.NewTimelineRepository(),
		Logger:    logger,
	}
}

// initDependencies собирает хранилища по конфигурации: агрегаты в памяти
// или в PostgreSQL, корзины в памяти или в Redis.
func initDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	deps := NewDependencies(logger)
	logger = deps.Logger

	switch strings.ToLower(strings.TrimSpace(cfg.StorageDriver)) {
	case "", "memory":
	case "postgres":
		if strings.TrimSpace(cfg.PostgresDSN) == "" {
			return nil, fmt.Errorf("postgres storage driver requires a DSN")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			if err := store.MigrateUp(ctx, 0); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("apply migrations: %w", err)
			}
		}
		deps.store = store
		deps.Orders = postgres.NewOrderRepository(store)
		deps.Stock = postgres.NewStockRepository(store)
		deps.Checkouts = postgres.NewCheckoutRepository(store)
		deps.Outbox = postgres.NewOutboxRepository(store)
		deps.Timeline = postgres.NewTimelineRepository(store)
		logger.Info("storage: postgres")
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.StorageDriver)
	}

	if addr := strings.TrimSpace(cfg.RedisAddr); addr != "" {
		client, err := redisstore.NewClient(ctx, addr)
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		deps.redisClient = client
		deps.Carts = redisstore.NewCartStore(client)
		logger.WithField("addr", addr).Info("carts: redis")
	}

	return deps, nil
}

// Close освобождает внешние подключения.
func (d *Dependencies) Close() {
	if d.redisClient != nil {
		if err := d.redisClient.Close(); err != nil {
			d.Logger.WithError(err).Warn("failed to close redis client")
		}
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			d.Logger.WithError(err).Warn("failed to close postgres store")
		}
	}
}
