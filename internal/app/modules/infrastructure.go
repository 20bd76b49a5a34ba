package modules

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/riverqueue/river"

	"oauthbridge.io/bridge/internal/config"
	"oauthbridge.io/bridge/internal/domain"
	"oauthbridge.io/bridge/internal/infrastructure"
	"oauthbridge.io/bridge/internal/login"
	"oauthbridge.io/bridge/internal/pkg/worker"
	"oauthbridge.io/bridge/internal/repository/postgres"
)

// Infrastructure holds shared cross-cutting dependencies for all modules.
// It is a provider, not a Module.
type Infrastructure struct {
	Config *config.Config
	DB     *infrastructure.DatabaseClients
	Pools  *worker.Pools
	Store  *postgres.Store
	Events *domain.EventDispatcher
	// Redis is nil unless redis.addr is configured.
	Redis *redis.Client
}

// NewInfrastructure initializes the database, worker pools and Redis.
func NewInfrastructure(ctx context.Context, cfg *config.Config) (*Infrastructure, error) {
	db, err := infrastructure.NewDatabaseClients(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}

	if cfg.Database.AutoMigrate {
		if err := db.AutoMigrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("auto-migrate: %w", err)
		}
	}

	poolCfg := worker.DefaultPoolConfig()
	if cfg.Worker.GeneralPoolSize > 0 {
		poolCfg.GeneralPoolSize = cfg.Worker.GeneralPoolSize
	}
	if cfg.Worker.NotifyPoolSize > 0 {
		poolCfg.NotifyPoolSize = cfg.Worker.NotifyPoolSize
	}
	pools, err := worker.NewPools(ctx, poolCfg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init worker pools: %w", err)
	}

	rdb, err := login.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		pools.Shutdown()
		db.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	return &Infrastructure{
		Config: cfg,
		DB:     db,
		Pools:  pools,
		Store:  postgres.NewStore(db.Pool),
		Events: domain.NewEventDispatcher(),
		Redis:  rdb,
	}, nil
}

// InitRiver initializes the River client on top of a prepared worker registry.
func (i *Infrastructure) InitRiver(workers *river.Workers) error {
	if i == nil || i.DB == nil || i.Config == nil {
		return fmt.Errorf("infrastructure is not initialized")
	}
	if err := i.DB.InitRiverClient(workers, i.Config.River); err != nil {
		return fmt.Errorf("init river: %w", err)
	}
	return nil
}

// Close releases infra resources in reverse dependency order.
func (i *Infrastructure) Close() {
	if i == nil {
		return
	}
	if i.Redis != nil {
		_ = i.Redis.Close()
	}
	if i.Pools != nil {
		i.Pools.Shutdown()
	}
	if i.DB != nil {
		i.DB.Close()
	}
}
