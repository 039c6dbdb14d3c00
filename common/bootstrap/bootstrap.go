// Package bootstrap wires the engine's components in dependency order:
// config, logger, the shared Redis connection, the storage services,
// and metrics. Services call Setup once at startup and Shutdown on the
// way out.
package bootstrap

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/lyzr/flowengine/common/config"
	"github.com/lyzr/flowengine/common/logger"
	"github.com/lyzr/flowengine/common/metrics"
	redisWrapper "github.com/lyzr/flowengine/common/redis"
	"github.com/lyzr/flowengine/common/storage"
	"github.com/lyzr/flowengine/flow/node"
	"github.com/lyzr/flowengine/flow/nodes"
)

// Components holds every initialized service
type Components struct {
	Config   *config.Config
	Logger   *logger.Logger
	Redis    *redisWrapper.Client
	Queue    *storage.QueueStore
	Cache    *storage.CacheStore
	Webhook  *storage.WebhookChannel
	Registry *node.Registry
	Services *node.Services
	Metrics  *metrics.Metrics

	cleanupFuncs []func() error
}

// Setup initializes all engine components
func Setup(ctx context.Context, serviceName string) (*Components, error) {
	components := &Components{}

	cfg, err := config.Load(serviceName)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	components.Config = cfg

	components.Logger = logger.New(cfg.Service.LogLevel, cfg.Service.LogFormat)
	components.Logger.Info("initializing service",
		"service", serviceName,
		"environment", cfg.Service.Environment,
	)

	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
	}
	components.addCleanup(rdb.Close)

	components.Redis = redisWrapper.NewClient(rdb, components.Logger)
	components.Queue = storage.NewQueueStore(components.Redis, cfg.Redis.KeyPrefix)
	components.Cache = storage.NewCacheStore(components.Redis, cfg.Redis.KeyPrefix)
	components.Webhook = storage.NewWebhookChannel(components.Redis, cfg.Redis.KeyPrefix)

	components.Registry = nodes.NewDefaultRegistry()
	components.Services = &node.Services{
		Queue:   components.Queue,
		Cache:   components.Cache,
		Webhook: components.Webhook,
		Logger:  components.Logger,
	}

	components.Metrics = metrics.New(nil)

	components.Logger.Info("service initialized")
	return components, nil
}

// Shutdown runs all cleanup functions in reverse order
func (c *Components) Shutdown() {
	for i := len(c.cleanupFuncs) - 1; i >= 0; i-- {
		if err := c.cleanupFuncs[i](); err != nil && c.Logger != nil {
			c.Logger.Warn("cleanup failed", "error", err)
		}
	}
}

func (c *Components) addCleanup(f func() error) {
	c.cleanupFuncs = append(c.cleanupFuncs, f)
}
