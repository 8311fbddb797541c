// Package redis manages the shared Redis client used by the rate limiter and health checks.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/invoicer/internal/config"
	"github.com/turtacn/invoicer/pkg/logger"
)

// RedisConnection manages Redis client lifecycle and health monitoring.
type RedisConnection struct {
	config *config.RedisConfig
	client redis.UniversalClient
	logger logger.Logger
}

// NewRedisConnection creates a connection manager. Call Connect before use.
func NewRedisConnection(cfg *config.RedisConfig, log logger.Logger) *RedisConnection {
	return &RedisConnection{config: cfg, logger: log}
}

// Connect creates the client and verifies it with a ping.
func (rc *RedisConnection) Connect(ctx context.Context) error {
	if rc.client != nil {
		rc.logger.Warn(ctx, "Redis connection already initialized")
		return nil
	}

	poolSize := rc.config.PoolSize
	if poolSize == 0 {
		poolSize = 10
	}

	client := redis.NewClient(&redis.Options{
		Addr:         rc.config.Address,
		Password:     rc.config.Password,
		DB:           rc.config.DB,
		PoolSize:     poolSize,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		rc.logger.Error(ctx, "Redis ping failed", err, logger.String("addr", rc.config.Address))
		_ = client.Close()
		return fmt.Errorf("redis ping failed: %w", err)
	}

	rc.client = client
	rc.logger.Info(ctx, "Redis connection established successfully",
		logger.String("addr", rc.config.Address),
		logger.Int("pool_size", poolSize),
	)
	return nil
}

// GetClient returns the client, or nil before Connect.
func (rc *RedisConnection) GetClient() redis.UniversalClient {
	return rc.client
}

// Ping checks Redis server connectivity.
func (rc *RedisConnection) Ping(ctx context.Context) error {
	if rc.client == nil {
		return fmt.Errorf("redis connection not initialized")
	}
	return rc.client.Ping(ctx).Err()
}

// HealthCheck reports connectivity, latency and pool statistics.
func (rc *RedisConnection) HealthCheck(ctx context.Context) (map[string]interface{}, error) {
	if rc.client == nil {
		return nil, fmt.Errorf("redis connection not initialized")
	}

	start := time.Now()
	err := rc.client.Ping(ctx).Err()
	health := map[string]interface{}{
		"connected":  err == nil,
		"latency_ms": time.Since(start).Milliseconds(),
	}
	if err != nil {
		health["error"] = err.Error()
		return health, err
	}

	stats := rc.client.PoolStats()
	health["total_conns"] = stats.TotalConns
	health["idle_conns"] = stats.IdleConns
	return health, nil
}

// Close closes the client.
func (rc *RedisConnection) Close() error {
	if rc.client == nil {
		return nil
	}
	if err := rc.client.Close(); err != nil {
		rc.logger.Error(context.Background(), "Failed to close Redis connection", err)
		return err
	}
	rc.client = nil
	rc.logger.Info(context.Background(), "Redis connection closed successfully")
	return nil
}
