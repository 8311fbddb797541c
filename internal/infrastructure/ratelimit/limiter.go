package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/invoicer/internal/config"
	"github.com/turtacn/invoicer/pkg/constants"
	"github.com/turtacn/invoicer/pkg/logger"
)

// Decision results reported to metrics.
const (
	ResultAllowed            = "allowed"
	ResultDenied             = "denied"
	ResultStorageUnavailable = "storage_unavailable"
)

// MetricsRecorder receives one observation per limiter decision.
type MetricsRecorder interface {
	RecordRateLimit(policy, result string)
}

// Limiter wraps a Store with the fail-open policy.
type Limiter struct {
	store   Store
	metrics MetricsRecorder
	logger  logger.Logger
}

// NewLimiter creates a limiter over store. metrics may be nil.
func NewLimiter(store Store, metrics MetricsRecorder, log logger.Logger) *Limiter {
	return &Limiter{
		store:   store,
		metrics: metrics,
		logger:  log.WithFields(logger.String("component", "rate_limiter")),
	}
}

// Hit counts one hit for key under policy. A storage failure never denies: it yields
// an allowed result with the full allowance and StorageUnavailable set.
func (l *Limiter) Hit(ctx context.Context, policy, key string, max int, window time.Duration) Result {
	res, err := l.store.Hit(ctx, key, max, window)
	if err != nil {
		l.logger.Warn(ctx, "Rate limit storage unavailable, allowing request",
			logger.String("policy", policy),
			logger.String("error", err.Error()),
		)
		l.record(policy, ResultStorageUnavailable)
		return storageUnavailable(max, window)
	}

	if res.Allowed {
		l.record(policy, ResultAllowed)
	} else {
		l.record(policy, ResultDenied)
		l.logger.Info(ctx, "Rate limit exceeded",
			logger.String("policy", policy),
			logger.Int("limit", max),
			logger.Duration("retry_after", res.RetryAfter),
		)
	}
	return res
}

func (l *Limiter) record(policy, result string) {
	if l.metrics != nil {
		l.metrics.RecordRateLimit(policy, result)
	}
}

func storageUnavailable(max int, window time.Duration) Result {
	return Result{
		Allowed:            true,
		Limit:              max,
		Remaining:          max,
		ResetAt:            time.Now().Add(window),
		StorageUnavailable: true,
	}
}

// NewStore builds the configured storage backend. client is only used by the redis driver.
func NewStore(cfg config.RateLimitConfig, client redis.UniversalClient) (Store, error) {
	switch cfg.Driver {
	case constants.RateLimitDriverMemory:
		return NewMemoryStore(cfg.PruneInterval, nil), nil
	case constants.RateLimitDriverRedis:
		return NewRedisStore(client, "invoicer:ratelimit:", nil)
	case constants.RateLimitDriverFile, "":
		return NewFileStore(cfg.Directory, WithPruneGrace(cfg.Window)), nil
	default:
		return nil, fmt.Errorf("unknown rate limit driver %q", cfg.Driver)
	}
}
