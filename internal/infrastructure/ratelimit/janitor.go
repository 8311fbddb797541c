package ratelimit

import (
	"context"
	"time"

	"github.com/turtacn/invoicer/pkg/logger"
)

// Janitor periodically prunes stale limiter records.
type Janitor struct {
	pruner   Pruner
	interval time.Duration
	logger   logger.Logger
}

// NewJanitor creates a janitor sweeping every interval.
func NewJanitor(p Pruner, interval time.Duration, log logger.Logger) *Janitor {
	return &Janitor{pruner: p, interval: interval, logger: log}
}

// Run sweeps until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			j.Sweep(ctx)
		}
	}
}

// Sweep runs a single prune pass.
func (j *Janitor) Sweep(ctx context.Context) int {
	removed, err := j.pruner.Prune(ctx)
	if err != nil {
		j.logger.Error(ctx, "Failed to prune rate limit records", err)
		return removed
	}
	if removed > 0 {
		j.logger.Debug(ctx, "Pruned rate limit records", logger.Int("removed", removed))
	}
	return removed
}
