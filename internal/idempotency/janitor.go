package idempotency

import (
	"context"
	"time"

	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/zookeeper"
)

// Janitor periodically sweeps settled ledger records. The ZooKeeper lock
// keeps the sweep on a single instance per fleet; losers skip the round.
type Janitor struct {
	ledger    Ledger
	lock      *zookeeper.DistributedLock
	interval  time.Duration
	retention time.Duration
}

func NewJanitor(ledger Ledger, lock *zookeeper.DistributedLock, interval, retention time.Duration) *Janitor {
	return &Janitor{ledger: ledger, lock: lock, interval: interval, retention: retention}
}

// Run blocks until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.sweepOnce(ctx)
		}
	}
}

func (j *Janitor) sweepOnce(ctx context.Context) {
	acquired, err := j.lock.TryLock()
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("janitor lock attempt failed")
		return
	}
	if !acquired {
		return
	}
	defer func() {
		if err := j.lock.Unlock(); err != nil {
			logger.Ctx(ctx).Error().Err(err).Msg("janitor unlock failed")
		}
	}()

	removed, err := j.ledger.Sweep(ctx, time.Now().Add(-j.retention))
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("idempotency sweep failed")
		return
	}
	if removed > 0 {
		logger.Ctx(ctx).Info().Int64("removed", removed).Msg("idempotency records swept")
	}
}
