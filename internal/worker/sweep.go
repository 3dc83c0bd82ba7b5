package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/medihub/access-api/internal/repository"
	"github.com/medihub/access-api/pkg/logger"
	"github.com/medihub/access-api/pkg/metrics"
)

type SweepConfig struct {
	Interval              time.Duration
	BatchSize             int
	NotificationRetention time.Duration
	OutboxRetention       time.Duration
}

// SweepWorker expires stale grants in bulk and purges old rows. Grant expiry
// is also applied lazily on every request, so the sweep only keeps the
// table tidy.
type SweepWorker struct {
	store   repository.Store
	config  SweepConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewSweepWorker(store repository.Store, config SweepConfig, logger *logger.Logger, metrics *metrics.Metrics) *SweepWorker {
	if config.BatchSize <= 0 {
		config.BatchSize = 500
	}
	return &SweepWorker{
		store:   store,
		config:  config,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

func (w *SweepWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Sweep(ctx); err != nil {
				w.logger.Error(err, "sweep failed")
			}
		}
	}
}

// SweepResult counts what one sweep changed.
type SweepResult struct {
	GrantsExpired       int64
	NotificationsPurged int64
	OutboxEventsPurged  int64
}

func (w *SweepWorker) Sweep(ctx context.Context) error {
	_, err := w.sweep(ctx)
	return err
}

func (w *SweepWorker) sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	now := w.now()

	for {
		n, err := w.store.Grants().ExpireAllStale(ctx, now, w.config.BatchSize)
		if err != nil {
			return result, fmt.Errorf("failed to expire stale grants: %w", err)
		}
		result.GrantsExpired += n
		if n < int64(w.config.BatchSize) {
			break
		}
	}
	w.metrics.GrantsExpired.Add(float64(result.GrantsExpired))

	if w.config.NotificationRetention > 0 {
		n, err := w.store.Notifications().DeleteReadBefore(ctx, now.Add(-w.config.NotificationRetention))
		if err != nil {
			return result, fmt.Errorf("failed to purge notifications: %w", err)
		}
		result.NotificationsPurged = n
		w.metrics.NotificationsPurged.Add(float64(n))
	}

	if w.config.OutboxRetention > 0 {
		n, err := w.store.Outbox().DeleteProcessedBefore(ctx, now.Add(-w.config.OutboxRetention))
		if err != nil {
			return result, fmt.Errorf("failed to purge outbox events: %w", err)
		}
		result.OutboxEventsPurged = n
	}

	if result != (SweepResult{}) {
		w.logger.Info("sweep completed",
			"grants_expired", result.GrantsExpired,
			"notifications_purged", result.NotificationsPurged,
			"outbox_events_purged", result.OutboxEventsPurged)
	}
	return result, nil
}
