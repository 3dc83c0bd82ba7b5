package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medihub/access-api/internal/repository"
	"github.com/medihub/access-api/pkg/logger"
	"github.com/medihub/access-api/pkg/metrics"
)

type batchGrants struct {
	repository.GrantRepository
	remaining int64
	calls     int
}

func (g *batchGrants) ExpireAllStale(_ context.Context, _ time.Time, limit int) (int64, error) {
	g.calls++
	n := g.remaining
	if n > int64(limit) {
		n = int64(limit)
	}
	g.remaining -= n
	return n, nil
}

type purgeNotifications struct {
	repository.NotificationRepository
	cutoff time.Time
}

func (n *purgeNotifications) DeleteReadBefore(_ context.Context, cutoff time.Time) (int64, error) {
	n.cutoff = cutoff
	return 4, nil
}

type purgeOutbox struct {
	repository.OutboxRepository
	before time.Time
}

func (o *purgeOutbox) DeleteProcessedBefore(_ context.Context, before time.Time) (int64, error) {
	o.before = before
	return 2, nil
}

type sweepStore struct {
	grants        *batchGrants
	notifications *purgeNotifications
	outbox        *purgeOutbox
}

func (s *sweepStore) Grants() repository.GrantRepository               { return s.grants }
func (s *sweepStore) Notifications() repository.NotificationRepository { return s.notifications }
func (s *sweepStore) Outbox() repository.OutboxRepository              { return s.outbox }
func (s *sweepStore) WithTx(_ context.Context, fn func(repository.Store) error) error {
	return fn(s)
}

func TestSweepWorker_ExpiresInBatchesAndPurges(t *testing.T) {
	store := &sweepStore{
		grants:        &batchGrants{remaining: 25},
		notifications: &purgeNotifications{},
		outbox:        &purgeOutbox{},
	}
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	w := NewSweepWorker(store, SweepConfig{
		Interval:              time.Minute,
		BatchSize:             10,
		NotificationRetention: 24 * time.Hour,
		OutboxRetention:       time.Hour,
	}, logger.Nop(), metrics.NewNop())
	w.now = func() time.Time { return now }

	result, err := w.sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(25), result.GrantsExpired)
	assert.Equal(t, 3, store.grants.calls)
	assert.Equal(t, int64(4), result.NotificationsPurged)
	assert.Equal(t, int64(2), result.OutboxEventsPurged)
	assert.Equal(t, now.Add(-24*time.Hour), store.notifications.cutoff)
	assert.Equal(t, now.Add(-time.Hour), store.outbox.before)
}

func TestSweepWorker_SkipsPurgeWithoutRetention(t *testing.T) {
	store := &sweepStore{grants: &batchGrants{}}

	w := NewSweepWorker(store, SweepConfig{Interval: time.Minute}, logger.Nop(), metrics.NewNop())
	result, err := w.sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepResult{}, result)
	assert.Equal(t, 1, store.grants.calls)
}
