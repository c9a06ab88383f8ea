// Package workers hosts the background jobs that run alongside the API.
package workers

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ledger-service/ledger_service/internal/domain/repositories"
	"github.com/ledger-service/ledger_service/pkg/logger"
	"github.com/ledger-service/ledger_service/pkg/metrics"
)

// IdempotencySweeper periodically deletes expired idempotency records.
// The rows are authoritative, so expiry is enforced at read time too;
// the sweep only reclaims storage.
type IdempotencySweeper struct {
	store    repositories.LedgerStore
	schedule string
	cron     *cron.Cron
	logger   *logger.Logger
}

// NewIdempotencySweeper creates a sweeper on the given cron schedule.
func NewIdempotencySweeper(store repositories.LedgerStore, schedule string, log *logger.Logger) *IdempotencySweeper {
	if schedule == "" {
		schedule = "@hourly"
	}
	return &IdempotencySweeper{store: store, schedule: schedule, logger: log}
}

// Start schedules the sweep and runs one immediately.
func (s *IdempotencySweeper) Start() error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.schedule, s.sweep); err != nil {
		return err
	}
	s.cron.Start()
	go s.sweep()
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *IdempotencySweeper) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *IdempotencySweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	removed, err := s.store.DeleteExpiredIdempotencyRecords(ctx)
	if err != nil {
		s.logger.Error("idempotency sweep failed", "error", err)
		return
	}
	if removed > 0 {
		metrics.IdempotencyKeysSweptTotal.Add(float64(removed))
		s.logger.Info("idempotency sweep complete", "removed", removed)
	}
}
