package core

// scheduler.go runs periodic maintenance:
//  1. Evict finished batches whose results have outlived ResultTTL
//  2. Purge batch history older than HistoryRetentionDays
//
// The loop is long-running and stops with its context. Failures are logged
// and retried on the next tick.

import (
	"context"
	"log/slog"
	"time"
)

// evictInterval is how often expired batch results are dropped.
const evictInterval = time.Minute

// StartMaintenance runs maintenance immediately and then on a schedule
// until ctx is cancelled.
func (s *Service) StartMaintenance(ctx context.Context) {
	slog.Info("maintenance scheduler started",
		"result_ttl", s.opts.ResultTTL.String(),
		"history_retention_days", s.opts.HistoryRetentionDays,
		"cleanup_interval", s.opts.CleanupInterval.String(),
	)

	s.runHistoryPurge(ctx)

	evict := time.NewTicker(evictInterval)
	defer evict.Stop()
	purge := time.NewTicker(s.opts.CleanupInterval)
	defer purge.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("maintenance scheduler stopped")
			return
		case <-evict.C:
			if n := s.evictExpired(); n > 0 {
				slog.Debug("evicted expired batches", "batches", n)
			}
		case <-purge.C:
			s.runHistoryPurge(ctx)
		}
	}
}

// runHistoryPurge deletes history past the retention window.
func (s *Service) runHistoryPurge(ctx context.Context) {
	if s.opts.HistoryRetentionDays == 0 {
		return
	}

	start := time.Now()
	cutoff := s.now().AddDate(0, 0, -s.opts.HistoryRetentionDays)

	purged, err := s.store.PurgeBatchesBefore(ctx, cutoff)
	if err != nil {
		slog.Error("history purge failed", "error", err)
		return
	}
	slog.Info("purged batch history",
		"entries_purged", purged,
		"cutoff", cutoff.Format(time.RFC3339),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
