package core

// scheduler.go runs background maintenance for the rule-set cache.
//
// Cached uploads older than Config.CacheMaxAge are pruned periodically so a
// stale upload is not restored on the next start. The pruner logs failures
// and keeps running; it stops when its context is cancelled.

import (
	"context"
	"log/slog"
	"time"
)

// DefaultPruneInterval is used when Config.PruneInterval is zero.
const DefaultPruneInterval = 24 * time.Hour

// StartCachePruner prunes stale cache entries immediately, then every
// Config.PruneInterval, until ctx is cancelled. Does nothing when
// Config.CacheMaxAge is zero.
func (s *Service) StartCachePruner(ctx context.Context) {
	if s.cfg.CacheMaxAge <= 0 {
		slog.Info("cache pruner disabled")
		return
	}
	interval := s.cfg.PruneInterval
	if interval <= 0 {
		interval = DefaultPruneInterval
	}

	slog.Info("cache pruner started",
		"max_age", s.cfg.CacheMaxAge,
		"interval", interval,
	)

	s.PruneCache(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("cache pruner stopped")
			return
		case <-ticker.C:
			s.PruneCache(ctx)
		}
	}
}

// PruneCache removes cache entries older than Config.CacheMaxAge and
// returns how many were removed.
func (s *Service) PruneCache(ctx context.Context) int64 {
	start := time.Now()
	cutoff := s.now().Add(-s.cfg.CacheMaxAge)

	pruned, err := s.cache.PruneOlderThan(ctx, cutoff)
	if err != nil {
		slog.Error("cache prune failed", "error", err)
		return 0
	}

	slog.Info("cache pruned",
		"entries_pruned", pruned,
		"cutoff", cutoff,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return pruned
}
