package repository

import (
	"context"
	"log/slog"
	"time"
)

// ExpiredAliasDeleter removes RESERVED alias reservations whose TTL has elapsed.
type ExpiredAliasDeleter interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// AliasSweeper periodically frees aliases held by reservations that were never
// confirmed, e.g. after a crash mid-registration.
type AliasSweeper struct {
	store    ExpiredAliasDeleter
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	// OnSwept, if set, is called with the number of rows removed by each pass
	// that removed at least one.
	OnSwept func(n int64)
}

// NewAliasSweeper creates a sweeper. A non-positive interval defaults to one minute.
func NewAliasSweeper(store ExpiredAliasDeleter, interval time.Duration, logger *slog.Logger) *AliasSweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AliasSweeper{store: store, interval: interval, logger: logger, now: time.Now}
}

// Run sweeps once immediately and then on every tick until ctx is cancelled.
func (s *AliasSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.SweepOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce performs a single sweep and returns the number of reservations removed.
func (s *AliasSweeper) SweepOnce(ctx context.Context) int64 {
	n, err := s.store.DeleteExpired(ctx, s.now())
	if err != nil {
		s.logger.Error("alias reservation sweep failed", "error", err)
		return 0
	}
	if n > 0 {
		s.logger.Info("expired alias reservations removed", "count", n)
		if s.OnSwept != nil {
			s.OnSwept(n)
		}
	}
	return n
}
