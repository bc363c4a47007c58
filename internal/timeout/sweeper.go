package timeout

import (
	"context"
	"log/slog"
	"time"
)

type Sweepable interface {
	SweepExpiredOffers(ctx context.Context, concurrency int) (int, error)
}

// Sweeper periodically times out PENDING offers past their expiry.
type Sweeper struct {
	target      Sweepable
	interval    time.Duration
	concurrency int
}

func NewSweeper(target Sweepable, interval time.Duration, concurrency int) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		target:      target,
		interval:    interval,
		concurrency: concurrency,
	}
}

// Start sweeps once immediately and then on every tick.
// It blocks until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("timeout sweeper started", "interval", s.interval, "concurrency", s.concurrency)
	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Info("timeout sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	n, err := s.target.SweepExpiredOffers(ctx, s.concurrency)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Error("timeout sweep failed", "transitioned", n, "error", err)
	}
}
