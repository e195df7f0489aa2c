// Package sweeper removes expired refresh token records on a fixed interval.
package sweeper

import (
	"context"
	"time"

	"github.com/lexivault/lexivault/internal/logging"
	"github.com/lexivault/lexivault/internal/server/metrics"
)

// Cleaner deletes expired records and reports how many went.
type Cleaner interface {
	CleanupExpired(ctx context.Context) (int, error)
}

type Sweeper struct {
	store    Cleaner
	interval time.Duration
	timeout  time.Duration
	logger   logging.Logger
	metrics  *metrics.Metrics
}

func New(store Cleaner, interval time.Duration, l logging.Logger, m *metrics.Metrics) *Sweeper {
	return &Sweeper{
		store:    store,
		interval: interval,
		timeout:  30 * time.Second,
		logger:   l.With("module", "sweeper"),
		metrics:  m,
	}
}

// SweepOnce runs a single cleanup pass.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	n, err := s.store.CleanupExpired(ctx)
	if err != nil {
		s.logger.Error(ctx, "sweep failed", "error", err)
		return 0, err
	}
	s.metrics.Swept(n)
	if n > 0 {
		s.logger.Info(ctx, "expired refresh tokens removed", "count", n)
	}
	return n, nil
}

// Run sweeps every interval until ctx is done. A non-positive interval
// disables sweeping and Run returns at once.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}

	s.logger.Info(ctx, "Starting sweeper", "interval", s.interval.String())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sweepCtx, cancel := context.WithTimeout(ctx, s.timeout)
			_, _ = s.SweepOnce(sweepCtx)
			cancel()

		case <-ctx.Done():
			s.logger.Info(context.Background(), "Stopping sweeper...")
			return
		}
	}
}
