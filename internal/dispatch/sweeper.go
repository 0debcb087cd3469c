package dispatch

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"plangen/internal/domain"
	"plangen/internal/metrics"
)

// Sweeper periodically reclaims stale processing jobs and deletes expired
// jobs and cache entries. Every sweep is idempotent and safe to run
// concurrently with workers and other sweeper instances: each statement is a
// single conditional update or delete.
type Sweeper struct {
	Jobs         domain.JobRepository
	Cache        domain.CacheRepository
	Interval     time.Duration
	StaleTimeout time.Duration
	Logger       zerolog.Logger
}

// Run blocks until ctx is done, sweeping once per interval.
func (s *Sweeper) Run(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	if stale, err := s.Jobs.SweepStale(ctx, s.StaleTimeout); err != nil {
		s.Logger.Error().Err(err).Msg("sweeper: stale job sweep failed")
	} else if stale > 0 {
		metrics.SweptTotal.WithLabelValues("stale_jobs").Add(float64(stale))
		s.Logger.Warn().Int64("count", stale).Msg("sweeper: reclaimed stale jobs")
	}

	if expired, err := s.Jobs.SweepExpired(ctx); err != nil {
		s.Logger.Error().Err(err).Msg("sweeper: expired job sweep failed")
	} else if expired > 0 {
		metrics.SweptTotal.WithLabelValues("expired_jobs").Add(float64(expired))
		s.Logger.Info().Int64("count", expired).Msg("sweeper: deleted expired jobs")
	}

	if expired, err := s.Cache.SweepExpired(ctx); err != nil {
		s.Logger.Error().Err(err).Msg("sweeper: cache sweep failed")
	} else if expired > 0 {
		metrics.SweptTotal.WithLabelValues("expired_cache").Add(float64(expired))
		s.Logger.Info().Int64("count", expired).Msg("sweeper: deleted expired cache entries")
	}
}
