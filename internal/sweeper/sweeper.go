package sweeper

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"battle-arena/internal/battle"
	"battle-arena/internal/observability"
)

// Sweeper drives the time-based cleanup on a fixed interval. It owns no
// rules of its own: every sweep delegates to the battle service so the timer
// path and the live path share one implementation of the transitions.
type Sweeper struct {
	svc         *battle.Service
	log         zerolog.Logger
	metrics     *observability.Metrics
	interval    time.Duration
	sweepAgreed bool
}

func New(svc *battle.Service, log zerolog.Logger, metrics *observability.Metrics, interval time.Duration, sweepAgreed bool) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{svc: svc, log: log, metrics: metrics, interval: interval, sweepAgreed: sweepAgreed}
}

// Run blocks until ctx is cancelled, sweeping once per tick.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info().Dur("interval", s.interval).Bool("agreed_sweep", s.sweepAgreed).Msg("sweeper started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	expired := s.svc.SweepNoAcceptor(ctx)
	escalated := s.svc.SweepUnreported(ctx)

	settled := 0
	if s.sweepAgreed {
		settled = s.svc.SweepAgreedResults(ctx)
	}

	s.metrics.SweepRuns.Inc()
	if expired > 0 || escalated > 0 || settled > 0 {
		s.log.Info().
			Int("expired", expired).
			Int("escalated", escalated).
			Int("settled", settled).
			Msg("sweep finished")
	}
}
