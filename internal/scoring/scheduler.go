package scoring

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/urban-comfort-index/internal/domain"
)

// Scheduler recomputes every unit's score for the current day on a fixed interval.
type Scheduler struct {
	svc      *Service
	clock    clockwork.Clock
	interval time.Duration
	logger   *slog.Logger
	ready    atomic.Bool
	runs     atomic.Int64
}

// NewScheduler creates a Scheduler ticking on clock every interval.
func NewScheduler(svc *Service, clock clockwork.Clock, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		svc:      svc,
		clock:    clock,
		interval: interval,
		logger:   logger,
	}
}

// CheckReadiness returns nil once the first scheduled run has completed.
func (s *Scheduler) CheckReadiness(_ context.Context) error {
	if !s.ready.Load() {
		return errors.New("scheduler has not completed a scoring run yet")
	}
	return nil
}

// Runs reports how many scoring runs have completed successfully.
func (s *Scheduler) Runs() int64 {
	return s.runs.Load()
}

// Run scores all units immediately and then on every tick until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval)
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	s.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	opts := s.svc.Options()
	date := domain.FormatDate(s.clock.Now())
	res, err := s.svc.ComputeAll(ctx, date, opts.WindowWeeks, opts.UsePigeon)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("scheduled scoring failed", "date", date, "error", err)
		}
		return
	}
	s.runs.Add(1)
	s.ready.Store(true)
	s.logger.Debug("scheduled scoring done", "date", date, "scored", res.Scored)
}
