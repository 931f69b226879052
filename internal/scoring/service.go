// Package scoring orchestrates score computation and the read models built
// on stored scores: priority queues, GeoJSON exports, action cards and
// intervention tracking.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/urban-comfort-index/internal/domain"
	"github.com/couchcryptid/urban-comfort-index/internal/observability"
)

// Publisher announces freshly saved scores to downstream consumers.
type Publisher interface {
	PublishScores(ctx context.Context, records []domain.ComfortIndexRecord) error
}

// Options are the scoring defaults applied when a request does not override them.
type Options struct {
	WindowWeeks int
	UsePigeon   bool
	Weights     domain.Weights
}

// DefaultOptions returns a four-week window with the default weights.
func DefaultOptions() Options {
	return Options{WindowWeeks: 4, Weights: domain.DefaultWeights()}
}

// Status classifies the result of a single score computation.
type Status string

const (
	StatusScored       Status = "scored"
	StatusUnscored     Status = "unscored"
	StatusUnitNotFound Status = "unit_not_found"
)

// Outcome is the result of ComputeUCIForUnit. Record is set only when
// Status is StatusScored, so "no data" can never be mistaken for a zero score.
type Outcome struct {
	Status Status                     `json:"status"`
	UnitID string                     `json:"unit_id"`
	Date   string                     `json:"date"`
	Record *domain.ComfortIndexRecord `json:"record,omitempty"`
}

// Service implements the scoring operations on top of a domain.Repository.
type Service struct {
	repo      domain.Repository
	publisher Publisher
	opts      Options
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewService creates a Service. publisher may be nil to disable score events.
func NewService(repo domain.Repository, publisher Publisher, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
		opts:      opts,
		logger:    logger,
		metrics:   metrics,
	}
}

// Options returns the service defaults.
func (s *Service) Options() Options {
	return s.opts
}

// ComputeUCIForUnit computes, stores and publishes the score of one unit on
// date using windowWeeks of history. A missing unit and a unit without
// signals are reported through the Outcome status; errors are reserved for
// invalid arguments and storage failures.
func (s *Service) ComputeUCIForUnit(ctx context.Context, unitID, date string, windowWeeks int, usePigeon bool) (Outcome, error) {
	day, err := domain.ParseDate(date)
	if err != nil {
		return Outcome{}, err
	}
	if err := domain.ValidateWeeks("window_weeks", windowWeeks); err != nil {
		return Outcome{}, err
	}

	start := time.Now()
	out, err := s.compute(ctx, unitID, day, windowWeeks, usePigeon)
	s.metrics.ComputeDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.ScoresComputed.WithLabelValues("error").Inc()
		return Outcome{}, err
	}
	s.metrics.ScoresComputed.WithLabelValues(string(out.Status)).Inc()

	if out.Record != nil {
		s.publish(ctx, []domain.ComfortIndexRecord{*out.Record})
	}
	return out, nil
}

func (s *Service) compute(ctx context.Context, unitID string, day time.Time, windowWeeks int, usePigeon bool) (Outcome, error) {
	date := domain.FormatDate(day)
	out := Outcome{UnitID: unitID, Date: date}

	if _, err := s.repo.FindSpatialUnit(ctx, unitID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			out.Status = StatusUnitNotFound
			return out, nil
		}
		return Outcome{}, fmt.Errorf("find spatial unit: %w", err)
	}

	window, err := domain.LoadSignalWindow(ctx, s.repo, unitID, domain.LookbackRange(day, windowWeeks), usePigeon)
	if err != nil {
		return Outcome{}, fmt.Errorf("load signals for %s: %w", unitID, err)
	}

	rec, ok := domain.ComputeComfortIndex(unitID, date, window, domain.ScoreOptions{
		WindowWeeks: windowWeeks,
		UsePigeon:   usePigeon,
		Weights:     s.opts.Weights,
	})
	if !ok {
		s.logger.Debug("unit has no signals in window", "unit_id", unitID, "date", date, "window_weeks", windowWeeks)
		out.Status = StatusUnscored
		return out, nil
	}

	if err := s.repo.SaveScore(ctx, rec); err != nil {
		return Outcome{}, fmt.Errorf("save score: %w", err)
	}
	s.logger.Debug("score computed",
		"unit_id", unitID,
		"date", date,
		"uci_score", rec.UCIScore,
		"uci_grade", rec.UCIGrade,
	)
	out.Status = StatusScored
	out.Record = &rec
	return out, nil
}

// publish forwards records to the publisher. Failures are logged and counted
// but do not fail the computation: the score is already stored.
func (s *Service) publish(ctx context.Context, records []domain.ComfortIndexRecord) {
	if s.publisher == nil || len(records) == 0 {
		return
	}
	if err := s.publisher.PublishScores(ctx, records); err != nil {
		s.metrics.PublishErrors.Inc()
		s.logger.Warn("publish scores failed", "error", err, "count", len(records))
		return
	}
	s.metrics.ScoresPublished.Add(float64(len(records)))
}

// RescoreAfterIngest recomputes the scores fed by a signal of unitID on date:
// the score on date itself with the given window, then every stored score
// whose lookback window covers date, each with its own window and pigeon
// setting. Later days that were never scored stay unscored.
func (s *Service) RescoreAfterIngest(ctx context.Context, unitID, date string, windowWeeks int, usePigeon bool) error {
	day, err := domain.ParseDate(date)
	if err != nil {
		return err
	}
	if _, err := s.ComputeUCIForUnit(ctx, unitID, date, windowWeeks, usePigeon); err != nil {
		return err
	}

	later, err := s.repo.FindScoresInRange(ctx, unitID, domain.DateRange{
		From: domain.FormatDate(day.AddDate(0, 0, 1)),
		To:   domain.FormatDate(day.AddDate(0, 0, 7*domain.MaxWindowWeeks)),
	})
	if err != nil {
		return fmt.Errorf("find later scores: %w", err)
	}
	for _, rec := range later {
		recDay, err := domain.ParseDate(rec.Date)
		if err != nil {
			return err
		}
		if !domain.LookbackRange(recDay, rec.WindowWeeks).Contains(date) {
			continue
		}
		if _, err := s.ComputeUCIForUnit(ctx, unitID, rec.Date, rec.WindowWeeks, rec.UsePigeon); err != nil {
			return fmt.Errorf("rescore %s: %w", rec.Date, err)
		}
	}
	return nil
}

// BatchResult summarizes a ComputeAll run.
type BatchResult struct {
	Date     string                      `json:"date"`
	Scored   int                         `json:"scored"`
	Unscored int                         `json:"unscored"`
	Records  []domain.ComfortIndexRecord `json:"records"`
}

// ComputeAll scores every registered unit on date. Scores are published
// once, as a single batch, after all units are stored.
func (s *Service) ComputeAll(ctx context.Context, date string, windowWeeks int, usePigeon bool) (BatchResult, error) {
	day, err := domain.ParseDate(date)
	if err != nil {
		return BatchResult{}, err
	}
	if err := domain.ValidateWeeks("window_weeks", windowWeeks); err != nil {
		return BatchResult{}, err
	}
	units, err := s.repo.ListSpatialUnits(ctx)
	if err != nil {
		return BatchResult{}, fmt.Errorf("list spatial units: %w", err)
	}

	res := BatchResult{Date: domain.FormatDate(day), Records: make([]domain.ComfortIndexRecord, 0, len(units))}
	for _, u := range units {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		out, err := s.compute(ctx, u.ID, day, windowWeeks, usePigeon)
		if err != nil {
			s.metrics.ScoresComputed.WithLabelValues("error").Inc()
			return res, err
		}
		s.metrics.ScoresComputed.WithLabelValues(string(out.Status)).Inc()
		switch out.Status {
		case StatusScored:
			res.Scored++
			res.Records = append(res.Records, *out.Record)
		case StatusUnscored:
			res.Unscored++
		}
	}
	s.publish(ctx, res.Records)
	s.logger.Info("batch scoring complete", "date", res.Date, "scored", res.Scored, "unscored", res.Unscored)
	return res, nil
}
