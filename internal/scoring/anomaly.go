package scoring

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/couchcryptid/urban-comfort-index/internal/domain"
)

// AnomalyRequest selects the units and windows of an anomaly run. Zero week
// counts take the service window and domain.DefaultAnomalyLookbackWeeks.
type AnomalyRequest struct {
	Date          string `json:"date"`
	UnitID        string `json:"unit_id"`
	WindowWeeks   int    `json:"window_weeks"`
	BaselineWeeks int    `json:"baseline_weeks"`
}

// AnomalyBatch summarizes a ComputeAnomalies run. Flagged lists the flagged
// results, most anomalous first.
type AnomalyBatch struct {
	Date     string                 `json:"date"`
	Computed int                    `json:"computed"`
	Flagged  []domain.AnomalyResult `json:"flagged"`
}

// DetectAnomaly compares the last windowWeeks of a unit's human and
// population signals against the rest of lookbackWeeks, stores the result
// and returns it. An unknown unit is domain.ErrNotFound.
func (s *Service) DetectAnomaly(ctx context.Context, unitID, date string, windowWeeks, lookbackWeeks int) (domain.AnomalyResult, error) {
	day, err := domain.ParseDate(date)
	if err != nil {
		return domain.AnomalyResult{}, err
	}
	recent, baseline, err := domain.AnomalyWindows(day, windowWeeks, lookbackWeeks)
	if err != nil {
		return domain.AnomalyResult{}, err
	}
	if _, err := s.repo.FindSpatialUnit(ctx, unitID); err != nil {
		return domain.AnomalyResult{}, err
	}
	return s.detect(ctx, unitID, recent, baseline)
}

func (s *Service) detect(ctx context.Context, unitID string, recent, baseline domain.DateRange) (domain.AnomalyResult, error) {
	cur, err := s.loadAnomalySeries(ctx, unitID, recent)
	if err != nil {
		return domain.AnomalyResult{}, err
	}
	ref, err := s.loadAnomalySeries(ctx, unitID, baseline)
	if err != nil {
		return domain.AnomalyResult{}, err
	}

	res := domain.ComputeAnomaly(unitID, cur, ref)
	if err := s.repo.SaveAnomaly(ctx, res); err != nil {
		return domain.AnomalyResult{}, fmt.Errorf("save anomaly: %w", err)
	}
	s.metrics.AnomaliesDetected.WithLabelValues(strconv.FormatBool(res.AnomalyFlag)).Inc()
	if res.AnomalyFlag {
		s.logger.Info("anomaly flagged",
			"unit_id", unitID,
			"date", res.Date,
			"anomaly_score", res.AnomalyScore,
			"z_score", res.Stats.ZScore,
		)
	}
	return res, nil
}

func (s *Service) loadAnomalySeries(ctx context.Context, unitID string, r domain.DateRange) (domain.AnomalySeries, error) {
	series := domain.AnomalySeries{Range: r}
	var err error
	if series.Human, err = s.repo.FindHumanSignals(ctx, unitID, r); err != nil {
		return series, fmt.Errorf("load human signals for %s: %w", unitID, err)
	}
	if series.Population, err = s.repo.FindPopulationSignals(ctx, unitID, r); err != nil {
		return series, fmt.Errorf("load population signals for %s: %w", unitID, err)
	}
	return series, nil
}

// ComputeAnomalies runs anomaly detection for req.UnitID, or for every
// registered unit when it is empty.
func (s *Service) ComputeAnomalies(ctx context.Context, req AnomalyRequest) (AnomalyBatch, error) {
	if req.WindowWeeks == 0 {
		req.WindowWeeks = s.opts.WindowWeeks
	}
	if req.BaselineWeeks == 0 {
		req.BaselineWeeks = domain.DefaultAnomalyLookbackWeeks
	}
	day, err := domain.ParseDate(req.Date)
	if err != nil {
		return AnomalyBatch{}, err
	}
	recent, baseline, err := domain.AnomalyWindows(day, req.WindowWeeks, req.BaselineWeeks)
	if err != nil {
		return AnomalyBatch{}, err
	}

	var ids []string
	if req.UnitID != "" {
		if _, err := s.repo.FindSpatialUnit(ctx, req.UnitID); err != nil {
			return AnomalyBatch{}, err
		}
		ids = []string{req.UnitID}
	} else {
		units, err := s.repo.ListSpatialUnits(ctx)
		if err != nil {
			return AnomalyBatch{}, fmt.Errorf("list spatial units: %w", err)
		}
		for _, u := range units {
			ids = append(ids, u.ID)
		}
	}

	batch := AnomalyBatch{Date: domain.FormatDate(day), Flagged: make([]domain.AnomalyResult, 0)}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return batch, err
		}
		res, err := s.detect(ctx, id, recent, baseline)
		if err != nil {
			return batch, err
		}
		batch.Computed++
		if res.AnomalyFlag {
			batch.Flagged = append(batch.Flagged, res)
		}
	}
	sortAnomalies(batch.Flagged)
	if len(batch.Flagged) > domain.MaxResults {
		batch.Flagged = batch.Flagged[:domain.MaxResults]
	}
	s.logger.Info("anomaly run complete", "date", batch.Date, "computed", batch.Computed, "flagged", len(batch.Flagged))
	return batch, nil
}

// GetAnomaly returns the stored result of a unit on date, or its latest
// result when date is empty.
func (s *Service) GetAnomaly(ctx context.Context, unitID, date string) (domain.AnomalyResult, error) {
	if date == "" {
		return s.repo.FindLatestAnomaly(ctx, unitID)
	}
	if err := validDate(date); err != nil {
		return domain.AnomalyResult{}, err
	}
	return s.repo.FindAnomaly(ctx, unitID, date)
}

// ListAnomalies returns stored results, most anomalous first, optionally
// filtered by date, unit and flag, capped at domain.MaxResults.
func (s *Service) ListAnomalies(ctx context.Context, date, unitID string, flagged *bool) ([]domain.AnomalyResult, error) {
	if date != "" {
		if err := validDate(date); err != nil {
			return nil, err
		}
	}
	all, err := s.repo.FindAnomalies(ctx, date, unitID)
	if err != nil {
		return nil, fmt.Errorf("find anomalies: %w", err)
	}
	out := make([]domain.AnomalyResult, 0, len(all))
	for _, a := range all {
		if flagged != nil && a.AnomalyFlag != *flagged {
			continue
		}
		out = append(out, a)
	}
	sortAnomalies(out)
	if len(out) > domain.MaxResults {
		out = out[:domain.MaxResults]
	}
	return out, nil
}

// sortAnomalies orders by score descending, then date descending, then unit.
func sortAnomalies(results []domain.AnomalyResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.AnomalyScore != b.AnomalyScore {
			return a.AnomalyScore > b.AnomalyScore
		}
		if a.Date != b.Date {
			return a.Date > b.Date
		}
		return a.UnitID < b.UnitID
	})
}
