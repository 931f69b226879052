package domain

import "context"

// UnitReader resolves spatial units. Find methods return ErrNotFound when the
// unit does not exist.
type UnitReader interface {
	FindSpatialUnit(ctx context.Context, unitID string) (SpatialUnit, error)
	ListSpatialUnits(ctx context.Context) ([]SpatialUnit, error)
}

// SignalReader reads signal history. Time series come back in ascending date
// order restricted to the inclusive range.
type SignalReader interface {
	FindHumanSignals(ctx context.Context, unitID string, r DateRange) ([]HumanSignal, error)
	FindPopulationSignals(ctx context.Context, unitID string, r DateRange) ([]PopulationSignal, error)
	FindPigeonSignals(ctx context.Context, unitID string, r DateRange) ([]PigeonSignal, error)
	// FindLatestGeoSignal returns ErrNotFound when the unit has no geo record.
	FindLatestGeoSignal(ctx context.Context, unitID string) (GeoSignal, error)
	// FindBaselineMetric returns ErrNotFound when no citywide baseline exists
	// for the period and category.
	FindBaselineMetric(ctx context.Context, period, category string) (BaselineMetric, error)
}

// SignalWriter persists ingested signals. Time-series records replace any
// existing record for the same (unit, date); geo records replace the unit's
// latest geo record.
type SignalWriter interface {
	SaveSpatialUnit(ctx context.Context, u SpatialUnit) error
	SaveHumanSignal(ctx context.Context, s HumanSignal) error
	SaveGeoSignal(ctx context.Context, s GeoSignal) error
	SavePopulationSignal(ctx context.Context, s PopulationSignal) error
	SavePigeonSignal(ctx context.Context, s PigeonSignal) error
	// SaveBaselineMetric upserts on (period, category).
	SaveBaselineMetric(ctx context.Context, b BaselineMetric) error
}

// ScoreStore persists composite scores, one per (unit, date).
type ScoreStore interface {
	// FindScore returns ErrNotFound when no score exists for the unit on date.
	FindScore(ctx context.Context, unitID, date string) (ComfortIndexRecord, error)
	// FindLatestScore returns the score with the greatest date for the unit.
	FindLatestScore(ctx context.Context, unitID string) (ComfortIndexRecord, error)
	FindScoresForDate(ctx context.Context, date string) ([]ComfortIndexRecord, error)
	// FindScoresInRange returns the unit's scores in ascending date order.
	FindScoresInRange(ctx context.Context, unitID string, r DateRange) ([]ComfortIndexRecord, error)
	// SaveScore upserts on (unit, date); the last write wins.
	SaveScore(ctx context.Context, rec ComfortIndexRecord) error
}

// InterventionStore persists interventions.
type InterventionStore interface {
	SaveIntervention(ctx context.Context, iv Intervention) error
	// FindIntervention returns ErrNotFound for an unknown id.
	FindIntervention(ctx context.Context, id string) (Intervention, error)
	// ListInterventions returns interventions newest start date first,
	// optionally filtered by unit, capped at limit.
	ListInterventions(ctx context.Context, unitID string, limit int) ([]Intervention, error)
}

// AnomalyStore persists anomaly results, one per (unit, date).
type AnomalyStore interface {
	SaveAnomaly(ctx context.Context, a AnomalyResult) error
	// FindAnomaly returns ErrNotFound when the unit has no result on date.
	FindAnomaly(ctx context.Context, unitID, date string) (AnomalyResult, error)
	FindLatestAnomaly(ctx context.Context, unitID string) (AnomalyResult, error)
	// FindAnomalies returns results ordered by date descending then unit,
	// optionally filtered by date and unit.
	FindAnomalies(ctx context.Context, date, unitID string) ([]AnomalyResult, error)
}

// Repository is the full storage surface the service depends on.
type Repository interface {
	UnitReader
	SignalReader
	SignalWriter
	ScoreStore
	InterventionStore
	AnomalyStore
}

// LoadSignalWindow collects every signal of a unit relevant to a score on the
// last day of r, including the citywide baseline of the month r ends in.
// A missing geo record or baseline is not an error.
func LoadSignalWindow(ctx context.Context, sr SignalReader, unitID string, r DateRange, usePigeon bool) (SignalWindow, error) {
	var w SignalWindow
	var err error
	if w.Human, err = sr.FindHumanSignals(ctx, unitID, r); err != nil {
		return w, err
	}
	if w.Population, err = sr.FindPopulationSignals(ctx, unitID, r); err != nil {
		return w, err
	}
	if usePigeon {
		if w.Pigeon, err = sr.FindPigeonSignals(ctx, unitID, r); err != nil {
			return w, err
		}
	}
	geo, err := sr.FindLatestGeoSignal(ctx, unitID)
	switch {
	case err == nil:
		w.Geo = &geo
	case !isNotFound(err):
		return w, err
	}

	period, err := PeriodOf(r.To)
	if err != nil {
		return w, err
	}
	b, err := sr.FindBaselineMetric(ctx, period, BaselineCategoryAll)
	switch {
	case err == nil:
		w.Baseline = &b
	case !isNotFound(err):
		return w, err
	}
	return w, nil
}
