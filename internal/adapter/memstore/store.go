// Package memstore is an in-memory implementation of domain.Repository for
// demos and tests. No database required.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/couchcryptid/urban-comfort-index/internal/domain"
)

type series[T any] map[string]map[string]T // unit -> date -> record

func (s series[T]) put(unitID, date string, v T) {
	byDate, ok := s[unitID]
	if !ok {
		byDate = make(map[string]T)
		s[unitID] = byDate
	}
	byDate[date] = v
}

// inRange returns the unit's records inside r in ascending date order.
func (s series[T]) inRange(unitID string, r domain.DateRange) []T {
	byDate := s[unitID]
	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		if r.Contains(d) {
			dates = append(dates, d)
		}
	}
	sort.Strings(dates)
	out := make([]T, 0, len(dates))
	for _, d := range dates {
		out = append(out, byDate[d])
	}
	return out
}

// Store implements domain.Repository with maps guarded by a single RWMutex.
type Store struct {
	mu            sync.RWMutex
	units         map[string]domain.SpatialUnit
	human         series[domain.HumanSignal]
	population    series[domain.PopulationSignal]
	pigeon        series[domain.PigeonSignal]
	geo           map[string]domain.GeoSignal
	scores        series[domain.ComfortIndexRecord]
	interventions map[string]domain.Intervention
	baselines     map[string]domain.BaselineMetric // period/category
	anomalies     series[domain.AnomalyResult]
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		units:         make(map[string]domain.SpatialUnit),
		human:         make(series[domain.HumanSignal]),
		population:    make(series[domain.PopulationSignal]),
		pigeon:        make(series[domain.PigeonSignal]),
		geo:           make(map[string]domain.GeoSignal),
		scores:        make(series[domain.ComfortIndexRecord]),
		interventions: make(map[string]domain.Intervention),
		baselines:     make(map[string]domain.BaselineMetric),
		anomalies:     make(series[domain.AnomalyResult]),
	}
}

// CheckReadiness always succeeds.
func (s *Store) CheckReadiness(_ context.Context) error { return nil }

func (s *Store) FindSpatialUnit(_ context.Context, unitID string) (domain.SpatialUnit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.units[unitID]
	if !ok {
		return domain.SpatialUnit{}, fmt.Errorf("spatial unit %q: %w", unitID, domain.ErrNotFound)
	}
	return u, nil
}

func (s *Store) ListSpatialUnits(_ context.Context) ([]domain.SpatialUnit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.SpatialUnit, 0, len(s.units))
	for _, u := range s.units {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) FindHumanSignals(_ context.Context, unitID string, r domain.DateRange) ([]domain.HumanSignal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.human.inRange(unitID, r), nil
}

func (s *Store) FindPopulationSignals(_ context.Context, unitID string, r domain.DateRange) ([]domain.PopulationSignal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.population.inRange(unitID, r), nil
}

func (s *Store) FindPigeonSignals(_ context.Context, unitID string, r domain.DateRange) ([]domain.PigeonSignal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pigeon.inRange(unitID, r), nil
}

func (s *Store) FindLatestGeoSignal(_ context.Context, unitID string) (domain.GeoSignal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.geo[unitID]
	if !ok {
		return domain.GeoSignal{}, fmt.Errorf("geo signal for %q: %w", unitID, domain.ErrNotFound)
	}
	return g, nil
}

func (s *Store) SaveSpatialUnit(_ context.Context, u domain.SpatialUnit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.units[u.ID] = u
	return nil
}

func (s *Store) SaveHumanSignal(_ context.Context, sig domain.HumanSignal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.human.put(sig.UnitID, sig.Date, sig)
	return nil
}

// SaveGeoSignal keeps the record with the latest UpdatedAt.
func (s *Store) SaveGeoSignal(_ context.Context, sig domain.GeoSignal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.geo[sig.UnitID]; ok && cur.UpdatedAt.After(sig.UpdatedAt) {
		return nil
	}
	s.geo[sig.UnitID] = sig
	return nil
}

func (s *Store) SavePopulationSignal(_ context.Context, sig domain.PopulationSignal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.population.put(sig.UnitID, sig.Date, sig)
	return nil
}

func (s *Store) SavePigeonSignal(_ context.Context, sig domain.PigeonSignal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pigeon.put(sig.UnitID, sig.Date, sig)
	return nil
}

func (s *Store) FindScore(_ context.Context, unitID, date string) (domain.ComfortIndexRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.scores[unitID][date]
	if !ok {
		return domain.ComfortIndexRecord{}, fmt.Errorf("score for %q on %s: %w", unitID, date, domain.ErrNotFound)
	}
	return rec, nil
}

func (s *Store) FindLatestScore(_ context.Context, unitID string) (domain.ComfortIndexRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest string
	for d := range s.scores[unitID] {
		if d > latest {
			latest = d
		}
	}
	if latest == "" {
		return domain.ComfortIndexRecord{}, fmt.Errorf("score for %q: %w", unitID, domain.ErrNotFound)
	}
	return s.scores[unitID][latest], nil
}

func (s *Store) FindScoresForDate(_ context.Context, date string) ([]domain.ComfortIndexRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ComfortIndexRecord
	for _, byDate := range s.scores {
		if rec, ok := byDate[date]; ok {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UnitID < out[j].UnitID })
	return out, nil
}

func (s *Store) FindScoresInRange(_ context.Context, unitID string, r domain.DateRange) ([]domain.ComfortIndexRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scores.inRange(unitID, r), nil
}

func (s *Store) SaveScore(_ context.Context, rec domain.ComfortIndexRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores.put(rec.UnitID, rec.Date, rec)
	return nil
}

func (s *Store) SaveIntervention(_ context.Context, iv domain.Intervention) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interventions[iv.ID] = iv
	return nil
}

func (s *Store) FindIntervention(_ context.Context, id string) (domain.Intervention, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	iv, ok := s.interventions[id]
	if !ok {
		return domain.Intervention{}, fmt.Errorf("intervention %q: %w", id, domain.ErrNotFound)
	}
	return iv, nil
}

func (s *Store) ListInterventions(_ context.Context, unitID string, limit int) ([]domain.Intervention, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Intervention, 0)
	for _, iv := range s.interventions {
		if unitID != "" && iv.UnitID != unitID {
			continue
		}
		out = append(out, iv)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartDate != out[j].StartDate {
			return out[i].StartDate > out[j].StartDate
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func baselineKey(period, category string) string { return period + "/" + category }

func (s *Store) FindBaselineMetric(_ context.Context, period, category string) (domain.BaselineMetric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.baselines[baselineKey(period, category)]
	if !ok {
		return domain.BaselineMetric{}, fmt.Errorf("baseline %s/%s: %w", period, category, domain.ErrNotFound)
	}
	return b, nil
}

func (s *Store) SaveBaselineMetric(_ context.Context, b domain.BaselineMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baselines[baselineKey(b.Period, b.Category)] = b
	return nil
}

func (s *Store) SaveAnomaly(_ context.Context, a domain.AnomalyResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.anomalies.put(a.UnitID, a.Date, a)
	return nil
}

func (s *Store) FindAnomaly(_ context.Context, unitID, date string) (domain.AnomalyResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.anomalies[unitID][date]
	if !ok {
		return domain.AnomalyResult{}, fmt.Errorf("anomaly for %q on %s: %w", unitID, date, domain.ErrNotFound)
	}
	return a, nil
}

func (s *Store) FindLatestAnomaly(_ context.Context, unitID string) (domain.AnomalyResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest string
	for d := range s.anomalies[unitID] {
		if d > latest {
			latest = d
		}
	}
	if latest == "" {
		return domain.AnomalyResult{}, fmt.Errorf("anomaly for %q: %w", unitID, domain.ErrNotFound)
	}
	return s.anomalies[unitID][latest], nil
}

func (s *Store) FindAnomalies(_ context.Context, date, unitID string) ([]domain.AnomalyResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.AnomalyResult, 0)
	for id, byDate := range s.anomalies {
		if unitID != "" && id != unitID {
			continue
		}
		for d, a := range byDate {
			if date == "" || d == date {
				out = append(out, a)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date > out[j].Date
		}
		return out[i].UnitID < out[j].UnitID
	})
	return out, nil
}

var _ domain.Repository = (*Store)(nil)
