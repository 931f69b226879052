package scoring

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/couchcryptid/urban-comfort-index/internal/domain"
)

// validateTopN checks a result-size parameter against the shared cap.
func validateTopN(name string, n int) error {
	if n < 1 || n > domain.MaxResults {
		return fmt.Errorf("%w: %s must be between 1 and %d", domain.ErrInvalidArgument, name, domain.MaxResults)
	}
	return nil
}

func validDate(date string) error {
	_, err := domain.ParseDate(date)
	return err
}

// GetSpatialUnit returns a single unit.
func (s *Service) GetSpatialUnit(ctx context.Context, unitID string) (domain.SpatialUnit, error) {
	return s.repo.FindSpatialUnit(ctx, unitID)
}

// DefaultUnitLimit is the page size of ListSpatialUnits when none is given.
const DefaultUnitLimit = 100

// ListSpatialUnits returns units ordered by id, at most limit of them. A
// non-empty q keeps only units whose name matches it as a case-insensitive
// regular expression.
func (s *Service) ListSpatialUnits(ctx context.Context, q string, limit int) ([]domain.SpatialUnit, error) {
	if err := validateTopN("limit", limit); err != nil {
		return nil, err
	}
	var match *regexp.Regexp
	if q != "" {
		re, err := regexp.Compile("(?i)" + q)
		if err != nil {
			return nil, fmt.Errorf("%w: q is not a valid pattern: %v", domain.ErrInvalidArgument, err)
		}
		match = re
	}
	units, err := s.repo.ListSpatialUnits(ctx)
	if err != nil {
		return nil, fmt.Errorf("list spatial units: %w", err)
	}
	out := make([]domain.SpatialUnit, 0, min(limit, len(units)))
	for _, u := range units {
		if len(out) == limit {
			break
		}
		if match != nil && !match.MatchString(u.Name) {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

// GetScore returns the stored score of a unit on date, or its most recent
// score when date is empty.
func (s *Service) GetScore(ctx context.Context, unitID, date string) (domain.ComfortIndexRecord, error) {
	if date == "" {
		return s.repo.FindLatestScore(ctx, unitID)
	}
	if err := validDate(date); err != nil {
		return domain.ComfortIndexRecord{}, err
	}
	return s.repo.FindScore(ctx, unitID, date)
}

// ListScores returns the scores of a date ranked worst first, optionally
// restricted to one grade and truncated to topK.
func (s *Service) ListScores(ctx context.Context, date string, grade domain.Grade, topK int) ([]domain.ComfortIndexRecord, error) {
	if err := validDate(date); err != nil {
		return nil, err
	}
	if grade != "" && !grade.Valid() {
		return nil, fmt.Errorf("%w: unknown grade %q", domain.ErrInvalidArgument, grade)
	}
	if err := validateTopN("top_k", topK); err != nil {
		return nil, err
	}
	records, err := s.repo.FindScoresForDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("find scores: %w", err)
	}
	out := make([]domain.ComfortIndexRecord, 0, min(topK, len(records)))
	for _, r := range domain.RankRecords(records) {
		if len(out) == topK {
			break
		}
		if grade != "" && r.UCIGrade != grade {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// resolveUnits looks up the units referenced by records. Units that have
// since been removed are skipped.
func (s *Service) resolveUnits(ctx context.Context, records []domain.ComfortIndexRecord) (map[string]domain.SpatialUnit, error) {
	units := make(map[string]domain.SpatialUnit, len(records))
	for _, r := range records {
		if _, seen := units[r.UnitID]; seen {
			continue
		}
		u, err := s.repo.FindSpatialUnit(ctx, r.UnitID)
		switch {
		case err == nil:
			units[r.UnitID] = u
		case errors.Is(err, domain.ErrNotFound):
			s.logger.Warn("score references unknown unit", "unit_id", r.UnitID, "date", r.Date)
		default:
			return nil, fmt.Errorf("find spatial unit: %w", err)
		}
	}
	return units, nil
}

func names(units map[string]domain.SpatialUnit) map[string]string {
	out := make(map[string]string, len(units))
	for id, u := range units {
		out[id] = u.Name
	}
	return out
}

// GetPriorityQueue ranks the scored units of date, worst first, and returns
// the first topN entries.
func (s *Service) GetPriorityQueue(ctx context.Context, date string, topN int) ([]domain.PriorityItem, error) {
	items, _, err := s.priorityQueue(ctx, date, topN)
	return items, err
}

func (s *Service) priorityQueue(ctx context.Context, date string, topN int) ([]domain.PriorityItem, map[string]domain.SpatialUnit, error) {
	if err := validDate(date); err != nil {
		return nil, nil, err
	}
	if err := validateTopN("top_n", topN); err != nil {
		return nil, nil, err
	}
	records, err := s.repo.FindScoresForDate(ctx, date)
	if err != nil {
		return nil, nil, fmt.Errorf("find scores: %w", err)
	}
	ranked := domain.RankRecords(records)
	if len(ranked) > topN {
		ranked = ranked[:topN]
	}
	units, err := s.resolveUnits(ctx, ranked)
	if err != nil {
		return nil, nil, err
	}
	return domain.BuildPriorityQueue(ranked, names(units), topN), units, nil
}

// ExportGeoJSON renders the scored units of date that have geometry, worst
// first, capped at domain.MaxResults features.
func (s *Service) ExportGeoJSON(ctx context.Context, date string) (domain.FeatureCollection, error) {
	if err := validDate(date); err != nil {
		return domain.FeatureCollection{}, err
	}
	records, err := s.repo.FindScoresForDate(ctx, date)
	if err != nil {
		return domain.FeatureCollection{}, fmt.Errorf("find scores: %w", err)
	}
	ranked := domain.RankRecords(records)
	units, err := s.resolveUnits(ctx, ranked)
	if err != nil {
		return domain.FeatureCollection{}, err
	}
	ordered := make([]domain.SpatialUnit, 0, min(len(ranked), domain.MaxResults))
	for _, r := range ranked {
		if len(ordered) == domain.MaxResults {
			break
		}
		if u, ok := units[r.UnitID]; ok && u.HasGeometry() {
			ordered = append(ordered, u)
		}
	}
	return domain.BuildScoreFeatures(ordered, ranked), nil
}

// ExportPriorityGeoJSON renders the priority queue of date as features
// carrying rank and explanation.
func (s *Service) ExportPriorityGeoJSON(ctx context.Context, date string, topN int) (domain.FeatureCollection, error) {
	items, units, err := s.priorityQueue(ctx, date, topN)
	if err != nil {
		return domain.FeatureCollection{}, err
	}
	return domain.BuildPriorityFeatures(items, units), nil
}
