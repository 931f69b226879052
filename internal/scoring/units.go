package scoring

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/couchcryptid/urban-comfort-index/internal/domain"
)

// CreateSpatialUnit registers a new unit. It returns domain.ErrConflict when
// the id is already taken; ingestion is the path for updating units.
func (s *Service) CreateSpatialUnit(ctx context.Context, u domain.SpatialUnit) (domain.SpatialUnit, error) {
	u.ID = strings.TrimSpace(u.ID)
	u.Name = strings.TrimSpace(u.Name)
	if err := u.Validate(); err != nil {
		return domain.SpatialUnit{}, err
	}

	_, err := s.repo.FindSpatialUnit(ctx, u.ID)
	switch {
	case err == nil:
		return domain.SpatialUnit{}, fmt.Errorf("spatial unit %q: %w", u.ID, domain.ErrConflict)
	case !errors.Is(err, domain.ErrNotFound):
		return domain.SpatialUnit{}, fmt.Errorf("find spatial unit: %w", err)
	}

	if err := s.repo.SaveSpatialUnit(ctx, u); err != nil {
		return domain.SpatialUnit{}, fmt.Errorf("save spatial unit: %w", err)
	}
	s.logger.Info("spatial unit created", "unit_id", u.ID)
	return u, nil
}

// UnitsWithin returns the units whose whole geometry lies inside c, ordered
// by id and capped at domain.MaxResults. Units with unreadable geometry are
// skipped.
func (s *Service) UnitsWithin(ctx context.Context, c domain.Circle) ([]domain.SpatialUnit, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	units, err := s.repo.ListSpatialUnits(ctx)
	if err != nil {
		return nil, fmt.Errorf("list spatial units: %w", err)
	}
	out := make([]domain.SpatialUnit, 0)
	for _, u := range units {
		if len(out) == domain.MaxResults {
			break
		}
		if !u.HasGeometry() {
			continue
		}
		inside, err := c.ContainsGeometry(u.Geom)
		if err != nil {
			s.logger.Warn("skipping unit with unreadable geometry", "unit_id", u.ID, "error", err)
			continue
		}
		if inside {
			out = append(out, u)
		}
	}
	return out, nil
}
