package scoring

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/couchcryptid/urban-comfort-index/internal/domain"
)

// dedupeIDs trims, drops blanks and duplicates, and caps the list.
func dedupeIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
		if len(out) == domain.MaxResults {
			break
		}
	}
	return out
}

// GenerateActionCards builds one card per requested unit with signals in the
// lookback window ending on date. With no unit ids, every unit scored on
// date is used. Unknown units and units without signals produce no card.
func (s *Service) GenerateActionCards(ctx context.Context, date string, unitIDs []string, usePigeon bool) ([]domain.ActionCard, error) {
	day, err := domain.ParseDate(date)
	if err != nil {
		return nil, err
	}
	ids := dedupeIDs(unitIDs)
	if len(ids) == 0 {
		records, err := s.repo.FindScoresForDate(ctx, date)
		if err != nil {
			return nil, fmt.Errorf("find scores: %w", err)
		}
		for _, r := range domain.LatestPerUnit(records) {
			ids = append(ids, r.UnitID)
		}
		ids = dedupeIDs(ids)
	}

	r := domain.LookbackRange(day, s.opts.WindowWeeks)
	cards := make([]domain.ActionCard, 0, len(ids))
	for _, id := range ids {
		if _, err := s.repo.FindSpatialUnit(ctx, id); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("find spatial unit: %w", err)
		}
		window, err := domain.LoadSignalWindow(ctx, s.repo, id, r, usePigeon)
		if err != nil {
			return nil, fmt.Errorf("load signals for %s: %w", id, err)
		}
		if card, ok := domain.GenerateActionCard(id, domain.FormatDate(day), window, usePigeon); ok {
			cards = append(cards, card)
		}
	}
	return cards, nil
}
