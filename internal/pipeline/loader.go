package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/urban-comfort-index/internal/domain"
)

// StoreLoader implements BatchLoader by writing envelopes to signal storage.
type StoreLoader struct {
	store  domain.SignalWriter
	logger *slog.Logger
}

// NewStoreLoader creates a StoreLoader.
func NewStoreLoader(store domain.SignalWriter, logger *slog.Logger) *StoreLoader {
	return &StoreLoader{store: store, logger: logger}
}

// LoadBatch persists envelopes in order. A storage failure aborts the batch
// so the pipeline retries it; writes are idempotent upserts.
func (l *StoreLoader) LoadBatch(ctx context.Context, envelopes []domain.SignalEnvelope) error {
	for _, env := range envelopes {
		if err := l.save(ctx, env); err != nil {
			return fmt.Errorf("save %s signal for %s: %w", env.Kind, env.UnitID(), err)
		}
	}
	l.logger.Debug("batch saved", "signals", len(envelopes))
	return nil
}

func (l *StoreLoader) save(ctx context.Context, env domain.SignalEnvelope) error {
	switch {
	case env.Unit != nil:
		return l.store.SaveSpatialUnit(ctx, *env.Unit)
	case env.Human != nil:
		return l.store.SaveHumanSignal(ctx, *env.Human)
	case env.Geo != nil:
		return l.store.SaveGeoSignal(ctx, *env.Geo)
	case env.Population != nil:
		return l.store.SavePopulationSignal(ctx, *env.Population)
	case env.Pigeon != nil:
		return l.store.SavePigeonSignal(ctx, *env.Pigeon)
	case env.Baseline != nil:
		return l.store.SaveBaselineMetric(ctx, *env.Baseline)
	default:
		return fmt.Errorf("%w: empty envelope", domain.ErrInvalidArgument)
	}
}
