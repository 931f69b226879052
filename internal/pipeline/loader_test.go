package pipeline_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/urban-comfort-index/internal/adapter/memstore"
	"github.com/couchcryptid/urban-comfort-index/internal/domain"
	"github.com/couchcryptid/urban-comfort-index/internal/observability"
	"github.com/couchcryptid/urban-comfort-index/internal/pipeline"
)

type failingWriter struct {
	*memstore.Store
}

func (failingWriter) SavePopulationSignal(context.Context, domain.PopulationSignal) error {
	return errors.New("constraint violation")
}

func TestStoreLoader_SavesEveryKind(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	loader := pipeline.NewStoreLoader(store, observability.NewDiscardLogger())

	err := loader.LoadBatch(ctx, []domain.SignalEnvelope{
		{Kind: "unit", Unit: &domain.SpatialUnit{ID: "u1", Name: "One"}},
		{Kind: "human", Human: &domain.HumanSignal{UnitID: "u1", Date: "2024-03-27"}},
		{Kind: "population", Population: &domain.PopulationSignal{UnitID: "u1", Date: "2024-03-27"}},
		{Kind: "pigeon", Pigeon: &domain.PigeonSignal{UnitID: "u1", Date: "2024-03-28"}},
		{Kind: "geo", Geo: &domain.GeoSignal{UnitID: "u1"}},
		{Kind: "baseline", Baseline: &domain.BaselineMetric{Period: "2024-03", Category: "all", CitywideTotal: 900}},
	})
	require.NoError(t, err)

	_, err = store.FindSpatialUnit(ctx, "u1")
	require.NoError(t, err)
	r := domain.DateRange{From: "2024-03-01", To: "2024-03-31"}
	human, err := store.FindHumanSignals(ctx, "u1", r)
	require.NoError(t, err)
	assert.Len(t, human, 1)
	pigeon, err := store.FindPigeonSignals(ctx, "u1", r)
	require.NoError(t, err)
	assert.Len(t, pigeon, 1)
	_, err = store.FindLatestGeoSignal(ctx, "u1")
	require.NoError(t, err)
	b, err := store.FindBaselineMetric(ctx, "2024-03", "all")
	require.NoError(t, err)
	assert.Equal(t, 900.0, b.CitywideTotal)
}

func TestStoreLoader_StorageErrorAbortsBatch(t *testing.T) {
	store := memstore.New()
	loader := pipeline.NewStoreLoader(failingWriter{store}, observability.NewDiscardLogger())

	err := loader.LoadBatch(context.Background(), []domain.SignalEnvelope{
		{Kind: "human", Human: &domain.HumanSignal{UnitID: "u1", Date: "2024-03-27"}},
		{Kind: "population", Population: &domain.PopulationSignal{UnitID: "u1", Date: "2024-03-27"}},
		{Kind: "human", Human: &domain.HumanSignal{UnitID: "u1", Date: "2024-03-28"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "population")

	human, err := store.FindHumanSignals(context.Background(), "u1", domain.DateRange{From: "2024-03-01", To: "2024-03-31"})
	require.NoError(t, err)
	assert.Len(t, human, 1, "writes stop at the failure")
}

func TestStoreLoader_EmptyEnvelope(t *testing.T) {
	loader := pipeline.NewStoreLoader(memstore.New(), observability.NewDiscardLogger())

	err := loader.LoadBatch(context.Background(), []domain.SignalEnvelope{{Kind: "human"}})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}
