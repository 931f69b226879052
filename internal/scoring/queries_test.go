package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/urban-comfort-index/internal/adapter/memstore"
	"github.com/couchcryptid/urban-comfort-index/internal/domain"
)

func seedScored(t *testing.T) *memstore.Store {
	t.Helper()
	repo := memstore.New()
	ctx := context.Background()
	for _, u := range []domain.SpatialUnit{
		{ID: "a", Name: "Alpha", Geom: json.RawMessage(polygon)},
		{ID: "b", Name: "Bravo", Geom: json.RawMessage(polygon)},
		{ID: "c", Name: "Charlie"},
		{ID: "d", Name: "Delta", Geom: json.RawMessage(polygon)},
	} {
		require.NoError(t, repo.SaveSpatialUnit(ctx, u))
	}
	saveScore(t, repo, "a", scoreDate, 42)
	saveScore(t, repo, "b", scoreDate, 87.5)
	saveScore(t, repo, "c", scoreDate, 87.5)
	saveScore(t, repo, "d", scoreDate, 12)
	saveScore(t, repo, "a", "2024-03-27", 99)
	return repo
}

func TestGetPriorityQueue(t *testing.T) {
	svc, _ := newTestService(seedScored(t), nil)

	items, err := svc.GetPriorityQueue(context.Background(), scoreDate, 3)
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, []string{"b", "c", "a"}, []string{items[0].UnitID, items[1].UnitID, items[2].UnitID})
	for i, it := range items {
		assert.Equal(t, i+1, it.Rank)
	}
	assert.Equal(t, "Bravo", items[0].Name)
	assert.Equal(t, domain.GradeE, items[0].UCIGrade)
	assert.NotEmpty(t, items[0].KeyDrivers)
}

func TestGetPriorityQueue_FewerThanTopN(t *testing.T) {
	svc, _ := newTestService(seedScored(t), nil)

	items, err := svc.GetPriorityQueue(context.Background(), scoreDate, 100)
	require.NoError(t, err)
	assert.Len(t, items, 4)
	assert.Equal(t, 4, items[3].Rank)
}

func TestGetPriorityQueue_NoScores(t *testing.T) {
	svc, _ := newTestService(seedScored(t), nil)

	items, err := svc.GetPriorityQueue(context.Background(), "2020-01-01", 10)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestGetPriorityQueue_InvalidArguments(t *testing.T) {
	svc, _ := newTestService(seedScored(t), nil)
	ctx := context.Background()

	for _, n := range []int{0, -1, 101} {
		_, err := svc.GetPriorityQueue(ctx, scoreDate, n)
		assert.ErrorIs(t, err, domain.ErrInvalidArgument, "top_n=%d", n)
	}
	_, err := svc.GetPriorityQueue(ctx, "yesterday", 10)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestGetPriorityQueue_UnknownUnitShownByID(t *testing.T) {
	repo := memstore.New()
	saveScore(t, repo, "orphan", scoreDate, 50)
	svc, _ := newTestService(repo, nil)

	items, err := svc.GetPriorityQueue(context.Background(), scoreDate, 5)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "orphan", items[0].Name)
}

func TestExportGeoJSON(t *testing.T) {
	svc, _ := newTestService(seedScored(t), nil)

	fc, err := svc.ExportGeoJSON(context.Background(), scoreDate)
	require.NoError(t, err)
	assert.Equal(t, "FeatureCollection", fc.Type)
	require.Len(t, fc.Features, 3, "unit without geometry is omitted")

	byUnit := map[string]domain.FeatureProperties{}
	for _, f := range fc.Features {
		assert.Equal(t, "Feature", f.Type)
		assert.JSONEq(t, polygon, string(f.Geometry))
		byUnit[f.Properties.UnitID] = f.Properties
	}
	assert.Equal(t, 42.0, byUnit["a"].UCIScore, "only the requested date is exported")
	assert.Equal(t, domain.GradeC, byUnit["a"].UCIGrade)
	assert.Equal(t, "Delta", byUnit["d"].Name)
	assert.Zero(t, byUnit["a"].Rank)
}

func TestExportGeoJSON_CappedWorstFirst(t *testing.T) {
	repo := memstore.New()
	ctx := context.Background()
	for i := range domain.MaxResults + 20 {
		id := fmt.Sprintf("u%03d", i)
		require.NoError(t, repo.SaveSpatialUnit(ctx, domain.SpatialUnit{ID: id, Name: id, Geom: json.RawMessage(polygon)}))
		saveScore(t, repo, id, scoreDate, float64(i%100)+0.5)
	}
	svc, _ := newTestService(repo, nil)

	fc, err := svc.ExportGeoJSON(ctx, scoreDate)
	require.NoError(t, err)
	require.Len(t, fc.Features, domain.MaxResults)
	assert.Equal(t, 99.5, fc.Features[0].Properties.UCIScore)
	for _, f := range fc.Features {
		assert.GreaterOrEqual(t, f.Properties.UCIScore, 10.5, "the lowest scores are dropped first")
	}
}

func TestExportGeoJSON_EmptyDateEncodesEmptyArray(t *testing.T) {
	svc, _ := newTestService(seedScored(t), nil)

	fc, err := svc.ExportGeoJSON(context.Background(), "2020-01-01")
	require.NoError(t, err)
	b, err := json.Marshal(fc)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"FeatureCollection","features":[]}`, string(b))
}

func TestExportPriorityGeoJSON(t *testing.T) {
	svc, _ := newTestService(seedScored(t), nil)

	fc, err := svc.ExportPriorityGeoJSON(context.Background(), scoreDate, 3)
	require.NoError(t, err)
	require.Len(t, fc.Features, 2, "c has no geometry")
	assert.Equal(t, "b", fc.Features[0].Properties.UnitID)
	assert.Equal(t, 1, fc.Features[0].Properties.Rank)
	assert.Equal(t, "a", fc.Features[1].Properties.UnitID)
	assert.Equal(t, 3, fc.Features[1].Properties.Rank, "ranks keep their queue position")
	assert.NotEmpty(t, fc.Features[1].Properties.WhySummary)
}

func TestGetScore(t *testing.T) {
	svc, _ := newTestService(seedScored(t), nil)
	ctx := context.Background()

	rec, err := svc.GetScore(ctx, "a", "2024-03-27")
	require.NoError(t, err)
	assert.Equal(t, 99.0, rec.UCIScore)

	rec, err = svc.GetScore(ctx, "a", "")
	require.NoError(t, err)
	assert.Equal(t, scoreDate, rec.Date, "empty date returns the latest score")

	_, err = svc.GetScore(ctx, "a", "2020-01-01")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.GetScore(ctx, "a", "bad")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestListScores(t *testing.T) {
	svc, _ := newTestService(seedScored(t), nil)
	ctx := context.Background()

	all, err := svc.ListScores(ctx, scoreDate, "", 100)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "b", all[0].UnitID)
	assert.Equal(t, "d", all[3].UnitID)

	graded, err := svc.ListScores(ctx, scoreDate, domain.GradeE, 100)
	require.NoError(t, err)
	assert.Len(t, graded, 2)

	top, err := svc.ListScores(ctx, scoreDate, "", 1)
	require.NoError(t, err)
	assert.Len(t, top, 1)

	_, err = svc.ListScores(ctx, scoreDate, "Z", 10)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestListSpatialUnits(t *testing.T) {
	svc, _ := newTestService(seedScored(t), nil)
	ctx := context.Background()

	units, err := svc.ListSpatialUnits(ctx, "", DefaultUnitLimit)
	require.NoError(t, err)
	assert.Len(t, units, 4)

	_, err = svc.GetSpatialUnit(ctx, "zzz")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListSpatialUnits_FilterAndLimit(t *testing.T) {
	svc, _ := newTestService(seedScored(t), nil)
	ctx := context.Background()

	matched, err := svc.ListSpatialUnits(ctx, "^(alpha|DELTA)$", DefaultUnitLimit)
	require.NoError(t, err)
	require.Len(t, matched, 2, "q matches names case-insensitively")
	assert.Equal(t, "a", matched[0].ID)
	assert.Equal(t, "d", matched[1].ID)

	first, err := svc.ListSpatialUnits(ctx, "", 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "b", first[1].ID)

	_, err = svc.ListSpatialUnits(ctx, "(", DefaultUnitLimit)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	_, err = svc.ListSpatialUnits(ctx, "", domain.MaxResults+1)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	_, err = svc.ListSpatialUnits(ctx, "", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}
