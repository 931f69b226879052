// Package storetest is a conformance suite shared by domain.Repository
// implementations.
package storetest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/urban-comfort-index/internal/domain"
)

// Run exercises every Repository method against stores produced by newStore.
// Each subtest receives a fresh, empty store.
func Run(t *testing.T, newStore func(t *testing.T) domain.Repository) {
	t.Helper()
	t.Run("units", func(t *testing.T) { testUnits(t, newStore(t)) })
	t.Run("signals", func(t *testing.T) { testSignals(t, newStore(t)) })
	t.Run("geo", func(t *testing.T) { testGeo(t, newStore(t)) })
	t.Run("scores", func(t *testing.T) { testScores(t, newStore(t)) })
	t.Run("interventions", func(t *testing.T) { testInterventions(t, newStore(t)) })
	t.Run("baselines", func(t *testing.T) { testBaselines(t, newStore(t)) })
	t.Run("anomalies", func(t *testing.T) { testAnomalies(t, newStore(t)) })
}

var ts = time.Date(2024, 3, 28, 9, 0, 0, 0, time.UTC)

func testUnits(t *testing.T, repo domain.Repository) {
	ctx := context.Background()

	_, err := repo.FindSpatialUnit(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	units, err := repo.ListSpatialUnits(ctx)
	require.NoError(t, err)
	assert.Empty(t, units)

	b := domain.SpatialUnit{ID: "b", Name: "Bravo", Geom: json.RawMessage(`{"type":"Point","coordinates":[127,37.5]}`), Meta: map[string]any{"district": "Jongno"}}
	a := domain.SpatialUnit{ID: "a", Name: "Alpha"}
	require.NoError(t, repo.SaveSpatialUnit(ctx, b))
	require.NoError(t, repo.SaveSpatialUnit(ctx, a))

	got, err := repo.FindSpatialUnit(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "Bravo", got.Name)
	assert.JSONEq(t, string(b.Geom), string(got.Geom))
	assert.Equal(t, "Jongno", got.Meta["district"])

	a.Name = "Alpha Renamed"
	require.NoError(t, repo.SaveSpatialUnit(ctx, a))

	units, err = repo.ListSpatialUnits(ctx)
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, "a", units[0].ID)
	assert.Equal(t, "Alpha Renamed", units[0].Name)
	assert.False(t, units[0].HasGeometry())
}

func testSignals(t *testing.T, repo domain.Repository) {
	ctx := context.Background()
	for _, d := range []string{"2024-03-03", "2024-03-01", "2024-03-02", "2024-02-28"} {
		require.NoError(t, repo.SaveHumanSignal(ctx, domain.HumanSignal{UnitID: "u1", Date: d, ComplaintTotal: domain.Float(3)}))
		require.NoError(t, repo.SavePopulationSignal(ctx, domain.PopulationSignal{UnitID: "u1", Date: d, PopTotal: domain.Float(100)}))
		require.NoError(t, repo.SavePigeonSignal(ctx, domain.PigeonSignal{UnitID: "u1", Date: d, Sightings: domain.Float(4)}))
	}
	require.NoError(t, repo.SaveHumanSignal(ctx, domain.HumanSignal{UnitID: "u2", Date: "2024-03-02", ComplaintTotal: domain.Float(9)}))
	// Same (unit, date) replaces the earlier record.
	require.NoError(t, repo.SaveHumanSignal(ctx, domain.HumanSignal{UnitID: "u1", Date: "2024-03-02", ComplaintTotal: domain.Float(7), NightRatio: domain.Float(0.5)}))

	r := domain.DateRange{From: "2024-03-01", To: "2024-03-03"}

	human, err := repo.FindHumanSignals(ctx, "u1", r)
	require.NoError(t, err)
	require.Len(t, human, 3)
	assert.Equal(t, []string{"2024-03-01", "2024-03-02", "2024-03-03"}, []string{human[0].Date, human[1].Date, human[2].Date})
	assert.Equal(t, 7.0, *human[1].ComplaintTotal)
	assert.Equal(t, 0.5, *human[1].NightRatio)
	assert.Nil(t, human[0].NightRatio)

	pop, err := repo.FindPopulationSignals(ctx, "u1", r)
	require.NoError(t, err)
	assert.Len(t, pop, 3)

	pigeon, err := repo.FindPigeonSignals(ctx, "u1", r)
	require.NoError(t, err)
	assert.Len(t, pigeon, 3)

	none, err := repo.FindHumanSignals(ctx, "u3", r)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testGeo(t *testing.T, repo domain.Repository) {
	ctx := context.Background()

	_, err := repo.FindLatestGeoSignal(ctx, "u1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, repo.SaveGeoSignal(ctx, domain.GeoSignal{UnitID: "u1", AlleyDensity: domain.Float(40), UpdatedAt: ts}))
	require.NoError(t, repo.SaveGeoSignal(ctx, domain.GeoSignal{UnitID: "u1", AlleyDensity: domain.Float(55), UpdatedAt: ts.Add(time.Hour)}))
	require.NoError(t, repo.SaveGeoSignal(ctx, domain.GeoSignal{UnitID: "u1", AlleyDensity: domain.Float(10), UpdatedAt: ts.Add(-time.Hour)}))

	g, err := repo.FindLatestGeoSignal(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 55.0, *g.AlleyDensity)
	assert.Nil(t, g.VentilationProxy)
}

func score(unitID, date string, v float64) domain.ComfortIndexRecord {
	return domain.ComfortIndexRecord{
		UnitID:   unitID,
		Date:     date,
		UCIScore: v,
		UCIGrade: domain.GradeFor(v),
		Components: domain.Components{
			Human:   &domain.SourceComponent{Score: v / 100, Raw: map[string]float64{"complaint_rate": 3}, Normalized: map[string]float64{"complaint_rate": 0.3}, Records: 7},
			Weights: map[domain.Source]float64{domain.SourceHuman: 0.5},
		},
		Explain:     domain.Explain{WhySummary: "Top driver: human", KeyDrivers: []domain.KeyDriver{{Signal: "human", Value: v}}},
		WindowWeeks: 4,
		CreatedAt:   ts,
	}
}

func testScores(t *testing.T, repo domain.Repository) {
	ctx := context.Background()

	_, err := repo.FindScore(ctx, "u1", "2024-03-01")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = repo.FindLatestScore(ctx, "u1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	for i, d := range []string{"2024-03-03", "2024-03-01", "2024-03-02"} {
		require.NoError(t, repo.SaveScore(ctx, score("u1", d, float64(40+i))))
	}
	require.NoError(t, repo.SaveScore(ctx, score("u2", "2024-03-02", 70)))

	want := score("u1", "2024-03-02", 61.5)
	want.CreatedAt = ts.Add(time.Minute)
	require.NoError(t, repo.SaveScore(ctx, want))

	got, err := repo.FindScore(ctx, "u1", "2024-03-02")
	require.NoError(t, err)
	if diff := cmp.Diff(want, got, cmpopts.EquateApproxTime(time.Millisecond)); diff != "" {
		t.Errorf("score round trip mismatch (-want +got):\n%s", diff)
	}

	latest, err := repo.FindLatestScore(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-03", latest.Date)

	day, err := repo.FindScoresForDate(ctx, "2024-03-02")
	require.NoError(t, err)
	require.Len(t, day, 2, "upsert keeps one record per unit and date")

	series, err := repo.FindScoresInRange(ctx, "u1", domain.DateRange{From: "2024-03-02", To: "2024-03-10"})
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, "2024-03-02", series[0].Date)
	assert.Equal(t, "2024-03-03", series[1].Date)
}

func testInterventions(t *testing.T, repo domain.Repository) {
	ctx := context.Background()

	_, err := repo.FindIntervention(ctx, "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	end := "2024-03-20"
	ivs := []domain.Intervention{
		{ID: "11111111-1111-1111-1111-111111111111", UnitID: "u1", InterventionType: "cleanup", StartDate: "2024-03-01", CreatedBy: "ops", CreatedAt: ts},
		{ID: "22222222-2222-2222-2222-222222222222", UnitID: "u1", InterventionType: "lighting", StartDate: "2024-03-10", EndDate: &end, Note: "LED", CreatedBy: "ops", Meta: map[string]any{"budget": float64(1200)}, CreatedAt: ts},
		{ID: "33333333-3333-3333-3333-333333333333", UnitID: "u2", InterventionType: "cctv", StartDate: "2024-03-05", CreatedBy: "ops", CreatedAt: ts},
	}
	for _, iv := range ivs {
		require.NoError(t, repo.SaveIntervention(ctx, iv))
	}

	got, err := repo.FindIntervention(ctx, ivs[1].ID)
	require.NoError(t, err)
	if diff := cmp.Diff(ivs[1], got, cmpopts.EquateApproxTime(time.Millisecond)); diff != "" {
		t.Errorf("intervention round trip mismatch (-want +got):\n%s", diff)
	}

	all, err := repo.ListInterventions(ctx, "", 100)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"2024-03-10", "2024-03-05", "2024-03-01"}, []string{all[0].StartDate, all[1].StartDate, all[2].StartDate})

	mine, err := repo.ListInterventions(ctx, "u1", 1)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, ivs[1].ID, mine[0].ID)

	none, err := repo.ListInterventions(ctx, "u9", 100)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func testBaselines(t *testing.T, repo domain.Repository) {
	ctx := context.Background()

	_, err := repo.FindBaselineMetric(ctx, "2024-03", domain.BaselineCategoryAll)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	want := domain.BaselineMetric{
		Period:             "2024-03",
		Category:           domain.BaselineCategoryAll,
		CitywideTotal:      3100,
		CitywideAvgPerUnit: domain.Float(2.5),
		UnitCount:          40,
		GrowthRate:         0.04,
		Source:             "seoul-open-data",
		Meta:               map[string]any{"districts": float64(25)},
	}
	require.NoError(t, repo.SaveBaselineMetric(ctx, domain.BaselineMetric{Period: "2024-03", Category: domain.BaselineCategoryAll, CitywideTotal: 1}))
	require.NoError(t, repo.SaveBaselineMetric(ctx, want))
	require.NoError(t, repo.SaveBaselineMetric(ctx, domain.BaselineMetric{Period: "2024-03", Category: "odor", CitywideTotal: 400}))

	got, err := repo.FindBaselineMetric(ctx, "2024-03", domain.BaselineCategoryAll)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("baseline round trip mismatch (-want +got):\n%s", diff)
	}

	_, err = repo.FindBaselineMetric(ctx, "2024-04", domain.BaselineCategoryAll)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func anomaly(unitID, date string, score float64) domain.AnomalyResult {
	return domain.AnomalyResult{
		UnitID:         unitID,
		Date:           date,
		RecentPeriod:   domain.DateRange{From: "2024-02-05", To: date},
		BaselinePeriod: domain.DateRange{From: "2024-01-08", To: "2024-02-04"},
		AnomalyScore:   score,
		AnomalyFlag:    score > 0.7,
		Features:       domain.AnomalyFeatures{ComplaintChange: 0.8, ComplaintGrowthRate: 0.5},
		Stats:          domain.AnomalyStats{ZScore: 3.1, RollingMean: 0.02, RollingStd: 0.2, Buckets: 4},
		CreatedAt:      ts,
	}
}

func testAnomalies(t *testing.T, repo domain.Repository) {
	ctx := context.Background()

	_, err := repo.FindAnomaly(ctx, "u1", "2024-03-01")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = repo.FindLatestAnomaly(ctx, "u1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, repo.SaveAnomaly(ctx, anomaly("u1", "2024-03-01", 0.4)))
	require.NoError(t, repo.SaveAnomaly(ctx, anomaly("u1", "2024-03-03", 0.5)))
	require.NoError(t, repo.SaveAnomaly(ctx, anomaly("u2", "2024-03-01", 0.9)))

	want := anomaly("u1", "2024-03-01", 0.95)
	want.Explanation = "complaints up 80% on the baseline rate; rapid deterioration"
	require.NoError(t, repo.SaveAnomaly(ctx, want))

	got, err := repo.FindAnomaly(ctx, "u1", "2024-03-01")
	require.NoError(t, err)
	if diff := cmp.Diff(want, got, cmpopts.EquateApproxTime(time.Millisecond)); diff != "" {
		t.Errorf("anomaly round trip mismatch (-want +got):\n%s", diff)
	}

	latest, err := repo.FindLatestAnomaly(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-03", latest.Date)

	all, err := repo.FindAnomalies(ctx, "", "")
	require.NoError(t, err)
	require.Len(t, all, 3, "upsert keeps one result per unit and date")
	assert.Equal(t, "2024-03-03", all[0].Date)
	assert.Equal(t, []string{"u1", "u2"}, []string{all[1].UnitID, all[2].UnitID})

	day, err := repo.FindAnomalies(ctx, "2024-03-01", "")
	require.NoError(t, err)
	assert.Len(t, day, 2)

	mine, err := repo.FindAnomalies(ctx, "", "u2")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, 0.9, mine[0].AnomalyScore)

	none, err := repo.FindAnomalies(ctx, "2024-03-09", "")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}
