package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/urban-comfort-index/internal/adapter/sqlitestore"
	"github.com/couchcryptid/urban-comfort-index/internal/domain"
	"github.com/couchcryptid/urban-comfort-index/internal/observability"
	"github.com/couchcryptid/urban-comfort-index/internal/pipeline"
)

var testEnd = time.Date(2024, 3, 28, 0, 0, 0, 0, time.UTC)

func TestGenerate_Deterministic(t *testing.T) {
	cfg := genConfig{units: 4, days: 7, end: testEnd, seed: 7}

	a, err := encode(generate(cfg))
	require.NoError(t, err)
	b, err := encode(generate(cfg))
	require.NoError(t, err)
	assert.Equal(t, a, b)

	cfg.seed = 8
	c, err := encode(generate(cfg))
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestGenerate_ParsesThroughTransformer(t *testing.T) {
	msgs := generate(genConfig{units: 3, days: 5, end: testEnd, seed: 1})
	require.Len(t, msgs, 3*(2+3*5)+1, "one baseline for March")

	lines, err := encode(msgs)
	require.NoError(t, err)

	tfm := pipeline.NewTransformer(observability.NewDiscardLogger())
	kinds := map[string]int{}
	dates := map[string]bool{}
	for _, line := range lines {
		env, err := tfm.Transform(context.Background(), domain.RawMessage{Value: line, Timestamp: testEnd})
		require.NoError(t, err, string(line))
		kinds[env.Kind]++
		if d := env.Date(); d != "" {
			dates[d] = true
		}
		if env.Unit != nil {
			assert.True(t, env.Unit.HasGeometry())
		}
	}
	assert.Equal(t, map[string]int{"unit": 3, "geo": 3, "human": 15, "population": 15, "pigeon": 15, "baseline": 1}, kinds)
	assert.Len(t, dates, 5)
	assert.True(t, dates["2024-03-24"])
	assert.True(t, dates["2024-03-28"])
}

func TestLoad_IntoSQLite(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "gen.db")
	lines, err := encode(generate(genConfig{units: 2, days: 3, end: testEnd, seed: 3}))
	require.NoError(t, err)
	require.NoError(t, load(context.Background(), dsn, lines, testEnd))

	store, err := sqlitestore.Open(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	units, err := store.ListSpatialUnits(context.Background())
	require.NoError(t, err)
	assert.Len(t, units, 2)

	human, err := store.FindHumanSignals(context.Background(), "U001", domain.DateRange{From: "2024-03-01", To: "2024-03-31"})
	require.NoError(t, err)
	assert.Len(t, human, 3)

	b, err := store.FindBaselineMetric(context.Background(), "2024-03", domain.BaselineCategoryAll)
	require.NoError(t, err)
	assert.Equal(t, 2, b.UnitCount)
	assert.NotNil(t, b.CitywideAvgPerUnit)
}

func TestGenerate_BaselinesSpanMonths(t *testing.T) {
	msgs := generate(genConfig{units: 2, days: 10, end: time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC), seed: 5})

	var periods []string
	for _, m := range msgs {
		if b, ok := m.Payload.(domain.BaselineMetric); ok {
			periods = append(periods, b.Period)
			assert.Equal(t, 2, b.UnitCount)
		}
	}
	assert.Equal(t, []string{"2024-02", "2024-03"}, periods)
}
