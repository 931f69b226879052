package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/urban-comfort-index/internal/adapter/memstore"
	"github.com/couchcryptid/urban-comfort-index/internal/domain"
	"github.com/couchcryptid/urban-comfort-index/internal/observability"
)

const (
	scoreDate = "2024-03-28"
	polygon   = `{"type":"Polygon","coordinates":[[[126.97,37.57],[126.98,37.57],[126.98,37.58],[126.97,37.57]]]}`
)

// recordingPublisher captures published records.
type recordingPublisher struct {
	mu      sync.Mutex
	batches [][]domain.ComfortIndexRecord
	err     error
}

func (p *recordingPublisher) PublishScores(_ context.Context, records []domain.ComfortIndexRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.batches = append(p.batches, records)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, b := range p.batches {
		n += len(b)
	}
	return n
}

// failingRepo fails every human-signal read.
type failingRepo struct {
	*memstore.Store
}

var errStorage = errors.New("storage unavailable")

func (f failingRepo) FindHumanSignals(context.Context, string, domain.DateRange) ([]domain.HumanSignal, error) {
	return nil, errStorage
}

// seedUnit stores a unit and days of signals ending on scoreDate with the
// given intensity in [0,1].
func seedUnit(t *testing.T, repo domain.Repository, id string, intensity float64, days int) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, repo.SaveSpatialUnit(ctx, domain.SpatialUnit{ID: id, Name: "Unit " + id, Geom: json.RawMessage(polygon)}))
	if days == 0 {
		return
	}
	end, err := domain.ParseDate(scoreDate)
	require.NoError(t, err)
	for i := days - 1; i >= 0; i-- {
		date := domain.FormatDate(end.AddDate(0, 0, -i))
		require.NoError(t, repo.SaveHumanSignal(ctx, domain.HumanSignal{
			UnitID:         id,
			Date:           date,
			ComplaintTotal: domain.Float(10 * intensity),
			ComplaintOdor:  domain.Float(4 * intensity),
			NightRatio:     domain.Float(intensity),
			RepeatRatio:    domain.Float(intensity / 2),
		}))
		require.NoError(t, repo.SavePopulationSignal(ctx, domain.PopulationSignal{
			UnitID:        id,
			Date:          date,
			PopTotal:      domain.Float(8000 * intensity),
			PopNight:      domain.Float(3000 * intensity),
			PopChangeRate: domain.Float(0.2 * intensity),
		}))
	}
	require.NoError(t, repo.SaveGeoSignal(ctx, domain.GeoSignal{
		UnitID:           id,
		AlleyDensity:     domain.Float(100 * intensity),
		BackroadRatio:    domain.Float(intensity),
		VentilationProxy: domain.Float(10 * (1 - intensity)),
		UpdatedAt:        time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}))
}

func newTestService(repo domain.Repository, pub Publisher) (*Service, *observability.Metrics) {
	m := observability.NewMetricsForTesting()
	return NewService(repo, pub, DefaultOptions(), observability.NewDiscardLogger(), m), m
}

// saveScore stores a bare score record for unitID on date.
func saveScore(t *testing.T, repo domain.Repository, unitID, date string, score float64) {
	t.Helper()
	require.NoError(t, repo.SaveScore(context.Background(), domain.ComfortIndexRecord{
		UnitID:   unitID,
		Date:     date,
		UCIScore: score,
		UCIGrade: domain.GradeFor(score),
		Explain: domain.Explain{
			WhySummary: "Top driver: human",
			KeyDrivers: []domain.KeyDriver{{Signal: "human", Value: score}},
		},
		WindowWeeks: 4,
		CreatedAt:   time.Date(2024, 3, 28, 0, 0, 0, 0, time.UTC),
	}))
}
