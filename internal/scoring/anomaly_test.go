package scoring

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/urban-comfort-index/internal/adapter/memstore"
	"github.com/couchcryptid/urban-comfort-index/internal/domain"
)

// seedComplaints registers unitID with daily complaint totals from 2024-02-01
// to scoreDate: before through February, after from 2024-02-29.
func seedComplaints(t *testing.T, repo domain.Repository, unitID string, before, after float64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, repo.SaveSpatialUnit(ctx, domain.SpatialUnit{ID: unitID, Name: "Unit " + unitID}))
	end, err := domain.ParseDate(scoreDate)
	require.NoError(t, err)
	for i := 0; i <= 56; i++ {
		day := end.AddDate(0, 0, -i)
		total := after
		if i > 28 {
			total = before
		}
		require.NoError(t, repo.SaveHumanSignal(ctx, domain.HumanSignal{
			UnitID:         unitID,
			Date:           domain.FormatDate(day),
			ComplaintTotal: domain.Float(total),
		}))
	}
}

func TestDetectAnomaly_FlagsSpike(t *testing.T) {
	repo := memstore.New()
	seedComplaints(t, repo, "spike", 5, 15)
	svc, m := newTestService(repo, nil)
	ctx := context.Background()

	res, err := svc.DetectAnomaly(ctx, "spike", scoreDate, 4, domain.DefaultAnomalyLookbackWeeks)
	require.NoError(t, err)
	assert.Equal(t, domain.DateRange{From: "2024-02-29", To: scoreDate}, res.RecentPeriod)
	assert.Equal(t, domain.DateRange{From: "2024-02-01", To: "2024-02-28"}, res.BaselinePeriod)
	assert.InDelta(t, 2.0, res.Features.ComplaintChange, 1e-9)
	assert.InDelta(t, 0.78, res.AnomalyScore, 1e-9)
	assert.True(t, res.AnomalyFlag)
	assert.Contains(t, res.Explanation, "complaints up 200%")

	stored, err := repo.FindAnomaly(ctx, "spike", scoreDate)
	require.NoError(t, err)
	assert.Equal(t, res.AnomalyScore, stored.AnomalyScore)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AnomaliesDetected.WithLabelValues("true")))
}

func TestDetectAnomaly_Steady(t *testing.T) {
	repo := memstore.New()
	seedComplaints(t, repo, "calm", 5, 5)
	svc, m := newTestService(repo, nil)

	res, err := svc.DetectAnomaly(context.Background(), "calm", scoreDate, 4, 8)
	require.NoError(t, err)
	assert.False(t, res.AnomalyFlag)
	assert.Empty(t, res.Explanation)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AnomaliesDetected.WithLabelValues("false")))
}

func TestDetectAnomaly_Errors(t *testing.T) {
	repo := memstore.New()
	seedComplaints(t, repo, "calm", 5, 5)
	svc, _ := newTestService(repo, nil)
	ctx := context.Background()

	_, err := svc.DetectAnomaly(ctx, "ghost", scoreDate, 4, 8)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = svc.DetectAnomaly(ctx, "calm", "28-03-2024", 4, 8)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	_, err = svc.DetectAnomaly(ctx, "calm", scoreDate, 4, 4)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = repo.FindLatestAnomaly(ctx, "calm")
	assert.ErrorIs(t, err, domain.ErrNotFound, "failed runs store nothing")
}

func TestDetectAnomaly_StorageErrorPropagates(t *testing.T) {
	inner := memstore.New()
	seedComplaints(t, inner, "calm", 5, 5)
	svc, _ := newTestService(failingRepo{inner}, nil)

	_, err := svc.DetectAnomaly(context.Background(), "calm", scoreDate, 4, 8)
	assert.ErrorIs(t, err, errStorage)
}

func TestComputeAnomalies(t *testing.T) {
	repo := memstore.New()
	seedComplaints(t, repo, "spike", 5, 15)
	seedComplaints(t, repo, "calm", 5, 5)
	require.NoError(t, repo.SaveSpatialUnit(context.Background(), domain.SpatialUnit{ID: "quiet", Name: "Quiet"}))
	svc, _ := newTestService(repo, nil)
	ctx := context.Background()

	batch, err := svc.ComputeAnomalies(ctx, AnomalyRequest{Date: scoreDate})
	require.NoError(t, err)
	assert.Equal(t, scoreDate, batch.Date)
	assert.Equal(t, 3, batch.Computed)
	require.Len(t, batch.Flagged, 1)
	assert.Equal(t, "spike", batch.Flagged[0].UnitID)

	quiet, err := repo.FindAnomaly(ctx, "quiet", scoreDate)
	require.NoError(t, err)
	assert.False(t, quiet.AnomalyFlag, "no history is not an anomaly")

	one, err := svc.ComputeAnomalies(ctx, AnomalyRequest{Date: scoreDate, UnitID: "calm"})
	require.NoError(t, err)
	assert.Equal(t, 1, one.Computed)
	assert.NotNil(t, one.Flagged)
	assert.Empty(t, one.Flagged)

	_, err = svc.ComputeAnomalies(ctx, AnomalyRequest{Date: scoreDate, UnitID: "ghost"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = svc.ComputeAnomalies(ctx, AnomalyRequest{Date: scoreDate, WindowWeeks: 8})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument, "window must be shorter than the lookback")
}

func TestGetAndListAnomalies(t *testing.T) {
	repo := memstore.New()
	seedComplaints(t, repo, "spike", 5, 15)
	seedComplaints(t, repo, "calm", 5, 5)
	svc, _ := newTestService(repo, nil)
	ctx := context.Background()

	_, err := svc.ComputeAnomalies(ctx, AnomalyRequest{Date: scoreDate})
	require.NoError(t, err)
	_, err = svc.ComputeAnomalies(ctx, AnomalyRequest{Date: "2024-03-21"})
	require.NoError(t, err)

	latest, err := svc.GetAnomaly(ctx, "spike", "")
	require.NoError(t, err)
	assert.Equal(t, scoreDate, latest.Date)
	older, err := svc.GetAnomaly(ctx, "spike", "2024-03-21")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-21", older.Date)
	_, err = svc.GetAnomaly(ctx, "spike", "2024-01-01")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = svc.GetAnomaly(ctx, "spike", "bad")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	all, err := svc.ListAnomalies(ctx, "", "", nil)
	require.NoError(t, err)
	require.Len(t, all, 4)
	for i := 1; i < len(all); i++ {
		assert.GreaterOrEqual(t, all[i-1].AnomalyScore, all[i].AnomalyScore)
	}

	day, err := svc.ListAnomalies(ctx, scoreDate, "", nil)
	require.NoError(t, err)
	require.Len(t, day, 2)
	assert.Equal(t, "spike", day[0].UnitID)

	calm := false
	quiet, err := svc.ListAnomalies(ctx, "", "calm", &calm)
	require.NoError(t, err)
	assert.Len(t, quiet, 2)

	flagged := true
	none, err := svc.ListAnomalies(ctx, "", "calm", &flagged)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	_, err = svc.ListAnomalies(ctx, "03/28", "", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}
