package scoring

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/urban-comfort-index/internal/adapter/memstore"
	"github.com/couchcryptid/urban-comfort-index/internal/domain"
)

func strPtr(s string) *string { return &s }

func freezeClock(t *testing.T, at time.Time) {
	t.Helper()
	domain.SetClock(clockwork.NewFakeClockAt(at))
	t.Cleanup(func() { domain.SetClock(nil) })
}

func validRequest() CreateInterventionRequest {
	return CreateInterventionRequest{
		UnitID:           "u1",
		InterventionType: "cleanup",
		StartDate:        "2024-03-10",
		Note:             "weekly alley cleanup",
		CreatedBy:        "district-office",
	}
}

func TestCreateIntervention(t *testing.T) {
	repo := memstore.New()
	seedUnit(t, repo, "u1", 0, 0)
	svc, _ := newTestService(repo, nil)

	iv, err := svc.CreateIntervention(context.Background(), validRequest())
	require.NoError(t, err)
	_, err = ParseInterventionID(iv.ID)
	require.NoError(t, err, "ids are UUIDs")
	assert.Equal(t, "u1", iv.UnitID)
	assert.Nil(t, iv.EndDate)
	assert.False(t, iv.CreatedAt.IsZero())

	got, err := repo.FindIntervention(context.Background(), iv.ID)
	require.NoError(t, err)
	assert.Equal(t, iv.InterventionType, got.InterventionType)
}

func TestCreateIntervention_Validation(t *testing.T) {
	repo := memstore.New()
	seedUnit(t, repo, "u1", 0, 0)
	svc, _ := newTestService(repo, nil)

	tests := []struct {
		name   string
		mutate func(*CreateInterventionRequest)
	}{
		{"missing unit", func(r *CreateInterventionRequest) { r.UnitID = "" }},
		{"missing type", func(r *CreateInterventionRequest) { r.InterventionType = " " }},
		{"missing start", func(r *CreateInterventionRequest) { r.StartDate = "" }},
		{"missing creator", func(r *CreateInterventionRequest) { r.CreatedBy = "" }},
		{"bad start", func(r *CreateInterventionRequest) { r.StartDate = "2024-13-01" }},
		{"bad end", func(r *CreateInterventionRequest) { r.EndDate = strPtr("soon") }},
		{"end before start", func(r *CreateInterventionRequest) { r.EndDate = strPtr("2024-03-09") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)
			_, err := svc.CreateIntervention(context.Background(), req)
			assert.ErrorIs(t, err, domain.ErrInvalidArgument)
		})
	}
}

func TestCreateIntervention_UnknownUnit(t *testing.T) {
	svc, _ := newTestService(memstore.New(), nil)

	_, err := svc.CreateIntervention(context.Background(), validRequest())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreateIntervention_SameDayEndAllowed(t *testing.T) {
	repo := memstore.New()
	seedUnit(t, repo, "u1", 0, 0)
	svc, _ := newTestService(repo, nil)

	req := validRequest()
	req.EndDate = strPtr(req.StartDate)
	_, err := svc.CreateIntervention(context.Background(), req)
	assert.NoError(t, err)
}

func TestListInterventions(t *testing.T) {
	repo := memstore.New()
	seedUnit(t, repo, "u1", 0, 0)
	seedUnit(t, repo, "u2", 0, 0)
	svc, _ := newTestService(repo, nil)
	ctx := context.Background()

	for _, tc := range []struct{ unit, start string }{
		{"u1", "2024-01-01"},
		{"u1", "2024-03-01"},
		{"u2", "2024-02-01"},
	} {
		req := validRequest()
		req.UnitID = tc.unit
		req.StartDate = tc.start
		_, err := svc.CreateIntervention(ctx, req)
		require.NoError(t, err)
	}

	all, err := svc.ListInterventions(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "2024-03-01", all[0].StartDate)
	assert.Equal(t, "2024-01-01", all[2].StartDate)

	u1, err := svc.ListInterventions(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, u1, 2)
}

func TestParseInterventionID(t *testing.T) {
	id, err := ParseInterventionID("6F9619FF-8B86-D011-B42D-00CF4FC964FF")
	require.NoError(t, err)
	assert.Equal(t, "6f9619ff-8b86-d011-b42d-00cf4fc964ff", id)

	_, err = ParseInterventionID("42")
	assert.ErrorIs(t, err, domain.ErrInvalidID)
}

func TestGetTracking(t *testing.T) {
	freezeClock(t, time.Date(2024, 4, 1, 9, 30, 0, 0, time.UTC))
	repo := memstore.New()
	seedUnit(t, repo, "u1", 0, 0)
	svc, _ := newTestService(repo, nil)
	ctx := context.Background()

	iv, err := svc.CreateIntervention(ctx, validRequest())
	require.NoError(t, err)

	saveScore(t, repo, "u1", "2024-02-24", 10) // before baseline
	saveScore(t, repo, "u1", "2024-03-01", 70)
	saveScore(t, repo, "u1", "2024-03-09", 60) // last baseline day
	saveScore(t, repo, "u1", "2024-03-10", 40) // start day is followup
	saveScore(t, repo, "u1", "2024-03-24", 30)
	saveScore(t, repo, "u1", "2024-03-25", 99) // after followup

	resp, err := svc.GetTracking(ctx, iv.ID, 2, 2)
	require.NoError(t, err)

	assert.Equal(t, domain.DateRange{From: "2024-02-25", To: "2024-03-09"}, resp.Window.Baseline)
	assert.Equal(t, domain.DateRange{From: "2024-03-10", To: "2024-03-24"}, resp.Window.Followup)

	require.Len(t, resp.BaselinePeriod, 2)
	assert.Equal(t, "2024-03-01", resp.BaselinePeriod[0].Date)
	require.Len(t, resp.FollowupPeriod, 2)
	assert.Equal(t, "2024-03-10", resp.FollowupPeriod[0].Date)

	require.NotNil(t, resp.Summary.Delta)
	assert.Equal(t, 65.0, *resp.Summary.BaselineMean)
	assert.Equal(t, 35.0, *resp.Summary.FollowupMean)
	assert.Equal(t, -30.0, *resp.Summary.Delta)
	assert.Equal(t, iv.ID, resp.Intervention.ID)
}

func TestGetTracking_FollowupClampedToToday(t *testing.T) {
	freezeClock(t, time.Date(2024, 3, 15, 23, 0, 0, 0, time.UTC))
	repo := memstore.New()
	seedUnit(t, repo, "u1", 0, 0)
	svc, _ := newTestService(repo, nil)
	ctx := context.Background()

	iv, err := svc.CreateIntervention(ctx, validRequest())
	require.NoError(t, err)

	resp, err := svc.GetTracking(ctx, iv.ID, 4, 4)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-15", resp.Window.Followup.To)
	assert.Empty(t, resp.BaselinePeriod)
	assert.NotNil(t, resp.BaselinePeriod, "empty series encode as []")
	assert.Nil(t, resp.Summary.Delta)
}

func TestGetTracking_Errors(t *testing.T) {
	svc, _ := newTestService(memstore.New(), nil)
	ctx := context.Background()

	_, err := svc.GetTracking(ctx, "not-a-uuid", 4, 4)
	assert.ErrorIs(t, err, domain.ErrInvalidID)

	_, err = svc.GetTracking(ctx, "6f9619ff-8b86-d011-b42d-00cf4fc964ff", 4, 4)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.GetTracking(ctx, "6f9619ff-8b86-d011-b42d-00cf4fc964ff", 0, 4)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}
