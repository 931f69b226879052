package domain

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestComputeTrackingWindow(t *testing.T) {
	today := time.Date(2024, 6, 1, 15, 30, 0, 0, time.UTC)

	tests := []struct {
		name     string
		iv       Intervention
		baseline int
		followup int
		want     TrackingWindow
	}{
		{
			name:     "open ended is capped at followup weeks",
			iv:       Intervention{StartDate: "2024-03-01"},
			baseline: 4,
			followup: 4,
			want: TrackingWindow{
				Baseline: DateRange{From: "2024-02-02", To: "2024-02-29"},
				Followup: DateRange{From: "2024-03-01", To: "2024-03-29"},
			},
		},
		{
			name:     "open ended and recent ends today",
			iv:       Intervention{StartDate: "2024-05-25"},
			baseline: 1,
			followup: 4,
			want: TrackingWindow{
				Baseline: DateRange{From: "2024-05-18", To: "2024-05-24"},
				Followup: DateRange{From: "2024-05-25", To: "2024-06-01"},
			},
		},
		{
			name:     "end date inside cap",
			iv:       Intervention{StartDate: "2024-03-01", EndDate: strPtr("2024-03-10")},
			baseline: 2,
			followup: 4,
			want: TrackingWindow{
				Baseline: DateRange{From: "2024-02-16", To: "2024-02-29"},
				Followup: DateRange{From: "2024-03-01", To: "2024-03-10"},
			},
		},
		{
			name:     "end date beyond cap is clamped",
			iv:       Intervention{StartDate: "2024-03-01", EndDate: strPtr("2024-12-31")},
			baseline: 4,
			followup: 2,
			want: TrackingWindow{
				Baseline: DateRange{From: "2024-02-02", To: "2024-02-29"},
				Followup: DateRange{From: "2024-03-01", To: "2024-03-15"},
			},
		},
		{
			name:     "end on start day",
			iv:       Intervention{StartDate: "2024-03-01", EndDate: strPtr("2024-03-01")},
			baseline: 1,
			followup: 1,
			want: TrackingWindow{
				Baseline: DateRange{From: "2024-02-23", To: "2024-02-29"},
				Followup: DateRange{From: "2024-03-01", To: "2024-03-01"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputeTrackingWindow(tt.iv, today, tt.baseline, tt.followup)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("window mismatch (-want +got):\n%s", diff)
			}
			assert.Less(t, got.Baseline.To, got.Followup.From, "windows never overlap")
		})
	}
}

func TestComputeTrackingWindow_Invalid(t *testing.T) {
	today := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	iv := Intervention{StartDate: "2024-03-01"}

	for _, weeks := range [][2]int{{0, 4}, {13, 4}, {4, 0}, {4, 13}} {
		_, err := ComputeTrackingWindow(iv, today, weeks[0], weeks[1])
		assert.ErrorIs(t, err, ErrInvalidArgument, "weeks %v", weeks)
	}

	_, err := ComputeTrackingWindow(Intervention{StartDate: "March 1st"}, today, 4, 4)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestTrackingSeries(t *testing.T) {
	older := testRecord("u1", "2024-03-03", 40)
	older.CreatedAt = time.Date(2024, 3, 3, 1, 0, 0, 0, time.UTC)
	newer := testRecord("u1", "2024-03-03", 44)
	newer.CreatedAt = time.Date(2024, 3, 3, 2, 0, 0, 0, time.UTC)
	records := []ComfortIndexRecord{
		testRecord("u1", "2024-03-05", 50),
		newer,
		testRecord("u1", "2024-02-29", 70),
		older,
		testRecord("u1", "2024-03-01", 60),
	}

	points := TrackingSeries(records, DateRange{From: "2024-03-01", To: "2024-03-10"})
	require.Len(t, points, 3)
	assert.Equal(t, "2024-03-01", points[0].Date)
	assert.Equal(t, "2024-03-03", points[1].Date)
	assert.Equal(t, 44.0, points[1].UCIScore)
	assert.Equal(t, "2024-03-05", points[2].Date)

	empty := TrackingSeries(records, DateRange{From: "2025-01-01", To: "2025-01-31"})
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestSummarize(t *testing.T) {
	baseline := []TrackingDataPoint{{UCIScore: 60}, {UCIScore: 70}}
	followup := []TrackingDataPoint{{UCIScore: 40}}

	s := Summarize(baseline, followup)
	require.NotNil(t, s.Delta)
	assert.Equal(t, 65.0, *s.BaselineMean)
	assert.Equal(t, 40.0, *s.FollowupMean)
	assert.Equal(t, -25.0, *s.Delta)

	s = Summarize(baseline, nil)
	assert.Nil(t, s.FollowupMean)
	assert.Nil(t, s.Delta)
}
