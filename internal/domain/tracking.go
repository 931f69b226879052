package domain

import (
	"fmt"
	"sort"
	"time"
)

// TrackingWindow holds the resolved baseline and followup ranges of an
// intervention. Both ranges are inclusive. Baseline always ends the day before
// the intervention starts, so the two never overlap.
type TrackingWindow struct {
	Baseline DateRange `json:"baseline"`
	Followup DateRange `json:"followup"`
}

// ValidateWeeks checks a week-count parameter against the accepted range.
func ValidateWeeks(name string, weeks int) error {
	if weeks < MinWindowWeeks || weeks > MaxWindowWeeks {
		return fmt.Errorf("%w: %s must be between %d and %d", ErrInvalidArgument, name, MinWindowWeeks, MaxWindowWeeks)
	}
	return nil
}

// ComputeTrackingWindow derives the comparison windows for an intervention.
//
//	baseline = [start - 7*baselineWeeks, start - 1]
//	followup = [start, min(end or today, start + 7*followupWeeks)]
//
// When the intervention ended before it started the followup range is empty.
func ComputeTrackingWindow(iv Intervention, today time.Time, baselineWeeks, followupWeeks int) (TrackingWindow, error) {
	if err := ValidateWeeks("baseline_weeks", baselineWeeks); err != nil {
		return TrackingWindow{}, err
	}
	if err := ValidateWeeks("followup_weeks", followupWeeks); err != nil {
		return TrackingWindow{}, err
	}
	start, err := ParseDate(iv.StartDate)
	if err != nil {
		return TrackingWindow{}, err
	}
	end := today.UTC().Truncate(24 * time.Hour)
	if iv.EndDate != nil {
		if end, err = ParseDate(*iv.EndDate); err != nil {
			return TrackingWindow{}, err
		}
	}
	if limit := addDays(start, 7*followupWeeks); end.After(limit) {
		end = limit
	}
	return TrackingWindow{
		Baseline: DateRange{
			From: FormatDate(addDays(start, -7*baselineWeeks)),
			To:   FormatDate(addDays(start, -1)),
		},
		Followup: DateRange{
			From: FormatDate(start),
			To:   FormatDate(end),
		},
	}, nil
}

// TrackingSeries converts stored scores into ascending data points within r.
// Duplicate dates keep the most recently created record.
func TrackingSeries(records []ComfortIndexRecord, r DateRange) []TrackingDataPoint {
	byDate := make(map[string]ComfortIndexRecord)
	for _, rec := range records {
		if !r.Contains(rec.Date) {
			continue
		}
		if cur, ok := byDate[rec.Date]; !ok || rec.CreatedAt.After(cur.CreatedAt) {
			byDate[rec.Date] = rec
		}
	}
	points := make([]TrackingDataPoint, 0, len(byDate))
	for _, rec := range byDate {
		points = append(points, TrackingDataPoint{Date: rec.Date, UCIScore: rec.UCIScore, Components: rec.Components})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date < points[j].Date })
	return points
}

// Summarize returns the mean score of each window and their difference.
func Summarize(baseline, followup []TrackingDataPoint) TrackingSummary {
	var s TrackingSummary
	s.BaselineMean = meanScore(baseline)
	s.FollowupMean = meanScore(followup)
	if s.BaselineMean != nil && s.FollowupMean != nil {
		d := round2(*s.FollowupMean - *s.BaselineMean)
		s.Delta = &d
	}
	return s
}

func meanScore(points []TrackingDataPoint) *float64 {
	if len(points) == 0 {
		return nil
	}
	var sum float64
	for _, p := range points {
		sum += p.UCIScore
	}
	m := round2(sum / float64(len(points)))
	return &m
}
