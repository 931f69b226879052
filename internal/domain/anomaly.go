package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// DefaultAnomalyLookbackWeeks is the total history an anomaly check reads by
// default: the recent window plus the baseline before it.
const DefaultAnomalyLookbackWeeks = 8

// Anomaly thresholds.
const (
	anomalyScoreThreshold = 0.7
	anomalyZThreshold     = 2.5
)

// AnomalyFeatures compare a unit's recent window against its own baseline.
// Each is a relative change; 0 means no change.
type AnomalyFeatures struct {
	ComplaintChange      float64 `json:"complaint_change"`
	ComplaintGrowthRate  float64 `json:"complaint_growth_rate"`
	NightRatioChange     float64 `json:"night_ratio_change"`
	PopulationChangeRate float64 `json:"population_change_rate"`
}

// composite folds the features into one deterioration score.
func (f AnomalyFeatures) composite() float64 {
	return 0.4*f.ComplaintChange +
		0.3*f.ComplaintGrowthRate +
		0.2*math.Abs(f.NightRatioChange) +
		0.1*math.Abs(f.PopulationChangeRate)
}

// AnomalyStats are the rolling statistics the z-score was taken against.
type AnomalyStats struct {
	ZScore      float64 `json:"z_score"`
	RollingMean float64 `json:"rolling_mean"`
	RollingStd  float64 `json:"rolling_std"`
	Buckets     int     `json:"buckets"`
}

// AnomalyResult is the early-warning assessment of one unit on one date.
type AnomalyResult struct {
	UnitID         string          `json:"unit_id"`
	Date           string          `json:"date"`
	RecentPeriod   DateRange       `json:"recent_period"`
	BaselinePeriod DateRange       `json:"baseline_period"`
	AnomalyScore   float64         `json:"anomaly_score"`
	AnomalyFlag    bool            `json:"anomaly_flag"`
	Features       AnomalyFeatures `json:"features"`
	Stats          AnomalyStats    `json:"stats"`
	Explanation    string          `json:"explanation,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// AnomalySeries is the human and population history of one window.
type AnomalySeries struct {
	Range      DateRange
	Human      []HumanSignal
	Population []PopulationSignal
}

// AnomalyWindows splits lookbackWeeks of history ending on date into the
// recent window of windowWeeks and the baseline before it.
func AnomalyWindows(date time.Time, windowWeeks, lookbackWeeks int) (recent, baseline DateRange, err error) {
	if err := ValidateWeeks("window_weeks", windowWeeks); err != nil {
		return recent, baseline, err
	}
	if err := ValidateWeeks("baseline_weeks", lookbackWeeks); err != nil {
		return recent, baseline, err
	}
	if lookbackWeeks <= windowWeeks {
		return recent, baseline, fmt.Errorf("%w: baseline_weeks must exceed window_weeks", ErrInvalidArgument)
	}
	recent = LookbackRange(date, windowWeeks)
	baseline = DateRange{
		From: FormatDate(addDays(date, -7*lookbackWeeks)),
		To:   FormatDate(addDays(date, -7*windowWeeks-1)),
	}
	return recent, baseline, nil
}

// ComputeAnomaly scores how far the recent window departs from the baseline.
// The baseline is cut into 7-day buckets; each bucket is featurized against
// the whole baseline, and the recent composite is z-scored against the
// bucket composites. Fewer than two buckets leave the deviation at 1.
func ComputeAnomaly(unitID string, recent, baseline AnomalySeries) AnomalyResult {
	features := anomalyFeatures(recent, baseline)
	composite := features.composite()

	var bucketScores []float64
	for _, b := range weeklyBuckets(baseline) {
		if len(b.Human) == 0 {
			continue
		}
		bucketScores = append(bucketScores, anomalyFeatures(b, baseline).composite())
	}
	mean, std := meanStd(bucketScores)
	z := (composite - mean) / std
	score := clamp01(0.5 + z/5)

	res := AnomalyResult{
		UnitID:         unitID,
		Date:           recent.Range.To,
		RecentPeriod:   recent.Range,
		BaselinePeriod: baseline.Range,
		AnomalyScore:   score,
		AnomalyFlag:    score > anomalyScoreThreshold || math.Abs(z) > anomalyZThreshold,
		Features:       features,
		Stats: AnomalyStats{
			ZScore:      z,
			RollingMean: mean,
			RollingStd:  std,
			Buckets:     len(bucketScores),
		},
		CreatedAt: Now(),
	}
	if res.AnomalyFlag {
		res.Explanation = anomalyExplanation(features, z)
	}
	return res
}

func anomalyFeatures(cur, ref AnomalySeries) AnomalyFeatures {
	curTotal, curN := complaintTotals(cur.Human)
	refTotal, refN := complaintTotals(ref.Human)

	var f AnomalyFeatures
	f.ComplaintChange = relativeChange(curTotal/dayCount(cur.Range), refTotal/dayCount(ref.Range))
	f.ComplaintGrowthRate = relativeChange(perRecord(curTotal, curN), perRecord(refTotal, refN))

	var curNight, refNight runningMean
	for _, h := range cur.Human {
		curNight.add(h.NightRatio)
	}
	for _, h := range ref.Human {
		refNight.add(h.NightRatio)
	}
	if refNight.n > 0 && curNight.n > 0 {
		f.NightRatioChange = relativeChangeOrZero(curNight.sum/float64(curNight.n), refNight.sum/float64(refNight.n))
	}

	var curPop, refPop runningMean
	for _, p := range cur.Population {
		curPop.add(p.PopTotal)
	}
	for _, p := range ref.Population {
		refPop.add(p.PopTotal)
	}
	if refPop.n > 0 && curPop.n > 0 {
		f.PopulationChangeRate = relativeChangeOrZero(curPop.sum/float64(curPop.n), refPop.sum/float64(refPop.n))
	}
	return f
}

func complaintTotals(records []HumanSignal) (total float64, n int) {
	for _, r := range records {
		if r.ComplaintTotal != nil {
			total += *r.ComplaintTotal
			n++
		}
	}
	return total, n
}

func perRecord(total float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return total / float64(n)
}

// relativeChange treats growth from nothing as a full unit of change.
func relativeChange(cur, ref float64) float64 {
	if ref > 0 {
		return (cur - ref) / ref
	}
	if cur > 0 {
		return 1
	}
	return 0
}

func relativeChangeOrZero(cur, ref float64) float64 {
	if ref <= 0 {
		return 0
	}
	return (cur - ref) / ref
}

// dayCount is the number of calendar days in r, at least 1.
func dayCount(r DateRange) float64 {
	from, err1 := ParseDate(r.From)
	to, err2 := ParseDate(r.To)
	if err1 != nil || err2 != nil || to.Before(from) {
		return 1
	}
	return to.Sub(from).Hours()/24 + 1
}

// weeklyBuckets cuts s into consecutive 7-day series from its first day.
// A trailing partial week forms its own bucket.
func weeklyBuckets(s AnomalySeries) []AnomalySeries {
	from, err := ParseDate(s.Range.From)
	if err != nil || s.Range.Empty() {
		return nil
	}
	var out []AnomalySeries
	for start := from; FormatDate(start) <= s.Range.To; start = addDays(start, 7) {
		r := DateRange{From: FormatDate(start), To: FormatDate(addDays(start, 6))}
		if r.To > s.Range.To {
			r.To = s.Range.To
		}
		b := AnomalySeries{Range: r}
		for _, h := range s.Human {
			if r.Contains(h.Date) {
				b.Human = append(b.Human, h)
			}
		}
		for _, p := range s.Population {
			if r.Contains(p.Date) {
				b.Population = append(b.Population, p)
			}
		}
		out = append(out, b)
	}
	return out
}

// meanStd returns the mean and sample standard deviation of xs. The deviation
// is 1 when it cannot be estimated or is zero.
func meanStd(xs []float64) (mean, std float64) {
	if len(xs) == 0 {
		return 0, 1
	}
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	if len(xs) < 2 {
		return mean, 1
	}
	var ss float64
	for _, x := range xs {
		ss += (x - mean) * (x - mean)
	}
	std = math.Sqrt(ss / float64(len(xs)-1))
	if std == 0 {
		return mean, 1
	}
	return mean, std
}

func anomalyExplanation(f AnomalyFeatures, z float64) string {
	var parts []string
	if f.ComplaintChange > 0.3 {
		parts = append(parts, fmt.Sprintf("complaints up %s on the baseline rate", percent(f.ComplaintChange)))
	}
	if f.ComplaintGrowthRate > 0.2 {
		parts = append(parts, fmt.Sprintf("daily complaint average %s above baseline", percent(f.ComplaintGrowthRate)))
	}
	if math.Abs(f.NightRatioChange) > 0.15 {
		dir := "rising"
		if f.NightRatioChange < 0 {
			dir = "falling"
		}
		parts = append(parts, "night-time share "+dir)
	}
	if math.Abs(z) > anomalyZThreshold {
		parts = append(parts, fmt.Sprintf("statistical outlier (z=%.2f)", z))
	}
	if len(parts) == 0 {
		return "unusual pattern against the unit's own history"
	}
	return strings.Join(parts, ", ") + "; rapid deterioration"
}
