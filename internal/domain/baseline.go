package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// BaselineCategoryAll is the citywide category that feeds human scores.
const BaselineCategoryAll = "all"

// PeriodLayout is the month-granular format of BaselineMetric.Period.
const PeriodLayout = "2006-01"

// maxRelativeToBaseline caps how many times the citywide rate a unit can count for.
const maxRelativeToBaseline = 3.0

// BaselineMetric is the citywide complaint level for one month and category.
// CitywideTotal counts complaints across the whole city for the month.
// CitywideAvgPerUnit, when set, is the daily complaint rate of an average unit
// and takes precedence over the value derived from the total.
type BaselineMetric struct {
	Period             string         `json:"period"`
	Category           string         `json:"category"`
	CitywideTotal      float64        `json:"citywide_total"`
	CitywideAvgPerUnit *float64       `json:"citywide_avg_per_unit,omitempty"`
	UnitCount          int            `json:"unit_count,omitempty"`
	GrowthRate         float64        `json:"growth_rate"`
	Source             string         `json:"source"`
	Meta               map[string]any `json:"meta,omitempty"`
}

// PeriodOf returns the YYYY-MM period containing date.
func PeriodOf(date string) (string, error) {
	t, err := ParseDate(date)
	if err != nil {
		return "", err
	}
	return t.Format(PeriodLayout), nil
}

// Validate checks the identifying fields of the metric.
func (b BaselineMetric) Validate() error {
	if _, err := time.Parse(PeriodLayout, b.Period); err != nil {
		return fmt.Errorf("%w: period %q must be YYYY-MM", ErrInvalidArgument, b.Period)
	}
	if strings.TrimSpace(b.Category) == "" {
		return fmt.Errorf("%w: baseline payload has no category", ErrInvalidArgument)
	}
	if b.CitywideTotal < 0 || b.UnitCount < 0 {
		return fmt.Errorf("%w: baseline totals must be non-negative", ErrInvalidArgument)
	}
	return nil
}

// DailyAvgPerUnit returns the daily complaint rate of an average unit.
// ok is false when neither the explicit average nor a unit count is known.
func (b BaselineMetric) DailyAvgPerUnit() (avg float64, ok bool) {
	if b.CitywideAvgPerUnit != nil {
		return *b.CitywideAvgPerUnit, *b.CitywideAvgPerUnit > 0
	}
	start, err := time.Parse(PeriodLayout, b.Period)
	if err != nil || b.UnitCount <= 0 {
		return 0, false
	}
	days := start.AddDate(0, 1, 0).Sub(start).Hours() / 24
	avg = b.CitywideTotal / float64(b.UnitCount) / days
	return avg, avg > 0
}

// CompareToBaseline adds the citywide-relative fields to the derived human
// fields in raw. It is a no-op without a baseline or a complaint rate.
func CompareToBaseline(raw map[string]float64, b *BaselineMetric) {
	if b == nil {
		return
	}
	rate, ok := raw[FieldComplaintRate]
	if !ok {
		return
	}
	if avg, ok := b.DailyAvgPerUnit(); ok {
		raw[FieldRelativeToBaseline] = math.Min(maxRelativeToBaseline, rate/avg)
	}
	if g, ok := raw[FieldGrowthRate]; ok {
		raw[FieldExcessGrowthRate] = math.Max(0, g-b.GrowthRate)
	}
}
