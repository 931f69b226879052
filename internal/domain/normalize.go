package domain

import "math"

// RuleKind selects how a raw field value is mapped into [0,1].
type RuleKind int

const (
	// RuleRatio clamps a value that is already a proportion.
	RuleRatio RuleKind = iota
	// RuleCeiling divides by a domain ceiling.
	RuleCeiling
	// RuleInverse maps 0 to 1 and the ceiling to 0, for fields where more is better.
	RuleInverse
	// RuleRange maps [Min, Max] linearly onto [0,1].
	RuleRange
)

// Rule is a fixed per-field normalization rule.
type Rule struct {
	Kind RuleKind
	Min  float64
	Max  float64
}

// Ratio returns a pass-through rule for proportions.
func Ratio() Rule { return Rule{Kind: RuleRatio, Max: 1} }

// Ceiling returns a rule dividing by c.
func Ceiling(c float64) Rule { return Rule{Kind: RuleCeiling, Max: c} }

// Inverse returns a rule mapping [0,c] onto [1,0].
func Inverse(c float64) Rule { return Rule{Kind: RuleInverse, Max: c} }

// Range returns a rule mapping [lo,hi] onto [0,1].
func Range(lo, hi float64) Rule { return Rule{Kind: RuleRange, Min: lo, Max: hi} }

// Normalize maps raw into [0,1] under r. Out-of-range input is clamped.
// A NaN raw value, or a degenerate rule, reports ok=false so the field is
// treated as unknown rather than as zero.
func Normalize(r Rule, raw float64) (v float64, ok bool) {
	if math.IsNaN(raw) {
		return 0, false
	}
	switch r.Kind {
	case RuleRatio:
		v = raw
	case RuleCeiling:
		if r.Max <= 0 {
			return 0, false
		}
		v = raw / r.Max
	case RuleInverse:
		if r.Max <= 0 {
			return 0, false
		}
		v = 1 - raw/r.Max
	case RuleRange:
		if r.Max <= r.Min {
			return 0, false
		}
		v = (raw - r.Min) / (r.Max - r.Min)
	default:
		return 0, false
	}
	return clamp01(v), true
}

// FieldSpec binds a derived field to its rule and its weight inside the source score.
type FieldSpec struct {
	Name   string
	Rule   Rule
	Weight float64
}

// Derived field names. They appear as keys of SourceComponent.Raw and .Normalized.
const (
	FieldComplaintRate       = "complaint_rate"
	FieldOdorShare           = "odor_share"
	FieldTrashShare          = "trash_share"
	FieldIllegalDumpShare    = "illegal_dump_share"
	FieldNightRatio          = "night_ratio"
	FieldRepeatRatio         = "repeat_ratio"
	FieldGrowthRate          = "growth_rate"
	FieldRelativeToBaseline  = "relative_to_baseline"
	FieldExcessGrowthRate    = "excess_growth_rate"
	FieldAlleyDensity        = "alley_density"
	FieldBackroadRatio       = "backroad_ratio"
	FieldVentilationProxy    = "ventilation_proxy"
	FieldAccessibilityProxy  = "accessibility_proxy"
	FieldLanduseMix          = "landuse_mix"
	FieldHabitualDumpingRisk = "habitual_dumping_risk"
	FieldAvgTotal            = "avg_total"
	FieldNightShare          = "night_share"
	FieldChangeRate          = "change_rate"
	FieldSightings           = "sightings"
	FieldDroppingReports     = "dropping_reports"
	FieldFeedingRatio        = "feeding_ratio"
)

var (
	humanFields = []FieldSpec{
		{FieldComplaintRate, Ceiling(10), 0.15},
		{FieldRelativeToBaseline, Ceiling(maxRelativeToBaseline), 0.15},
		{FieldExcessGrowthRate, Ceiling(0.3), 0.10},
		{FieldOdorShare, Ratio(), 0.12},
		{FieldTrashShare, Ratio(), 0.12},
		{FieldIllegalDumpShare, Ratio(), 0.12},
		{FieldNightRatio, Ratio(), 0.10},
		{FieldRepeatRatio, Ratio(), 0.07},
		{FieldGrowthRate, Ceiling(0.5), 0.07},
	}
	geoFields = []FieldSpec{
		{FieldAlleyDensity, Ceiling(100), 0.25},
		{FieldBackroadRatio, Ratio(), 0.20},
		{FieldVentilationProxy, Inverse(10), 0.20},
		{FieldAccessibilityProxy, Inverse(10), 0.15},
		{FieldLanduseMix, Ratio(), 0.10},
		{FieldHabitualDumpingRisk, Ratio(), 0.10},
	}
	populationFields = []FieldSpec{
		{FieldAvgTotal, Ceiling(10000), 0.30},
		{FieldNightShare, Ratio(), 0.40},
		{FieldChangeRate, Ceiling(0.3), 0.30},
	}
	pigeonFields = []FieldSpec{
		{FieldSightings, Ceiling(50), 0.40},
		{FieldDroppingReports, Ceiling(10), 0.40},
		{FieldFeedingRatio, Ratio(), 0.20},
	}
)

// FieldsFor returns the field specs of a source in evaluation order.
func FieldsFor(s Source) []FieldSpec {
	switch s {
	case SourceHuman:
		return humanFields
	case SourceGeo:
		return geoFields
	case SourcePopulation:
		return populationFields
	case SourcePigeon:
		return pigeonFields
	default:
		return nil
	}
}

// scoreFields normalizes the present raw fields and returns the weighted mean
// over them. ok is false when no field is present.
func scoreFields(specs []FieldSpec, raw map[string]float64) (score float64, normalized map[string]float64, ok bool) {
	normalized = make(map[string]float64, len(specs))
	var sum, wsum float64
	for _, f := range specs {
		r, present := raw[f.Name]
		if !present {
			continue
		}
		n, valid := Normalize(f.Rule, r)
		if !valid {
			continue
		}
		normalized[f.Name] = n
		sum += f.Weight * n
		wsum += f.Weight
	}
	if wsum == 0 {
		return 0, normalized, false
	}
	return sum / wsum, normalized, true
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
