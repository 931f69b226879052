package domain

// ScoreOptions parameterize a single composite score computation.
type ScoreOptions struct {
	WindowWeeks int
	UsePigeon   bool
	Weights     Weights
}

// MinWindowWeeks and MaxWindowWeeks bound every week-count parameter.
const (
	MinWindowWeeks = 1
	MaxWindowWeeks = 12
)

// runningMean accumulates values in insertion order so that repeated
// computations over the same records produce identical results.
type runningMean struct {
	sum float64
	n   int
}

func (m *runningMean) add(v *float64) {
	if v == nil {
		return
	}
	m.sum += *v
	m.n++
}

func (m runningMean) put(dst map[string]float64, key string) {
	if m.n > 0 {
		dst[key] = m.sum / float64(m.n)
	}
}

// share accumulates numerator/denominator pairs where both sides are present.
type share struct {
	num, den float64
	n        int
}

func (s *share) add(num, den *float64) {
	if num == nil || den == nil {
		return
	}
	s.num += *num
	s.den += *den
	s.n++
}

func (s share) put(dst map[string]float64, key string) {
	if s.n > 0 && s.den > 0 {
		dst[key] = s.num / s.den
	}
}

// AggregateHuman averages a chronological human series into derived raw fields.
func AggregateHuman(records []HumanSignal) map[string]float64 {
	raw := make(map[string]float64)
	var rate, night, repeat runningMean
	var odor, trash, dump share
	totals := make([]float64, 0, len(records))
	for _, r := range records {
		rate.add(r.ComplaintTotal)
		night.add(r.NightRatio)
		repeat.add(r.RepeatRatio)
		odor.add(r.ComplaintOdor, r.ComplaintTotal)
		trash.add(r.ComplaintTrash, r.ComplaintTotal)
		dump.add(r.ComplaintIllegalDump, r.ComplaintTotal)
		if r.ComplaintTotal != nil {
			totals = append(totals, *r.ComplaintTotal)
		}
	}
	rate.put(raw, FieldComplaintRate)
	odor.put(raw, FieldOdorShare)
	trash.put(raw, FieldTrashShare)
	dump.put(raw, FieldIllegalDumpShare)
	night.put(raw, FieldNightRatio)
	repeat.put(raw, FieldRepeatRatio)
	if g, ok := growthRate(totals); ok {
		raw[FieldGrowthRate] = g
	}
	return raw
}

// growthRate compares the second half of a series against the first half.
func growthRate(totals []float64) (float64, bool) {
	if len(totals) < 2 {
		return 0, false
	}
	mid := len(totals) / 2
	var first, second float64
	for _, v := range totals[:mid] {
		first += v
	}
	for _, v := range totals[mid:] {
		second += v
	}
	if first <= 0 {
		return 0, false
	}
	return (second - first) / first, true
}

// AggregateGeo lifts the present fields of the latest geo record.
func AggregateGeo(g *GeoSignal) map[string]float64 {
	raw := make(map[string]float64)
	if g == nil {
		return raw
	}
	for key, v := range map[string]*float64{
		FieldAlleyDensity:        g.AlleyDensity,
		FieldBackroadRatio:       g.BackroadRatio,
		FieldVentilationProxy:    g.VentilationProxy,
		FieldAccessibilityProxy:  g.AccessibilityProxy,
		FieldLanduseMix:          g.LanduseMix,
		FieldHabitualDumpingRisk: g.HabitualDumpingRisk,
	} {
		if v != nil {
			raw[key] = *v
		}
	}
	return raw
}

// AggregatePopulation averages a chronological population series.
func AggregatePopulation(records []PopulationSignal) map[string]float64 {
	raw := make(map[string]float64)
	var total, change runningMean
	var night share
	for _, r := range records {
		total.add(r.PopTotal)
		change.add(r.PopChangeRate)
		night.add(r.PopNight, r.PopTotal)
	}
	total.put(raw, FieldAvgTotal)
	night.put(raw, FieldNightShare)
	change.put(raw, FieldChangeRate)
	return raw
}

// AggregatePigeon averages a chronological pigeon series.
func AggregatePigeon(records []PigeonSignal) map[string]float64 {
	raw := make(map[string]float64)
	var sightings, droppings, feeding runningMean
	for _, r := range records {
		sightings.add(r.Sightings)
		droppings.add(r.DroppingReports)
		feeding.add(r.FeedingRatio)
	}
	sightings.put(raw, FieldSightings)
	droppings.put(raw, FieldDroppingReports)
	feeding.put(raw, FieldFeedingRatio)
	return raw
}

// aggregateSource returns the derived raw fields and the record count of s in w.
func aggregateSource(s Source, w SignalWindow) (map[string]float64, int) {
	switch s {
	case SourceHuman:
		raw := AggregateHuman(w.Human)
		CompareToBaseline(raw, w.Baseline)
		return raw, len(w.Human)
	case SourceGeo:
		if w.Geo == nil {
			return nil, 0
		}
		return AggregateGeo(w.Geo), 1
	case SourcePopulation:
		return AggregatePopulation(w.Population), len(w.Population)
	case SourcePigeon:
		return AggregatePigeon(w.Pigeon), len(w.Pigeon)
	default:
		return nil, 0
	}
}

// ComputeComfortIndex derives the composite score of one unit on one date
// from its signal window. It reports false when no source yields a score,
// which callers must treat as unscored rather than as zero.
//
// Sources without usable data are dropped from both the numerator and the
// denominator of the weighted mean. The pigeon source only participates when
// opts.UsePigeon is set.
func ComputeComfortIndex(unitID, date string, w SignalWindow, opts ScoreOptions) (ComfortIndexRecord, bool) {
	comps := Components{Weights: make(map[Source]float64)}
	var weighted, totalWeight float64
	for _, s := range Sources {
		if s == SourcePigeon && !opts.UsePigeon {
			continue
		}
		weight := opts.Weights.For(s)
		if weight <= 0 {
			continue
		}
		raw, n := aggregateSource(s, w)
		if n == 0 {
			continue
		}
		score, normalized, ok := scoreFields(FieldsFor(s), raw)
		if !ok {
			continue
		}
		comps.set(s, &SourceComponent{Score: score, Raw: raw, Normalized: normalized, Records: n})
		comps.Weights[s] = weight
		weighted += weight * score
		totalWeight += weight
	}
	if totalWeight == 0 {
		return ComfortIndexRecord{}, false
	}

	uci := round2(100 * clamp01(weighted/totalWeight))
	return ComfortIndexRecord{
		UnitID:      unitID,
		Date:        date,
		UCIScore:    uci,
		UCIGrade:    GradeFor(uci),
		Components:  comps,
		Explain:     Explanation(comps, opts.WindowWeeks),
		WindowWeeks: opts.WindowWeeks,
		UsePigeon:   opts.UsePigeon,
		CreatedAt:   Now(),
	}, true
}
