// Package domain models the Urban Comfort Index: spatial units, the signals
// observed on them, and the composite scores derived from those signals.
//
// # Signals
//
// Four independent source families feed the index:
//
//	human       daily complaint counts and ratios (time series)
//	geo         structural proxies such as alley density (latest record only)
//	population  resident and floating population (time series)
//	pigeon      auxiliary pigeon activity (time series, opt-in)
//
// Every numeric signal field is optional. A missing field is unknown, not
// zero, and is left out of every mean it would otherwise take part in.
//
// # Scoring
//
// For a unit and a date, time series are read over a lookback window of
// whole weeks ending on that date. Each source is reduced to a set of derived
// fields (see [FieldsFor]), each field is normalized into [0,1] by a fixed
// [Rule], and the source score is the weighted mean of its present fields.
// The composite is
//
//	uci = 100 * sum(w_s * score_s) / sum(w_s)
//
// over sources that have data, so an absent source shifts weight to the
// others instead of pulling the score towards zero. Higher scores mean less
// comfort; [GradeFor] maps them onto A (best) through E.
//
// A unit without any signal in the window is unscored. [ComputeComfortIndex]
// reports that through its boolean result and never as a zero score.
//
// # Dates
//
// Dates are UTC calendar days formatted as YYYY-MM-DD, which sort
// lexicographically in chronological order. [DateRange] bounds are inclusive.
package domain
