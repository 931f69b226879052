package domain

import (
	"encoding/json"
	"time"
)

// Source identifies one independent signal family feeding the index.
type Source string

const (
	SourceHuman      Source = "human"
	SourceGeo        Source = "geo"
	SourcePopulation Source = "population"
	SourcePigeon     Source = "pigeon"
)

// Sources lists every signal family in the fixed order used for aggregation.
// Iterating in this order keeps floating-point sums reproducible.
var Sources = []Source{SourceHuman, SourceGeo, SourcePopulation, SourcePigeon}

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	switch s {
	case SourceHuman, SourceGeo, SourcePopulation, SourcePigeon:
		return true
	default:
		return false
	}
}

// SpatialUnit is an administrative or geographic area. Geometry is opaque
// GeoJSON and is passed through verbatim.
type SpatialUnit struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Geom json.RawMessage `json:"geom,omitempty"`
	Meta map[string]any  `json:"meta,omitempty"`
}

// HasGeometry reports whether the unit carries a non-null geometry document.
func (u SpatialUnit) HasGeometry() bool {
	return len(u.Geom) > 0 && string(u.Geom) != "null"
}

// HumanSignal is one day of complaint reports for a unit.
// Nil fields were not reported for that day.
type HumanSignal struct {
	UnitID               string         `json:"unit_id"`
	Date                 string         `json:"date"`
	ComplaintTotal       *float64       `json:"complaint_total,omitempty"`
	ComplaintOdor        *float64       `json:"complaint_odor,omitempty"`
	ComplaintTrash       *float64       `json:"complaint_trash,omitempty"`
	ComplaintIllegalDump *float64       `json:"complaint_illegal_dump,omitempty"`
	NightRatio           *float64       `json:"night_ratio,omitempty"`
	RepeatRatio          *float64       `json:"repeat_ratio,omitempty"`
	Source               string         `json:"source"`
	Raw                  map[string]any `json:"raw,omitempty"`
}

// GeoSignal is the latest-known spatial structure of a unit. It has no date axis.
type GeoSignal struct {
	UnitID              string         `json:"unit_id"`
	AlleyDensity        *float64       `json:"alley_density,omitempty"`
	BackroadRatio       *float64       `json:"backroad_ratio,omitempty"`
	VentilationProxy    *float64       `json:"ventilation_proxy,omitempty"`
	AccessibilityProxy  *float64       `json:"accessibility_proxy,omitempty"`
	LanduseMix          *float64       `json:"landuse_mix,omitempty"`
	HabitualDumpingRisk *float64       `json:"habitual_dumping_risk,omitempty"`
	Source              string         `json:"source"`
	Raw                 map[string]any `json:"raw,omitempty"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

// PopulationSignal is one day of resident/floating population for a unit.
type PopulationSignal struct {
	UnitID        string         `json:"unit_id"`
	Date          string         `json:"date"`
	PopTotal      *float64       `json:"pop_total,omitempty"`
	PopNight      *float64       `json:"pop_night,omitempty"`
	PopChangeRate *float64       `json:"pop_change_rate,omitempty"`
	Source        string         `json:"source"`
	Raw           map[string]any `json:"raw,omitempty"`
}

// PigeonSignal is one day of the auxiliary pigeon-activity signal.
type PigeonSignal struct {
	UnitID          string         `json:"unit_id"`
	Date            string         `json:"date"`
	Sightings       *float64       `json:"sightings,omitempty"`
	DroppingReports *float64       `json:"dropping_reports,omitempty"`
	FeedingRatio    *float64       `json:"feeding_ratio,omitempty"`
	Source          string         `json:"source"`
	Raw             map[string]any `json:"raw,omitempty"`
}

// SignalWindow holds every signal collected for one unit over a lookback window.
// Time series are kept in ascending date order.
type SignalWindow struct {
	Human      []HumanSignal
	Population []PopulationSignal
	Pigeon     []PigeonSignal
	Geo        *GeoSignal
	// Baseline is the citywide metric for the month of the window's last day.
	Baseline *BaselineMetric
}

// Empty reports whether the window carries no records from any source that
// would be considered. Pigeon records only count when usePigeon is set.
func (w SignalWindow) Empty(usePigeon bool) bool {
	if len(w.Human) > 0 || len(w.Population) > 0 || w.Geo != nil {
		return false
	}
	return !usePigeon || len(w.Pigeon) == 0
}

// Float returns a pointer to v. It keeps signal fixtures readable.
func Float(v float64) *float64 {
	return &v
}
