package domain

import "encoding/json"

// FeatureCollection is a GeoJSON feature collection of scored units.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// Feature is a single unit with its geometry passed through verbatim.
type Feature struct {
	Type       string            `json:"type"`
	Geometry   json.RawMessage   `json:"geometry"`
	Properties FeatureProperties `json:"properties"`
}

// FeatureProperties carries the score of a unit. Priority fields are only
// populated by the priority export.
type FeatureProperties struct {
	UnitID     string      `json:"unit_id"`
	Name       string      `json:"name"`
	UCIScore   float64     `json:"uci_score"`
	UCIGrade   Grade       `json:"uci_grade"`
	Rank       int         `json:"rank,omitempty"`
	WhySummary string      `json:"why_summary,omitempty"`
	KeyDrivers []KeyDriver `json:"key_drivers,omitempty"`
}

// NewFeatureCollection returns an empty collection whose features encode as [].
func NewFeatureCollection() FeatureCollection {
	return FeatureCollection{Type: "FeatureCollection", Features: []Feature{}}
}

// BuildScoreFeatures joins units with their score on one date. Units without
// geometry or without a score are omitted. Features follow unit order.
func BuildScoreFeatures(units []SpatialUnit, records []ComfortIndexRecord) FeatureCollection {
	byUnit := make(map[string]ComfortIndexRecord, len(records))
	for _, r := range LatestPerUnit(records) {
		byUnit[r.UnitID] = r
	}
	fc := NewFeatureCollection()
	for _, u := range units {
		r, ok := byUnit[u.ID]
		if !ok || !u.HasGeometry() {
			continue
		}
		fc.Features = append(fc.Features, Feature{
			Type:     "Feature",
			Geometry: u.Geom,
			Properties: FeatureProperties{
				UnitID:   u.ID,
				Name:     u.Name,
				UCIScore: r.UCIScore,
				UCIGrade: r.UCIGrade,
			},
		})
	}
	return fc
}

// BuildPriorityFeatures renders a priority queue as features in rank order.
// Items whose unit has no geometry are omitted; ranks are left untouched.
func BuildPriorityFeatures(items []PriorityItem, units map[string]SpatialUnit) FeatureCollection {
	fc := NewFeatureCollection()
	for _, it := range items {
		u, ok := units[it.UnitID]
		if !ok || !u.HasGeometry() {
			continue
		}
		fc.Features = append(fc.Features, Feature{
			Type:     "Feature",
			Geometry: u.Geom,
			Properties: FeatureProperties{
				UnitID:     it.UnitID,
				Name:       it.Name,
				UCIScore:   it.UCIScore,
				UCIGrade:   it.UCIGrade,
				Rank:       it.Rank,
				WhySummary: it.WhySummary,
				KeyDrivers: it.KeyDrivers,
			},
		})
	}
	return fc
}
