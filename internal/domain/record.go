package domain

import "time"

// SourceComponent is the per-source breakdown embedded in a score.
// Raw holds window-averaged field values; Normalized holds their [0,1] mapping.
type SourceComponent struct {
	Score      float64            `json:"score"`
	Raw        map[string]float64 `json:"raw"`
	Normalized map[string]float64 `json:"normalized"`
	Records    int                `json:"records"`
}

// Components records how a composite score was assembled. A nil source
// component means the source had no usable data.
type Components struct {
	Human      *SourceComponent   `json:"human,omitempty"`
	Geo        *SourceComponent   `json:"geo,omitempty"`
	Population *SourceComponent   `json:"population,omitempty"`
	Pigeon     *SourceComponent   `json:"pigeon,omitempty"`
	Weights    map[Source]float64 `json:"weights"`
}

// Get returns the component for s, or nil.
func (c Components) Get(s Source) *SourceComponent {
	switch s {
	case SourceHuman:
		return c.Human
	case SourceGeo:
		return c.Geo
	case SourcePopulation:
		return c.Population
	case SourcePigeon:
		return c.Pigeon
	default:
		return nil
	}
}

func (c *Components) set(s Source, sc *SourceComponent) {
	switch s {
	case SourceHuman:
		c.Human = sc
	case SourceGeo:
		c.Geo = sc
	case SourcePopulation:
		c.Population = sc
	case SourcePigeon:
		c.Pigeon = sc
	}
}

// KeyDriver is a signal and the number of score points it contributed.
type KeyDriver struct {
	Signal string  `json:"signal"`
	Value  float64 `json:"value"`
}

// Explain is the human- and machine-readable justification of a score.
type Explain struct {
	WhySummary string      `json:"why_summary"`
	KeyDrivers []KeyDriver `json:"key_drivers"`
}

// ComfortIndexRecord is the composite score of one unit on one date.
type ComfortIndexRecord struct {
	UnitID      string     `json:"unit_id"`
	Date        string     `json:"date"`
	UCIScore    float64    `json:"uci_score"`
	UCIGrade    Grade      `json:"uci_grade"`
	Components  Components `json:"components"`
	Explain     Explain    `json:"explain"`
	WindowWeeks int        `json:"window_weeks"`
	UsePigeon   bool       `json:"use_pigeon"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Intervention is an action applied to a unit over a date span.
type Intervention struct {
	ID               string         `json:"id"`
	UnitID           string         `json:"unit_id"`
	InterventionType string         `json:"intervention_type"`
	StartDate        string         `json:"start_date"`
	EndDate          *string        `json:"end_date"`
	Note             string         `json:"note,omitempty"`
	CreatedBy        string         `json:"created_by"`
	Meta             map[string]any `json:"meta,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}

// TrackingDataPoint is one stored score inside a tracking window.
type TrackingDataPoint struct {
	Date       string     `json:"date"`
	UCIScore   float64    `json:"uci_score"`
	Components Components `json:"components"`
}

// TrackingSummary compares mean scores before and after an intervention.
// Fields are nil when the corresponding window holds no scores.
type TrackingSummary struct {
	BaselineMean *float64 `json:"baseline_mean"`
	FollowupMean *float64 `json:"followup_mean"`
	Delta        *float64 `json:"delta"`
}

// TrackingResponse is the before/after view of an intervention.
type TrackingResponse struct {
	InterventionID string              `json:"intervention_id"`
	UnitID         string              `json:"unit_id"`
	Window         TrackingWindow      `json:"window"`
	BaselinePeriod []TrackingDataPoint `json:"baseline_period"`
	FollowupPeriod []TrackingDataPoint `json:"followup_period"`
	Summary        TrackingSummary     `json:"summary"`
	Intervention   Intervention        `json:"intervention"`
}

// ActionCard is a generated, explainable recommendation bundle for a unit.
type ActionCard struct {
	CardID             string   `json:"card_id"`
	UnitID             string   `json:"unit_id"`
	Date               string   `json:"date"`
	Title              string   `json:"title"`
	Why                string   `json:"why"`
	RecommendedActions []string `json:"recommended_actions"`
	Tags               []string `json:"tags"`
	Confidence         float64  `json:"confidence"`
	Limitations        []string `json:"limitations"`
}

// PriorityItem is one ranked entry of the priority queue.
type PriorityItem struct {
	Rank       int         `json:"rank"`
	UnitID     string      `json:"unit_id"`
	Name       string      `json:"name"`
	UCIScore   float64     `json:"uci_score"`
	UCIGrade   Grade       `json:"uci_grade"`
	WhySummary string      `json:"why_summary"`
	KeyDrivers []KeyDriver `json:"key_drivers"`
}
