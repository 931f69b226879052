package domain

import (
	"fmt"
	"strings"
)

const (
	maxCardActions        = 5
	placeholderConfidence = 0.3
	sparseHumanDays       = 7
	sparsityPenalty       = 0.8
)

// cardInputs are the window aggregates action rules are evaluated against.
type cardInputs struct {
	human      map[string]float64
	geo        map[string]float64
	population map[string]float64
	pigeon     map[string]float64
	humanDays  int
	usePigeon  bool
}

func (in cardInputs) hasHuman() bool { return len(in.human) > 0 }

// ruleHit is the outcome of a single matching rule.
type ruleHit struct {
	tag        string
	title      string
	reason     string
	actions    []string
	confidence float64
	proxy      bool
}

type actionRule func(in cardInputs) (ruleHit, bool)

// strength maps how far value exceeds threshold, relative to the distance
// from threshold to ceiling, onto [0.5, 1].
func strength(value, threshold, ceiling float64) float64 {
	if ceiling <= threshold {
		return 1
	}
	return clamp01(0.5 + 0.5*(value-threshold)/(ceiling-threshold))
}

// above returns m[key] when present and strictly greater than threshold.
func above(m map[string]float64, key string, threshold float64) (float64, bool) {
	v, ok := m[key]
	return v, ok && v > threshold
}

var actionRules = []actionRule{
	func(in cardInputs) (ruleHit, bool) {
		v, ok := above(in.human, FieldNightRatio, 0.6)
		if !ok {
			return ruleHit{}, false
		}
		return ruleHit{
			tag:        "night_spike",
			title:      "Night-time nuisance spike",
			reason:     fmt.Sprintf("%s of reports arrive at night", percent(v)),
			actions:    []string{"Schedule night-time patrols and cleanup rounds", "Improve street lighting on affected blocks"},
			confidence: strength(v, 0.6, 1),
		}, true
	},
	func(in cardInputs) (ruleHit, bool) {
		v, ok := above(in.human, FieldRepeatRatio, 0.5)
		if !ok {
			return ruleHit{}, false
		}
		return ruleHit{
			tag:        "repeat_issue",
			title:      "Recurring complaints",
			reason:     fmt.Sprintf("%s of reports repeat an earlier complaint", percent(v)),
			actions:    []string{"Assign a dedicated owner for repeat reports", "Run a root-cause site inspection"},
			confidence: strength(v, 0.5, 1),
		}, true
	},
	func(in cardInputs) (ruleHit, bool) {
		v, ok := above(in.human, FieldOdorShare, 0.3)
		if !ok {
			return ruleHit{}, false
		}
		return ruleHit{
			tag:        "odor",
			title:      "Odor hotspot",
			reason:     fmt.Sprintf("odor complaints make up %s of the total", percent(v)),
			actions:    []string{"Inspect drains and waste storage for odor sources", "Schedule deodorizing cleanup"},
			confidence: strength(v, 0.3, 1),
		}, true
	},
	func(in cardInputs) (ruleHit, bool) {
		v, ok := above(in.human, FieldTrashShare, 0.3)
		if !ok {
			return ruleHit{}, false
		}
		return ruleHit{
			tag:        "trash",
			title:      "Trash accumulation",
			reason:     fmt.Sprintf("trash complaints make up %s of the total", percent(v)),
			actions:    []string{"Increase waste collection frequency", "Add or relocate public bins"},
			confidence: strength(v, 0.3, 1),
		}, true
	},
	func(in cardInputs) (ruleHit, bool) {
		alley, alleyHit := above(in.geo, FieldAlleyDensity, 50)
		backroad, backroadHit := above(in.geo, FieldBackroadRatio, 0.5)
		if !alleyHit && !backroadHit {
			return ruleHit{}, false
		}
		var conf float64
		var parts []string
		if alleyHit {
			conf = strength(alley, 50, 100)
			parts = append(parts, fmt.Sprintf("alley density %.1f", alley))
		}
		if backroadHit {
			conf = max(conf, strength(backroad, 0.5, 1))
			parts = append(parts, fmt.Sprintf("backroad ratio %s", percent(backroad)))
		}
		return ruleHit{
			tag:        "geo_vulnerable",
			title:      "Structurally vulnerable block",
			reason:     strings.Join(parts, " and "),
			actions:    []string{"Install lighting and CCTV along narrow alleys", "Add the block to the regular cleaning route"},
			confidence: conf,
			proxy:      true,
		}, true
	},
	func(in cardInputs) (ruleHit, bool) {
		alley, alleyHit := above(in.geo, FieldAlleyDensity, 50)
		vent, ventOK := in.geo[FieldVentilationProxy]
		if !alleyHit || !ventOK || vent >= 3 {
			return ruleHit{}, false
		}
		conf := min(strength(alley, 50, 100), strength(3-vent, 0, 3))
		return ruleHit{
			tag:        "stagnant_alley",
			title:      "Stagnant alley",
			reason:     fmt.Sprintf("dense alleys with poor ventilation (%.1f)", vent),
			actions:    []string{"Improve alley ventilation and remove obstructions", "Inspect for standing water and waste"},
			confidence: conf,
			proxy:      true,
		}, true
	},
	func(in cardInputs) (ruleHit, bool) {
		v, ok := above(in.population, FieldChangeRate, 0.1)
		if !ok || !in.hasHuman() {
			return ruleHit{}, false
		}
		return ruleHit{
			tag:        "pop_surge",
			title:      "Population surge",
			reason:     fmt.Sprintf("floating population up %s alongside complaints", percent(v)),
			actions:    []string{"Add temporary bins near foot-traffic hotspots", "Coordinate with local businesses on waste handling"},
			confidence: strength(v, 0.1, 0.3),
		}, true
	},
	func(in cardInputs) (ruleHit, bool) {
		if !in.usePigeon {
			return ruleHit{}, false
		}
		v, ok := above(in.pigeon, FieldSightings, 20)
		if !ok {
			return ruleHit{}, false
		}
		return ruleHit{
			tag:        "pigeon_hotspot",
			title:      "Pigeon hotspot",
			reason:     fmt.Sprintf("%.1f pigeon sightings per day", v),
			actions:    []string{"Post no-feeding notices", "Clean droppings on a fixed schedule"},
			confidence: strength(v, 20, 50),
		}, true
	},
}

// GenerateActionCard evaluates the rule set against a unit's signal window.
// It reports false when the window holds no signals at all; otherwise it
// always yields exactly one card, falling back to a low-confidence
// monitoring card when no rule matches.
func GenerateActionCard(unitID, date string, w SignalWindow, usePigeon bool) (ActionCard, bool) {
	if w.Empty(usePigeon) {
		return ActionCard{}, false
	}
	in := cardInputs{
		human:      AggregateHuman(w.Human),
		geo:        AggregateGeo(w.Geo),
		population: AggregatePopulation(w.Population),
		pigeon:     AggregatePigeon(w.Pigeon),
		humanDays:  distinctHumanDays(w.Human),
		usePigeon:  usePigeon,
	}

	var hits []ruleHit
	for _, rule := range actionRules {
		if hit, ok := rule(in); ok {
			hits = append(hits, hit)
		}
	}

	card := ActionCard{
		CardID:             fmt.Sprintf("AC-%s-%s", unitID, date),
		UnitID:             unitID,
		Date:               date,
		RecommendedActions: []string{},
		Tags:               []string{},
		Limitations:        []string{},
	}
	sparse := in.humanDays < sparseHumanDays
	if sparse {
		card.Limitations = append(card.Limitations,
			fmt.Sprintf("only %d days of complaint data in the window; confidence reduced", in.humanDays))
	}
	if w.Geo == nil {
		card.Limitations = append(card.Limitations, "no geo data for this unit")
	}

	if len(hits) == 0 {
		card.Title = "Routine monitoring"
		card.Why = "No signal exceeded an action threshold in the lookback window."
		card.RecommendedActions = append(card.RecommendedActions, "Continue routine monitoring")
		card.Tags = append(card.Tags, "monitor")
		card.Confidence = placeholderConfidence
		return card, true
	}

	card.Title = hits[0].title
	reasons := make([]string, 0, len(hits))
	seen := make(map[string]bool)
	var confSum float64
	proxy := false
	for _, h := range hits {
		reasons = append(reasons, h.reason)
		card.Tags = append(card.Tags, h.tag)
		confSum += h.confidence
		proxy = proxy || h.proxy
		for _, a := range h.actions {
			if seen[a] || len(card.RecommendedActions) == maxCardActions {
				continue
			}
			seen[a] = true
			card.RecommendedActions = append(card.RecommendedActions, a)
		}
	}
	card.Why = strings.Join(reasons, "; ")
	conf := confSum / float64(len(hits))
	if sparse {
		conf *= sparsityPenalty
	}
	card.Confidence = round2(clamp01(conf))
	if proxy {
		card.Limitations = append(card.Limitations, "geo indicators are structural proxies, not direct observations")
	}
	if usePigeon && len(w.Pigeon) > 0 {
		card.Limitations = append(card.Limitations, "pigeon activity is an auxiliary signal")
	}
	return card, true
}

func distinctHumanDays(records []HumanSignal) int {
	days := make(map[string]struct{}, len(records))
	for _, r := range records {
		days[r.Date] = struct{}{}
	}
	return len(days)
}
