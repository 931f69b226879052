package domain

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// maxKeyDrivers caps the number of sources listed as key drivers.
const maxKeyDrivers = 3

// Contribution is the share of the composite score, in points, owed to one source.
type Contribution struct {
	Source Source
	Points float64
}

// Contributions ranks the sources present in c by weight*score, descending.
// Equal contributions are ordered by source name.
func Contributions(c Components) []Contribution {
	var total float64
	for _, w := range c.Weights {
		total += w
	}
	if total == 0 {
		return nil
	}
	out := make([]Contribution, 0, len(c.Weights))
	for _, s := range Sources {
		sc := c.Get(s)
		w, ok := c.Weights[s]
		if sc == nil || !ok {
			continue
		}
		out = append(out, Contribution{Source: s, Points: 100 * w * sc.Score / total})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Points != out[j].Points {
			return out[i].Points > out[j].Points
		}
		return out[i].Source < out[j].Source
	})
	return out
}

// Explanation composes the summary and key drivers of a score.
func Explanation(c Components, windowWeeks int) Explain {
	ranked := Contributions(c)
	drivers := make([]KeyDriver, 0, maxKeyDrivers)
	for i, r := range ranked {
		if i == maxKeyDrivers {
			break
		}
		drivers = append(drivers, KeyDriver{Signal: string(r.Source), Value: round2(r.Points)})
	}

	var b strings.Builder
	if len(ranked) > 0 {
		fmt.Fprintf(&b, "Top driver: %s (%.2f pts)", ranked[0].Source, round2(ranked[0].Points))
	}
	if notes := fieldNotes(c); len(notes) > 0 {
		b.WriteString("; ")
		b.WriteString(strings.Join(notes, ", "))
	}
	if b.Len() == 0 {
		fmt.Fprintf(&b, "Signals over the last %d weeks", windowWeeks)
	}
	return Explain{WhySummary: b.String(), KeyDrivers: drivers}
}

// fieldNotes lists notable raw field levels in a fixed order.
func fieldNotes(c Components) []string {
	var notes []string
	if h := c.Human; h != nil {
		if v, ok := h.Raw[FieldRelativeToBaseline]; ok && v > 1.2 {
			notes = append(notes, fmt.Sprintf("%.1fx the citywide complaint rate", v))
		}
		if v, ok := h.Raw[FieldExcessGrowthRate]; ok && v > 0.05 {
			notes = append(notes, fmt.Sprintf("growth %dpp above citywide", int(math.Round(v*100))))
		}
		if v, ok := h.Raw[FieldOdorShare]; ok && v > 0.1 {
			notes = append(notes, fmt.Sprintf("odor complaints %s of total", percent(v)))
		}
		if v, ok := h.Raw[FieldTrashShare]; ok && v > 0.1 {
			notes = append(notes, fmt.Sprintf("trash complaints %s of total", percent(v)))
		}
		if v, ok := h.Raw[FieldNightRatio]; ok && v > 0.4 {
			notes = append(notes, fmt.Sprintf("night-time reports %s", percent(v)))
		}
		if v, ok := h.Raw[FieldRepeatRatio]; ok && v > 0.3 {
			notes = append(notes, fmt.Sprintf("repeat reports %s", percent(v)))
		}
	}
	if g := c.Geo; g != nil {
		if v, ok := g.Raw[FieldAlleyDensity]; ok && v > 30 {
			notes = append(notes, fmt.Sprintf("high alley density (%.1f)", v))
		}
	}
	if p := c.Population; p != nil {
		if v, ok := p.Raw[FieldChangeRate]; ok && v > 0.05 {
			notes = append(notes, fmt.Sprintf("population up %s", percent(v)))
		}
	}
	return notes
}

func percent(v float64) string {
	return fmt.Sprintf("%d%%", int(math.Round(v*100)))
}
