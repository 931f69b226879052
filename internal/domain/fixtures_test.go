package domain

import (
	"fmt"
	"time"
)

const testUnit = "11110515"

// syntheticWindow builds 28 days of human and population signals ending on
// 2024-03-28, plus a geo record.
func syntheticWindow() SignalWindow {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	var w SignalWindow
	for i := 0; i < 28; i++ {
		date := FormatDate(start.AddDate(0, 0, i))
		w.Human = append(w.Human, HumanSignal{
			UnitID:         testUnit,
			Date:           date,
			ComplaintTotal: Float(float64(4 + i%3)),
			ComplaintOdor:  Float(1),
			ComplaintTrash: Float(2),
			NightRatio:     Float(0.45),
			RepeatRatio:    Float(0.2),
			Source:         "fixture",
		})
		w.Population = append(w.Population, PopulationSignal{
			UnitID:        testUnit,
			Date:          date,
			PopTotal:      Float(5000),
			PopNight:      Float(2000),
			PopChangeRate: Float(0.02),
			Source:        "fixture",
		})
	}
	w.Geo = &GeoSignal{
		UnitID:             testUnit,
		AlleyDensity:       Float(40),
		BackroadRatio:      Float(0.3),
		VentilationProxy:   Float(5),
		AccessibilityProxy: Float(6),
		LanduseMix:         Float(0.5),
		Source:             "fixture",
	}
	return w
}

func testRecord(unitID, date string, score float64) ComfortIndexRecord {
	return ComfortIndexRecord{
		UnitID:   unitID,
		Date:     date,
		UCIScore: score,
		UCIGrade: GradeFor(score),
		Explain: Explain{
			WhySummary: fmt.Sprintf("Top driver: human (%.2f pts)", score),
			KeyDrivers: []KeyDriver{{Signal: "human", Value: score}},
		},
		WindowWeeks: 4,
	}
}
