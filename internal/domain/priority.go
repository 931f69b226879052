package domain

import "sort"

// MaxResults caps every list-shaped result and batch request.
const MaxResults = 100

// LatestPerUnit collapses records to one per unit, keeping the most recently
// created. The result is ordered by unit id.
func LatestPerUnit(records []ComfortIndexRecord) []ComfortIndexRecord {
	latest := make(map[string]ComfortIndexRecord, len(records))
	for _, r := range records {
		if cur, ok := latest[r.UnitID]; !ok || r.CreatedAt.After(cur.CreatedAt) {
			latest[r.UnitID] = r
		}
	}
	out := make([]ComfortIndexRecord, 0, len(latest))
	for _, r := range latest {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UnitID < out[j].UnitID })
	return out
}

// RankRecords orders records by score descending, ties by unit id ascending.
func RankRecords(records []ComfortIndexRecord) []ComfortIndexRecord {
	ranked := LatestPerUnit(records)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].UCIScore != ranked[j].UCIScore {
			return ranked[i].UCIScore > ranked[j].UCIScore
		}
		return ranked[i].UnitID < ranked[j].UnitID
	})
	return ranked
}

// BuildPriorityQueue ranks the records of a single date and returns the first
// min(topN, K) entries with contiguous ranks starting at 1. names resolves
// display names; a unit missing from it is shown by id.
func BuildPriorityQueue(records []ComfortIndexRecord, names map[string]string, topN int) []PriorityItem {
	ranked := RankRecords(records)
	if topN < len(ranked) {
		ranked = ranked[:max(topN, 0)]
	}
	items := make([]PriorityItem, 0, len(ranked))
	for i, r := range ranked {
		name := names[r.UnitID]
		if name == "" {
			name = r.UnitID
		}
		drivers := r.Explain.KeyDrivers
		if drivers == nil {
			drivers = []KeyDriver{}
		}
		items = append(items, PriorityItem{
			Rank:       i + 1,
			UnitID:     r.UnitID,
			Name:       name,
			UCIScore:   r.UCIScore,
			UCIGrade:   r.UCIGrade,
			WhySummary: r.Explain.WhySummary,
			KeyDrivers: drivers,
		})
	}
	return items
}
