package domain

// Grade is a discrete comfort band. A is the most comfortable, E the least.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeE Grade = "E"
)

// gradeBands partitions [0,100] into half-open bands [lower, upper).
// Scores at or above the last upper bound fall into E.
var gradeBands = []struct {
	upper float64
	grade Grade
}{
	{20, GradeA},
	{40, GradeB},
	{60, GradeC},
	{80, GradeD},
}

// GradeFor maps a score to its grade. The mapping is monotonic and total:
// every score, including out-of-range input, lands in exactly one band.
func GradeFor(score float64) Grade {
	for _, b := range gradeBands {
		if score < b.upper {
			return b.grade
		}
	}
	return GradeE
}

// Valid reports whether g is one of the five grades.
func (g Grade) Valid() bool {
	switch g {
	case GradeA, GradeB, GradeC, GradeD, GradeE:
		return true
	default:
		return false
	}
}
