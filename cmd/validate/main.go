// Command validate checks stored comfort index records for integrity: score
// range and rounding, grade consistency, explanation shape, and references
// to known units. With -fix, records whose grade disagrees with their score
// are rewritten with the correct grade.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -sqlite "file:uci.db" \
//	  -from 2024-03-01 -to 2024-03-28 [-fix]
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"

	"github.com/couchcryptid/urban-comfort-index/internal/adapter/sqlitestore"
	"github.com/couchcryptid/urban-comfort-index/internal/domain"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// report is the outcome of a validation run.
type report struct {
	phases  []*phase
	units   int
	records int
	fixed   int
}

func main() {
	dsn := flag.String("sqlite", "file:uci.db?_pragma=busy_timeout(5000)", "SQLite DSN")
	from := flag.String("from", "", "first date to check (YYYY-MM-DD)")
	to := flag.String("to", "", "last date to check (YYYY-MM-DD)")
	fix := flag.Bool("fix", false, "rewrite records whose grade disagrees with their score")
	flag.Parse()

	if *from == "" || *to == "" {
		flag.Usage()
		os.Exit(1)
	}
	r := domain.DateRange{From: *from, To: *to}
	if !domain.ValidDate(r.From) || !domain.ValidDate(r.To) || r.To < r.From {
		fmt.Fprintf(os.Stderr, "FATAL: invalid date range %s..%s\n", r.From, r.To)
		os.Exit(1)
	}

	code, err := run(context.Background(), *dsn, r, *fix)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}
	os.Exit(code)
}

func run(ctx context.Context, dsn string, r domain.DateRange, fix bool) (int, error) {
	store, err := sqlitestore.Open(ctx, dsn)
	if err != nil {
		return 0, fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	fmt.Println("=== Comfort Index Integrity Validation ===")
	fmt.Println()

	rep, err := validate(ctx, store, r, fix)
	if err != nil {
		return 0, err
	}
	return printReport(rep, fix), nil
}

// validate loads every unit's records in r and runs the integrity phases.
// When fix is set, grade mismatches are corrected in place.
func validate(ctx context.Context, repo domain.Repository, r domain.DateRange, fix bool) (report, error) {
	units, err := repo.ListSpatialUnits(ctx)
	if err != nil {
		return report{}, fmt.Errorf("list units: %w", err)
	}

	rangePhase := &phase{name: "Score range and rounding"}
	gradePhase := &phase{name: "Grade consistency"}
	explainPhase := &phase{name: "Explanation integrity"}
	metaPhase := &phase{name: "Window metadata"}

	rep := report{
		phases: []*phase{rangePhase, gradePhase, explainPhase, metaPhase},
		units:  len(units),
	}
	for _, u := range units {
		records, err := repo.FindScoresInRange(ctx, u.ID, r)
		if err != nil {
			return report{}, fmt.Errorf("find scores for %s: %w", u.ID, err)
		}
		for _, rec := range records {
			rep.records++
			key := rec.UnitID + "@" + rec.Date

			checkRange(rangePhase, key, rec)
			checkExplain(explainPhase, key, rec)
			if rec.WindowWeeks < domain.MinWindowWeeks || rec.WindowWeeks > domain.MaxWindowWeeks {
				metaPhase.errorf("%s: window_weeks %d outside %d-%d", key, rec.WindowWeeks, domain.MinWindowWeeks, domain.MaxWindowWeeks)
			}

			want := domain.GradeFor(rec.UCIScore)
			if rec.UCIGrade == want {
				continue
			}
			if !fix {
				gradePhase.errorf("%s: score %.2f has grade %q, want %q", key, rec.UCIScore, rec.UCIGrade, want)
				continue
			}
			rec.UCIGrade = want
			if err := repo.SaveScore(ctx, rec); err != nil {
				return report{}, fmt.Errorf("fix %s: %w", key, err)
			}
			rep.fixed++
		}
	}
	return rep, nil
}

func checkRange(p *phase, key string, rec domain.ComfortIndexRecord) {
	s := rec.UCIScore
	if math.IsNaN(s) || s < 0 || s > 100 {
		p.errorf("%s: score %v outside [0, 100]", key, s)
		return
	}
	if math.Abs(s*100-math.Round(s*100)) > 1e-6 {
		p.errorf("%s: score %v not rounded to 2 decimals", key, s)
	}
}

func checkExplain(p *phase, key string, rec domain.ComfortIndexRecord) {
	drivers := rec.Explain.KeyDrivers
	if len(drivers) > 3 {
		p.errorf("%s: %d key drivers, want at most 3", key, len(drivers))
	}
	for i := 1; i < len(drivers); i++ {
		if drivers[i].Value > drivers[i-1].Value {
			p.errorf("%s: key drivers not in descending order", key)
			break
		}
	}
	if rec.Explain.WhySummary == "" {
		p.errorf("%s: empty why_summary", key)
	}
}

func printReport(rep report, fix bool) int {
	allPassed := true
	for _, p := range rep.phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Records: %d across %d units\n", rep.records, rep.units)
	if fix {
		fmt.Printf("Fixed grades: %d\n", rep.fixed)
	}

	for _, p := range rep.phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}
