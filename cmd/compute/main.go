// Command compute scores units over an inclusive date range against a SQLite
// store, one day at a time.
//
// Usage:
//
//	go run ./cmd/compute \
//	  -sqlite "file:uci.db" \
//	  -from 2024-03-01 -to 2024-03-28 \
//	  [-unit 11110-515] [-window 4] [-pigeon]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/urban-comfort-index/internal/adapter/sqlitestore"
	"github.com/couchcryptid/urban-comfort-index/internal/domain"
	"github.com/couchcryptid/urban-comfort-index/internal/observability"
	"github.com/couchcryptid/urban-comfort-index/internal/scoring"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	dsn := flag.String("sqlite", "file:uci.db?_pragma=busy_timeout(5000)", "SQLite DSN")
	from := flag.String("from", "", "first date to score (YYYY-MM-DD)")
	to := flag.String("to", "", "last date to score (YYYY-MM-DD), defaults to -from")
	unit := flag.String("unit", "", "score only this unit")
	window := flag.Int("window", 4, "lookback window in weeks (1-12)")
	pigeon := flag.Bool("pigeon", false, "include the pigeon signal")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	if *from == "" {
		flag.Usage()
		return errors.New("missing required flag: -from")
	}
	if *to == "" {
		*to = *from
	}
	dates, err := datesBetween(*from, *to)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := sqlitestore.Open(ctx, *dsn)
	if err != nil {
		return err
	}
	defer store.Close()

	logger := observability.NewLogger(*logLevel, "text")
	opts := scoring.DefaultOptions()
	opts.WindowWeeks = *window
	opts.UsePigeon = *pigeon
	svc := scoring.NewService(store, nil, opts, logger, observability.NewMetrics())

	var scored, unscored int
	for _, date := range dates {
		if *unit != "" {
			out, err := svc.ComputeUCIForUnit(ctx, *unit, date, *window, *pigeon)
			if err != nil {
				return fmt.Errorf("%s: %w", date, err)
			}
			switch out.Status {
			case scoring.StatusScored:
				scored++
				fmt.Printf("%s  %-16s %6.2f  %s\n", date, out.UnitID, out.Record.UCIScore, out.Record.UCIGrade)
			case scoring.StatusUnitNotFound:
				return fmt.Errorf("unit %q not found", *unit)
			default:
				unscored++
				fmt.Printf("%s  %-16s unscored\n", date, out.UnitID)
			}
			continue
		}

		res, err := svc.ComputeAll(ctx, date, *window, *pigeon)
		if err != nil {
			return fmt.Errorf("%s: %w", date, err)
		}
		scored += res.Scored
		unscored += res.Unscored
		fmt.Printf("%s  scored=%d unscored=%d\n", date, res.Scored, res.Unscored)
	}

	fmt.Fprintf(os.Stderr, "done: %d dates, %d scored, %d unscored\n", len(dates), scored, unscored)
	return nil
}

// datesBetween lists every day from..to inclusive.
func datesBetween(from, to string) ([]string, error) {
	start, err := domain.ParseDate(from)
	if err != nil {
		return nil, err
	}
	end, err := domain.ParseDate(to)
	if err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, fmt.Errorf("-to %s is before -from %s", to, from)
	}
	var dates []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, domain.FormatDate(d))
	}
	return dates, nil
}
