// Command genmock generates a deterministic synthetic city: a grid of spatial
// units with geometry, one geo record each, and daily human, population and
// pigeon signals. Output is written as signal-topic messages (one JSON
// object per line) and can optionally be loaded straight into a SQLite store
// or published to Kafka. Loading goes through the real ingestion transformer
// so the fixtures match pipeline behavior.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -units 25 -days 28 -end 2024-03-28 \
//	  -out data/mock/signals.jsonl \
//	  [-sqlite "file:uci.db"] [-brokers localhost:9092 -topic urban-signals]
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/urban-comfort-index/internal/adapter/sqlitestore"
	"github.com/couchcryptid/urban-comfort-index/internal/domain"
	"github.com/couchcryptid/urban-comfort-index/internal/observability"
	"github.com/couchcryptid/urban-comfort-index/internal/pipeline"
)

// genConfig controls the synthetic dataset.
type genConfig struct {
	units int
	days  int
	end   time.Time
	seed  uint64
}

// message is one signal-topic message.
type message struct {
	Kind    string `json:"kind"`
	Payload any    `json:"payload"`
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	units := flag.Int("units", 25, "number of spatial units (laid out on a square grid)")
	days := flag.Int("days", 28, "days of daily signals per unit")
	endFlag := flag.String("end", "2024-03-28", "last signal date (YYYY-MM-DD)")
	seed := flag.Uint64("seed", 42, "random seed")
	out := flag.String("out", "", "output path for JSONL messages")
	dsn := flag.String("sqlite", "", "optional SQLite DSN to load the messages into")
	brokers := flag.String("brokers", "", "optional comma-separated Kafka brokers to publish to")
	topic := flag.String("topic", "urban-signals", "Kafka topic used with -brokers")
	flag.Parse()

	if *out == "" && *dsn == "" && *brokers == "" {
		flag.Usage()
		return errors.New("nothing to do: set at least one of -out, -sqlite, -brokers")
	}
	if *units <= 0 || *days <= 0 {
		return errors.New("-units and -days must be positive")
	}
	end, err := domain.ParseDate(*endFlag)
	if err != nil {
		return err
	}

	msgs := generate(genConfig{units: *units, days: *days, end: end, seed: *seed})
	lines, err := encode(msgs)
	if err != nil {
		return err
	}
	log.Printf("generated %d messages for %d units over %d days", len(lines), *units, *days)

	ctx := context.Background()
	if *out != "" {
		if err := writeLines(*out, lines); err != nil {
			return fmt.Errorf("writing %s: %w", *out, err)
		}
		log.Printf("wrote %s", *out)
	}
	if *dsn != "" {
		if err := load(ctx, *dsn, lines, end); err != nil {
			return fmt.Errorf("loading sqlite: %w", err)
		}
		log.Printf("loaded into %s", *dsn)
	}
	if *brokers != "" {
		if err := publish(ctx, sharedcfg.ParseBrokers(*brokers), *topic, msgs, lines); err != nil {
			return fmt.Errorf("publishing to kafka: %w", err)
		}
		log.Printf("published to %s", *topic)
	}
	return nil
}

// generate builds the dataset. The same config always yields the same messages.
// Unit messages come first, followed by one citywide baseline per month.
func generate(cfg genConfig) []message {
	rng := rand.New(rand.NewPCG(cfg.seed, cfg.seed^0x9e3779b97f4a7c15))
	side := int(math.Ceil(math.Sqrt(float64(cfg.units))))
	updated := cfg.end.AddDate(0, 0, -cfg.days)

	msgs := make([]message, 0, cfg.units*(2+3*cfg.days))
	months := newMonthTotals()
	for i := range cfg.units {
		id := fmt.Sprintf("U%03d", i+1)
		row, col := i/side, i%side
		// intensity in [0.05, 0.95] drives every signal of the unit.
		intensity := 0.05 + 0.9*rng.Float64()

		msgs = append(msgs,
			message{Kind: domain.KindUnit, Payload: domain.SpatialUnit{
				ID:   id,
				Name: fmt.Sprintf("Block %c-%d", 'A'+rune(row), col+1),
				Geom: cell(126.97+0.005*float64(col), 37.55+0.005*float64(row), 0.005),
				Meta: map[string]any{"row": row, "col": col},
			}},
			message{Kind: string(domain.SourceGeo), Payload: domain.GeoSignal{
				UnitID:              id,
				AlleyDensity:        domain.Float(round(20 + 80*intensity + 10*rng.NormFloat64())),
				BackroadRatio:       domain.Float(clamp(intensity + 0.1*rng.NormFloat64())),
				VentilationProxy:    domain.Float(round(10 * clamp(1-intensity+0.1*rng.NormFloat64()))),
				AccessibilityProxy:  domain.Float(round(10 * clamp(0.8-0.5*intensity))),
				LanduseMix:          domain.Float(clamp(0.3 + 0.4*rng.Float64())),
				HabitualDumpingRisk: domain.Float(clamp(intensity * rng.Float64())),
				Source:              "genmock",
				UpdatedAt:           updated,
			}},
		)

		for d := range cfg.days {
			date := domain.FormatDate(cfg.end.AddDate(0, 0, d-cfg.days+1))
			// trend grows slightly over the window so growth rate is non-zero.
			trend := 1 + 0.3*intensity*float64(d)/float64(cfg.days)
			total := math.Round(math.Max(0, 12*intensity*trend+2*rng.NormFloat64()))
			odor := math.Round(total * clamp(0.2+0.2*rng.Float64()))
			trash := math.Round(math.Max(0, total-odor) * clamp(0.3+0.2*rng.Float64()))
			months.add(date, total)

			msgs = append(msgs,
				message{Kind: string(domain.SourceHuman), Payload: domain.HumanSignal{
					UnitID:               id,
					Date:                 date,
					ComplaintTotal:       domain.Float(total),
					ComplaintOdor:        domain.Float(odor),
					ComplaintTrash:       domain.Float(trash),
					ComplaintIllegalDump: domain.Float(math.Round(math.Max(0, total-odor-trash) * 0.3)),
					NightRatio:           domain.Float(clamp(0.2 + 0.6*intensity + 0.05*rng.NormFloat64())),
					RepeatRatio:          domain.Float(clamp(0.1 + 0.5*intensity + 0.05*rng.NormFloat64())),
					Source:               "genmock",
				}},
				message{Kind: string(domain.SourcePopulation), Payload: domain.PopulationSignal{
					UnitID:        id,
					Date:          date,
					PopTotal:      domain.Float(math.Round(2000 + 6000*intensity + 300*rng.NormFloat64())),
					PopNight:      domain.Float(math.Round(800 + 2500*intensity + 150*rng.NormFloat64())),
					PopChangeRate: domain.Float(round(0.1*intensity + 0.02*rng.NormFloat64())),
					Source:        "genmock",
				}},
				message{Kind: string(domain.SourcePigeon), Payload: domain.PigeonSignal{
					UnitID:          id,
					Date:            date,
					Sightings:       domain.Float(math.Round(math.Max(0, 40*intensity+5*rng.NormFloat64()))),
					DroppingReports: domain.Float(math.Round(math.Max(0, 6*intensity+rng.NormFloat64()))),
					FeedingRatio:    domain.Float(clamp(0.3 * intensity * rng.Float64())),
					Source:          "genmock",
				}},
			)
		}
	}
	return append(msgs, months.baselines(cfg.units)...)
}

// monthTotals accumulates citywide complaints per YYYY-MM period.
type monthTotals struct {
	order  []string
	totals map[string]float64
	days   map[string]map[string]bool
}

func newMonthTotals() *monthTotals {
	return &monthTotals{totals: map[string]float64{}, days: map[string]map[string]bool{}}
}

func (m *monthTotals) add(date string, total float64) {
	period := date[:len(domain.PeriodLayout)]
	if _, ok := m.totals[period]; !ok {
		m.order = append(m.order, period)
		m.days[period] = map[string]bool{}
	}
	m.totals[period] += total
	m.days[period][date] = true
}

// baselines emits one message per month in period order. The average
// is taken over the observed days, and growth is the change of that average
// against the previous month.
func (m *monthTotals) baselines(units int) []message {
	sort.Strings(m.order)
	out := make([]message, 0, len(m.order))
	prev := 0.0
	for _, period := range m.order {
		avg := m.totals[period] / float64(units) / float64(len(m.days[period]))
		growth := 0.0
		if prev > 0 {
			growth = round((avg - prev) / prev)
		}
		out = append(out, message{Kind: domain.KindBaseline, Payload: domain.BaselineMetric{
			Period:             period,
			Category:           domain.BaselineCategoryAll,
			CitywideTotal:      m.totals[period],
			CitywideAvgPerUnit: domain.Float(round(avg)),
			UnitCount:          units,
			GrowthRate:         growth,
			Source:             "genmock",
		}})
		prev = avg
	}
	return out
}

// cell returns a closed square polygon with its south-west corner at (lon, lat).
func cell(lon, lat, size float64) json.RawMessage {
	ring := [][2]float64{{lon, lat}, {lon + size, lat}, {lon + size, lat + size}, {lon, lat + size}, {lon, lat}}
	for i := range ring {
		ring[i] = [2]float64{round6(ring[i][0]), round6(ring[i][1])}
	}
	data, _ := json.Marshal(map[string]any{"type": "Polygon", "coordinates": [][][2]float64{ring}})
	return data
}

func encode(msgs []message) ([][]byte, error) {
	lines := make([][]byte, 0, len(msgs))
	for _, m := range msgs {
		data, err := json.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("marshal %s message: %w", m.Kind, err)
		}
		lines = append(lines, data)
	}
	return lines, nil
}

func writeLines(path string, lines [][]byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, line := range lines {
		w.Write(line)     //nolint:errcheck // surfaced by Flush
		w.WriteByte('\n') //nolint:errcheck // surfaced by Flush
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// load parses every line with the ingestion transformer and writes the
// envelopes through the store loader.
func load(ctx context.Context, dsn string, lines [][]byte, ts time.Time) error {
	store, err := sqlitestore.Open(ctx, dsn)
	if err != nil {
		return err
	}
	defer store.Close()

	logger := observability.NewDiscardLogger()
	transformer := pipeline.NewTransformer(logger)
	loader := pipeline.NewStoreLoader(store, logger)

	envs := make([]domain.SignalEnvelope, 0, len(lines))
	for i, line := range lines {
		env, err := transformer.Transform(ctx, domain.RawMessage{Value: line, Timestamp: ts})
		if err != nil {
			return fmt.Errorf("line %d: %w", i+1, err)
		}
		envs = append(envs, env)
	}
	return loader.LoadBatch(ctx, envs)
}

func publish(ctx context.Context, brokers []string, topic string, msgs []message, lines [][]byte) error {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		AllowAutoTopicCreation: true,
	}
	defer w.Close()

	batch := make([]kafkago.Message, len(lines))
	for i, line := range lines {
		batch[i] = kafkago.Message{
			Key:     []byte(unitOf(msgs[i])),
			Value:   line,
			Headers: []kafkago.Header{{Key: "kind", Value: []byte(msgs[i].Kind)}},
		}
	}
	return w.WriteMessages(ctx, batch...)
}

func unitOf(m message) string {
	switch p := m.Payload.(type) {
	case domain.SpatialUnit:
		return p.ID
	case domain.GeoSignal:
		return p.UnitID
	case domain.HumanSignal:
		return p.UnitID
	case domain.PopulationSignal:
		return p.UnitID
	case domain.PigeonSignal:
		return p.UnitID
	default:
		return ""
	}
}

func clamp(v float64) float64 {
	return round(math.Min(1, math.Max(0, v)))
}

func round(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
