// Package sqlitestore implements domain.Repository on an embedded SQLite
// database. Records are stored as JSON documents keyed by their natural
// identity, so recomputing a score for a (unit, date) replaces the stored row.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/couchcryptid/urban-comfort-index/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS spatial_units (
	id   TEXT PRIMARY KEY,
	doc  TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS human_signals (
	unit_id TEXT NOT NULL,
	date    TEXT NOT NULL,
	doc     TEXT NOT NULL,
	PRIMARY KEY (unit_id, date)
);
CREATE TABLE IF NOT EXISTS population_signals (
	unit_id TEXT NOT NULL,
	date    TEXT NOT NULL,
	doc     TEXT NOT NULL,
	PRIMARY KEY (unit_id, date)
);
CREATE TABLE IF NOT EXISTS pigeon_signals (
	unit_id TEXT NOT NULL,
	date    TEXT NOT NULL,
	doc     TEXT NOT NULL,
	PRIMARY KEY (unit_id, date)
);
CREATE TABLE IF NOT EXISTS geo_signals (
	unit_id    TEXT PRIMARY KEY,
	updated_at INTEGER NOT NULL,
	doc        TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS comfort_index (
	unit_id    TEXT NOT NULL,
	date       TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	doc        TEXT NOT NULL,
	PRIMARY KEY (unit_id, date)
);
CREATE INDEX IF NOT EXISTS comfort_index_date ON comfort_index (date);
CREATE TABLE IF NOT EXISTS interventions (
	id         TEXT PRIMARY KEY,
	unit_id    TEXT NOT NULL,
	start_date TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	doc        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS interventions_unit ON interventions (unit_id, start_date);
CREATE TABLE IF NOT EXISTS baseline_metrics (
	period   TEXT NOT NULL,
	category TEXT NOT NULL,
	doc      TEXT NOT NULL,
	PRIMARY KEY (period, category)
);
CREATE TABLE IF NOT EXISTS anomalies (
	unit_id TEXT NOT NULL,
	date    TEXT NOT NULL,
	doc     TEXT NOT NULL,
	PRIMARY KEY (unit_id, date)
);
CREATE INDEX IF NOT EXISTS anomalies_date ON anomalies (date);
`

// Store is a SQLite-backed domain.Repository.
type Store struct {
	db *sql.DB
}

// Open connects to dsn and applies the schema. SQLite allows one writer at a
// time, so the pool is limited to a single connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// CheckReadiness pings the database.
func (s *Store) CheckReadiness(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite not reachable: %w", err)
	}
	return nil
}

// queryDocs decodes every doc column returned by query.
func queryDocs[T any](ctx context.Context, db *sql.DB, query string, args ...any) ([]T, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]T, 0)
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var v T
		if err := json.Unmarshal([]byte(doc), &v); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// getDoc decodes the single doc returned by query, or reports ErrNotFound.
func getDoc[T any](ctx context.Context, db *sql.DB, what, query string, args ...any) (T, error) {
	var v T
	var doc string
	err := db.QueryRowContext(ctx, query, args...).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return v, fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	if err != nil {
		return v, fmt.Errorf("query %s: %w", what, err)
	}
	if err := json.Unmarshal([]byte(doc), &v); err != nil {
		return v, fmt.Errorf("decode %s: %w", what, err)
	}
	return v, nil
}

func (s *Store) exec(ctx context.Context, what, query string, doc any, args ...any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", what, err)
	}
	if _, err := s.db.ExecContext(ctx, query, append(args, string(data))...); err != nil {
		return fmt.Errorf("save %s: %w", what, err)
	}
	return nil
}

func (s *Store) FindSpatialUnit(ctx context.Context, unitID string) (domain.SpatialUnit, error) {
	return getDoc[domain.SpatialUnit](ctx, s.db, fmt.Sprintf("spatial unit %q", unitID),
		`SELECT doc FROM spatial_units WHERE id = ?`, unitID)
}

func (s *Store) ListSpatialUnits(ctx context.Context) ([]domain.SpatialUnit, error) {
	units, err := queryDocs[domain.SpatialUnit](ctx, s.db, `SELECT doc FROM spatial_units ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list spatial units: %w", err)
	}
	return units, nil
}

func (s *Store) FindHumanSignals(ctx context.Context, unitID string, r domain.DateRange) ([]domain.HumanSignal, error) {
	out, err := queryDocs[domain.HumanSignal](ctx, s.db,
		`SELECT doc FROM human_signals WHERE unit_id = ? AND date BETWEEN ? AND ? ORDER BY date`, unitID, r.From, r.To)
	if err != nil {
		return nil, fmt.Errorf("find human signals: %w", err)
	}
	return out, nil
}

func (s *Store) FindPopulationSignals(ctx context.Context, unitID string, r domain.DateRange) ([]domain.PopulationSignal, error) {
	out, err := queryDocs[domain.PopulationSignal](ctx, s.db,
		`SELECT doc FROM population_signals WHERE unit_id = ? AND date BETWEEN ? AND ? ORDER BY date`, unitID, r.From, r.To)
	if err != nil {
		return nil, fmt.Errorf("find population signals: %w", err)
	}
	return out, nil
}

func (s *Store) FindPigeonSignals(ctx context.Context, unitID string, r domain.DateRange) ([]domain.PigeonSignal, error) {
	out, err := queryDocs[domain.PigeonSignal](ctx, s.db,
		`SELECT doc FROM pigeon_signals WHERE unit_id = ? AND date BETWEEN ? AND ? ORDER BY date`, unitID, r.From, r.To)
	if err != nil {
		return nil, fmt.Errorf("find pigeon signals: %w", err)
	}
	return out, nil
}

func (s *Store) FindLatestGeoSignal(ctx context.Context, unitID string) (domain.GeoSignal, error) {
	return getDoc[domain.GeoSignal](ctx, s.db, fmt.Sprintf("geo signal for %q", unitID),
		`SELECT doc FROM geo_signals WHERE unit_id = ?`, unitID)
}

func (s *Store) SaveSpatialUnit(ctx context.Context, u domain.SpatialUnit) error {
	return s.exec(ctx, "spatial unit",
		`INSERT INTO spatial_units (id, doc) VALUES (?, ?)
		 ON CONFLICT (id) DO UPDATE SET doc = excluded.doc`, u, u.ID)
}

func (s *Store) SaveHumanSignal(ctx context.Context, sig domain.HumanSignal) error {
	return s.exec(ctx, "human signal",
		`INSERT INTO human_signals (unit_id, date, doc) VALUES (?, ?, ?)
		 ON CONFLICT (unit_id, date) DO UPDATE SET doc = excluded.doc`, sig, sig.UnitID, sig.Date)
}

func (s *Store) SavePopulationSignal(ctx context.Context, sig domain.PopulationSignal) error {
	return s.exec(ctx, "population signal",
		`INSERT INTO population_signals (unit_id, date, doc) VALUES (?, ?, ?)
		 ON CONFLICT (unit_id, date) DO UPDATE SET doc = excluded.doc`, sig, sig.UnitID, sig.Date)
}

func (s *Store) SavePigeonSignal(ctx context.Context, sig domain.PigeonSignal) error {
	return s.exec(ctx, "pigeon signal",
		`INSERT INTO pigeon_signals (unit_id, date, doc) VALUES (?, ?, ?)
		 ON CONFLICT (unit_id, date) DO UPDATE SET doc = excluded.doc`, sig, sig.UnitID, sig.Date)
}

// SaveGeoSignal keeps the record with the latest UpdatedAt.
func (s *Store) SaveGeoSignal(ctx context.Context, sig domain.GeoSignal) error {
	return s.exec(ctx, "geo signal",
		`INSERT INTO geo_signals (unit_id, updated_at, doc) VALUES (?, ?, ?)
		 ON CONFLICT (unit_id) DO UPDATE SET updated_at = excluded.updated_at, doc = excluded.doc
		 WHERE excluded.updated_at >= geo_signals.updated_at`, sig, sig.UnitID, sig.UpdatedAt.UnixNano())
}

func (s *Store) FindScore(ctx context.Context, unitID, date string) (domain.ComfortIndexRecord, error) {
	return getDoc[domain.ComfortIndexRecord](ctx, s.db, fmt.Sprintf("score for %q on %s", unitID, date),
		`SELECT doc FROM comfort_index WHERE unit_id = ? AND date = ?`, unitID, date)
}

func (s *Store) FindLatestScore(ctx context.Context, unitID string) (domain.ComfortIndexRecord, error) {
	return getDoc[domain.ComfortIndexRecord](ctx, s.db, fmt.Sprintf("score for %q", unitID),
		`SELECT doc FROM comfort_index WHERE unit_id = ? ORDER BY date DESC LIMIT 1`, unitID)
}

func (s *Store) FindScoresForDate(ctx context.Context, date string) ([]domain.ComfortIndexRecord, error) {
	out, err := queryDocs[domain.ComfortIndexRecord](ctx, s.db,
		`SELECT doc FROM comfort_index WHERE date = ? ORDER BY unit_id`, date)
	if err != nil {
		return nil, fmt.Errorf("find scores for %s: %w", date, err)
	}
	return out, nil
}

func (s *Store) FindScoresInRange(ctx context.Context, unitID string, r domain.DateRange) ([]domain.ComfortIndexRecord, error) {
	out, err := queryDocs[domain.ComfortIndexRecord](ctx, s.db,
		`SELECT doc FROM comfort_index WHERE unit_id = ? AND date BETWEEN ? AND ? ORDER BY date`, unitID, r.From, r.To)
	if err != nil {
		return nil, fmt.Errorf("find scores in range: %w", err)
	}
	return out, nil
}

func (s *Store) SaveScore(ctx context.Context, rec domain.ComfortIndexRecord) error {
	return s.exec(ctx, "score",
		`INSERT INTO comfort_index (unit_id, date, created_at, doc) VALUES (?, ?, ?, ?)
		 ON CONFLICT (unit_id, date) DO UPDATE SET created_at = excluded.created_at, doc = excluded.doc`,
		rec, rec.UnitID, rec.Date, rec.CreatedAt.UnixNano())
}

func (s *Store) SaveIntervention(ctx context.Context, iv domain.Intervention) error {
	return s.exec(ctx, "intervention",
		`INSERT INTO interventions (id, unit_id, start_date, created_at, doc) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET unit_id = excluded.unit_id, start_date = excluded.start_date,
		 created_at = excluded.created_at, doc = excluded.doc`,
		iv, iv.ID, iv.UnitID, iv.StartDate, iv.CreatedAt.UnixNano())
}

func (s *Store) FindIntervention(ctx context.Context, id string) (domain.Intervention, error) {
	return getDoc[domain.Intervention](ctx, s.db, fmt.Sprintf("intervention %q", id),
		`SELECT doc FROM interventions WHERE id = ?`, id)
}

func (s *Store) ListInterventions(ctx context.Context, unitID string, limit int) ([]domain.Intervention, error) {
	if limit <= 0 {
		limit = -1
	}
	out, err := queryDocs[domain.Intervention](ctx, s.db,
		`SELECT doc FROM interventions WHERE (? = '' OR unit_id = ?)
		 ORDER BY start_date DESC, created_at DESC, id LIMIT ?`, unitID, unitID, limit)
	if err != nil {
		return nil, fmt.Errorf("list interventions: %w", err)
	}
	return out, nil
}

func (s *Store) FindBaselineMetric(ctx context.Context, period, category string) (domain.BaselineMetric, error) {
	return getDoc[domain.BaselineMetric](ctx, s.db, fmt.Sprintf("baseline %s/%s", period, category),
		`SELECT doc FROM baseline_metrics WHERE period = ? AND category = ?`, period, category)
}

func (s *Store) SaveBaselineMetric(ctx context.Context, b domain.BaselineMetric) error {
	return s.exec(ctx, "baseline",
		`INSERT INTO baseline_metrics (period, category, doc) VALUES (?, ?, ?)
		 ON CONFLICT (period, category) DO UPDATE SET doc = excluded.doc`, b, b.Period, b.Category)
}

func (s *Store) SaveAnomaly(ctx context.Context, a domain.AnomalyResult) error {
	return s.exec(ctx, "anomaly",
		`INSERT INTO anomalies (unit_id, date, doc) VALUES (?, ?, ?)
		 ON CONFLICT (unit_id, date) DO UPDATE SET doc = excluded.doc`, a, a.UnitID, a.Date)
}

func (s *Store) FindAnomaly(ctx context.Context, unitID, date string) (domain.AnomalyResult, error) {
	return getDoc[domain.AnomalyResult](ctx, s.db, fmt.Sprintf("anomaly for %q on %s", unitID, date),
		`SELECT doc FROM anomalies WHERE unit_id = ? AND date = ?`, unitID, date)
}

func (s *Store) FindLatestAnomaly(ctx context.Context, unitID string) (domain.AnomalyResult, error) {
	return getDoc[domain.AnomalyResult](ctx, s.db, fmt.Sprintf("anomaly for %q", unitID),
		`SELECT doc FROM anomalies WHERE unit_id = ? ORDER BY date DESC LIMIT 1`, unitID)
}

func (s *Store) FindAnomalies(ctx context.Context, date, unitID string) ([]domain.AnomalyResult, error) {
	out, err := queryDocs[domain.AnomalyResult](ctx, s.db,
		`SELECT doc FROM anomalies WHERE (? = '' OR date = ?) AND (? = '' OR unit_id = ?)
		 ORDER BY date DESC, unit_id`, date, date, unitID, unitID)
	if err != nil {
		return nil, fmt.Errorf("find anomalies: %w", err)
	}
	return out, nil
}

var _ domain.Repository = (*Store)(nil)
