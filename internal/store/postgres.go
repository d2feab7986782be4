package store

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/covid19-dash/casecast/internal/db"
	"github.com/covid19-dash/casecast/internal/model"
	"github.com/covid19-dash/casecast/internal/population"
)

// Schema holds every casecast table.
const Schema = "casecast"

//go:embed migrations/*.sql
var migrationFS embed.FS

// Curve kinds stored in curve_points.
const (
	kindPrediction = "prediction"
	kindLower      = "lower"
	kindUpper      = "upper"
)

type kindTable struct {
	kind  string
	table *Table
}

func (a *Artifact) curves() []kindTable {
	return []kindTable{
		{kindPrediction, &a.Prediction},
		{kindLower, &a.LowerBound},
		{kindUpper, &a.UpperBound},
	}
}

// PostgresStore keeps the artifact in Postgres tables.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres connects to Postgres.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, connString, nil)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying pool, shared with the run log.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

// Migrate applies the embedded migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return db.Migrate(ctx, s.pool, migrationFS, "migrations", Schema)
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Save replaces the stored artifact inside one transaction.
func (s *PostgresStore) Save(ctx context.Context, a *Artifact) error {
	if err := a.Validate(); err != nil {
		return err
	}
	windowJSON, err := json.Marshal(a.Window)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal window")
	}
	skippedJSON, err := json.Marshal(a.Skipped)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal skipped")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin save")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`TRUNCATE casecast.artifact, casecast.curve_points, casecast.growth_rates, casecast.snapshot`,
	); err != nil {
		return eris.Wrap(err, "postgres: clear artifact")
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO casecast.artifact (run_id, run_date, generated_at, metric, window_spec, skipped)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		a.RunID, a.RunDate, a.GeneratedAt, string(a.Metric), windowJSON, skippedJSON,
	); err != nil {
		return eris.Wrap(err, "postgres: insert artifact")
	}

	var points [][]any
	for _, kt := range a.curves() {
		kind, t := kt.kind, kt.table
		for _, c := range t.Columns {
			for d, v := range c.Values {
				points = append(points, []any{kind, c.ISO3, c.Name, t.Dates[d], v})
			}
		}
	}
	if _, err := db.CopyFrom(ctx, tx, Schema, "curve_points", []string{"kind", "iso3", "name", "day", "value"}, points); err != nil {
		return err
	}

	rates := make([][]any, len(a.GrowthRates))
	for i, g := range a.GrowthRates {
		rates[i] = []any{g.ISO3, g.Name, g.Rate}
	}
	if _, err := db.CopyFrom(ctx, tx, Schema, "growth_rates", []string{"iso3", "name", "rate"}, rates); err != nil {
		return err
	}

	snap := make([][]any, len(a.Snapshot))
	for i, r := range a.Snapshot {
		snap[i] = []any{r.ISO3, r.Name, r.Date, r.Value, r.Population, r.PerCapita}
	}
	if _, err := db.CopyFrom(ctx, tx, Schema, "snapshot", []string{"iso3", "name", "day", "value", "population", "per_capita"}, snap); err != nil {
		return err
	}

	ids := make([][]any, len(a.Countries))
	for i, c := range a.Countries {
		ids[i] = []any{c.ISO3, c.ISO2, c.Name, c.Population, c.Lat, c.Long}
	}
	if _, err := db.BulkUpsert(ctx, tx, db.UpsertConfig{
		Table:        Schema + ".countries",
		Columns:      []string{"iso3", "iso2", "name", "population", "lat", "long"},
		ConflictKeys: []string{"iso3"},
	}, ids); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "postgres: commit save")
	}

	zap.L().With(zap.String("component", "store")).Info("artifact saved",
		zap.String("run_id", a.RunID),
		zap.Int("curve_points", len(points)),
	)
	return nil
}

// Load reads the stored artifact back.
func (s *PostgresStore) Load(ctx context.Context) (*Artifact, error) {
	var (
		a          Artifact
		metric     string
		windowJSON []byte
		skipped    []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT run_id::text, run_date, generated_at, metric, window_spec, skipped FROM casecast.artifact LIMIT 1`,
	).Scan(&a.RunID, &a.RunDate, &a.GeneratedAt, &metric, &windowJSON, &skipped)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrap(err, "postgres: load artifact")
	}
	a.Metric = model.Metric(metric)
	if err := json.Unmarshal(windowJSON, &a.Window); err != nil {
		return nil, eris.Wrap(err, "postgres: decode window")
	}
	if len(skipped) > 0 {
		if err := json.Unmarshal(skipped, &a.Skipped); err != nil {
			return nil, eris.Wrap(err, "postgres: decode skipped")
		}
	}

	if a.GrowthRates, err = s.loadGrowthRates(ctx); err != nil {
		return nil, err
	}
	if err := s.loadCurves(ctx, &a); err != nil {
		return nil, err
	}
	if a.Snapshot, err = s.loadSnapshot(ctx); err != nil {
		return nil, err
	}
	if a.Countries, err = s.loadCountries(ctx); err != nil {
		return nil, err
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *PostgresStore) loadGrowthRates(ctx context.Context) ([]GrowthRate, error) {
	rows, err := s.pool.Query(ctx, `SELECT iso3, name, rate FROM casecast.growth_rates ORDER BY iso3, name`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query growth rates")
	}
	defer rows.Close()

	var out []GrowthRate
	for rows.Next() {
		var g GrowthRate
		if err := rows.Scan(&g.ISO3, &g.Name, &g.Rate); err != nil {
			return nil, eris.Wrap(err, "postgres: scan growth rate")
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *PostgresStore) loadCurves(ctx context.Context, a *Artifact) error {
	rows, err := s.pool.Query(ctx,
		`SELECT kind, iso3, name, day, value FROM casecast.curve_points ORDER BY kind, iso3, name, day`,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: query curve points")
	}
	defer rows.Close()

	tables := make(map[string]*Table, 3)
	for _, kt := range a.curves() {
		tables[kt.kind] = kt.table
	}
	for rows.Next() {
		var (
			kind, iso3, name string
			day              time.Time
			value            float64
		)
		if err := rows.Scan(&kind, &iso3, &name, &day, &value); err != nil {
			return eris.Wrap(err, "postgres: scan curve point")
		}
		t, ok := tables[kind]
		if !ok {
			return eris.Errorf("postgres: unknown curve kind %q", kind)
		}
		n := len(t.Columns)
		if n == 0 || t.Columns[n-1].ISO3 != iso3 || t.Columns[n-1].Name != name {
			t.Columns = append(t.Columns, Column{ISO3: iso3, Name: name})
			n++
		}
		col := &t.Columns[n-1]
		if n == 1 {
			t.Dates = append(t.Dates, day)
		}
		col.Values = append(col.Values, value)
	}
	return rows.Err()
}

func (s *PostgresStore) loadSnapshot(ctx context.Context) ([]population.Row, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT iso3, name, day, value, population, per_capita FROM casecast.snapshot ORDER BY value DESC, iso3`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query snapshot")
	}
	defer rows.Close()

	var out []population.Row
	for rows.Next() {
		var r population.Row
		if err := rows.Scan(&r.ISO3, &r.Name, &r.Date, &r.Value, &r.Population, &r.PerCapita); err != nil {
			return nil, eris.Wrap(err, "postgres: scan snapshot row")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) loadCountries(ctx context.Context) ([]model.CountryIdentity, error) {
	rows, err := s.pool.Query(ctx, `SELECT iso3, iso2, name, population, lat, long FROM casecast.countries ORDER BY iso3`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query countries")
	}
	defer rows.Close()

	var out []model.CountryIdentity
	for rows.Next() {
		var c model.CountryIdentity
		if err := rows.Scan(&c.ISO3, &c.ISO2, &c.Name, &c.Population, &c.Lat, &c.Long); err != nil {
			return nil, eris.Wrap(err, "postgres: scan country")
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Store = (*FileStore)(nil)
)
