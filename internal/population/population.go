// Package population scales case counts by population size.
package population

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/covid19-dash/casecast/internal/config"
	"github.com/covid19-dash/casecast/internal/fetcher"
	"github.com/covid19-dash/casecast/internal/model"
	"github.com/covid19-dash/casecast/internal/series"
)

// DefaultPer is the per-capita denominator used when none is configured.
const DefaultPer = 100000

// Columns names the ISO3 and population columns of a population file.
type Columns struct {
	ISO3  string
	Value string
}

// Table maps ISO3 codes to population counts.
type Table map[string]int64

// FromIdentities collects the known populations of the reference set.
func FromIdentities(ids []model.CountryIdentity) Table {
	t := make(Table, len(ids))
	for _, id := range ids {
		if id.Population > 0 {
			t[id.ISO3] = id.Population
		}
	}
	return t
}

// Merge copies every entry of other into t, replacing existing ones.
func (t Table) Merge(other Table) {
	for k, v := range other {
		t[k] = v
	}
}

// LoadCSV reads a population table from CSV.
func LoadCSV(ctx context.Context, r io.Reader, cols Columns) (Table, error) {
	tbl, err := fetcher.ReadCSV(ctx, r, fetcher.CSVOptions{LazyQuotes: true})
	if err != nil {
		return nil, eris.Wrap(err, "population: read csv")
	}
	return fromTable(tbl, cols)
}

// LoadXLSX reads a population table from the first sheet of an XLSX file.
// Leading rows before the header are skipped with opts.SkipRows.
func LoadXLSX(path string, cols Columns, opts fetcher.XLSXOptions) (Table, error) {
	tbl, err := fetcher.ReadXLSX(path, opts)
	if err != nil {
		return nil, eris.Wrap(err, "population: read xlsx")
	}
	return fromTable(tbl, cols)
}

// Load builds the population table of a refresh: the reference populations,
// overlaid with the configured file when there is one.
func Load(ctx context.Context, cfg config.PopulationConfig, ids []model.CountryIdentity) (Table, error) {
	t := FromIdentities(ids)
	if cfg.Path == "" {
		return t, nil
	}

	cols := Columns{ISO3: cfg.ISO3Column, Value: cfg.ValueColumn}
	var (
		file Table
		err  error
	)
	switch strings.ToLower(filepath.Ext(cfg.Path)) {
	case ".xlsx":
		file, err = LoadXLSX(cfg.Path, cols, fetcher.XLSXOptions{SkipRows: cfg.SkipRows})
	default:
		var f *os.File
		f, err = os.Open(cfg.Path)
		if err != nil {
			return nil, eris.Wrapf(err, "population: open %s", cfg.Path)
		}
		defer f.Close() //nolint:errcheck
		file, err = LoadCSV(ctx, f, cols)
	}
	if err != nil {
		return nil, err
	}

	zap.L().With(zap.String("component", "population")).Info("loaded population file",
		zap.String("path", cfg.Path),
		zap.Int("entries", len(file)),
	)
	t.Merge(file)
	return t, nil
}

func fromTable(tbl *fetcher.Table, cols Columns) (Table, error) {
	isoIdx := tbl.Index(cols.ISO3)
	if isoIdx < 0 {
		return nil, eris.Errorf("population: missing column %q", cols.ISO3)
	}
	valIdx := tbl.Index(cols.Value)
	if valIdx < 0 {
		return nil, eris.Errorf("population: missing column %q", cols.Value)
	}

	t := make(Table, len(tbl.Rows))
	for i, row := range tbl.Rows {
		iso3 := strings.ToUpper(strings.TrimSpace(fetcher.Cell(row, isoIdx)))
		raw := strings.ReplaceAll(strings.TrimSpace(fetcher.Cell(row, valIdx)), ",", "")
		if iso3 == "" || raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, eris.Wrapf(err, "population: row %d: bad value %q", i+2, raw)
		}
		if v <= 0 {
			continue
		}
		t[iso3] = int64(v)
	}
	return t, nil
}

// PerCapita returns a copy of b scaled to counts per `per` inhabitants.
// Columns without a known population are dropped and returned.
func PerCapita(b *series.Block, t Table, per float64) (*series.Block, []model.CountryKey) {
	if per <= 0 {
		per = DefaultPer
	}
	var (
		cols    []model.CountryKey
		values  [][]float64
		dropped []model.CountryKey
	)
	for c, key := range b.Columns {
		pop, ok := t[key.ISO3]
		if !ok || pop <= 0 {
			dropped = append(dropped, key)
			continue
		}
		scale := per / float64(pop)
		col := make([]float64, len(b.Values[c]))
		for d, v := range b.Values[c] {
			col[d] = v * scale
		}
		cols = append(cols, key)
		values = append(values, col)
	}
	return series.NewBlock(b.Metric, b.Dates, cols, values), dropped
}

// Row is a tidy snapshot row with its population attached.
type Row struct {
	series.TidyRow
	Population int64    `json:"population,omitempty"`
	PerCapita  *float64 `json:"per_capita,omitempty"`
}

// Annotate attaches population and per-capita values to rows. Rows without
// a known population keep a nil PerCapita.
func Annotate(rows []series.TidyRow, t Table, per float64) []Row {
	if per <= 0 {
		per = DefaultPer
	}
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = Row{TidyRow: r}
		if pop, ok := t[r.ISO3]; ok && pop > 0 {
			v := r.Value * per / float64(pop)
			out[i].Population = pop
			out[i].PerCapita = &v
		}
	}
	return out
}

// Missing returns the sorted ISO3 codes of ids with no population in t.
func Missing(t Table, ids []model.CountryIdentity) []string {
	var out []string
	for _, id := range ids {
		if t[id.ISO3] <= 0 {
			out = append(out, id.ISO3)
		}
	}
	sort.Strings(out)
	return out
}
