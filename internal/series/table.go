package series

import (
	"math"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/covid19-dash/casecast/internal/model"
)

// Resolver maps raw country names to identities. Excluded names are absent
// from the result; unresolved names fail the whole call.
type Resolver interface {
	ResolveAll(rawNames []string) (map[string]model.CountryIdentity, error)
}

// Table is the wide table: one block per metric over a shared date index and
// a shared column set.
type Table struct {
	Dates  []time.Time
	blocks map[model.Metric]*Block
	order  []model.Metric
}

type cellKey struct {
	metric  model.Metric
	country model.CountryKey
	date    time.Time
}

// Build resolves, aggregates and pivots rows into a Table. Missing days are
// forward-filled, leading gaps become 0, and the active block is derived
// whenever confirmed counts are present.
func Build(rows []model.RawCaseRow, resolver Resolver) (*Table, error) {
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		names = append(names, r.Country)
	}
	identities, err := resolver.ResolveAll(names)
	if err != nil {
		return nil, err
	}

	sums := make(map[cellKey]float64, len(rows))
	dateSet := make(map[time.Time]struct{})
	colSet := make(map[model.CountryKey]struct{})
	metricSet := make(map[model.Metric]struct{})
	dropped := 0
	for _, r := range rows {
		id, ok := identities[r.Country]
		if !ok {
			dropped++
			continue
		}
		if r.Metric.IsDerived() {
			return nil, eris.Errorf("series: source row carries derived metric %s", r.Metric)
		}
		d := model.Day(r.Date)
		k := id.Key()
		sums[cellKey{r.Metric, k, d}] += float64(r.Count)
		dateSet[d] = struct{}{}
		colSet[k] = struct{}{}
		metricSet[r.Metric] = struct{}{}
	}
	if dropped > 0 {
		zap.L().Debug("series: dropped excluded rows", zap.Int("rows", dropped))
	}

	t := &Table{blocks: make(map[model.Metric]*Block)}
	for d := range dateSet {
		t.Dates = append(t.Dates, d)
	}
	sort.Slice(t.Dates, func(i, j int) bool { return t.Dates[i].Before(t.Dates[j]) })

	columns := make([]model.CountryKey, 0, len(colSet))
	for k := range colSet {
		columns = append(columns, k)
	}
	sortKeys(columns)

	for _, m := range model.RawMetrics() {
		if _, ok := metricSet[m]; !ok {
			continue
		}
		values := make([][]float64, len(columns))
		for c, k := range columns {
			col := make([]float64, len(t.Dates))
			for d, date := range t.Dates {
				v, ok := sums[cellKey{m, k, date}]
				if !ok {
					v = math.NaN()
				}
				col[d] = v
			}
			fill(col)
			values[c] = col
		}
		t.add(NewBlock(m, t.Dates, columns, values))
	}

	if confirmed, ok := t.blocks[model.MetricConfirmed]; ok {
		t.add(deriveActive(confirmed, t.blocks[model.MetricDeath], t.blocks[model.MetricRecovered]))
	}
	return t, nil
}

// fill forward-fills NaN gaps and zeroes the leading ones.
func fill(col []float64) {
	last := 0.0
	for i, v := range col {
		if math.IsNaN(v) {
			col[i] = last
			continue
		}
		last = v
	}
}

// deriveActive computes confirmed - (death + recovered); absent blocks count as 0.
func deriveActive(confirmed, death, recovered *Block) *Block {
	values := make([][]float64, len(confirmed.Columns))
	for c := range confirmed.Columns {
		col := make([]float64, len(confirmed.Dates))
		copy(col, confirmed.Values[c])
		for _, b := range []*Block{death, recovered} {
			if b == nil {
				continue
			}
			for d, v := range b.Values[c] {
				col[d] -= v
			}
		}
		values[c] = col
	}
	return NewBlock(model.MetricActive, confirmed.Dates, confirmed.Columns, values)
}

func sortKeys(keys []model.CountryKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].ISO3 != keys[j].ISO3 {
			return keys[i].ISO3 < keys[j].ISO3
		}
		return keys[i].Name < keys[j].Name
	})
}

func (t *Table) add(b *Block) {
	t.blocks[b.Metric] = b
	t.order = append(t.order, b.Metric)
}

// Block returns the block for a metric.
func (t *Table) Block(m model.Metric) (*Block, error) {
	b, ok := t.blocks[m]
	if !ok {
		return nil, eris.Errorf("series: no %s block", m)
	}
	return b, nil
}

// Metrics returns the metrics present, raw ones first then derived.
func (t *Table) Metrics() []model.Metric {
	out := make([]model.Metric, len(t.order))
	copy(out, t.order)
	return out
}

// Columns returns every composite column key in block order.
func (t *Table) Columns() []model.SeriesKey {
	var out []model.SeriesKey
	for _, m := range t.order {
		for _, k := range t.blocks[m].Columns {
			out = append(out, model.SeriesKey{Metric: m, ISO3: k.ISO3, Name: k.Name})
		}
	}
	return out
}

// Validate checks the table invariants against the identity set: ascending
// unique dates, every block covering the same columns, every ISO3 known.
func (t *Table) Validate(identities []model.CountryIdentity) error {
	for i := 1; i < len(t.Dates); i++ {
		if !t.Dates[i].After(t.Dates[i-1]) {
			return eris.Errorf("series: dates not strictly increasing at %s", t.Dates[i].Format(time.DateOnly))
		}
	}

	known := make(map[string]struct{}, len(identities))
	for _, id := range identities {
		known[id.ISO3] = struct{}{}
	}

	var ref []model.CountryKey
	for _, m := range t.order {
		b := t.blocks[m]
		if ref == nil {
			ref = b.Columns
		} else if !sameKeys(ref, b.Columns) {
			return eris.Errorf("series: %s block columns differ from %s block", m, t.order[0])
		}
		for c, k := range b.Columns {
			if _, ok := known[k.ISO3]; !ok {
				return eris.Errorf("series: unknown iso3 %q in %s block", k.ISO3, m)
			}
			if len(b.Values[c]) != len(t.Dates) {
				return eris.Errorf("series: %s/%s has %d values for %d dates", m, k.ISO3, len(b.Values[c]), len(t.Dates))
			}
		}
	}
	return nil
}

func sameKeys(a, b []model.CountryKey) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
