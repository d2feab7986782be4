// Package series reshapes long-form case rows into a wide table: one shared
// ascending date index and, per metric, one column of values per country.
package series

import (
	"sort"
	"time"

	"github.com/covid19-dash/casecast/internal/model"
)

// Block holds every country column of one metric, aligned on the table dates.
type Block struct {
	Metric  model.Metric
	Dates   []time.Time
	Columns []model.CountryKey
	// Values[c][d] is the count of Columns[c] on Dates[d].
	Values [][]float64

	index map[model.CountryKey]int
}

// NewBlock builds a block. Every value slice must have len(dates) entries.
func NewBlock(metric model.Metric, dates []time.Time, columns []model.CountryKey, values [][]float64) *Block {
	b := &Block{Metric: metric, Dates: dates, Columns: columns, Values: values}
	b.reindex()
	return b
}

func (b *Block) reindex() {
	b.index = make(map[model.CountryKey]int, len(b.Columns))
	for i, k := range b.Columns {
		b.index[k] = i
	}
}

// Len returns the number of dates.
func (b *Block) Len() int { return len(b.Dates) }

// Series returns the values of one column.
func (b *Block) Series(key model.CountryKey) ([]float64, bool) {
	i, ok := b.index[key]
	if !ok {
		return nil, false
	}
	return b.Values[i], true
}

// Lookup finds a column by ISO3 code.
func (b *Block) Lookup(iso3 string) (model.CountryKey, bool) {
	for _, k := range b.Columns {
		if k.ISO3 == iso3 {
			return k, true
		}
	}
	return model.CountryKey{}, false
}

// LastDate returns the most recent date, or the zero time for an empty block.
func (b *Block) LastDate() time.Time {
	if len(b.Dates) == 0 {
		return time.Time{}
	}
	return b.Dates[len(b.Dates)-1]
}

// Slice returns the rows with date index in [from, to). Values share storage with b.
func (b *Block) Slice(from, to int) *Block {
	if from < 0 {
		from = 0
	}
	if to > len(b.Dates) {
		to = len(b.Dates)
	}
	if from > to {
		from = to
	}
	values := make([][]float64, len(b.Values))
	for i, col := range b.Values {
		values[i] = col[from:to:to]
	}
	return &Block{
		Metric:  b.Metric,
		Dates:   b.Dates[from:to:to],
		Columns: b.Columns,
		Values:  values,
		index:   b.index,
	}
}

// Between returns the rows dated within [from, to] inclusive.
func (b *Block) Between(from, to time.Time) *Block {
	lo := sort.Search(len(b.Dates), func(i int) bool { return !b.Dates[i].Before(from) })
	hi := sort.Search(len(b.Dates), func(i int) bool { return b.Dates[i].After(to) })
	return b.Slice(lo, hi)
}

// Select keeps only the given columns, in the given order. Unknown keys are ignored.
func (b *Block) Select(keys []model.CountryKey) *Block {
	var cols []model.CountryKey
	var values [][]float64
	for _, k := range keys {
		if i, ok := b.index[k]; ok {
			cols = append(cols, k)
			values = append(values, b.Values[i])
		}
	}
	return NewBlock(b.Metric, b.Dates, cols, values)
}
