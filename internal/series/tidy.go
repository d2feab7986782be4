package series

import (
	"sort"
	"time"
)

// TidyRow is one (country, date) observation of a single metric.
type TidyRow struct {
	ISO3  string    `json:"iso3"`
	Name  string    `json:"name"`
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// TidyMostRecent melts the latest date of a block into rows sorted by value
// descending, then ISO3.
func TidyMostRecent(b *Block) []TidyRow {
	if b.Len() == 0 {
		return nil
	}
	last := b.Len() - 1
	date := b.Dates[last]

	rows := make([]TidyRow, len(b.Columns))
	for c, k := range b.Columns {
		rows[c] = TidyRow{ISO3: k.ISO3, Name: k.Name, Date: date, Value: b.Values[c][last]}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Value != rows[j].Value {
			return rows[i].Value > rows[j].Value
		}
		return rows[i].ISO3 < rows[j].ISO3
	})
	return rows
}

// MostAffected returns the n countries with the highest latest value.
func MostAffected(b *Block, n int) []TidyRow {
	rows := TidyMostRecent(b)
	if n >= 0 && n < len(rows) {
		rows = rows[:n]
	}
	return rows
}
