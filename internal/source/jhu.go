package source

import (
	"context"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/covid19-dash/casecast/internal/fetcher"
	"github.com/covid19-dash/casecast/internal/model"
)

// JHU reads the Johns Hopkins CSSE global time-series tables: one wide CSV
// per metric with a country column and one column per date.
type JHU struct {
	fetcher fetcher.Fetcher
	urls    map[model.Metric]string
}

// NewJHU builds a JHU source. files maps metric names ("confirmed", "death",
// "deaths", "recovered") to file names under baseURL.
func NewJHU(f fetcher.Fetcher, baseURL string, files map[string]string) (*JHU, error) {
	if len(files) == 0 {
		return nil, eris.New("source: no files configured")
	}
	urls := make(map[model.Metric]string, len(files))
	for name, file := range files {
		m, err := model.ParseMetric(name)
		if err != nil {
			return nil, eris.Wrap(err, "source: files")
		}
		if m.IsDerived() {
			return nil, eris.Errorf("source: %s is derived and cannot be fetched", m)
		}
		urls[m] = joinLocation(baseURL, file)
	}
	return &JHU{fetcher: f, urls: urls}, nil
}

func joinLocation(base, file string) string {
	if base == "" {
		return file
	}
	if strings.HasSuffix(base, "/") {
		return base + file
	}
	return base + "/" + file
}

// Name implements Source.
func (j *JHU) Name() string { return "jhu" }

// Fingerprint implements Source.
func (j *JHU) Fingerprint() []string {
	out := make([]string, 0, len(j.urls))
	for _, m := range j.metrics() {
		out = append(out, string(m)+"="+j.urls[m])
	}
	return out
}

func (j *JHU) metrics() []model.Metric {
	var out []model.Metric
	for _, m := range model.RawMetrics() {
		if _, ok := j.urls[m]; ok {
			out = append(out, m)
		}
	}
	return out
}

// Fetch downloads every configured table. Rows are sorted by country, metric, date.
func (j *JHU) Fetch(ctx context.Context) ([]model.RawCaseRow, error) {
	log := zap.L().With(zap.String("component", "source.jhu"))

	var rows []model.RawCaseRow
	for _, m := range j.metrics() {
		url := j.urls[m]
		body, err := j.fetcher.Download(ctx, url)
		if err != nil {
			return nil, &TransportError{URL: url, Err: err}
		}
		part, err := ParseWide(ctx, body, m)
		body.Close() //nolint:errcheck
		if err != nil {
			return nil, eris.Wrapf(err, "source: parse %s", url)
		}
		log.Info("fetched table", zap.String("metric", string(m)), zap.Int("rows", len(part)))
		rows = append(rows, part...)
	}

	SortRows(rows)
	return rows, nil
}

// Country column names used across revisions of the tables.
var countryColumns = []string{"Country/Region", "Country_Region"}

const dateLayout = "1/2/06"

// ParseWide flattens one wide table. Sub-regions of a country are summed so
// each (country, date) appears once; non-date columns other than the country
// are ignored.
func ParseWide(ctx context.Context, r io.Reader, metric model.Metric) ([]model.RawCaseRow, error) {
	tbl, err := fetcher.ReadCSV(ctx, r, fetcher.CSVOptions{TrimSpace: true})
	if err != nil {
		return nil, err
	}

	countryCol := -1
	for _, name := range countryColumns {
		if i := tbl.Index(name); i >= 0 {
			countryCol = i
			break
		}
	}
	if countryCol < 0 {
		return nil, eris.New("source: no country column")
	}

	type dateCol struct {
		idx  int
		date time.Time
	}
	var dates []dateCol
	for i, h := range tbl.Header {
		if d, err := time.Parse(dateLayout, h); err == nil {
			dates = append(dates, dateCol{idx: i, date: model.Day(d)})
		}
	}
	if len(dates) == 0 {
		return nil, eris.New("source: no date columns")
	}

	type cell struct {
		country string
		date    time.Time
	}
	sums := make(map[cell]int64)
	for n, row := range tbl.Rows {
		country := fetcher.Cell(row, countryCol)
		if country == "" {
			continue
		}
		for _, dc := range dates {
			v := fetcher.Cell(row, dc.idx)
			if v == "" {
				continue
			}
			count, err := parseCount(v)
			if err != nil {
				return nil, eris.Wrapf(err, "source: row %d column %s", n+2, tbl.Header[dc.idx])
			}
			sums[cell{country, dc.date}] += count
		}
	}

	out := make([]model.RawCaseRow, 0, len(sums))
	for k, v := range sums {
		out = append(out, model.RawCaseRow{Country: k.country, Metric: metric, Date: k.date, Count: v})
	}
	SortRows(out)
	return out, nil
}

func parseCount(s string) (int64, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, eris.Wrapf(err, "parse count %q", s)
	}
	return int64(f), nil
}

// SortRows orders rows by country, metric, then date.
func SortRows(rows []model.RawCaseRow) {
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Country != b.Country {
			return a.Country < b.Country
		}
		if a.Metric != b.Metric {
			return a.Metric < b.Metric
		}
		return a.Date.Before(b.Date)
	})
}

// CountryNames returns the distinct country names in rows, sorted.
func CountryNames(rows []model.RawCaseRow) []string {
	seen := make(map[string]struct{})
	for _, r := range rows {
		seen[r.Country] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
