package store

import (
	"slices"
	"time"

	"github.com/rotisserie/eris"

	"github.com/covid19-dash/casecast/internal/forecast"
	"github.com/covid19-dash/casecast/internal/model"
	"github.com/covid19-dash/casecast/internal/population"
)

// Column is one country curve of a Table.
type Column struct {
	ISO3   string    `json:"iso3"`
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
}

// Table is a wide curve table: one value per date per column.
type Table struct {
	Dates   []time.Time `json:"dates"`
	Columns []Column    `json:"columns"`
}

// Column returns the column for iso3.
func (t Table) Column(iso3 string) (Column, bool) {
	for _, c := range t.Columns {
		if c.ISO3 == iso3 {
			return c, true
		}
	}
	return Column{}, false
}

func (t Table) validate(name string) error {
	for _, c := range t.Columns {
		if len(c.Values) != len(t.Dates) {
			return eris.Errorf("store: %s column %s has %d values for %d dates", name, c.ISO3, len(c.Values), len(t.Dates))
		}
	}
	return nil
}

// GrowthRate is the fitted daily growth factor of one country.
type GrowthRate struct {
	ISO3 string  `json:"iso3"`
	Name string  `json:"name"`
	Rate float64 `json:"rate"`
}

// Artifact is the persisted output of one refresh. It is written whole and
// replaces the previous one.
type Artifact struct {
	RunID       string                  `json:"run_id"`
	RunDate     time.Time               `json:"run_date"` // last observed date
	GeneratedAt time.Time               `json:"generated_at"`
	Metric      model.Metric            `json:"metric"`
	Window      forecast.Window         `json:"window"`
	GrowthRates []GrowthRate            `json:"growth_rates"`
	Prediction  Table                   `json:"prediction"`
	LowerBound  Table                   `json:"lower_bound"`
	UpperBound  Table                   `json:"upper_bound"`
	Snapshot    []population.Row        `json:"snapshot"`
	Countries   []model.CountryIdentity `json:"countries,omitempty"`
	Skipped     []forecast.Skip         `json:"skipped,omitempty"`
}

// NewArtifact lays out forecasts as curve tables. Every forecast must share
// the same dates, which holds for forecasts of one block with one window.
func NewArtifact(runID string, runDate time.Time, metric model.Metric, w forecast.Window, res *forecast.Result) (*Artifact, error) {
	a := &Artifact{
		RunID:   runID,
		RunDate: runDate,
		Metric:  metric,
		Window:  w,
		Skipped: res.Skipped,
	}
	if len(res.Forecasts) > 0 {
		dates := pointDates(res.Forecasts[0].Prediction)
		a.Prediction.Dates = dates
		a.LowerBound.Dates = dates
		a.UpperBound.Dates = dates
	}

	for _, f := range res.Forecasts {
		if !slices.EqualFunc(pointDates(f.Prediction), a.Prediction.Dates, time.Time.Equal) {
			return nil, eris.Errorf("store: forecast dates of %s differ from the batch", f.ISO3)
		}
		a.GrowthRates = append(a.GrowthRates, GrowthRate{ISO3: f.ISO3, Name: f.Name, Rate: f.GrowthRate})
		a.Prediction.Columns = append(a.Prediction.Columns, column(f, f.Prediction))
		a.LowerBound.Columns = append(a.LowerBound.Columns, column(f, f.LowerBound))
		a.UpperBound.Columns = append(a.UpperBound.Columns, column(f, f.UpperBound))
	}
	return a, nil
}

func pointDates(pts []forecast.Point) []time.Time {
	out := make([]time.Time, len(pts))
	for i, p := range pts {
		out[i] = p.Date
	}
	return out
}

func column(f forecast.CountryForecast, pts []forecast.Point) Column {
	c := Column{ISO3: f.ISO3, Name: f.Name, Values: make([]float64, len(pts))}
	for i, p := range pts {
		c.Values[i] = p.Value
	}
	return c
}

// Validate checks that every curve column matches its table dates.
func (a *Artifact) Validate() error {
	if a.RunID == "" {
		return eris.New("store: artifact has no run id")
	}
	for name, t := range map[string]Table{"prediction": a.Prediction, "lower_bound": a.LowerBound, "upper_bound": a.UpperBound} {
		if err := t.validate(name); err != nil {
			return err
		}
	}
	return nil
}

// Forecast reassembles the forecast of one country.
func (a *Artifact) Forecast(iso3 string) (forecast.CountryForecast, bool) {
	pred, ok := a.Prediction.Column(iso3)
	if !ok {
		return forecast.CountryForecast{}, false
	}
	lower, _ := a.LowerBound.Column(iso3)
	upper, _ := a.UpperBound.Column(iso3)

	f := forecast.CountryForecast{
		ISO3:       pred.ISO3,
		Name:       pred.Name,
		Prediction: points(a.Prediction.Dates, pred.Values),
		LowerBound: points(a.LowerBound.Dates, lower.Values),
		UpperBound: points(a.UpperBound.Dates, upper.Values),
	}
	for _, g := range a.GrowthRates {
		if g.ISO3 == iso3 {
			f.GrowthRate = g.Rate
			break
		}
	}
	return f, true
}

func points(dates []time.Time, values []float64) []forecast.Point {
	n := min(len(dates), len(values))
	out := make([]forecast.Point, n)
	for i := range n {
		out[i] = forecast.Point{Date: dates[i], Value: values[i]}
	}
	return out
}
