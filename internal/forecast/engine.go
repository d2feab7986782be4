package forecast

import (
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/covid19-dash/casecast/internal/config"
	"github.com/covid19-dash/casecast/internal/model"
	"github.com/covid19-dash/casecast/internal/series"
)

// Point is one dated value of a forecast curve.
type Point struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// CountryForecast is the fitted growth and the trimmed prediction curves for one country.
type CountryForecast struct {
	ISO3       string  `json:"iso3"`
	Name       string  `json:"name"`
	GrowthRate float64 `json:"growth_rate"`
	Prediction []Point `json:"prediction"`
	LowerBound []Point `json:"lower_bound"`
	UpperBound []Point `json:"upper_bound"`
}

// Key returns the column key of the forecast.
func (f CountryForecast) Key() model.CountryKey {
	return model.CountryKey{ISO3: f.ISO3, Name: f.Name}
}

// Skip records a country left out of a batch.
type Skip struct {
	ISO3   string `json:"iso3"`
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// Result is the outcome of forecasting a whole block.
type Result struct {
	Forecasts []CountryForecast `json:"forecasts"`
	Skipped   []Skip            `json:"skipped,omitempty"`
	// BelowThreshold counts countries left out of a display batch for weak signal.
	BelowThreshold int `json:"below_threshold,omitempty"`
}

// Default engine settings.
const (
	DefaultHistoryDays      = 10
	DefaultDisplayThreshold = 50
)

// Engine fits every country of a block with one window.
type Engine struct {
	Window          Window
	ConfidenceLevel float64
	// HistoryDays is how many in-window days are kept before the last observation.
	HistoryDays int
	// DisplayThreshold is the minimum latest count for ForDisplay.
	DisplayThreshold float64
}

// NewEngine creates an Engine with default settings.
func NewEngine(w Window) *Engine {
	return &Engine{
		Window:           w,
		ConfidenceLevel:  DefaultConfidenceLevel,
		HistoryDays:      DefaultHistoryDays,
		DisplayThreshold: DefaultDisplayThreshold,
	}
}

// EngineFromConfig builds the serving engine.
func EngineFromConfig(cfg config.ForecastConfig) (*Engine, error) {
	w, err := WindowFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	e := NewEngine(w)
	if cfg.ConfidenceLevel > 0 {
		e.ConfidenceLevel = cfg.ConfidenceLevel
	}
	if cfg.HistoryDays > 0 {
		e.HistoryDays = cfg.HistoryDays
	}
	if cfg.DisplayThreshold > 0 {
		e.DisplayThreshold = cfg.DisplayThreshold
	}
	return e, nil
}

// ForecastCountry fits one column. Curves start HistoryDays before the last
// observation (or at the window start for shorter windows) and run through
// the horizon.
func (e *Engine) ForecastCountry(b *series.Block, key model.CountryKey) (CountryForecast, error) {
	values, ok := b.Series(key)
	if !ok {
		return CountryForecast{}, eris.Errorf("forecast: no column %s in %s block", key.ISO3, b.Metric)
	}

	m, err := FitAt(values, e.Window, e.ConfidenceLevel)
	if err != nil {
		var ih *InsufficientHistoryError
		if errors.As(err, &ih) {
			ih.ISO3 = key.ISO3
			return CountryForecast{}, ih
		}
		return CountryForecast{}, err
	}

	n := e.Window.Size()
	start := b.Dates[len(b.Dates)-n]
	keep := min(n, e.HistoryDays)
	if keep < 0 {
		keep = 0
	}
	first := n - keep
	last := n + e.Window.Horizon

	f := CountryForecast{
		ISO3:       key.ISO3,
		Name:       key.Name,
		GrowthRate: m.GrowthRate(),
		Prediction: make([]Point, 0, last-first),
		LowerBound: make([]Point, 0, last-first),
		UpperBound: make([]Point, 0, last-first),
	}
	for t := first; t < last; t++ {
		date := start.AddDate(0, 0, t)
		f.Prediction = append(f.Prediction, Point{Date: date, Value: m.Predict(t)})
		f.LowerBound = append(f.LowerBound, Point{Date: date, Value: m.Lower(t)})
		f.UpperBound = append(f.UpperBound, Point{Date: date, Value: m.Upper(t)})
	}
	return f, nil
}

// Forecast fits every column of the block. Countries with insufficient
// history are skipped and logged; any other failure aborts.
func (e *Engine) Forecast(b *series.Block) (*Result, error) {
	log := zap.L().With(zap.String("component", "forecast"), zap.String("window", e.Window.Name))

	res := &Result{}
	for _, key := range b.Columns {
		f, err := e.ForecastCountry(b, key)
		if err != nil {
			var ih *InsufficientHistoryError
			if errors.As(err, &ih) {
				log.Info("skipping country", zap.String("iso3", key.ISO3), zap.Error(err))
				res.Skipped = append(res.Skipped, Skip{ISO3: key.ISO3, Name: key.Name, Reason: err.Error()})
				continue
			}
			return nil, err
		}
		res.Forecasts = append(res.Forecasts, f)
	}

	log.Debug("forecast complete",
		zap.Int("forecasts", len(res.Forecasts)),
		zap.Int("skipped", len(res.Skipped)),
	)
	return res, nil
}

// ForDisplay forecasts only countries whose latest count reaches DisplayThreshold.
func (e *Engine) ForDisplay(b *series.Block) (*Result, error) {
	if b.Len() == 0 {
		return &Result{}, nil
	}
	last := b.Len() - 1
	var keep []model.CountryKey
	below := 0
	for c, key := range b.Columns {
		if b.Values[c][last] >= e.DisplayThreshold {
			keep = append(keep, key)
		} else {
			below++
		}
	}

	res, err := e.Forecast(b.Select(keep))
	if err != nil {
		return nil, err
	}
	res.BelowThreshold = below
	return res, nil
}
