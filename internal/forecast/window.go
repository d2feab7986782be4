// Package forecast extrapolates case counts with a weighted least-squares fit
// of log counts over a trailing window of days.
package forecast

import (
	"fmt"
	"math"

	"github.com/rotisserie/eris"

	"github.com/covid19-dash/casecast/internal/config"
)

// Window is the trailing set of day weights used for a fit plus the number
// of days to extrapolate past it. Weights are non-negative and sum to 1;
// the last weight belongs to the most recent day.
type Window struct {
	Name    string    `json:"name"`
	Weights []float64 `json:"weights"`
	Horizon int       `json:"horizon"`
}

// NewWindow validates and normalizes weights.
func NewWindow(name string, weights []float64, horizon int) (Window, error) {
	if len(weights) == 0 {
		return Window{}, eris.New("forecast: window needs at least one weight")
	}
	if horizon < 0 {
		return Window{}, eris.Errorf("forecast: horizon must be >= 0, got %d", horizon)
	}
	var sum float64
	for i, w := range weights {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return Window{}, eris.Errorf("forecast: weight %d is %v", i, w)
		}
		sum += w
	}
	if sum == 0 {
		return Window{}, eris.New("forecast: window weights sum to zero")
	}
	norm := make([]float64, len(weights))
	for i, w := range weights {
		norm[i] = w / sum
	}
	return Window{Name: name, Weights: norm, Horizon: horizon}, nil
}

// Size returns the number of trailing days the window covers.
func (w Window) Size() int { return len(w.Weights) }

// WithHorizon returns a copy of w predicting h days past the window.
func (w Window) WithHorizon(h int) Window {
	w.Horizon = h
	return w
}

// RampWindow weights the first middle days linearly from 0 up to 1 and the
// remaining days 1, over start days.
func RampWindow(start, middle int) (Window, error) {
	if start < 1 || middle < 0 || middle > start {
		return Window{}, eris.Errorf("forecast: invalid ramp window start=%d middle=%d", start, middle)
	}
	weights := make([]float64, start)
	for i := range weights {
		weights[i] = 1
		if i < middle {
			weights[i] = float64(i) / float64(middle)
		}
	}
	return NewWindow(fmt.Sprintf("ramp-%d-%d", start, middle), weights, 0)
}

// ExpWindow weights day i by growth^i over start days.
func ExpWindow(start int, growth float64) (Window, error) {
	if start < 1 || growth <= 0 {
		return Window{}, eris.Errorf("forecast: invalid exp window start=%d growth=%g", start, growth)
	}
	weights := make([]float64, start)
	for i := range weights {
		weights[i] = math.Pow(growth, float64(i))
	}
	return NewWindow(fmt.Sprintf("exp-%d-%g", start, growth), weights, 0)
}

// WindowFromConfig builds the serving window.
func WindowFromConfig(cfg config.ForecastConfig) (Window, error) {
	var (
		w   Window
		err error
	)
	switch cfg.WindowShape {
	case "exp":
		w, err = ExpWindow(cfg.WindowSize, cfg.Growth)
	case "ramp":
		w, err = RampWindow(cfg.WindowSize, cfg.RampMiddle)
	default:
		return Window{}, eris.Errorf("forecast: unknown window shape %q", cfg.WindowShape)
	}
	if err != nil {
		return Window{}, err
	}
	if cfg.Horizon < 0 {
		return Window{}, eris.Errorf("forecast: horizon must be >= 0, got %d", cfg.Horizon)
	}
	return w.WithHorizon(cfg.Horizon), nil
}
