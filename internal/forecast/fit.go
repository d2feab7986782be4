package forecast

import (
	"fmt"
	"math"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultConfidenceLevel is the two-sided level of the slope interval (interquartile).
const DefaultConfidenceLevel = 0.75

// InsufficientHistoryError is returned when a series is shorter than the window.
type InsufficientHistoryError struct {
	ISO3 string
	Have int
	Need int
}

func (e *InsufficientHistoryError) Error() string {
	if e.ISO3 == "" {
		return fmt.Sprintf("forecast: insufficient history: have %d observations, need %d", e.Have, e.Need)
	}
	return fmt.Sprintf("forecast: insufficient history for %s: have %d observations, need %d", e.ISO3, e.Have, e.Need)
}

// Model is a log-linear fit over one window: log(count) = Intercept + Slope*t
// with t = 0 on the first window day.
type Model struct {
	Intercept  float64 `json:"intercept"`
	Slope      float64 `json:"slope"`
	SlopeLower float64 `json:"slope_lower"`
	SlopeUpper float64 `json:"slope_upper"`
	// ResidualVariance is sum(w*r^2)/(n-2); 0 for degenerate fits.
	ResidualVariance float64 `json:"residual_variance"`
	Size             int     `json:"size"`
}

// GrowthRate is the fitted per-day multiplicative factor.
func (m Model) GrowthRate() float64 { return math.Exp(m.Slope) }

// Predict returns the point prediction at day offset t.
func (m Model) Predict(t int) float64 { return math.Exp(m.Intercept + m.Slope*float64(t)) }

// Lower returns the lower bound at day offset t.
func (m Model) Lower(t int) float64 { return math.Exp(m.Intercept + m.SlopeLower*float64(t)) }

// Upper returns the upper bound at day offset t.
func (m Model) Upper(t int) float64 { return math.Exp(m.Intercept + m.SlopeUpper*float64(t)) }

// logCount maps non-positive counts to 0.
func logCount(v float64) float64 {
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	return math.Log(v)
}

// Fit fits the trailing window of values at DefaultConfidenceLevel.
func Fit(values []float64, w Window) (Model, error) {
	return FitAt(values, w, DefaultConfidenceLevel)
}

// FitAt fits the trailing window of values with a two-sided Student-t
// interval on the slope at the given level. Only slope uncertainty is kept.
func FitAt(values []float64, w Window, level float64) (Model, error) {
	n := w.Size()
	if n == 0 {
		return Model{}, eris.New("forecast: empty window")
	}
	if level <= 0 || level >= 1 {
		return Model{}, eris.Errorf("forecast: confidence level must be in (0, 1), got %g", level)
	}
	if len(values) < n {
		return Model{}, &InsufficientHistoryError{Have: len(values), Need: n}
	}

	x := make([]float64, n)
	y := make([]float64, n)
	tail := values[len(values)-n:]
	for i := range n {
		x[i] = float64(i)
		y[i] = logCount(tail[i])
	}

	// stat.LinearRegression divides by sum(w)-1, which is 0 for normalized weights.
	xMean := stat.Mean(x, w.Weights)
	yMean := stat.Mean(y, w.Weights)
	var sxx, sxy float64
	for i := range n {
		dx := x[i] - xMean
		sxx += w.Weights[i] * dx * dx
		sxy += w.Weights[i] * dx * (y[i] - yMean)
	}

	m := Model{Size: n}
	if sxx == 0 {
		// All weight on a single day: no slope information.
		m.Intercept = yMean
		return m, nil
	}

	m.Slope = sxy / sxx
	m.Intercept = yMean - m.Slope*xMean
	m.SlopeLower, m.SlopeUpper = m.Slope, m.Slope
	if n <= 2 {
		return m, nil
	}

	var ssr float64
	for i := range n {
		r := y[i] - (m.Intercept + m.Slope*x[i])
		ssr += w.Weights[i] * r * r
	}
	df := float64(n - 2)
	m.ResidualVariance = ssr / df

	se := math.Sqrt(m.ResidualVariance / sxx)
	q := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}.Quantile(1 - (1-level)/2)
	m.SlopeLower = m.Slope - q*se
	m.SlopeUpper = m.Slope + q*se
	return m, nil
}
