// Package calibrate scores forecast windows by replaying the model on past
// data and measuring how far its predictions landed from what followed.
package calibrate

import (
	"errors"
	"math"

	"github.com/rotisserie/eris"

	"github.com/covid19-dash/casecast/internal/forecast"
	"github.com/covid19-dash/casecast/internal/series"
)

// Replay defaults.
const (
	DefaultThreshold = 50
	DefaultHorizon   = 4
)

// ErrNoEvaluations is returned when no cutoff had a country above the threshold.
var ErrNoEvaluations = errors.New("calibrate: no cutoff had a qualifying country")

// ReplayOptions controls one historical replay.
type ReplayOptions struct {
	// Threshold is the count every one of the last Horizon+1 observations
	// before a cutoff must exceed for a country to be scored.
	Threshold float64 `json:"threshold"`
	Horizon   int     `json:"horizon"`
}

// DefaultReplayOptions returns the threshold 50, 4 days ahead replay.
func DefaultReplayOptions() ReplayOptions {
	return ReplayOptions{Threshold: DefaultThreshold, Horizon: DefaultHorizon}
}

// Replay walks every cutoff i in [size+h, len(dates)], fits the window on
// the first i-h days and compares the h following predictions with the
// observed counts. It returns the mean absolute relative error per days
// ahead, averaged over countries and then over cutoffs.
func Replay(b *series.Block, w forecast.Window, opts ReplayOptions) ([]float64, error) {
	h := opts.Horizon
	if h < 1 {
		return nil, eris.Errorf("calibrate: horizon must be >= 1, got %d", h)
	}
	size := w.Size()
	w = w.WithHorizon(h)

	sums := make([]float64, h)
	cutoffs := 0
	for i := size + h; i <= b.Len(); i++ {
		perDay := make([]float64, h)
		scored := 0
		for c, key := range b.Columns {
			col := b.Values[c][:i]
			if !qualifies(col[i-h-1:], opts.Threshold) {
				continue
			}
			m, err := forecast.Fit(col[:i-h], w)
			if err != nil {
				return nil, eris.Wrapf(err, "calibrate: fit %s at cutoff %d", key.ISO3, i)
			}
			for k := range h {
				actual := col[i-h+k]
				perDay[k] += math.Abs(actual-m.Predict(size+k)) / actual
			}
			scored++
		}
		if scored == 0 {
			continue
		}
		for k := range h {
			sums[k] += perDay[k] / float64(scored)
		}
		cutoffs++
	}
	if cutoffs == 0 {
		return nil, ErrNoEvaluations
	}

	for k := range sums {
		sums[k] /= float64(cutoffs)
	}
	return sums, nil
}

// qualifies reports whether every value exceeds threshold. Zero never
// qualifies since it is a relative error denominator.
func qualifies(tail []float64, threshold float64) bool {
	for _, v := range tail {
		if !(v > threshold && v > 0) {
			return false
		}
	}
	return true
}
