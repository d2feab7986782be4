package calibrate

import (
	"github.com/covid19-dash/casecast/internal/config"
	"github.com/covid19-dash/casecast/internal/forecast"
)

// RampFamily returns a ramp window for every start and every middle in [2, start].
func RampFamily(starts []int) ([]forecast.Window, error) {
	var out []forecast.Window
	for _, start := range starts {
		for middle := 2; middle <= start; middle++ {
			w, err := forecast.RampWindow(start, middle)
			if err != nil {
				return nil, err
			}
			out = append(out, w)
		}
	}
	return out, nil
}

// ExpFamily returns an exponential window for every (start, growth) pair.
func ExpFamily(starts []int, growths []float64) ([]forecast.Window, error) {
	out := make([]forecast.Window, 0, len(starts)*len(growths))
	for _, start := range starts {
		for _, g := range growths {
			w, err := forecast.ExpWindow(start, g)
			if err != nil {
				return nil, err
			}
			out = append(out, w)
		}
	}
	return out, nil
}

// Span returns the integers lo..hi inclusive.
func Span(lo, hi int) []int {
	if hi < lo {
		return nil
	}
	out := make([]int, 0, hi-lo+1)
	for i := lo; i <= hi; i++ {
		out = append(out, i)
	}
	return out
}

// CandidatesFromConfig builds the ramp and exp families of the configured sweep.
func CandidatesFromConfig(cfg config.CalibrateConfig) ([]forecast.Window, error) {
	ramps, err := RampFamily(cfg.RampStarts)
	if err != nil {
		return nil, err
	}
	exps, err := ExpFamily(cfg.ExpStarts, cfg.ExpGrowths)
	if err != nil {
		return nil, err
	}
	return append(ramps, exps...), nil
}
