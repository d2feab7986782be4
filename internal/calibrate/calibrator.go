package calibrate

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/covid19-dash/casecast/internal/cache"
	"github.com/covid19-dash/casecast/internal/forecast"
	"github.com/covid19-dash/casecast/internal/model"
	"github.com/covid19-dash/casecast/internal/monitoring"
	"github.com/covid19-dash/casecast/internal/series"
)

// RankDay is the days-ahead index candidates are ranked by (4 days ahead).
const RankDay = 3

// Score is the replay error curve of one candidate window.
type Score struct {
	Window string    `json:"window"`
	Size   int       `json:"size"`
	Errors []float64 `json:"errors"` // Errors[k] is the error k+1 days ahead
}

// Rank returns the error used to order scores: 4 days ahead, or the
// furthest day for shorter horizons.
func (s Score) Rank() float64 {
	if len(s.Errors) == 0 {
		return 0
	}
	return s.Errors[min(RankDay, len(s.Errors)-1)]
}

// Calibrator scores candidate windows concurrently.
type Calibrator struct {
	Options     ReplayOptions
	Concurrency int
	Memo        *cache.Memo         // nil disables memoization
	Metrics     *monitoring.Metrics // nil disables metrics
}

// New creates a Calibrator with the given replay options.
func New(opts ReplayOptions, concurrency int, memo *cache.Memo, metrics *monitoring.Metrics) *Calibrator {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Calibrator{Options: opts, Concurrency: concurrency, Memo: memo, Metrics: metrics}
}

type replayArgs struct {
	Block   string        `json:"block"`
	Weights []float64     `json:"weights"`
	Options ReplayOptions `json:"options"`
}

// Sweep replays every candidate and returns their scores sorted by Rank,
// best first. Candidates with no qualifying cutoff are left out.
func (c *Calibrator) Sweep(ctx context.Context, b *series.Block, candidates []forecast.Window) ([]Score, error) {
	log := zap.L().With(zap.String("component", "calibrate"), zap.String("metric", string(b.Metric)))
	start := time.Now()

	fp, err := Fingerprint(b)
	if err != nil {
		return nil, err
	}

	scores := make([]*Score, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.Concurrency)

	for i, w := range candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			args := replayArgs{Block: fp, Weights: w.Weights, Options: c.Options}
			errs, err := cache.Do(gctx, c.Memo, "calibrate.replay", args, func(context.Context) ([]float64, error) {
				return Replay(b, w, c.Options)
			})
			if errors.Is(err, ErrNoEvaluations) {
				log.Warn("candidate has no qualifying cutoff", zap.String("window", w.Name))
				return nil
			}
			if err != nil {
				return eris.Wrapf(err, "calibrate: replay %s", w.Name)
			}
			scores[i] = &Score{Window: w.Name, Size: w.Size(), Errors: errs}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]Score, 0, len(scores))
	for _, s := range scores {
		if s != nil {
			out = append(out, *s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Rank() < out[j].Rank() })

	elapsed := time.Since(start)
	c.Metrics.ObserveCalibration(elapsed)
	log.Info("sweep complete",
		zap.Int("candidates", len(candidates)),
		zap.Int("scored", len(out)),
		zap.Duration("elapsed", elapsed),
	)
	return out, nil
}

// Fingerprint identifies the contents of a block for memoization.
func Fingerprint(b *series.Block) (string, error) {
	return cache.Key("block", struct {
		Metric  string
		Dates   []time.Time
		Columns []model.CountryKey
		Values  [][]float64
	}{string(b.Metric), b.Dates, b.Columns, b.Values})
}
