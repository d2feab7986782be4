package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/covid19-dash/casecast/internal/calibrate"
	"github.com/covid19-dash/casecast/internal/model"
	"github.com/covid19-dash/casecast/internal/population"
	"github.com/covid19-dash/casecast/internal/series"
)

var (
	calibrateTop       int
	calibrateOutputDir string
	calibrateFrom      string
	calibrateCountries int
	calibratePerCapita bool
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Score candidate forecast windows on historical data",
	Long:  "Replays every ramp and exponential window of the configured sweep on past counts, writes an XLSX table and an HTML chart of the errors, and prints the best windows.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("calibrate"); err != nil {
			return err
		}

		env, err := initPipeline(ctx, false)
		if err != nil {
			return err
		}
		defer env.Close()

		metric, err := model.ParseMetric(cfg.Calibrate.Metric)
		if err != nil {
			return err
		}
		rows, err := env.Source.Fetch(ctx)
		if err != nil {
			return err
		}
		table, err := series.Build(rows, env.Resolver)
		if err != nil {
			return err
		}
		block, err := table.Block(metric)
		if err != nil {
			return err
		}

		var from time.Time
		if calibrateFrom != "" {
			if from, err = time.Parse(time.DateOnly, calibrateFrom); err != nil {
				return eris.Wrap(err, "calibrate: --from")
			}
		}
		var pop population.Table
		if calibratePerCapita {
			if pop, err = population.Load(ctx, cfg.Population, env.Resolver.Identities()); err != nil {
				return err
			}
		}
		block, dropped := scopeBlock(block, from, calibrateCountries, pop, cfg.Population.PerInhabitants)
		if len(dropped) > 0 {
			zap.L().Warn("calibrate: countries without population left out", zap.Int("count", len(dropped)))
		}

		candidates, err := calibrate.CandidatesFromConfig(cfg.Calibrate)
		if err != nil {
			return err
		}
		c := calibrate.New(calibrate.ReplayOptions{
			Threshold: cfg.Calibrate.Threshold,
			Horizon:   cfg.Calibrate.Horizon,
		}, cfg.Calibrate.Concurrency, env.Memo, env.Metrics)

		scores, err := c.Sweep(ctx, block, candidates)
		if err != nil {
			return err
		}

		dir := calibrateOutputDir
		if dir == "" {
			dir = cfg.Calibrate.OutputDir
		}
		paths, err := calibrate.WriteReport(dir, scores)
		if err != nil {
			return err
		}
		zap.L().Info("calibration report written", zap.Strings("paths", paths))

		formatScores(os.Stdout, scores, calibrateTop)
		return nil
	},
}

// scopeBlock narrows the replay input: rows from `from` on (zero = all),
// the top most affected countries (0 = all), and counts per `per`
// inhabitants when pop is non-nil. It returns the columns dropped for lack
// of a population.
func scopeBlock(b *series.Block, from time.Time, top int, pop population.Table, per float64) (*series.Block, []model.CountryKey) {
	if !from.IsZero() {
		b = b.Between(from, b.LastDate())
	}
	if top > 0 {
		rows := series.MostAffected(b, top)
		keys := make([]model.CountryKey, len(rows))
		for i, r := range rows {
			keys[i] = model.CountryKey{ISO3: r.ISO3, Name: r.Name}
		}
		b = b.Select(keys)
	}
	if pop == nil {
		return b, nil
	}
	return population.PerCapita(b, pop, per)
}

// formatScores writes the top n scores (all when n <= 0) as a table.
func formatScores(out io.Writer, scores []calibrate.Score, n int) {
	if n > 0 && n < len(scores) {
		scores = scores[:n]
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	header := []string{"RANK", "WINDOW", "SIZE"}
	if len(scores) > 0 {
		for k := range scores[0].Errors {
			header = append(header, fmt.Sprintf("DAY_%d", k+1))
		}
	}
	_, _ = fmt.Fprintln(w, strings.Join(header, "\t"))

	for i, s := range scores {
		cells := []string{fmt.Sprintf("%d", i+1), s.Window, fmt.Sprintf("%d", s.Size)}
		for _, e := range s.Errors {
			cells = append(cells, fmt.Sprintf("%.4f", e))
		}
		_, _ = fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	_ = w.Flush()
}

func init() {
	calibrateCmd.Flags().IntVar(&calibrateTop, "top", 10, "number of best windows to print (0 = all)")
	calibrateCmd.Flags().StringVar(&calibrateOutputDir, "output-dir", "", "report directory (default from config)")
	calibrateCmd.Flags().StringVar(&calibrateFrom, "from", "", "first date to replay, YYYY-MM-DD (default: all)")
	calibrateCmd.Flags().IntVar(&calibrateCountries, "countries", 0, "replay only the N most affected countries (0 = all)")
	calibrateCmd.Flags().BoolVar(&calibratePerCapita, "per-capita", false, "replay counts per population.per_inhabitants; threshold applies to the scaled counts")
	rootCmd.AddCommand(calibrateCmd)
}
