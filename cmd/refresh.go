package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var refreshFresh bool

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Fetch the latest counts, forecast, and replace the stored artifact",
	Long:  "Runs the full pipeline once. A failed refresh leaves the previously stored artifact in place.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("refresh"); err != nil {
			return err
		}

		env, err := initPipeline(ctx, refreshFresh)
		if err != nil {
			return err
		}
		defer env.Close()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		r, err := newRefresher(env, st)
		if err != nil {
			return err
		}
		a, err := r.Run(ctx)
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stdout, "run %s: %s through %s, %d forecasts, %d skipped\n",
			a.RunID, a.Metric, a.RunDate.Format("2006-01-02"), len(a.GrowthRates), len(a.Skipped))
		return nil
	},
}

func init() {
	refreshCmd.Flags().BoolVar(&refreshFresh, "fresh", false, "ignore cached downloads")
	rootCmd.AddCommand(refreshCmd)
}
