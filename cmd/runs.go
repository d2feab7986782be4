package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/covid19-dash/casecast/internal/model"
	"github.com/covid19-dash/casecast/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect refresh run history",
	Long:  "Lists refresh runs recorded in the Postgres run log.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List refresh runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		ps, ok := st.(*store.PostgresStore)
		if !ok {
			return eris.New("runs: the run log requires the postgres store")
		}

		runLog := store.NewRunLog(ps.Pool())
		runs, err := runLog.ListAll(ctx)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}
		last, err := runLog.LastSuccess(ctx)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}
		limit, _ := cmd.Flags().GetInt("limit")
		if limit > 0 && limit < len(runs) {
			runs = runs[:limit]
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		if last != nil {
			fmt.Fprintf(os.Stdout, "Last successful refresh: %s\n\n", last.Format("2006-01-02 15:04"))
		}
		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.RefreshRun) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tMETRIC\tSTATUS\tSTARTED\tDURATION\tFORECASTS\tSKIPPED\tERROR")
	_, _ = fmt.Fprintln(w, "--\t------\t------\t-------\t--------\t---------\t-------\t-----")

	for _, r := range runs {
		dur := "-"
		if r.CompletedAt != nil {
			dur = r.CompletedAt.Sub(r.StartedAt).Round(time.Second).String()
		}

		errMsg := r.Error
		if len(errMsg) > 40 {
			errMsg = errMsg[:37] + "..."
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			truncateID(r.ID),
			r.Metric,
			r.Status,
			r.StartedAt.Format("2006-01-02 15:04"),
			dur,
			r.Forecasts,
			r.Skipped,
			errMsg,
		)
	}
	_ = w.Flush()
}

// truncateID shortens a UUID to its first 8 characters for display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	runsListCmd.Flags().Int("limit", 20, "max runs to show (0 = all)")
	runsCmd.AddCommand(runsListCmd)
	rootCmd.AddCommand(runsCmd)
}
