package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/covid19-dash/casecast/internal/population"
	"github.com/covid19-dash/casecast/internal/store"
)

var (
	snapshotTop  int
	snapshotJSON bool
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Print the most affected countries of the stored artifact",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		a, err := st.Load(ctx)
		if err != nil {
			return err
		}

		if snapshotJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(topRows(a, snapshotTop))
		}
		formatSnapshot(os.Stdout, a, snapshotTop)
		return nil
	},
}

func topRows(a *store.Artifact, n int) []population.Row {
	rows := a.Snapshot
	if n > 0 && n < len(rows) {
		rows = rows[:n]
	}
	return rows
}

// formatSnapshot writes the n most affected countries with their growth rate.
func formatSnapshot(out io.Writer, a *store.Artifact, n int) {
	rates := make(map[string]float64, len(a.GrowthRates))
	for _, g := range a.GrowthRates {
		rates[g.ISO3] = g.Rate
	}

	_, _ = fmt.Fprintf(out, "%s as of %s (window %s)\n\n", a.Metric, a.RunDate.Format("2006-01-02"), a.Window.Name)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ISO3\tCOUNTRY\tCOUNT\tPER_CAPITA\tGROWTH")
	_, _ = fmt.Fprintln(w, "----\t-------\t-----\t----------\t------")

	for _, r := range topRows(a, n) {
		perCapita := "-"
		if r.PerCapita != nil {
			perCapita = fmt.Sprintf("%.1f", *r.PerCapita)
		}
		growth := "-"
		if g, ok := rates[r.ISO3]; ok {
			growth = fmt.Sprintf("%.3f", g)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%.0f\t%s\t%s\n", r.ISO3, r.Name, r.Value, perCapita, growth)
	}
	_ = w.Flush()
}

func init() {
	snapshotCmd.Flags().IntVar(&snapshotTop, "top", 20, "number of countries to print (0 = all)")
	snapshotCmd.Flags().BoolVar(&snapshotJSON, "json", false, "print JSON instead of a table")
	rootCmd.AddCommand(snapshotCmd)
}
