package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/covid19-dash/casecast/internal/countries"
	"github.com/covid19-dash/casecast/internal/population"
	"github.com/covid19-dash/casecast/internal/source"
)

var countriesCmd = &cobra.Command{
	Use:   "countries",
	Short: "Inspect the country reference and overrides",
}

// -- countries check --

var countriesCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Resolve every source country name and report coverage gaps",
	Long:  "Fetches the raw tables and resolves their country names against the reference and overrides without forecasting. Exits non-zero on unresolved names or missing required countries.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, false)
		if err != nil {
			return err
		}
		defer env.Close()

		rows, err := env.Source.Fetch(ctx)
		if err != nil {
			return err
		}
		names := source.CountryNames(rows)

		pop, err := population.Load(ctx, cfg.Population, env.Resolver.Identities())
		if err != nil {
			return err
		}

		checkErr := env.Resolver.CheckCoverage(names)
		resolved, _ := env.Resolver.ResolveAll(names)
		formatCoverage(os.Stdout, len(names), len(resolved), checkErr, population.Missing(pop, env.Resolver.Identities()))
		return checkErr
	},
}

// formatCoverage writes the result of a coverage check.
func formatCoverage(out io.Writer, names, resolved int, checkErr error, noPopulation []string) {
	_, _ = fmt.Fprintf(out, "Source names:\t%d\n", names)
	_, _ = fmt.Fprintf(out, "Resolved:\t%d\n", resolved)

	var unresolved *countries.UnresolvedCountryError
	var gap *countries.CoverageGapError
	switch {
	case checkErr == nil:
		_, _ = fmt.Fprintln(out, "Coverage:\tok")
	case errors.As(checkErr, &unresolved):
		_, _ = fmt.Fprintf(out, "Unresolved:\t%s\n", strings.Join(unresolved.Names, ", "))
	case errors.As(checkErr, &gap):
		if gap.Resolved < gap.Min {
			_, _ = fmt.Fprintf(out, "Coverage:\t%d countries, need %d\n", gap.Resolved, gap.Min)
		}
		if len(gap.Missing) > 0 {
			_, _ = fmt.Fprintf(out, "Missing:\t%s\n", strings.Join(gap.Missing, ", "))
		}
	default:
		_, _ = fmt.Fprintf(out, "Error:\t%v\n", checkErr)
	}

	if len(noPopulation) > 0 {
		_, _ = fmt.Fprintf(out, "No population:\t%d (%s)\n", len(noPopulation), strings.Join(noPopulation, ", "))
	}
}

func init() {
	countriesCmd.AddCommand(countriesCheckCmd)
	rootCmd.AddCommand(countriesCmd)
}
