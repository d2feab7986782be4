package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/covid19-dash/casecast/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the Postgres schema migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if cfg.Store.Driver != "postgres" {
			return eris.Errorf("migrate: store driver is %q, nothing to migrate", cfg.Store.Driver)
		}

		ps, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return err
		}
		defer ps.Close() //nolint:errcheck

		if err := ps.Migrate(ctx); err != nil {
			return err
		}
		fmt.Fprintln(os.Stderr, "migrations applied")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
