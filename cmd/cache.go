package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/covid19-dash/casecast/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the download and replay cache",
}

var cacheClearExpired bool

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove cached entries",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		c, err := cache.Open(ctx, cfg.Cache)
		if err != nil {
			return err
		}
		defer c.Close() //nolint:errcheck

		if cacheClearExpired {
			s, ok := c.(*cache.SQLite)
			if !ok {
				return eris.Errorf("cache: --expired is only supported by the sqlite driver, got %q", cfg.Cache.Driver)
			}
			n, err := s.DeleteExpired(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "removed %d expired entries\n", n)
			return nil
		}

		if err := c.Clear(ctx); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "cache cleared (driver %s)\n", cfg.Cache.Driver)
		return nil
	},
}

func init() {
	cacheClearCmd.Flags().BoolVar(&cacheClearExpired, "expired", false, "only remove expired entries (sqlite)")
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}
