package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/covid19-dash/casecast/internal/monitoring"
	"github.com/covid19-dash/casecast/internal/refresh"
	"github.com/covid19-dash/casecast/internal/server"
	"github.com/covid19-dash/casecast/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the stored artifact to the dashboard",
	Long:  "Loads the stored artifact, running one refresh first when none exists, and serves it over HTTP.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		env, err := initPipeline(ctx, false)
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
		a, err := refresh.EnsureArtifact(ctx, st, r)
		if err != nil {
			return err
		}

		if cfg.Monitoring.Enabled {
			if ps, ok := st.(*store.PostgresStore); ok {
				checker := monitoring.NewChecker(
					monitoring.NewCollector(store.NewRunLog(ps.Pool())),
					monitoring.NewAlerter(cfg.Monitoring),
					env.Metrics,
					cfg.Monitoring,
				)
				go checker.Run(ctx)
			}
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := server.New(cfg.Server, st, nil, env.Metrics)
		srv.SetArtifact(a)
		zap.L().Info("serving artifact",
			zap.String("run_id", a.RunID),
			zap.Time("run_date", a.RunDate),
			zap.Int("forecasts", len(a.GrowthRates)),
		)
		return srv.ListenAndServe(ctx, port)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
