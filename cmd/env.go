package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/covid19-dash/casecast/internal/cache"
	"github.com/covid19-dash/casecast/internal/countries"
	"github.com/covid19-dash/casecast/internal/fetcher"
	"github.com/covid19-dash/casecast/internal/forecast"
	"github.com/covid19-dash/casecast/internal/model"
	"github.com/covid19-dash/casecast/internal/monitoring"
	"github.com/covid19-dash/casecast/internal/refresh"
	"github.com/covid19-dash/casecast/internal/source"
	"github.com/covid19-dash/casecast/internal/store"
)

// pipelineEnv holds the clients shared by the refresh, serve, calibrate and
// countries commands.
type pipelineEnv struct {
	Metrics  *monitoring.Metrics
	Cache    cache.Cache
	Memo     *cache.Memo
	Fetcher  fetcher.Fetcher
	Resolver *countries.Resolver
	Source   source.Source
}

// Close releases resources held by the environment.
func (pe *pipelineEnv) Close() {
	if pe.Cache != nil {
		_ = pe.Cache.Close()
	}
}

// initPipeline opens the cache, builds the fetcher, loads the country
// resolver and wraps the case source in the cache. fresh bypasses cached
// downloads. Callers should defer env.Close().
func initPipeline(ctx context.Context, fresh bool) (*pipelineEnv, error) {
	metrics := monitoring.NewMetrics()

	c, err := cache.Open(ctx, cfg.Cache)
	if err != nil {
		return nil, err
	}
	memo := cache.NewMemo(c, time.Duration(cfg.Cache.TTLHours)*time.Hour, metrics)
	if fresh {
		memo = memo.Fresh()
	}

	f := initFetcher()

	resolver, err := countries.Load(ctx, f, cfg.Countries.ReferenceURL, cfg.Countries.OverridesPath)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	zap.L().Info("country reference loaded", zap.Int("identities", len(resolver.Identities())))

	jhu, err := source.NewJHU(f, cfg.Source.BaseURL, cfg.Source.Files)
	if err != nil {
		_ = c.Close()
		return nil, err
	}

	return &pipelineEnv{
		Metrics:  metrics,
		Cache:    c,
		Memo:     memo,
		Fetcher:  f,
		Resolver: resolver,
		Source:   source.WithCache(jhu, memo),
	}, nil
}

// initFetcher routes http(s) locations through the rate-limited HTTP fetcher
// and everything else to local files.
func initFetcher() fetcher.Fetcher {
	return fetcher.NewRouter(
		fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent:    cfg.Fetch.UserAgent,
			Timeout:      time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
			MaxAttempts:  cfg.Fetch.MaxAttempts,
			RateLimiters: fetcher.DefaultRateLimiters(),
		}),
		fetcher.NewFileFetcher(),
	)
}

// initStore opens the configured artifact store, migrating it when it is
// backed by Postgres.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if ps, ok := st.(*store.PostgresStore); ok {
		if err := ps.Migrate(ctx); err != nil {
			_ = st.Close()
			return nil, eris.Wrap(err, "migrate store")
		}
	}
	return st, nil
}

// runRecorder returns the Postgres run log when st has one.
func runRecorder(st store.Store) refresh.RunRecorder {
	if ps, ok := st.(*store.PostgresStore); ok {
		return store.NewRunLog(ps.Pool())
	}
	return refresh.NopRecorder{}
}

// newRefresher wires a Refresher for the configured forecast metric.
func newRefresher(env *pipelineEnv, st store.Store) (*refresh.Refresher, error) {
	engine, err := forecast.EngineFromConfig(cfg.Forecast)
	if err != nil {
		return nil, err
	}
	metric, err := model.ParseMetric(cfg.Forecast.Metric)
	if err != nil {
		return nil, err
	}
	return refresh.New(env.Source, env.Resolver, engine, st, runRecorder(st), env.Metrics, metric, cfg.Population), nil
}
