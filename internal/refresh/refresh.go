// Package refresh runs the end-to-end pipeline: fetch raw counts, resolve
// countries, reshape, forecast, and persist the artifact.
package refresh

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/covid19-dash/casecast/internal/config"
	"github.com/covid19-dash/casecast/internal/forecast"
	"github.com/covid19-dash/casecast/internal/model"
	"github.com/covid19-dash/casecast/internal/monitoring"
	"github.com/covid19-dash/casecast/internal/population"
	"github.com/covid19-dash/casecast/internal/series"
	"github.com/covid19-dash/casecast/internal/source"
	"github.com/covid19-dash/casecast/internal/store"
)

// Resolver is the country identity surface the pipeline needs.
type Resolver interface {
	series.Resolver
	CheckCoverage(rawNames []string) error
	Identities() []model.CountryIdentity
	Lookup(iso3 string) (model.CountryIdentity, bool)
}

// RunRecorder records the lifecycle of refresh runs.
type RunRecorder interface {
	Start(ctx context.Context, metric model.Metric) (string, error)
	Complete(ctx context.Context, runID string, forecasts, skipped int) error
	Fail(ctx context.Context, runID string, errMsg string) error
}

// NopRecorder only hands out run IDs.
type NopRecorder struct{}

func (NopRecorder) Start(context.Context, model.Metric) (string, error) { return uuid.New().String(), nil }
func (NopRecorder) Complete(context.Context, string, int, int) error    { return nil }
func (NopRecorder) Fail(context.Context, string, string) error          { return nil }

// Refresher produces and saves one artifact per Run.
type Refresher struct {
	source     source.Source
	resolver   Resolver
	engine     *forecast.Engine
	store      store.Store
	runs       RunRecorder
	metrics    *monitoring.Metrics
	metric     model.Metric
	population config.PopulationConfig
	now        func() time.Time
}

// New creates a Refresher. runs and metrics may be nil.
func New(
	src source.Source,
	resolver Resolver,
	engine *forecast.Engine,
	st store.Store,
	runs RunRecorder,
	metrics *monitoring.Metrics,
	metric model.Metric,
	popCfg config.PopulationConfig,
) *Refresher {
	if runs == nil {
		runs = NopRecorder{}
	}
	return &Refresher{
		source:     src,
		resolver:   resolver,
		engine:     engine,
		store:      st,
		runs:       runs,
		metrics:    metrics,
		metric:     metric,
		population: popCfg,
		now:        time.Now,
	}
}

// Run executes one refresh. Identity, coverage, transport and store failures
// abort the run and leave the previous artifact in place; countries with too
// little history are skipped.
func (r *Refresher) Run(ctx context.Context) (*store.Artifact, error) {
	log := zap.L().With(zap.String("component", "refresh"), zap.String("metric", string(r.metric)))
	start := r.now()

	runID, err := r.runs.Start(ctx, r.metric)
	if err != nil {
		return nil, err
	}
	log = log.With(zap.String("run_id", runID))
	log.Info("refresh started")

	a, err := r.build(ctx, runID, log)
	if err == nil {
		err = r.store.Save(ctx, a)
	}
	elapsed := r.now().Sub(start)

	if err != nil {
		r.metrics.ObserveRefresh(err, elapsed, 0, 0)
		if ferr := r.runs.Fail(ctx, runID, err.Error()); ferr != nil {
			log.Warn("refresh: failed to record failure", zap.Error(ferr))
		}
		log.Error("refresh failed", zap.Error(err), zap.Duration("elapsed", elapsed))
		return nil, err
	}

	forecasts, skipped := len(a.Prediction.Columns), len(a.Skipped)
	r.metrics.ObserveRefresh(nil, elapsed, forecasts, skipped)
	r.metrics.SetArtifactGeneratedAt(a.GeneratedAt)
	if err := r.runs.Complete(ctx, runID, forecasts, skipped); err != nil {
		log.Warn("refresh: failed to record completion", zap.Error(err))
	}

	log.Info("refresh complete",
		zap.Time("run_date", a.RunDate),
		zap.Int("forecasts", forecasts),
		zap.Int("skipped", skipped),
		zap.Duration("elapsed", elapsed),
	)
	return a, nil
}

func (r *Refresher) build(ctx context.Context, runID string, log *zap.Logger) (*store.Artifact, error) {
	rows, err := r.source.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	if err := r.resolver.CheckCoverage(source.CountryNames(rows)); err != nil {
		return nil, err
	}

	table, err := series.Build(rows, r.resolver)
	if err != nil {
		return nil, err
	}
	if err := table.Validate(r.resolver.Identities()); err != nil {
		return nil, err
	}
	block, err := table.Block(r.metric)
	if err != nil {
		return nil, err
	}
	log.Debug("table built", zap.Int("dates", block.Len()), zap.Int("countries", len(block.Columns)))

	res, err := r.engine.ForDisplay(block)
	if err != nil {
		return nil, err
	}

	a, err := store.NewArtifact(runID, block.LastDate(), r.metric, r.engine.Window, res)
	if err != nil {
		return nil, err
	}
	a.GeneratedAt = r.now().UTC()

	pop, err := population.Load(ctx, r.population, r.resolver.Identities())
	if err != nil {
		return nil, err
	}
	a.Snapshot = population.Annotate(series.TidyMostRecent(block), pop, r.population.PerInhabitants)
	a.Countries = r.identities(block)
	return a, nil
}

// identities returns the reference entries of every column, sorted by ISO3.
func (r *Refresher) identities(b *series.Block) []model.CountryIdentity {
	seen := make(map[string]struct{}, len(b.Columns))
	var out []model.CountryIdentity
	for _, k := range b.Columns {
		if _, ok := seen[k.ISO3]; ok {
			continue
		}
		seen[k.ISO3] = struct{}{}
		if id, ok := r.resolver.Lookup(k.ISO3); ok {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ISO3 < out[j].ISO3 })
	return out
}

// EnsureArtifact loads the stored artifact, running one refresh when none exists.
func EnsureArtifact(ctx context.Context, st store.Store, r *Refresher) (*store.Artifact, error) {
	a, err := st.Load(ctx)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, eris.Wrap(err, "refresh: load artifact")
	}
	zap.L().With(zap.String("component", "refresh")).Info("no artifact found, refreshing")
	return r.Run(ctx)
}
