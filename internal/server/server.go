// Package server exposes the stored prediction artifact to the dashboard as
// a read-only JSON API.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/covid19-dash/casecast/internal/config"
	"github.com/covid19-dash/casecast/internal/forecast"
	"github.com/covid19-dash/casecast/internal/model"
	"github.com/covid19-dash/casecast/internal/monitoring"
	"github.com/covid19-dash/casecast/internal/population"
	"github.com/covid19-dash/casecast/internal/store"
)

// Loader reads the current artifact.
type Loader interface {
	Load(ctx context.Context) (*store.Artifact, error)
}

// Server serves one artifact at a time. The artifact is swapped whole on
// Reload, so handlers never see a partially updated one.
type Server struct {
	loader   Loader
	metrics  *monitoring.Metrics
	cfg      config.ServerConfig
	artifact atomic.Pointer[store.Artifact]
	router   chi.Router
}

// New creates a Server serving a. loader and metrics may be nil.
func New(cfg config.ServerConfig, loader Loader, a *store.Artifact, metrics *monitoring.Metrics) *Server {
	s := &Server{loader: loader, metrics: metrics, cfg: cfg}
	if a != nil {
		s.artifact.Store(a)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(s.observe)

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/snapshot", s.handleSnapshot)
		r.Get("/countries", s.handleCountries)
		r.Get("/forecast", s.handleForecast)
		r.Get("/forecast/{iso3}", s.handleCountryForecast)
	})
	return r
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Artifact returns the artifact currently served, or nil.
func (s *Server) Artifact() *store.Artifact {
	return s.artifact.Load()
}

// SetArtifact replaces the served artifact.
func (s *Server) SetArtifact(a *store.Artifact) {
	s.artifact.Store(a)
	if a != nil {
		s.metrics.SetArtifactGeneratedAt(a.GeneratedAt)
	}
}

// Reload re-reads the artifact from the loader. On error the current
// artifact stays in place.
func (s *Server) Reload(ctx context.Context) error {
	if s.loader == nil {
		return nil
	}
	a, err := s.loader.Load(ctx)
	if err != nil {
		return eris.Wrap(err, "server: reload artifact")
	}
	if cur := s.Artifact(); cur != nil && cur.RunID == a.RunID {
		s.metrics.SetArtifactGeneratedAt(a.GeneratedAt)
		return nil
	}
	s.SetArtifact(a)
	zap.L().With(zap.String("component", "server")).Info("artifact reloaded",
		zap.String("run_id", a.RunID),
		zap.Time("run_date", a.RunDate),
	)
	return nil
}

// ListenAndServe serves on port until ctx is canceled, reloading the artifact
// every ReloadIntervalSecs.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	log := zap.L().With(zap.String("component", "server"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.cfg.ReloadIntervalSecs > 0 {
		go s.reloadLoop(ctx, time.Duration(s.cfg.ReloadIntervalSecs)*time.Second)
	}

	go func() {
		<-ctx.Done()
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx) //nolint:errcheck
	}()

	log.Info("starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server: listen")
	}
	return nil
}

func (s *Server) reloadLoop(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Reload(ctx); err != nil {
				zap.L().With(zap.String("component", "server")).Warn("reload failed", zap.Error(err))
			}
		}
	}
}

// observe counts requests by route pattern and status.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.ObserveRequest(route, status)
	})
}

type healthResponse struct {
	Status      string    `json:"status"`
	RunID       string    `json:"run_id,omitempty"`
	RunDate     time.Time `json:"run_date,omitzero"`
	GeneratedAt time.Time `json:"generated_at,omitzero"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	a := s.Artifact()
	if a == nil {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "no artifact"})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:      "ok",
		RunID:       a.RunID,
		RunDate:     a.RunDate,
		GeneratedAt: a.GeneratedAt,
	})
}

type snapshotResponse struct {
	RunDate time.Time        `json:"run_date"`
	Metric  model.Metric     `json:"metric"`
	Rows    []population.Row `json:"rows"`
}

// handleSnapshot serves the most recent day, optionally limited to the
// top ?limit= countries.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	a, ok := s.requireArtifact(w)
	if !ok {
		return
	}
	rows := a.Snapshot
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		if n < len(rows) {
			rows = rows[:n]
		}
	}
	writeJSON(w, http.StatusOK, snapshotResponse{RunDate: a.RunDate, Metric: a.Metric, Rows: rows})
}

func (s *Server) handleCountries(w http.ResponseWriter, _ *http.Request) {
	a, ok := s.requireArtifact(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, a.Countries)
}

type forecastResponse struct {
	RunDate     time.Time          `json:"run_date"`
	Metric      model.Metric       `json:"metric"`
	Window      string             `json:"window"`
	GrowthRates []store.GrowthRate `json:"growth_rates"`
	Prediction  store.Table        `json:"prediction"`
	LowerBound  store.Table        `json:"lower_bound"`
	UpperBound  store.Table        `json:"upper_bound"`
	Skipped     []forecast.Skip    `json:"skipped,omitempty"`
}

func (s *Server) handleForecast(w http.ResponseWriter, _ *http.Request) {
	a, ok := s.requireArtifact(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, forecastResponse{
		RunDate:     a.RunDate,
		Metric:      a.Metric,
		Window:      a.Window.Name,
		GrowthRates: a.GrowthRates,
		Prediction:  a.Prediction,
		LowerBound:  a.LowerBound,
		UpperBound:  a.UpperBound,
		Skipped:     a.Skipped,
	})
}

func (s *Server) handleCountryForecast(w http.ResponseWriter, r *http.Request) {
	a, ok := s.requireArtifact(w)
	if !ok {
		return
	}
	iso3 := strings.ToUpper(chi.URLParam(r, "iso3"))
	f, found := a.Forecast(iso3)
	if !found {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no forecast for %s", iso3))
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) requireArtifact(w http.ResponseWriter) (*store.Artifact, bool) {
	a := s.Artifact()
	if a == nil {
		writeError(w, http.StatusServiceUnavailable, "no artifact available yet")
		return nil, false
	}
	return a, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("server: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
