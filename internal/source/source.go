// Package source downloads raw cumulative case tables and flattens them
// into one row per (country, metric, date).
package source

import (
	"context"
	"fmt"

	"github.com/covid19-dash/casecast/internal/cache"
	"github.com/covid19-dash/casecast/internal/model"
)

// Source produces raw case rows. Implementations do not retry.
type Source interface {
	Name() string
	// Fingerprint identifies the inputs the rows are derived from (used as a cache key).
	Fingerprint() []string
	Fetch(ctx context.Context) ([]model.RawCaseRow, error)
}

// TransportError wraps a failed download.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("source: fetch %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Cached memoizes a Source through a cache.Memo.
type Cached struct {
	Source
	memo *cache.Memo
}

// WithCache wraps src so repeated fetches are served from memo.
func WithCache(src Source, memo *cache.Memo) *Cached {
	return &Cached{Source: src, memo: memo}
}

// Fetch returns cached rows when available.
func (c *Cached) Fetch(ctx context.Context) ([]model.RawCaseRow, error) {
	return cache.Do(ctx, c.memo, "source."+c.Name(), c.Fingerprint(), c.Source.Fetch)
}
