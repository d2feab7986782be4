// Package store persists the prediction artifact and the refresh run log.
package store

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/covid19-dash/casecast/internal/config"
)

// ErrNotFound is returned by Load when no artifact has been saved yet.
var ErrNotFound = errors.New("store: no artifact")

// Store saves and loads the current artifact. Save replaces the previous
// artifact atomically; a failed Save leaves it untouched.
type Store interface {
	Save(ctx context.Context, a *Artifact) error
	Load(ctx context.Context) (*Artifact, error)
	Close() error
}

// Open creates the configured store.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "", "file":
		return NewFileStore(cfg.ArtifactPath), nil
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
