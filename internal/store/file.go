package store

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// FileStore keeps the artifact as one JSON file.
type FileStore struct {
	path string
}

// NewFileStore creates a FileStore writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the artifact file path.
func (s *FileStore) Path() string { return s.path }

// Save writes a to a temp file next to the artifact and renames it into place.
func (s *FileStore) Save(_ context.Context, a *Artifact) error {
	if err := a.Validate(); err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "store: create %s", dir)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return eris.Wrap(err, "store: create temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	enc := json.NewEncoder(tmp)
	if err := enc.Encode(a); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrap(err, "store: encode artifact")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrap(err, "store: sync artifact")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "store: close temp file")
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return eris.Wrapf(err, "store: replace %s", s.path)
	}

	zap.L().With(zap.String("component", "store")).Info("artifact saved",
		zap.String("path", s.path),
		zap.String("run_id", a.RunID),
	)
	return nil
}

// Load reads the artifact file.
func (s *FileStore) Load(_ context.Context) (*Artifact, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "store: open %s", s.path)
	}
	defer f.Close() //nolint:errcheck

	var a Artifact
	if err := json.NewDecoder(f).Decode(&a); err != nil {
		return nil, eris.Wrapf(err, "store: decode %s", s.path)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

// Close is a no-op.
func (s *FileStore) Close() error { return nil }
