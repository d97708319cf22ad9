// Package tenant maps authenticated identities to their own ledger files.
//
// Each identity gets one SQLite file named <data_dir>/<identity>.sqlite.
// Identities are checked against the username rule before any path is built,
// so a crafted identity cannot name a file outside the data directory.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/roach88/okra/internal/auth"
	"github.com/roach88/okra/internal/ledger"
)

// ErrInvalidIdentity is returned for identities that cannot name a store.
var ErrInvalidIdentity = errors.New("invalid identity")

const storeExt = ".sqlite"

// Registry resolves identities to ledger stores under one data directory.
//
// Thread-safety: Registry holds no mutable state; every Open returns a
// fresh Ledger that the caller must close.
type Registry struct {
	dir    string
	logger *zap.Logger
	opts   []ledger.Option
}

// NewRegistry creates a registry rooted at dir, creating the directory if
// needed. opts are passed to every ledger it opens.
func NewRegistry(dir string, logger *zap.Logger, opts ...ledger.Option) (*Registry, error) {
	if dir == "" {
		return nil, fmt.Errorf("tenant registry: empty data directory")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("tenant registry: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("tenant registry: %w", err)
	}

	return &Registry{dir: abs, logger: logger, opts: opts}, nil
}

// Dir returns the absolute data directory.
func (r *Registry) Dir() string {
	return r.dir
}

// Path returns the store file for identity.
func (r *Registry) Path(identity string) (string, error) {
	if err := auth.CheckUsername(identity); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidIdentity, err)
	}

	path := filepath.Join(r.dir, identity+storeExt)
	if filepath.Dir(path) != r.dir {
		return "", fmt.Errorf("%w: %q escapes data directory", ErrInvalidIdentity, identity)
	}
	return path, nil
}

// Open opens the ledger belonging to identity, creating it on first use.
func (r *Registry) Open(ctx context.Context, identity string) (*ledger.Ledger, error) {
	path, err := r.Path(identity)
	if err != nil {
		r.logger.Warn("rejected identity", zap.String("identity", identity), zap.Error(err))
		return nil, err
	}

	l, err := ledger.Open(ctx, path, r.opts...)
	if err != nil {
		return nil, fmt.Errorf("open ledger for %s: %w", identity, err)
	}
	r.logger.Debug("ledger opened", zap.String("identity", identity), zap.String("path", path))
	return l, nil
}
