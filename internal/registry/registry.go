// Package registry implements the multi-index registry (§4.I): a
// name -> *index.Index map over a shared root directory, lazily opening
// each named index's files on first access and caching the handle for
// the registry's lifetime.
package registry

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/iamNilotpal/fpindex/internal/directory"
	"github.com/iamNilotpal/fpindex/internal/index"
	"github.com/iamNilotpal/fpindex/pkg/errors"
	"github.com/iamNilotpal/fpindex/pkg/filesys"
	"github.com/iamNilotpal/fpindex/pkg/options"
)

// DirFactory opens (creating if necessary) the Directory backing one named
// index. The default, production factory roots each index at its own
// subdirectory of opts.DataDir; tests substitute one backed by in-memory
// directories.
type DirFactory func(name string) (directory.Directory, error)

// Registry owns every open *index.Index for one data directory, keyed by
// name. It exists so a single process can serve several independently
// named fingerprint indexes without each caller managing open/close
// bookkeeping itself.
type Registry struct {
	opts    options.Options
	log     *zap.SugaredLogger
	newDir  DirFactory
	exists  func(name string) (bool, error)
	cleanup func(name string) error

	mu      sync.Mutex
	indexes map[string]*index.Index
	dirs    map[string]directory.Directory
	closed  bool
}

// New returns a registry whose named indexes each live in their own
// subdirectory of opts.DataDir, using the real filesystem.
func New(opts options.Options, log *zap.SugaredLogger) *Registry {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Registry{
		opts: opts,
		log:  log,
		newDir: func(name string) (directory.Directory, error) {
			return directory.NewFS(filepath.Join(opts.DataDir, name))
		},
		exists: func(name string) (bool, error) {
			return filesys.Exists(filepath.Join(opts.DataDir, name))
		},
		cleanup: func(name string) error {
			return filesys.DeleteDir(filepath.Join(opts.DataDir, name))
		},
		indexes: make(map[string]*index.Index),
		dirs:    make(map[string]directory.Directory),
	}
}

// NewWithFactory builds a registry whose directories come from newDir
// instead of the real filesystem, for tests that want every named index
// backed by an in-memory directory.Directory. Existence is tracked by a
// dedicated mutex private to this closure, never Registry's own r.mu:
// Get calls r.exists while already holding r.mu, so anything r.exists
// touches must not try to reacquire it.
func NewWithFactory(opts options.Options, log *zap.SugaredLogger, newDir DirFactory) *Registry {
	r := New(opts, log)

	var cmu sync.Mutex
	created := make(map[string]bool)

	r.newDir = func(name string) (directory.Directory, error) {
		cmu.Lock()
		created[name] = true
		cmu.Unlock()
		return newDir(name)
	}
	r.exists = func(name string) (bool, error) {
		cmu.Lock()
		defer cmu.Unlock()
		return created[name], nil
	}
	r.cleanup = func(name string) error {
		cmu.Lock()
		delete(created, name)
		cmu.Unlock()
		return nil
	}
	return r
}

// Exists reports whether a named index is currently open in this registry
// or already has durable state on disk.
func (r *Registry) Exists(name string) (bool, error) {
	r.mu.Lock()
	if _, ok := r.indexes[name]; ok {
		r.mu.Unlock()
		return true, nil
	}
	r.mu.Unlock()
	return r.exists(name)
}

// Get returns the named index, opening it if this is the registry's first
// access to it this run. If create is false and the index has never been
// created, Get fails with ErrorCodeIndexNotFound.
func (r *Registry) Get(ctx context.Context, name string, create bool) (*index.Index, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, errors.NewIndexError(nil, errors.ErrorCodeIndexClosed, "registry is closed").
			WithOperation("get").WithKey(name)
	}
	if idx, ok := r.indexes[name]; ok {
		return idx, nil
	}

	if !create {
		present, err := r.exists(name)
		if err != nil {
			return nil, err
		}
		if !present {
			return nil, errors.NewIndexError(nil, errors.ErrorCodeIndexNotFound, "index does not exist").
				WithOperation("get").WithKey(name)
		}
	}

	dir, err := r.newDir(name)
	if err != nil {
		return nil, err
	}

	idx, err := index.Open(ctx, dir, r.opts, r.log.With("index", name))
	if err != nil {
		dir.Close()
		return nil, fmt.Errorf("opening index %q: %w", name, err)
	}

	r.indexes[name] = idx
	r.dirs[name] = dir
	return idx, nil
}

// Create opens (creating, if absent) the named index and discards the
// handle; it exists purely for callers that want to provision an index
// without immediately using it.
func (r *Registry) Create(ctx context.Context, name string) error {
	_, err := r.Get(ctx, name, true)
	return err
}

// Delete closes the named index if open and removes its on-disk state.
func (r *Registry) Delete(name string) error {
	r.mu.Lock()
	idx, ok := r.indexes[name]
	dir := r.dirs[name]
	delete(r.indexes, name)
	delete(r.dirs, name)
	r.mu.Unlock()

	if ok {
		if err := idx.Close(); err != nil {
			r.log.Warnw("error closing index before delete", "index", name, "error", err)
		}
	}
	if dir != nil {
		dir.Close()
	}
	return r.cleanup(name)
}

// List returns the names of every index currently open in this registry.
// It does not scan disk for indexes never opened this run.
func (r *Registry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.indexes))
	for name := range r.indexes {
		names = append(names, name)
	}
	return names
}

// Close closes every open index and releases its directory handle.
// Idempotent.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var firstErr error
	for name, idx := range r.indexes {
		if err := idx.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing index %q: %w", name, err)
		}
	}
	for name, dir := range r.dirs {
		if err := dir.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing directory %q: %w", name, err)
		}
	}
	r.indexes = make(map[string]*index.Index)
	r.dirs = make(map[string]directory.Directory)
	return firstErr
}
