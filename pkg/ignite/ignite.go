// Package ignite is the public entry point for the fingerprint index: a
// segmented, write-once-on-disk inverted index over audio fingerprint
// hashes, inspired by Lucene's tiered merge model. It wraps the registry
// of named indexes behind a small instance type so callers never touch
// internal/registry or internal/index directly.
//
// An Instance can host many independently named indexes under one data
// directory — think one process serving a "tracks" index and a
// "samples" index side by side — opening each lazily on first use.
package ignite

import (
	"context"

	"github.com/iamNilotpal/fpindex/internal/index"
	"github.com/iamNilotpal/fpindex/internal/oplog"
	"github.com/iamNilotpal/fpindex/internal/registry"
	"github.com/iamNilotpal/fpindex/pkg/logger"
	"github.com/iamNilotpal/fpindex/pkg/options"
)

// Result is one scored match returned by a search.
type Result = index.Result

// SearchOptions overrides the instance's default search behavior for a
// single call.
type SearchOptions = index.SearchOptions

// Instance is the primary entry point for interacting with the
// fingerprint index store. It encapsulates the registry responsible for
// opening and caching named indexes and the configuration options applied
// to every index it serves.
type Instance struct {
	registry *registry.Registry // Owns every open named index under this instance's data directory.
	options  options.Options    // Configuration options applied to this instance's indexes.
}

// NewInstance creates and initializes a new Instance.
func NewInstance(ctx context.Context, service string, opts ...options.OptionFunc) (*Instance, error) {
	log := logger.New(service)

	defaultOpts := options.NewDefaultOptions()
	for _, opt := range opts {
		opt(&defaultOpts)
	}

	return &Instance{registry: registry.New(defaultOpts, log), options: defaultOpts}, nil
}

// Create provisions the named index, opening it if this is the
// instance's first access to it this run. It is a no-op if the index
// already exists.
func (i *Instance) Create(ctx context.Context, name string) error {
	return i.registry.Create(ctx, name)
}

// Insert adds or replaces the fingerprint hashes recorded for docID in
// the named index. A prior set of hashes for the same docID, if any, is
// fully superseded — not merged with the new set.
func (i *Instance) Insert(ctx context.Context, name string, docID uint32, hashes []uint32) error {
	idx, err := i.registry.Get(ctx, name, true)
	if err != nil {
		return err
	}
	return idx.Update(ctx, []oplog.Op{oplog.InsertOrUpdate(docID, hashes)})
}

// Delete tombstones docID in the named index so it is hidden from future
// searches.
func (i *Instance) Delete(ctx context.Context, name string, docID uint32) error {
	idx, err := i.registry.Get(ctx, name, true)
	if err != nil {
		return err
	}
	return idx.Update(ctx, []oplog.Op{oplog.DeleteOp(docID)})
}

// SetAttribute records an arbitrary name/value pair against the index
// itself (not a document), e.g. a schema version or a source label.
func (i *Instance) SetAttribute(ctx context.Context, name, key, value string) error {
	idx, err := i.registry.Get(ctx, name, true)
	if err != nil {
		return err
	}
	return idx.Update(ctx, []oplog.Op{oplog.SetAttribute(key, value)})
}

// GetAttribute returns the named index-level attribute's current value,
// or the empty string if it was never set.
func (i *Instance) GetAttribute(ctx context.Context, name, key string) (string, error) {
	idx, err := i.registry.Get(ctx, name, false)
	if err != nil {
		return "", err
	}
	return idx.Attribute(key), nil
}

// Search matches hashes against the named index and returns every
// surviving document scored by overlap, highest score first.
func (i *Instance) Search(ctx context.Context, name string, hashes []uint32, opts SearchOptions) ([]Result, error) {
	idx, err := i.registry.Get(ctx, name, false)
	if err != nil {
		return nil, err
	}
	return idx.Search(ctx, hashes, opts)
}

// Exists reports whether the named index has ever been created.
func (i *Instance) Exists(name string) (bool, error) {
	return i.registry.Exists(name)
}

// List returns the names of every index this instance has opened so far.
func (i *Instance) List() []string {
	return i.registry.List()
}

// Close gracefully shuts down the instance, closing every index it has
// opened and releasing their directory handles.
func (i *Instance) Close(ctx context.Context) error {
	return i.registry.Close()
}
