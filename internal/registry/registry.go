// Package registry hands out one retriever per collection, building each at
// most once.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/nickcecere/strata/internal/blobstore"
	"github.com/nickcecere/strata/internal/embeddings"
	"github.com/nickcecere/strata/internal/retriever"
	"github.com/nickcecere/strata/internal/store"
	"golang.org/x/sync/singleflight"
)

// ErrNotFound is returned when a collection does not exist.
var ErrNotFound = errors.New("collection not found")

// State is the lifecycle state of a collection's retriever.
type State int

const (
	Uninitialized State = iota
	Building
	Ready
)

func (s State) String() string {
	switch s {
	case Building:
		return "building"
	case Ready:
		return "ready"
	default:
		return "uninitialized"
	}
}

// Config holds the registry's collaborators.
type Config struct {
	Index             store.VectorIndex
	Blobs             blobstore.Store
	Embedder          embeddings.Service
	Options           retriever.Options
	DefaultCollection string
}

// Registry maps collection names to retrievers. Ready retrievers are read
// without locking; builds are shared between concurrent callers.
type Registry struct {
	cfg Config

	ready    sync.Map // name -> *retriever.Retriever
	building sync.Map // name -> struct{}
	group    singleflight.Group
}

// New creates a registry.
func New(cfg Config) (*Registry, error) {
	if cfg.Index == nil || cfg.Blobs == nil || cfg.Embedder == nil {
		return nil, fmt.Errorf("index, blob store and embedder are required")
	}
	if cfg.DefaultCollection == "" {
		return nil, fmt.Errorf("default collection name is required")
	}
	return &Registry{cfg: cfg}, nil
}

// DefaultCollection returns the name the default resolves to.
func (r *Registry) DefaultCollection() string {
	return r.cfg.DefaultCollection
}

// Resolve returns the concrete collection name for n.
func (r *Registry) Resolve(n CollectionName) string {
	return n.Resolve(r.cfg.DefaultCollection)
}

// Get returns the retriever for name, creating the collection if needed.
// Every call for the same name returns the same retriever.
func (r *Registry) Get(ctx context.Context, name CollectionName) (*retriever.Retriever, error) {
	return r.Ensure(ctx, name, nil)
}

// Ensure is Get with the metadata used if the collection has to be created.
func (r *Registry) Ensure(ctx context.Context, name CollectionName, metadata map[string]any) (*retriever.Retriever, error) {
	resolved := r.Resolve(name)
	if v, ok := r.ready.Load(resolved); ok {
		return v.(*retriever.Retriever), nil
	}

	// The build outlives any single caller's cancellation since others may be
	// waiting on it.
	buildCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(resolved, func() (any, error) {
		if v, ok := r.ready.Load(resolved); ok {
			return v, nil
		}
		r.building.Store(resolved, struct{}{})
		defer r.building.Delete(resolved)

		ret, err := r.build(buildCtx, resolved, metadata)
		if err != nil {
			return nil, err
		}
		r.ready.Store(resolved, ret)
		return ret, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			if name.IsDefault() {
				return nil, fmt.Errorf("default collection %q unavailable: %w", resolved, errors.Join(ErrNotFound, res.Err))
			}
			return nil, res.Err
		}
		return res.Val.(*retriever.Retriever), nil
	}
}

// Lookup returns the retriever for an existing collection without creating
// it. A missing named collection yields an error wrapping ErrNotFound. The
// default collection is always available and is created on first use.
func (r *Registry) Lookup(ctx context.Context, name CollectionName) (*retriever.Retriever, error) {
	if r.Resolve(name) == r.cfg.DefaultCollection {
		return r.Ensure(ctx, Default(), nil)
	}
	return r.existing(ctx, name)
}

func (r *Registry) existing(ctx context.Context, name CollectionName) (*retriever.Retriever, error) {
	resolved := r.Resolve(name)
	if v, ok := r.ready.Load(resolved); ok {
		return v.(*retriever.Retriever), nil
	}

	coll, err := r.cfg.Index.GetCollection(ctx, resolved)
	if err != nil {
		return nil, err
	}
	if coll == nil {
		return nil, fmt.Errorf("collection %q: %w", resolved, ErrNotFound)
	}
	return r.Ensure(ctx, Named(resolved), nil)
}

func (r *Registry) build(ctx context.Context, name string, metadata map[string]any) (*retriever.Retriever, error) {
	log.Debug("Building retriever", "collection", name)

	coll, err := r.cfg.Index.CreateOrGetCollection(ctx, name, metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to open collection %s: %w", name, err)
	}

	ret, err := retriever.New(coll, r.cfg.Index, r.cfg.Blobs, r.cfg.Embedder, r.cfg.Options)
	if err != nil {
		return nil, fmt.Errorf("failed to create retriever for %s: %w", name, err)
	}

	log.Debug("Retriever ready", "collection", name, "id", coll.ID)
	return ret, nil
}

// State reports the lifecycle state of name.
func (r *Registry) State(name CollectionName) State {
	resolved := r.Resolve(name)
	if _, ok := r.ready.Load(resolved); ok {
		return Ready
	}
	if _, ok := r.building.Load(resolved); ok {
		return Building
	}
	return Uninitialized
}

// Invalidate drops the cached retriever for name. The next Get rebuilds it.
func (r *Registry) Invalidate(name CollectionName) {
	r.ready.Delete(r.Resolve(name))
}

// List returns all collections in the index.
func (r *Registry) List(ctx context.Context) ([]store.Collection, error) {
	return r.cfg.Index.ListCollections(ctx)
}

// Stats returns parent and child counts for a listed collection without
// building its retriever.
func (r *Registry) Stats(ctx context.Context, c store.Collection) (*store.CollectionStats, error) {
	return r.cfg.Index.GetStats(ctx, c.ID)
}

// DeleteCollection removes a collection's parents, children and index entry.
func (r *Registry) DeleteCollection(ctx context.Context, name CollectionName) error {
	resolved := r.Resolve(name)

	ret, err := r.existing(ctx, name)
	if err != nil {
		return err
	}
	defer r.Invalidate(name)

	if err := ret.Purge(ctx); err != nil {
		return fmt.Errorf("failed to purge collection %s: %w", resolved, err)
	}
	if err := r.cfg.Index.DeleteCollection(ctx, resolved); err != nil {
		return fmt.Errorf("failed to delete collection %s: %w", resolved, err)
	}

	log.Info("Deleted collection", "collection", resolved)
	return nil
}
