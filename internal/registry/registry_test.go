package registry

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nickcecere/strata/internal/blobstore"
	"github.com/nickcecere/strata/internal/embeddings/embeddingstest"
	"github.com/nickcecere/strata/internal/retriever"
	"github.com/nickcecere/strata/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingIndex counts collection builds and can hold them until released.
type countingIndex struct {
	store.VectorIndex
	creates atomic.Int32
	gate    chan struct{}
	fail    error
}

func (c *countingIndex) CreateOrGetCollection(ctx context.Context, name string, metadata map[string]any) (*store.Collection, error) {
	c.creates.Add(1)
	if c.gate != nil {
		<-c.gate
	}
	if c.fail != nil {
		return nil, c.fail
	}
	return c.VectorIndex.CreateOrGetCollection(ctx, name, metadata)
}

func newRegistry(t *testing.T) (*Registry, *countingIndex) {
	t.Helper()
	dir := t.TempDir()

	index, err := store.NewSQLiteStore(filepath.Join(dir, "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { index.Close() })

	blobs, err := blobstore.NewLocalStore(filepath.Join(dir, "parents"))
	require.NoError(t, err)

	counting := &countingIndex{VectorIndex: index}
	reg, err := New(Config{
		Index:             counting,
		Blobs:             blobs,
		Embedder:          embeddingstest.New(),
		Options:           retriever.DefaultOptions(),
		DefaultCollection: "default",
	})
	require.NoError(t, err)
	return reg, counting
}

func TestCollectionName(t *testing.T) {
	assert.True(t, Default().IsDefault())
	assert.True(t, Named("  ").IsDefault())
	assert.False(t, Named("docs").IsDefault())
	assert.Equal(t, "fallback", Default().Resolve("fallback"))
	assert.Equal(t, "docs", Named(" docs ").Resolve("fallback"))

	var zero CollectionName
	assert.Equal(t, Default(), zero)
}

func TestGetIdentity(t *testing.T) {
	reg, counting := newRegistry(t)
	ctx := context.Background()

	a, err := reg.Get(ctx, Named("docs"))
	require.NoError(t, err)
	b, err := reg.Get(ctx, Named("docs"))
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.Equal(t, int32(1), counting.creates.Load())
	assert.Equal(t, Ready, reg.State(Named("docs")))
}

func TestGetDefault(t *testing.T) {
	reg, _ := newRegistry(t)
	ctx := context.Background()

	a, err := reg.Get(ctx, Default())
	require.NoError(t, err)
	assert.Equal(t, "default", a.Name())

	b, err := reg.Get(ctx, Named("default"))
	require.NoError(t, err)
	assert.Same(t, a, b)
}

func TestGetConcurrentBuildsOnce(t *testing.T) {
	reg, counting := newRegistry(t)
	counting.gate = make(chan struct{})
	ctx := context.Background()

	const n = 16
	results := make([]*retriever.Retriever, n)
	var started, done sync.WaitGroup
	started.Add(n)
	done.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer done.Done()
			started.Done()
			r, err := reg.Get(ctx, Named("shared"))
			assert.NoError(t, err)
			results[i] = r
		}(i)
	}
	started.Wait()

	assert.Eventually(t, func() bool {
		return reg.State(Named("shared")) == Building
	}, time.Second, time.Millisecond)

	close(counting.gate)
	done.Wait()

	assert.Equal(t, int32(1), counting.creates.Load())
	for _, r := range results {
		assert.Same(t, results[0], r)
	}
	assert.Equal(t, Ready, reg.State(Named("shared")))
}

func TestGetDefaultFailureWrapsNotFound(t *testing.T) {
	reg, counting := newRegistry(t)
	counting.fail = errors.New("disk gone")

	_, err := reg.Get(context.Background(), Default())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, Uninitialized, reg.State(Default()))

	_, err = reg.Get(context.Background(), Named("docs"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestGetCancelledCaller(t *testing.T) {
	reg, counting := newRegistry(t)
	counting.gate = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := reg.Get(ctx, Named("docs"))
	assert.ErrorIs(t, err, context.Canceled)

	// The shared build still completes for later callers
	close(counting.gate)
	r, err := reg.Get(context.Background(), Named("docs"))
	require.NoError(t, err)
	assert.Equal(t, "docs", r.Name())
}

func TestLookup(t *testing.T) {
	reg, _ := newRegistry(t)
	ctx := context.Background()

	_, err := reg.Lookup(ctx, Named("missing"))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, retriever.ErrNotFound)
	assert.EqualError(t, err, `collection "missing": collection not found`)
	assert.Equal(t, Uninitialized, reg.State(Named("missing")))

	created, err := reg.Get(ctx, Named("docs"))
	require.NoError(t, err)
	found, err := reg.Lookup(ctx, Named("docs"))
	require.NoError(t, err)
	assert.Same(t, created, found)
}

func TestInvalidateAndDelete(t *testing.T) {
	reg, counting := newRegistry(t)
	ctx := context.Background()

	r, err := reg.Get(ctx, Named("docs"))
	require.NoError(t, err)
	_, err = r.AddDocuments(ctx, []retriever.Document{{
		Content:  "some content worth keeping around",
		Metadata: map[string]any{retriever.MetaSource: "a.html"},
	}})
	require.NoError(t, err)

	reg.Invalidate(Named("docs"))
	assert.Equal(t, Uninitialized, reg.State(Named("docs")))
	rebuilt, err := reg.Get(ctx, Named("docs"))
	require.NoError(t, err)
	assert.NotSame(t, r, rebuilt)
	assert.Equal(t, int32(2), counting.creates.Load())

	require.NoError(t, reg.DeleteCollection(ctx, Named("docs")))
	assert.Equal(t, Uninitialized, reg.State(Named("docs")))

	colls, err := reg.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, colls)

	err = reg.DeleteCollection(ctx, Named("docs"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLookupDefaultOnEmptyIndex(t *testing.T) {
	reg, counting := newRegistry(t)
	ctx := context.Background()

	ret, err := reg.Lookup(ctx, Default())
	require.NoError(t, err)
	assert.Equal(t, "default", ret.Name())
	assert.Equal(t, Ready, reg.State(Default()))

	results, err := ret.Retrieve(ctx, "anything at all")
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)

	named, err := reg.Lookup(ctx, Named("default"))
	require.NoError(t, err)
	assert.Same(t, ret, named)
	assert.Equal(t, int32(1), counting.creates.Load())
}

func TestDeleteMissingDefaultDoesNotCreateIt(t *testing.T) {
	reg, counting := newRegistry(t)
	ctx := context.Background()

	err := reg.DeleteCollection(ctx, Default())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int32(0), counting.creates.Load())

	colls, err := reg.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, colls)
}

func TestStatsDoesNotBuild(t *testing.T) {
	reg, counting := newRegistry(t)
	ctx := context.Background()

	r, err := reg.Get(ctx, Named("docs"))
	require.NoError(t, err)
	_, err = r.AddDocuments(ctx, []retriever.Document{{
		Content:  "a short document",
		Metadata: map[string]any{retriever.MetaSource: "a.html"},
	}})
	require.NoError(t, err)
	reg.Invalidate(Named("docs"))

	colls, err := reg.List(ctx)
	require.NoError(t, err)
	require.Len(t, colls, 1)

	stats, err := reg.Stats(ctx, colls[0])
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ParentCount)
	assert.Equal(t, 1, stats.ChildCount)
	assert.Equal(t, Uninitialized, reg.State(Named("docs")))
	assert.Equal(t, int32(1), counting.creates.Load())
}
