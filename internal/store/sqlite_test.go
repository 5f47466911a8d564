package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSQLiteStore(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "nested", "test.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	// Verify database file was created
	_, err = os.Stat(dbPath)
	assert.NoError(t, err)
}

func TestCollectionCreateOrGet(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()
	ctx := context.Background()

	created, err := store.CreateOrGetCollection(ctx, "manuals", map[string]any{"processDate": "2024-05-01T00:00:00Z"})
	require.NoError(t, err)
	assert.Equal(t, "manuals", created.Name)
	assert.Equal(t, "2024-05-01T00:00:00Z", created.Metadata["processDate"])
	assert.Equal(t, 0, created.Dimensions)

	// Second call returns the same collection and keeps the first metadata
	again, err := store.CreateOrGetCollection(ctx, "manuals", map[string]any{"processDate": "later"})
	require.NoError(t, err)
	assert.Equal(t, created.ID, again.ID)
	assert.Equal(t, "2024-05-01T00:00:00Z", again.Metadata["processDate"])

	retrieved, err := store.GetCollection(ctx, "manuals")
	require.NoError(t, err)
	require.NotNil(t, retrieved)
	assert.Equal(t, created.ID, retrieved.ID)

	notFound, err := store.GetCollection(ctx, "non-existent")
	require.NoError(t, err)
	assert.Nil(t, notFound)

	_, err = store.CreateOrGetCollection(ctx, "", nil)
	assert.Error(t, err)
}

func TestCollectionList(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()
	ctx := context.Background()

	_, err := store.CreateOrGetCollection(ctx, "zeta", nil)
	require.NoError(t, err)
	_, err = store.CreateOrGetCollection(ctx, "alpha", nil)
	require.NoError(t, err)

	collections, err := store.ListCollections(ctx)
	require.NoError(t, err)
	require.Len(t, collections, 2)

	// Should be sorted by name
	assert.Equal(t, "alpha", collections[0].Name)
	assert.Equal(t, "zeta", collections[1].Name)
}

func TestAddAndQuery(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()
	ctx := context.Background()

	coll, err := store.CreateOrGetCollection(ctx, "test", nil)
	require.NoError(t, err)

	children := []struct {
		id        string
		parent    string
		embedding []float32
	}{
		{"c-north", "p-1", []float32{1, 0, 0, 0}},
		{"c-east", "p-2", []float32{0, 1, 0, 0}},
		{"c-northeast", "p-1", []float32{0.7, 0.7, 0, 0}},
	}
	for _, c := range children {
		err := store.Add(ctx, coll.ID, c.parent,
			[]Child{{ID: c.id, ParentID: c.parent, Content: "content of " + c.id, Metadata: map[string]any{"source": "a.html"}}},
			[][]float32{c.embedding})
		require.NoError(t, err)
	}

	results, err := store.Query(ctx, coll.ID, []float32{0.9, 0.1, 0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "c-north", results[0].Child.ID)
	assert.Equal(t, "p-1", results[0].Child.ParentID)
	assert.Equal(t, "a.html", results[0].Child.Metadata["source"])

	// Scores should be in descending order (most similar first)
	assert.True(t, results[0].Score >= results[1].Score)
	assert.True(t, results[1].Score >= results[2].Score)

	reloaded, err := store.GetCollection(ctx, "test")
	require.NoError(t, err)
	assert.Equal(t, 4, reloaded.Dimensions)
}

func TestQueryIsScopedToCollection(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()
	ctx := context.Background()

	a, err := store.CreateOrGetCollection(ctx, "a", nil)
	require.NoError(t, err)
	b, err := store.CreateOrGetCollection(ctx, "b", nil)
	require.NoError(t, err)

	require.NoError(t, store.Add(ctx, a.ID, "pa", []Child{{ID: "ca", Content: "a"}}, [][]float32{{1, 0, 0, 0}}))
	require.NoError(t, store.Add(ctx, b.ID, "pb", []Child{{ID: "cb", Content: "b"}}, [][]float32{{1, 0, 0, 0}}))

	results, err := store.Query(ctx, a.ID, []float32{1, 0, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "pa", results[0].Child.ParentID)
}

func TestQueryEmptyIndex(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()
	ctx := context.Background()

	coll, err := store.CreateOrGetCollection(ctx, "empty", nil)
	require.NoError(t, err)

	results, err := store.Query(ctx, coll.ID, []float32{1, 0, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestAddIsIdempotent(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()
	ctx := context.Background()

	coll, err := store.CreateOrGetCollection(ctx, "test", nil)
	require.NoError(t, err)

	children := []Child{
		{ID: "c0", ParentID: "p", ChunkIndex: 0, Content: "first"},
		{ID: "c1", ParentID: "p", ChunkIndex: 1, Content: "second"},
	}
	embeddings := [][]float32{{0.1, 0.2, 0.3, 0.4}, {0.5, 0.6, 0.7, 0.8}}

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Add(ctx, coll.ID, "p", children, embeddings))
	}

	stats, err := store.GetStats(ctx, coll.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.ChildCount)
	assert.Equal(t, 1, stats.ParentCount)

	results, err := store.Query(ctx, coll.ID, []float32{0.1, 0.2, 0.3, 0.4}, 10)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestDeleteByParent(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()
	ctx := context.Background()

	coll, err := store.CreateOrGetCollection(ctx, "test", nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		parent := fmt.Sprintf("p%d", i)
		err := store.Add(ctx, coll.ID, parent,
			[]Child{{ID: parent + "-c", Content: "x"}},
			[][]float32{{float32(i + 1), 1, 0, 0}})
		require.NoError(t, err)
	}

	require.NoError(t, store.DeleteByParent(ctx, coll.ID, "p0", "p2"))

	ids, err := store.ParentIDs(ctx, coll.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, ids)

	results, err := store.Query(ctx, coll.ID, []float32{1, 1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "p1", results[0].Child.ParentID)
}

func TestDeleteCollection(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()
	ctx := context.Background()

	coll, err := store.CreateOrGetCollection(ctx, "doomed", nil)
	require.NoError(t, err)
	keep, err := store.CreateOrGetCollection(ctx, "kept", nil)
	require.NoError(t, err)

	require.NoError(t, store.Add(ctx, coll.ID, "p", []Child{{ID: "c", Content: "x"}}, [][]float32{{1, 0, 0, 0}}))
	require.NoError(t, store.Add(ctx, keep.ID, "q", []Child{{ID: "d", Content: "y"}}, [][]float32{{1, 0, 0, 0}}))

	require.NoError(t, store.DeleteCollection(ctx, "doomed"))

	gone, err := store.GetCollection(ctx, "doomed")
	require.NoError(t, err)
	assert.Nil(t, gone)

	results, err := store.Query(ctx, keep.ID, []float32{1, 0, 0, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)

	// Deleting a missing collection is not an error
	assert.NoError(t, store.DeleteCollection(ctx, "doomed"))
}

func TestConcurrentAddAndQuery(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()
	ctx := context.Background()

	coll, err := store.CreateOrGetCollection(ctx, "busy", nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			parent := fmt.Sprintf("p%d", i)
			children := []Child{{ID: parent + "-a", Content: "a"}, {ID: parent + "-b", Content: "b"}}
			embeddings := [][]float32{{1, float32(i), 0, 0}, {0, float32(i), 1, 0}}
			assert.NoError(t, store.Add(ctx, coll.ID, parent, children, embeddings))

			_, err := store.Query(ctx, coll.ID, []float32{1, 1, 1, 0}, 4)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	stats, err := store.GetStats(ctx, coll.ID)
	require.NoError(t, err)
	assert.Equal(t, 16, stats.ChildCount)
	assert.Equal(t, 8, stats.ParentCount)
}

func TestSerializeEmbedding(t *testing.T) {
	embedding := []float32{1.0, 2.0, 3.0, 4.0}
	serialized := serializeEmbedding(embedding)

	// Each float32 is 4 bytes
	assert.Len(t, serialized, 16)

	// Verify it's little-endian
	// 1.0f = 0x3f800000
	assert.Equal(t, byte(0x00), serialized[0])
	assert.Equal(t, byte(0x00), serialized[1])
	assert.Equal(t, byte(0x80), serialized[2])
	assert.Equal(t, byte(0x3f), serialized[3])
}

func TestChildEmbeddingMismatch(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()
	ctx := context.Background()

	coll, err := store.CreateOrGetCollection(ctx, "test", nil)
	require.NoError(t, err)

	err = store.Add(ctx, coll.ID, "p", []Child{{ID: "c", Content: "x"}}, [][]float32{})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "mismatch")
}

func TestDimensionChangeRejected(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()
	ctx := context.Background()

	coll, err := store.CreateOrGetCollection(ctx, "test", nil)
	require.NoError(t, err)

	require.NoError(t, store.Add(ctx, coll.ID, "p", []Child{{ID: "c", Content: "x"}}, [][]float32{{1, 0, 0, 0}}))

	err = store.Add(ctx, coll.ID, "q", []Child{{ID: "d", Content: "y"}}, [][]float32{{1, 0}})
	assert.Error(t, err)

	_, err = store.Query(ctx, coll.ID, []float32{1, 0}, 1)
	assert.Error(t, err)
}

// Helper function to create a test store
func setupTestStore(t *testing.T) *SQLiteStore {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	return store
}
