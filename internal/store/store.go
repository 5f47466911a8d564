package store

import "context"

// VectorIndex defines the interface for per-collection vector storage.
type VectorIndex interface {
	// Collection management
	CreateOrGetCollection(ctx context.Context, name string, metadata map[string]any) (*Collection, error)
	GetCollection(ctx context.Context, name string) (*Collection, error)
	ListCollections(ctx context.Context) ([]Collection, error)
	DeleteCollection(ctx context.Context, name string) error

	// Child operations
	Add(ctx context.Context, collectionID int64, parentID string, children []Child, embeddings [][]float32) error
	DeleteByParent(ctx context.Context, collectionID int64, parentIDs ...string) error
	ParentIDs(ctx context.Context, collectionID int64) ([]string, error)

	// Query
	Query(ctx context.Context, collectionID int64, embedding []float32, k int) ([]QueryResult, error)

	// Stats
	GetStats(ctx context.Context, collectionID int64) (*CollectionStats, error)

	Close() error
}
