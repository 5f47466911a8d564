// Package store provides the per-collection vector index using SQLite and sqlite-vec.
package store

import "time"

// Collection is a named namespace with its own vector partition.
type Collection struct {
	ID         int64          `json:"id"`
	Name       string         `json:"name"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Dimensions int            `json:"dimensions"` // 0 until the first vector is added
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Child is a child chunk to be indexed (input for Add).
type Child struct {
	ID         string         `json:"id"`
	ParentID   string         `json:"parent_id"`
	ChunkIndex int            `json:"chunk_index"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// QueryResult is a child chunk matched by a vector query.
type QueryResult struct {
	Child    Child   `json:"child"`
	Distance float64 `json:"distance"` // Cosine distance from sqlite-vec
	Score    float64 `json:"score"`    // 1 - distance (similarity)
}

// CollectionStats contains statistics about a collection.
type CollectionStats struct {
	CollectionID   int64  `json:"collection_id"`
	CollectionName string `json:"collection_name"`
	ParentCount    int    `json:"parent_count"`
	ChildCount     int    `json:"child_count"`
}
