package retriever

import (
	"errors"
	"fmt"

	"github.com/nickcecere/strata/internal/blobstore"
)

// ErrNotFound is returned when a parent does not exist in the blob store.
var ErrNotFound = blobstore.ErrNotFound

// ErrEmptyQuery is returned by Retrieve for a blank query.
var ErrEmptyQuery = errors.New("query must not be empty")

// EmbeddingError reports a failure of the embedding function.
type EmbeddingError struct {
	Source string
	Err    error
}

func (e *EmbeddingError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("embedding failed: %v", e.Err)
	}
	return fmt.Sprintf("embedding failed for %s: %v", e.Source, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// StoreWriteError reports a failed parent write to the blob store.
type StoreWriteError struct {
	ParentID string
	Err      error
}

func (e *StoreWriteError) Error() string {
	return fmt.Sprintf("failed to store parent %s: %v", e.ParentID, e.Err)
}

func (e *StoreWriteError) Unwrap() error { return e.Err }

// IndexWriteError reports a failed child write to the vector index.
type IndexWriteError struct {
	ParentID string
	Err      error
}

func (e *IndexWriteError) Error() string {
	return fmt.Sprintf("failed to index children of parent %s: %v", e.ParentID, e.Err)
}

func (e *IndexWriteError) Unwrap() error { return e.Err }

// ConsistencyError reports a child whose parent is missing from the blob store.
type ConsistencyError struct {
	Collection string
	ParentID   string
	Err        error
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("collection %s: child references missing parent %s: %v", e.Collection, e.ParentID, e.Err)
}

func (e *ConsistencyError) Unwrap() error { return e.Err }
