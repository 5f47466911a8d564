// Package retriever implements parent-child retrieval: small child chunks are
// embedded and searched, their larger parent chunks are returned.
package retriever

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/nickcecere/strata/internal/blobstore"
	"github.com/nickcecere/strata/internal/embeddings"
	"github.com/nickcecere/strata/internal/splitter"
	"github.com/nickcecere/strata/internal/store"
)

// idNamespace scopes the content-derived parent and child IDs.
var idNamespace = uuid.MustParse("6f1c9b3e-2d4a-5e8f-9a7b-3c2d1e0f4a5b")

// Options configures a Retriever.
type Options struct {
	// Parent and Child split documents and parents respectively.
	Parent *splitter.Splitter
	Child  *splitter.Splitter

	// TopK is the number of parents Retrieve returns.
	TopK int

	// ChildK is the number of children fetched from the index per query.
	ChildK int
}

// DefaultOptions returns the 2000/200 parent and 200/20 child profiles.
func DefaultOptions() Options {
	return Options{
		Parent: splitter.MustNew(splitter.Options{ChunkSize: 2000, ChunkOverlap: 200}),
		Child:  splitter.MustNew(splitter.Options{ChunkSize: 200, ChunkOverlap: 20}),
		TopK:   4,
		ChildK: 20,
	}
}

// RetrieveOptions overrides per-query settings. Zero values use the
// retriever's defaults.
type RetrieveOptions struct {
	TopK   int
	ChildK int
	// MinScore drops children scoring below it. Nil keeps every match;
	// scores range over [-1, 1].
	MinScore *float64
}

// Retriever is bound to one collection. It owns no state beyond its
// collaborators, so it is safe for concurrent use.
type Retriever struct {
	collection store.Collection
	index      store.VectorIndex
	blobs      blobstore.Store
	embedder   embeddings.Service
	opts       Options
}

// New creates a retriever for collection.
func New(collection *store.Collection, index store.VectorIndex, blobs blobstore.Store, embedder embeddings.Service, opts Options) (*Retriever, error) {
	if collection == nil {
		return nil, fmt.Errorf("collection is required")
	}
	if index == nil || blobs == nil || embedder == nil {
		return nil, fmt.Errorf("index, blob store and embedder are required")
	}

	defaults := DefaultOptions()
	if opts.Parent == nil {
		opts.Parent = defaults.Parent
	}
	if opts.Child == nil {
		opts.Child = defaults.Child
	}
	if opts.TopK <= 0 {
		opts.TopK = defaults.TopK
	}
	if opts.ChildK <= 0 {
		opts.ChildK = defaults.ChildK
	}
	if opts.ChildK < opts.TopK {
		opts.ChildK = opts.TopK
	}

	return &Retriever{
		collection: *collection,
		index:      index,
		blobs:      blobs,
		embedder:   embedder,
		opts:       opts,
	}, nil
}

// Collection returns the collection the retriever is bound to.
func (r *Retriever) Collection() store.Collection {
	return r.collection
}

// Name returns the collection name.
func (r *Retriever) Name() string {
	return r.collection.Name
}

// ParentID derives the ID of a parent chunk from its position and content.
// Re-ingesting the same document yields the same IDs.
func ParentID(collection, source string, index int, content string) string {
	key := strings.Join([]string{collection, source, strconv.Itoa(index), content}, "\x1f")
	return uuid.NewSHA1(idNamespace, []byte(key)).String()
}

// childID derives the ID of a child chunk of parentID.
func childID(parentID string, index int, content string) string {
	key := strings.Join([]string{parentID, strconv.Itoa(index), content}, "\x1f")
	return uuid.NewSHA1(idNamespace, []byte(key)).String()
}

// AddDocuments splits, embeds and stores docs. Each parent is written to the
// blob store before its children are indexed, so every indexed child
// resolves. A failing document is skipped and reported in its Outcome; the
// returned error joins all document failures. A cancelled context stops the
// call and is returned as is.
func (r *Retriever) AddDocuments(ctx context.Context, docs []Document) ([]Outcome, error) {
	outcomes := make([]Outcome, 0, len(docs))
	var errs []error

	for _, doc := range docs {
		select {
		case <-ctx.Done():
			return outcomes, ctx.Err()
		default:
		}

		outcome := r.addDocument(ctx, doc)
		if outcome.Err != nil {
			if ctx.Err() != nil {
				return outcomes, ctx.Err()
			}
			log.Warn("Failed to add document", "collection", r.collection.Name, "source", outcome.Source, "error", outcome.Err)
			errs = append(errs, outcome.Err)
		}
		outcomes = append(outcomes, outcome)
	}

	return outcomes, errors.Join(errs...)
}

func (r *Retriever) addDocument(ctx context.Context, doc Document) Outcome {
	source := doc.Source()
	outcome := Outcome{Source: source}

	for parent := range r.opts.Parent.Split(doc.Content) {
		parentID := ParentID(r.collection.Name, source, parent.Index, parent.Content)

		meta := maps.Clone(doc.Metadata)
		if meta == nil {
			meta = make(map[string]any)
		}
		meta[MetaCollection] = r.collection.Name

		record := ParentChunk{
			ID:         parentID,
			Collection: r.collection.Name,
			Index:      parent.Index,
			Content:    parent.Content,
			Metadata:   meta,
			CreatedAt:  time.Now().UTC(),
		}
		payload, err := json.Marshal(record)
		if err != nil {
			outcome.Err = &StoreWriteError{ParentID: parentID, Err: err}
			return outcome
		}
		if err := r.blobs.Put(ctx, parentID, payload); err != nil {
			outcome.Err = &StoreWriteError{ParentID: parentID, Err: err}
			return outcome
		}

		chunks := r.opts.Child.SplitAll(parent.Content)
		texts := make([]string, len(chunks))
		children := make([]store.Child, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Content

			childMeta := maps.Clone(meta)
			childMeta[MetaParentID] = parentID
			children[i] = store.Child{
				ID:         childID(parentID, c.Index, c.Content),
				ParentID:   parentID,
				ChunkIndex: c.Index,
				Content:    c.Content,
				Metadata:   childMeta,
			}
		}

		vectors, err := r.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			outcome.Err = &EmbeddingError{Source: source, Err: err}
			return outcome
		}
		if len(vectors) != len(texts) {
			outcome.Err = &EmbeddingError{Source: source, Err: fmt.Errorf("got %d embeddings for %d children", len(vectors), len(texts))}
			return outcome
		}

		if err := r.index.Add(ctx, r.collection.ID, parentID, children, vectors); err != nil {
			outcome.Err = &IndexWriteError{ParentID: parentID, Err: err}
			return outcome
		}

		outcome.Parents++
		outcome.Children += len(children)
	}

	log.Debug("Added document", "collection", r.collection.Name, "source", source,
		"parents", outcome.Parents, "children", outcome.Children)
	return outcome
}

// Retrieve returns the parents of the children nearest to query, ranked by
// their best child. An empty collection yields an empty result.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]ParentChunk, error) {
	return r.RetrieveWithOptions(ctx, query, RetrieveOptions{})
}

// RetrieveWithOptions is Retrieve with per-query overrides.
func (r *Retriever) RetrieveWithOptions(ctx context.Context, query string, opts RetrieveOptions) ([]ParentChunk, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = r.opts.TopK
	}
	childK := opts.ChildK
	if childK <= 0 {
		childK = r.opts.ChildK
	}
	childK = max(childK, topK)

	log.Debug("Generating query embedding", "query", truncate(query, 50))
	queryEmbedding, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, &EmbeddingError{Err: err}
	}

	matches, err := r.index.Query(ctx, r.collection.ID, queryEmbedding, childK)
	if err != nil {
		return nil, fmt.Errorf("failed to query index: %w", err)
	}

	// Matches are ordered by distance, so the first child seen for a parent
	// is its best.
	seen := make(map[string]bool)
	var ranked []store.QueryResult
	for _, m := range matches {
		if seen[m.Child.ParentID] || (opts.MinScore != nil && m.Score < *opts.MinScore) {
			continue
		}
		seen[m.Child.ParentID] = true
		ranked = append(ranked, m)
		if len(ranked) == topK {
			break
		}
	}

	results := make([]ParentChunk, 0, len(ranked))
	for _, m := range ranked {
		parent, err := r.GetParent(ctx, m.Child.ParentID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, &ConsistencyError{Collection: r.collection.Name, ParentID: m.Child.ParentID, Err: err}
			}
			return nil, err
		}
		parent.Distance = m.Distance
		parent.Score = m.Score
		results = append(results, *parent)
	}

	log.Debug("Retrieve complete", "collection", r.collection.Name, "children", len(matches), "parents", len(results))
	return results, nil
}

// GetParent loads a parent chunk from the blob store.
func (r *Retriever) GetParent(ctx context.Context, id string) (*ParentChunk, error) {
	payload, err := r.blobs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	var parent ParentChunk
	if err := json.Unmarshal(payload, &parent); err != nil {
		return nil, fmt.Errorf("failed to decode parent %s: %w", id, err)
	}
	return &parent, nil
}

// DeleteParents removes parents and their children. Children go first so no
// indexed child is ever left pointing at a deleted parent.
func (r *Retriever) DeleteParents(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := r.index.DeleteByParent(ctx, r.collection.ID, ids...); err != nil {
		return &IndexWriteError{ParentID: ids[0], Err: err}
	}
	if err := r.blobs.Delete(ctx, ids...); err != nil {
		return &StoreWriteError{ParentID: ids[0], Err: err}
	}
	return nil
}

// Purge removes every parent and child of the collection.
func (r *Retriever) Purge(ctx context.Context) error {
	ids, err := r.index.ParentIDs(ctx, r.collection.ID)
	if err != nil {
		return err
	}
	return r.DeleteParents(ctx, ids...)
}

// Stats returns index statistics for the collection.
func (r *Retriever) Stats(ctx context.Context) (*store.CollectionStats, error) {
	return r.index.GetStats(ctx, r.collection.ID)
}

// truncate truncates a string to maxLen characters.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
