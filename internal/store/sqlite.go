package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	_ "github.com/mattn/go-sqlite3"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

// maxKNN is the largest k sqlite-vec accepts for a KNN query.
const maxKNN = 4096

func init() {
	// Register sqlite-vec extension
	sqlite_vec.Auto()
}

// SQLiteStore implements the VectorIndex interface using SQLite and sqlite-vec.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore creates a new SQLite vector index at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Open database with foreign keys enabled
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Debug("Opened SQLite vector index", "path", dbPath)

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateOrGetCollection returns the named collection, creating it with
// metadata if it does not exist. Metadata of an existing collection is kept.
func (s *SQLiteStore) CreateOrGetCollection(ctx context.Context, name string, metadata map[string]any) (*Collection, error) {
	if name == "" {
		return nil, fmt.Errorf("collection name must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	metaJSON, err := encodeMetadata(metadata)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO collections (name, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO NOTHING
	`, name, metaJSON, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}

	return s.getCollection(ctx, "name = ?", name)
}

// GetCollection retrieves a collection by name. It returns nil if the
// collection does not exist.
func (s *SQLiteStore) GetCollection(ctx context.Context, name string) (*Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.getCollection(ctx, "name = ?", name)
}

func (s *SQLiteStore) getCollection(ctx context.Context, where string, arg any) (*Collection, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, metadata, dimensions, created_at, updated_at
		FROM collections WHERE `+where, arg)

	c, err := scanCollection(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get collection: %w", err)
	}
	return c, nil
}

// ListCollections returns all collections ordered by name.
func (s *SQLiteStore) ListCollections(ctx context.Context) ([]Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, metadata, dimensions, created_at, updated_at
		FROM collections ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	defer rows.Close()

	var collections []Collection
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan collection: %w", err)
		}
		collections = append(collections, *c)
	}

	return collections, rows.Err()
}

// DeleteCollection deletes a collection with all its children and vectors.
func (s *SQLiteStore) DeleteCollection(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var collectionID int64
	err = tx.QueryRowContext(ctx, "SELECT id FROM collections WHERE name = ?", name).Scan(&collectionID)
	if err == sql.ErrNoRows {
		return nil // Collection doesn't exist
	}
	if err != nil {
		return fmt.Errorf("failed to get collection ID: %w", err)
	}

	dims, err := vectorDimensions(ctx, tx)
	if err != nil {
		return err
	}
	if dims > 0 {
		if _, err := tx.ExecContext(ctx, "DELETE FROM child_vectors WHERE collection_id = ?", collectionID); err != nil {
			return fmt.Errorf("failed to delete vectors: %w", err)
		}
	}

	// Delete collection (cascades to children)
	if _, err := tx.ExecContext(ctx, "DELETE FROM collections WHERE id = ?", collectionID); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}

	return tx.Commit()
}

// Add replaces the children of parentID with children and their embeddings
// in a single transaction. Children are keyed by ID, so re-adding the same
// parent overwrites instead of duplicating.
func (s *SQLiteStore) Add(ctx context.Context, collectionID int64, parentID string, children []Child, embeddings [][]float32) error {
	if len(children) != len(embeddings) {
		return fmt.Errorf("children and embeddings count mismatch: %d != %d", len(children), len(embeddings))
	}
	if len(children) == 0 {
		return nil
	}
	dims := len(embeddings[0])
	for i, emb := range embeddings {
		if len(emb) != dims || dims == 0 {
			return fmt.Errorf("embedding %d has %d dimensions, expected %d", i, len(emb), dims)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := ensureVectorTable(ctx, tx, dims); err != nil {
		return fmt.Errorf("failed to ensure vector table: %w", err)
	}

	if err := deleteChildren(ctx, tx, collectionID, []string{parentID}); err != nil {
		return err
	}

	for i, child := range children {
		if child.ParentID != "" && child.ParentID != parentID {
			return fmt.Errorf("child %s belongs to parent %s, not %s", child.ID, child.ParentID, parentID)
		}
		metaJSON, err := encodeMetadata(child.Metadata)
		if err != nil {
			return err
		}

		// A child ID may still exist under another parent of this collection
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM child_vectors WHERE child_rowid IN (
				SELECT id FROM children WHERE collection_id = ? AND child_id = ?
			)`, collectionID, child.ID); err != nil {
			return fmt.Errorf("failed to delete old vector for child %s: %w", child.ID, err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM children WHERE collection_id = ? AND child_id = ?",
			collectionID, child.ID); err != nil {
			return fmt.Errorf("failed to delete old child %s: %w", child.ID, err)
		}

		result, err := tx.ExecContext(ctx, `
			INSERT INTO children (collection_id, child_id, parent_id, chunk_index, content, metadata)
			VALUES (?, ?, ?, ?, ?, ?)
		`, collectionID, child.ID, parentID, child.ChunkIndex, child.Content, metaJSON)
		if err != nil {
			return fmt.Errorf("failed to insert child %d: %w", i, err)
		}

		rowID, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get child row ID: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO child_vectors (child_rowid, collection_id, embedding)
			VALUES (?, ?, ?)
		`, rowID, collectionID, serializeEmbedding(embeddings[i]))
		if err != nil {
			return fmt.Errorf("failed to insert vector for child %d: %w", i, err)
		}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx, "UPDATE collections SET dimensions = ?, updated_at = ? WHERE id = ?",
		dims, now, collectionID); err != nil {
		return fmt.Errorf("failed to update collection: %w", err)
	}

	return tx.Commit()
}

// DeleteByParent deletes every child of the given parents.
func (s *SQLiteStore) DeleteByParent(ctx context.Context, collectionID int64, parentIDs ...string) error {
	if len(parentIDs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := deleteChildren(ctx, tx, collectionID, parentIDs); err != nil {
		return err
	}
	return tx.Commit()
}

func deleteChildren(ctx context.Context, tx *sql.Tx, collectionID int64, parentIDs []string) error {
	dims, err := vectorDimensions(ctx, tx)
	if err != nil {
		return err
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(parentIDs)), ",")
	args := make([]any, 0, len(parentIDs)+1)
	args = append(args, collectionID)
	for _, id := range parentIDs {
		args = append(args, id)
	}

	if dims > 0 {
		_, err := tx.ExecContext(ctx, `
			DELETE FROM child_vectors WHERE child_rowid IN (
				SELECT id FROM children WHERE collection_id = ? AND parent_id IN (`+placeholders+`)
			)`, args...)
		if err != nil {
			return fmt.Errorf("failed to delete vectors: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx,
		"DELETE FROM children WHERE collection_id = ? AND parent_id IN ("+placeholders+")", args...)
	if err != nil {
		return fmt.Errorf("failed to delete children: %w", err)
	}
	return nil
}

// ParentIDs returns the distinct parent IDs referenced by a collection.
func (s *SQLiteStore) ParentIDs(ctx context.Context, collectionID int64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT parent_id FROM children WHERE collection_id = ? ORDER BY parent_id", collectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list parents: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan parent ID: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Query returns the k children of a collection nearest to embedding.
func (s *SQLiteStore) Query(ctx context.Context, collectionID int64, embedding []float32, k int) ([]QueryResult, error) {
	if k <= 0 {
		return nil, nil
	}
	if k > maxKNN {
		k = maxKNN
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	dims, err := vectorDimensions(ctx, s.db)
	if err != nil {
		return nil, err
	}
	if dims == 0 {
		// Nothing has been indexed yet
		return nil, nil
	}
	if dims != len(embedding) {
		return nil, fmt.Errorf("query has %d dimensions, index has %d", len(embedding), dims)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT
			c.child_id, c.parent_id, c.chunk_index, c.content, c.metadata,
			cv.distance
		FROM child_vectors cv
		JOIN children c ON c.id = cv.child_rowid
		WHERE cv.embedding MATCH ?
			AND k = ?
			AND cv.collection_id = ?
		ORDER BY cv.distance ASC
	`, serializeEmbedding(embedding), k, collectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	var results []QueryResult
	for rows.Next() {
		var result QueryResult
		var metaJSON string

		if err := rows.Scan(
			&result.Child.ID, &result.Child.ParentID, &result.Child.ChunkIndex,
			&result.Child.Content, &metaJSON, &result.Distance,
		); err != nil {
			return nil, fmt.Errorf("failed to scan query result: %w", err)
		}

		if result.Child.Metadata, err = decodeMetadata(metaJSON); err != nil {
			return nil, err
		}
		result.Score = 1 - result.Distance // Convert distance to similarity

		results = append(results, result)
	}

	return results, rows.Err()
}

// GetStats returns statistics for a collection.
func (s *SQLiteStore) GetStats(ctx context.Context, collectionID int64) (*CollectionStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats CollectionStats
	stats.CollectionID = collectionID

	err := s.db.QueryRowContext(ctx, "SELECT name FROM collections WHERE id = ?", collectionID).Scan(&stats.CollectionName)
	if err != nil {
		return nil, fmt.Errorf("failed to get collection name: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT parent_id)
		FROM children WHERE collection_id = ?
	`, collectionID).Scan(&stats.ChildCount, &stats.ParentCount)
	if err != nil {
		return nil, fmt.Errorf("failed to get child stats: %w", err)
	}

	return &stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCollection(row rowScanner) (*Collection, error) {
	var c Collection
	var metaJSON, createdAt, updatedAt string

	if err := row.Scan(&c.ID, &c.Name, &metaJSON, &c.Dimensions, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	meta, err := decodeMetadata(metaJSON)
	if err != nil {
		return nil, err
	}
	c.Metadata = meta
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	c.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &c, nil
}

func encodeMetadata(metadata map[string]any) (string, error) {
	if len(metadata) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("failed to encode metadata: %w", err)
	}
	return string(data), nil
}

func decodeMetadata(s string) (map[string]any, error) {
	if s == "" || s == "{}" {
		return nil, nil
	}
	var metadata map[string]any
	if err := json.Unmarshal([]byte(s), &metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	return metadata, nil
}

// serializeEmbedding converts a float32 slice to bytes for sqlite-vec.
func serializeEmbedding(embedding []float32) []byte {
	buf := make([]byte, len(embedding)*4)
	for i, v := range embedding {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

var _ VectorIndex = (*SQLiteStore)(nil)
