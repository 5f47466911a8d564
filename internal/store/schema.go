package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/charmbracelet/log"
)

const currentSchemaVersion = 1

// Schema definitions
const schemaVersionTable = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY
);
`

const indexMetaTable = `
CREATE TABLE IF NOT EXISTS index_meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

const collectionsTable = `
CREATE TABLE IF NOT EXISTS collections (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT UNIQUE NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}',
	dimensions INTEGER NOT NULL DEFAULT 0,
	created_at TEXT DEFAULT (datetime('now')),
	updated_at TEXT DEFAULT (datetime('now'))
);
`

const childrenTable = `
CREATE TABLE IF NOT EXISTS children (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	collection_id INTEGER NOT NULL REFERENCES collections(id) ON DELETE CASCADE,
	child_id TEXT NOT NULL,
	parent_id TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	content TEXT NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}',
	UNIQUE(collection_id, child_id)
);

CREATE INDEX IF NOT EXISTS idx_children_parent ON children(collection_id, parent_id);
`

const dimensionsKey = "vector_dimensions"

// createVectorTable creates the sqlite-vec virtual table for the given dimensions.
// Vectors are partitioned by collection so a query only scans its own collection.
func createVectorTable(ctx context.Context, tx *sql.Tx, dimensions int) error {
	query := fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS child_vectors USING vec0(
			child_rowid INTEGER PRIMARY KEY,
			collection_id INTEGER PARTITION KEY,
			embedding float[%d] distance_metric=cosine
		);
	`, dimensions)

	if _, err := tx.ExecContext(ctx, query); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, "INSERT OR REPLACE INTO index_meta (key, value) VALUES (?, ?)",
		dimensionsKey, strconv.Itoa(dimensions))
	return err
}

// initSchema initializes the database schema.
func initSchema(db *sql.DB) error {
	// Create schema version table
	if _, err := db.Exec(schemaVersionTable); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	// Check current version
	var version int
	err := db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if err == sql.ErrNoRows {
		version = 0
	} else if err != nil {
		return fmt.Errorf("failed to check schema version: %w", err)
	}

	if version >= currentSchemaVersion {
		log.Debug("Schema is up to date", "version", version)
		return nil
	}

	log.Debug("Migrating schema", "from", version, "to", currentSchemaVersion)

	if version < 1 {
		if err := migrateV1(db); err != nil {
			return fmt.Errorf("failed to migrate to v1: %w", err)
		}
	}

	return nil
}

// migrateV1 creates the initial schema.
func migrateV1(db *sql.DB) error {
	log.Debug("Applying migration v1")

	tables := []string{indexMetaTable, collectionsTable, childrenTable}
	for _, table := range tables {
		if _, err := db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	// The vector table is created on the first Add, once the embedding
	// dimensions are known.

	if _, err := db.Exec("INSERT OR REPLACE INTO schema_version (version) VALUES (?)", 1); err != nil {
		return fmt.Errorf("failed to update schema version: %w", err)
	}

	return nil
}

// vectorDimensions returns the dimensions of the vector table, or 0 if it
// has not been created yet.
func vectorDimensions(ctx context.Context, q interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}) (int, error) {
	var value string
	err := q.QueryRowContext(ctx, "SELECT value FROM index_meta WHERE key = ?", dimensionsKey).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read vector dimensions: %w", err)
	}
	dims, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid vector dimensions %q: %w", value, err)
	}
	return dims, nil
}

// ensureVectorTable ensures the vector table exists with the given dimensions.
// All collections share one table, so a dimension change is rejected.
func ensureVectorTable(ctx context.Context, tx *sql.Tx, dimensions int) error {
	existing, err := vectorDimensions(ctx, tx)
	if err != nil {
		return err
	}

	if existing == 0 {
		log.Debug("Creating vector table", "dimensions", dimensions)
		return createVectorTable(ctx, tx, dimensions)
	}
	if existing != dimensions {
		return fmt.Errorf("embedding dimensions %d do not match index dimensions %d", dimensions, existing)
	}
	return nil
}
