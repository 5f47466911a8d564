package config

import (
	"os"
	"path/filepath"
)

// Default configuration values
const (
	// Embedding defaults
	DefaultEmbeddingProvider = "ollama"
	DefaultOllamaURL         = "http://localhost:11434"
	DefaultOllamaEmbedModel  = "mxbai-embed-large"
	DefaultOpenAIEmbedModel  = "text-embedding-3-small"

	// Splitter defaults
	DefaultParentChunkSize    = 2000
	DefaultParentChunkOverlap = 200
	DefaultChildChunkSize     = 200
	DefaultChildChunkOverlap  = 20

	// Docstore defaults
	DocstoreLocal        = "local"
	DocstoreSQLite       = "sqlite"
	DefaultDocstoreType  = DocstoreLocal
	DefaultDocstoreDir   = "parent_documents"
	DefaultDocstoreDB    = "docstore.db"
	DefaultDBFileName    = "index.db"
	DefaultSourceDirName = "sources"

	// Ingestion defaults
	DefaultBatchSize   = 500
	DefaultConcurrency = 2

	// Retrieval defaults
	DefaultCollection = "default"
	DefaultTopK       = 4
	DefaultChildK     = 20

	// Server defaults
	DefaultServerAddr = "127.0.0.1:8383"
)

// DefaultExtensions returns the source file extensions ingested by default.
func DefaultExtensions() []string {
	return []string{".html"}
}

// DefaultIgnorePatterns returns the default list of source patterns to skip.
func DefaultIgnorePatterns() []string {
	return []string{
		// Metadata descriptors
		"metadata.json",
		"metadata.toml",

		// Editor and OS noise
		"*.swp",
		"*.swo",
		"*~",
		".DS_Store",
		"Thumbs.db",

		// Partial downloads
		"*.part",
		"*.crdownload",
		"*.tmp",
	}
}

// DefaultConfigDir returns the default configuration directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/strata"
	}
	return filepath.Join(home, ".config", "strata")
}

// DefaultDataDir returns the default data directory path.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".local/share/strata"
	}
	return filepath.Join(home, ".local", "share", "strata")
}

// DefaultDatabasePath returns the default vector index database path.
func DefaultDatabasePath() string {
	return filepath.Join(DefaultDataDir(), DefaultDBFileName)
}

// DefaultDocstorePath returns the default parent document location for the
// local docstore.
func DefaultDocstorePath() string {
	return filepath.Join(DefaultDataDir(), DefaultDocstoreDir)
}

// DefaultSourceDir returns the default source root scanned by ingestion.
func DefaultSourceDir() string {
	return filepath.Join(DefaultDataDir(), DefaultSourceDirName)
}
