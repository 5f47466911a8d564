package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)

	// Embeddings defaults
	assert.Equal(t, DefaultEmbeddingProvider, cfg.Embeddings.Provider)
	assert.Equal(t, DefaultOllamaURL, cfg.Embeddings.Ollama.URL)
	assert.Equal(t, DefaultOllamaEmbedModel, cfg.Embeddings.Ollama.Model)
	assert.Equal(t, DefaultOpenAIEmbedModel, cfg.Embeddings.OpenAI.Model)

	// Splitter defaults
	assert.Equal(t, 2000, cfg.Splitter.Parent.ChunkSize)
	assert.Equal(t, 200, cfg.Splitter.Parent.ChunkOverlap)
	assert.Equal(t, 200, cfg.Splitter.Child.ChunkSize)
	assert.Equal(t, 20, cfg.Splitter.Child.ChunkOverlap)

	// Ingestion defaults
	assert.Equal(t, DefaultBatchSize, cfg.Ingest.BatchSize)
	assert.Equal(t, DefaultConcurrency, cfg.Ingest.Concurrency)
	assert.Equal(t, []string{".html"}, cfg.Ingest.Extensions)
	assert.Contains(t, cfg.Ingest.Ignore, "metadata.json")

	// Retrieval defaults
	assert.Equal(t, "default", cfg.Retrieval.DefaultCollection)
	assert.Equal(t, DefaultTopK, cfg.Retrieval.TopK)
	assert.Equal(t, DefaultChildK, cfg.Retrieval.ChildK)

	assert.Equal(t, DocstoreLocal, cfg.Docstore.Type)
	assert.NoError(t, cfg.Validate())
}

func TestDefaultPaths(t *testing.T) {
	configDir := DefaultConfigDir()
	dataDir := DefaultDataDir()
	dbPath := DefaultDatabasePath()

	assert.NotEmpty(t, configDir)
	assert.NotEmpty(t, dataDir)
	assert.NotEmpty(t, dbPath)

	assert.Contains(t, configDir, "strata")
	assert.Contains(t, dataDir, "strata")
	assert.Contains(t, dbPath, "index.db")
	assert.Contains(t, DefaultDocstorePath(), "parent_documents")
}

func TestLoadWithConfigFile(t *testing.T) {
	// Reset viper and global config
	viper.Reset()
	cfg = nil

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
embeddings:
  provider: openai
  ollama:
    url: http://custom:11434
    model: custom-model
  openai:
    model: text-embedding-3-large
    base_url: https://custom-api.example.com
database:
  path: /custom/path/index.db
docstore:
  type: sqlite
  path: /custom/path/docstore.db
splitter:
  parent:
    chunk_size: 1500
    chunk_overlap: 100
ingest:
  batch_size: 50
  extensions: [".html", ".md"]
retrieval:
  default_collection: manuals
  top_k: 8
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	err = Load(configPath)
	require.NoError(t, err)

	loadedCfg := Get()

	assert.Equal(t, "openai", loadedCfg.Embeddings.Provider)
	assert.Equal(t, "http://custom:11434", loadedCfg.Embeddings.Ollama.URL)
	assert.Equal(t, "custom-model", loadedCfg.Embeddings.Ollama.Model)
	assert.Equal(t, "text-embedding-3-large", loadedCfg.Embeddings.OpenAI.Model)
	assert.Equal(t, "https://custom-api.example.com", loadedCfg.Embeddings.OpenAI.BaseURL)
	assert.Equal(t, "/custom/path/index.db", loadedCfg.Database.Path)
	assert.Equal(t, DocstoreSQLite, loadedCfg.Docstore.Type)
	assert.Equal(t, 1500, loadedCfg.Splitter.Parent.ChunkSize)
	assert.Equal(t, 100, loadedCfg.Splitter.Parent.ChunkOverlap)
	// Unset keys keep their defaults
	assert.Equal(t, DefaultChildChunkSize, loadedCfg.Splitter.Child.ChunkSize)
	assert.Equal(t, 50, loadedCfg.Ingest.BatchSize)
	assert.Equal(t, []string{".html", ".md"}, loadedCfg.Ingest.Extensions)
	assert.Equal(t, "manuals", loadedCfg.Retrieval.DefaultCollection)
	assert.Equal(t, 8, loadedCfg.Retrieval.TopK)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	// Reset viper and global config
	viper.Reset()
	cfg = nil

	t.Setenv("STRATA_EMBEDDINGS_PROVIDER", "openai")
	t.Setenv("STRATA_RETRIEVAL_TOP_K", "6")
	t.Setenv("OPENAI_API_KEY", "test-api-key")

	err := Load("")
	require.NoError(t, err)

	loadedCfg := Get()

	assert.Equal(t, "openai", loadedCfg.Embeddings.Provider)
	assert.Equal(t, 6, loadedCfg.Retrieval.TopK)
	assert.Equal(t, "test-api-key", loadedCfg.Embeddings.OpenAI.APIKey)
}

func TestLoadMissingConfigFile(t *testing.T) {
	// Reset viper and global config
	viper.Reset()
	cfg = nil

	// Load with non-existent config file - should not error, just use defaults
	err := Load("")
	require.NoError(t, err)

	loadedCfg := Get()

	assert.Equal(t, DefaultEmbeddingProvider, loadedCfg.Embeddings.Provider)
	assert.Equal(t, DefaultCollection, loadedCfg.Retrieval.DefaultCollection)
}

func TestLoadRejectsInvalidSplitter(t *testing.T) {
	viper.Reset()
	cfg = nil

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	content := `
splitter:
  child:
    chunk_size: 100
    chunk_overlap: 100
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

	err := Load(configPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "splitter.child.chunk_overlap")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:    "child larger than parent",
			mutate:  func(c *Config) { c.Splitter.Child.ChunkSize = 5000 },
			wantErr: "must not exceed",
		},
		{
			name:    "unknown docstore",
			mutate:  func(c *Config) { c.Docstore.Type = "redis" },
			wantErr: "unsupported docstore type",
		},
		{
			name:    "zero batch size",
			mutate:  func(c *Config) { c.Ingest.BatchSize = 0 },
			wantErr: "batch_size",
		},
		{
			name:    "empty default collection",
			mutate:  func(c *Config) { c.Retrieval.DefaultCollection = "" },
			wantErr: "default_collection",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGet(t *testing.T) {
	// Reset global config
	cfg = nil

	// First call should return default config
	c1 := Get()
	assert.NotNil(t, c1)

	// Subsequent call should return same instance
	c2 := Get()
	assert.Same(t, c1, c2)
}

func TestGlobalConfigPath(t *testing.T) {
	path := GlobalConfigPath()
	assert.Contains(t, path, "strata")
	assert.Contains(t, path, "config.yaml")
}
