// Package config handles configuration loading and validation for strata.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the complete strata configuration.
type Config struct {
	Embeddings EmbeddingsConfig `mapstructure:"embeddings"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Docstore   DocstoreConfig   `mapstructure:"docstore"`
	Splitter   SplitterConfig   `mapstructure:"splitter"`
	Ingest     IngestConfig     `mapstructure:"ingest"`
	Retrieval  RetrievalConfig  `mapstructure:"retrieval"`
	Server     ServerConfig     `mapstructure:"server"`
}

// EmbeddingsConfig configures the embedding service.
type EmbeddingsConfig struct {
	Provider string            `mapstructure:"provider"`
	Ollama   OllamaEmbedConfig `mapstructure:"ollama"`
	OpenAI   OpenAIEmbedConfig `mapstructure:"openai"`
}

// OllamaEmbedConfig configures Ollama embeddings.
type OllamaEmbedConfig struct {
	URL   string `mapstructure:"url"`
	Model string `mapstructure:"model"`
}

// OpenAIEmbedConfig configures OpenAI embeddings.
type OpenAIEmbedConfig struct {
	Model      string `mapstructure:"model"`
	BaseURL    string `mapstructure:"base_url"`
	APIKey     string `mapstructure:"api_key"`
	Dimensions int    `mapstructure:"dimensions"`
}

// DatabaseConfig configures the SQLite vector index.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// DocstoreConfig configures where parent chunks are persisted.
type DocstoreConfig struct {
	// Type is "local" (one file per parent) or "sqlite".
	Type string `mapstructure:"type"`
	// Path is the root directory for "local" or the database file for "sqlite".
	Path string `mapstructure:"path"`
}

// SplitterConfig holds the parent and child split profiles.
type SplitterConfig struct {
	Parent SplitProfile `mapstructure:"parent"`
	Child  SplitProfile `mapstructure:"child"`
}

// SplitProfile is a chunk size / overlap pair, measured in characters.
type SplitProfile struct {
	ChunkSize    int `mapstructure:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap"`
}

// IngestConfig configures source discovery and batching.
type IngestConfig struct {
	SourceDir   string   `mapstructure:"source_dir"`
	Extensions  []string `mapstructure:"extensions"`
	BatchSize   int      `mapstructure:"batch_size"`
	Concurrency int      `mapstructure:"concurrency"`
	Ignore      []string `mapstructure:"ignore"`
}

// RetrievalConfig configures query behavior.
type RetrievalConfig struct {
	DefaultCollection string `mapstructure:"default_collection"`
	TopK              int    `mapstructure:"top_k"`
	ChildK            int    `mapstructure:"child_k"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// Global configuration instance
var cfg *Config

// Get returns the current configuration.
func Get() *Config {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return cfg
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Embeddings: EmbeddingsConfig{
			Provider: DefaultEmbeddingProvider,
			Ollama: OllamaEmbedConfig{
				URL:   DefaultOllamaURL,
				Model: DefaultOllamaEmbedModel,
			},
			OpenAI: OpenAIEmbedConfig{
				Model: DefaultOpenAIEmbedModel,
			},
		},
		Database: DatabaseConfig{
			Path: DefaultDatabasePath(),
		},
		Docstore: DocstoreConfig{
			Type: DefaultDocstoreType,
			Path: DefaultDocstorePath(),
		},
		Splitter: SplitterConfig{
			Parent: SplitProfile{
				ChunkSize:    DefaultParentChunkSize,
				ChunkOverlap: DefaultParentChunkOverlap,
			},
			Child: SplitProfile{
				ChunkSize:    DefaultChildChunkSize,
				ChunkOverlap: DefaultChildChunkOverlap,
			},
		},
		Ingest: IngestConfig{
			SourceDir:   DefaultSourceDir(),
			Extensions:  DefaultExtensions(),
			BatchSize:   DefaultBatchSize,
			Concurrency: DefaultConcurrency,
			Ignore:      DefaultIgnorePatterns(),
		},
		Retrieval: RetrievalConfig{
			DefaultCollection: DefaultCollection,
			TopK:              DefaultTopK,
			ChildK:            DefaultChildK,
		},
		Server: ServerConfig{
			Addr: DefaultServerAddr,
		},
	}
}

// Load reads configuration from file and environment variables.
func Load(configFile string) error {
	// A .env next to the working directory may carry API keys
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Debug("Failed to load .env", "error", err)
	}

	setDefaults()

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(DefaultConfigDir())
		viper.AddConfigPath(".")

		if rcPath := findRCFile(); rcPath != "" {
			viper.SetConfigFile(rcPath)
		}
	}

	viper.SetEnvPrefix("STRATA")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		log.Debug("No config file found, using defaults")
	} else {
		log.Debug("Loaded config from", "file", viper.ConfigFileUsed())
	}

	loaded := &Config{}
	if err := viper.Unmarshal(loaded); err != nil {
		return fmt.Errorf("error parsing config: %w", err)
	}
	if err := loaded.Validate(); err != nil {
		return err
	}
	cfg = loaded

	loadAPIKeysFromEnv()

	return nil
}

// Validate checks values that would otherwise fail deep inside ingestion.
func (c *Config) Validate() error {
	for name, p := range map[string]SplitProfile{"parent": c.Splitter.Parent, "child": c.Splitter.Child} {
		if p.ChunkSize <= 0 {
			return fmt.Errorf("splitter.%s.chunk_size must be positive", name)
		}
		if p.ChunkOverlap < 0 || p.ChunkOverlap >= p.ChunkSize {
			return fmt.Errorf("splitter.%s.chunk_overlap must be in [0, chunk_size)", name)
		}
	}
	if c.Splitter.Child.ChunkSize > c.Splitter.Parent.ChunkSize {
		return fmt.Errorf("splitter.child.chunk_size must not exceed splitter.parent.chunk_size")
	}
	switch c.Docstore.Type {
	case DocstoreLocal, DocstoreSQLite:
	default:
		return fmt.Errorf("unsupported docstore type: %s", c.Docstore.Type)
	}
	if c.Ingest.BatchSize <= 0 {
		return fmt.Errorf("ingest.batch_size must be positive")
	}
	if c.Retrieval.DefaultCollection == "" {
		return fmt.Errorf("retrieval.default_collection must not be empty")
	}
	return nil
}

// setDefaults sets default values in viper.
func setDefaults() {
	// Embeddings
	viper.SetDefault("embeddings.provider", DefaultEmbeddingProvider)
	viper.SetDefault("embeddings.ollama.url", DefaultOllamaURL)
	viper.SetDefault("embeddings.ollama.model", DefaultOllamaEmbedModel)
	viper.SetDefault("embeddings.openai.model", DefaultOpenAIEmbedModel)

	// Storage
	viper.SetDefault("database.path", DefaultDatabasePath())
	viper.SetDefault("docstore.type", DefaultDocstoreType)
	viper.SetDefault("docstore.path", DefaultDocstorePath())

	// Splitter
	viper.SetDefault("splitter.parent.chunk_size", DefaultParentChunkSize)
	viper.SetDefault("splitter.parent.chunk_overlap", DefaultParentChunkOverlap)
	viper.SetDefault("splitter.child.chunk_size", DefaultChildChunkSize)
	viper.SetDefault("splitter.child.chunk_overlap", DefaultChildChunkOverlap)

	// Ingestion
	viper.SetDefault("ingest.source_dir", DefaultSourceDir())
	viper.SetDefault("ingest.extensions", DefaultExtensions())
	viper.SetDefault("ingest.batch_size", DefaultBatchSize)
	viper.SetDefault("ingest.concurrency", DefaultConcurrency)
	viper.SetDefault("ingest.ignore", DefaultIgnorePatterns())

	// Retrieval
	viper.SetDefault("retrieval.default_collection", DefaultCollection)
	viper.SetDefault("retrieval.top_k", DefaultTopK)
	viper.SetDefault("retrieval.child_k", DefaultChildK)

	// Server
	viper.SetDefault("server.addr", DefaultServerAddr)
}

// findRCFile searches for .stratarc.yaml starting from current directory.
func findRCFile() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	dir := cwd
	for {
		rcPath := filepath.Join(dir, ".stratarc.yaml")
		if _, err := os.Stat(rcPath); err == nil {
			return rcPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// loadAPIKeysFromEnv loads API keys from environment variables if not already set.
func loadAPIKeysFromEnv() {
	if cfg.Embeddings.OpenAI.APIKey == "" {
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			cfg.Embeddings.OpenAI.APIKey = key
		}
	}
}

// ConfigFilePath returns the path of the loaded config file, or empty string if none.
func ConfigFilePath() string {
	return viper.ConfigFileUsed()
}

// GlobalConfigPath returns the path to the global config file.
func GlobalConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}
