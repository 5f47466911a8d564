// Package embeddings provides text embedding services for child chunks and queries.
package embeddings

import (
	"context"
	"fmt"
	"strings"

	"github.com/nickcecere/strata/internal/config"
)

// Provider represents an embedding provider type.
type Provider string

const (
	ProviderOllama Provider = "ollama"
	ProviderOpenAI Provider = "openai"
)

// Service defines the interface for embedding services.
type Service interface {
	// Embed generates an embedding for the given text (for documents).
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedQuery generates an embedding for a query (may use different task prefix).
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimensions for this model.
	Dimensions() int

	// Provider returns the provider name.
	Provider() Provider

	// ModelName returns the model name.
	ModelName() string
}

// Known model dimensions
var modelDimensions = map[string]int{
	// Ollama models
	"nomic-embed-text":       768,
	"mxbai-embed-large":      1024,
	"all-minilm":             384,
	"snowflake-arctic-embed": 1024,
	"bge-large":              1024,
	"bge-large-en-v1.5":      1024,
	"bge-base-en-v1.5":       768,
	"bge-small-en-v1.5":      384,
	"bge-m3":                 1024,

	// OpenAI models
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// bgeQueryInstruction is the retrieval instruction expected by BGE-style models.
const bgeQueryInstruction = "Represent this sentence for searching relevant passages: "

type taskPrefix struct {
	document string
	query    string
}

// Task prefixes for specific models
var taskPrefixes = map[string]taskPrefix{
	"nomic-embed-text": {
		document: "search_document: ",
		query:    "search_query: ",
	},
	"mxbai-embed-large": {
		document: "", // No prefix for documents
		query:    bgeQueryInstruction,
	},
}

// baseModel strips a registry namespace and tag ("BAAI/bge-large:latest" -> "bge-large").
func baseModel(model string) string {
	if i := strings.LastIndex(model, "/"); i >= 0 {
		model = model[i+1:]
	}
	if i := strings.Index(model, ":"); i >= 0 {
		model = model[:i]
	}
	return strings.ToLower(model)
}

// GetModelDimensions returns the known dimensions for a model, or 0 if unknown.
func GetModelDimensions(model string) int {
	return modelDimensions[baseModel(model)]
}

// prefixFor returns the task prefixes for a model. BGE v1.5 models share the
// query instruction of mxbai-embed-large; bge-m3 needs none.
func prefixFor(model string) (taskPrefix, bool) {
	base := baseModel(model)
	if p, ok := taskPrefixes[base]; ok {
		return p, true
	}
	if strings.HasPrefix(base, "bge-") && base != "bge-m3" {
		return taskPrefix{query: bgeQueryInstruction}, true
	}
	return taskPrefix{}, false
}

// applyPrefix applies the appropriate task prefix for the model.
func applyPrefix(model, text string, isQuery bool) string {
	prefixes, ok := prefixFor(model)
	if !ok {
		return text
	}

	if isQuery {
		return prefixes.query + text
	}
	return prefixes.document + text
}

// NewService creates an embedding service based on the configuration.
func NewService(cfg *config.Config) (Service, error) {
	switch cfg.Embeddings.Provider {
	case "ollama":
		return NewOllamaService(
			cfg.Embeddings.Ollama.URL,
			cfg.Embeddings.Ollama.Model,
		)
	case "openai":
		return NewOpenAIService(
			cfg.Embeddings.OpenAI.APIKey,
			cfg.Embeddings.OpenAI.Model,
			cfg.Embeddings.OpenAI.BaseURL,
			cfg.Embeddings.OpenAI.Dimensions,
		)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Embeddings.Provider)
	}
}
