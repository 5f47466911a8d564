package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nickcecere/strata/internal/config"
	"github.com/nickcecere/strata/internal/ui"
)

var configShowPath bool

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show configuration",
	Long: `Display current configuration settings and config file locations.

Examples:
  # Show current configuration
  strata config

  # Show config file paths
  strata config --path`,
	RunE: runConfig,
}

func init() {
	configCmd.Flags().BoolVar(&configShowPath, "path", false, "show config file paths")
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	if configShowPath {
		fmt.Println(ui.SectionTitle.Render("Configuration Paths"))
		fmt.Println()
		fmt.Printf("Global config: %s\n", config.GlobalConfigPath())
		fmt.Printf("Local config:  .stratarc.yaml (searched from cwd upward)\n")
		fmt.Printf("Active config: %s\n", config.ConfigFilePath())
		fmt.Printf("Index:         %s\n", cfg.Database.Path)
		fmt.Printf("Docstore:      %s\n", docstorePath(cfg))
		return nil
	}

	fmt.Println(ui.SectionTitle.Render("Current Configuration"))
	fmt.Println()

	fmt.Println(ui.Bold.Render("Embeddings:"))
	fmt.Printf("  Provider: %s\n", cfg.Embeddings.Provider)
	fmt.Printf("  Ollama URL: %s\n", cfg.Embeddings.Ollama.URL)
	fmt.Printf("  Ollama Model: %s\n", cfg.Embeddings.Ollama.Model)
	fmt.Printf("  OpenAI Model: %s\n", cfg.Embeddings.OpenAI.Model)
	if cfg.Embeddings.OpenAI.BaseURL != "" {
		fmt.Printf("  OpenAI Base URL: %s\n", cfg.Embeddings.OpenAI.BaseURL)
	}
	if cfg.Embeddings.OpenAI.Dimensions > 0 {
		fmt.Printf("  OpenAI Dimensions: %d\n", cfg.Embeddings.OpenAI.Dimensions)
	}
	fmt.Println()

	fmt.Println(ui.Bold.Render("Splitter:"))
	fmt.Printf("  Parent: %d chars, %d overlap\n", cfg.Splitter.Parent.ChunkSize, cfg.Splitter.Parent.ChunkOverlap)
	fmt.Printf("  Child:  %d chars, %d overlap\n", cfg.Splitter.Child.ChunkSize, cfg.Splitter.Child.ChunkOverlap)
	fmt.Println()

	fmt.Println(ui.Bold.Render("Storage:"))
	fmt.Printf("  Index: %s\n", cfg.Database.Path)
	fmt.Printf("  Docstore: %s (%s)\n", docstorePath(cfg), cfg.Docstore.Type)
	fmt.Println()

	fmt.Println(ui.Bold.Render("Ingestion:"))
	fmt.Printf("  Source Dir: %s\n", cfg.Ingest.SourceDir)
	fmt.Printf("  Extensions: %s\n", strings.Join(cfg.Ingest.Extensions, ", "))
	fmt.Printf("  Batch Size: %d\n", cfg.Ingest.BatchSize)
	fmt.Printf("  Concurrency: %d\n", cfg.Ingest.Concurrency)
	fmt.Printf("  Ignore Patterns: %d configured\n", len(cfg.Ingest.Ignore))
	fmt.Println()

	fmt.Println(ui.Bold.Render("Retrieval:"))
	fmt.Printf("  Default Collection: %s\n", cfg.Retrieval.DefaultCollection)
	fmt.Printf("  Top K: %d\n", cfg.Retrieval.TopK)
	fmt.Printf("  Child K: %d\n", cfg.Retrieval.ChildK)
	fmt.Println()

	fmt.Println(ui.Bold.Render("Server:"))
	fmt.Printf("  Address: %s\n", cfg.Server.Addr)

	return nil
}
