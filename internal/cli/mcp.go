package cli

import (
	"context"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nickcecere/strata/internal/config"
	"github.com/nickcecere/strata/internal/mcp"
	"github.com/nickcecere/strata/internal/watcher"
)

var mcpNoWatch bool

// mcpCmd represents the MCP server command.
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start an MCP server for AI agent integration",
	Long: `Start a Model Context Protocol (MCP) server.

The server communicates via stdin/stdout using JSON-RPC 2.0 and provides tools:
  - strata_retrieve: find passages relevant to a query
  - strata_ingest: index new source files
  - strata_collections: list collections

By default, the server also watches the source directory and ingests new files
as they appear. Use --no-watch to disable this.`,
	RunE: runMcpCmd,
}

func init() {
	mcpCmd.Flags().BoolVar(&mcpNoWatch, "no-watch", false, "disable background source watching")
}

func runMcpCmd(cmd *cobra.Command, args []string) error {
	// stdout carries the protocol
	log.SetOutput(os.Stderr)

	cfg := config.Get()

	ctx, cancel := signalContext()
	defer cancel()

	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if !mcpNoWatch {
		go startBackgroundWatcher(ctx, a, cfg)
	}

	server := mcp.NewServer(mcp.Options{
		Registry:  a.registry,
		Pipeline:  a.pipeline,
		SourceDir: cfg.Ingest.SourceDir,
		Version:   version,
		In:        os.Stdin,
		Out:       os.Stdout,
	})
	return server.Run(ctx)
}

// startBackgroundWatcher watches the source directory until ctx is done.
func startBackgroundWatcher(ctx context.Context, a *app, cfg *config.Config) {
	// Let the MCP handshake finish first
	select {
	case <-ctx.Done():
		return
	case <-time.After(2 * time.Second):
	}

	if _, err := os.Stat(cfg.Ingest.SourceDir); err != nil {
		log.Info("Source directory missing, not watching", "path", cfg.Ingest.SourceDir)
		return
	}

	w, err := watcher.New(cfg.Ingest.SourceDir, a.pipeline, cfg.Ingest.Extensions,
		watcher.WithDebounceTime(time.Second))
	if err != nil {
		log.Error("Failed to create watcher", "error", err)
		return
	}

	if err := w.Start(ctx); err != nil && ctx.Err() == nil {
		log.Error("Watcher error", "error", err)
	}
}
