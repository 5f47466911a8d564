package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nickcecere/strata/internal/config"
	"github.com/nickcecere/strata/internal/fs"
	"github.com/nickcecere/strata/internal/ingest"
	"github.com/nickcecere/strata/internal/ui"
)

var (
	ingestCollections []string
	ingestExtensions  []string
	ingestBatchSize   int
	ingestDryRun      bool
	ingestJSON        bool
)

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest [root]",
	Short: "Index new source files into their collections",
	Long: `Index the pending source files under root (default: ingest.source_dir).

Each subdirectory of root is a collection named after the directory. Files are
split into parent chunks, which are stored whole, and child chunks, which are
embedded and indexed. Each indexed file is renamed with a .processed suffix so
the next run skips it.

Collection metadata is read from metadata.json (or metadata.toml) in the
collection directory.

Examples:
  # Ingest every collection under the configured source directory
  strata ingest

  # Ingest two collections under ./docs
  strata ingest ./docs --collection manuals --collection faq

  # Show what would be ingested
  strata ingest --dry-run`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringSliceVarP(&ingestCollections, "collection", "C", nil, "collections to ingest (default: all)")
	ingestCmd.Flags().StringSliceVarP(&ingestExtensions, "ext", "e", nil, "file extensions to ingest (e.g. .html, .pdf)")
	ingestCmd.Flags().IntVar(&ingestBatchSize, "batch-size", 0, "files per batch (default: ingest.batch_size)")
	ingestCmd.Flags().BoolVarP(&ingestDryRun, "dry-run", "d", false, "list pending files without ingesting")
	ingestCmd.Flags().BoolVar(&ingestJSON, "json", false, "output results as JSON")
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	if len(ingestExtensions) > 0 {
		cfg.Ingest.Extensions = ingestExtensions
	}
	if ingestBatchSize > 0 {
		cfg.Ingest.BatchSize = ingestBatchSize
	}

	root := cfg.Ingest.SourceDir
	if len(args) > 0 {
		root = args[0]
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return fmt.Errorf("source directory does not exist: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source path is not a directory: %s", absRoot)
	}

	if ingestDryRun {
		return runIngestDryRun(cfg, absRoot)
	}

	ctx, cancel := signalContext()
	defer cancel()

	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := a.pipeline.InitAll(ctx, absRoot, ingestCollections...)
	if err != nil {
		return err
	}

	if ingestJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	printIngestResults(results)

	for _, res := range results {
		if res.Status == ingest.StatusFailed {
			return fmt.Errorf("one or more collections failed")
		}
	}
	return nil
}

func printIngestResults(results map[string]ingest.Result) {
	if len(results) == 0 {
		fmt.Println("No collections found.")
		return
	}

	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	slices.Sort(names)

	fmt.Println(ui.Header.Render("Ingestion Results"))
	fmt.Println()
	for _, name := range names {
		res := results[name]
		fmt.Printf("%s %s\n", ui.Bold.Render(name), ui.FormatStatus(string(res.Status)))
		if res.FilesFound > 0 {
			fmt.Printf("  %d indexed, %d failed, %d parents, %d children in %s\n",
				res.FilesIndexed, res.FilesFailed, res.Parents, res.Children, res.Duration.Round(time.Millisecond))
		}
		for _, msg := range res.Errors {
			fmt.Printf("  %s\n", ui.Error.Render(msg))
		}
	}
}

func runIngestDryRun(cfg *config.Config, root string) error {
	collections := ingestCollections
	if len(collections) == 0 {
		entries, err := os.ReadDir(root)
		if err != nil {
			return fmt.Errorf("failed to list collections: %w", err)
		}
		for _, e := range entries {
			if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
				collections = append(collections, e.Name())
			}
		}
	}

	fmt.Println(ui.Header.Render("Dry Run"))
	fmt.Println()

	for _, name := range collections {
		opts := fs.DefaultWalkOptions()
		opts.Root = filepath.Join(root, name)
		opts.Extensions = cfg.Ingest.Extensions
		opts.IgnorePatterns = cfg.Ingest.Ignore

		files, stats, err := fs.Pending(opts)
		if err != nil {
			log.Warn("Failed to scan collection", "collection", name, "error", err)
			continue
		}

		fmt.Printf("%s %s\n", ui.Bold.Render(name),
			ui.Dim.Render(fmt.Sprintf("(%d pending, %d already processed)", len(files), stats.FilesProcessed)))
		for _, f := range files {
			fmt.Printf("  %s %s\n", f.RelPath, ui.Dim.Render(fmt.Sprintf("%d bytes", f.Size)))
		}
	}
	return nil
}
