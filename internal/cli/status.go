package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nickcecere/strata/internal/config"
	"github.com/nickcecere/strata/internal/fs"
	"github.com/nickcecere/strata/internal/registry"
	"github.com/nickcecere/strata/internal/ui"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index status and pending source files",
	Long: `Display the embedding provider, storage locations, totals for every
collection, and the number of source files still waiting to be ingested.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	ctx, cancel := signalContext()
	defer cancel()

	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Println(ui.Header.Render("Index Status"))
	fmt.Println()
	fmt.Println(ui.KeyValue("Provider:", fmt.Sprintf("%s (%s)", a.embedder.Provider(), a.embedder.ModelName())))
	fmt.Println(ui.KeyValue("Index:", cfg.Database.Path))
	fmt.Println(ui.KeyValue("Docstore:", fmt.Sprintf("%s at %s", cfg.Docstore.Type, docstorePath(cfg))))
	fmt.Println(ui.KeyValue("Sources:", cfg.Ingest.SourceDir))
	fmt.Println()

	colls, err := a.registry.List(ctx)
	if err != nil {
		return err
	}

	pending := pendingBySource(cfg)

	var totalParents, totalChildren int
	for _, c := range colls {
		stats, err := a.index.GetStats(ctx, c.ID)
		if err != nil {
			log.Warn("Failed to get stats", "collection", c.Name, "error", err)
			continue
		}
		totalParents += stats.ParentCount
		totalChildren += stats.ChildCount

		fmt.Printf("%s %s\n", ui.Highlight.Render("Collection:"), ui.Bold.Render(c.Name))
		fmt.Printf("  Parents: %d  Children: %d  Dimensions: %d\n", stats.ParentCount, stats.ChildCount, c.Dimensions)
		fmt.Printf("  State: %s  Pending files: %d\n", a.registry.State(registry.Named(c.Name)), pending[c.Name])
		delete(pending, c.Name)
	}

	for name, n := range pending {
		if n > 0 {
			fmt.Printf("%s %s %s\n", ui.Highlight.Render("Collection:"), ui.Bold.Render(name),
				ui.Warning.Render(fmt.Sprintf("(not ingested, %d pending files)", n)))
		}
	}

	fmt.Println()
	fmt.Println(ui.HorizontalRule(40))
	fmt.Printf("%d collections, %d parents, %d children\n", len(colls), totalParents, totalChildren)
	return nil
}

// pendingBySource counts pending files per collection directory.
func pendingBySource(cfg *config.Config) map[string]int {
	counts := make(map[string]int)
	entries, err := os.ReadDir(cfg.Ingest.SourceDir)
	if err != nil {
		log.Debug("Source directory not readable", "path", cfg.Ingest.SourceDir, "error", err)
		return counts
	}

	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		opts := fs.DefaultWalkOptions()
		opts.Root = filepath.Join(cfg.Ingest.SourceDir, e.Name())
		opts.Extensions = cfg.Ingest.Extensions
		opts.IgnorePatterns = cfg.Ingest.Ignore

		files, _, err := fs.Pending(opts)
		if err != nil {
			continue
		}
		counts[e.Name()] = len(files)
	}
	return counts
}
