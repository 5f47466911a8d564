package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/nickcecere/strata/internal/config"
	"github.com/nickcecere/strata/internal/ingest"
	"github.com/nickcecere/strata/internal/ui"
	"github.com/nickcecere/strata/internal/watcher"
)

var watchDebounce time.Duration

// watchCmd represents the watch command.
var watchCmd = &cobra.Command{
	Use:   "watch [root]",
	Short: "Ingest new source files as they appear",
	Long: `Watch root (default: ingest.source_dir) and ingest new files into their
collection. Pending files are ingested on startup, and a new subdirectory
becomes a new collection.

Examples:
  strata watch
  strata watch ./docs --debounce 2s`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatchCmd,
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", time.Second, "time to collect events before ingesting")
}

func runWatchCmd(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

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
		return fmt.Errorf("path does not exist: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", absRoot)
	}

	ctx, cancel := signalContext()
	defer cancel()

	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	w, err := watcher.New(absRoot, a.pipeline, cfg.Ingest.Extensions,
		watcher.WithDebounceTime(watchDebounce),
		watcher.WithIngestCallback(func(res ingest.Result) {
			if res.Status == ingest.StatusSkipped {
				return
			}
			fmt.Printf("%s %s %s\n",
				ui.Dim.Render(time.Now().Format("15:04:05")),
				ui.Bold.Render(res.Collection),
				ui.FormatStatus(string(res.Status)))
		}))
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	fmt.Println(ui.Header.Render("Watching " + absRoot))
	fmt.Println(ui.Dim.Render("Press Ctrl+C to stop"))
	fmt.Println()

	if err := w.Start(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
