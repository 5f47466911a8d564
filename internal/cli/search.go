package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nickcecere/strata/internal/config"
	"github.com/nickcecere/strata/internal/registry"
	"github.com/nickcecere/strata/internal/retriever"
	"github.com/nickcecere/strata/internal/ui"
)

var (
	searchCollection string
	searchLimit      int
	searchMinScore   float64
	searchJSON       bool
	searchRaw        bool
)

// searchCmd represents the search command
var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Retrieve the passages most relevant to a query",
	Long: `Search a collection using natural language.

The query is matched against small child chunks; the larger parent chunks
containing the best matches are returned, one per parent.

Examples:
  # Search the default collection
  strata search "how do I reset the device"

  # Search a specific collection and return two passages
  strata search "warranty terms" --collection manuals -k 2

  # Machine-readable output
  strata search "warranty terms" --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearchCmd,
}

func init() {
	addSearchFlags(searchCmd)
}

func addSearchFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&searchCollection, "collection", "C", "", "collection to search (default: retrieval.default_collection)")
	cmd.Flags().IntVarP(&searchLimit, "limit", "k", 0, "number of passages (default: retrieval.top_k)")
	cmd.Flags().Float64Var(&searchMinScore, "min-score", 0.0, "minimum similarity score (-1 to 1)")
	cmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	cmd.Flags().BoolVar(&searchRaw, "raw", false, "print passages without markdown rendering")
}

func runSearchCmd(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")
	cfg := config.Get()

	log.Debug("Starting search", "query", query, "collection", searchCollection, "limit", searchLimit)

	ctx, cancel := signalContext()
	defer cancel()

	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	name := registry.Named(searchCollection)
	ret, err := a.registry.Lookup(ctx, name)
	if errors.Is(err, registry.ErrNotFound) {
		return fmt.Errorf("collection %q not found; run 'strata ingest' first", a.registry.Resolve(name))
	}
	if err != nil {
		return err
	}

	opts := retriever.RetrieveOptions{TopK: searchLimit}
	if cmd.Flags().Changed("min-score") {
		opts.MinScore = &searchMinScore
	}

	results, err := ret.RetrieveWithOptions(ctx, query, opts)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	displayResults(results)
	return nil
}

// displayResults prints each parent with a header line and its text.
func displayResults(results []retriever.ParentChunk) {
	fmt.Printf("Found %d passages:\n\n", len(results))

	for i, r := range results {
		source, _ := r.Metadata[retriever.MetaSource].(string)
		fmt.Printf("%s %s %s\n",
			ui.Highlight.Render(fmt.Sprintf("[%d]", i+1)),
			ui.FormatSource(source, r.Index),
			ui.FormatScore(r.Score),
		)
		if title, ok := r.Metadata[retriever.MetaTitle].(string); ok && title != "" {
			fmt.Printf("    %s\n", ui.Dim.Render(title))
		}

		if searchRaw {
			fmt.Println(r.Content)
		} else if rendered, err := renderMarkdown(r.Content); err == nil {
			fmt.Print(rendered)
		} else {
			log.Debug("Markdown rendering failed", "error", err)
			fmt.Println(r.Content)
		}
		fmt.Println(ui.HorizontalRule(40))
	}
}

// renderMarkdown renders content using glamour.
func renderMarkdown(content string) (string, error) {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return "", err
	}
	return renderer.Render(content)
}
