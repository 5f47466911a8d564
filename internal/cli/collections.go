package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nickcecere/strata/internal/config"
	"github.com/nickcecere/strata/internal/registry"
	"github.com/nickcecere/strata/internal/ui"
)

var collectionsJSON bool

// collectionsCmd lists collections with their sizes
var collectionsCmd = &cobra.Command{
	Use:     "collections",
	Aliases: []string{"ls"},
	Short:   "List indexed collections",
	Args:    cobra.NoArgs,
	RunE:    runCollections,
}

var deleteYes bool

// deleteCmd removes a collection
var deleteCmd = &cobra.Command{
	Use:   "delete <collection>",
	Short: "Delete a collection and everything indexed in it",
	Long: `Delete a collection's parent chunks, child chunks and index entry.

Source files keep their .processed suffix; rename them back to re-ingest.

Examples:
  strata delete manuals --yes`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func init() {
	collectionsCmd.Flags().BoolVar(&collectionsJSON, "json", false, "output as JSON")
	deleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "do not ask for confirmation")
}

type collectionRow struct {
	Name        string         `json:"name"`
	Parents     int            `json:"parents"`
	Children    int            `json:"children"`
	Dimensions  int            `json:"dimensions"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	LastUpdated string         `json:"updated_at"`
}

func runCollections(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := openApp(config.Get())
	if err != nil {
		return err
	}
	defer a.Close()

	colls, err := a.registry.List(ctx)
	if err != nil {
		return err
	}

	rows := make([]collectionRow, 0, len(colls))
	for _, c := range colls {
		row := collectionRow{
			Name:        c.Name,
			Dimensions:  c.Dimensions,
			Metadata:    c.Metadata,
			LastUpdated: c.UpdatedAt.Format("2006-01-02 15:04:05"),
		}
		if stats, err := a.index.GetStats(ctx, c.ID); err == nil {
			row.Parents = stats.ParentCount
			row.Children = stats.ChildCount
		} else {
			log.Warn("Failed to get stats", "collection", c.Name, "error", err)
		}
		rows = append(rows, row)
	}

	if collectionsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	if len(rows) == 0 {
		fmt.Println("No collections found.")
		fmt.Println()
		fmt.Println("Run 'strata ingest' to create one.")
		return nil
	}

	fmt.Println(ui.Header.Render("Collections"))
	fmt.Println()
	for _, r := range rows {
		marker := ""
		if r.Name == a.registry.DefaultCollection() {
			marker = ui.Dim.Render(" (default)")
		}
		fmt.Printf("%s%s\n", ui.Bold.Render(r.Name), marker)
		fmt.Printf("  %d parents, %d children, updated %s\n", r.Parents, r.Children, r.LastUpdated)
	}
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	name := args[0]

	if !deleteYes {
		fmt.Printf("Delete collection %s and all its chunks? [y/N] ", ui.Bold.Render(name))
		var answer string
		fmt.Scanln(&answer)
		if answer != "y" && answer != "Y" && answer != "yes" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	a, err := openApp(config.Get())
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.registry.DeleteCollection(ctx, registry.Named(name)); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return fmt.Errorf("collection not found: %s", name)
		}
		return err
	}

	fmt.Println(ui.Success.Render("Deleted " + name))
	return nil
}
