package reliquary

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/soundprediction/go-reliquary"
	"github.com/soundprediction/go-reliquary/pkg/config"
	"github.com/soundprediction/go-reliquary/pkg/rdf"
	"github.com/soundprediction/go-reliquary/pkg/types"
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild <rdf-file>",
	Short: "Compile an RDF export and report build statistics",
	Long: `Compile an RDF export into an entity graph without persisting it.

Useful for validating an export before serving it: the command reports how
many documents and edges the build produced and how many edges were dropped
for pointing at unknown entities. Use "export" to also write a snapshot.`,
	Args: cobra.ExactArgs(1),
	RunE: runRebuild,
}

var rebuildFormat string

func init() {
	rootCmd.AddCommand(rebuildCmd)

	rebuildCmd.Flags().StringVar(&rebuildFormat, "format", "", "RDF serialization (ntriples, turtle, rdfxml); detected from the file extension when empty")
}

func runRebuild(cmd *cobra.Command, args []string) error {
	return withEngine(func(ctx context.Context, cfg *config.Config, log *slog.Logger, engine *reliquary.Client) error {
		source, err := rdf.SourceFor(args[0], rebuildFormat)
		if err != nil {
			return err
		}

		stats, err := engine.Rebuild(ctx, source)
		if err != nil {
			return fmt.Errorf("failed to rebuild graph: %w", err)
		}

		printBuildStats(stats)
		return nil
	})
}

func printBuildStats(stats *types.BuildStats) {
	fmt.Printf("Build %s\n", stats.SnapshotID)
	fmt.Printf("Triples:       %d\n", stats.Triples)
	fmt.Printf("Documents:     %d\n", stats.Documents)
	fmt.Printf("Edges:         %d\n", stats.Edges)
	fmt.Printf("Dropped edges: %d\n", stats.DroppedEdges)
	fmt.Printf("Embedded:      %d\n", stats.Embedded)
	fmt.Printf("Took:          %s\n", stats.Took.Round(time.Millisecond))
}
