package reliquary

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/soundprediction/go-reliquary"
	"github.com/soundprediction/go-reliquary/pkg/config"
	"github.com/soundprediction/go-reliquary/pkg/rdf"
)

var exportCmd = &cobra.Command{
	Use:   "export <rdf-file>",
	Short: "Compile an RDF export and persist the build as a snapshot",
	Long: `Compile an RDF export into an entity graph and write the result to a
snapshot file. The snapshot bundles documents, edges and embeddings, so
"serve --snapshot" and "retrieve --snapshot" can restore it without touching
the embedding provider again.`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

var (
	exportOut    string
	exportFormat string
)

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVar(&exportOut, "out", "", "Snapshot file to write (defaults to storage.snapshot_path)")
	exportCmd.Flags().StringVar(&exportFormat, "format", "", "RDF serialization (ntriples, turtle, rdfxml); detected from the file extension when empty")
}

func runExport(cmd *cobra.Command, args []string) error {
	return withEngine(func(ctx context.Context, cfg *config.Config, log *slog.Logger, engine *reliquary.Client) error {
		out := exportOut
		if out == "" {
			out = cfg.Storage.SnapshotPath
		}
		if out == "" {
			return fmt.Errorf("no output path: pass --out or set storage.snapshot_path")
		}

		source, err := rdf.SourceFor(args[0], exportFormat)
		if err != nil {
			return err
		}

		stats, err := engine.Rebuild(ctx, source)
		if err != nil {
			return fmt.Errorf("failed to rebuild graph: %w", err)
		}
		if err := engine.Save(ctx, out); err != nil {
			return fmt.Errorf("failed to save snapshot: %w", err)
		}

		printBuildStats(stats)
		fmt.Printf("Snapshot:      %s\n", out)
		return nil
	})
}
