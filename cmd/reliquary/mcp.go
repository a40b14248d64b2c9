package reliquary

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/soundprediction/go-reliquary"
	"github.com/soundprediction/go-reliquary/pkg/config"
	"github.com/soundprediction/go-reliquary/pkg/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the retrieval tools over stdio",
	Long: `Serve the retrieval tools over stdio for model-context-protocol hosts.

Each request is one JSON object per line, {"tool": "retrieve", "input": {...}},
answered with one response object per line in request order. Available tools:
retrieve, answer, stats, rebuild. Logs go to stderr; the command exits when
stdin closes.`,
	RunE: runMCP,
}

var mcpSnapshot string

func init() {
	rootCmd.AddCommand(mcpCmd)

	mcpCmd.Flags().StringVar(&mcpSnapshot, "snapshot", "", "Snapshot to load at startup (defaults to storage.snapshot_path)")
}

func runMCP(cmd *cobra.Command, args []string) error {
	return withEngine(func(ctx context.Context, cfg *config.Config, log *slog.Logger, engine *reliquary.Client) error {
		snapshot := mcpSnapshot
		if snapshot == "" {
			snapshot = cfg.Storage.SnapshotPath
			// The configured default may not exist yet; tools still work
			// against rebuild calls.
			if snapshot != "" {
				if _, err := os.Stat(snapshot); os.IsNotExist(err) {
					snapshot = ""
				}
			}
		}
		if snapshot != "" {
			if err := engine.Load(ctx, snapshot); err != nil {
				return fmt.Errorf("failed to load snapshot: %w", err)
			}
			log.Info("snapshot loaded", "path", snapshot)
		}

		log.Info("mcp server listening on stdio")
		return mcp.NewServer(engine, log).Run(ctx, os.Stdin, os.Stdout)
	})
}
