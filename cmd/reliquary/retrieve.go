package reliquary

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/soundprediction/go-reliquary"
	"github.com/soundprediction/go-reliquary/pkg/config"
)

var retrieveCmd = &cobra.Command{
	Use:   "retrieve <question>",
	Short: "Run one retrieval against a saved snapshot",
	Long: `Load a snapshot and run a single retrieval, printing the assembled
context blocks. Pass --json for the raw result including scores and ranks.`,
	Args: cobra.ExactArgs(1),
	RunE: runRetrieve,
}

var (
	retrieveSnapshot  string
	retrieveTopN      int
	retrieveK         int
	retrieveDepth     int
	retrieveDiversity float64
	retrieveJSON      bool
)

func init() {
	rootCmd.AddCommand(retrieveCmd)

	retrieveCmd.Flags().StringVar(&retrieveSnapshot, "snapshot", "", "Snapshot to load (defaults to storage.snapshot_path)")
	retrieveCmd.Flags().IntVar(&retrieveTopN, "top-n", 0, "Vector candidate pool size")
	retrieveCmd.Flags().IntVar(&retrieveK, "k", 0, "Entities to select")
	retrieveCmd.Flags().IntVar(&retrieveDepth, "depth", 0, "Context traversal depth")
	retrieveCmd.Flags().Float64Var(&retrieveDiversity, "diversity", 0, "Diversity weight in [0, 1]")
	retrieveCmd.Flags().BoolVar(&retrieveJSON, "json", false, "Print the raw result as JSON")
}

func runRetrieve(cmd *cobra.Command, args []string) error {
	return withEngine(func(ctx context.Context, cfg *config.Config, log *slog.Logger, engine *reliquary.Client) error {
		snapshot := retrieveSnapshot
		if snapshot == "" {
			snapshot = cfg.Storage.SnapshotPath
		}
		if snapshot == "" {
			return fmt.Errorf("no snapshot to query: pass --snapshot or set storage.snapshot_path")
		}
		if err := engine.Load(ctx, snapshot); err != nil {
			return fmt.Errorf("failed to load snapshot: %w", err)
		}

		opts := &reliquary.RetrieveOptions{TopN: retrieveTopN, K: retrieveK}
		if cmd.Flags().Changed("depth") {
			opts.Depth = &retrieveDepth
		}
		if cmd.Flags().Changed("diversity") {
			opts.DiversityWeight = &retrieveDiversity
		}

		result, err := engine.Retrieve(ctx, args[0], opts)
		if err != nil {
			return fmt.Errorf("failed to retrieve: %w", err)
		}

		if retrieveJSON {
			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode result: %w", err)
			}
			fmt.Println(string(out))
			return nil
		}

		fmt.Printf("Selected %d entities in %s\n\n", len(result.Selected), result.Took.Round(time.Millisecond))
		for _, block := range result.Blocks {
			fmt.Printf("## %s\n", block.Label)
			for _, line := range block.Lines {
				fmt.Println(line)
			}
			fmt.Println()
		}
		return nil
	})
}
