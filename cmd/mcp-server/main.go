// The mcp-server binary serves the retrieval tools over stdio without the
// rest of the CLI, for hosts that launch tool servers directly. It reads
// reliquary.yaml (or the file named by RELIQUARY_CONFIG) plus the usual
// environment overrides, loads the configured snapshot when one exists, and
// exits when stdin closes.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/soundprediction/go-reliquary"
	"github.com/soundprediction/go-reliquary/pkg/config"
	"github.com/soundprediction/go-reliquary/pkg/logger"
	"github.com/soundprediction/go-reliquary/pkg/mcp"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Getenv("RELIQUARY_CONFIG"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	ctx := context.Background()
	engine, err := reliquary.New(ctx, cfg, &reliquary.Dependencies{Logger: log})
	if err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}
	defer engine.Close(ctx)

	if path := cfg.Storage.SnapshotPath; path != "" {
		if _, statErr := os.Stat(path); statErr == nil {
			if err := engine.Load(ctx, path); err != nil {
				return fmt.Errorf("failed to load snapshot: %w", err)
			}
			log.Info("snapshot loaded", "path", path)
		}
	}

	log.Info("mcp server listening on stdio")
	return mcp.NewServer(engine, log).Run(ctx, os.Stdin, os.Stdout)
}
