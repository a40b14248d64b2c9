package reliquary

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/soundprediction/go-reliquary"
	"github.com/soundprediction/go-reliquary/pkg/config"
	"github.com/soundprediction/go-reliquary/pkg/logger"
	"github.com/soundprediction/go-reliquary/pkg/telemetry"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "reliquary",
	Short: "Graph-aware retrieval over CIDOC-CRM knowledge graphs",
	Long: `Reliquary answers natural-language questions over CIDOC-CRM RDF exports.

It compiles an RDF export into an entity graph with one embedded document
per entity, scores candidates by blending vector similarity with graph
structure, and assembles grounded context blocks for a language model.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (defaults to ./reliquary.yaml when present)")
}

// loadConfig reads the configuration honoring the --config flag.
func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

// newLogger builds the configured logger, wiring the DuckDB error mirror
// when telemetry is enabled. The returned closer releases the mirror.
func newLogger(cfg *config.Config) (*slog.Logger, func() error, error) {
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	if !cfg.Telemetry.Enabled {
		return log, func() error { return nil }, nil
	}
	path := cfg.Telemetry.Path
	if path == "" {
		path = filepath.Join(cfg.Storage.DataDir, "telemetry.duckdb")
	}
	return telemetry.Attach(log, path)
}

// withEngine loads the configuration, builds an engine from it and hands both
// to fn, tearing the engine down afterwards. One-shot commands run through
// here so they all fail the same way on a bad config.
func withEngine(fn func(ctx context.Context, cfg *config.Config, log *slog.Logger, engine *reliquary.Client) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, closeTelemetry, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeTelemetry()

	ctx := context.Background()
	engine, err := reliquary.New(ctx, cfg, &reliquary.Dependencies{Logger: log})
	if err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}
	defer engine.Close(ctx)

	return fn(ctx, cfg, log, engine)
}
