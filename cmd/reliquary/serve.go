package reliquary

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/soundprediction/go-reliquary"
	"github.com/soundprediction/go-reliquary/pkg/config"
	"github.com/soundprediction/go-reliquary/pkg/rdf"
	"github.com/soundprediction/go-reliquary/pkg/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Reliquary HTTP server",
	Long: `Start the Reliquary HTTP server to provide REST API access to the
retrieval engine.

The server provides endpoints for:
- Retrieving graph context for a query
- Answering grounded questions
- Rebuilding the graph from an RDF export
- Build statistics and health checks

Configuration can be provided through config files, environment variables, or command-line flags.`,
	RunE: runServe,
}

var (
	serveHost string
	servePort int
	serveMode string
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "localhost", "Server host")
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "Server port")
	serveCmd.Flags().StringVar(&serveMode, "mode", "release", "Server mode (debug, release, test)")

	serveCmd.Flags().String("snapshot", "", "Snapshot to load at startup (defaults to storage.snapshot_path)")
	serveCmd.Flags().String("rdf", "", "RDF export to build at startup")
	serveCmd.Flags().String("rdf-format", "", "RDF serialization (ntriples, turtle, rdfxml)")

	// Index flags
	serveCmd.Flags().String("index-provider", "memory", "Vector index provider (memory, neo4j, pgvector)")
	serveCmd.Flags().String("index-uri", "bolt://localhost:7687", "Index URI")
	serveCmd.Flags().String("index-username", "neo4j", "Index username")
	serveCmd.Flags().String("index-password", "", "Index password")
	serveCmd.Flags().String("index-dsn", "", "Postgres DSN for pgvector")

	// LLM flags
	serveCmd.Flags().String("llm-provider", "openai", "LLM provider (openai, none)")
	serveCmd.Flags().String("llm-model", "gpt-4o", "LLM model")
	serveCmd.Flags().String("llm-api-key", "", "LLM API key")
	serveCmd.Flags().String("llm-base-url", "", "LLM base URL (for OpenAI-compatible services)")

	// Embedding flags
	serveCmd.Flags().String("embedding-provider", "openai", "Embedding provider (openai, local)")
	serveCmd.Flags().String("embedding-model", "text-embedding-3-small", "Embedding model")
	serveCmd.Flags().String("embedding-api-key", "", "Embedding API key")
	serveCmd.Flags().String("embedding-base-url", "", "Embedding base URL")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	overrideConfigWithFlags(cmd, cfg)

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

	if err := seedBuild(ctx, cmd, cfg, engine); err != nil {
		return err
	}

	srv := server.New(cfg, engine, log)
	srv.Setup()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- srv.Start()
	}()

	select {
	case err := <-serverErrChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case sig := <-sigChan:
		log.Info("shutting down", "signal", sig.String())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		return nil
	}
}

// seedBuild loads a snapshot or compiles an RDF export before serving, so
// the first request never hits an empty engine.
func seedBuild(ctx context.Context, cmd *cobra.Command, cfg *config.Config, engine *reliquary.Client) error {
	if cmd.Flags().Changed("rdf") {
		path, _ := cmd.Flags().GetString("rdf")
		format, _ := cmd.Flags().GetString("rdf-format")
		source, err := rdf.SourceFor(path, format)
		if err != nil {
			return err
		}
		if _, err := engine.Rebuild(ctx, source); err != nil {
			return fmt.Errorf("failed to build graph: %w", err)
		}
		return nil
	}

	snapshot := cfg.Storage.SnapshotPath
	if cmd.Flags().Changed("snapshot") {
		snapshot, _ = cmd.Flags().GetString("snapshot")
	}
	if snapshot == "" {
		return nil
	}
	if _, err := os.Stat(snapshot); os.IsNotExist(err) && !cmd.Flags().Changed("snapshot") {
		// The configured default may not exist yet.
		return nil
	}
	if err := engine.Load(ctx, snapshot); err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}
	return nil
}

func overrideConfigWithFlags(cmd *cobra.Command, cfg *config.Config) {
	// Server flags
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = serveHost
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = servePort
	}
	if cmd.Flags().Changed("mode") {
		cfg.Server.Mode = serveMode
	}

	// Index flags
	if cmd.Flags().Changed("index-provider") {
		cfg.Index.Provider, _ = cmd.Flags().GetString("index-provider")
	}
	if cmd.Flags().Changed("index-uri") {
		cfg.Index.URI, _ = cmd.Flags().GetString("index-uri")
	}
	if cmd.Flags().Changed("index-username") {
		cfg.Index.Username, _ = cmd.Flags().GetString("index-username")
	}
	if cmd.Flags().Changed("index-password") {
		cfg.Index.Password, _ = cmd.Flags().GetString("index-password")
	}
	if cmd.Flags().Changed("index-dsn") {
		cfg.Index.DSN, _ = cmd.Flags().GetString("index-dsn")
	}

	// LLM flags
	if cmd.Flags().Changed("llm-provider") {
		cfg.LLM.Provider, _ = cmd.Flags().GetString("llm-provider")
	}
	if cmd.Flags().Changed("llm-model") {
		cfg.LLM.Model, _ = cmd.Flags().GetString("llm-model")
	}
	if cmd.Flags().Changed("llm-api-key") {
		cfg.LLM.APIKey, _ = cmd.Flags().GetString("llm-api-key")
	}
	if cmd.Flags().Changed("llm-base-url") {
		cfg.LLM.BaseURL, _ = cmd.Flags().GetString("llm-base-url")
	}

	// Embedding flags
	if cmd.Flags().Changed("embedding-provider") {
		cfg.Embedding.Provider, _ = cmd.Flags().GetString("embedding-provider")
	}
	if cmd.Flags().Changed("embedding-model") {
		cfg.Embedding.Model, _ = cmd.Flags().GetString("embedding-model")
	}
	if cmd.Flags().Changed("embedding-api-key") {
		cfg.Embedding.APIKey, _ = cmd.Flags().GetString("embedding-api-key")
	}
	if cmd.Flags().Changed("embedding-base-url") {
		cfg.Embedding.BaseURL, _ = cmd.Flags().GetString("embedding-base-url")
	}
}
