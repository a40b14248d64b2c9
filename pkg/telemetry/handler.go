// Package telemetry mirrors error logs into a DuckDB table so failed
// retrievals can be analyzed with SQL alongside the snapshot files.
package telemetry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/google/uuid"
	"github.com/soundprediction/go-reliquary/pkg/types"
)

// DuckDBHandler is a slog.Handler that writes error records to DuckDB.
// All records pass through to the wrapped handler unchanged.
type DuckDBHandler struct {
	next slog.Handler
	db   *sql.DB
}

// NewDuckDBHandler creates a new DuckDBHandler.
func NewDuckDBHandler(next slog.Handler, db *sql.DB) (*DuckDBHandler, error) {
	h := &DuckDBHandler{
		next: next,
		db:   db,
	}

	if err := h.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return h, nil
}

// Attach opens the error mirror at path and returns a logger that routes
// records through it, plus a close function for the database handle.
func Attach(base *slog.Logger, path string) (*slog.Logger, func() error, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create telemetry dir: %w", err)
	}
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open telemetry store: %w", err)
	}
	h, err := NewDuckDBHandler(base.Handler(), db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return slog.New(h), db.Close, nil
}

// initSchema creates the retrieval_errors table.
func (h *DuckDBHandler) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS retrieval_errors (
		id VARCHAR,
		timestamp TIMESTAMP,
		level VARCHAR,
		message VARCHAR,
		request_id VARCHAR,
		session_id VARCHAR,
		request_source VARCHAR,
		query VARCHAR,
		source_file VARCHAR,
		line_number INTEGER,
		attributes JSON
	);
	`
	_, err := h.db.Exec(query)
	return err
}

// Enabled implements slog.Handler.
func (h *DuckDBHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *DuckDBHandler) Handle(ctx context.Context, r slog.Record) error {
	// The wrapped handler always sees the record first.
	if err := h.next.Handle(ctx, r); err != nil {
		return err
	}

	if r.Level < slog.LevelError {
		return nil
	}

	var requestID, sessionID, requestSource, query string
	if v, ok := ctx.Value(types.ContextKeyRequestID).(string); ok {
		requestID = v
	}
	if v, ok := ctx.Value(types.ContextKeySessionID).(string); ok {
		sessionID = v
	}
	if v, ok := ctx.Value(types.ContextKeyRequestSource).(string); ok {
		requestSource = v
	}
	if v, ok := ctx.Value(types.ContextKeyQuery).(string); ok {
		query = v
	}

	attrs := make(map[string]interface{})
	r.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.Any()
		return true
	})
	attrsJSON, _ := json.Marshal(attrs)

	fs := runtime.CallersFrames([]uintptr{r.PC})
	f, _ := fs.Next()
	sourceFile := f.File
	line := f.Line

	id := uuid.New().String()
	timestamp := r.Time.UTC()
	level := r.Level.String()
	msg := r.Message

	insert := `
	INSERT INTO retrieval_errors (
		id, timestamp, level, message,
		request_id, session_id, request_source, query,
		source_file, line_number, attributes
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
	`

	// The write happens off the logging path so a slow disk never stalls
	// a request. A lost row on shutdown is acceptable.
	go func() {
		_, err := h.db.Exec(insert,
			id, timestamp, level, msg,
			requestID, sessionID, requestSource, query,
			sourceFile, line, string(attrsJSON),
		)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to record error to DuckDB: %v\n", err)
		}
	}()

	return nil
}

// WithAttrs implements slog.Handler.
func (h *DuckDBHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &DuckDBHandler{
		next: h.next.WithAttrs(attrs),
		db:   h.db,
	}
}

// WithGroup implements slog.Handler.
func (h *DuckDBHandler) WithGroup(name string) slog.Handler {
	return &DuckDBHandler{
		next: h.next.WithGroup(name),
		db:   h.db,
	}
}
