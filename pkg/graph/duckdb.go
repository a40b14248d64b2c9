package graph

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/soundprediction/go-reliquary/pkg/types"
)

// SnapshotMeta identifies one persisted build.
type SnapshotMeta struct {
	ID      string
	BuiltAt time.Time
}

// SnapshotWriter persists a built store to a DuckDB file. A file holds exactly
// one snapshot; writing replaces whatever the file held before.
type SnapshotWriter struct {
	db *sql.DB
}

// NewSnapshotWriter opens or creates a DuckDB snapshot file.
func NewSnapshotWriter(dbPath string) (*SnapshotWriter, error) {
	db, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open DuckDB database: %w", err)
	}
	w := &SnapshotWriter{db: db}
	if err := w.createTables(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return w, nil
}

func (w *SnapshotWriter) createTables(ctx context.Context) error {
	_, err := w.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS snapshot_meta (
			id TEXT PRIMARY KEY,
			built_at TIMESTAMP,
			documents INTEGER,
			edges INTEGER
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create snapshot_meta table: %w", err)
	}

	_, err = w.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS entity_documents (
			id TEXT PRIMARY KEY,
			label TEXT,
			types JSON,
			text TEXT,
			embedding FLOAT[],
			metadata JSON
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create entity_documents table: %w", err)
	}

	_, err = w.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS entity_edges (
			source TEXT,
			target TEXT,
			kind TEXT,
			weight DOUBLE,
			PRIMARY KEY (source, target, kind)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create entity_edges table: %w", err)
	}

	return nil
}

// Write stores the snapshot, replacing any previous content of the file.
func (w *SnapshotWriter) Write(ctx context.Context, store *Store, meta SnapshotMeta) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"snapshot_meta", "entity_documents", "entity_edges"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	builtAt := sql.NullTime{}
	if !meta.BuiltAt.IsZero() {
		builtAt = sql.NullTime{Time: meta.BuiltAt, Valid: true}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO snapshot_meta (id, built_at, documents, edges) VALUES (?, ?, ?, ?)
	`, meta.ID, builtAt, store.Len(), store.EdgeCount())
	if err != nil {
		return fmt.Errorf("failed to insert snapshot meta: %w", err)
	}

	docStmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO entity_documents (
			id, label, types, text, embedding, metadata
		) VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare document statement: %w", err)
	}
	defer docStmt.Close()

	for _, doc := range store.Documents() {
		typesJSON, err := json.Marshal(doc.Types)
		if err != nil {
			return fmt.Errorf("failed to marshal types: %w", err)
		}
		metadataJSON, err := json.Marshal(doc.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		_, err = docStmt.ExecContext(ctx,
			doc.ID,
			doc.Label,
			string(typesJSON),
			doc.Text,
			doc.Embedding,
			string(metadataJSON),
		)
		if err != nil {
			return fmt.Errorf("failed to insert document %s: %w", doc.ID, err)
		}
	}

	edgeStmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO entity_edges (source, target, kind, weight) VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare edge statement: %w", err)
	}
	defer edgeStmt.Close()

	for _, edge := range store.Edges() {
		_, err = edgeStmt.ExecContext(ctx, edge.Source, edge.Target, edge.Kind, edge.Weight)
		if err != nil {
			return fmt.Errorf("failed to insert edge %s-[%s]->%s: %w", edge.Source, edge.Kind, edge.Target, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (w *SnapshotWriter) Close() error {
	return w.db.Close()
}

// SnapshotReader restores a store from a DuckDB snapshot file.
type SnapshotReader struct {
	db *sql.DB
}

// NewSnapshotReader opens an existing snapshot file.
func NewSnapshotReader(dbPath string) (*SnapshotReader, error) {
	db, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open DuckDB database: %w", err)
	}
	return &SnapshotReader{db: db}, nil
}

// Read rebuilds the store. Documents and edges load in id order, which keeps
// iteration deterministic across load cycles.
func (r *SnapshotReader) Read(ctx context.Context) (*Store, SnapshotMeta, error) {
	var meta SnapshotMeta
	var builtAt sql.NullTime
	row := r.db.QueryRowContext(ctx, `SELECT id, built_at FROM snapshot_meta LIMIT 1`)
	if err := row.Scan(&meta.ID, &builtAt); err != nil {
		return nil, meta, fmt.Errorf("failed to read snapshot meta: %w", err)
	}
	if builtAt.Valid {
		meta.BuiltAt = builtAt.Time
	}

	store := NewStore()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, label, types, text, embedding, metadata FROM entity_documents ORDER BY id
	`)
	if err != nil {
		return nil, meta, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id, label, text     string
			typesJSON, metaJSON string
			embedding           any
		)
		if err := rows.Scan(&id, &label, &typesJSON, &text, &embedding, &metaJSON); err != nil {
			return nil, meta, fmt.Errorf("failed to scan document: %w", err)
		}
		doc := &types.EntityDocument{
			ID:        id,
			Label:     label,
			Text:      text,
			Embedding: toFloat32Slice(embedding),
		}
		if typesJSON != "" {
			if err := json.Unmarshal([]byte(typesJSON), &doc.Types); err != nil {
				return nil, meta, fmt.Errorf("failed to parse types for %s: %w", id, err)
			}
		}
		if metaJSON != "" {
			if err := json.Unmarshal([]byte(metaJSON), &doc.Metadata); err != nil {
				return nil, meta, fmt.Errorf("failed to parse metadata for %s: %w", id, err)
			}
		}
		store.AddDocument(doc)
	}
	if err := rows.Err(); err != nil {
		return nil, meta, fmt.Errorf("failed to iterate documents: %w", err)
	}

	edgeRows, err := r.db.QueryContext(ctx, `
		SELECT source, target, kind, weight FROM entity_edges ORDER BY source, kind, target
	`)
	if err != nil {
		return nil, meta, fmt.Errorf("failed to query edges: %w", err)
	}
	defer edgeRows.Close()

	for edgeRows.Next() {
		var (
			source, target, kind string
			weight               float64
		)
		if err := edgeRows.Scan(&source, &target, &kind, &weight); err != nil {
			return nil, meta, fmt.Errorf("failed to scan edge: %w", err)
		}
		if err := store.AddEdge(source, target, kind, weight); err != nil {
			return nil, meta, fmt.Errorf("failed to restore edge %s-[%s]->%s: %w", source, kind, target, err)
		}
	}
	if err := edgeRows.Err(); err != nil {
		return nil, meta, fmt.Errorf("failed to iterate edges: %w", err)
	}

	return store, meta, nil
}

// toFloat32Slice converts the driver's list representation of the embedding
// column. The driver returns list columns as []any; nil stays nil.
func toFloat32Slice(v any) []float32 {
	switch vec := v.(type) {
	case nil:
		return nil
	case []float32:
		return vec
	case []float64:
		out := make([]float32, len(vec))
		for i, f := range vec {
			out[i] = float32(f)
		}
		return out
	case []any:
		out := make([]float32, 0, len(vec))
		for _, e := range vec {
			switch f := e.(type) {
			case float32:
				out = append(out, f)
			case float64:
				out = append(out, float32(f))
			}
		}
		return out
	default:
		return nil
	}
}

// Close closes the underlying database.
func (r *SnapshotReader) Close() error {
	return r.db.Close()
}
