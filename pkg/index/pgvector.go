package index

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/soundprediction/go-reliquary/pkg/types"
)

// PgvectorIndex keeps entity vectors in Postgres with the pgvector
// extension, searching by cosine distance.
type PgvectorIndex struct {
	db         *sql.DB
	dimensions int
}

// NewPgvectorIndex connects to Postgres, enables the extension and creates
// the vectors table for the given embedding width.
func NewPgvectorIndex(ctx context.Context, dsn string, dimensions int) (*PgvectorIndex, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	idx := &PgvectorIndex{db: db, dimensions: dimensions}
	if err := idx.ensureTable(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

func (p *PgvectorIndex) ensureTable(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("failed to enable pgvector extension: %w", err)
	}
	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS entity_vectors (
			id TEXT PRIMARY KEY,
			label TEXT NOT NULL DEFAULT '',
			embedding vector(%d) NOT NULL
		)
	`, p.dimensions)
	if _, err := p.db.ExecContext(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create entity_vectors table: %w", err)
	}
	if _, err := p.db.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS entity_vectors_embedding_idx
		ON entity_vectors USING hnsw (embedding vector_cosine_ops)
	`); err != nil {
		return fmt.Errorf("failed to create hnsw index: %w", err)
	}
	return nil
}

// Upsert replaces the stored vectors for the given documents inside one
// transaction.
func (p *PgvectorIndex) Upsert(ctx context.Context, docs []*types.EntityDocument) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entity_vectors (id, label, embedding)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET label = EXCLUDED.label, embedding = EXCLUDED.embedding
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, doc := range docs {
		if len(doc.Embedding) == 0 {
			continue
		}
		if _, err := stmt.ExecContext(ctx, doc.ID, doc.Label, pgvector.NewVector(doc.Embedding)); err != nil {
			return fmt.Errorf("failed to upsert vector for %s: %w", doc.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit upsert: %w", err)
	}
	return nil
}

// Search orders by cosine distance and converts it to similarity.
func (p *PgvectorIndex) Search(ctx context.Context, vector []float32, n int) ([]Hit, error) {
	if n <= 0 || len(vector) == 0 {
		return nil, nil
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT id, 1 - (embedding <=> $1) AS similarity
		FROM entity_vectors
		ORDER BY embedding <=> $1, id
		LIMIT $2
	`, pgvector.NewVector(vector), n)
	if err != nil {
		return nil, fmt.Errorf("failed to query entity_vectors: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var hit Hit
		if err := rows.Scan(&hit.ID, &hit.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan hit: %w", err)
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read hits: %w", err)
	}
	return hits, nil
}

// Len counts indexed vectors.
func (p *PgvectorIndex) Len(ctx context.Context) (int, error) {
	var count int
	if err := p.db.QueryRowContext(ctx, `SELECT count(*) FROM entity_vectors`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count entity_vectors: %w", err)
	}
	return count, nil
}

// Close closes the connection pool.
func (p *PgvectorIndex) Close() error {
	return p.db.Close()
}
