package index

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/db"
	"github.com/soundprediction/go-reliquary/pkg/types"
)

const (
	neo4jEntityLabel = "Entity"
	neo4jIndexName   = "entity_embeddings"
	neo4jBatchSize   = 500
)

// Neo4jIndex keeps entity vectors in a Neo4j 5 vector index and searches
// them with db.index.vector.queryNodes.
type Neo4jIndex struct {
	client     neo4j.DriverWithContext
	database   string
	dimensions int
}

// NewNeo4jIndex connects to Neo4j and provisions the vector index for the
// given embedding width.
func NewNeo4jIndex(ctx context.Context, uri, username, password, database string, dimensions int) (*Neo4jIndex, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("failed to connect to neo4j: %w", err)
	}

	idx := &Neo4jIndex{client: driver, database: database, dimensions: dimensions}
	if err := idx.ensureIndex(ctx); err != nil {
		driver.Close(ctx)
		return nil, err
	}
	return idx, nil
}

func (n *Neo4jIndex) ensureIndex(ctx context.Context) error {
	session := n.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: n.database})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := fmt.Sprintf(`
			CREATE VECTOR INDEX %s IF NOT EXISTS
			FOR (e:%s) ON (e.embedding)
			OPTIONS {indexConfig: {
				`+"`vector.dimensions`"+`: $dimensions,
				`+"`vector.similarity_function`"+`: 'cosine'
			}}
		`, neo4jIndexName, neo4jEntityLabel)
		_, err := tx.Run(ctx, query, map[string]any{"dimensions": n.dimensions})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("failed to create vector index: %w", err)
	}
	return nil
}

// Upsert merges entity nodes with their embeddings in batches.
func (n *Neo4jIndex) Upsert(ctx context.Context, docs []*types.EntityDocument) error {
	session := n.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: n.database})
	defer session.Close(ctx)

	for start := 0; start < len(docs); start += neo4jBatchSize {
		end := start + neo4jBatchSize
		if end > len(docs) {
			end = len(docs)
		}

		rows := make([]map[string]any, 0, end-start)
		for _, doc := range docs[start:end] {
			if len(doc.Embedding) == 0 {
				continue
			}
			rows = append(rows, map[string]any{
				"id":        doc.ID,
				"label":     doc.Label,
				"embedding": doc.Embedding,
			})
		}
		if len(rows) == 0 {
			continue
		}

		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			query := fmt.Sprintf(`
				UNWIND $rows AS row
				MERGE (e:%s {id: row.id})
				SET e.label = row.label, e.embedding = row.embedding
			`, neo4jEntityLabel)
			_, err := tx.Run(ctx, query, map[string]any{"rows": rows})
			return nil, err
		})
		if err != nil {
			return fmt.Errorf("failed to upsert batch %d-%d: %w", start, end, err)
		}
	}
	return nil
}

// Search queries the vector index. Neo4j reports cosine similarity directly
// as the score.
func (n *Neo4jIndex) Search(ctx context.Context, vector []float32, topN int) ([]Hit, error) {
	if topN <= 0 || len(vector) == 0 {
		return nil, nil
	}

	session := n.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: n.database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			CALL db.index.vector.queryNodes($index, $n, $vector)
			YIELD node, score
			RETURN node.id AS id, score
			ORDER BY score DESC, id ASC
		`
		res, err := tx.Run(ctx, query, map[string]any{
			"index":  neo4jIndexName,
			"n":      topN,
			"vector": vector,
		})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query vector index: %w", err)
	}

	records := result.([]*db.Record)
	hits := make([]Hit, 0, len(records))
	for _, record := range records {
		idValue, found := record.Get("id")
		if !found {
			continue
		}
		scoreValue, _ := record.Get("score")
		score, _ := scoreValue.(float64)
		hits = append(hits, Hit{ID: idValue.(string), Similarity: score})
	}
	return hits, nil
}

// Len counts indexed entities.
func (n *Neo4jIndex) Len(ctx context.Context) (int, error) {
	session := n.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: n.database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := fmt.Sprintf(`MATCH (e:%s) WHERE e.embedding IS NOT NULL RETURN count(e) AS c`, neo4jEntityLabel)
		res, err := tx.Run(ctx, query, nil)
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		count, _ := record.Get("c")
		return count, nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count indexed entities: %w", err)
	}
	return int(result.(int64)), nil
}

// Close shuts down the driver.
func (n *Neo4jIndex) Close() error {
	return n.client.Close(context.Background())
}
