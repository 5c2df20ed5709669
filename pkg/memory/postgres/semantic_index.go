package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/lunavale/mnemo/pkg/provider/embeddings"
)

// SemanticIndexImpl is the per-user semantic memory backed by a
// memory_fragments table with a pgvector HNSW index for fast approximate
// nearest-neighbour search. Each user's fragments live in a deterministic
// named collection, giving natural write isolation between users.
//
// Obtain one via [Store.Semantic] rather than constructing directly.
// All methods are safe for concurrent use.
type SemanticIndexImpl struct {
	pool     *pgxpool.Pool
	embedder embeddings.Provider
}

// collectionName returns the deterministic per-user collection name.
func collectionName(userID string) string {
	return "memories_" + userID
}

// Upsert implements [memory.SemanticIndex]. The fragment text is embedded via
// the configured provider and appended to the user's collection.
func (s *SemanticIndexImpl) Upsert(ctx context.Context, userID, text string, metadata map[string]string) error {
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("semantic index: embed: %w", err)
	}

	meta, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("semantic index: marshal metadata: %w", err)
	}

	const q = `
		INSERT INTO memory_fragments (collection, content, embedding, metadata)
		VALUES ($1, $2, $3, $4)`

	_, err = s.pool.Exec(ctx, q, collectionName(userID), text, pgvector.NewVector(vec), meta)
	if err != nil {
		return fmt.Errorf("semantic index: upsert: %w", err)
	}
	return nil
}

// Query implements [memory.SemanticIndex]. Results are ordered by ascending
// cosine distance (most similar first).
func (s *SemanticIndexImpl) Query(ctx context.Context, userID, text string, topN int) ([]string, error) {
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("semantic index: embed query: %w", err)
	}

	const q = `
		SELECT content
		FROM   memory_fragments
		WHERE  collection = $1
		ORDER  BY embedding <=> $2
		LIMIT  $3`

	rows, err := s.pool.Query(ctx, q, collectionName(userID), pgvector.NewVector(vec), topN)
	if err != nil {
		return nil, fmt.Errorf("semantic index: query: %w", err)
	}
	texts, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("semantic index: scan rows: %w", err)
	}
	if texts == nil {
		texts = []string{}
	}
	return texts, nil
}

// DropCollection implements [memory.SemanticIndex].
func (s *SemanticIndexImpl) DropCollection(ctx context.Context, userID string) error {
	const q = `DELETE FROM memory_fragments WHERE collection = $1`
	if _, err := s.pool.Exec(ctx, q, collectionName(userID)); err != nil {
		return fmt.Errorf("semantic index: drop collection: %w", err)
	}
	return nil
}
