// Package postgres provides the PostgreSQL-backed implementation of the Mnemo
// memory architecture: the layer-0 turn log, the layer 1-3 summary tables,
// the timeline index, lifecycle checkpoints, and the pgvector semantic index.
//
// All layers share a single [pgxpool.Pool] connection pool. The pgvector
// extension must be available in the target database; [Migrate] installs it
// automatically via CREATE EXTENSION IF NOT EXISTS.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn, embedder, 1536)
//	if err != nil { … }
//
//	_ = store.Turns().Append(ctx, "u1", memory.RoleUser, "hello", time.Now())
//	recent, _ := store.Turns().Recent(ctx, "u1", 20)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ─────────────────────────────────────────────────────────────────────────────
// Relational DDL — users, turns, summaries, timeline, checkpoints
// ─────────────────────────────────────────────────────────────────────────────

// Turn timestamps are TIMESTAMP (no timezone) on purpose: the writing process
// captures local wall-clock time and the stored value must round-trip
// unchanged regardless of the database server's timezone setting.
const ddlRelational = `
CREATE TABLE IF NOT EXISTS users (
    user_id     TEXT         PRIMARY KEY,
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS turns (
    id         BIGSERIAL  PRIMARY KEY,
    user_id    TEXT       NOT NULL REFERENCES users (user_id) ON DELETE CASCADE,
    role       TEXT       NOT NULL,
    text       TEXT       NOT NULL,
    timestamp  TIMESTAMP  NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_turns_user_id
    ON turns (user_id, id);

CREATE INDEX IF NOT EXISTS idx_turns_user_timestamp
    ON turns (user_id, timestamp);

CREATE TABLE IF NOT EXISTS weekly_summaries (
    id               BIGSERIAL    PRIMARY KEY,
    user_id          TEXT         NOT NULL REFERENCES users (user_id) ON DELETE CASCADE,
    week_start       DATE         NOT NULL,
    summary          TEXT         NOT NULL,
    key_events       JSONB        NOT NULL DEFAULT '[]',
    emotional_trend  TEXT         NOT NULL DEFAULT '',
    created_at       TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_weekly_summaries_user_period
    ON weekly_summaries (user_id, week_start);

CREATE TABLE IF NOT EXISTS monthly_summaries (
    id                      BIGSERIAL    PRIMARY KEY,
    user_id                 TEXT         NOT NULL REFERENCES users (user_id) ON DELETE CASCADE,
    month_start             DATE         NOT NULL,
    summary                 TEXT         NOT NULL,
    key_events              JSONB        NOT NULL DEFAULT '[]',
    emotional_trend         TEXT         NOT NULL DEFAULT '',
    relationship_milestone  TEXT         NOT NULL DEFAULT '',
    created_at              TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_monthly_summaries_user_period
    ON monthly_summaries (user_id, month_start);

CREATE TABLE IF NOT EXISTS yearly_summaries (
    id                      BIGSERIAL    PRIMARY KEY,
    user_id                 TEXT         NOT NULL REFERENCES users (user_id) ON DELETE CASCADE,
    year_start              DATE         NOT NULL,
    summary                 TEXT         NOT NULL,
    key_events              JSONB        NOT NULL DEFAULT '[]',
    emotional_trend         TEXT         NOT NULL DEFAULT '',
    relationship_milestone  TEXT         NOT NULL DEFAULT '',
    created_at              TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_yearly_summaries_user_period
    ON yearly_summaries (user_id, year_start);

CREATE TABLE IF NOT EXISTS memory_timeline (
    id               BIGSERIAL         PRIMARY KEY,
    user_id          TEXT              NOT NULL REFERENCES users (user_id) ON DELETE CASCADE,
    date_key         DATE              NOT NULL,
    memory_id        TEXT              NOT NULL DEFAULT '',
    layer            INTEGER           NOT NULL DEFAULT 0,
    importance       DOUBLE PRECISION  NOT NULL DEFAULT 0.5,
    entities         JSONB             NOT NULL DEFAULT '[]',
    content_preview  TEXT              NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_memory_timeline_user_date
    ON memory_timeline (user_id, date_key);

CREATE INDEX IF NOT EXISTS idx_memory_timeline_user_importance
    ON memory_timeline (user_id, importance DESC);

CREATE TABLE IF NOT EXISTS system_state (
    key         TEXT         PRIMARY KEY,
    value       TIMESTAMPTZ  NOT NULL,
    updated_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);
`

// ddlFragments returns the semantic-index DDL with the embedding dimension
// substituted. The vector dimension is baked into the column type at schema
// creation time.
func ddlFragments(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS memory_fragments (
    id          BIGSERIAL    PRIMARY KEY,
    collection  TEXT         NOT NULL,
    content     TEXT         NOT NULL,
    embedding   vector(%d),
    metadata    JSONB        NOT NULL DEFAULT '{}',
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_memory_fragments_collection
    ON memory_fragments (collection);

CREATE INDEX IF NOT EXISTS idx_memory_fragments_embedding
    ON memory_fragments USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates or ensures all required database tables and extensions
// exist. It is idempotent and safe to call on every application start.
//
// embeddingDimensions must match the output dimension of the configured
// embedding model (e.g., 1536 for OpenAI text-embedding-3-small). Changing
// this value after the first migration requires a manual schema update.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	statements := []string{
		ddlRelational,
		ddlFragments(embeddingDimensions),
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
