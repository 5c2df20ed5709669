package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/lunavale/mnemo/pkg/memory"
	"github.com/lunavale/mnemo/pkg/provider/embeddings"
)

// Compile-time interface checks.
var (
	_ memory.TurnStore       = (*TurnStoreImpl)(nil)
	_ memory.SummaryStore    = (*SummaryStoreImpl)(nil)
	_ memory.TimelineStore   = (*TimelineStoreImpl)(nil)
	_ memory.CheckpointStore = (*CheckpointStoreImpl)(nil)
	_ memory.SemanticIndex   = (*SemanticIndexImpl)(nil)
	_ memory.RawQuerier      = (*RawQuerierImpl)(nil)
	_ memory.UserDirectory   = (*Store)(nil)
)

// Store is the central PostgreSQL-backed memory store for Mnemo. It holds a
// single [pgxpool.Pool] and exposes each storage concern as a sub-type:
//
//   - [Store.Turns] — layer-0 conversation log ([memory.TurnStore])
//   - [Store.Summaries] — layer 1-3 summaries ([memory.SummaryStore])
//   - [Store.Timeline] — dated importance index ([memory.TimelineStore])
//   - [Store.Checkpoints] — lifecycle checkpoints ([memory.CheckpointStore])
//   - [Store.Semantic] — pgvector semantic index ([memory.SemanticIndex])
//   - [Store.Raw] — validator-gated raw selects ([memory.RawQuerier])
//
// Store itself implements [memory.UserDirectory]. All operations are safe for
// concurrent use; each call is a single short-lived statement on the pool.
type Store struct {
	pool        *pgxpool.Pool
	turns       *TurnStoreImpl
	summaries   *SummaryStoreImpl
	timeline    *TimelineStoreImpl
	checkpoints *CheckpointStoreImpl
	semantic    *SemanticIndexImpl
	raw         *RawQuerierImpl
}

// NewStore creates a new Store, establishes a connection pool to the
// PostgreSQL database at dsn, registers pgvector types on every connection,
// and runs [Migrate] to ensure all required tables and extensions exist.
//
// embedder produces the vectors stored in the semantic index; its output
// dimension must equal embeddingDimensions.
func NewStore(ctx context.Context, dsn string, embedder embeddings.Provider, embeddingDimensions int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	// Register pgvector types on every new connection so that vector columns
	// can be scanned into and inserted from pgvector.Vector values.
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{
		pool:        pool,
		turns:       &TurnStoreImpl{pool: pool},
		summaries:   &SummaryStoreImpl{pool: pool},
		timeline:    &TimelineStoreImpl{pool: pool},
		checkpoints: &CheckpointStoreImpl{pool: pool},
		semantic:    &SemanticIndexImpl{pool: pool, embedder: embedder},
		raw:         &RawQuerierImpl{pool: pool},
	}, nil
}

// Turns returns the layer-0 turn log implementation.
func (s *Store) Turns() *TurnStoreImpl { return s.turns }

// Summaries returns the layer 1-3 summary store implementation.
func (s *Store) Summaries() *SummaryStoreImpl { return s.summaries }

// Timeline returns the timeline index implementation.
func (s *Store) Timeline() *TimelineStoreImpl { return s.timeline }

// Checkpoints returns the lifecycle checkpoint store implementation.
func (s *Store) Checkpoints() *CheckpointStoreImpl { return s.checkpoints }

// Semantic returns the pgvector semantic index implementation.
func (s *Store) Semantic() *SemanticIndexImpl { return s.semantic }

// Raw returns the validator-gated raw select executor.
func (s *Store) Raw() *RawQuerierImpl { return s.raw }

// EnsureUser implements [memory.UserDirectory]. Creating an existing user is
// a no-op.
func (s *Store) EnsureUser(ctx context.Context, userID string) error {
	const q = `INSERT INTO users (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`
	if _, err := s.pool.Exec(ctx, q, userID); err != nil {
		return fmt.Errorf("user directory: ensure user: %w", err)
	}
	return nil
}

// ListUsers implements [memory.UserDirectory].
func (s *Store) ListUsers(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT user_id FROM users ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("user directory: list users: %w", err)
	}
	users, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("user directory: scan rows: %w", err)
	}
	if users == nil {
		users = []string{}
	}
	return users, nil
}

// EraseUser implements [memory.UserDirectory]. The ON DELETE CASCADE foreign
// keys remove the user's turns, summaries, and timeline entries together with
// the user row. Semantic-index fragments are keyed by collection name, not by
// foreign key; callers erase them separately via [memory.SemanticIndex].
func (s *Store) EraseUser(ctx context.Context, userID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM users WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("user directory: erase user: %w", err)
	}
	return nil
}

// Close releases all connections held by the underlying connection pool.
// It should be called when the Store is no longer needed, typically via defer.
func (s *Store) Close() {
	s.pool.Close()
}
