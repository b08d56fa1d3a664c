package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/semidex/semidex/internal/ragerr"
	"github.com/semidex/semidex/internal/workspace"
)

// lockClassID namespaces this service's advisory locks within the database.
const lockClassID int32 = 0x5EAD

// PostgresStore persists chunk rows in a chunks table with a pgvector
// embedding column.
type PostgresStore struct {
	pool      *pgxpool.Pool
	dimension int

	// legacy is true when the embedding column is a plain JSONB array
	// (pre-pgvector deployments). Similarity is then computed in memory.
	legacy bool
}

var _ Store = (*PostgresStore)(nil)

// Config configures the PostgreSQL store.
type Config struct {
	// URL is the connection string.
	URL string

	// Dimension is the vector width used when creating the schema.
	Dimension int

	// MaxConns bounds the pool size. Zero keeps the driver default.
	MaxConns int32
}

// New connects to PostgreSQL and ensures the schema exists.
func New(ctx context.Context, cfg Config) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, ragerr.Config("invalid database URL", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, ragerr.Config("database is unreachable", err)
	}

	s := &PostgresStore{pool: pool, dimension: cfg.Dimension}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if err := s.detectColumnType(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return s, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS chunks (
	id BIGSERIAL PRIMARY KEY,
	workspace_id TEXT NOT NULL,
	path TEXT NOT NULL,
	mtime BIGINT NOT NULL,
	content TEXT NOT NULL,
	model TEXT NOT NULL,
	dimension INT NOT NULL,
	embedding vector(%d) NOT NULL,
	metadata JSONB NOT NULL DEFAULT '{}'::jsonb
);

CREATE INDEX IF NOT EXISTS chunks_workspace_idx ON chunks (workspace_id);
CREATE INDEX IF NOT EXISTS chunks_model_idx ON chunks (model);
CREATE INDEX IF NOT EXISTS chunks_dimension_idx ON chunks (dimension);
CREATE INDEX IF NOT EXISTS chunks_path_idx ON chunks (path);
`, s.dimension)

	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}

	return s.ensureANNIndex(ctx)
}

// ensureANNIndex creates the approximate-nearest-neighbor index, preferring
// HNSW and falling back to IVF-flat on older pgvector builds.
func (s *PostgresStore) ensureANNIndex(ctx context.Context) error {
	var exists bool
	err := s.pool.QueryRow(ctx, `
SELECT EXISTS (
	SELECT 1 FROM pg_indexes
	WHERE schemaname = current_schema() AND indexname = 'chunks_embedding_idx'
)`).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check ANN index: %w", err)
	}
	if exists {
		return nil
	}

	_, err = s.pool.Exec(ctx, `
CREATE INDEX chunks_embedding_idx ON chunks
USING hnsw (embedding vector_cosine_ops) WITH (m = 16, ef_construction = 64)`)
	if err == nil {
		return nil
	}
	slog.Warn("hnsw index unavailable, falling back to ivfflat", slog.String("error", err.Error()))

	_, err = s.pool.Exec(ctx, `
CREATE INDEX chunks_embedding_idx ON chunks
USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)`)
	if err != nil {
		// IVF-flat refuses to build on empty tables in some versions;
		// queries still work without the index.
		slog.Warn("ann index creation failed, continuing without it", slog.String("error", err.Error()))
	}
	return nil
}

// detectColumnType checks whether the embedding column is a native vector or
// a legacy JSONB array.
func (s *PostgresStore) detectColumnType(ctx context.Context) error {
	var udt string
	err := s.pool.QueryRow(ctx, `
SELECT udt_name FROM information_schema.columns
WHERE table_name = 'chunks' AND column_name = 'embedding'`).Scan(&udt)
	if err != nil {
		return fmt.Errorf("failed to inspect embedding column: %w", err)
	}
	s.legacy = udt == "jsonb" || udt == "json"
	return nil
}

// SchemaDimension returns the declared vector column width, or 0 when the
// table is absent. Legacy JSONB columns report the configured dimension.
func (s *PostgresStore) SchemaDimension(ctx context.Context) (int, error) {
	if s.legacy {
		return s.dimension, nil
	}

	var typmod int
	err := s.pool.QueryRow(ctx, `
SELECT a.atttypmod
FROM pg_attribute a
JOIN pg_class c ON c.oid = a.attrelid
WHERE c.relname = 'chunks' AND a.attname = 'embedding'`).Scan(&typmod)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read schema dimension: %w", err)
	}
	// pgvector stores the dimension directly in the type modifier.
	return typmod, nil
}

// IndexedPaths returns the distinct paths having rows for a workspace+model.
func (s *PostgresStore) IndexedPaths(ctx context.Context, workspaceID, model string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
SELECT DISTINCT path FROM chunks WHERE workspace_id = $1 AND model = $2`, workspaceID, model)
	if err != nil {
		return nil, fmt.Errorf("failed to query indexed paths: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan path: %w", err)
		}
		paths = append(paths, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate paths: %w", err)
	}
	sort.Strings(paths)
	return paths, nil
}

// MTimes returns path -> max(mtime) for the given paths.
func (s *PostgresStore) MTimes(ctx context.Context, workspaceID, model string, paths []string) (map[string]int64, error) {
	out := make(map[string]int64, len(paths))
	if len(paths) == 0 {
		return out, nil
	}

	rows, err := s.pool.Query(ctx, `
SELECT path, MAX(mtime) FROM chunks
WHERE workspace_id = $1 AND model = $2 AND path = ANY($3)
GROUP BY path`, workspaceID, model, paths)
	if err != nil {
		return nil, fmt.Errorf("failed to query mtimes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p string
		var mtime int64
		if err := rows.Scan(&p, &mtime); err != nil {
			return nil, fmt.Errorf("failed to scan mtime: %w", err)
		}
		out[p] = mtime
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate mtimes: %w", err)
	}
	return out, nil
}

// DeleteForPaths deletes all rows matching any of the given paths.
func (s *PostgresStore) DeleteForPaths(ctx context.Context, workspaceID, model string, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
DELETE FROM chunks WHERE workspace_id = $1 AND model = $2 AND path = ANY($3)`,
		workspaceID, model, paths)
	if err != nil {
		return fmt.Errorf("failed to delete rows for paths: %w", err)
	}
	return nil
}

// DeleteAbsent deletes all rows whose path is not in keep. An empty keep set
// clears everything for the workspace+model.
func (s *PostgresStore) DeleteAbsent(ctx context.Context, workspaceID, model string, keep []string) error {
	if len(keep) == 0 {
		return s.ClearAll(ctx, workspaceID, model)
	}
	_, err := s.pool.Exec(ctx, `
DELETE FROM chunks WHERE workspace_id = $1 AND model = $2 AND NOT (path = ANY($3))`,
		workspaceID, model, keep)
	if err != nil {
		return fmt.Errorf("failed to prune absent paths: %w", err)
	}
	return nil
}

// ClearAll deletes everything for the workspace+model.
func (s *PostgresStore) ClearAll(ctx context.Context, workspaceID, model string) error {
	_, err := s.pool.Exec(ctx, `
DELETE FROM chunks WHERE workspace_id = $1 AND model = $2`, workspaceID, model)
	if err != nil {
		return fmt.Errorf("failed to clear workspace rows: %w", err)
	}
	return nil
}

// Insert batch-inserts rows inside one transaction.
func (s *PostgresStore) Insert(ctx context.Context, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, r := range rows {
		metadata, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		batch.Queue(`
INSERT INTO chunks (workspace_id, path, mtime, content, model, dimension, embedding, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			r.WorkspaceID, r.Path, r.MTimeMS, r.Content, r.Model, r.Dimension,
			pgvector.NewVector(r.Embedding), metadata)
	}

	results := tx.SendBatch(ctx, batch)
	for range rows {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("failed to insert chunk: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("failed to close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit insert: %w", err)
	}
	return nil
}

// Similar returns the top-k non-skipped rows by cosine similarity at or
// above the threshold. With a native vector column the ordering and limit
// run in the database; legacy JSONB columns fall back to in-memory scoring.
func (s *PostgresStore) Similar(ctx context.Context, workspaceID, model string, vector []float32, k int, minSimilarity float64, scopeFiles []string) ([]SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}
	if s.legacy {
		return s.similarLegacy(ctx, workspaceID, model, vector, k, minSimilarity, scopeFiles)
	}

	query := `
SELECT path, content, 1 - (embedding <=> $1) AS similarity,
       COALESCE((metadata->>'start_line')::int, 1),
       COALESCE((metadata->>'end_line')::int, 1)
FROM chunks
WHERE workspace_id = $2 AND model = $3
  AND NOT COALESCE((metadata->>'skipped')::boolean, false)`
	args := []any{pgvector.NewVector(vector), workspaceID, model}
	if len(scopeFiles) > 0 {
		query += ` AND path = ANY($4)`
		args = append(args, scopeFiles)
	}
	// Over-fetch so the similarity threshold can prune without starving k.
	query += fmt.Sprintf(` ORDER BY embedding <=> $1 LIMIT %d`, 2*k)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query similar chunks: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.Path, &r.Content, &r.Similarity, &r.StartLine, &r.EndLine); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		if r.Similarity >= minSimilarity {
			results = append(results, r)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate results: %w", err)
	}

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// similarLegacy scores every candidate row in memory. Kept for deployments
// whose embedding column predates pgvector.
func (s *PostgresStore) similarLegacy(ctx context.Context, workspaceID, model string, vector []float32, k int, minSimilarity float64, scopeFiles []string) ([]SearchResult, error) {
	query := `
SELECT path, content, embedding,
       COALESCE((metadata->>'start_line')::int, 1),
       COALESCE((metadata->>'end_line')::int, 1)
FROM chunks
WHERE workspace_id = $1 AND model = $2
  AND NOT COALESCE((metadata->>'skipped')::boolean, false)`
	args := []any{workspaceID, model}
	if len(scopeFiles) > 0 {
		query += ` AND path = ANY($3)`
		args = append(args, scopeFiles)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidate chunks: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var raw []byte
		if err := rows.Scan(&r.Path, &r.Content, &raw, &r.StartLine, &r.EndLine); err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		var emb []float32
		if err := json.Unmarshal(raw, &emb); err != nil {
			continue
		}
		r.Similarity = CosineSimilarity(vector, emb)
		if r.Similarity >= minSimilarity {
			results = append(results, r)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate candidates: %w", err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// WithWorkspaceLock serializes cross-process work on one workspace through a
// database advisory lock. The lock key is derived deterministically from the
// workspace identifier, so all processes agree on it; the database releases
// the lock automatically if the holder dies.
func (s *PostgresStore) WithWorkspaceLock(ctx context.Context, workspaceID string, fn func(context.Context) error) error {
	key := workspace.LockKey(workspaceID)

	// The lock is session-scoped, so hold one dedicated connection for its
	// whole extent.
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection for lock: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1, $2)`, lockClassID, key); err != nil {
		return fmt.Errorf("failed to acquire workspace lock: %w", err)
	}
	defer func() {
		// Unlock on a background context so cancellation cannot leak the
		// lock while the session stays pooled.
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := conn.Exec(unlockCtx, `SELECT pg_advisory_unlock($1, $2)`, lockClassID, key); err != nil {
			slog.Warn("failed to release workspace lock",
				slog.String("workspace_id", workspaceID),
				slog.String("error", err.Error()))
		}
	}()

	return fn(ctx)
}

// Stats aggregates per-model row counts and content bytes for a workspace.
func (s *PostgresStore) Stats(ctx context.Context, workspaceID string) ([]ModelStats, error) {
	rows, err := s.pool.Query(ctx, `
SELECT model, COUNT(*), COALESCE(SUM(length(content)), 0)
FROM chunks WHERE workspace_id = $1
GROUP BY model ORDER BY model`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}
	defer rows.Close()

	var stats []ModelStats
	for rows.Next() {
		var st ModelStats
		if err := rows.Scan(&st.Model, &st.RowCount, &st.TotalDataBytes); err != nil {
			return nil, fmt.Errorf("failed to scan stats: %w", err)
		}
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate stats: %w", err)
	}
	return stats, nil
}

// LastIndexedAt returns the newest row mtime for the workspace+model.
func (s *PostgresStore) LastIndexedAt(ctx context.Context, workspaceID, model string) (time.Time, error) {
	var mtime *int64
	err := s.pool.QueryRow(ctx, `
SELECT MAX(mtime) FROM chunks WHERE workspace_id = $1 AND model = $2`,
		workspaceID, model).Scan(&mtime)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to query last indexed time: %w", err)
	}
	if mtime == nil {
		return time.Time{}, nil
	}
	return time.UnixMilli(*mtime), nil
}
