// Package store persists chunk rows in PostgreSQL with the pgvector
// extension and answers similarity queries.
package store

import (
	"context"
	"time"
)

// Metadata is the structured per-row metadata.
type Metadata struct {
	StartLine    int    `json:"start_line"`
	EndLine      int    `json:"end_line"`
	Skipped      bool   `json:"skipped,omitempty"`
	Reason       string `json:"reason,omitempty"`
	OriginalSize int64  `json:"original_size,omitempty"`
}

// Row is one persisted chunk.
type Row struct {
	ID          int64
	WorkspaceID string
	Path        string
	MTimeMS     int64
	Content     string
	Model       string
	Dimension   int
	Embedding   []float32
	Metadata    Metadata
}

// SearchResult is one similarity hit.
type SearchResult struct {
	Path       string
	Content    string
	Similarity float64
	StartLine  int
	EndLine    int
}

// ModelStats aggregates rows per embedding model within a workspace.
type ModelStats struct {
	Model          string `json:"model"`
	RowCount       int64  `json:"row_count"`
	TotalDataBytes int64  `json:"total_data_bytes"`
}

// Store is the persistence contract consumed by the index and retrieval
// engines. All operations are scoped by workspace and model unless noted.
type Store interface {
	// IndexedPaths returns the distinct paths currently having rows.
	IndexedPaths(ctx context.Context, workspaceID, model string) ([]string, error)

	// MTimes returns path -> max(mtime) among rows for the given paths.
	MTimes(ctx context.Context, workspaceID, model string, paths []string) (map[string]int64, error)

	// DeleteForPaths deletes all rows matching any of the given paths.
	DeleteForPaths(ctx context.Context, workspaceID, model string, paths []string) error

	// DeleteAbsent deletes all rows whose path is NOT in keep. An empty
	// keep set clears everything for this workspace and model.
	DeleteAbsent(ctx context.Context, workspaceID, model string, keep []string) error

	// ClearAll deletes everything for this workspace and model.
	ClearAll(ctx context.Context, workspaceID, model string) error

	// Insert batch-inserts rows atomically.
	Insert(ctx context.Context, rows []Row) error

	// Similar returns the top-k rows by cosine similarity at or above the
	// threshold, excluding skipped marker rows. A non-empty scopeFiles
	// restricts results to exact path matches.
	Similar(ctx context.Context, workspaceID, model string, vector []float32, k int, minSimilarity float64, scopeFiles []string) ([]SearchResult, error)

	// WithWorkspaceLock runs fn while holding the cross-process advisory
	// lock for the workspace. Other holders block until release; the lock
	// is released on all exit paths.
	WithWorkspaceLock(ctx context.Context, workspaceID string, fn func(context.Context) error) error

	// SchemaDimension returns the declared vector column width, or 0 when
	// the table is absent.
	SchemaDimension(ctx context.Context) (int, error)

	// Stats aggregates per-model row counts and content bytes for a
	// workspace.
	Stats(ctx context.Context, workspaceID string) ([]ModelStats, error)

	// LastIndexedAt returns the newest row mtime for the workspace and
	// model, or the zero time when no rows exist.
	LastIndexedAt(ctx context.Context, workspaceID, model string) (time.Time, error)

	// Close releases the underlying connection pool.
	Close()
}
