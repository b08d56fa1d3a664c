// Package search answers similarity queries over the indexed workspace,
// applying folder scope filters in memory.
package search

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/semidex/semidex/internal/embed"
	"github.com/semidex/semidex/internal/scanner"
	"github.com/semidex/semidex/internal/store"
)

// Scope narrows a query to specific files and/or folders. Files and folders
// combine by intersection; entries within each list combine by union. Empty
// lists impose no constraint.
type Scope struct {
	Files   []string `json:"files,omitempty"`
	Folders []string `json:"folders,omitempty"`
}

// Result is one retrieval hit.
type Result struct {
	Path       string  `json:"path"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
	StartLine  int     `json:"start_line"`
	EndLine    int     `json:"end_line"`
	URL        string  `json:"url"`
}

// Config parameterizes the retrieval engine.
type Config struct {
	WorkspaceID string
	Root        string

	// MinSimilarity is the default threshold when a query passes none.
	MinSimilarity float64

	// MaxResults is the default result limit when a query passes none.
	MaxResults int

	// MaxChunksPerQuery caps the limit a single query may request.
	MaxChunksPerQuery int
}

// Engine embeds queries and delegates similarity search to the store.
type Engine struct {
	store    store.Store
	embedder embed.Embedder
	cfg      Config
}

// New creates a retrieval engine.
func New(st store.Store, emb embed.Embedder, cfg Config) *Engine {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 10
	}
	return &Engine{store: st, embedder: emb, cfg: cfg}
}

// Search embeds the query once, fetches the top matches, and applies the
// folder scope filter. Results are ordered by descending similarity.
func (e *Engine) Search(ctx context.Context, query string, minSimilarity float64, limit int, scope Scope) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query must not be empty")
	}
	if limit <= 0 {
		limit = e.cfg.MaxResults
	}
	if e.cfg.MaxChunksPerQuery > 0 && limit > e.cfg.MaxChunksPerQuery {
		limit = e.cfg.MaxChunksPerQuery
	}
	if minSimilarity == 0 {
		minSimilarity = e.cfg.MinSimilarity
	}

	vector, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	hits, err := e.store.Similar(ctx, e.cfg.WorkspaceID, e.embedder.ModelName(),
		vector, limit, minSimilarity, scope.Files)
	if err != nil {
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}

	patterns := FolderPatterns(scope.Folders)

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		if len(patterns) > 0 && !scanner.MatchAny(patterns, h.Path) {
			continue
		}
		results = append(results, Result{
			Path:       h.Path,
			Content:    h.Content,
			Similarity: h.Similarity,
			StartLine:  h.StartLine,
			EndLine:    h.EndLine,
			URL:        fileURL(e.cfg.Root, h.Path),
		})
	}
	return results, nil
}

// FolderPatterns converts folder scope values to glob patterns:
// values containing '*' are used verbatim, absolute values ("/src/hooks")
// anchor at the workspace root, and bare names match the folder anywhere in
// the tree.
func FolderPatterns(folders []string) []string {
	patterns := make([]string, 0, len(folders))
	for _, folder := range folders {
		folder = strings.TrimSpace(folder)
		if folder == "" {
			continue
		}
		switch {
		case strings.Contains(folder, "*"):
			patterns = append(patterns, folder)
		case strings.HasPrefix(folder, "/"):
			patterns = append(patterns, strings.TrimPrefix(folder, "/")+"/**")
		default:
			patterns = append(patterns, "**/"+folder+"/**")
		}
	}
	return patterns
}

// fileURL builds an absolute file URL for editor navigation.
func fileURL(root, rel string) string {
	abs := filepath.ToSlash(filepath.Join(root, filepath.FromSlash(rel)))
	if !strings.HasPrefix(abs, "/") {
		abs = "/" + abs
	}
	return "file://" + abs
}
