// Package cmd provides the CLI commands for semidex.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/semidex/semidex/internal/async"
	"github.com/semidex/semidex/internal/chunk"
	"github.com/semidex/semidex/internal/config"
	"github.com/semidex/semidex/internal/embed"
	"github.com/semidex/semidex/internal/index"
	"github.com/semidex/semidex/internal/logging"
	"github.com/semidex/semidex/internal/report"
	"github.com/semidex/semidex/internal/scanner"
	"github.com/semidex/semidex/internal/search"
	"github.com/semidex/semidex/internal/session"
	"github.com/semidex/semidex/internal/store"
	"github.com/semidex/semidex/internal/workspace"
)

// Version is set at build time.
var Version = "dev"

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	var workspaceDir string

	cmd := &cobra.Command{
		Use:   "semidex",
		Short: "Semantic retrieval service for a local document tree",
		Long: `semidex indexes a local document tree into PostgreSQL/pgvector and
answers similarity queries, exposed to AI assistants over MCP stdio and to
operators over an HTTP console.

Configuration comes entirely from the environment (see .env support);
DATABASE_URL and one embedding provider are required.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.SetVersionTemplate("semidex version {{.Version}}\n")
	cmd.PersistentFlags().StringVarP(&workspaceDir, "workspace", "w", ".", "Workspace root directory")

	cmd.AddCommand(newServeCmd(&workspaceDir))
	cmd.AddCommand(newIndexCmd(&workspaceDir))
	cmd.AddCommand(newSearchCmd(&workspaceDir))
	cmd.AddCommand(newStatusCmd(&workspaceDir))

	return cmd
}

// Execute runs the CLI with signal-aware context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}

// app bundles the wired service components.
type app struct {
	cfg         *config.Config
	store       store.Store
	embedder    embed.Embedder
	indexer     *index.Engine
	runner      *async.Runner
	searcher    *search.Engine
	cache       *session.Cache
	reporter    *report.Reporter
	scanner     *scanner.Scanner
	workspaceID string
	root        string
	cleanup     func()
}

// buildApp loads configuration and constructs every component against the
// given workspace directory.
func buildApp(ctx context.Context, workspaceDir string) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	_, logCleanup, err := logging.Setup(logging.DefaultConfig(cfg.LogLevel))
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}

	root, err := filepath.Abs(workspaceDir)
	if err != nil {
		logCleanup()
		return nil, fmt.Errorf("failed to resolve workspace: %w", err)
	}
	workspaceID, err := workspace.ID(root)
	if err != nil {
		logCleanup()
		return nil, err
	}

	embedder, err := embed.FromConfig(cfg)
	if err != nil {
		logCleanup()
		return nil, err
	}

	// The schema needs a concrete vector width; probe providers that only
	// learn it from their first response.
	dims := embedder.Dimensions()
	if dims == 0 {
		if _, err := embedder.Embed(ctx, "dimension probe"); err != nil {
			logCleanup()
			return nil, fmt.Errorf("failed to probe embedding dimension: %w", err)
		}
		dims = embedder.Dimensions()
	}

	st, err := store.New(ctx, store.Config{URL: cfg.DatabaseURL, Dimension: dims})
	if err != nil {
		logCleanup()
		return nil, err
	}

	progressPath, err := workspace.ProgressLogPath(workspaceID)
	if err != nil {
		st.Close()
		logCleanup()
		return nil, err
	}
	reporter, err := report.New(progressPath)
	if err != nil {
		st.Close()
		logCleanup()
		return nil, fmt.Errorf("failed to create progress log: %w", err)
	}

	markerPath, err := workspace.MarkerPath(workspaceID)
	if err != nil {
		st.Close()
		logCleanup()
		return nil, err
	}

	sc := scanner.New(root, cfg.IncludePatterns, cfg.ExcludePatterns)
	chunker := chunk.New(cfg.ChunkSize, cfg.ChunkOverlap, cfg.ExcludeCodeLanguages)

	indexer := index.New(st, embedder, chunker, sc, reporter, index.Config{
		WorkspaceID: workspaceID,
		Root:        root,
		MarkerPath:  markerPath,
	})
	searcher := search.New(st, embedder, search.Config{
		WorkspaceID:       workspaceID,
		Root:              root,
		MinSimilarity:     cfg.MinSimilarity,
		MaxResults:        cfg.MaxResults,
		MaxChunksPerQuery: cfg.MaxChunksPerQuery,
	})
	cache, err := session.NewCache(cfg.MaxSessionResults)
	if err != nil {
		st.Close()
		logCleanup()
		return nil, err
	}

	runner := async.NewRunner(indexer)
	// Any finished run may have mutated the partition; cached query
	// results are stale either way.
	runner.OnFinish = func(error) { cache.Invalidate() }

	return &app{
		cfg:         cfg,
		store:       st,
		embedder:    embedder,
		indexer:     indexer,
		runner:      runner,
		searcher:    searcher,
		cache:       cache,
		reporter:    reporter,
		scanner:     sc,
		workspaceID: workspaceID,
		root:        root,
		cleanup: func() {
			_ = embedder.Close()
			st.Close()
			logCleanup()
		},
	}, nil
}
