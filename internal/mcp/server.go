// Package mcp exposes the indexing and retrieval engines to AI assistants
// over the Model Context Protocol stdio transport.
package mcp

import (
	"context"
	"errors"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/semidex/semidex/internal/async"
	"github.com/semidex/semidex/internal/index"
	"github.com/semidex/semidex/internal/ragerr"
	"github.com/semidex/semidex/internal/search"
	"github.com/semidex/semidex/internal/session"
)

// Version is stamped into the MCP implementation info.
var Version = "dev"

// Server bridges MCP clients with the index and retrieval engines.
type Server struct {
	mcp      *mcp.Server
	indexer  *index.Engine
	runner   *async.Runner
	searcher *search.Engine
	cache    *session.Cache
	logger   *slog.Logger
}

// NewServer creates the MCP server and registers its tools.
func NewServer(indexer *index.Engine, runner *async.Runner, searcher *search.Engine, cache *session.Cache) (*Server, error) {
	if indexer == nil || runner == nil || searcher == nil {
		return nil, errors.New("index engine, runner, and search engine are required")
	}

	s := &Server{
		indexer:  indexer,
		runner:   runner,
		searcher: searcher,
		cache:    cache,
		logger:   slog.Default(),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "semidex",
			Version: Version,
		},
		nil,
	)
	s.registerTools()

	return s, nil
}

// Serve runs the server on stdio until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("starting MCP server", slog.String("transport", "stdio"))

	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("MCP server stopped")
	return nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "search_knowledge",
		Description: "Semantic search over the indexed document tree. Returns the most similar " +
			"chunks with file paths, line ranges, and similarity scores. Scope results with " +
			"folder names or exact file paths.",
	}, s.searchKnowledgeHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "update_index",
		Description: "Start an index update in the background. Incremental by default; set " +
			"reindex_all to rebuild from scratch. Fails immediately if an update is already running.",
	}, s.updateIndexHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "cancel_indexing",
		Description: "Request cooperative cancellation of the running index update.",
	}, s.cancelIndexingHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index_status",
		Description: "Report index readiness: file counts, per-model row statistics, and the progress of any running update.",
	}, s.indexStatusHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "reinitialize_index",
		Description: "Delete all indexed data for this workspace and embedding model.",
	}, s.reinitializeHandler)

	s.logger.Debug("MCP tools registered", slog.Int("count", 5))
}

func (s *Server) searchKnowledgeHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	if input.Query == "" {
		return nil, SearchOutput{}, errors.New("query parameter is required")
	}

	scope := search.Scope{Files: input.Files, Folders: input.Folders}
	key := session.Key(input.Query, input.MinSimilarity, input.Limit, scope)
	if s.cache != nil {
		if cached, ok := s.cache.Get(key); ok {
			return nil, SearchOutput{Results: cached, Cached: true}, nil
		}
	}

	results, err := s.searcher.Search(ctx, input.Query, input.MinSimilarity, input.Limit, scope)
	if err != nil {
		return nil, SearchOutput{}, err
	}

	if s.cache != nil {
		s.cache.Put(key, results)
	}
	return nil, SearchOutput{Results: results}, nil
}

func (s *Server) updateIndexHandler(ctx context.Context, _ *mcp.CallToolRequest, input UpdateIndexInput) (
	*mcp.CallToolResult,
	UpdateIndexOutput,
	error,
) {
	// Detach from the request context: the run outlives this tool call.
	err := s.runner.Start(context.WithoutCancel(ctx), index.Options{ReindexAll: input.ReindexAll})
	if err != nil {
		if ragerr.KindOf(err) == ragerr.KindBusy {
			return nil, UpdateIndexOutput{Started: false, Busy: true}, nil
		}
		return nil, UpdateIndexOutput{}, err
	}
	return nil, UpdateIndexOutput{Started: true}, nil
}

func (s *Server) cancelIndexingHandler(_ context.Context, _ *mcp.CallToolRequest, _ CancelInput) (
	*mcp.CallToolResult,
	CancelOutput,
	error,
) {
	running := s.runner.IsRunning()
	if running {
		s.runner.Cancel()
	}
	return nil, CancelOutput{WasRunning: running}, nil
}

func (s *Server) indexStatusHandler(ctx context.Context, _ *mcp.CallToolRequest, _ StatusInput) (
	*mcp.CallToolResult,
	StatusOutput,
	error,
) {
	status, err := s.indexer.Status(ctx)
	if err != nil {
		return nil, StatusOutput{}, err
	}

	out := StatusOutput{Status: *status}
	if ev := s.runner.LastEvent(); ev != nil {
		out.Indexing = ev
	}
	return nil, out, nil
}

func (s *Server) reinitializeHandler(ctx context.Context, _ *mcp.CallToolRequest, _ ReinitializeInput) (
	*mcp.CallToolResult,
	ReinitializeOutput,
	error,
) {
	if err := s.indexer.Reinitialize(ctx); err != nil {
		return nil, ReinitializeOutput{}, err
	}
	if s.cache != nil {
		s.cache.Invalidate()
	}
	return nil, ReinitializeOutput{Cleared: true}, nil
}
