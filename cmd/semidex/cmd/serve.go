package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/semidex/semidex/internal/console"
	"github.com/semidex/semidex/internal/index"
	"github.com/semidex/semidex/internal/mcp"
	"github.com/semidex/semidex/internal/ragerr"
	"github.com/semidex/semidex/internal/watcher"
)

func newServeCmd(workspaceDir *string) *cobra.Command {
	var watch bool
	var noConsole bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the MCP stdio protocol and the operator console",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, err := buildApp(ctx, *workspaceDir)
			if err != nil {
				return err
			}
			defer app.cleanup()

			srv, err := mcp.NewServer(app.indexer, app.runner, app.searcher, app.cache)
			if err != nil {
				return err
			}

			g, ctx := errgroup.WithContext(ctx)

			g.Go(func() error { return srv.Serve(ctx) })

			if !noConsole {
				c := console.New(app.cfg.ConsoleAddr, app.indexer, app.runner, app.reporter, app.cache)
				g.Go(func() error { return c.Start(ctx) })
			}

			if watch {
				w := watcher.New(app.root, app.scanner, watcher.DefaultDebounce)
				w.OnChange = func() {
					err := app.runner.Start(ctx, index.Options{})
					if err != nil && ragerr.KindOf(err) != ragerr.KindBusy {
						slog.Error("failed to start watch-triggered update",
							slog.String("error", err.Error()))
					}
				}
				g.Go(func() error { return w.Run(ctx) })
			}

			return g.Wait()
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "Re-index incrementally when workspace files change")
	cmd.Flags().BoolVar(&noConsole, "no-console", false, "Disable the operator HTTP console")
	return cmd
}
