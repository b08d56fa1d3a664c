package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/semidex/semidex/internal/index"
)

func newIndexCmd(workspaceDir *string) *cobra.Command {
	var rebuild bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Run an index update and wait for it to finish",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, err := buildApp(ctx, *workspaceDir)
			if err != nil {
				return err
			}
			defer app.cleanup()

			out := cmd.OutOrStdout()
			err = app.runner.Run(ctx, index.Options{ReindexAll: rebuild}, func(ev index.Event) {
				switch ev.Type {
				case index.EventStart:
					fmt.Fprintf(out, "indexing %d files (%d chunks)\n",
						ev.Progress.TotalFiles, ev.Progress.TotalChunks)
				case index.EventProgress:
					fmt.Fprintf(out, "\r%3d%% (%d/%d chunks)",
						ev.Progress.Percentage, ev.Progress.CompletedChunks, ev.Progress.TotalChunks)
				case index.EventWarning:
					fmt.Fprintf(out, "\nwarning: %s\n", ev.Message)
				case index.EventComplete:
					fmt.Fprintf(out, "\rdone: %d chunks from %d files\n",
						ev.Progress.CompletedChunks, ev.Progress.CompletedFiles)
				case index.EventCancelled:
					fmt.Fprintf(out, "\rcancelled after %d chunks\n", ev.Progress.CompletedChunks)
				}
			})
			if err != nil {
				return err
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "Clear this workspace+model and rebuild from scratch")
	return cmd
}
