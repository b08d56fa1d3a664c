package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/semidex/semidex/internal/search"
)

func newSearchCmd(workspaceDir *string) *cobra.Command {
	var limit int
	var minSimilarity float64
	var folders []string
	var files []string

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a similarity query against the index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, err := buildApp(ctx, *workspaceDir)
			if err != nil {
				return err
			}
			defer app.cleanup()

			query := strings.Join(args, " ")
			results, err := app.searcher.Search(ctx, query, minSimilarity, limit, search.Scope{
				Files:   files,
				Folders: folders,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(results) == 0 {
				fmt.Fprintln(out, "no results")
				return nil
			}
			for i, r := range results {
				fmt.Fprintf(out, "%d. %s:%d-%d (%.3f)\n", i+1, r.Path, r.StartLine, r.EndLine, r.Similarity)
				snippet := r.Content
				if len(snippet) > 200 {
					snippet = snippet[:200] + "..."
				}
				fmt.Fprintf(out, "   %s\n\n", strings.ReplaceAll(snippet, "\n", "\n   "))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum results (default from configuration)")
	cmd.Flags().Float64Var(&minSimilarity, "min-similarity", 0, "Similarity threshold (default from configuration)")
	cmd.Flags().StringSliceVar(&folders, "folders", nil, "Restrict to folders (repeatable)")
	cmd.Flags().StringSliceVar(&files, "files", nil, "Restrict to exact file paths (repeatable)")
	return cmd
}
