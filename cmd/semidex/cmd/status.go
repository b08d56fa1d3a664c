package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd(workspaceDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print index status for this workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, err := buildApp(ctx, *workspaceDir)
			if err != nil {
				return err
			}
			defer app.cleanup()

			status, err := app.indexer.Status(ctx)
			if err != nil {
				return err
			}

			payload, err := json.MarshalIndent(status, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(payload))
			return nil
		},
	}
}
