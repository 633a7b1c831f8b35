package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/fiberplant/internal/model"
)

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize a fiberplant workspace",
		Long:  "Create the configuration and data directories and define the workspace's classes\nand relations. Running init again re-applies the layout from config.yaml.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			w, err := a.open()
			if err != nil {
				return err
			}
			defer w.close()

			if err := w.repo.BeginEdit(ctx); err != nil {
				return err
			}
			if err := model.DefineLayout(ctx, w.repo, w.names()); err != nil {
				_ = w.repo.EndEdit(ctx, false)
				return fmt.Errorf("define layout: %w", err)
			}
			if err := w.repo.EndEdit(ctx, true); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Workspace initialized")
			fmt.Fprintln(out, "  config:", a.configDir)
			fmt.Fprintln(out, "  data:  ", w.cfg.DataDir)
			return nil
		},
	}
}
